// Package config loads interpreter settings from a TOML file.
//
//	[machine]
//	cells = 30000
//	cell_overflow = "wrap"
//	value_overflow = "throw"
//
// Keys that are left out keep their default values.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/MarcinKonowalczyk/frick/bf"
)

type file struct {
	Machine machine `toml:"machine"`
}

type machine struct {
	Cells         int       `toml:"cells"`
	CellOverflow  bf.Policy `toml:"cell_overflow"`
	ValueOverflow bf.Policy `toml:"value_overflow"`
}

// Load reads the file at path and returns a validated configuration.
func Load(path string) (bf.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return bf.Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	cfg, err := Parse(string(data))
	if err != nil {
		return bf.Config{}, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return cfg, nil
}

func Parse(data string) (bf.Config, error) {
	defaults := bf.DefaultConfig()
	f := file{Machine: machine{
		Cells:         defaults.Cells,
		CellOverflow:  defaults.CellOverflow,
		ValueOverflow: defaults.ValueOverflow,
	}}

	md, err := toml.Decode(data, &f)
	if err != nil {
		return bf.Config{}, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return bf.Config{}, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}

	cfg := bf.Config{
		Cells:         f.Machine.Cells,
		CellOverflow:  f.Machine.CellOverflow,
		ValueOverflow: f.Machine.ValueOverflow,
	}
	if err := cfg.Validate(); err != nil {
		return bf.Config{}, err
	}
	return cfg, nil
}
