package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MarcinKonowalczyk/frick/bf"
	"github.com/MarcinKonowalczyk/frick/config"
	"github.com/MarcinKonowalczyk/frick/utils"
	"github.com/containerd/errdefs"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frick.toml")
	content := `
[machine]
cells = 30000
cell_overflow = "wrap"
value_overflow = "throw"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, cfg, bf.Config{
		Cells:         30000,
		CellOverflow:  bf.WrapAround,
		ValueOverflow: bf.ThrowException,
	})
}

func TestLoad_Missing(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	utils.AssertErrorIs(t, err, os.ErrNotExist)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse("")
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, cfg, bf.DefaultConfig())

	cfg, err = config.Parse("[machine]\ncells = 8\n")
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, cfg.Cells, 8)
	utils.AssertEqual(t, cfg.ValueOverflow, bf.WrapAround)
}

func TestParse_ZeroCells(t *testing.T) {
	_, err := config.Parse("[machine]\ncells = 0\n")
	utils.AssertErrorAs[*bf.ConfigError](t, err)
	utils.Assert(t, errdefs.IsInvalidArgument(err), "expected an invalid argument error")
}

func TestParse_BadPolicy(t *testing.T) {
	_, err := config.Parse("[machine]\ncell_overflow = \"bounce\"\n")
	utils.AssertError(t, err)
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := config.Parse("[machine]\ncell_count = 8\n")
	utils.AssertError(t, err)
}
