package shim

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/containerd/errdefs"

	"github.com/MarcinKonowalczyk/frick/bf"
)

const configFilename = "config.json"

// Environment variables of the container process that configure the
// interpreter.
const (
	EnvCells         = "FRICK_CELLS"
	EnvCellOverflow  = "FRICK_CELL_OVERFLOW"
	EnvValueOverflow = "FRICK_VALUE_OVERFLOW"
)

var scriptExtensions = []string{".bf", ".b", ".brainfuck"}

// the parts of the OCI runtime spec we care about
type ociSpec struct {
	Root struct {
		// Path is the path to the rootfs
		Path string `json:"path"`
	} `json:"root"`
	Process struct {
		// Args is the command to run
		Args []string `json:"args"`
		// Env is the environment variables to set
		Env []string `json:"env"`
	} `json:"process"`
}

// Bundle is a container bundle whose entrypoint is a brainfuck program.
type Bundle struct {
	Root       string
	Entrypoint string
	Machine    bf.Config
}

// ReadBundle reads config.json from the bundle directory and checks that it
// describes a single brainfuck script which exists in the rootfs.
func ReadBundle(dir string) (*Bundle, error) {
	data, err := os.ReadFile(filepath.Join(dir, configFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file %s not found: %w", configFilename, errdefs.ErrNotFound)
		}
		return nil, err
	}
	var spec ociSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", configFilename, err)
	}

	if spec.Root.Path == "" {
		return nil, fmt.Errorf("root path not found in config file %s: %w", configFilename, errdefs.ErrInvalidArgument)
	}
	root := spec.Root.Path
	if !filepath.IsAbs(root) {
		root = filepath.Join(dir, root)
	}

	if len(spec.Process.Args) != 1 {
		return nil, fmt.Errorf("incorrect number of args in the CMD. Expected 1, got %d: %w", len(spec.Process.Args), errdefs.ErrInvalidArgument)
	}
	entrypoint := spec.Process.Args[0]
	if !isScript(entrypoint) {
		return nil, fmt.Errorf("entry point (%s) is not a brainfuck file: %w", entrypoint, errdefs.ErrInvalidArgument)
	}
	if _, err := os.Stat(filepath.Join(root, entrypoint)); err != nil {
		return nil, fmt.Errorf("checking script %s: %w", entrypoint, err)
	}

	machine, err := machineFromEnv(spec.Process.Env)
	if err != nil {
		return nil, err
	}

	return &Bundle{
		Root:       root,
		Entrypoint: entrypoint,
		Machine:    machine,
	}, nil
}

func isScript(name string) bool {
	ext := filepath.Ext(name)
	for _, want := range scriptExtensions {
		if ext == want {
			return true
		}
	}
	return false
}

func machineFromEnv(env []string) (bf.Config, error) {
	cfg := bf.DefaultConfig()
	for _, kv := range env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		var err error
		switch key {
		case EnvCells:
			cfg.Cells, err = strconv.Atoi(value)
		case EnvCellOverflow:
			err = cfg.CellOverflow.UnmarshalText([]byte(value))
		case EnvValueOverflow:
			err = cfg.ValueOverflow.UnmarshalText([]byte(value))
		default:
			continue
		}
		if err != nil {
			return bf.Config{}, fmt.Errorf("parsing %s: %v: %w", key, err, errdefs.ErrInvalidArgument)
		}
	}
	if err := cfg.Validate(); err != nil {
		return bf.Config{}, err
	}
	return cfg, nil
}

// Script is the absolute path of the entrypoint.
func (b *Bundle) Script() string {
	return filepath.Join(b.Root, b.Entrypoint)
}

// Args are the interpreter flags that run this bundle.
func (b *Bundle) Args() []string {
	return []string{
		"-file", b.Script(),
		"-crlf",
		"-cells", strconv.Itoa(b.Machine.Cells),
		"-cell-overflow", b.Machine.CellOverflow.String(),
		"-value-overflow", b.Machine.ValueOverflow.String(),
	}
}
