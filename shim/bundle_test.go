package shim_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/containerd/errdefs"

	"github.com/MarcinKonowalczyk/frick/bf"
	"github.com/MarcinKonowalczyk/frick/shim"
	"github.com/MarcinKonowalczyk/frick/utils"
)

func writeBundle(t *testing.T, args []string, env []string) string {
	t.Helper()
	dir := t.TempDir()
	rootfs := filepath.Join(dir, "rootfs")
	if err := os.MkdirAll(rootfs, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(rootfs, "hello.bf"), []byte("+."), 0644); err != nil {
		t.Fatal(err)
	}
	spec := map[string]any{
		"root":    map[string]any{"path": "rootfs"},
		"process": map[string]any{"args": args, "env": env},
	}
	data, err := json.Marshal(spec)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), data, 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestReadBundle(t *testing.T) {
	dir := writeBundle(t, []string{"hello.bf"}, []string{
		"PATH=/usr/bin",
		"FRICK_CELLS=100",
		"FRICK_VALUE_OVERFLOW=throw",
	})

	bundle, err := shim.ReadBundle(dir)
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, bundle.Script(), filepath.Join(dir, "rootfs", "hello.bf"))
	utils.AssertEqual(t, bundle.Machine, bf.Config{
		Cells:         100,
		CellOverflow:  bf.Ignore,
		ValueOverflow: bf.ThrowException,
	})
	utils.AssertEqualArrays(t, bundle.Args(), []string{
		"-file", bundle.Script(),
		"-crlf",
		"-cells", "100",
		"-cell-overflow", "ignore",
		"-value-overflow", "throw",
	})
}

func TestReadBundle_MissingConfig(t *testing.T) {
	_, err := shim.ReadBundle(t.TempDir())
	utils.Assert(t, errdefs.IsNotFound(err), "expected a not found error")
}

func TestReadBundle_NotBrainfuck(t *testing.T) {
	dir := writeBundle(t, []string{"hello.sh"}, nil)
	_, err := shim.ReadBundle(dir)
	utils.Assert(t, errdefs.IsInvalidArgument(err), "expected an invalid argument error")
}

func TestReadBundle_TooManyArgs(t *testing.T) {
	dir := writeBundle(t, []string{"hello.bf", "extra"}, nil)
	_, err := shim.ReadBundle(dir)
	utils.Assert(t, errdefs.IsInvalidArgument(err), "expected an invalid argument error")
}

func TestReadBundle_MissingScript(t *testing.T) {
	dir := writeBundle(t, []string{"other.bf"}, nil)
	_, err := shim.ReadBundle(dir)
	utils.AssertErrorIs(t, err, os.ErrNotExist)
}

func TestReadBundle_BadEnv(t *testing.T) {
	for _, env := range []string{"FRICK_CELLS=lots", "FRICK_CELLS=0", "FRICK_CELLS=2000000000", "FRICK_CELL_OVERFLOW=bounce"} {
		dir := writeBundle(t, []string{"hello.bf"}, []string{env})
		_, err := shim.ReadBundle(dir)
		utils.Assert(t, errdefs.IsInvalidArgument(err), "expected an invalid argument error for "+env)
	}
}
