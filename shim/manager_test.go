package shim

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/MarcinKonowalczyk/frick/utils"
)

func TestManager_Info(t *testing.T) {
	m := NewManager("io.containerd.frick.v1")
	utils.AssertEqual(t, m.Name(), "io.containerd.frick.v1")

	info, err := m.Info(context.Background(), nil)
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, info.Name, "io.containerd.frick.v1")
	utils.AssertEqual(t, info.Version.Version, Version)
	utils.AssertEqual(t, info.Annotations["frick.extensions"], ".bf,.b,.brainfuck")
	utils.AssertEqual(t, info.Annotations["frick.cells"], "32768")
	utils.AssertEqual(t, info.Annotations["frick.value_overflow"], "wrap")
}

func TestPidFile(t *testing.T) {
	root := t.TempDir()
	bundle := filepath.Join(root, "task")
	if err := os.MkdirAll(bundle, 0755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(bundle)

	utils.AssertNoError(t, writePidFile("task", 4242))
	pid, err := readPidFile("task")
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, pid, 4242)

	_, err = readPidFile("other")
	utils.AssertErrorIs(t, err, os.ErrNotExist)
}
