// Package shim is a containerd runtime v2 shim which runs brainfuck
// entrypoints with the frick interpreter.
package shim

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	apitypes "github.com/containerd/containerd/api/types"
	"github.com/containerd/containerd/v2/pkg/shim"
	"github.com/containerd/log"

	"github.com/MarcinKonowalczyk/frick/bf"
)

// https://pubs.opengroup.org/onlinepubs/9699919799/utilities/V3_chap02.html#tag_18_21_18
const exitCodeSignal = 128
const initPidFile = "frick.pid"

// Version is reported by Info.
const Version = "v0.1.0"

// comptime override for debug flag
// set with `-ldflags="-X 'github.com/MarcinKonowalczyk/frick/shim.debug=true'"`
var debug string

type manager struct {
	name string
}

func NewManager(name string) shim.Manager {
	return manager{name: name}
}

var _ shim.Manager = manager{}

func (m manager) Name() string {
	return m.name
}

func (m manager) Start(ctx context.Context, id string, opts shim.StartOpts) (shim.BootstrapParams, error) {
	log.G(ctx).WithField("id", id).Debug("starting shim")

	cmd, err := m.command(ctx, opts)
	if err != nil {
		return shim.BootstrapParams{}, err
	}
	sockAddr, sockF, err := listen(ctx, id, opts)
	if err != nil {
		return shim.BootstrapParams{}, err
	}
	cmd.ExtraFiles = append(cmd.ExtraFiles, sockF)

	if err := startLocked(cmd); err != nil {
		sockF.Close()
		return shim.BootstrapParams{}, err
	}
	go reap(ctx, cmd)

	if err := shim.AdjustOOMScore(cmd.Process.Pid); err != nil {
		return shim.BootstrapParams{}, fmt.Errorf("adjusting shim process OOM score: %w", err)
	}
	return shim.BootstrapParams{
		Version:  2,
		Address:  sockAddr,
		Protocol: "ttrpc",
	}, nil
}

// command re-executes this binary as the long running task server.
func (m manager) command(ctx context.Context, opts shim.StartOpts) (*exec.Cmd, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("getting executable of current process: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting current working directory: %w", err)
	}
	var args []string
	if opts.Debug || debug != "" {
		args = append(args, "-debug")
	}
	cmd, err := shim.Command(ctx, &shim.CommandConfig{
		Runtime:      self,
		Address:      opts.Address,
		TTRPCAddress: opts.TTRPCAddress,
		Path:         cwd,
		Args:         args,
	})
	if err != nil {
		return nil, fmt.Errorf("creating shim command: %w", err)
	}
	return cmd, nil
}

// listen creates the task socket and returns its address along with a file
// the server process inherits.
func listen(ctx context.Context, id string, opts shim.StartOpts) (string, *os.File, error) {
	addr, err := shim.SocketAddress(ctx, opts.Address, id, opts.Debug)
	if err != nil {
		return "", nil, fmt.Errorf("getting a socket address: %w", err)
	}
	socket, err := shim.NewSocket(addr)
	if err != nil {
		return "", nil, fmt.Errorf("creating socket: %w", err)
	}
	f, err := socket.File()
	if err != nil {
		return "", nil, fmt.Errorf("getting shim socket file descriptor: %w", err)
	}
	return addr, f, nil
}

func reap(ctx context.Context, cmd *exec.Cmd) {
	if err := cmd.Wait(); err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			log.G(ctx).WithError(err).Errorf("failed to wait for shim process %d", cmd.Process.Pid)
		}
	}
}

// startLocked starts cmd from a locked OS thread so the child does not
// inherit the state of a thread shared with other goroutines.
func startLocked(cmd *exec.Cmd) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting shim command: %w", err)
	}
	return nil
}

func (m manager) Stop(ctx context.Context, id string) (shim.StopStatus, error) {
	log.G(ctx).WithField("id", id).Debug("stopping shim")

	pid, err := readPidFile(id)
	if err != nil {
		return shim.StopStatus{}, fmt.Errorf("reading pid file: %w", err)
	}

	if pid > 0 {
		p, _ := os.FindProcess(pid)
		// The POSIX standard specifies that a null-signal can be sent to check
		// whether a PID is valid.
		if err := p.Signal(syscall.Signal(0)); err == nil {
			if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
				log.G(ctx).WithError(err).Warnf("failed to send kill syscall to interpreter process %d", pid)
			}
		}
	}

	return shim.StopStatus{
		Pid:        pid,
		ExitedAt:   time.Now(),
		ExitStatus: int(exitCodeSignal + syscall.SIGKILL),
	}, nil
}

// Info reports the runtime along with the entrypoints it accepts and the
// machine a bundle gets when its environment sets nothing.
func (m manager) Info(ctx context.Context, optionsR io.Reader) (*apitypes.RuntimeInfo, error) {
	defaults := bf.DefaultConfig()
	return &apitypes.RuntimeInfo{
		Name: m.name,
		Version: &apitypes.RuntimeVersion{
			Version: Version,
		},
		Annotations: map[string]string{
			"frick.extensions":     strings.Join(scriptExtensions, ","),
			"frick.cells":          strconv.Itoa(defaults.Cells),
			"frick.cell_overflow":  defaults.CellOverflow.String(),
			"frick.value_overflow": defaults.ValueOverflow.String(),
		},
	}, nil
}

// The shim runs in the bundle directory; pid files live next to it in the
// sibling directory named after the task.
func pidFilePath(id string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current working directory: %w", err)
	}
	return filepath.Join(filepath.Dir(cwd), id, initPidFile), nil
}

func readPidFile(id string) (int, error) {
	path, err := pidFilePath(id)
	if err != nil {
		return -1, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return -1, err
	}
	return strconv.Atoi(string(data))
}

// If containerd needs to resort to calling the shim's "stop" command to
// clean things up, having the process' pid readable from a file is the
// only way for it to know what process is associated with the task.
func writePidFile(id string, pid int) error {
	path, err := pidFilePath(id)
	if err != nil {
		return err
	}
	if err := shim.WritePidFile(path, pid); err != nil {
		return fmt.Errorf("writing pid file of interpreter process: %w", err)
	}
	// rw-r--r--
	if err := os.Chmod(path, 0644); err != nil {
		return fmt.Errorf("changing pid file permissions: %w", err)
	}
	return nil
}
