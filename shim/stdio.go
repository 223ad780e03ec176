package shim

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"syscall"

	"github.com/containerd/fifo"
	"github.com/containerd/log"
)

type stdio struct {
	stdin  string
	stdout string
	stderr string
}

func openFifo(ctx context.Context, path string, flag int) (io.ReadWriteCloser, error) {
	ok, err := fifo.IsFifo(path)
	if err != nil {
		return nil, fmt.Errorf("checking whether file %s is a fifo: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("file %s is not a fifo", path)
	}
	f, err := fifo.OpenFifo(ctx, path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("opening fifo %s: %w", path, err)
	}
	return f, nil
}

// connect wires the interpreter's stdio to the fifos containerd created for
// the task. The copies run until either side is closed, and each closes both
// of its ends when it stops. The returned cleanup releases everything connect
// opened; call it if the command never starts.
func (s stdio) connect(ctx context.Context, cmd *exec.Cmd) (_ func(), retErr error) {
	var opened []io.Closer
	cleanup := func() {
		for _, c := range opened {
			c.Close()
		}
	}
	defer func() {
		if retErr != nil {
			cleanup()
		}
	}()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("getting stdout pipe: %w", err)
	}
	opened = append(opened, stdout)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("getting stderr pipe: %w", err)
	}
	opened = append(opened, stderr)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("getting stdin pipe: %w", err)
	}
	opened = append(opened, stdin)

	errPath := s.stderr
	if errPath == "" {
		errPath = s.stdout
	}

	out, err := openFifo(ctx, s.stdout, syscall.O_WRONLY)
	if err != nil {
		return nil, err
	}
	opened = append(opened, out)
	errOut, err := openFifo(ctx, errPath, syscall.O_WRONLY)
	if err != nil {
		return nil, err
	}
	opened = append(opened, errOut)

	var in io.ReadWriteCloser
	if s.stdin != "" {
		in, err = openFifo(ctx, s.stdin, syscall.O_RDONLY)
		if err != nil {
			return nil, err
		}
		opened = append(opened, in)
	}

	go copyStream(ctx, out, stdout, s.stdout)
	go copyStream(ctx, errOut, stderr, errPath)
	if in == nil {
		// no terminal attached; ',' sees EOF straight away
		if err := stdin.Close(); err != nil {
			return nil, fmt.Errorf("closing stdin pipe: %w", err)
		}
		return cleanup, nil
	}
	go copyStream(ctx, stdin, in, s.stdin)
	return cleanup, nil
}

func copyStream(ctx context.Context, dst io.WriteCloser, src io.ReadCloser, path string) {
	defer src.Close()
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		log.G(ctx).WithError(err).Errorf("failed to copy stream for fifo %s", path)
	}
}
