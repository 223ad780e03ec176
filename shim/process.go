package shim

import (
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/containerd/log"
)

const commandWaitDelay = 100 * time.Millisecond

// interpreter process of one task
type proc struct {
	pid    int
	path   string
	bundle *Bundle
	stdio  stdio

	done       context.Context
	markDone   func()
	exitTime   time.Time
	exitStatus int
}

func (p *proc) exited() bool {
	return p.done.Err() != nil
}

func (p *proc) String() string {
	if p.exited() {
		return fmt.Sprintf("pid:%d, exitTime:%s, exitStatus:%d", p.pid, p.exitTime.Format(time.RFC3339), p.exitStatus)
	}
	return fmt.Sprintf("pid:%d running", p.pid)
}

// exitStatus follows the shell convention: the exit code, or 128+signal for
// a process that was killed.
func exitStatus(ctx context.Context, cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		log.G(ctx).Warn("interpreter wait returned without setting process state")
		return 255
	}
	if cmd.ProcessState.Exited() {
		return cmd.ProcessState.ExitCode()
	}
	if status, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return exitCodeSignal + int(status.Signal())
	}
	return 255
}

// watch waits for the interpreter of task id to exit, records how it ended
// and shuts the shim down once no task is left running.
func (s *taskService) watch(ctx context.Context, id string, cmd *exec.Cmd) {
	logger := log.G(ctx).WithField("id", id)
	if err := cmd.Wait(); err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			logger.WithError(err).Errorf("failed to wait for interpreter process %d", cmd.Process.Pid)
		}
	}
	status := exitStatus(ctx, cmd)
	logger.Debugf("interpreter process %d exited with status %d", cmd.Process.Pid, status)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.procs[id]
	if !ok {
		logger.Error("failed to record exit status: task was removed")
		return
	}
	p.exitStatus = status
	p.exitTime = time.Now()
	p.markDone()

	for _, other := range s.procs {
		if !other.exited() {
			return
		}
	}
	logger.Debug("all tasks exited, shutting down the shim")
	s.shutdown.Shutdown()
}
