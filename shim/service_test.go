package shim

import (
	"context"
	"os/exec"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	taskAPI "github.com/containerd/containerd/api/runtime/task/v2"
	tasktypes "github.com/containerd/containerd/api/types/task"
	"github.com/containerd/containerd/v2/pkg/shutdown"
	"github.com/containerd/errdefs"

	"github.com/MarcinKonowalczyk/frick/utils"
)

type countingShutdown struct {
	shutdown.Service
	calls atomic.Int32
}

func (c *countingShutdown) Shutdown() {
	c.calls.Add(1)
}

// startProc runs name as task id the way Create does, minus the bundle and
// the stdio fifos.
func startProc(t *testing.T, s *taskService, id string, name string, args ...string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cmd.Process.Kill() })

	done, markDone := context.WithCancel(context.Background())
	s.mu.Lock()
	s.procs[id] = &proc{
		pid:      cmd.Process.Pid,
		path:     t.TempDir(),
		done:     done,
		markDone: markDone,
	}
	s.mu.Unlock()
	return cmd
}

func withTimeout(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestTaskService_UnknownTask(t *testing.T) {
	s := newTaskService(&countingShutdown{})
	ctx := context.Background()

	_, err := s.State(ctx, &taskAPI.StateRequest{ID: "missing"})
	utils.Assert(t, errdefs.IsNotFound(err), "expected a not found error from State")
	_, err = s.Delete(ctx, &taskAPI.DeleteRequest{ID: "missing"})
	utils.Assert(t, errdefs.IsNotFound(err), "expected a not found error from Delete")
	_, err = s.Wait(ctx, &taskAPI.WaitRequest{ID: "missing"})
	utils.Assert(t, errdefs.IsNotFound(err), "expected a not found error from Wait")
	_, err = s.Kill(ctx, &taskAPI.KillRequest{ID: "missing"})
	utils.Assert(t, errdefs.IsNotFound(err), "expected a not found error from Kill")
}

func TestTaskService_DeleteRunning(t *testing.T) {
	s := newTaskService(&countingShutdown{})
	cmd := startProc(t, s, "task", "sleep", "10")
	go s.watch(context.Background(), "task", cmd)

	_, err := s.Delete(context.Background(), &taskAPI.DeleteRequest{ID: "task"})
	utils.Assert(t, errdefs.IsFailedPrecondition(err), "expected a failed precondition error")

	state, err := s.State(context.Background(), &taskAPI.StateRequest{ID: "task"})
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, state.Status, tasktypes.Status_RUNNING)
}

func TestTaskService_WatchRecordsExit(t *testing.T) {
	sd := &countingShutdown{}
	s := newTaskService(sd)
	cmd := startProc(t, s, "task", "sh", "-c", "exit 3")
	s.watch(context.Background(), "task", cmd)

	resp, err := s.Wait(withTimeout(t), &taskAPI.WaitRequest{ID: "task"})
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, resp.ExitStatus, uint32(3))
	utils.AssertEqual(t, sd.calls.Load(), int32(1))

	state, err := s.State(context.Background(), &taskAPI.StateRequest{ID: "task"})
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, state.Status, tasktypes.Status_STOPPED)

	deleted, err := s.Delete(context.Background(), &taskAPI.DeleteRequest{ID: "task"})
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, deleted.ExitStatus, uint32(3))
	_, err = s.State(context.Background(), &taskAPI.StateRequest{ID: "task"})
	utils.Assert(t, errdefs.IsNotFound(err), "expected the task to be gone")
}

func TestTaskService_WatchWaitsForAllTasks(t *testing.T) {
	sd := &countingShutdown{}
	s := newTaskService(sd)
	running := startProc(t, s, "running", "sleep", "10")
	go s.watch(context.Background(), "running", running)
	finished := startProc(t, s, "finished", "true")
	s.watch(context.Background(), "finished", finished)

	utils.AssertEqual(t, sd.calls.Load(), int32(0))

	_, err := s.Kill(withTimeout(t), &taskAPI.KillRequest{ID: "running", Signal: uint32(syscall.SIGKILL)})
	utils.AssertNoError(t, err)
	resp, err := s.Wait(withTimeout(t), &taskAPI.WaitRequest{ID: "running"})
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, resp.ExitStatus, uint32(exitCodeSignal+int(syscall.SIGKILL)))
	utils.AssertEqual(t, sd.calls.Load(), int32(1))
}

func TestTaskService_KillStoppedTask(t *testing.T) {
	s := newTaskService(&countingShutdown{})
	cmd := startProc(t, s, "task", "sleep", "10")
	if err := syscall.Kill(cmd.Process.Pid, syscall.SIGSTOP); err != nil {
		t.Fatal(err)
	}
	go s.watch(context.Background(), "task", cmd)

	_, err := s.Kill(withTimeout(t), &taskAPI.KillRequest{ID: "task", Signal: uint32(syscall.SIGTERM)})
	utils.AssertNoError(t, err)
	resp, err := s.Wait(withTimeout(t), &taskAPI.WaitRequest{ID: "task"})
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, resp.ExitStatus, uint32(exitCodeSignal+int(syscall.SIGTERM)))
}

func TestExitStatus(t *testing.T) {
	cmd := exec.Command("sleep", "10")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Process.Signal(syscall.SIGKILL); err != nil {
		t.Fatal(err)
	}
	cmd.Wait()
	utils.AssertEqual(t, exitStatus(context.Background(), cmd), exitCodeSignal+int(syscall.SIGKILL))

	cmd = exec.Command("sh", "-c", "exit 7")
	cmd.Run()
	utils.AssertEqual(t, exitStatus(context.Background(), cmd), 7)

	utils.AssertEqual(t, exitStatus(context.Background(), exec.Command("true")), 255)
}
