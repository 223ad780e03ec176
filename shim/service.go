package shim

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"

	taskAPI "github.com/containerd/containerd/api/runtime/task/v2"
	tasktypes "github.com/containerd/containerd/api/types/task"
	"github.com/containerd/containerd/protobuf"
	ptypes "github.com/containerd/containerd/v2/pkg/protobuf/types"
	"github.com/containerd/containerd/v2/pkg/shim"
	"github.com/containerd/containerd/v2/pkg/shutdown"
	"github.com/containerd/containerd/v2/plugins"
	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	"github.com/containerd/plugin"
	"github.com/containerd/plugin/registry"
	"github.com/containerd/ttrpc"
	"google.golang.org/protobuf/types/known/anypb"
)

// InterpreterArg is the argument that makes the shim binary act as the
// interpreter instead of serving the task API.
const InterpreterArg = "brainfuck"

// The interpreter is started suspended so that Create can return its pid
// and Start can let it run.
const startStoppedScript = `#!/bin/sh
kill -STOP $$
exec "$@"
`

func init() {
	registry.Register(&plugin.Registration{
		Type: plugins.TTRPCPlugin,
		ID:   "task",
		Requires: []plugin.Type{
			plugins.InternalPlugin,
		},
		InitFn: func(ic *plugin.InitContext) (interface{}, error) {
			ss, err := ic.GetByID(plugins.InternalPlugin, "shutdown")
			if err != nil {
				return nil, err
			}
			return newTaskService(ss.(shutdown.Service)), nil
		},
	})
}

type taskService struct {
	mu       sync.RWMutex
	procs    map[string]*proc
	shutdown shutdown.Service
}

func newTaskService(sd shutdown.Service) *taskService {
	return &taskService{
		procs:    make(map[string]*proc, 1),
		shutdown: sd,
	}
}

var (
	_ = shim.TTRPCService(&taskService{})
	_ = taskAPI.TaskService(&taskService{})
)

// RegisterTTRPC allows TTRPC services to be registered with the underlying server
func (s *taskService) RegisterTTRPC(server *ttrpc.Server) error {
	taskAPI.RegisterTaskService(server, s)
	return nil
}

// lookup must be called with s.mu held.
func (s *taskService) lookup(id string) (*proc, error) {
	p, ok := s.procs[id]
	if !ok {
		return nil, fmt.Errorf("task %s not created: %w", id, errdefs.ErrNotFound)
	}
	return p, nil
}

func (s *taskService) doneContext(id string) (context.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return p.done, nil
}

// Create a new container
func (s *taskService) Create(ctx context.Context, r *taskAPI.CreateTaskRequest) (*taskAPI.CreateTaskResponse, error) {
	logger := log.G(ctx).WithField("id", r.ID)
	logger.Debug("create")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.procs[r.ID]; ok {
		return nil, errdefs.ErrAlreadyExists
	}

	bundle, err := ReadBundle(r.Bundle)
	if err != nil {
		return nil, fmt.Errorf("reading bundle: %w", err)
	}
	logger.WithField("script", bundle.Script()).Debugf("interpreter config %+v", bundle.Machine)

	script := filepath.Join(r.Bundle, "start-stopped.sh")
	if err := os.WriteFile(script, []byte(startStoppedScript), 0755); err != nil {
		return nil, fmt.Errorf("writing start-stopped.sh: %w", err)
	}
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("getting executable of current process: %w", err)
	}

	args := append([]string{script, self, InterpreterArg}, bundle.Args()...)
	cmd := exec.Command("/bin/sh", args...)
	cmd.WaitDelay = commandWaitDelay

	streams := stdio{stdin: r.Stdin, stdout: r.Stdout, stderr: r.Stderr}
	cleanup, err := streams.connect(ctx, cmd)
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		cleanup()
		return nil, fmt.Errorf("running interpreter: %w", err)
	}
	pid := cmd.Process.Pid

	if err := writePidFile(r.ID, pid); err != nil {
		logger.WithError(err).Warn("failed to write pid file")
	}

	done, markDone := context.WithCancel(context.Background())
	s.procs[r.ID] = &proc{
		pid:      pid,
		path:     r.Bundle,
		bundle:   bundle,
		stdio:    streams,
		done:     done,
		markDone: markDone,
	}
	go s.watch(log.WithLogger(context.Background(), logger), r.ID, cmd)

	return &taskAPI.CreateTaskResponse{
		Pid: uint32(pid),
	}, nil
}

// Start the primary user process inside the container
func (s *taskService) Start(ctx context.Context, r *taskAPI.StartRequest) (*taskAPI.StartResponse, error) {
	log.G(ctx).WithField("id", r.ID).Debug("start")

	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := s.lookup(r.ID)
	if err != nil {
		return nil, err
	}

	if err := syscall.Kill(p.pid, syscall.SIGCONT); err != nil {
		return nil, fmt.Errorf("resuming interpreter process %d: %w", p.pid, err)
	}
	return &taskAPI.StartResponse{
		Pid: uint32(p.pid),
	}, nil
}

// Delete a process or container
func (s *taskService) Delete(ctx context.Context, r *taskAPI.DeleteRequest) (*taskAPI.DeleteResponse, error) {
	log.G(ctx).WithField("id", r.ID).Debug("delete")

	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.lookup(r.ID)
	if err != nil {
		return nil, err
	}
	if !p.exited() {
		return nil, errdefs.ErrFailedPrecondition.WithMessage(fmt.Sprintf("interpreter process %d is not done yet", p.pid))
	}
	delete(s.procs, r.ID)

	return &taskAPI.DeleteResponse{
		Pid:        uint32(p.pid),
		ExitStatus: uint32(p.exitStatus),
		ExitedAt:   protobuf.ToTimestamp(p.exitTime),
	}, nil
}

// Exec an additional process inside the container
func (s *taskService) Exec(ctx context.Context, r *taskAPI.ExecProcessRequest) (*ptypes.Empty, error) {
	return nil, errdefs.ErrNotImplemented.WithMessage("Exec (task)")
}

// ResizePty of a process
func (s *taskService) ResizePty(ctx context.Context, r *taskAPI.ResizePtyRequest) (*ptypes.Empty, error) {
	return &ptypes.Empty{}, nil
}

// State returns runtime state of a process
func (s *taskService) State(ctx context.Context, r *taskAPI.StateRequest) (*taskAPI.StateResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := s.lookup(r.ID)
	if err != nil {
		return nil, err
	}
	log.G(ctx).WithField("id", r.ID).Debugf("state %s", p)

	status := tasktypes.Status_RUNNING
	if p.exited() {
		status = tasktypes.Status_STOPPED
	}
	return &taskAPI.StateResponse{
		ID:         r.ID,
		Bundle:     p.path,
		Pid:        uint32(p.pid),
		Status:     status,
		Stdin:      p.stdio.stdin,
		Stdout:     p.stdio.stdout,
		Stderr:     p.stdio.stderr,
		ExitStatus: uint32(p.exitStatus),
		ExitedAt:   protobuf.ToTimestamp(p.exitTime),
	}, nil
}

// Pause the container
func (s *taskService) Pause(ctx context.Context, r *taskAPI.PauseRequest) (*ptypes.Empty, error) {
	return nil, errdefs.ErrNotImplemented.WithMessage("Pause (task)")
}

// Resume the container
func (s *taskService) Resume(ctx context.Context, r *taskAPI.ResumeRequest) (*ptypes.Empty, error) {
	return nil, errdefs.ErrNotImplemented.WithMessage("Resume (task)")
}

// Kill a process
func (s *taskService) Kill(ctx context.Context, r *taskAPI.KillRequest) (*ptypes.Empty, error) {
	logger := log.G(ctx).WithField("id", r.ID)
	logger.Debugf("kill signal %d", r.Signal)

	sig := syscall.Signal(r.Signal)
	if sig == 0 {
		sig = syscall.SIGKILL
	}
	done, err := s.signal(r.ID, sig)
	if err != nil {
		logger.WithError(err).Error("failed to kill interpreter process")
		return nil, err
	}
	if done == nil {
		logger.Warn("task already exited")
		return &ptypes.Empty{}, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done.Done():
	}
	return &ptypes.Empty{}, nil
}

// signal sends sig to the interpreter of task id. It returns the done
// context of the process, or nil if it has already exited.
func (s *taskService) signal(id string, sig syscall.Signal) (context.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if p.exited() {
		return nil, nil
	}
	if p.pid > 0 {
		// signal 0 checks that the pid is still valid
		if err := syscall.Kill(p.pid, 0); err == nil {
			if err := syscall.Kill(p.pid, sig); err != nil {
				return nil, fmt.Errorf("sending %s to interpreter process: %w", sig, err)
			}
			// tasks are created stopped and only SIGKILL is acted on
			// before they continue
			if sig != syscall.SIGKILL && sig != syscall.SIGSTOP {
				if err := syscall.Kill(p.pid, syscall.SIGCONT); err != nil {
					return nil, fmt.Errorf("resuming interpreter process: %w", err)
				}
			}
		}
	}
	return p.done, nil
}

// Pids returns all pids inside the container
func (s *taskService) Pids(ctx context.Context, r *taskAPI.PidsRequest) (*taskAPI.PidsResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := s.lookup(r.ID)
	if err != nil {
		return nil, err
	}
	return &taskAPI.PidsResponse{
		Processes: []*tasktypes.ProcessInfo{{Pid: uint32(p.pid)}},
	}, nil
}

// CloseIO of a process
func (s *taskService) CloseIO(ctx context.Context, r *taskAPI.CloseIORequest) (*ptypes.Empty, error) {
	return nil, errdefs.ErrNotImplemented.WithMessage("CloseIO (task)")
}

// Checkpoint the container
func (s *taskService) Checkpoint(ctx context.Context, r *taskAPI.CheckpointTaskRequest) (*ptypes.Empty, error) {
	return nil, errdefs.ErrNotImplemented.WithMessage("Checkpoint (task)")
}

// Connect returns shim information of the underlying service
func (s *taskService) Connect(ctx context.Context, r *taskAPI.ConnectRequest) (*taskAPI.ConnectResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := s.lookup(r.ID)
	if err != nil {
		return nil, err
	}
	return &taskAPI.ConnectResponse{
		ShimPid: uint32(os.Getpid()),
		TaskPid: uint32(p.pid),
	}, nil
}

// Shutdown is called after the underlying resources of the shim are cleaned up and the service can be stopped
func (s *taskService) Shutdown(ctx context.Context, r *taskAPI.ShutdownRequest) (*ptypes.Empty, error) {
	log.G(ctx).Debug("shutdown")
	s.shutdown.Shutdown()
	return &ptypes.Empty{}, nil
}

// Stats returns container level system stats for a container and its processes
func (s *taskService) Stats(ctx context.Context, r *taskAPI.StatsRequest) (*taskAPI.StatsResponse, error) {
	return &taskAPI.StatsResponse{
		Stats: &anypb.Any{},
	}, nil
}

// Update the live container
func (s *taskService) Update(ctx context.Context, r *taskAPI.UpdateTaskRequest) (*ptypes.Empty, error) {
	return nil, errdefs.ErrNotImplemented.WithMessage("Update (task)")
}

// Wait for a process to exit
func (s *taskService) Wait(ctx context.Context, r *taskAPI.WaitRequest) (*taskAPI.WaitResponse, error) {
	done, err := s.doneContext(r.ID)
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done.Done():
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := s.lookup(r.ID)
	if err != nil {
		return nil, fmt.Errorf("task was removed: %w", err)
	}
	return &taskAPI.WaitResponse{
		ExitStatus: uint32(p.exitStatus),
		ExitedAt:   protobuf.ToTimestamp(p.exitTime),
	}, nil
}
