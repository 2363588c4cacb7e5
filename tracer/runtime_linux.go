// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tracer implements a ptrace(2)-based syscall interception loop
// that redirects a guest process's filesystem syscalls into a Mount
// Table instead of the host kernel: intercept at a well-defined
// boundary, decode the call, dispatch it to a capability interface, and
// hand the kernel back a result it never actually computed.
package tracer

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"

	"agentfs/internal/logger"
	"agentfs/store"
	"agentfs/vfs"

	"golang.org/x/sys/unix"
)

// taskState is the per-traced-task bookkeeping the shim threads through
// the wait loop: its virtual fd table and its guest-visible working
// directory.
type taskState struct {
	fds *fdTable
	cwd string
}

// Runtime is one guest invocation's worth of state: the Mount Table every
// task's path-bearing syscalls resolve against, the backing stores to
// close on shutdown, and the per-task bookkeeping built up as tasks are
// observed.
type Runtime struct {
	mounts *vfs.MountTable
	stores []*store.Store
	tracer *taskTracer

	mu      sync.Mutex
	tasks   map[int]*taskState
	pending map[int]int64 // pid -> return value computed at syscall-entry, applied at syscall-exit
}

// NewRuntime constructs a Runtime around an already-built Mount Table.
// traceOut receives strace-style lines when strace is true; pass io.Discard
// and false to disable tracing entirely.
func NewRuntime(mounts *vfs.MountTable, stores []*store.Store, strace bool, traceOut io.Writer) *Runtime {
	if traceOut == nil {
		traceOut = io.Discard
	}
	return &Runtime{
		mounts:  mounts,
		stores:  stores,
		tracer:  newTaskTracer(traceOut, strace),
		tasks:   make(map[int]*taskState),
		pending: make(map[int]int64),
	}
}

// Close releases every backing store opened for this runtime's mounts.
func (rt *Runtime) Close() error {
	var firstErr error
	for _, s := range rt.stores {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (rt *Runtime) newTask(pid int, cwd string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.tasks[pid] = &taskState{fds: newFDTable(), cwd: cwd}
}

func (rt *Runtime) cloneTask(parentPid, childPid int) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	parent, ok := rt.tasks[parentPid]
	if !ok {
		rt.tasks[childPid] = &taskState{fds: newFDTable(), cwd: "/"}
		return
	}
	rt.tasks[childPid] = &taskState{fds: parent.fds.clone(), cwd: parent.cwd}
}

func (rt *Runtime) forgetTask(pid int) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.tasks, pid)
	delete(rt.pending, pid)
	rt.tracer.forget(pid)
}

func (rt *Runtime) task(pid int) *taskState {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	ts, ok := rt.tasks[pid]
	if !ok {
		ts = &taskState{fds: newFDTable(), cwd: "/"}
		rt.tasks[pid] = ts
	}
	return ts
}

func (rt *Runtime) taskFDs(pid int) *fdTable {
	return rt.task(pid).fds
}

func (rt *Runtime) taskCwd(pid int) string {
	return rt.task(pid).cwd
}

func (rt *Runtime) setTaskCwd(pid int, cwd string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if ts, ok := rt.tasks[pid]; ok {
		ts.cwd = cwd
	}
}

// ptrace options enabled for every traced task: report syscall-stops
// unambiguously (TRACESYSGOOD), and auto-attach to children created by
// clone/fork/vfork so multi-threaded and forking guests stay fully
// intercepted.
const traceOpts = unix.PTRACE_O_TRACESYSGOOD |
	unix.PTRACE_O_TRACECLONE |
	unix.PTRACE_O_TRACEFORK |
	unix.PTRACE_O_TRACEVFORK |
	unix.PTRACE_O_TRACEEXIT |
	unix.PTRACE_O_TRACEEXEC

// syscallStopSignal is the value wait4 reports for a syscall-stop once
// PTRACE_O_TRACESYSGOOD is set: SIGTRAP with the high bit set, distinct
// from every ordinary signal-delivery-stop.
const syscallStopSignal = syscall.SIGTRAP | 0x80

// Run spawns name with args under ptrace, services every handled syscall
// against the Mount Table, and returns the guest's exit code once its
// root task exits.
func (rt *Runtime) Run(ctx context.Context, name string, args []string) (int, error) {
	// Every ptrace relationship is between a specific tracer thread and
	// its tracee; the Go scheduler is otherwise free to move this
	// goroutine across OS threads between calls, which would make every
	// PtraceGetRegs/SetRegs/Syscall/Wait4 below target the wrong thread
	// or fail with ESRCH. Pin this goroutine to the thread that starts
	// the guest for the lifetime of the wait loop.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	cmd := exec.Command(name, args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("tracer: starting guest: %w", err)
	}
	rootPid := cmd.Process.Pid

	var ws unix.WaitStatus
	if _, err := unix.Wait4(rootPid, &ws, 0, nil); err != nil {
		return -1, fmt.Errorf("tracer: waiting for initial stop: %w", err)
	}
	if err := unix.PtraceSetOptions(rootPid, traceOpts); err != nil {
		return -1, fmt.Errorf("tracer: setting ptrace options: %w", err)
	}

	log := logger.For("tracer")
	log.InfoContext(ctx, "guest started", "pid", rootPid, "cmd", name)

	rt.newTask(rootPid, mustGetwd())
	entering := map[int]bool{rootPid: true}

	if err := unix.PtraceSyscall(rootPid, 0); err != nil {
		return -1, fmt.Errorf("tracer: resuming guest: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			unix.Kill(rootPid, unix.SIGKILL)
			return -1, ctx.Err()
		default:
		}

		var status unix.WaitStatus
		wpid, err := unix.Wait4(-1, &status, 0, nil)
		if err != nil {
			if err == unix.ECHILD {
				return -1, fmt.Errorf("tracer: guest's tasks exited without reporting a status")
			}
			log.ErrorContext(ctx, "wait4 failed", "err", err)
			return -1, fmt.Errorf("tracer: wait4: %w", err)
		}

		switch {
		case status.Exited():
			rt.forgetTask(wpid)
			delete(entering, wpid)
			if wpid == rootPid {
				log.InfoContext(ctx, "guest exited", "pid", wpid, "code", status.ExitStatus())
				return status.ExitStatus(), nil
			}
			continue

		case status.Signaled():
			rt.forgetTask(wpid)
			delete(entering, wpid)
			if wpid == rootPid {
				log.ErrorContext(ctx, "guest killed by signal", "pid", wpid, "signal", status.Signal())
				return -1, fmt.Errorf("tracer: guest killed by signal %s", status.Signal())
			}
			continue

		case status.Stopped():
			rt.handleStop(wpid, status, entering)
		}
	}
}

func (rt *Runtime) handleStop(pid int, status unix.WaitStatus, entering map[int]bool) {
	sig := status.StopSignal()
	cause := status.TrapCause()

	switch {
	case cause == unix.PTRACE_EVENT_CLONE || cause == unix.PTRACE_EVENT_FORK || cause == unix.PTRACE_EVENT_VFORK:
		if msg, err := unix.PtraceGetEventMsg(pid); err == nil {
			childPid := int(msg)
			rt.cloneTask(pid, childPid)
			entering[childPid] = true
		}
		unix.PtraceSyscall(pid, 0)

	case cause == unix.PTRACE_EVENT_EXIT:
		unix.PtraceSyscall(pid, 0)

	case cause == unix.PTRACE_EVENT_EXEC:
		rt.taskFDs(pid).closeExecVictims()
		unix.PtraceSyscall(pid, 0)

	case sig == syscallStopSignal:
		isEntry := entering[pid]
		entering[pid] = !isEntry
		if isEntry {
			rt.handleSyscallEntry(pid)
		} else {
			rt.handleSyscallExit(pid)
		}
		unix.PtraceSyscall(pid, 0)

	default:
		deliver := 0
		if sig != unix.SIGTRAP {
			deliver = int(sig)
		}
		unix.PtraceSyscall(pid, deliver)
	}
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "/"
	}
	return wd
}
