package minipm

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Executor provides a consistent interface for executing external commands,
// abstracting away the privilege-emulation (fakeroot) wrapping. fakeroot lets
// unprivileged builds record root ownership in staged trees and archives; it
// does not grant real privileges.
type Executor struct {
	Context     context.Context // the context to use for cancellation
	UseFakeroot bool            // wrap the command in the fakeroot tool
	Interactive bool            // attach the command to the caller's TTY
	Stdout      io.Writer       // optional stdout override (e.g. a build log)
	Stderr      io.Writer       // optional stderr override
}

// Run executes the given command, wrapping it in fakeroot when requested.
// It wires up stdio and isolates the child in its own process group so
// context cancellation can kill the whole tree.
func (e *Executor) Run(cmd *exec.Cmd) error {
	// --- Phase 0: wire up stdio ---
	if cmd.Stdout == nil {
		if e.Stdout != nil {
			cmd.Stdout = e.Stdout
		} else {
			cmd.Stdout = os.Stdout
		}
	}
	if cmd.Stderr == nil {
		if e.Stderr != nil {
			cmd.Stderr = e.Stderr
		} else {
			cmd.Stderr = os.Stderr
		}
	}

	// --- Phase 1: build the final command ---
	var finalCmd *exec.Cmd

	basePath := cmd.Path
	baseArgs := cmd.Args[1:]

	if e.UseFakeroot && os.Geteuid() != 0 {
		if _, err := exec.LookPath(fakerootTool); err != nil {
			return fmt.Errorf("required tool %q not found in PATH: %w", fakerootTool, err)
		}
		args := append([]string{"--", basePath}, baseArgs...)
		finalCmd = exec.CommandContext(e.Context, fakerootTool, args...)
	} else {
		// Already root, or plain user command: no wrapper needed.
		finalCmd = exec.CommandContext(e.Context, basePath, baseArgs...)
	}
	finalCmd.Dir = cmd.Dir

	// preserve or inherit the environment
	if len(cmd.Env) > 0 {
		finalCmd.Env = cmd.Env
	} else {
		finalCmd.Env = os.Environ()
	}

	// carry over stdio
	finalCmd.Stdin = cmd.Stdin
	finalCmd.Stdout = cmd.Stdout
	finalCmd.Stderr = cmd.Stderr

	// --- Phase 2: isolate process group for context-based cleanup ---
	if !e.Interactive {
		finalCmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	// --- Phase 3: start and watch for cancel ---
	if err := finalCmd.Start(); err != nil {
		return fmt.Errorf("failed to start command: %w", err)
	}

	if !e.Interactive {
		pgid := finalCmd.Process.Pid

		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-e.Context.Done():
				syscall.Kill(-pgid, syscall.SIGKILL)
			case <-done:
			}
		}()
	}

	// --- Phase 4: wait and return ---
	if waitErr := finalCmd.Wait(); waitErr != nil {
		if e.Context.Err() != nil {
			time.Sleep(100 * time.Millisecond)
			return fmt.Errorf("command aborted: %v", e.Context.Err())
		}
		return waitErr
	}
	return nil
}
