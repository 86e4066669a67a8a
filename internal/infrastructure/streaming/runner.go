package streaming

import (
	"fmt"
	"io"
	"os"
	"os/exec"
)

// ProcessHandle is one running encoder process. The manager owns it
// exclusively; nothing else signals or writes to it.
type ProcessHandle interface {
	Stdin() io.WriteCloser
	Stderr() io.Reader
	Signal(sig os.Signal) error
	Wait() error
}

// ProcessRunner spawns encoder processes. Arguments are always passed as a
// discrete vector, never through a shell.
type ProcessRunner interface {
	Start(name string, args []string) (ProcessHandle, error)
}

type execRunner struct{}

// NewExecRunner returns the os/exec backed runner used in production.
func NewExecRunner() ProcessRunner {
	return execRunner{}
}

func (execRunner) Start(name string, args []string) (ProcessHandle, error) {
	cmd := exec.Command(name, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start encoder: %w", err)
	}

	return &execHandle{cmd: cmd, stdin: stdin, stderr: stderr}, nil
}

type execHandle struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr io.ReadCloser
}

func (h *execHandle) Stdin() io.WriteCloser {
	return h.stdin
}

func (h *execHandle) Stderr() io.Reader {
	return h.stderr
}

func (h *execHandle) Signal(sig os.Signal) error {
	if h.cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	return h.cmd.Process.Signal(sig)
}

func (h *execHandle) Wait() error {
	return h.cmd.Wait()
}
