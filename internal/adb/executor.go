package adb

import (
	"context"
	"os/exec"
)

// Executor abstracts process execution so that device output can be scripted
// in tests.
type Executor interface {
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execExecutor struct{}

// NewExecExecutor returns an Executor backed by os/exec.
func NewExecExecutor() Executor {
	return execExecutor{}
}

// Execute returns stdout. A non-zero exit yields *exec.ExitError carrying
// stderr.
func (execExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.Output()
}
