package runner

import (
	"context"
	"sync"
)

// Invocation records one call made against a MockRunner.
type Invocation struct {
	Path string
	Args []string
}

// MockRunner is a test double for Runner: it records every invocation
// and returns a caller-configured result.
type MockRunner struct {
	mu          sync.Mutex
	Invocations []Invocation
	Result      *Result
	Err         error
}

func (m *MockRunner) Run(_ context.Context, cmd *Command) (*Result, error) {
	m.mu.Lock()
	m.Invocations = append(m.Invocations, Invocation{Path: cmd.Path, Args: cmd.Args})
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if m.Result != nil {
		return m.Result, nil
	}
	return &Result{ExitCode: 0}, nil
}
