package ui

import (
	"fmt"
	"sync"
)

// Stdout is the fallback UI: a single carriage-return-rewritten progress
// line for terminals that can't host the full dashboard.
type Stdout struct {
	mu sync.Mutex
}

func NewStdout() *Stdout { return &Stdout{} }

func (u *Stdout) Start() error { return nil }

func (u *Stdout) Stop() {
	fmt.Println()
}

func (u *Stdout) Update(p Progress) {
	u.mu.Lock()
	defer u.mu.Unlock()
	done := p.Compiled + p.Failed
	fmt.Printf("\r%-80s", fmt.Sprintf("Progress: %d/%d compiled, %d linked, %d failed — %s elapsed",
		done, p.Total, p.Linked, p.Failed, p.Elapsed))
}

func (u *Stdout) LogEvent(target, message string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	fmt.Printf("\r%-80s\n", fmt.Sprintf("[%s] %s", target, message))
}
