// Package tracker implements the per-target state machine the engine
// drives as files compile and targets link: a small set of atomic
// fields, each written by exactly one kind of event, with the "last
// writer" — whoever's decrement brings a counter to zero — solely
// responsible for the resulting transition.
package tracker

import (
	"sync/atomic"

	"cbuild/project"
)

type CompileStatus uint32

const (
	Compiling CompileStatus = iota
	CompileFailed
	CompileSuccess
)

type LinkStatus uint32

const (
	Waiting LinkStatus = iota
	Linking
	LinkFailed
	LinkSuccess
)

type UpstreamStatus uint32

const (
	UpstreamIgnore UpstreamStatus = iota
	UpstreamUpdated
	UpstreamFailed
)

// Tracker holds one target's mutable build state. All fields are
// accessed exclusively through atomic operations; there is no mutex.
type Tracker struct {
	Target *project.Target

	compileStatus  atomic.Uint32
	linkStatus     atomic.Uint32
	upstreamStatus atomic.Uint32

	skippedCounter  atomic.Uint32
	filesPending    atomic.Int32
	waitingOn       atomic.Int32
	needsLinking    atomic.Bool
}

// New creates a Tracker for target, seeding the countdown fields from
// its file and upstream-dependency counts.
func New(target *project.Target) *Tracker {
	t := &Tracker{Target: target}
	t.compileStatus.Store(uint32(Compiling))
	t.linkStatus.Store(uint32(Waiting))
	t.upstreamStatus.Store(uint32(UpstreamIgnore))
	t.filesPending.Store(int32(len(target.Sources)))
	t.waitingOn.Store(int32(len(target.DependsOn)))
	t.needsLinking.Store(true)
	return t
}

func (t *Tracker) CompileStatus() CompileStatus { return CompileStatus(t.compileStatus.Load()) }
func (t *Tracker) LinkStatus() LinkStatus       { return LinkStatus(t.linkStatus.Load()) }
func (t *Tracker) UpstreamStatus() UpstreamStatus {
	return UpstreamStatus(t.upstreamStatus.Load())
}
func (t *Tracker) NeedsLinking() bool { return t.needsLinking.Load() }
func (t *Tracker) SkippedCount() uint32 { return t.skippedCounter.Load() }

// RecordFileSkipped increments the skipped-file counter for a file the
// engine decided did not need recompiling.
func (t *Tracker) RecordFileSkipped() {
	t.skippedCounter.Add(1)
}

// SetNeedsLinking publishes whether the target must be relinked. Called
// once per build: by the thread that observes FinishFile's last-writer
// condition, or by the engine's initial seeding for a target it resolves
// without compiling.
func (t *Tracker) SetNeedsLinking(v bool) {
	t.needsLinking.Store(v)
}

// MarkCompileFailed transitions both compile and link status to Failed.
// Mirrors compile_file's behaviour of setting link_status directly so no
// link attempt is ever made for a target with a failed compile.
func (t *Tracker) MarkCompileFailed() {
	t.linkStatus.Store(uint32(LinkFailed))
	t.compileStatus.Store(uint32(CompileFailed))
}

// FinishCompileSuccess performs the release-ordered publish of a
// successful compile phase. Callers must only invoke this once, from the
// thread whose FinishFile call observed the pending-files counter reach
// zero, or from the engine's initial seeding for a target it resolves
// without compiling.
func (t *Tracker) FinishCompileSuccess() {
	t.compileStatus.Store(uint32(CompileSuccess))
}

// FinishFile decrements the pending-files counter for a completed
// compile and reports whether this call was the one that brought it to
// zero — the "last writer" responsible for finishing the compile phase.
func (t *Tracker) FinishFile() (isLastFile bool) {
	return t.filesPending.Add(-1) == 0
}

// BeginLink attempts the Waiting -> Linking transition, returning false
// if another goroutine already claimed it or a prior stage failed.
func (t *Tracker) BeginLink() bool {
	return t.linkStatus.CompareAndSwap(uint32(Waiting), uint32(Linking))
}

func (t *Tracker) FinishLinkSuccess() { t.linkStatus.Store(uint32(LinkSuccess)) }
func (t *Tracker) FinishLinkFailed()  { t.linkStatus.Store(uint32(LinkFailed)) }

// ReadyToLink reports whether every upstream dependency has already
// resolved (waitingOn counter at zero) and the compile phase has
// finished, successfully or not.
func (t *Tracker) ReadyToLink() bool {
	return t.waitingOn.Load() == 0 && t.CompileStatus() != Compiling
}

// WaitingOn returns the current count of upstream dependencies that
// have not yet resolved.
func (t *Tracker) WaitingOn() int32 { return t.waitingOn.Load() }

// ResolveUpstream decrements the waiting-on counter for one upstream
// dependency finishing, reporting whether this call was the last one
// (all upstreams resolved) and thus responsible for submitting this
// target's link task.
func (t *Tracker) ResolveUpstream(upstreamFailed bool) (isLastUpstream bool) {
	if upstreamFailed {
		t.upstreamStatus.CompareAndSwap(uint32(UpstreamIgnore), uint32(UpstreamFailed))
	} else {
		t.upstreamStatus.CompareAndSwap(uint32(UpstreamIgnore), uint32(UpstreamUpdated))
	}
	return t.waitingOn.Add(-1) == 0
}

// Snapshot is a point-in-time, non-atomic copy for UI/logging consumers.
type Snapshot struct {
	Name    string
	Compile CompileStatus
	Link    LinkStatus
}

func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{Name: t.Target.Name, Compile: t.CompileStatus(), Link: t.LinkStatus()}
}
