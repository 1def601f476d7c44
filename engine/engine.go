// Package engine implements the task engine: the worker pool that pulls
// Compile and Link tasks off a queue.Queue and drives each target's
// tracker.Tracker through its state machine.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"cbuild/buildlog"
	"cbuild/project"
	"cbuild/queue"
	"cbuild/registry"
	"cbuild/runner"
	"cbuild/scanner"
	"cbuild/tracker"
)

// Engine owns the task queue and trackers for one build run.
type Engine struct {
	Project  *project.Project
	Queue    *queue.Queue
	Runner   runner.Runner
	FS       scanner.FileSystem
	Registry *registry.Registry
	Updates  *registry.UpdateSet
	Logger   *buildlog.Logger

	trackers map[string]*tracker.Tracker
	order    []*tracker.Tracker

	failed atomic.Bool
}

// New builds an Engine for project p, sizing the task queue for the
// worst case of one task per source file plus one link task per target.
func New(p *project.Project, rt runner.Runner, fs scanner.FileSystem, reg *registry.Registry, updates *registry.UpdateSet, logger *buildlog.Logger) *Engine {
	totalFiles := 0
	for _, t := range p.Targets {
		totalFiles += len(t.Sources)
	}
	e := &Engine{
		Project:  p,
		Queue:    queue.New(len(p.Targets) + totalFiles),
		Runner:   rt,
		FS:       fs,
		Registry: reg,
		Updates:  updates,
		Logger:   logger,
		trackers: make(map[string]*tracker.Tracker, len(p.Targets)),
	}
	for _, t := range p.Targets {
		tr := tracker.New(t)
		e.trackers[t.Name] = tr
		e.order = append(e.order, tr)
	}
	return e
}

// Trackers returns every target's tracker, in project order, for
// snapshotting by the driver/UI.
func (e *Engine) Trackers() []*tracker.Tracker { return e.order }

// Failed reports whether any target has failed to compile or link.
func (e *Engine) Failed() bool { return e.failed.Load() }

// BuilderCount returns clamp(requested, 1, NumCPU) - 1, the number of
// extra worker goroutines to spawn alongside the main thread draining
// the queue.
func BuilderCount(requested int) int {
	cpu := runtime.NumCPU()
	if requested <= 0 {
		requested = cpu
	}
	if requested > cpu {
		requested = cpu
	}
	if requested < 1 {
		requested = 1
	}
	return requested - 1
}

// SubmitInitialTasks enqueues one Compile task per source file for every
// requested target that has files. A target with zero files, or one
// excluded from a targeted build (requested is non-empty and doesn't
// name it), is resolved immediately as already-linked so it never
// starves its downstream targets. Its previous file segment is copied
// verbatim into the update set first, so a flush at the end of this run
// doesn't erase the incremental state of a target the build never
// touched.
func (e *Engine) SubmitInitialTasks(requested []string) {
	wanted := targetSet(requested)
	for _, t := range e.Project.Targets {
		tr := e.trackers[t.Name]
		if len(t.Sources) == 0 || !wanted(t.Name) {
			e.Updates.CopySegment(t.Name, e.Registry)
			tr.FinishCompileSuccess()
			tr.SetNeedsLinking(false)
			tr.FinishLinkSuccess()
			e.resolveDownstream(t.Name, false)
			continue
		}
		for _, src := range t.Sources {
			e.Queue.Submit(queue.Task{Type: queue.Compile, Tracker: tr, File: src})
		}
	}
}

func targetSet(names []string) func(string) bool {
	if len(names) == 0 {
		return func(string) bool { return true }
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(n string) bool { return set[n] }
}

// Run drains the queue on the calling goroutine plus extraWorkers
// background goroutines, returning once every submitted task (including
// tasks submitted by other tasks, e.g. Link-after-Compile) has
// completed.
func (e *Engine) Run(ctx context.Context, extraWorkers int) {
	var wg sync.WaitGroup
	for i := 0; i < extraWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.drain(ctx)
		}()
	}
	e.drain(ctx)
	wg.Wait()
}

func (e *Engine) drain(ctx context.Context) {
	for e.Queue.HasUnfinishedTasks() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		task, ok := e.Queue.Pull()
		if !ok {
			continue
		}
		e.process(ctx, task)
		e.Queue.MarkCompleted()
	}
}

func (e *Engine) process(ctx context.Context, task queue.Task) {
	tr, _ := task.Tracker.(*tracker.Tracker)
	if tr == nil {
		return
	}
	switch task.Type {
	case queue.Compile:
		e.compileFile(ctx, tr, task.File)
	case queue.Link:
		e.linkTarget(ctx, tr)
	}
}

// resolveDownstream propagates one upstream target's resolution to every
// target that depends on it, submitting a Link task for any downstream
// target whose last upstream has now resolved.
func (e *Engine) resolveDownstream(upstreamName string, upstreamFailed bool) {
	for _, t := range e.Project.Targets {
		dependsOnUpstream := false
		for _, dep := range t.DependsOn {
			if dep == upstreamName {
				dependsOnUpstream = true
				break
			}
		}
		if !dependsOnUpstream {
			continue
		}
		tr := e.trackers[t.Name]
		if tr.ResolveUpstream(upstreamFailed) {
			e.Queue.Submit(queue.Task{Type: queue.Link, Tracker: tr})
		}
	}
}

func compilerFor(p *project.Project, src string) string {
	if strings.HasSuffix(src, ".c") {
		return p.Toolchain.CCompiler
	}
	return p.Toolchain.CXXCompiler
}

func objectPath(p *project.Project, t *project.Target, src string) string {
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	ext := ".o"
	if p.Toolchain.MSVCStyle {
		ext = ".obj"
	}
	return filepath.Join(p.ObjDir(t), base+ext)
}

func includeFlags(p *project.Project, t *project.Target) []string {
	var flags []string
	flag := "-I"
	if p.Toolchain.MSVCStyle {
		flag = "/I"
	}
	for _, dir := range t.Includes {
		flags = append(flags, flag+dir)
	}
	return flags
}

func fmtErr(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
