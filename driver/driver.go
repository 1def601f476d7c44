// Package driver implements the build driver: the orchestration layer
// that loads a project and its registry, builds the engine, runs it to
// completion, and reports the outcome.
package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"cbuild/buildlog"
	"cbuild/engine"
	"cbuild/history"
	"cbuild/migrate"
	"cbuild/project"
	"cbuild/registry"
	"cbuild/runner"
	"cbuild/scanner"
	"cbuild/tracker"
	"cbuild/ui"
)

// CacheMode controls how the registry is consulted at the start of a
// build: on reuses it, off ignores it for this run, flush discards it
// on disk first.
type CacheMode int

const (
	CacheOn CacheMode = iota
	CacheOff
	CacheFlush
)

// Options configures one invocation of Run.
type Options struct {
	Builders int
	Cache    CacheMode
	Targets  []string // empty means "build everything"
	UI       ui.UI
}

// Result summarizes the outcome of a build run.
type Result struct {
	RunID    string
	Elapsed  time.Duration
	Success  bool
	Compiled int
	Linked   int
	Failed   int
}

// Run executes one build of p, returning once every requested target has
// either linked successfully or failed.
func Run(ctx context.Context, p *project.Project, rt runner.Runner, hist *history.Store, logger *buildlog.Logger, opts Options) (*Result, error) {
	runID := uuid.New().String()
	start := time.Now()

	if hist != nil {
		_ = hist.StartRun(history.RunRecord{
			ID: runID, Project: p.Root, Targets: targetNames(p), StartTime: start,
		})
	}

	fs := scanner.OSFileSystem{}

	var reg *registry.Registry
	var err error
	switch opts.Cache {
	case CacheOff, CacheFlush:
		reg = &registry.Registry{}
		if opts.Cache == CacheFlush {
			_ = os.Remove(p.RegistryPath)
		}
	default:
		reg, err = registry.Load(p.RegistryPath)
		if err != nil {
			return nil, fmt.Errorf("driver: load registry: %w", err)
		}
		defer reg.Close()
	}

	maxDeps := estimateMaxDependencies(p)
	updates := registry.New(p, maxDeps)

	legacyPath := filepath.Join(p.OutputDir, "legacy_timestamps")
	if _, err := migrate.ImportLegacyTimestamps(legacyPath, fs, updates, logger); err != nil {
		logger.Infof("migrate: %v", err)
	}

	if err := createOutputDirs(p); err != nil {
		return nil, fmt.Errorf("driver: %w", err)
	}

	eng := engine.New(p, rt, fs, reg, updates, logger)
	eng.SubmitInitialTasks(opts.Targets)

	builders := engine.BuilderCount(opts.Builders)

	if opts.UI != nil {
		if err := opts.UI.Start(); err != nil {
			logger.Infof("ui: failed to start, falling back to logs only: %v", err)
			opts.UI = nil
		} else {
			defer opts.UI.Stop()
			go pollProgress(ctx, eng, opts.UI, start)
		}
	}

	eng.Run(ctx, builders)

	elapsed := time.Since(start)
	result := &Result{RunID: runID, Elapsed: elapsed, Success: !eng.Failed()}

	for _, tr := range eng.Trackers() {
		snap := tr.Snapshot()
		if snap.Compile == tracker.CompileSuccess {
			result.Compiled++
		}
		if snap.Link == tracker.LinkSuccess {
			result.Linked++
		}
		if snap.Compile == tracker.CompileFailed || snap.Link == tracker.LinkFailed {
			result.Failed++
		}
		if hist != nil {
			_ = hist.RecordTarget(history.TargetOutcome{
				RunID: runID, Target: snap.Name,
				Compiled: snap.Compile == tracker.CompileSuccess,
				Linked:   snap.Link == tracker.LinkSuccess,
				Skipped:  tr.SkippedCount(),
			})
		}
	}

	if opts.Cache != CacheOff && !p.CacheDisabled {
		if err := updates.Flush(p.RegistryPath, p); err != nil {
			logger.Infof("registry: flush failed: %v", err)
		}
	}

	if hist != nil {
		_ = hist.FinishRun(runID, time.Now(), result.Success)
	}
	logger.Summary(len(p.Targets), result.Compiled, result.Linked, result.Failed, elapsed.String())

	return result, nil
}

func targetNames(p *project.Project) []string {
	names := make([]string, len(p.Targets))
	for i, t := range p.Targets {
		names[i] = t.Name
	}
	return names
}

func createOutputDirs(p *project.Project) error {
	if err := os.MkdirAll(p.OutDir(), 0o755); err != nil {
		return err
	}
	for _, t := range p.Targets {
		if err := os.MkdirAll(p.ObjDir(t), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// estimateMaxDependencies bounds the dependency table at four slots per
// source file plus one per include directory per source, with a floor
// of 64 — generous enough in practice without scanning ahead of time.
func estimateMaxDependencies(p *project.Project) uint32 {
	var total uint32
	for _, t := range p.Targets {
		total += uint32(len(t.Sources)) * uint32(4+len(t.Includes))
	}
	if total < 64 {
		total = 64
	}
	return total
}

func pollProgress(ctx context.Context, eng *engine.Engine, u ui.UI, start time.Time) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snaps := make([]tracker.Snapshot, 0, len(eng.Trackers()))
			var compiled, linked, failed int
			for _, tr := range eng.Trackers() {
				s := tr.Snapshot()
				snaps = append(snaps, s)
				if s.Compile == tracker.CompileSuccess {
					compiled++
				}
				if s.Link == tracker.LinkSuccess {
					linked++
				}
				if s.Compile == tracker.CompileFailed || s.Link == tracker.LinkFailed {
					failed++
				}
			}
			u.Update(ui.Progress{
				Elapsed: time.Since(start).Round(time.Second).String(), Total: len(eng.Trackers()),
				Compiled: compiled, Linked: linked, Failed: failed, Snapshots: snaps,
			})
			if !eng.Queue.HasUnfinishedTasks() {
				return
			}
		}
	}
}
