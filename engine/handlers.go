package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"

	"cbuild/project"
	"cbuild/queue"
	"cbuild/runner"
	"cbuild/scanner"
	"cbuild/tracker"
)

// compileFile scans the file's include chain, decides whether it needs
// rebuilding, runs the compiler if so, claims a registry slot on
// success, and — if this call is the last one for the target — finishes
// the compile phase and submits a Link task. If any file of the target
// failed to compile, the last call instead resolves every downstream
// target with an upstream failure.
func (e *Engine) compileFile(ctx context.Context, tr *tracker.Tracker, src string) {
	t := tr.Target

	fileID, err := e.FS.FileID(src)
	if err != nil {
		fileID = 0
	}
	timestamp, tsErr := e.FS.ModTime(src)

	sc := &scanner.Scanner{FS: e.FS, Updates: e.Updates, Previous: e.Registry}
	dependenciesUpdated, scanErr := sc.ScanChain(src, t.Includes)
	if scanErr != nil {
		dependenciesUpdated = true // fail-safe: an unreadable scan forces a rebuild
	}

	shouldRebuild := true
	if !dependenciesUpdated && tsErr == nil && e.Registry != nil {
		if info, ok := e.Registry.FindTarget(t.Name); ok {
			if prevTS, found := e.Registry.FindFileTimestamp(info, fileID); found && prevTS == timestamp {
				objPath := objectPath(e.Project, t, src)
				if e.FS.Exists(objPath) {
					shouldRebuild = false
				}
			}
		}
	}

	compileFailed := false
	if shouldRebuild {
		compileFailed = !e.runCompiler(ctx, t, src)
	} else {
		tr.RecordFileSkipped()
	}

	if e.Updates != nil && !compileFailed {
		if _, err := e.Updates.ClaimFileSlot(t.Name, fileID, timestamp); err != nil {
			e.Logger.Debugf("registry: %v", err)
		}
	}

	if compileFailed {
		tr.MarkCompileFailed()
		e.failed.Store(true)
		e.Logger.TargetCompiled(t.Name, false, tr.SkippedCount())
	}

	if tr.FinishFile() {
		if tr.CompileStatus() == tracker.CompileFailed {
			e.resolveDownstream(t.Name, true)
			return
		}
		needsLinking := tr.SkippedCount() < uint32(len(t.Sources))
		if !needsLinking {
			outPath := filepath.Join(e.Project.OutDir(), t.OutputFileName(e.Project.Toolchain.MSVCStyle))
			needsLinking = !e.FS.Exists(outPath)
		}
		tr.SetNeedsLinking(needsLinking)
		tr.FinishCompileSuccess()
		e.Logger.TargetCompiled(t.Name, true, tr.SkippedCount())

		if tr.ReadyToLink() {
			e.Queue.Submit(queue.Task{Type: queue.Link, Tracker: tr})
		}
	}
}

// runCompiler invokes the compiler for one source file and reports
// whether it succeeded.
func (e *Engine) runCompiler(ctx context.Context, t *project.Target, src string) bool {
	if err := os.MkdirAll(e.Project.ObjDir(t), 0o755); err != nil {
		return false
	}

	objPath := objectPath(e.Project, t, src)
	var args []string
	args = append(args, includeFlags(e.Project, t)...)
	args = append(args, t.Flags...)
	if e.Project.Toolchain.MSVCStyle {
		args = append(args, "/c", src, "/Fo"+objPath)
	} else {
		args = append(args, "-c", src, "-o", objPath)
	}

	var out bytes.Buffer
	cmd := &runner.Command{
		Path:    compilerFor(e.Project, src),
		Args:    args,
		WorkDir: e.Project.Root,
		Stdout:  &out,
		Stderr:  &out,
	}

	result, err := e.Runner.Run(ctx, cmd)
	if err != nil || result.ExitCode != 0 {
		e.Logger.CommandOutput(t.Name, commandLine(cmd), out.String())
		return false
	}
	return true
}

func commandLine(cmd *runner.Command) string {
	return strings.Join(append([]string{cmd.Path}, cmd.Args...), " ")
}

// linkTarget builds the archive/link command appropriate for the
// target's kind, runs it, and propagates the outcome to downstream
// targets regardless of success or failure.
//
// A Link task can be submitted twice: once by resolveDownstream the
// instant this target's last upstream resolves, and once by compileFile
// the instant this target's last file finishes compiling. Either can
// run first, so both guards below must hold before the Waiting->Linking
// CAS runs, or a fast upstream can trigger a link against a downstream
// target whose own compile phase hasn't finished — the later, correct
// submission would then find link_status already claimed and no-op.
func (e *Engine) linkTarget(ctx context.Context, tr *tracker.Tracker) {
	if tr.CompileStatus() == tracker.Compiling {
		return // premature: this target's own files are still compiling
	}
	if tr.WaitingOn() > 0 {
		return // still waiting on an upstream dependency to resolve
	}
	if !tr.BeginLink() {
		return
	}
	t := tr.Target

	if tr.CompileStatus() == tracker.CompileFailed || tr.UpstreamStatus() == tracker.UpstreamFailed {
		tr.FinishLinkFailed()
		e.failed.Store(true)
		e.Logger.TargetLinked(t.Name, false)
		e.resolveDownstream(t.Name, true)
		return
	}

	if !tr.NeedsLinking() {
		tr.FinishLinkSuccess()
		e.Logger.TargetLinked(t.Name, true)
		e.resolveDownstream(t.Name, false)
		return
	}

	if err := os.MkdirAll(e.Project.OutDir(), 0o755); err != nil {
		tr.FinishLinkFailed()
		e.failed.Store(true)
		e.resolveDownstream(t.Name, true)
		return
	}

	cmd, err := e.buildLinkCommand(t)
	if err != nil {
		tr.FinishLinkFailed()
		e.failed.Store(true)
		e.Logger.TargetLinked(t.Name, false)
		e.resolveDownstream(t.Name, true)
		return
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	result, runErr := e.Runner.Run(ctx, cmd)
	if runErr != nil || result.ExitCode != 0 {
		tr.FinishLinkFailed()
		e.failed.Store(true)
		e.Logger.CommandOutput(t.Name, commandLine(cmd), out.String())
		e.Logger.TargetLinked(t.Name, false)
		e.resolveDownstream(t.Name, true)
		return
	}

	tr.FinishLinkSuccess()
	e.Logger.TargetLinked(t.Name, true)
	e.resolveDownstream(t.Name, false)
}

func (e *Engine) buildLinkCommand(t *project.Target) (*runner.Command, error) {
	p := e.Project
	outPath := filepath.Join(p.OutDir(), t.OutputFileName(p.Toolchain.MSVCStyle))

	var objs []string
	for _, src := range t.Sources {
		objs = append(objs, objectPath(p, t, src))
	}

	if t.Kind == project.StaticLibrary {
		args := append([]string{}, objs...)
		if p.Toolchain.MSVCStyle {
			args = append([]string{"/OUT:" + outPath}, objs...)
			return &runner.Command{Path: p.Toolchain.Archiver, Args: args, WorkDir: p.Root}, nil
		}
		args = append([]string{"rcs", outPath}, objs...)
		return &runner.Command{Path: p.Toolchain.Archiver, Args: args, WorkDir: p.Root}, nil
	}

	var args []string
	if t.Kind == project.SharedLibrary {
		if p.Toolchain.MSVCStyle {
			args = append(args, "/dll")
		} else {
			args = append(args, "-shared")
		}
	}
	args = append(args, objs...)
	for _, dep := range t.DependsOn {
		up := p.ByName[dep]
		if up == nil {
			continue
		}
		args = append(args, filepath.Join(p.OutDir(), up.OutputFileName(p.Toolchain.MSVCStyle)))
	}
	for _, lib := range t.LinkLibs {
		if p.Toolchain.MSVCStyle {
			args = append(args, lib+".lib")
		} else {
			args = append(args, "-l"+lib)
		}
	}
	if p.Toolchain.MSVCStyle {
		args = append(args, "/OUT:"+outPath)
	} else {
		args = append(args, "-o", outPath)
	}
	return &runner.Command{Path: p.Toolchain.Linker, Args: args, WorkDir: p.Root}, nil
}
