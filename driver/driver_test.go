package driver_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cbuild/buildlog"
	"cbuild/driver"
	"cbuild/project"
	"cbuild/runner"
)

// fakeCompiler is a Runner that, in addition to recording invocations
// like MockRunner, actually writes the object/archive/executable file
// its command line names — so a later build's "does the object file
// already exist" check behaves the way it would against a real
// toolchain instead of always forcing a rebuild.
type fakeCompiler struct {
	mu          sync.Mutex
	invocations []runner.Invocation
}

func (f *fakeCompiler) Run(_ context.Context, cmd *runner.Command) (*runner.Result, error) {
	f.mu.Lock()
	f.invocations = append(f.invocations, runner.Invocation{Path: cmd.Path, Args: cmd.Args})
	f.mu.Unlock()

	if len(cmd.Args) >= 2 && cmd.Args[0] == "rcs" {
		if err := os.WriteFile(cmd.Args[1], []byte("archive"), 0o644); err != nil {
			return nil, err
		}
		return &runner.Result{ExitCode: 0}, nil
	}
	for i, a := range cmd.Args {
		if a == "-o" && i+1 < len(cmd.Args) {
			if err := os.WriteFile(cmd.Args[i+1], []byte("out"), 0o644); err != nil {
				return nil, err
			}
		}
	}
	return &runner.Result{ExitCode: 0}, nil
}

func (f *fakeCompiler) compiledSources() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, inv := range f.invocations {
		for i, a := range inv.Args {
			if a == "-c" && i+1 < len(inv.Args) {
				out = append(out, inv.Args[i+1])
			}
		}
	}
	return out
}

func writeSource(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("int x;\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestProject(t *testing.T) *project.Project {
	t.Helper()
	root := t.TempDir()
	writeSource(t, filepath.Join(root, "src", "base.c"))
	writeSource(t, filepath.Join(root, "src", "app.c"))

	base := &project.Target{Name: "base", Kind: project.StaticLibrary, Sources: []string{filepath.Join(root, "src", "base.c")}}
	app := &project.Target{Name: "app", Kind: project.Executable, Sources: []string{filepath.Join(root, "src", "app.c")}, DependsOn: []string{"base"}}

	p := &project.Project{
		Root:      root,
		OutputDir: filepath.Join(root, "build"),
		Targets:   []*project.Target{base, app},
		ByName:    map[string]*project.Target{"base": base, "app": app},
		Toolchain: project.Toolchain{CCompiler: "cc", CXXCompiler: "c++", Linker: "c++", Archiver: "ar"},
	}
	p.RegistryPath = filepath.Join(p.OutputDir, "__registry")
	return p
}

func TestRunBuildsAllTargetsSuccessfully(t *testing.T) {
	p := newTestProject(t)
	logger, err := buildlog.New(filepath.Join(p.OutputDir, "logs"))
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()

	result, err := driver.Run(context.Background(), p, &runner.MockRunner{}, nil, logger, driver.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Fatal("expected a successful build")
	}
	if result.Compiled != 2 || result.Linked != 2 {
		t.Fatalf("expected both targets compiled and linked, got compiled=%d linked=%d", result.Compiled, result.Linked)
	}
}

func TestRunPropagatesCompileFailureToDownstream(t *testing.T) {
	p := newTestProject(t)
	logger, err := buildlog.New(filepath.Join(p.OutputDir, "logs"))
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()

	mock := &runner.MockRunner{Result: &runner.Result{ExitCode: 1}}
	result, err := driver.Run(context.Background(), p, mock, nil, logger, driver.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Success {
		t.Fatal("expected build to fail when the compiler reports a nonzero exit")
	}
}

func TestRunTargetedBuildSkipsOthers(t *testing.T) {
	p := newTestProject(t)
	logger, err := buildlog.New(filepath.Join(p.OutputDir, "logs"))
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()

	mock := &runner.MockRunner{}
	result, err := driver.Run(context.Background(), p, mock, nil, logger, driver.Options{Targets: []string{"base"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Fatal("expected success")
	}
	for _, inv := range mock.Invocations {
		for _, a := range inv.Args {
			if a == filepath.Join(p.Root, "src", "app.c") {
				t.Fatal("targeted build should not have compiled app.c")
			}
		}
	}
}

// TestTargetedBuildPreservesSkippedTargetRegistry guards against a
// targeted build silently erasing the incremental state of the targets
// it excludes: build everything, run a targeted build of only "base",
// then build everything again and confirm nothing needs recompiling.
func TestTargetedBuildPreservesSkippedTargetRegistry(t *testing.T) {
	p := newTestProject(t)
	logger, err := buildlog.New(filepath.Join(p.OutputDir, "logs"))
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()

	if _, err := driver.Run(context.Background(), p, &fakeCompiler{}, nil, logger, driver.Options{}); err != nil {
		t.Fatalf("initial full build: %v", err)
	}

	if _, err := driver.Run(context.Background(), p, &fakeCompiler{}, nil, logger, driver.Options{Targets: []string{"base"}}); err != nil {
		t.Fatalf("targeted build: %v", err)
	}

	final := &fakeCompiler{}
	result, err := driver.Run(context.Background(), p, final, nil, logger, driver.Options{})
	if err != nil {
		t.Fatalf("final full build: %v", err)
	}
	if !result.Success {
		t.Fatal("expected the final no-op rebuild to succeed")
	}
	if recompiled := final.compiledSources(); len(recompiled) != 0 {
		t.Fatalf("expected no recompiles on the final rebuild, got %v", recompiled)
	}
}
