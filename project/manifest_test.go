package project_test

import (
	"os"
	"path/filepath"
	"testing"

	"cbuild/project"
)

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "project.ini")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadParsesTargetsAndDependencies(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"src/base.c", "src/app.c"} {
		if err := os.WriteFile(filepath.Join(dir, f), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	manifest := writeManifest(t, dir, `
[toolchain]
cc = clang
cxx = clang++
linker = clang++
archiver = ar

[project]
output = build

[target "base"]
kind = static_library
sources = src/base.c

[target "app"]
kind = executable
sources = src/app.c
depends_on = base
libs = m
`)

	p, err := project.Load(manifest)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(p.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(p.Targets))
	}
	app := p.ByName["app"]
	if app == nil {
		t.Fatal("expected target 'app'")
	}
	if len(app.DependsOn) != 1 || app.DependsOn[0] != "base" {
		t.Fatalf("expected app to depend on base, got %v", app.DependsOn)
	}
	if app.Kind != project.Executable {
		t.Fatalf("expected Executable kind, got %v", app.Kind)
	}
	if len(app.Sources) != 1 {
		t.Fatalf("expected 1 glob-expanded source, got %v", app.Sources)
	}
}

func TestLoadRejectsUnknownDependency(t *testing.T) {
	dir := t.TempDir()
	manifest := writeManifest(t, dir, `
[target "app"]
kind = executable
depends_on = missing
`)

	if _, err := project.Load(manifest); err == nil {
		t.Fatal("expected an error for a dependency on an undeclared target")
	}
}

func TestLoadRejectsDependencyCycle(t *testing.T) {
	dir := t.TempDir()
	manifest := writeManifest(t, dir, `
[target "a"]
kind = static_library
depends_on = b

[target "b"]
kind = static_library
depends_on = a
`)

	if _, err := project.Load(manifest); err == nil {
		t.Fatal("expected an error for a cyclic dependency between targets")
	}
}

func TestLoadRejectsOverlongName(t *testing.T) {
	dir := t.TempDir()
	longName := "this_name_is_definitely_way_too_long_for_the_registry"
	manifest := writeManifest(t, dir, `
[target "`+longName+`"]
kind = static_library
`)

	if _, err := project.Load(manifest); err == nil {
		t.Fatal("expected an error for an over-long target name")
	}
}
