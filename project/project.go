// Package project describes the static, read-only view of a build: the
// toolchain to invoke, the set of targets, and how they depend on each
// other. A Project is populated once, from a manifest on disk, before the
// engine runs, and is never mutated afterwards.
package project

import (
	"fmt"
	"path/filepath"
)

// TargetKind identifies the kind of artifact a Target produces.
type TargetKind int

const (
	StaticLibrary TargetKind = iota
	SharedLibrary
	Executable
)

func (k TargetKind) String() string {
	switch k {
	case StaticLibrary:
		return "static_library"
	case SharedLibrary:
		return "shared_library"
	case Executable:
		return "executable"
	default:
		return "unknown"
	}
}

// MaxNameLimit mirrors the registry's fixed-width name field: target
// names may be at most 32 bytes, since the field is NUL-padded rather
// than NUL-terminated.
const MaxNameLimit = 32

// Toolchain is the opaque set of tool paths and invocation style the
// engine hands to the command runner. The engine reads it only to build
// compiler, archiver and linker command lines.
type Toolchain struct {
	CCompiler   string
	CXXCompiler string
	Linker      string
	Archiver    string
	// MSVCStyle selects `/I`, `/c`, `/Fo`, `/OUT:` argument syntax instead
	// of the Unix-style `-I`, `-c`, `-o` forms.
	MSVCStyle bool
}

// Target is one compile/link unit of a Project.
type Target struct {
	Name      string
	Kind      TargetKind
	Sources   []string // absolute paths, already glob-expanded
	Includes  []string
	Flags     []string
	LinkLibs  []string
	DependsOn []string // names of upstream targets, in manifest order
}

// OutputFileName returns the conventional artifact name for the target's
// kind, given a MSVC/Unix toolchain flavor.
func (t *Target) OutputFileName(msvc bool) string {
	switch t.Kind {
	case StaticLibrary:
		if msvc {
			return t.Name + ".lib"
		}
		return "lib" + t.Name + ".a"
	case SharedLibrary:
		if msvc {
			return t.Name + ".dll"
		}
		return "lib" + t.Name + ".so"
	default:
		if msvc {
			return t.Name + ".exe"
		}
		return t.Name
	}
}

// Project is the fully-resolved, read-only build description consumed by
// the driver and engine.
type Project struct {
	Root          string
	OutputDir     string
	Toolchain     Toolchain
	Targets       []*Target
	ByName        map[string]*Target
	RegistryPath  string
	CacheDisabled bool
}

// ObjDir returns the per-target scratch directory for object files.
func (p *Project) ObjDir(t *Target) string {
	return filepath.Join(p.OutputDir, "obj", t.Name)
}

// OutDir returns the directory linked artifacts are written to.
func (p *Project) OutDir() string {
	return filepath.Join(p.OutputDir, "out")
}

// Validate checks name-length, name-character, uniqueness,
// dependency-existence, and acyclicity invariants. A cyclic dependency
// graph is rejected here, before any task runs, rather than left to
// surface as targets stuck forever waiting to link.
func (p *Project) Validate() error {
	seen := make(map[string]bool, len(p.Targets))
	for _, t := range p.Targets {
		if len(t.Name) > MaxNameLimit {
			return fmt.Errorf("project: target name %q exceeds %d bytes", t.Name, MaxNameLimit)
		}
		for _, r := range t.Name {
			if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
				return fmt.Errorf("project: target name %q may contain only letters, digits and underscores", t.Name)
			}
		}
		if seen[t.Name] {
			return fmt.Errorf("project: duplicate target name %q", t.Name)
		}
		seen[t.Name] = true
	}
	for _, t := range p.Targets {
		for _, dep := range t.DependsOn {
			if p.ByName[dep] == nil {
				return fmt.Errorf("project: target %q depends on unknown target %q", t.Name, dep)
			}
		}
	}
	return p.checkAcyclic()
}

// checkAcyclic walks the dependency graph depth-first, using the
// standard white/gray/black coloring to detect a back edge — a
// dependency reached while it is still on the current DFS path.
func (p *Project) checkAcyclic() error {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(p.Targets))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("project: cyclic dependency: %s -> %s", joinPath(path), name)
		}
		color[name] = gray
		path = append(path, name)
		for _, dep := range p.ByName[name].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		color[name] = black
		return nil
	}

	for _, t := range p.Targets {
		if err := visit(t.Name); err != nil {
			return err
		}
	}
	return nil
}

func joinPath(path []string) string {
	out := path[0]
	for _, p := range path[1:] {
		out += " -> " + p
	}
	return out
}
