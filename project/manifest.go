package project

import (
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// Load reads an INI project manifest from path and returns the resolved
// Project. Section layout:
//
//	[toolchain]
//	cc = clang
//	cxx = clang++
//	linker = clang++
//	archiver = ar
//	msvc = false
//
//	[project]
//	root = .
//	output = build
//	registry_disabled = false
//
//	[target "mylib"]
//	kind = static_library
//	sources = src/*.c, src/*.cpp
//	includes = include
//	flags = -O2, -Wall
//	depends_on = base
//	libs = pthread
//
// The whole manifest is read up front into a typed struct, delegating
// the actual INI parsing to gopkg.in/ini.v1 instead of a hand-rolled
// scanner.
func Load(path string) (*Project, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("project: load manifest %s: %w", path, err)
	}

	root := filepath.Dir(path)
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	p := &Project{
		Root:      root,
		OutputDir: filepath.Join(root, "build"),
		ByName:    make(map[string]*Target),
	}

	if sec, err := cfg.GetSection("project"); err == nil {
		if v := sec.Key("root").String(); v != "" {
			p.Root = resolvePath(root, v)
		}
		if v := sec.Key("output").String(); v != "" {
			p.OutputDir = resolvePath(root, v)
		}
		p.CacheDisabled = sec.Key("registry_disabled").MustBool(false)
	}
	p.RegistryPath = filepath.Join(p.OutputDir, "__registry")

	if sec, err := cfg.GetSection("toolchain"); err == nil {
		p.Toolchain = Toolchain{
			CCompiler:   orDefault(sec.Key("cc").String(), "cc"),
			CXXCompiler: orDefault(sec.Key("cxx").String(), "c++"),
			Linker:      orDefault(sec.Key("linker").String(), "c++"),
			Archiver:    orDefault(sec.Key("archiver").String(), "ar"),
			MSVCStyle:   sec.Key("msvc").MustBool(false),
		}
	} else {
		p.Toolchain = Toolchain{CCompiler: "cc", CXXCompiler: "c++", Linker: "c++", Archiver: "ar"}
	}

	for _, sec := range cfg.Sections() {
		name := sec.Name()
		if !strings.HasPrefix(name, "target ") && !strings.HasPrefix(name, `target "`) {
			continue
		}
		targetName := strings.Trim(strings.TrimPrefix(name, "target"), ` "`)
		if targetName == "" {
			return nil, fmt.Errorf("project: target section %q missing a name", name)
		}

		kind, err := parseKind(sec.Key("kind").String())
		if err != nil {
			return nil, fmt.Errorf("project: target %q: %w", targetName, err)
		}

		sources, err := expandGlobs(p.Root, splitList(sec.Key("sources").String()))
		if err != nil {
			return nil, fmt.Errorf("project: target %q: %w", targetName, err)
		}

		t := &Target{
			Name:      targetName,
			Kind:      kind,
			Sources:   sources,
			Includes:  resolvePaths(p.Root, splitList(sec.Key("includes").String())),
			Flags:     splitList(sec.Key("flags").String()),
			LinkLibs:  splitList(sec.Key("libs").String()),
			DependsOn: splitList(sec.Key("depends_on").String()),
		}
		p.Targets = append(p.Targets, t)
		p.ByName[t.Name] = t
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func resolvePath(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

func resolvePaths(root string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = resolvePath(root, p)
	}
	return out
}

func expandGlobs(root string, patterns []string) ([]string, error) {
	var out []string
	for _, pat := range patterns {
		matches, err := filepath.Glob(resolvePath(root, pat))
		if err != nil {
			return nil, fmt.Errorf("invalid source pattern %q: %w", pat, err)
		}
		out = append(out, matches...)
	}
	return out, nil
}

func parseKind(s string) (TargetKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "static_library", "static", "lib", "":
		return StaticLibrary, nil
	case "shared_library", "shared", "dll", "so":
		return SharedLibrary, nil
	case "executable", "exe", "bin":
		return Executable, nil
	default:
		return 0, fmt.Errorf("unknown target kind %q", s)
	}
}
