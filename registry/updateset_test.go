package registry_test

import (
	"path/filepath"
	"testing"

	"cbuild/project"
	"cbuild/registry"
)

func testProject(t *testing.T) *project.Project {
	t.Helper()
	target := &project.Target{Name: "mylib", Kind: project.StaticLibrary, Sources: []string{"a.c", "b.c"}}
	p := &project.Project{
		OutputDir: t.TempDir(),
		Targets:   []*project.Target{target},
		ByName:    map[string]*project.Target{"mylib": target},
	}
	p.RegistryPath = filepath.Join(p.OutputDir, "__registry")
	return p
}

func TestUpdateSetClaimFileSlot(t *testing.T) {
	p := testProject(t)
	u := registry.New(p, 16)

	idx, err := u.ClaimFileSlot("mylib", 1, 100)
	if err != nil {
		t.Fatalf("ClaimFileSlot: %v", err)
	}
	if idx != 0 {
		t.Fatalf("expected slot 0, got %d", idx)
	}

	// mylib has 2 sources, padded up to a capacity of 4 slots; claiming
	// the remaining padding slots must still succeed.
	if _, err := u.ClaimFileSlot("mylib", 2, 200); err != nil {
		t.Fatalf("second ClaimFileSlot: %v", err)
	}
	if _, err := u.ClaimFileSlot("mylib", 3, 300); err != nil {
		t.Fatalf("third ClaimFileSlot (within alignment padding): %v", err)
	}
	if _, err := u.ClaimFileSlot("mylib", 4, 400); err != nil {
		t.Fatalf("fourth ClaimFileSlot (within alignment padding): %v", err)
	}

	if _, err := u.ClaimFileSlot("mylib", 5, 500); err == nil {
		t.Fatal("expected overflow error claiming a fifth slot past the padded capacity")
	}

	if _, err := u.ClaimFileSlot("nope", 1, 1); err == nil {
		t.Fatal("expected error for unknown target")
	}
}

func TestUpdateSetDependencySlotsDedup(t *testing.T) {
	p := testProject(t)
	u := registry.New(p, 4)

	idx1, fresh1 := u.ClaimDependencySlot(42)
	if !fresh1 {
		t.Fatal("expected first claim to be fresh")
	}
	idx2, fresh2 := u.ClaimDependencySlot(42)
	if fresh2 {
		t.Fatal("expected second claim of the same id to not be fresh")
	}
	if idx1 != idx2 {
		t.Fatalf("expected same slot index, got %d and %d", idx1, idx2)
	}

	u.SetDependencyStatus(idx1, registry.Updated, 555)
	if got := u.DependencyStatus(idx1); got != registry.Updated {
		t.Fatalf("expected Updated, got %v", got)
	}
}

func TestFlushAndLoadRoundTrip(t *testing.T) {
	p := testProject(t)
	u := registry.New(p, 8)

	if _, err := u.ClaimFileSlot("mylib", 11, 1000); err != nil {
		t.Fatal(err)
	}
	if _, err := u.ClaimFileSlot("mylib", 12, 2000); err != nil {
		t.Fatal(err)
	}
	idx, _ := u.ClaimDependencySlot(99)
	u.SetDependencyStatus(idx, registry.Updated, 3000)

	if err := u.Flush(p.RegistryPath, p); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	reg, err := registry.Load(p.RegistryPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer reg.Close()

	if reg.Empty() {
		t.Fatal("expected a non-empty registry after flush")
	}
	info, ok := reg.FindTarget("mylib")
	if !ok {
		t.Fatal("expected to find target mylib")
	}
	if info.FilesCount != 2 {
		t.Fatalf("expected 2 files, got %d", info.FilesCount)
	}

	ts, found := reg.FindFileTimestamp(info, 11)
	if !found || ts != 1000 {
		t.Fatalf("expected timestamp 1000 for file 11, got %d (found=%v)", ts, found)
	}
	ts, found = reg.FindFileTimestamp(info, 12)
	if !found || ts != 2000 {
		t.Fatalf("expected timestamp 2000 for file 12, got %d (found=%v)", ts, found)
	}

	if len(reg.Deps) != 1 || reg.Deps[0] != 99 || reg.DepRecords[0] != 3000 {
		t.Fatalf("unexpected dependency table contents: %+v / %+v", reg.Deps, reg.DepRecords)
	}
}

func TestLoadMissingFileYieldsEmptyRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "__registry")

	reg, err := registry.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer reg.Close()

	if !reg.Empty() {
		t.Fatal("expected an empty registry for a freshly created file")
	}
}
