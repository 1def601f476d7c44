// Package registry implements the on-disk, content-addressed record of a
// project's last successful build: which files belong to which target,
// and the timestamp each file and dependency edge had the last time it
// was seen. It is the engine's sole source of truth for deciding whether
// a file needs recompiling.
//
// The file format is fixed and versioned; it is reproduced here exactly
// so that a registry written by one run remains readable (and therefore
// the build stays incremental) across later runs of this tool.
package registry

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const (
	// Version is the on-disk format version written to the header.
	Version = 1

	headerSize     = 256
	targetInfoSize = 56 // name[32] + files_offset(u64) + files_count(u64) + aligned_max_files_count(u32, padded to 8)
	recordSize     = 8  // one u64 timestamp
	alignment      = 32
	maxNameLimit   = 32
)

// ErrCorrupt is returned when a registry file's contents cannot be
// interpreted under the current format version.
var ErrCorrupt = fmt.Errorf("registry: corrupt or unsupported file")

// TargetInfo is one row of the Target Info table.
type TargetInfo struct {
	Name                 string
	FilesOffset          uint64
	FilesCount           uint64
	AlignedMaxFilesCount uint32
}

// Header mirrors the fixed 256-byte on-disk header.
type Header struct {
	Version                uint16
	TargetsCount           uint16
	AlignedTotalFilesCount uint32
	DependenciesCount      uint32
}

// Registry is the parsed, read-only view of a `__registry` file. A zero
// Registry (no targets, no files) is returned when the file does not yet
// exist or is empty — the engine treats that as "everything is new".
type Registry struct {
	Header      Header
	Targets     []TargetInfo
	Files       []uint64
	FileRecords []uint64 // parallel to Files: last-seen timestamps
	Deps        []uint64
	DepRecords  []uint64 // parallel to Deps: last-seen timestamps

	path string
	data []byte // mmap'd file contents, nil if loaded from an empty/missing file
}

// Load opens path, creating it if absent, and parses its contents. An
// empty or newly created file yields a zero-valued Registry rather than
// an error, matching the "cold build" case.
func Load(path string) (*Registry, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("registry: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("registry: stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return &Registry{path: path}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("registry: mmap %s: %w", path, err)
	}

	reg, err := parse(data)
	if err != nil {
		_ = unix.Munmap(data)
		return nil, err
	}
	reg.path = path
	reg.data = data
	return reg, nil
}

// Close releases the registry's memory mapping, if any.
func (r *Registry) Close() error {
	if r.data == nil {
		return nil
	}
	data := r.data
	r.data = nil
	return unix.Munmap(data)
}

// Empty reports whether the registry carries no prior build state.
func (r *Registry) Empty() bool {
	return len(r.Targets) == 0
}

// FindTarget returns the target-info row for name, or false if the
// registry has never seen a target by that name.
func (r *Registry) FindTarget(name string) (TargetInfo, bool) {
	for _, t := range r.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return TargetInfo{}, false
}

// FindFileTimestamp looks up the last recorded timestamp for fileID
// within a target's file segment, returning false if the file was not
// part of the target's last build.
func (r *Registry) FindFileTimestamp(t TargetInfo, fileID uint64) (uint64, bool) {
	start := t.FilesOffset
	end := start + t.FilesCount
	for i := start; i < end && i < uint64(len(r.Files)); i++ {
		if r.Files[i] == fileID {
			return r.FileRecords[i], true
		}
	}
	return 0, false
}

func parse(data []byte) (*Registry, error) {
	if len(data) < headerSize {
		return nil, ErrCorrupt
	}
	var h Header
	h.Version = binary.LittleEndian.Uint16(data[0:2])
	h.TargetsCount = binary.LittleEndian.Uint16(data[2:4])
	h.AlignedTotalFilesCount = binary.LittleEndian.Uint32(data[4:8])
	h.DependenciesCount = binary.LittleEndian.Uint32(data[8:12])
	if h.Version != Version {
		return nil, fmt.Errorf("%w: version %d", ErrCorrupt, h.Version)
	}

	reg := &Registry{Header: h}

	off := headerSize
	targets := make([]TargetInfo, h.TargetsCount)
	for i := range targets {
		row := data[off : off+targetInfoSize]
		name := string(bytes.TrimRight(row[0:maxNameLimit], "\x00"))
		targets[i] = TargetInfo{
			Name:                 name,
			FilesOffset:          binary.LittleEndian.Uint64(row[32:40]),
			FilesCount:           binary.LittleEndian.Uint64(row[40:48]),
			AlignedMaxFilesCount: binary.LittleEndian.Uint32(row[48:52]),
		}
		off += targetInfoSize
	}
	reg.Targets = targets

	off = alignUp(off)
	filesBytes := int(h.AlignedTotalFilesCount) * recordSize
	reg.Files = readU64Table(data, off, int(h.AlignedTotalFilesCount))
	off += filesBytes
	reg.FileRecords = readU64Table(data, off, int(h.AlignedTotalFilesCount))
	off += filesBytes

	off = alignUp(off)
	depBytes := int(h.DependenciesCount) * recordSize
	reg.Deps = readU64Table(data, off, int(h.DependenciesCount))
	off += depBytes
	reg.DepRecords = readU64Table(data, off, int(h.DependenciesCount))

	return reg, nil
}

func readU64Table(data []byte, off, count int) []uint64 {
	out := make([]uint64, count)
	for i := 0; i < count; i++ {
		start := off + i*8
		if start+8 > len(data) {
			break
		}
		out[i] = binary.LittleEndian.Uint64(data[start : start+8])
	}
	return out
}

func alignUp(off int) int {
	if rem := off % alignment; rem != 0 {
		off += alignment - rem
	}
	return off
}
