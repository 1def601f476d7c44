package scanner

import (
	"os"
	"path/filepath"

	"cbuild/registry"
)

// FileSystem is the minimal filesystem collaborator the scanner needs:
// existence checks, a stable identifier, and a last-modified timestamp.
// A real implementation backs FileID with an inode number; this one
// uses the resolved absolute path, which is stable enough for a single
// machine and avoids a platform-specific syscall in the scanner itself.
type FileSystem interface {
	Exists(path string) bool
	FileID(path string) (uint64, error)
	ModTime(path string) (uint64, error)
	ReadFile(path string) ([]byte, error)
}

// OSFileSystem is the default FileSystem backed by the local disk.
type OSFileSystem struct{}

func (OSFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OSFileSystem) FileID(path string) (uint64, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, err
	}
	return fnv64(abs), nil
}

func (OSFileSystem) ModTime(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return uint64(info.ModTime().UnixNano()), nil
}

func (OSFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func fnv64(s string) uint64 {
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)
	h := uint64(offset)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	return h
}

// Scanner walks include-dependency chains, consulting an UpdateSet for
// already-claimed results (breaking cycles) and a previous Registry
// snapshot for "did this file change" decisions on already-resolved
// headers.
type Scanner struct {
	FS       FileSystem
	Updates  *registry.UpdateSet
	Previous *registry.Registry
}

// ScanChain walks file's own include chain, recursively, and reports
// whether the chain overall is Updated (file.Updated == true) or can be
// treated as Ignore (unchanged). It never mutates the UpdateSet for the
// top-level file itself — only for files reached as `#include` targets.
func (s *Scanner) ScanChain(path string, includeDirs []string) (bool, error) {
	status, err := s.scan(path, includeDirs, false)
	if err != nil {
		return true, err
	}
	return status == registry.Updated, nil
}

func (s *Scanner) scan(path string, includeDirs []string, isIncluded bool) (registry.ChainStatus, error) {
	var slotIndex = -1
	var fileID uint64

	if isIncluded {
		id, err := s.FS.FileID(path)
		if err != nil {
			return registry.Updated, nil //nolint:nilerr // scan-time open failures downgrade to "updated"
		}
		fileID = id
		idx, fresh := s.Updates.ClaimDependencySlot(fileID)
		slotIndex = idx
		if !fresh {
			return s.Updates.DependencyStatus(idx), nil
		}
	}

	data, err := s.FS.ReadFile(path)
	if err != nil {
		if isIncluded {
			s.Updates.SetDependencyStatus(slotIndex, registry.Updated, 0)
		}
		return registry.Updated, nil
	}

	ownDir := filepath.Dir(path)
	dirs := append([]string{ownDir}, includeDirs...)

	status := registry.Ignore
	it := &tokenIterator{data: data}
	for {
		value, isSystem, ok := it.NextInclude()
		if !ok {
			break
		}
		if isSystem || value == "" {
			continue
		}

		resolved, found := resolveInclude(s.FS, dirs, value)
		if !found {
			status = registry.Updated
			continue
		}

		childStatus, err := s.scan(resolved, includeDirs, true)
		if err != nil {
			return registry.Updated, err
		}
		if childStatus == registry.Updated {
			status = registry.Updated
		}
	}

	var timestamp uint64
	if status != registry.Updated {
		ts, err := s.FS.ModTime(path)
		if err != nil {
			status = registry.Updated
		} else {
			timestamp = ts
			if isIncluded {
				if s.Previous == nil {
					status = registry.Updated // no previous snapshot means no prior record
				} else if t, ok := s.findPreviousTimestamp(fileID); !ok || t != timestamp {
					status = registry.Updated
				}
			}
		}
	}

	if isIncluded {
		s.Updates.SetDependencyStatus(slotIndex, status, timestamp)
	}
	return status, nil
}

func (s *Scanner) findPreviousTimestamp(fileID uint64) (uint64, bool) {
	for i, id := range s.Previous.Deps {
		if id == fileID {
			return s.Previous.DepRecords[i], true
		}
	}
	return 0, false
}

func resolveInclude(fs FileSystem, dirs []string, value string) (string, bool) {
	for _, dir := range dirs {
		candidate := filepath.Join(dir, value)
		if fs.Exists(candidate) {
			return candidate, true
		}
	}
	return "", false
}
