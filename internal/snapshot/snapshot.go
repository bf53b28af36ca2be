// Package snapshot lists one directory level with the metadata the
// reconciler needs to compare a source tree against its destination.
package snapshot

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/openmined/thumbtree/internal/errors"
)

// Kind is the type of a directory entry as reported by lstat.
type Kind int

const (
	Other Kind = iota
	Directory
	Symlink
	RegularFile
)

func (k Kind) String() string {
	switch k {
	case Directory:
		return "directory"
	case Symlink:
		return "symlink"
	case RegularFile:
		return "file"
	default:
		return "other"
	}
}

// KindOf maps a file mode to a Kind without following symlinks.
func KindOf(mode fs.FileMode) Kind {
	switch {
	case mode&fs.ModeSymlink != 0:
		return Symlink
	case mode.IsDir():
		return Directory
	case mode.IsRegular():
		return RegularFile
	default:
		return Other
	}
}

type Entry struct {
	Name    string
	Kind    Kind
	ModTime time.Time
	Size    int64
}

// Snapshot maps entry names to entries for a single directory.
type Snapshot map[string]Entry

// Read returns the immediate children of dir. Symlinks are reported as
// Symlink, never as the type of their target.
func Read(dir string) (Snapshot, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Filesystem("readdir", dir, err)
	}

	snap := make(Snapshot, len(dirEntries))
	for _, de := range dirEntries {
		// Info on a ReadDir entry is an lstat
		info, err := de.Info()
		if err != nil {
			return nil, errors.Filesystem("lstat", filepath.Join(dir, de.Name()), err)
		}
		snap[de.Name()] = Entry{
			Name:    de.Name(),
			Kind:    KindOf(info.Mode()),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		}
	}
	return snap, nil
}

// Names returns the entry names in lexical order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pop removes and returns the entry called name.
func (s Snapshot) Pop(name string) (Entry, bool) {
	e, ok := s[name]
	if ok {
		delete(s, name)
	}
	return e, ok
}

// RegularFiles returns the names of all regular files.
func (s Snapshot) RegularFiles() []string {
	var names []string
	for name, e := range s {
		if e.Kind == RegularFile {
			names = append(names, name)
		}
	}
	return names
}
