package reconcile

import (
	"os"

	"github.com/openmined/thumbtree/internal/errors"
	"github.com/openmined/thumbtree/internal/snapshot"
)

// Remove deletes the destination entry at path whose recorded kind is kind.
// Directories go with their whole subtree. Callers decide that removal is
// required; a path that vanished in the meantime is a FilesystemError.
func Remove(kind snapshot.Kind, path string) error {
	if kind != snapshot.Directory {
		if err := os.Remove(path); err != nil {
			return errors.Filesystem("unlink", path, err)
		}
		return nil
	}

	// RemoveAll is silent about a missing root
	if _, err := os.Lstat(path); err != nil {
		return errors.Filesystem("rmtree", path, err)
	}
	if err := os.RemoveAll(path); err != nil {
		return errors.Filesystem("rmtree", path, err)
	}
	return nil
}
