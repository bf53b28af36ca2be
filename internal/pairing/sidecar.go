package pairing

import (
	"bufio"
	"os"
	"strings"

	"github.com/openmined/thumbtree/internal/errors"
)

const (
	// SidecarExt is appended to a RAW file's full name to find its sidecar.
	SidecarExt = ".pp3"

	// DiscardMarker is the exact sidecar line marking a file as trashed.
	DiscardMarker = "InTrash=true"
)

// Sidecar reports whether a source file has been marked as discarded.
type Sidecar interface {
	IsDiscarded(path string) (bool, error)
}

// PP3Sidecar reads RawTherapee processing profiles stored next to the file
type PP3Sidecar struct{}

// SidecarPath returns the sidecar location for path.
func SidecarPath(path string) string {
	return path + SidecarExt
}

// IsDiscarded implements Sidecar. A missing sidecar means not discarded.
func (PP3Sidecar) IsDiscarded(path string) (bool, error) {
	sidecarPath := SidecarPath(path)
	file, err := os.Open(sidecarPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Filesystem("open", sidecarPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		// profiles saved on Windows end lines with CRLF
		if strings.TrimSuffix(scanner.Text(), "\r") == DiscardMarker {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, errors.Filesystem("read", sidecarPath, err)
	}
	return false, nil
}
