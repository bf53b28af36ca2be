// Package pairing decides whether a RAW file's rendition should be
// suppressed, either because a same-named JPEG already exists next to it or
// because its development sidecar marks it as discarded.
package pairing

import (
	"path/filepath"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/openmined/thumbtree/internal/classify"
)

// Verdict is the outcome of a pairing check.
type Verdict int

const (
	// Keep means the RAW file is rendered.
	Keep Verdict = iota
	// HasCompanion means a JPEG with the same stem exists in the same directory.
	HasCompanion
	// Discarded means the sidecar carries the discard marker.
	Discarded
)

func (v Verdict) String() string {
	switch v {
	case HasCompanion:
		return "companion"
	case Discarded:
		return "discarded"
	default:
		return "keep"
	}
}

// CompanionName returns the JPEG name paired with a RAW file name. It is
// also the name the RAW file is rendered to.
func CompanionName(rawName string) string {
	return classify.Stem(rawName) + ".jpg"
}

// Directory holds the regular files of one source directory.
type Directory struct {
	path    string
	files   mapset.Set[string]
	sidecar Sidecar
}

// ForDirectory prepares pairing checks for the regular files of dir.
// Names are compared case-insensitively.
func ForDirectory(dir string, regularFiles []string, sidecar Sidecar) *Directory {
	files := mapset.NewThreadUnsafeSet[string]()
	for _, name := range regularFiles {
		files.Add(strings.ToLower(name))
	}
	return &Directory{path: dir, files: files, sidecar: sidecar}
}

// Check returns the verdict for the RAW file rawName. The companion rule is
// evaluated first so the sidecar is only read when it matters.
func (d *Directory) Check(rawName string) (Verdict, error) {
	if d.files.Contains(strings.ToLower(CompanionName(rawName))) {
		return HasCompanion, nil
	}
	if d.sidecar == nil {
		return Keep, nil
	}

	discarded, err := d.sidecar.IsDiscarded(filepath.Join(d.path, rawName))
	if err != nil {
		return Keep, err
	}
	if discarded {
		return Discarded, nil
	}
	return Keep, nil
}
