// Package classify maps file names to the render class that decides how a
// source file is mirrored into the destination tree.
package classify

import (
	"path/filepath"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Class is the handling class of a regular file.
type Class int

const (
	Unknown Class = iota
	Image
	Video
	Raw
	CopyVerbatim
	Ignore
)

func (c Class) String() string {
	switch c {
	case Image:
		return "image"
	case Video:
		return "video"
	case Raw:
		return "raw"
	case CopyVerbatim:
		return "copy"
	case Ignore:
		return "ignore"
	default:
		return "unknown"
	}
}

// OS and application metadata files that never carry content worth mirroring.
var defaultIgnoredNames = []string{
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
	".picasa.ini",
	".directory",
}

var (
	defaultRaw      = []string{"cr2", "cr3", "crw", "nef", "nrw", "arw", "srf", "sr2", "dng", "orf", "rw2", "raf", "pef", "srw", "3fr", "erf", "kdc", "mrw", "x3f"}
	defaultImage    = []string{"jpg", "jpeg", "jpe", "png", "gif", "tif", "tiff", "bmp", "webp", "heic", "heif"}
	defaultVideo    = []string{"mp4", "m4v", "mov", "avi", "mts", "m2ts", "mkv", "3gp", "mpg", "mpeg", "wmv", "webm"}
	defaultVerbatim = []string{"", "txt", "md", "pdf", "xmp", "gpx", "kml", "json", "html", "htm", "csv"}
	defaultIgnored  = []string{"pp3", "thm", "lrv", "db", "ini", "tmp", "log", "xcf", "psd", "lnk", "url"}
)

// Extensions extends the built-in classification tables. Extensions are
// given without the leading dot; matching is case-insensitive.
type Extensions struct {
	Raw          []string `mapstructure:"raw" yaml:"raw,omitempty"`
	Image        []string `mapstructure:"image" yaml:"image,omitempty"`
	Video        []string `mapstructure:"video" yaml:"video,omitempty"`
	Copy         []string `mapstructure:"copy" yaml:"copy,omitempty"`
	Ignore       []string `mapstructure:"ignore" yaml:"ignore,omitempty"`
	IgnoredNames []string `mapstructure:"ignored_names" yaml:"ignored_names,omitempty"`
}

// Classifier is a total function from file names to Class. It is safe for
// concurrent use once built.
type Classifier struct {
	ignoredNames mapset.Set[string]
	raw          mapset.Set[string]
	image        mapset.Set[string]
	video        mapset.Set[string]
	verbatim     mapset.Set[string]
	ignored      mapset.Set[string]

	rules *Rules
}

// New returns a Classifier with the built-in tables extended by extra.
func New(extra Extensions) *Classifier {
	return &Classifier{
		ignoredNames: mapset.NewSet(append(defaultIgnoredNames, extra.IgnoredNames...)...),
		raw:          extSet(defaultRaw, extra.Raw),
		image:        extSet(defaultImage, extra.Image),
		video:        extSet(defaultVideo, extra.Video),
		verbatim:     extSet(defaultVerbatim, extra.Copy),
		ignored:      extSet(defaultIgnored, extra.Ignore),
	}
}

// WithRules returns a copy of c that also consults the user ignore rules.
func (c *Classifier) WithRules(rules *Rules) *Classifier {
	cp := *c
	cp.rules = rules
	return &cp
}

// Classify returns the class of the file at relPath, a path relative to the
// source root. Without user rules only the base name matters.
func (c *Classifier) Classify(relPath string) Class {
	name := filepath.Base(relPath)
	if c.ignoredNames.Contains(name) {
		return Ignore
	}
	if c.rules != nil && c.rules.Match(relPath) {
		return Ignore
	}

	ext := Ext(name)
	switch {
	case c.raw.Contains(ext):
		return Raw
	case c.image.Contains(ext):
		return Image
	case c.video.Contains(ext):
		return Video
	case c.verbatim.Contains(ext):
		return CopyVerbatim
	case c.ignored.Contains(ext):
		return Ignore
	}
	return Unknown
}

// Ext returns the lower-cased extension of name without the dot. Leading
// dots do not start an extension, so ".hidden" has none.
func Ext(name string) string {
	stem := strings.TrimLeft(name, ".")
	i := strings.LastIndexByte(stem, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(stem[i+1:])
}

// Stem returns name without its extension, following the rules of Ext.
func Stem(name string) string {
	lead := len(name) - len(strings.TrimLeft(name, "."))
	i := strings.LastIndexByte(name[lead:], '.')
	if i < 0 {
		return name
	}
	return name[:lead+i]
}

func extSet(defaults, extra []string) mapset.Set[string] {
	set := mapset.NewSet[string]()
	for _, ext := range defaults {
		set.Add(ext)
	}
	for _, ext := range extra {
		set.Add(strings.ToLower(strings.TrimPrefix(ext, ".")))
	}
	return set
}
