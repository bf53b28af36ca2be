package render

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// RawProfile is the RawTherapee processing profile shared by every RAW
// render of a run. The file is written on first use and removed by Close.
type RawProfile struct {
	maxWidth  int
	maxHeight int

	mu     sync.Mutex
	path   string
	closed bool
}

// NewRawProfile returns a profile resizing to fit within maxWidth×maxHeight.
// Nothing touches the disk until Path is called.
func NewRawProfile(maxWidth, maxHeight int) *RawProfile {
	return &RawProfile{maxWidth: maxWidth, maxHeight: maxHeight}
}

// Path returns the profile location, creating the file if needed.
func (p *RawProfile) Path() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return "", fmt.Errorf("raw profile already released")
	}
	if p.path != "" {
		return p.path, nil
	}

	file, err := os.CreateTemp("", "thumbtree-*.pp3")
	if err != nil {
		return "", fmt.Errorf("create raw profile: %w", err)
	}
	if _, err := file.WriteString(p.content()); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", fmt.Errorf("write raw profile: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("close raw profile: %w", err)
	}

	p.path = file.Name()
	slog.Debug("render raw profile created", "path", p.path)
	return p.path, nil
}

// Created reports whether the profile file has been written
func (p *RawProfile) Created() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path != ""
}

// Close removes the profile file. It is safe to call more than once and
// when the profile was never created.
func (p *RawProfile) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.path == "" {
		return nil
	}

	path := p.path
	p.path = ""
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove raw profile: %w", err)
	}
	slog.Debug("render raw profile removed", "path", path)
	return nil
}

func (p *RawProfile) content() string {
	return fmt.Sprintf(`[Version]
AppVersion=5.8
Version=346

[Resize]
Enabled=true
Scale=1
AppliesTo=Cropped area
Method=Lanczos
DataSpecified=3
Width=%d
Height=%d
LongEdge=%d
ShortEdge=%d
AllowUpscaling=false
`, p.maxWidth, p.maxHeight, max(p.maxWidth, p.maxHeight), min(p.maxWidth, p.maxHeight))
}
