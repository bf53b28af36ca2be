// Package errors defines the error taxonomy of a thumbtree run. Every error
// in it is fatal: the run that produced it stops at the point of occurrence.
package errors

import (
	"errors"
	"fmt"
)

// ErrNotDirectory is the cause of a FilesystemError for a path that exists
// but is not a directory where one is required.
var ErrNotDirectory = errors.New("not a directory")

// FilesystemError represents a failed filesystem operation on a path
// (missing or unreadable path, failed mkdir/unlink/rmtree).
type FilesystemError struct {
	// Op is the operation that failed, e.g. "mkdir" or "readdir"
	Op string
	// Path is the path the operation was applied to
	Path string
	// Err is the underlying error
	Err error
}

// Error implements the error interface
func (e *FilesystemError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s", e.Op, e.Path)
}

// Unwrap implements the errors.Unwrap interface
func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// RenderError represents a failed render of Source into Target.
type RenderError struct {
	// Class is the render class name, e.g. "image"
	Class string
	// Source is the source file path
	Source string
	// Target is the target file path
	Target string
	// Err is the underlying error, usually the tool's exit status
	Err error
}

// Error implements the error interface
func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s %s -> %s: %v", e.Class, e.Source, e.Target, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RenderError) Unwrap() error {
	return e.Err
}

// ConfigurationError represents input the run refuses to handle, such as a
// file type that has no classification or an invalid setting.
type ConfigurationError struct {
	// Path is the offending path or config key
	Path string
	// Reason is the human-readable reason
	Reason string
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration: %s: %s", e.Path, e.Reason)
}

// Filesystem wraps err in a FilesystemError.
func Filesystem(op, path string, err error) error {
	return &FilesystemError{Op: op, Path: path, Err: err}
}

// Configuration returns a ConfigurationError.
func Configuration(path, format string, args ...any) error {
	return &ConfigurationError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// IsFilesystem reports whether err is or wraps a FilesystemError
func IsFilesystem(err error) bool {
	var target *FilesystemError
	return errors.As(err, &target)
}

// IsRender reports whether err is or wraps a RenderError
func IsRender(err error) bool {
	var target *RenderError
	return errors.As(err, &target)
}

// IsConfiguration reports whether err is or wraps a ConfigurationError
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}
