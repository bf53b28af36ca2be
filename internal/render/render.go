// Package render produces destination files from classified source files,
// either by running an external conversion tool or by copying.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/openmined/thumbtree/internal/classify"
	"github.com/openmined/thumbtree/internal/errors"
	"github.com/openmined/thumbtree/internal/utils"
)

const tempMarker = ".thumbtree-tmp"

// Renderer creates target from source according to class. Target must not
// exist yet.
type Renderer interface {
	Render(ctx context.Context, class classify.Class, source, target string) error
}

// Tools names the external programs used for each class.
type Tools struct {
	Convert     string `mapstructure:"convert" yaml:"convert"`
	FFmpeg      string `mapstructure:"ffmpeg" yaml:"ffmpeg"`
	RawTherapee string `mapstructure:"rawtherapee" yaml:"rawtherapee"`
}

// DefaultTools looks the programs up on PATH.
var DefaultTools = Tools{
	Convert:     "convert",
	FFmpeg:      "ffmpeg",
	RawTherapee: "rawtherapee-cli",
}

type Options struct {
	MaxWidth  int
	MaxHeight int
	// Quality is the JPEG quality used for images and RAW files
	Quality int
	// VideoCRF is the x264 constant rate factor
	VideoCRF int
	Tools    Tools
}

// Dispatcher is the Renderer used for real runs. It owns the RAW profile,
// so Close must be called once the run is over.
type Dispatcher struct {
	opts    Options
	runner  Runner
	profile *RawProfile
}

// NewDispatcher returns a Dispatcher running tools through runner. A nil
// runner uses ExecRunner.
func NewDispatcher(opts Options, runner Runner) *Dispatcher {
	if runner == nil {
		runner = ExecRunner{}
	}
	if opts.Tools.Convert == "" {
		opts.Tools.Convert = DefaultTools.Convert
	}
	if opts.Tools.FFmpeg == "" {
		opts.Tools.FFmpeg = DefaultTools.FFmpeg
	}
	if opts.Tools.RawTherapee == "" {
		opts.Tools.RawTherapee = DefaultTools.RawTherapee
	}
	return &Dispatcher{
		opts:    opts,
		runner:  runner,
		profile: NewRawProfile(opts.MaxWidth, opts.MaxHeight),
	}
}

// Profile returns the shared RAW profile
func (d *Dispatcher) Profile() *RawProfile {
	return d.profile
}

// Close releases the RAW profile if it was created.
func (d *Dispatcher) Close() error {
	return d.profile.Close()
}

// Render implements Renderer. Output goes to a hidden temporary sibling of
// target which is renamed into place once the tool succeeded, and removed
// otherwise.
func (d *Dispatcher) Render(ctx context.Context, class classify.Class, source, target string) error {
	if class == classify.Ignore {
		if err := touch(target); err != nil {
			return &errors.RenderError{Class: class.String(), Source: source, Target: target, Err: err}
		}
		return nil
	}

	tmp := TempName(target)
	if err := d.renderTo(ctx, class, source, tmp); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil && !os.IsNotExist(rmErr) {
			slog.Warn("render cleanup failed", "path", tmp, "error", rmErr)
		}
		return &errors.RenderError{Class: class.String(), Source: source, Target: target, Err: err}
	}

	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return &errors.RenderError{Class: class.String(), Source: source, Target: target, Err: err}
	}
	return nil
}

func (d *Dispatcher) renderTo(ctx context.Context, class classify.Class, source, out string) error {
	switch class {
	case classify.Image:
		return d.runner.Run(ctx, d.opts.Tools.Convert, d.imageArgs(source, out)...)
	case classify.Video:
		return d.runner.Run(ctx, d.opts.Tools.FFmpeg, d.videoArgs(source, out)...)
	case classify.Raw:
		profile, err := d.profile.Path()
		if err != nil {
			return err
		}
		return d.runner.Run(ctx, d.opts.Tools.RawTherapee, d.rawArgs(profile, source, out)...)
	case classify.CopyVerbatim:
		return utils.CopyFile(source, out)
	default:
		return fmt.Errorf("no renderer for class %s", class)
	}
}

func (d *Dispatcher) dims() string {
	return fmt.Sprintf("%dx%d", d.opts.MaxWidth, d.opts.MaxHeight)
}

func (d *Dispatcher) imageArgs(source, out string) []string {
	return []string{
		// size hint lets the JPEG decoder skip full resolution
		"-size", d.dims(),
		// only the first frame of animations and multi-page files
		source + "[0]",
		"-auto-orient",
		"-resize", d.dims() + ">",
		"-quality", strconv.Itoa(d.opts.Quality),
		out,
	}
}

func (d *Dispatcher) videoArgs(source, out string) []string {
	scale := fmt.Sprintf(
		"scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease:force_divisible_by=2",
		d.opts.MaxWidth, d.opts.MaxHeight)
	return []string{
		"-nostdin", "-y", "-loglevel", "error",
		"-i", source,
		"-map_metadata", "0",
		"-vf", scale,
		"-c:v", "libx264", "-preset", "medium", "-crf", strconv.Itoa(d.opts.VideoCRF),
		"-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", "128k",
		"-movflags", "+faststart",
		"-f", "mp4",
		out,
	}
}

func (d *Dispatcher) rawArgs(profile, source, out string) []string {
	return []string{
		"-o", out,
		// the file's own sidecar first, then the resize profile on top
		"-s",
		"-p", profile,
		"-j" + strconv.Itoa(d.opts.Quality),
		"-Y",
		// -c must be last
		"-c", source,
	}
}

// TempName returns the hidden sibling a render of target is written to.
// The extension is kept so tools pick the right output format.
func TempName(target string) string {
	dir, base := filepath.Split(target)
	stem := classify.Stem(base)
	return filepath.Join(dir, "."+stem+tempMarker+base[len(stem):])
}

func touch(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	return file.Close()
}
