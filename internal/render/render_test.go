package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openmined/thumbtree/internal/classify"
	thumberrors "github.com/openmined/thumbtree/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	program string
	args    []string
}

// fakeRunner records calls and writes a file at the output argument,
// which is the last argument for convert/ffmpeg and follows -o otherwise.
type fakeRunner struct {
	calls []call
	err   error
}

func (f *fakeRunner) Run(_ context.Context, program string, args ...string) error {
	f.calls = append(f.calls, call{program: program, args: args})
	if f.err != nil {
		out := outputArg(args)
		// a failing tool may still leave partial output behind
		_ = os.WriteFile(out, []byte("partial"), 0o644)
		return f.err
	}
	return os.WriteFile(outputArg(args), []byte("rendered by "+program), 0o644)
}

func outputArg(args []string) string {
	for i, a := range args {
		if a == "-o" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return args[len(args)-1]
}

func testOptions() Options {
	return Options{MaxWidth: 1920, MaxHeight: 1200, Quality: 85, VideoCRF: 28}
}

func TestDispatcher_ImageWritesTargetAtomically(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	dst := filepath.Join(dir, "out", "a.jpg")
	require.NoError(t, os.WriteFile(src, []byte("jpeg"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Dir(dst), 0o755))

	runner := &fakeRunner{}
	d := NewDispatcher(testOptions(), runner)
	require.NoError(t, d.Render(context.Background(), classify.Image, src, dst))

	require.Len(t, runner.calls, 1)
	c := runner.calls[0]
	assert.Equal(t, "convert", c.program)
	assert.Equal(t, []string{
		"-size", "1920x1200",
		src + "[0]",
		"-auto-orient",
		"-resize", "1920x1200>",
		"-quality", "85",
		TempName(dst),
	}, c.args)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "rendered by convert", string(got))
	assert.NoFileExists(t, TempName(dst))
}

func TestDispatcher_VideoArgs(t *testing.T) {
	opts := testOptions()
	opts.Tools.FFmpeg = "/opt/bin/ffmpeg"
	runner := &fakeRunner{}
	d := NewDispatcher(opts, runner)

	dir := t.TempDir()
	dst := filepath.Join(dir, "clip.mov")
	require.NoError(t, d.Render(context.Background(), classify.Video, "/src/clip.mov", dst))

	c := runner.calls[0]
	assert.Equal(t, "/opt/bin/ffmpeg", c.program)
	joined := strings.Join(c.args, " ")
	assert.Contains(t, joined, "-i /src/clip.mov")
	assert.Contains(t, joined, "-crf 28")
	assert.Contains(t, joined, "scale='min(1920,iw)':'min(1200,ih)'")
	assert.Contains(t, joined, "-f mp4")
	assert.Equal(t, TempName(dst), c.args[len(c.args)-1])
	assert.FileExists(t, dst)
}

func TestDispatcher_RawSharesLazyProfile(t *testing.T) {
	runner := &fakeRunner{}
	d := NewDispatcher(testOptions(), runner)
	assert.False(t, d.Profile().Created(), "profile must not exist before the first raw render")

	dir := t.TempDir()
	require.NoError(t, d.Render(context.Background(), classify.Raw, "/src/a.cr2", filepath.Join(dir, "a.jpg")))
	require.NoError(t, d.Render(context.Background(), classify.Raw, "/src/b.nef", filepath.Join(dir, "b.jpg")))
	require.True(t, d.Profile().Created())

	require.Len(t, runner.calls, 2)
	profile := runner.calls[0].args[4]
	assert.Equal(t, profile, runner.calls[1].args[4], "both renders use the same profile")
	assert.Equal(t, []string{"-o", TempName(filepath.Join(dir, "a.jpg")), "-s", "-p", profile, "-j85", "-Y", "-c", "/src/a.cr2"}, runner.calls[0].args)

	content, err := os.ReadFile(profile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Width=1920")
	assert.Contains(t, string(content), "Height=1200")
	assert.Contains(t, string(content), "AllowUpscaling=false")

	require.NoError(t, d.Close())
	assert.NoFileExists(t, profile)
	assert.NoError(t, d.Close(), "closing twice is fine")

	err = d.Render(context.Background(), classify.Raw, "/src/c.cr2", filepath.Join(dir, "c.jpg"))
	assert.Error(t, err, "a released profile cannot be recreated")
}

func TestDispatcher_CloseWithoutRawRender(t *testing.T) {
	d := NewDispatcher(testOptions(), &fakeRunner{})
	assert.NoError(t, d.Close())
}

func TestDispatcher_FailureIsRenderErrorAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "a.jpg")
	boom := errors.New("exit status 1")
	d := NewDispatcher(testOptions(), &fakeRunner{err: boom})

	err := d.Render(context.Background(), classify.Image, "/src/a.jpg", dst)
	require.Error(t, err)

	var renderErr *thumberrors.RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, "/src/a.jpg", renderErr.Source)
	assert.Equal(t, dst, renderErr.Target)
	assert.ErrorIs(t, err, boom)

	assert.NoFileExists(t, dst)
	assert.NoFileExists(t, TempName(dst), "partial output must be removed")
}

func TestDispatcher_CopyAndIgnore(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("keep me"), 0o644))
	runner := &fakeRunner{}
	d := NewDispatcher(testOptions(), runner)

	copied := filepath.Join(dir, "copy.txt")
	require.NoError(t, d.Render(context.Background(), classify.CopyVerbatim, src, copied))
	got, err := os.ReadFile(copied)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(got))

	placeholder := filepath.Join(dir, "a.pp3")
	require.NoError(t, d.Render(context.Background(), classify.Ignore, src, placeholder))
	info, err := os.Stat(placeholder)
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	assert.Empty(t, runner.calls, "copy and placeholder never run tools")
}

func TestDispatcher_UnknownClass(t *testing.T) {
	d := NewDispatcher(testOptions(), &fakeRunner{})
	err := d.Render(context.Background(), classify.Unknown, "/src/a.xyz", filepath.Join(t.TempDir(), "a.xyz"))
	assert.True(t, thumberrors.IsRender(err))
}

func TestTempName(t *testing.T) {
	assert.Equal(t, filepath.Join("/dst", ".a.thumbtree-tmp.jpg"), TempName("/dst/a.jpg"))
	assert.Equal(t, filepath.Join("/dst", ".a.b.thumbtree-tmp.MOV"), TempName("/dst/a.b.MOV"))
	assert.Equal(t, filepath.Join("/dst", "..hidden.thumbtree-tmp"), TempName("/dst/.hidden"))
	assert.Equal(t, filepath.Join("/dst", ".README.thumbtree-tmp"), TempName("/dst/README"))
}

func TestExecRunner(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, ExecRunner{}.Run(ctx, "sh", "-c", "exit 0"))

	err := ExecRunner{}.Run(ctx, "sh", "-c", "echo broken >&2; exit 3")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode)
	assert.Equal(t, "broken", exitErr.Stderr)

	err = ExecRunner{}.Run(ctx, filepath.Join(t.TempDir(), "no-such-tool"))
	assert.Error(t, err)
}

func TestExecRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ExecRunner{}.Run(ctx, "sh", "-c", "sleep 5")
	assert.ErrorIs(t, err, context.Canceled)
}
