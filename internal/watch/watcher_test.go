package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rjeczalik/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvent struct {
	path string
}

func (e fakeEvent) Event() notify.Event { return notify.Write }
func (e fakeEvent) Path() string        { return e.path }
func (e fakeEvent) Sys() interface{}    { return nil }

const testDelay = 20 * time.Millisecond

func startLoop(t *testing.T, run RunFunc) (chan notify.EventInfo, context.CancelFunc, <-chan error) {
	t.Helper()
	events := make(chan notify.EventInfo, 16)
	ctx, cancel := context.WithCancel(context.Background())
	w := New("/unused", testDelay, run, nil)

	done := make(chan error, 1)
	go func() { done <- w.loop(ctx, events) }()
	t.Cleanup(cancel)
	return events, cancel, done
}

func TestNew_Defaults(t *testing.T) {
	w := New("/photos", 0, func(context.Context) error { return nil }, nil)
	assert.Equal(t, "/photos", w.dir)
	assert.Equal(t, DefaultDelay, w.delay)
	assert.NotNil(t, w.logger)
}

func TestWatcher_DebouncesBurst(t *testing.T) {
	var runs atomic.Int32
	events, _, _ := startLoop(t, func(context.Context) error {
		runs.Add(1)
		return nil
	})

	for i := 0; i < 5; i++ {
		events <- fakeEvent{path: "/photos/a.jpg"}
	}

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	// no further run without further events
	time.Sleep(5 * testDelay)
	assert.Equal(t, int32(1), runs.Load())
}

func TestWatcher_KeepsGoingAfterFailedRun(t *testing.T) {
	var runs atomic.Int32
	events, _, _ := startLoop(t, func(context.Context) error {
		runs.Add(1)
		return errors.New("render failed")
	})

	events <- fakeEvent{path: "/photos/a.jpg"}
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	events <- fakeEvent{path: "/photos/b.jpg"}
	assert.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestWatcher_RunsDoNotOverlap(t *testing.T) {
	var active, maxActive, runs atomic.Int32
	events, _, _ := startLoop(t, func(context.Context) error {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		time.Sleep(3 * testDelay)
		active.Add(-1)
		runs.Add(1)
		return nil
	})

	events <- fakeEvent{path: "/photos/a.jpg"}
	time.Sleep(2 * testDelay)
	// arrives while the first run is busy
	events <- fakeEvent{path: "/photos/b.jpg"}

	require.Eventually(t, func() bool { return runs.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	_, cancel, done := startLoop(t, func(context.Context) error { return nil })
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestWatcher_Watch(t *testing.T) {
	dir := t.TempDir()
	// tmpdir may live behind a symlink on macos
	dir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	ran := make(chan struct{}, 1)
	w := New(dir, testDelay, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// give notify a moment to register the watch
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.jpg"), []byte("jpeg"), 0o644))

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for run after file event")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
