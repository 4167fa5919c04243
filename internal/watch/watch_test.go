package watch

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// waitFor returns the first event accepted by match, or fails after timeout.
func waitFor(t *testing.T, src Source, timeout time.Duration, match func(Event) bool) Event {
	t.Helper()

	deadline := time.After(timeout)

	for {
		select {
		case ev, ok := <-src.Events():
			require.True(t, ok, "event stream closed unexpectedly")

			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
		}
	}
}

// assertNoEvent fails if any event arrives within d.
func assertNoEvent(t *testing.T, src Source, d time.Duration) {
	t.Helper()

	select {
	case ev := <-src.Events():
		t.Fatalf("unexpected event %s %s", ev.Kind, ev.Path)
	case <-time.After(d):
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// ---------------------------------------------------------------------------
// Debouncer
// ---------------------------------------------------------------------------

func TestDebouncer_SingleEvent(t *testing.T) {
	var callCount atomic.Int32
	var lastPath atomic.Value

	d := NewDebouncer(50*time.Millisecond, func(ev Event) {
		callCount.Add(1)
		lastPath.Store(ev.Path)
	})
	defer d.Stop()

	d.Trigger(Event{Path: "a.rst", Kind: Modified})

	// Wait for debounce to fire.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), callCount.Load())
	assert.Equal(t, "a.rst", lastPath.Load())
}

func TestDebouncer_MultipleEventsCoalesced(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(100*time.Millisecond, func(Event) {
		callCount.Add(1)
	})
	defer d.Stop()

	// Fire 10 rapid events — should coalesce into 1.
	for i := 0; i < 10; i++ {
		d.Trigger(Event{Path: "index.rst", Kind: Modified})
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), callCount.Load())
}

func TestDebouncer_LastEventWins(t *testing.T) {
	var lastPath atomic.Value

	d := NewDebouncer(50*time.Millisecond, func(ev Event) {
		lastPath.Store(ev.Path)
	})
	defer d.Stop()

	d.Trigger(Event{Path: "first.rst"})
	time.Sleep(10 * time.Millisecond)
	d.Trigger(Event{Path: "second.rst"})
	time.Sleep(10 * time.Millisecond)
	d.Trigger(Event{Path: "third.rst"})

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, "third.rst", lastPath.Load())
}

func TestDebouncer_Stop(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(50*time.Millisecond, func(Event) {
		callCount.Add(1)
	})

	d.Trigger(Event{Path: "a.rst"})
	d.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), callCount.Load())
}

// ---------------------------------------------------------------------------
// ExtensionSet
// ---------------------------------------------------------------------------

func TestExtensionSet_Match(t *testing.T) {
	set := NewExtensionSet(DefaultExtensions...)

	tests := []struct {
		path string
		want bool
	}{
		{"index.rst", true},
		{"/docs/sub/page.rst", true},
		{"notes.txt", true},
		{"index.rst~", true},
		{"notes.txt~", true},
		{"conf.py", false},
		{"image.png", false},
		{"index.rst.swp", false},
		{"rst", false},
		{".rst", false},
		{"html/_sources/index.rst.txt", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, set.Match(tt.path))
		})
	}
}

func TestExtensionSet_Normalises(t *testing.T) {
	set := NewExtensionSet("rst", ".rst", "*.rst", " md ", "")
	assert.Equal(t, []string{"rst", "md"}, set.List())
	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Match("README.md"))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "created", Created.String())
	assert.Equal(t, "modified", Modified.String())
	assert.Equal(t, "moved", Moved.String())
	assert.Equal(t, "deleted", Deleted.String())
	assert.Equal(t, "unknown", Kind(0).String())
}

// ---------------------------------------------------------------------------
// kindOf
// ---------------------------------------------------------------------------

func TestKindOf(t *testing.T) {
	tests := []struct {
		name   string
		op     fsnotify.Op
		want   Kind
		wantOK bool
	}{
		{"write", fsnotify.Write, Modified, true},
		{"create", fsnotify.Create, Created, true},
		{"remove", fsnotify.Remove, Deleted, true},
		{"rename", fsnotify.Rename, Moved, true},
		{"create and write", fsnotify.Create | fsnotify.Write, Created, true},
		{"chmod only", fsnotify.Chmod, 0, false},
		{"zero op", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := kindOf(tt.op)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// ---------------------------------------------------------------------------
// filter
// ---------------------------------------------------------------------------

func TestFilter(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "html")

	f, err := newFilter(root, NewExtensionSet(DefaultExtensions...), []string{out})
	require.NoError(t, err)

	assert.False(t, f.skipDir(root), "root is always watched")
	assert.True(t, f.skipDir(filepath.Join(root, ".git")))
	assert.True(t, f.skipDir(out))
	assert.True(t, f.skipDir(filepath.Join(out, "_sources")))
	assert.False(t, f.skipDir(filepath.Join(root, "chapters")))
	assert.False(t, f.skipDir(root+"-other"), "prefix match must respect separators")

	assert.True(t, f.accept(filepath.Join(root, "index.rst")))
	assert.False(t, f.accept(filepath.Join(out, "_sources", "index.rst.txt")))
	assert.False(t, f.accept(filepath.Join(root, "conf.py")))
}

// ---------------------------------------------------------------------------
// addRecursive
// ---------------------------------------------------------------------------

func TestAddRecursive_SkipsHiddenAndExcludedDirs(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "chapters", "sub"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git", "objects"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "html", "_static"), 0o755))
	writeFile(t, filepath.Join(dir, "index.rst"), "Hello")

	opts := DefaultOptions()
	opts.Root = dir
	opts.Exclude = []string{filepath.Join(dir, "html")}

	src, err := Open(opts)
	require.NoError(t, err)
	defer src.Close()

	native, ok := src.(*nativeSource)
	require.True(t, ok)

	watched := make(map[string]bool)
	for _, p := range native.watcher.WatchList() {
		watched[p] = true
	}

	assert.True(t, watched[dir], "root should be watched")
	assert.True(t, watched[filepath.Join(dir, "chapters")])
	assert.True(t, watched[filepath.Join(dir, "chapters", "sub")])
	assert.False(t, watched[filepath.Join(dir, ".git")])
	assert.False(t, watched[filepath.Join(dir, ".git", "objects")])
	assert.False(t, watched[filepath.Join(dir, "html")])
	assert.False(t, watched[filepath.Join(dir, "html", "_static")])
}

// ---------------------------------------------------------------------------
// Open
// ---------------------------------------------------------------------------

func TestOpen_NonExistentDir(t *testing.T) {
	opts := DefaultOptions()
	opts.Root = "/nonexistent/docs/dir/12345"

	_, err := Open(opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpen_RootIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "index.rst")
	writeFile(t, file, "Hello")

	opts := DefaultOptions()
	opts.Root = file

	_, err := Open(opts)
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func TestOpen_PollingNonExistentDir(t *testing.T) {
	opts := DefaultOptions()
	opts.Root = "/nonexistent/docs/dir/12345"
	opts.Polling = true

	_, err := Open(opts)
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// Native source (integration)
// ---------------------------------------------------------------------------

func TestNativeSource_EmitsWatchedExtensions(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, "index.rst")
	writeFile(t, index, "Hello")

	opts := DefaultOptions()
	opts.Root = dir

	src, err := Open(opts)
	require.NoError(t, err)
	defer src.Close()

	// Irrelevant file first; it must never surface.
	writeFile(t, filepath.Join(dir, "conf.py"), "master_doc = 'index'\n")
	writeFile(t, index, "Hello\nWorld\n")

	ev := waitFor(t, src, 2*time.Second, func(Event) bool { return true })
	assert.Equal(t, index, ev.Path)
	assert.Equal(t, Modified, ev.Kind)
}

func TestNativeSource_IgnoresOtherExtensions(t *testing.T) {
	dir := t.TempDir()

	opts := DefaultOptions()
	opts.Root = dir

	src, err := Open(opts)
	require.NoError(t, err)
	defer src.Close()

	writeFile(t, filepath.Join(dir, "conf.py"), "x = 1\n")
	writeFile(t, filepath.Join(dir, "logo.png"), "png")

	assertNoEvent(t, src, 200*time.Millisecond)
}

func TestNativeSource_WatchesNewSubdirectories(t *testing.T) {
	dir := t.TempDir()

	opts := DefaultOptions()
	opts.Root = dir

	src, err := Open(opts)
	require.NoError(t, err)
	defer src.Close()

	sub := filepath.Join(dir, "chapter")
	require.NoError(t, os.Mkdir(sub, 0o755))

	page := filepath.Join(sub, "page.rst")
	writeFile(t, page, "Chapter")

	ev := waitFor(t, src, 2*time.Second, func(ev Event) bool { return ev.Path == page })
	assert.Equal(t, page, ev.Path)
}

func TestNativeSource_DirectoryMovedIntoTree(t *testing.T) {
	dir := t.TempDir()
	staging := t.TempDir()

	opts := DefaultOptions()
	opts.Root = dir

	src, err := Open(opts)
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, os.MkdirAll(filepath.Join(staging, "part", "deep"), 0o755))
	writeFile(t, filepath.Join(staging, "part", "intro.rst"), "Intro")
	writeFile(t, filepath.Join(staging, "part", "deep", "detail.md"), "Detail")
	writeFile(t, filepath.Join(staging, "part", "image.png"), "png")

	require.NoError(t, os.Rename(filepath.Join(staging, "part"), filepath.Join(dir, "part")))

	intro := filepath.Join(dir, "part", "intro.rst")
	detail := filepath.Join(dir, "part", "deep", "detail.md")

	seen := make(map[string]Kind)
	waitFor(t, src, 2*time.Second, func(ev Event) bool {
		assert.NotEqual(t, filepath.Join(dir, "part", "image.png"), ev.Path)
		seen[ev.Path] = ev.Kind

		_, a := seen[intro]
		_, b := seen[detail]

		return a && b
	})

	assert.Equal(t, Created, seen[intro])
	assert.Equal(t, Created, seen[detail])
}

func TestNativeSource_IgnoresExcludedDir(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "html")
	require.NoError(t, os.MkdirAll(filepath.Join(out, "_sources"), 0o755))

	opts := DefaultOptions()
	opts.Root = dir
	opts.Exclude = []string{out}

	src, err := Open(opts)
	require.NoError(t, err)
	defer src.Close()

	writeFile(t, filepath.Join(out, "_sources", "index.rst.txt"), "copy")
	writeFile(t, filepath.Join(out, "notes.txt"), "copy")

	assertNoEvent(t, src, 200*time.Millisecond)
}

func TestNativeSource_CloseEndsStream(t *testing.T) {
	opts := DefaultOptions()
	opts.Root = t.TempDir()

	src, err := Open(opts)
	require.NoError(t, err)
	require.NoError(t, src.Close())

	select {
	case _, ok := <-src.Events():
		assert.False(t, ok, "events channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("events channel not closed after Close")
	}

	// Close is idempotent.
	assert.NoError(t, src.Close())
}

// ---------------------------------------------------------------------------
// Polling source (integration)
// ---------------------------------------------------------------------------

func TestPollingSource_DetectsChange(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, "index.rst")
	writeFile(t, index, "Hello")

	opts := DefaultOptions()
	opts.Root = dir
	opts.Polling = true
	opts.PollInterval = 20 * time.Millisecond

	src, err := Open(opts)
	require.NoError(t, err)
	defer src.Close()

	page := filepath.Join(dir, "page.rst")
	writeFile(t, page, "New page")
	writeFile(t, filepath.Join(dir, "conf.py"), "x = 1\n")

	ev := waitFor(t, src, 2*time.Second, func(Event) bool { return true })
	assert.Equal(t, page, ev.Path)
	assert.Equal(t, Created, ev.Kind)
}

func TestPollingSource_CloseEndsStream(t *testing.T) {
	opts := DefaultOptions()
	opts.Root = t.TempDir()
	opts.Polling = true
	opts.PollInterval = 20 * time.Millisecond

	src, err := Open(opts)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_ = src.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("polling source did not close in time")
	}

	_, ok := <-src.Events()
	assert.False(t, ok)
}

// ---------------------------------------------------------------------------
// Debounced source
// ---------------------------------------------------------------------------

func TestDebouncedSource_CoalescesBurst(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, "index.rst")
	writeFile(t, index, "v0")

	opts := DefaultOptions()
	opts.Root = dir
	opts.Debounce = 150 * time.Millisecond

	src, err := Open(opts)
	require.NoError(t, err)
	defer src.Close()

	for i := 0; i < 5; i++ {
		writeFile(t, index, "v"+string(rune('1'+i)))
		time.Sleep(10 * time.Millisecond)
	}

	ev := waitFor(t, src, 2*time.Second, func(Event) bool { return true })
	assert.Equal(t, index, ev.Path)

	assertNoEvent(t, src, 300*time.Millisecond)
}
