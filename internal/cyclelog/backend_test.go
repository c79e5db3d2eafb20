package cyclelog

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pebblestore "github.com/rzbill/flolog/internal/storage/pebble"
	"github.com/rzbill/flolog/internal/streamlog"
	"github.com/rzbill/flolog/internal/streamlog/logtest"
)

func openTestBackend(t *testing.T, root string, opts Options) *Backend {
	t.Helper()
	opts.Root = root
	if opts.SweepInterval == 0 {
		opts.SweepInterval = -1
	}
	if opts.Fsync == pebblestore.FsyncModeUnspecified {
		opts.Fsync = pebblestore.FsyncModeNever
	}
	b, err := Open(opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return b
}

func TestContract(t *testing.T) {
	logtest.Run(t, func(t *testing.T) logtest.Opener {
		root := t.TempDir()
		return func() streamlog.Backend {
			return openTestBackend(t, root, Options{Retention: "4d"})
		}
	}, logtest.Options{ReadTimeout: time.Second, EmptyTimeout: 50 * time.Millisecond})
}

// fakeClock is a settable clock shared by a backend and the test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Add(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRetentionReclaimsOldCycles(t *testing.T) {
	root := t.TempDir()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	m := streamlog.NewManager(openTestBackend(t, root, Options{Retention: "3m", Now: clock.Now}))
	defer m.Close()

	if _, err := m.CreateIfNotExists("ret", 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	a, err := m.GetAppender("ret")
	if err != nil {
		t.Fatalf("appender: %v", err)
	}
	// one record per minute over 6 minutes
	for i := 0; i < 6; i++ {
		if _, err := a.Append(0, []byte{byte('a' + i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
		clock.Add(time.Minute)
	}
	// lag queries reclaim opportunistically; the upper bound keeps counting
	lag, err := m.GetLag("ret", "g")
	if err != nil {
		t.Fatalf("lag: %v", err)
	}
	if lag.Upper != 6 {
		t.Fatalf("upper = %d, want 6", lag.Upper)
	}
	files, _ := filepath.Glob(filepath.Join(root, "ret", "P-0", "*"+cycleExt))
	// now is 10:06, the window keeps 10:04 and 10:05
	if len(files) != 2 {
		t.Fatalf("want 2 retained cycles, got %v", files)
	}

	tl, err := m.CreateTailer("g", streamlog.PartitionOf("ret", 0))
	if err != nil {
		t.Fatalf("tailer: %v", err)
	}
	rec, err := tl.Read(100 * time.Millisecond)
	if err != nil || rec == nil {
		t.Fatalf("read: %v %v", rec, err)
	}
	if rec.Offset.Offset != 4 || string(rec.Message) != "e" {
		t.Fatalf("first retained record = %s %q", rec.Offset, rec.Message)
	}
}

func TestWatermarkSurvivesFullPurge(t *testing.T) {
	root := t.TempDir()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	b := openTestBackend(t, root, Options{Retention: "1h", Now: clock.Now})
	if _, err := b.Create("wm", 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	w, _ := b.NewWriter("wm")
	for i := 0; i < 3; i++ {
		if _, err := w.Append(0, []byte("x")); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	clock.Add(3 * time.Hour)
	b.Sweep()
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b = openTestBackend(t, root, Options{Retention: "1h", Now: clock.Now})
	defer b.Close()
	w, _ = b.NewWriter("wm")
	off, err := w.Append(0, []byte("y"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if off != 3 {
		t.Fatalf("offset after purge = %d, want 3", off)
	}
}

func TestReopenKeepsOffsets(t *testing.T) {
	root := t.TempDir()
	b := openTestBackend(t, root, Options{Retention: "0"})
	if _, err := b.Create("re", 2); err != nil {
		t.Fatalf("create: %v", err)
	}
	w, _ := b.NewWriter("re")
	for i := 0; i < 5; i++ {
		if _, err := w.Append(1, []byte{byte(i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b = openTestBackend(t, root, Options{Retention: "0"})
	defer b.Close()
	w, _ = b.NewWriter("re")
	off, err := w.Append(1, []byte{5})
	if err != nil || off != 5 {
		t.Fatalf("append after reopen = %d, %v", off, err)
	}
	r, err := b.NewReader("g", []streamlog.LogPartition{streamlog.PartitionOf("re", 1)})
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	defer r.Close()
	for i := 0; i < 6; i++ {
		rec, err := r.Read(100 * time.Millisecond)
		if err != nil || rec == nil {
			t.Fatalf("read %d: %v %v", i, rec, err)
		}
		if rec.Offset.Offset != int64(i) || rec.Message[0] != byte(i) {
			t.Fatalf("read %d got %s %v", i, rec.Offset, rec.Message)
		}
	}
}

func TestDeleteRefusesForeignFiles(t *testing.T) {
	root := t.TempDir()
	m := streamlog.NewManager(openTestBackend(t, root, Options{}))
	defer m.Close()
	if _, err := m.CreateIfNotExists("shared", 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	foreign := filepath.Join(root, "shared", "notes.txt")
	if err := os.WriteFile(foreign, []byte("keep me"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := m.Delete("shared")
	require.ErrorIs(t, err, streamlog.ErrForeignFiles)
	require.ErrorIs(t, err, streamlog.ErrInvalidArgument)
	if _, err := os.Stat(foreign); err != nil {
		t.Fatalf("foreign file removed: %v", err)
	}
	exists, _ := m.Exists("shared")
	require.True(t, exists)

	require.NoError(t, os.Remove(foreign))
	deleted, err := m.Delete("shared")
	require.NoError(t, err)
	require.True(t, deleted)
	_, err = os.Stat(filepath.Join(root, "shared"))
	require.True(t, os.IsNotExist(err))
}

func TestReadWakesOnAppend(t *testing.T) {
	b := openTestBackend(t, t.TempDir(), Options{})
	defer b.Close()
	if _, err := b.Create("wake", 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	r, err := b.NewReader("g", []streamlog.LogPartition{streamlog.PartitionOf("wake", 0)})
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	defer r.Close()
	w, _ := b.NewWriter("wake")

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Append(0, []byte("late"))
	}()
	start := time.Now()
	rec, err := r.Read(5 * time.Second)
	if err != nil || rec == nil {
		t.Fatalf("read: %v %v", rec, err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("reader was not woken by the append")
	}
}

func TestReadReturnsAfterReaderClose(t *testing.T) {
	b := openTestBackend(t, t.TempDir(), Options{})
	defer b.Close()
	if _, err := b.Create("rc", 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	r, err := b.NewReader("g", []streamlog.LogPartition{streamlog.PartitionOf("rc", 0)})
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := r.Read(10 * time.Second)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	_ = r.Close()
	select {
	case err := <-done:
		require.ErrorIs(t, err, streamlog.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatalf("read did not return after close")
	}
}

func TestListConsumerGroupsWithSlashes(t *testing.T) {
	b := openTestBackend(t, t.TempDir(), Options{})
	defer b.Close()
	if _, err := b.Create("grp", 2); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, g := range []string{"a", "a/b", "test/consumer"} {
		r, err := b.NewReader(g, []streamlog.LogPartition{streamlog.PartitionOf("grp", 1)})
		if err != nil {
			t.Fatalf("reader: %v", err)
		}
		require.NoError(t, r.Commit())
		require.NoError(t, r.Close())
	}
	groups, err := b.ListConsumerGroups("grp")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "a/b", "test/consumer"}, groups)

	// resetting "a" leaves "a/b" alone
	r, _ := b.NewReader("a", []streamlog.LogPartition{streamlog.PartitionOf("grp", 1)})
	require.NoError(t, r.Reset())
	groups, _ = b.ListConsumerGroups("grp")
	require.ElementsMatch(t, []string{"a/b", "test/consumer"}, groups)
}

func TestRetentionUnitChangeKeepsLog(t *testing.T) {
	root := t.TempDir()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	b := openTestBackend(t, root, Options{Retention: "4d", Now: clock.Now})
	if _, err := b.Create("ret", 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	w, _ := b.NewWriter("ret")
	for _, msg := range []string{"a", "b"} {
		if _, err := w.Append(0, []byte(msg)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	m := streamlog.NewManager(openTestBackend(t, root, Options{Retention: "12h", Now: clock.Now}))
	defer m.Close()
	exists, err := m.Exists("ret")
	require.NoError(t, err)
	require.True(t, exists)
	names, err := m.ListAll()
	require.NoError(t, err)
	require.Equal(t, []string{"ret"}, names)

	a, err := m.GetAppender("ret")
	require.NoError(t, err)
	off, err := a.Append(0, []byte("c"))
	require.NoError(t, err)
	require.Equal(t, int64(2), off.Offset)

	tl, err := m.CreateTailer("g", streamlog.PartitionOf("ret", 0))
	require.NoError(t, err)
	for _, want := range []string{"a", "b", "c"} {
		rec, err := tl.Read(100 * time.Millisecond)
		require.NoError(t, err)
		require.NotNil(t, rec)
		require.Equal(t, want, string(rec.Message))
	}
	require.NoError(t, tl.Close())

	// the log stays daily; a 12h window keeps the current day only
	clock.Add(48 * time.Hour)
	_, err = a.Append(0, []byte("d"))
	require.NoError(t, err)
	m.Backend().(*Backend).Sweep()
	files, _ := filepath.Glob(filepath.Join(root, "ret", "P-0", "*"+cycleExt))
	require.Len(t, files, 1)
	require.Equal(t, "20260303"+cycleExt, filepath.Base(files[0]))
}

func TestRecordAt(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	b := openTestBackend(t, t.TempDir(), Options{Retention: "1h", Now: clock.Now})
	defer b.Close()
	if _, err := b.Create("at", 2); err != nil {
		t.Fatalf("create: %v", err)
	}
	w, _ := b.NewWriter("at")
	_, _ = w.Append(1, []byte("x"))
	clock.Add(time.Second)
	_, _ = w.Append(1, []byte("y"))

	rec, ts, err := b.RecordAt(streamlog.LogOffset{Partition: streamlog.PartitionOf("at", 1), Offset: 1})
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "y", string(rec.Message))
	require.True(t, ts.Equal(clock.Now()), "append time %s", ts)

	rec, _, err = b.RecordAt(streamlog.LogOffset{Partition: streamlog.PartitionOf("at", 1), Offset: 2})
	require.NoError(t, err)
	require.Nil(t, rec)
	rec, _, err = b.RecordAt(streamlog.LogOffset{Partition: streamlog.PartitionOf("at", 0), Offset: 0})
	require.NoError(t, err)
	require.Nil(t, rec)
	_, _, err = b.RecordAt(streamlog.LogOffset{Partition: streamlog.PartitionOf("at", 2), Offset: 0})
	require.ErrorIs(t, err, streamlog.ErrPartitionOutOfRange)

	// reclaimed records are gone
	clock.Add(3 * time.Hour)
	b.Sweep()
	rec, _, err = b.RecordAt(streamlog.LogOffset{Partition: streamlog.PartitionOf("at", 1), Offset: 0})
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestOffsetStoreQuietWithoutLogger(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	b := openTestBackend(t, t.TempDir(), Options{})
	if _, err := b.Create("quiet", 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	w, _ := b.NewWriter("quiet")
	_, _ = w.Append(0, []byte("x"))
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("stdlib log output: %s", buf.String())
	}
}
