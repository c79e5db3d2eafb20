package cyclelog

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func mustAppend(t *testing.T, p *partition, payload string, now time.Time) uint64 {
	t.Helper()
	seq, _, err := p.append([]byte(payload), now)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	return seq
}

func mustRead(t *testing.T, p *partition, seq uint64) frame {
	t.Helper()
	f, ok, err := p.read(seq)
	if err != nil || !ok {
		t.Fatalf("read %d: ok=%v err=%v", seq, ok, err)
	}
	return f
}

func TestPartitionAppendRead(t *testing.T) {
	p, err := openPartition(t.TempDir(), Hourly, false, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.close()
	for i, s := range []string{"a", "bb", "ccc"} {
		if seq := mustAppend(t, p, s, t0); seq != uint64(i) {
			t.Fatalf("seq %d want %d", seq, i)
		}
	}
	if f := mustRead(t, p, 1); string(f.payload) != "bb" || f.appendMs != t0.UnixMilli() {
		t.Fatalf("frame %+v", f)
	}
	if _, ok, _ := p.read(3); ok {
		t.Fatalf("read past end")
	}
	first, next := p.bounds()
	if first != 0 || next != 3 {
		t.Fatalf("bounds %d %d", first, next)
	}
}

func TestPartitionRollsAcrossCycles(t *testing.T) {
	dir := t.TempDir()
	p, err := openPartition(dir, Minutely, false, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, rolled, _ := p.append([]byte("1"), t0)
	if !rolled {
		t.Fatalf("first append opens a cycle")
	}
	_, rolled, _ = p.append([]byte("2"), t0.Add(10*time.Second))
	if rolled {
		t.Fatalf("same minute must not roll")
	}
	_, rolled, _ = p.append([]byte("3"), t0.Add(90*time.Second))
	if !rolled {
		t.Fatalf("next minute must roll")
	}
	if err := p.close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	files, _ := filepath.Glob(filepath.Join(dir, "*"+cycleExt))
	if len(files) != 2 {
		t.Fatalf("cycle files %v", files)
	}

	p, err = openPartition(dir, Minutely, false, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer p.close()
	for seq, want := range []string{"1", "2", "3"} {
		if f := mustRead(t, p, uint64(seq)); string(f.payload) != want {
			t.Fatalf("seq %d = %q", seq, f.payload)
		}
	}
	if seq := mustAppend(t, p, "4", t0.Add(2*time.Minute)); seq != 3 {
		t.Fatalf("seq after reopen %d", seq)
	}
}

func TestPartitionRecoversTornTail(t *testing.T) {
	dir := t.TempDir()
	p, err := openPartition(dir, Daily, false, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mustAppend(t, p, "keep", t0)
	mustAppend(t, p, "torn", t0)
	if err := p.close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data := filepath.Join(dir, Daily.FileName(Daily.Cycle(t0)))
	fi, err := os.Stat(data)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	// chop the last frame in half
	if err := os.Truncate(data, fi.Size()-5); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	p, err = openPartition(dir, Daily, false, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer p.close()
	if _, next := p.bounds(); next != 1 {
		t.Fatalf("next after recovery %d", next)
	}
	if f := mustRead(t, p, 0); string(f.payload) != "keep" {
		t.Fatalf("payload %q", f.payload)
	}
	if seq := mustAppend(t, p, "again", t0); seq != 1 {
		t.Fatalf("seq %d", seq)
	}
	if f := mustRead(t, p, 1); string(f.payload) != "again" {
		t.Fatalf("payload %q", f.payload)
	}
}

func TestPartitionPurge(t *testing.T) {
	dir := t.TempDir()
	p, err := openPartition(dir, Hourly, false, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.close()
	for h := 0; h < 4; h++ {
		mustAppend(t, p, "x", t0.Add(time.Duration(h)*time.Hour))
	}
	var persisted uint64
	removed, err := p.purge(Hourly.Cycle(t0.Add(3*time.Hour)), 2, func(next uint64) error {
		persisted = next
		return nil
	})
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if len(removed) != 2 || persisted != 4 {
		t.Fatalf("removed %v persisted %d", removed, persisted)
	}
	files, _ := filepath.Glob(filepath.Join(dir, "*"))
	if len(files) != 4 {
		t.Fatalf("remaining files %v", files)
	}
	// reads of purged sequences skip to the first retained record
	if f := mustRead(t, p, 0); f.seq != 2 {
		t.Fatalf("first retained seq %d", f.seq)
	}
	if first, next := p.bounds(); first != 2 || next != 4 {
		t.Fatalf("bounds %d %d", first, next)
	}
}

func TestPartitionWatermarkWithoutFiles(t *testing.T) {
	p, err := openPartition(t.TempDir(), Daily, false, 17)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.close()
	if first, next := p.bounds(); first != 17 || next != 17 {
		t.Fatalf("bounds %d %d", first, next)
	}
	if seq := mustAppend(t, p, "x", t0); seq != 17 {
		t.Fatalf("seq %d", seq)
	}
}

func TestPartitionClosed(t *testing.T) {
	p, err := openPartition(t.TempDir(), Daily, false, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = p.close()
	if _, _, err := p.append([]byte("x"), t0); err != errPartitionClosed {
		t.Fatalf("append on closed: %v", err)
	}
}
