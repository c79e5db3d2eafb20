package cyclelog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIndexAppendReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.index")
	idx, err := openIndex(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := uint64(0); i < 10; i++ {
		if err := idx.append(100+i, i*32); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := idx.close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if fi.Size() != 10*entryWidth {
		t.Fatalf("closed index size %d", fi.Size())
	}

	idx, err = openIndex(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.close()
	if idx.count != 10 {
		t.Fatalf("count %d", idx.count)
	}
	seq, pos, ok := idx.entry(3)
	if !ok || seq != 103 || pos != 96 {
		t.Fatalf("entry 3 = %d %d %v", seq, pos, ok)
	}
	if _, _, ok := idx.entry(10); ok {
		t.Fatalf("entry past count")
	}
}

func TestIndexGrows(t *testing.T) {
	idx, err := openIndex(filepath.Join(t.TempDir(), "g.index"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.close()
	n := uint64(indexInitialBytes/entryWidth) + 5
	for i := uint64(0); i < n; i++ {
		if err := idx.append(i, i); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if len(idx.mmap) != 2*indexInitialBytes {
		t.Fatalf("mapping size %d", len(idx.mmap))
	}
	seq, pos, ok := idx.entry(n - 1)
	if !ok || seq != n-1 || pos != n-1 {
		t.Fatalf("last entry = %d %d %v", seq, pos, ok)
	}
}

func TestIndexZeroSeq(t *testing.T) {
	idx, err := openIndex(filepath.Join(t.TempDir(), "z.index"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.close()
	// seq 0 at pos 0 must not look like a free slot
	if err := idx.append(0, 0); err != nil {
		t.Fatalf("append: %v", err)
	}
	idx.truncate(0)
	if idx.count != 0 {
		t.Fatalf("count %d", idx.count)
	}
	if err := idx.append(0, 0); err != nil {
		t.Fatalf("append: %v", err)
	}
	if seq, pos, ok := idx.entry(0); !ok || seq != 0 || pos != 0 {
		t.Fatalf("entry = %d %d %v", seq, pos, ok)
	}
}
