package cyclelog

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/tysonmote/gommap"
)

const (
	seqSize = 8
	posSize = 8
	// entryWidth is one index entry: seq+1 (0 marks a free slot) and the
	// frame position in the cycle file.
	entryWidth = seqSize + posSize

	indexInitialBytes = 4096 * entryWidth
)

// index maps the n-th record of a cycle to its position in the cycle file.
// The file is memory mapped and doubled when full.
type index struct {
	file  *os.File
	mmap  gommap.MMap
	count uint64
}

func openIndex(path string) (*index, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := fi.Size()
	if size < indexInitialBytes {
		size = indexInitialBytes
	}
	// round up to whole entries
	size = (size + entryWidth - 1) / entryWidth * entryWidth
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}
	m, err := gommap.Map(f.Fd(), gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("cyclelog: map index %s: %w", path, err)
	}
	idx := &index{file: f, mmap: m}
	capacity := uint64(len(m)) / entryWidth
	for idx.count < capacity {
		if binary.BigEndian.Uint64(m[idx.count*entryWidth:]) == 0 {
			break
		}
		idx.count++
	}
	return idx, nil
}

// entry returns the seq and position of the n-th record.
func (i *index) entry(n uint64) (seq, pos uint64, ok bool) {
	if n >= i.count {
		return 0, 0, false
	}
	off := n * entryWidth
	return binary.BigEndian.Uint64(i.mmap[off:]) - 1, binary.BigEndian.Uint64(i.mmap[off+seqSize:]), true
}

// append records the next entry, growing the mapping if needed.
func (i *index) append(seq, pos uint64) error {
	off := i.count * entryWidth
	if off+entryWidth > uint64(len(i.mmap)) {
		if err := i.grow(); err != nil {
			return err
		}
	}
	binary.BigEndian.PutUint64(i.mmap[off+seqSize:], pos)
	binary.BigEndian.PutUint64(i.mmap[off:], seq+1)
	i.count++
	return nil
}

// truncate drops entries from n on.
func (i *index) truncate(n uint64) {
	for j := n; j < i.count; j++ {
		clear(i.mmap[j*entryWidth : (j+1)*entryWidth])
	}
	if n < i.count {
		i.count = n
	}
}

func (i *index) grow() error {
	size := int64(len(i.mmap)) * 2
	if err := i.mmap.Sync(gommap.MS_SYNC); err != nil {
		return err
	}
	if err := i.mmap.UnsafeUnmap(); err != nil {
		return err
	}
	if err := i.file.Truncate(size); err != nil {
		return err
	}
	m, err := gommap.Map(i.file.Fd(), gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("cyclelog: remap index: %w", err)
	}
	i.mmap = m
	return nil
}

func (i *index) sync() error {
	return i.mmap.Sync(gommap.MS_SYNC)
}

// close syncs the mapping and trims the file to the used entries.
func (i *index) close() error {
	if i.mmap == nil {
		return nil
	}
	if err := i.mmap.Sync(gommap.MS_SYNC); err != nil {
		return err
	}
	if err := i.mmap.UnsafeUnmap(); err != nil {
		return err
	}
	i.mmap = nil
	if err := i.file.Truncate(int64(i.count * entryWidth)); err != nil {
		return err
	}
	if err := i.file.Sync(); err != nil {
		return err
	}
	return i.file.Close()
}
