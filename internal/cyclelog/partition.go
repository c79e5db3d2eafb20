package cyclelog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
)

const (
	cycleExt = ".cycle"
	indexExt = ".index"
)

var errPartitionClosed = errors.New("cyclelog: partition closed")

// segment is one cycle file and its index.
type segment struct {
	cycle int64
	base  uint64
	size  int64
	data  *os.File
	index *index
}

func (s *segment) count() uint64 { return s.index.count }

func (s *segment) close() error {
	return multierr.Combine(s.index.close(), s.data.Close())
}

// partition is the sequence of cycle files of one log partition.
type partition struct {
	dir   string
	roll  RollCycle
	fsync bool

	mu     sync.RWMutex
	segs   []*segment
	next   uint64
	dirty  bool
	closed bool
}

// openPartition loads the cycle files found in dir. watermark is the
// persisted next sequence, used when retention removed every cycle.
func openPartition(dir string, roll RollCycle, fsync bool, watermark uint64) (*partition, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var cycles []int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), cycleExt) {
			continue
		}
		c, err := roll.ParseFileName(e.Name())
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i] < cycles[j] })

	p := &partition{dir: dir, roll: roll, fsync: fsync, next: watermark}
	expect := watermark
	for n, c := range cycles {
		s, err := p.openSegment(c)
		if err != nil {
			_ = p.close()
			return nil, err
		}
		if seq, _, ok := s.index.entry(0); ok {
			s.base = seq
		} else {
			s.base = expect
		}
		if err := s.recover(n == len(cycles)-1); err != nil {
			_ = s.close()
			_ = p.close()
			return nil, err
		}
		p.segs = append(p.segs, s)
		expect = s.base + s.count()
	}
	if expect > p.next {
		p.next = expect
	}
	return p, nil
}

func (p *partition) openSegment(cycle int64) (*segment, error) {
	name := p.roll.FileName(cycle)
	data, err := os.OpenFile(filepath.Join(p.dir, name), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	idx, err := openIndex(filepath.Join(p.dir, strings.TrimSuffix(name, cycleExt)+indexExt))
	if err != nil {
		data.Close()
		return nil, err
	}
	return &segment{cycle: cycle, data: data, index: idx}, nil
}

// recover computes the data size from the index and drops a torn tail:
// index entries whose frame is incomplete and, on the last segment, bytes
// written after the last indexed frame.
func (s *segment) recover(last bool) error {
	fi, err := s.data.Stat()
	if err != nil {
		return err
	}
	for s.index.count > 0 {
		_, pos, _ := s.index.entry(s.index.count - 1)
		var lenb [frameLenSize]byte
		if _, err := s.data.ReadAt(lenb[:], int64(pos)); err == nil {
			end := int64(pos) + frameLenSize + int64(binary.BigEndian.Uint32(lenb[:]))
			if end <= fi.Size() {
				s.size = end
				break
			}
		}
		s.index.truncate(s.index.count - 1)
	}
	if last && s.size < fi.Size() {
		return s.data.Truncate(s.size)
	}
	return nil
}

// append writes payload at the end of the current cycle, rolling to a new
// cycle file when now is past it. It returns the record sequence and whether
// a roll happened.
func (p *partition) append(payload []byte, now time.Time) (uint64, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, false, errPartitionClosed
	}
	rolled := false
	cycle := p.roll.Cycle(now)
	var cur *segment
	if n := len(p.segs); n > 0 {
		cur = p.segs[n-1]
	}
	if cur == nil || cur.cycle < cycle {
		if cur != nil {
			if err := cur.index.sync(); err != nil {
				return 0, false, err
			}
			if err := cur.data.Sync(); err != nil {
				return 0, false, err
			}
		}
		s, err := p.openSegment(cycle)
		if err != nil {
			return 0, false, fmt.Errorf("cyclelog: roll %s: %w", p.dir, err)
		}
		s.base = p.next
		p.segs = append(p.segs, s)
		cur = s
		rolled = true
	}

	seq := p.next
	buf := encodeFrame(seq, now.UnixMilli(), payload)
	if _, err := cur.data.WriteAt(buf, cur.size); err != nil {
		return 0, rolled, err
	}
	if p.fsync {
		if err := cur.data.Sync(); err != nil {
			return 0, rolled, err
		}
	}
	if err := cur.index.append(seq, uint64(cur.size)); err != nil {
		return 0, rolled, err
	}
	cur.size += int64(len(buf))
	p.next++
	p.dirty = true
	return seq, rolled, nil
}

// read returns the record at seq, or the first retained record after it when
// seq was reclaimed by retention. ok is false when nothing is available yet.
func (p *partition) read(seq uint64) (frame, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return frame{}, false, errPartitionClosed
	}
	if seq >= p.next || len(p.segs) == 0 {
		return frame{}, false, nil
	}
	if first := p.segs[0].base; seq < first {
		seq = first
	}
	i := sort.Search(len(p.segs), func(i int) bool { return p.segs[i].base > seq }) - 1
	if i < 0 {
		return frame{}, false, nil
	}
	s := p.segs[i]
	_, pos, ok := s.index.entry(seq - s.base)
	if !ok {
		return frame{}, false, nil
	}
	var lenb [frameLenSize]byte
	if _, err := s.data.ReadAt(lenb[:], int64(pos)); err != nil {
		return frame{}, false, fmt.Errorf("cyclelog: read %s at %d: %w", s.data.Name(), pos, err)
	}
	body := make([]byte, binary.BigEndian.Uint32(lenb[:]))
	if _, err := s.data.ReadAt(body, int64(pos)+frameLenSize); err != nil && !errors.Is(err, io.EOF) {
		return frame{}, false, fmt.Errorf("cyclelog: read %s at %d: %w", s.data.Name(), pos, err)
	}
	f, err := decodeFrameBody(body)
	if err != nil {
		return frame{}, false, fmt.Errorf("%w: %s seq %d", err, s.data.Name(), seq)
	}
	if f.seq != seq {
		return frame{}, false, fmt.Errorf("%w: %s expected seq %d got %d", errCorruptFrame, s.data.Name(), seq, f.seq)
	}
	return f, true, nil
}

// bounds returns the first retained sequence and the next one to append.
func (p *partition) bounds() (first, next uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.segs) == 0 {
		return p.next, p.next
	}
	return p.segs[0].base, p.next
}

// purge removes the cycles out of the retention window. persist is called
// with the next sequence before any file is removed.
func (p *partition) purge(current int64, keep int, persist func(next uint64) error) ([]int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, nil
	}
	cycles := make([]int64, len(p.segs))
	for i, s := range p.segs {
		cycles[i] = s.cycle
	}
	expired := ExpiredCycles(cycles, current, keep)
	if len(expired) == 0 {
		return nil, nil
	}
	if err := persist(p.next); err != nil {
		return nil, err
	}
	var errs error
	n := len(expired)
	for _, s := range p.segs[:n] {
		name := p.roll.FileName(s.cycle)
		errs = multierr.Append(errs, s.close())
		errs = multierr.Append(errs, os.Remove(filepath.Join(p.dir, name)))
		errs = multierr.Append(errs, os.Remove(filepath.Join(p.dir, strings.TrimSuffix(name, cycleExt)+indexExt)))
	}
	p.segs = append([]*segment(nil), p.segs[n:]...)
	return expired, errs
}

// sync flushes the current cycle when appends happened since the last call.
func (p *partition) sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || !p.dirty || len(p.segs) == 0 {
		return nil
	}
	p.dirty = false
	cur := p.segs[len(p.segs)-1]
	return multierr.Combine(cur.data.Sync(), cur.index.sync())
}

func (p *partition) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	var err error
	for _, s := range p.segs {
		err = multierr.Append(err, s.close())
	}
	p.segs = nil
	return err
}
