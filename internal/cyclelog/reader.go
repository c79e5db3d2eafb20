package cyclelog

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/flolog/internal/streamlog"
)

// cursor is the read position of a reader on one partition.
type cursor struct {
	lp   streamlog.LogPartition
	log  *logState
	part *partition
	pos  uint64
}

// reader serves a static assignment. Partitions are polled round-robin so a
// busy partition cannot starve the others.
type reader struct {
	b       *Backend
	group   string
	cursors []*cursor
	rr      int

	closed atomic.Bool
	done   chan struct{}
	once   sync.Once
}

func (r *reader) Read(timeout time.Duration) (*streamlog.Record, error) {
	deadline := time.Now().Add(timeout)
	for {
		if r.closed.Load() {
			return nil, streamlog.ErrClosed
		}
		// grab the channel before polling so an append in between wakes us
		wake := r.b.waitCh()
		rec, err := r.poll()
		if err != nil || rec != nil {
			return rec, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-wake:
		case <-timer.C:
		case <-r.done:
		}
		timer.Stop()
	}
}

func (r *reader) poll() (*streamlog.Record, error) {
	n := len(r.cursors)
	for i := 0; i < n; i++ {
		c := r.cursors[(r.rr+i)%n]
		f, ok, err := c.part.read(c.pos)
		if err != nil {
			return nil, fmt.Errorf("cyclelog: read %s: %w", c.lp, err)
		}
		if !ok {
			continue
		}
		c.pos = f.seq + 1
		r.rr = (r.rr + i + 1) % n
		return &streamlog.Record{
			Offset:  streamlog.LogOffset{Partition: c.lp, Offset: int64(f.seq)},
			Message: f.payload,
		}, nil
	}
	return nil, nil
}

func (r *reader) Assignments() []streamlog.LogPartition {
	out := make([]streamlog.LogPartition, len(r.cursors))
	for i, c := range r.cursors {
		out[i] = c.lp
	}
	return out
}

func (r *reader) cursorOf(p streamlog.LogPartition) (*cursor, error) {
	for _, c := range r.cursors {
		if c.lp == p {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", streamlog.ErrNotAssigned, p)
}

func (r *reader) Seek(offset streamlog.LogOffset) error {
	c, err := r.cursorOf(offset.Partition)
	if err != nil {
		return err
	}
	c.pos = uint64(offset.Offset)
	return nil
}

func (r *reader) ToStart() error {
	for _, c := range r.cursors {
		c.pos, _ = c.part.bounds()
	}
	return nil
}

func (r *reader) ToEnd() error {
	for _, c := range r.cursors {
		_, c.pos = c.part.bounds()
	}
	return nil
}

func (r *reader) ToLastCommitted() error {
	for _, c := range r.cursors {
		next, ok, err := c.log.offsets.committed(r.group, c.lp.Partition)
		if err != nil {
			return fmt.Errorf("cyclelog: load cursor %s: %w", c.lp, err)
		}
		if ok {
			c.pos = next
		} else {
			c.pos, _ = c.part.bounds()
		}
	}
	return nil
}

func (r *reader) Reset() error {
	byLog := make(map[*logState][]int)
	for _, c := range r.cursors {
		byLog[c.log] = append(byLog[c.log], c.lp.Partition)
	}
	for ls, parts := range byLog {
		if err := ls.offsets.reset(r.group, parts); err != nil {
			return fmt.Errorf("cyclelog: reset %s: %w", ls.name, err)
		}
	}
	return r.ToStart()
}

func (r *reader) Commit(partitions ...streamlog.LogPartition) error {
	selected := r.cursors
	if len(partitions) > 0 {
		selected = make([]*cursor, 0, len(partitions))
		for _, p := range partitions {
			c, err := r.cursorOf(p)
			if err != nil {
				return err
			}
			selected = append(selected, c)
		}
	}
	byLog := make(map[*logState]map[int]uint64)
	for _, c := range selected {
		if byLog[c.log] == nil {
			byLog[c.log] = make(map[int]uint64)
		}
		byLog[c.log][c.lp.Partition] = c.pos
	}
	for ls, positions := range byLog {
		if err := ls.offsets.commit(r.group, positions); err != nil {
			return fmt.Errorf("cyclelog: commit %s: %w", ls.name, err)
		}
	}
	return nil
}

func (r *reader) Close() error {
	r.once.Do(func() {
		r.closed.Store(true)
		close(r.done)
	})
	return nil
}
