package streamlog

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	logpkg "github.com/rzbill/flolog/pkg/log"
)

// Tailer reads a set of partitions for one consumer group. A Tailer is not
// safe for concurrent use, except Close.
type Tailer struct {
	m       *Manager
	group   string
	reader  Reader
	dynamic bool
	static  []LogPartition
	// logs subscribed to by a dynamic tailer
	logs   []string
	closed atomic.Bool
	once   sync.Once
}

// Group returns the consumer group.
func (t *Tailer) Group() string { return t.group }

// Closed reports whether the tailer was closed.
func (t *Tailer) Closed() bool { return t.closed.Load() }

// Dynamic reports whether the assignment is managed by a group coordinator.
func (t *Tailer) Dynamic() bool { return t.dynamic }

// Assignments returns the partitions currently assigned.
func (t *Tailer) Assignments() []LogPartition {
	if t.dynamic {
		if t.closed.Load() {
			return nil
		}
		return t.reader.Assignments()
	}
	return slices.Clone(t.static)
}

// tails reports whether the tailer reads partitions of name.
func (t *Tailer) tails(name string) bool {
	if t.dynamic {
		return slices.Contains(t.logs, name)
	}
	for _, p := range t.static {
		if p.Name == name {
			return true
		}
	}
	return false
}

func (t *Tailer) checkOpen() error {
	if t.closed.Load() {
		return fmt.Errorf("tailer %s: %w", t.group, ErrClosed)
	}
	return nil
}

func (t *Tailer) checkAssigned(p LogPartition) error {
	if !slices.Contains(t.Assignments(), p) {
		return fmt.Errorf("%w: %s is not assigned to tailer %s", ErrNotAssigned, p, t.group)
	}
	return nil
}

// Read returns the next record, or nil when none arrives within timeout.
// Dynamic tailers return ErrRebalance when their assignment changed.
func (t *Tailer) Read(timeout time.Duration) (*Record, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	rec, err := t.reader.Read(timeout)
	if err != nil {
		if errors.Is(err, ErrRebalance) {
			t.m.observer.Rebalanced(t.group)
			t.m.logger.Debug("tailer rebalanced", logpkg.Str("group", t.group), logpkg.Any("assignments", t.Assignments()))
			return nil, err
		}
		if t.closed.Load() {
			return nil, fmt.Errorf("tailer %s: %w", t.group, ErrClosed)
		}
		return nil, fmt.Errorf("read %s: %w", t.group, err)
	}
	if rec != nil {
		t.m.observer.Consumed(t.group, rec.Offset.Partition, len(rec.Message))
	}
	return rec, nil
}

// Commit persists the position of every assigned partition.
func (t *Tailer) Commit() error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if err := t.reader.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", t.group, err)
	}
	t.m.observer.Committed(t.group, len(t.Assignments()))
	return nil
}

// CommitPartition persists the position of p only.
func (t *Tailer) CommitPartition(p LogPartition) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if err := t.checkAssigned(p); err != nil {
		return err
	}
	if err := t.reader.Commit(p); err != nil {
		return fmt.Errorf("commit %s on %s: %w", t.group, p, err)
	}
	t.m.observer.Committed(t.group, 1)
	return nil
}

// Seek positions the partition of offset so the next record read from it is
// the one at offset.
func (t *Tailer) Seek(offset LogOffset) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if err := t.checkAssigned(offset.Partition); err != nil {
		return err
	}
	if offset.Offset < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrInvalidArgument, offset.Offset)
	}
	return t.reader.Seek(offset)
}

// ToStart rewinds every assigned partition to its first retained record.
func (t *Tailer) ToStart() error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	return t.reader.ToStart()
}

// ToEnd moves past the last appended record of every assigned partition.
func (t *Tailer) ToEnd() error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	return t.reader.ToEnd()
}

// ToLastCommitted moves to the group's committed positions, or to the start
// of partitions the group never committed.
func (t *Tailer) ToLastCommitted() error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	return t.reader.ToLastCommitted()
}

// Reset clears the group's committed offsets on the assigned partitions and
// rewinds to the start.
func (t *Tailer) Reset() error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	return t.reader.Reset()
}

// Close releases the tailer's partitions. Committed offsets are kept.
func (t *Tailer) Close() error {
	var err error
	t.once.Do(func() {
		t.closed.Store(true)
		t.m.mu.Lock()
		r := t.reader
		t.m.mu.Unlock()
		if r != nil {
			err = r.Close()
		}
		t.m.release(t)
		t.m.observer.TailerClosed(t.group)
	})
	return err
}
