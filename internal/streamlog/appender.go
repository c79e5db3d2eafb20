package streamlog

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// waitForPoll is the interval at which WaitFor re-reads committed offsets.
const waitForPoll = 10 * time.Millisecond

// Appender writes records to one log. It is safe for concurrent use.
type Appender struct {
	m      *Manager
	name   string
	size   int
	w      Writer
	closed atomic.Bool
	once   sync.Once
}

// Name returns the log name.
func (a *Appender) Name() string { return a.name }

// Size returns the partition count of the log.
func (a *Appender) Size() int { return a.size }

// Closed reports whether the appender was closed.
func (a *Appender) Closed() bool { return a.closed.Load() }

// Append writes msg to partition and returns its offset.
func (a *Appender) Append(partition int, msg []byte) (LogOffset, error) {
	if a.closed.Load() {
		return LogOffset{}, fmt.Errorf("appender %s: %w", a.name, ErrClosed)
	}
	if partition < 0 || partition >= a.size {
		return LogOffset{}, fmt.Errorf("%w: %s has %d partitions, got %d", ErrPartitionOutOfRange, a.name, a.size, partition)
	}
	off, err := a.w.Append(partition, msg)
	if err != nil {
		if a.closed.Load() {
			return LogOffset{}, fmt.Errorf("appender %s: %w", a.name, ErrClosed)
		}
		return LogOffset{}, fmt.Errorf("append %s-%02d: %w", a.name, partition, err)
	}
	p := LogPartition{Name: a.name, Partition: partition}
	a.m.observer.Appended(p, len(msg))
	return LogOffset{Partition: p, Offset: off}, nil
}

// AppendKey writes msg to the partition owning key.
func (a *Appender) AppendKey(key string, msg []byte) (LogOffset, error) {
	return a.Append(a.PartitionFor(key), msg)
}

// PartitionFor maps key to a partition. The mapping is stable for a given
// partition count.
func (a *Appender) PartitionFor(key string) int {
	return int(xxhash.Sum64String(key) % uint64(a.size))
}

// WaitFor blocks until group committed past offset or timeout elapses. It
// returns false on timeout, including when group never committed.
func (a *Appender) WaitFor(offset LogOffset, group string, timeout time.Duration) (bool, error) {
	if a.closed.Load() {
		return false, fmt.Errorf("appender %s: %w", a.name, ErrClosed)
	}
	if offset.Partition.Name != a.name {
		return false, fmt.Errorf("%w: offset %s does not belong to log %s", ErrInvalidArgument, offset, a.name)
	}
	deadline := time.Now().Add(timeout)
	for {
		next, ok, err := a.m.backend.Committed(offset.Partition, group)
		if err != nil {
			return false, fmt.Errorf("wait for %s: %w", offset, err)
		}
		if ok && next > offset.Offset {
			return true, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		time.Sleep(min(remaining, waitForPoll))
	}
}

// Close releases the writer. Later appends fail with ErrClosed.
func (a *Appender) Close() error {
	var err error
	a.once.Do(func() {
		a.closed.Store(true)
		err = a.w.Close()
	})
	return err
}
