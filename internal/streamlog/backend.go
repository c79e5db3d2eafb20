package streamlog

import (
	"time"
)

// Backend is the storage and transport a Manager runs on. Implementations
// must be safe for concurrent use.
type Backend interface {
	// Kind names the backend, e.g. "disk" or "kafka".
	Kind() string

	Exists(name string) (bool, error)
	// Create creates the log if absent and reports whether it did. An
	// existing log keeps its partition count.
	Create(name string, partitions int) (bool, error)
	// Size returns the partition count, ErrUnknownLog when absent.
	Size(name string) (int, error)
	// Delete removes the log and its group offsets, reporting whether it
	// existed.
	Delete(name string) (bool, error)
	ListAll() ([]string, error)
	ListConsumerGroups(name string) ([]string, error)

	// LagPerPartition returns one LogLag per partition for group.
	LagPerPartition(name, group string) ([]LogLag, error)
	// Committed returns the next offset to read committed by group on p.
	Committed(p LogPartition, group string) (next int64, ok bool, err error)
	// RecordAt returns the record at offset and its append time, or a nil
	// record when it is not retained.
	RecordAt(offset LogOffset) (*Record, time.Time, error)

	NewWriter(name string) (Writer, error)
	// NewReader opens a reader over a static assignment, positioned on the
	// group's last committed offsets.
	NewReader(group string, partitions []LogPartition) (Reader, error)

	SupportSubscribe() bool
	// Subscribe opens a reader whose assignment is driven by the group
	// coordinator.
	Subscribe(group string, names []string, listener RebalanceListener) (Reader, error)

	Close() error
}

// Writer appends to the partitions of one log.
type Writer interface {
	// Append returns the offset assigned to msg.
	Append(partition int, msg []byte) (int64, error)
	Close() error
}

// Reader is a backend read session. It is driven by one goroutine, except
// Close which may be called concurrently with Read.
type Reader interface {
	// Read returns nil, nil on timeout.
	Read(timeout time.Duration) (*Record, error)
	Assignments() []LogPartition

	// Seek positions p so the next record read from it is at offset.
	Seek(offset LogOffset) error
	ToStart() error
	ToEnd() error
	ToLastCommitted() error
	// Reset drops the group's committed offsets for the assignment and
	// rewinds to the start.
	Reset() error
	// Commit persists the current position of the given partitions, or of
	// all assigned partitions when none is given.
	Commit(partitions ...LogPartition) error

	Close() error
}

// RebalanceListener is notified when a subscribed reader loses or gains
// partitions.
type RebalanceListener interface {
	OnPartitionsRevoked(partitions []LogPartition)
	OnPartitionsAssigned(partitions []LogPartition)
}

// Observer receives engine events, typically to export metrics.
type Observer interface {
	Appended(p LogPartition, bytes int)
	Consumed(group string, p LogPartition, bytes int)
	Committed(group string, partitions int)
	TailerOpened(group string)
	TailerClosed(group string)
	Rebalanced(group string)
}

type nopObserver struct{}

func (nopObserver) Appended(LogPartition, int)         {}
func (nopObserver) Consumed(string, LogPartition, int) {}
func (nopObserver) Committed(string, int)              {}
func (nopObserver) TailerOpened(string)                {}
func (nopObserver) TailerClosed(string)                {}
func (nopObserver) Rebalanced(string)                  {}
