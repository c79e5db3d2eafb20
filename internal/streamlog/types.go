package streamlog

import (
	"fmt"
)

// LogPartition identifies one partition of a log.
type LogPartition struct {
	Name      string
	Partition int
}

// PartitionOf is a shorthand constructor.
func PartitionOf(name string, partition int) LogPartition {
	return LogPartition{Name: name, Partition: partition}
}

func (p LogPartition) String() string {
	return fmt.Sprintf("%s-%02d", p.Name, p.Partition)
}

// LogOffset is the position of a record inside a partition. Offsets start at
// zero and grow by one per appended record.
type LogOffset struct {
	Partition LogPartition
	Offset    int64
}

// Next returns the offset following o in the same partition.
func (o LogOffset) Next() LogOffset {
	return LogOffset{Partition: o.Partition, Offset: o.Offset + 1}
}

// Compare orders two offsets of the same partition. Offsets of different
// partitions are not comparable.
func (o LogOffset) Compare(other LogOffset) (int, error) {
	if o.Partition != other.Partition {
		return 0, fmt.Errorf("%w: cannot compare offsets of %s and %s", ErrInvalidArgument, o.Partition, other.Partition)
	}
	switch {
	case o.Offset < other.Offset:
		return -1, nil
	case o.Offset > other.Offset:
		return 1, nil
	}
	return 0, nil
}

func (o LogOffset) String() string {
	return fmt.Sprintf("%s:+%d", o.Partition, o.Offset)
}

// Record is a message read from or appended to a log.
type Record struct {
	Offset  LogOffset
	Message []byte
}

// LogLag is the backlog of a group: Lower counts committed records, Upper
// counts appended ones.
type LogLag struct {
	Lower int64
	Upper int64
}

// LagOf returns the lag of a group that committed nothing on n records.
func LagOf(n int64) LogLag {
	return LogLag{Lower: 0, Upper: n}
}

// Lag is the number of records not yet committed.
func (l LogLag) Lag() int64 {
	if l.Upper < l.Lower {
		return 0
	}
	return l.Upper - l.Lower
}

func (l LogLag) String() string {
	return fmt.Sprintf("LogLag(%d, %d, lag=%d)", l.Lower, l.Upper, l.Lag())
}

// SumLags aggregates per-partition lags.
func SumLags(lags ...LogLag) LogLag {
	var out LogLag
	for _, l := range lags {
		out.Lower += l.Lower
		out.Upper += l.Upper
	}
	return out
}
