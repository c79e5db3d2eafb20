package transports

import "context"

// LogInfo describes one log.
type LogInfo struct {
	Name       string `json:"name"`
	Partitions int    `json:"partitions"`
}

// AppendRequest selects the partition by number, by key, or defaults to 0.
type AppendRequest struct {
	Log       string
	Partition *int
	Key       string
	Payload   []byte
}

// Position is the partition and offset of a record.
type Position struct {
	Partition int   `json:"partition"`
	Offset    int64 `json:"offset"`
}

// Record is a record received from a tail.
type Record struct {
	Partition int    `json:"partition"`
	Offset    int64  `json:"offset"`
	Payload   []byte `json:"payload"`
}

// PartitionLag is the lag of a group on one partition.
type PartitionLag struct {
	Partition int   `json:"partition"`
	Lower     int64 `json:"lower"`
	Upper     int64 `json:"upper"`
	Lag       int64 `json:"lag"`
}

// Lag is the lag of a group on a log.
type Lag struct {
	Group      string         `json:"group"`
	Lower      int64          `json:"lower"`
	Upper      int64          `json:"upper"`
	Lag        int64          `json:"lag"`
	Partitions []PartitionLag `json:"partitions"`
}

// TailRequest describes a group tail.
type TailRequest struct {
	Log   string
	Group string
	// From is committed, start or end.
	From   string
	Commit bool
	Limit  int
}

// LogsTransport abstracts the transport used by the CLI.
type LogsTransport interface {
	Create(ctx context.Context, name string, partitions int) (created bool, err error)
	List(ctx context.Context) ([]LogInfo, error)
	Delete(ctx context.Context, name string) error
	Append(ctx context.Context, req AppendRequest) (Position, error)
	Lag(ctx context.Context, name, group string) (Lag, error)
	Groups(ctx context.Context, name string) ([]string, error)
	Tail(ctx context.Context, req TailRequest, onRecord func(Record) error) error
}
