package streamlog

import (
	"fmt"
	"time"
)

// TypedRecord is a decoded record.
type TypedRecord[M any] struct {
	Offset  LogOffset
	Message M
}

// TypedAppender encodes messages with a Codec before appending them.
type TypedAppender[M any] struct {
	*Appender
	codec Codec[M]
}

// OpenTypedAppender returns an appender of name bound to codec. It fails with
// ErrCodecMismatch when the manager already used another codec on name.
func OpenTypedAppender[M any](m *Manager, name string, codec Codec[M]) (*TypedAppender[M], error) {
	app, err := m.GetAppender(name)
	if err != nil {
		return nil, err
	}
	if err := m.bindCodec(name, codec.Name()); err != nil {
		return nil, err
	}
	return &TypedAppender[M]{Appender: app, codec: codec}, nil
}

// Codec returns the bound codec.
func (a *TypedAppender[M]) Codec() Codec[M] { return a.codec }

// Append encodes msg and writes it to partition.
func (a *TypedAppender[M]) Append(partition int, msg M) (LogOffset, error) {
	data, err := a.codec.Encode(msg)
	if err != nil {
		return LogOffset{}, fmt.Errorf("encode with %s: %w", a.codec.Name(), err)
	}
	return a.Appender.Append(partition, data)
}

// AppendKey encodes msg and writes it to the partition owning key.
func (a *TypedAppender[M]) AppendKey(key string, msg M) (LogOffset, error) {
	return a.Append(a.PartitionFor(key), msg)
}

// TypedTailer decodes records with a Codec.
type TypedTailer[M any] struct {
	*Tailer
	codec Codec[M]
}

// OpenTypedTailer opens a tailer for group bound to codec.
func OpenTypedTailer[M any](m *Manager, group string, codec Codec[M], partitions ...LogPartition) (*TypedTailer[M], error) {
	for _, p := range partitions {
		if err := m.bindCodec(p.Name, codec.Name()); err != nil {
			return nil, err
		}
	}
	t, err := m.CreateTailer(group, partitions...)
	if err != nil {
		return nil, err
	}
	return &TypedTailer[M]{Tailer: t, codec: codec}, nil
}

// Codec returns the bound codec.
func (t *TypedTailer[M]) Codec() Codec[M] { return t.codec }

// Read returns the next decoded record, or nil on timeout. Payloads the codec
// cannot decode fail with ErrCodecMismatch.
func (t *TypedTailer[M]) Read(timeout time.Duration) (*TypedRecord[M], error) {
	rec, err := t.Tailer.Read(timeout)
	if err != nil || rec == nil {
		return nil, err
	}
	msg, err := t.codec.Decode(rec.Message)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s with %s: %v", ErrCodecMismatch, rec.Offset, t.codec.Name(), err)
	}
	return &TypedRecord[M]{Offset: rec.Offset, Message: msg}, nil
}
