package kafkalog

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/rzbill/flolog/internal/streamlog"
)

type writer struct {
	b      *Backend
	name   string
	topic  string
	size   int
	closed atomic.Bool
}

func (w *writer) Append(partition int, msg []byte) (int64, error) {
	if w.closed.Load() {
		return 0, fmt.Errorf("kafkalog: writer %s: %w", w.name, streamlog.ErrClosed)
	}
	if partition < 0 || partition >= w.size {
		return 0, fmt.Errorf("%w: %s-%02d", streamlog.ErrPartitionOutOfRange, w.name, partition)
	}
	ctx, cancel := w.b.requestContext()
	defer cancel()
	rec := &kgo.Record{Topic: w.topic, Partition: int32(partition), Value: msg}
	res := w.b.producer.ProduceSync(ctx, rec)
	if err := res.FirstErr(); err != nil {
		if errors.Is(err, kgo.ErrClientClosed) {
			return 0, fmt.Errorf("kafkalog: writer %s: %w", w.name, streamlog.ErrClosed)
		}
		return 0, fmt.Errorf("kafkalog: produce %s-%02d: %w", w.name, partition, err)
	}
	return rec.Offset, nil
}

func (w *writer) Close() error {
	w.closed.Store(true)
	return nil
}
