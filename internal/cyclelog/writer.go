package cyclelog

import (
	"fmt"
	"sync/atomic"

	"github.com/rzbill/flolog/internal/streamlog"
)

type writer struct {
	b      *Backend
	ls     *logState
	closed atomic.Bool
}

func (w *writer) Append(partition int, msg []byte) (int64, error) {
	if w.closed.Load() {
		return 0, fmt.Errorf("cyclelog: writer %s: %w", w.ls.name, streamlog.ErrClosed)
	}
	if partition < 0 || partition >= len(w.ls.parts) {
		return 0, fmt.Errorf("%w: %s-%02d", streamlog.ErrPartitionOutOfRange, w.ls.name, partition)
	}
	seq, rolled, err := w.ls.parts[partition].append(msg, w.b.now())
	if err != nil {
		return 0, err
	}
	w.b.notify()
	if rolled {
		w.b.purgePartition(w.ls, partition)
	}
	return int64(seq), nil
}

func (w *writer) Close() error {
	w.closed.Store(true)
	return nil
}
