package cyclelog

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	pebblestore "github.com/rzbill/flolog/internal/storage/pebble"
)

// offsetStore persists the partition count, sequence watermarks and group
// cursors of one log.
type offsetStore struct {
	mu     sync.RWMutex
	db     *pebblestore.DB
	closed bool
}

var (
	errNoMeta      = errors.New("cyclelog: log metadata missing")
	errStoreClosed = errors.New("cyclelog: offset store closed")
)

// guard runs fn unless the store was closed.
func (o *offsetStore) guard(fn func() error) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return errStoreClosed
	}
	return fn()
}

func (o *offsetStore) partitions() (int, error) {
	var v []byte
	err := o.guard(func() (err error) {
		v, err = o.db.Get(keyPartitions)
		return err
	})
	if pebblestore.IsNotFound(err) {
		return 0, errNoMeta
	}
	if err != nil {
		return 0, err
	}
	if len(v) != 4 {
		return 0, fmt.Errorf("cyclelog: bad partition count value %x", v)
	}
	return int(binary.BigEndian.Uint32(v)), nil
}

func (o *offsetStore) setPartitions(n int) error {
	return o.guard(func() error { return o.db.Set(keyPartitions, appendBE4(nil, uint32(n))) })
}

// rollCycle returns the roll cycle fixed at creation, errNoMeta when the
// log predates it.
func (o *offsetStore) rollCycle() (RollCycle, error) {
	var v []byte
	err := o.guard(func() (err error) {
		v, err = o.db.Get(keyRoll)
		return err
	})
	if pebblestore.IsNotFound(err) {
		return 0, errNoMeta
	}
	if err != nil {
		return 0, err
	}
	if len(v) != 4 {
		return 0, fmt.Errorf("cyclelog: bad roll cycle value %x", v)
	}
	r := RollCycle(binary.BigEndian.Uint32(v))
	if r < Minutely || r > Daily {
		return 0, fmt.Errorf("cyclelog: unknown roll cycle %d", r)
	}
	return r, nil
}

func (o *offsetStore) setRollCycle(r RollCycle) error {
	return o.guard(func() error { return o.db.Set(keyRoll, appendBE4(nil, uint32(r))) })
}

func (o *offsetStore) watermark(partition int) (uint64, error) {
	var v []byte
	err := o.guard(func() (err error) {
		v, err = o.db.Get(keyNext(partition))
		return err
	})
	if pebblestore.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("cyclelog: bad watermark value %x", v)
	}
	return binary.BigEndian.Uint64(v), nil
}

func (o *offsetStore) setWatermark(partition int, next uint64) error {
	return o.guard(func() error { return o.db.Set(keyNext(partition), appendBE8(nil, next)) })
}

// committed returns the next offset committed by group on partition.
func (o *offsetStore) committed(group string, partition int) (uint64, bool, error) {
	var v []byte
	err := o.guard(func() (err error) {
		v, err = o.db.Get(keyCursor(group, partition))
		return err
	})
	if pebblestore.IsNotFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if len(v) != 8 {
		return 0, false, fmt.Errorf("cyclelog: bad cursor value %x", v)
	}
	return binary.BigEndian.Uint64(v), true, nil
}

// commit stores several cursors of one group atomically.
func (o *offsetStore) commit(group string, positions map[int]uint64) error {
	return o.guard(func() error {
		b := o.db.NewBatch()
		defer b.Close()
		for part, next := range positions {
			if err := b.Set(keyCursor(group, part), appendBE8(nil, next), nil); err != nil {
				return err
			}
		}
		return o.db.CommitBatch(context.Background(), b)
	})
}

func (o *offsetStore) reset(group string, partitions []int) error {
	return o.guard(func() error {
		b := o.db.NewBatch()
		defer b.Close()
		for _, part := range partitions {
			if err := b.Delete(keyCursor(group, part), nil); err != nil {
				return err
			}
		}
		return o.db.CommitBatch(context.Background(), b)
	})
}

// groups lists the groups holding at least one cursor.
func (o *offsetStore) groups() ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	err := o.guard(func() error {
		return o.db.ScanPrefix(cursorPrefix, func(k, _ []byte) bool {
			if g, _, ok := parseCursorKey(k); ok && !seen[g] {
				seen[g] = true
				out = append(out, g)
			}
			return true
		})
	})
	return out, err
}

func (o *offsetStore) close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	return o.db.Close()
}
