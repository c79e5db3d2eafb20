package kafkalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/rzbill/flolog/internal/streamlog"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

// reader consumes either an explicit partition set or, when dynamic, the
// partitions handed out by the Kafka group coordinator. pos holds the next
// offset to return per partition and is what Commit persists.
type reader struct {
	b        *Backend
	group    string
	dynamic  bool
	listener streamlog.RebalanceListener
	cl       *kgo.Client

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	assigned  []streamlog.LogPartition
	pos       map[streamlog.LogPartition]int64
	rebalance bool
	pending   *kgo.Record

	closed atomic.Bool
	once   sync.Once
}

func newReader(b *Backend, group string, dynamic bool, listener streamlog.RebalanceListener) *reader {
	ctx, cancel := context.WithCancel(context.Background())
	return &reader{
		b:        b,
		group:    group,
		dynamic:  dynamic,
		listener: listener,
		ctx:      ctx,
		cancel:   cancel,
		pos:      make(map[streamlog.LogPartition]int64),
	}
}

func (r *reader) Read(timeout time.Duration) (*streamlog.Record, error) {
	if r.closed.Load() {
		return nil, streamlog.ErrClosed
	}
	if rec, err := r.drainPending(); rec != nil || err != nil {
		return rec, err
	}
	ctx, cancel := context.WithTimeout(r.ctx, timeout)
	defer cancel()
	for {
		fetches := r.cl.PollRecords(ctx, 1)
		if fetches.IsClientClosed() || r.closed.Load() {
			return nil, streamlog.ErrClosed
		}
		if err := fetchError(fetches); err != nil {
			return nil, err
		}
		var kr *kgo.Record
		fetches.EachRecord(func(rec *kgo.Record) { kr = rec })

		r.mu.Lock()
		if r.rebalance {
			r.rebalance = false
			r.pending = kr
			r.mu.Unlock()
			return nil, streamlog.ErrRebalance
		}
		rec := r.accept(kr)
		r.mu.Unlock()
		if rec != nil {
			return rec, nil
		}
		if ctx.Err() != nil {
			return nil, nil
		}
	}
}

// drainPending reports a rebalance noticed by the group callbacks, or
// returns the record polled while the previous rebalance was reported.
func (r *reader) drainPending() (*streamlog.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rebalance {
		r.rebalance = false
		return nil, streamlog.ErrRebalance
	}
	kr := r.pending
	r.pending = nil
	return r.accept(kr), nil
}

// accept converts a polled record, dropping records of partitions no longer
// assigned and records behind the position after a seek. Must be called
// with r.mu held.
func (r *reader) accept(kr *kgo.Record) *streamlog.Record {
	if kr == nil {
		return nil
	}
	name, ok := r.b.logName(kr.Topic)
	if !ok {
		return nil
	}
	lp := streamlog.PartitionOf(name, int(kr.Partition))
	if !r.isAssigned(lp) {
		return nil
	}
	if next, ok := r.pos[lp]; ok && kr.Offset < next {
		return nil
	}
	r.pos[lp] = kr.Offset + 1
	return &streamlog.Record{
		Offset:  streamlog.LogOffset{Partition: lp, Offset: kr.Offset},
		Message: kr.Value,
	}
}

func (r *reader) isAssigned(lp streamlog.LogPartition) bool {
	for _, p := range r.assigned {
		if p == lp {
			return true
		}
	}
	return false
}

func fetchError(f kgo.Fetches) error {
	var err error
	f.EachError(func(topic string, p int32, e error) {
		if err == nil && !errors.Is(e, context.DeadlineExceeded) && !errors.Is(e, context.Canceled) {
			err = fmt.Errorf("kafkalog: fetch %s/%d: %w", topic, p, e)
		}
	})
	return err
}

func (r *reader) Assignments() []streamlog.LogPartition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]streamlog.LogPartition(nil), r.assigned...)
}

func (r *reader) toPartitions(m map[string][]int32) []streamlog.LogPartition {
	var out []streamlog.LogPartition
	for topic, parts := range m {
		name, ok := r.b.logName(topic)
		if !ok {
			continue
		}
		for _, p := range parts {
			out = append(out, streamlog.PartitionOf(name, int(p)))
		}
	}
	sortPartitions(out)
	return out
}

func sortPartitions(ps []streamlog.LogPartition) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Name != ps[j].Name {
			return ps[i].Name < ps[j].Name
		}
		return ps[i].Partition < ps[j].Partition
	})
}

func (r *reader) onAssigned(ctx context.Context, _ *kgo.Client, assigned map[string][]int32) {
	if r.closed.Load() {
		return
	}
	parts := r.toPartitions(assigned)
	positions, err := r.lastCommitted(ctx, parts)
	if err != nil {
		r.b.logger.Warn("load committed offsets", logpkg.Str("group", r.group), logpkg.Err(err))
	}
	r.mu.Lock()
	for _, lp := range parts {
		if !r.isAssigned(lp) {
			r.assigned = append(r.assigned, lp)
		}
		if next, ok := positions[lp]; ok {
			r.pos[lp] = next
		}
	}
	sortPartitions(r.assigned)
	r.rebalance = true
	r.mu.Unlock()
	r.b.logger.Debug("partitions assigned", logpkg.Str("group", r.group), logpkg.Any("partitions", parts))
	if r.listener != nil {
		r.listener.OnPartitionsAssigned(parts)
	}
}

func (r *reader) onRevoked(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
	if r.closed.Load() {
		return
	}
	parts := r.toPartitions(revoked)
	r.mu.Lock()
	kept := r.assigned[:0]
	for _, lp := range r.assigned {
		drop := false
		for _, rp := range parts {
			if rp == lp {
				drop = true
				break
			}
		}
		if drop {
			delete(r.pos, lp)
		} else {
			kept = append(kept, lp)
		}
	}
	r.assigned = kept
	r.rebalance = true
	r.mu.Unlock()
	r.b.logger.Debug("partitions revoked", logpkg.Str("group", r.group), logpkg.Any("partitions", parts))
	if r.listener != nil {
		r.listener.OnPartitionsRevoked(parts)
	}
}

// lastCommitted returns the committed position of each partition, or the
// log start when nothing was committed or the commit fell out of retention.
func (r *reader) lastCommitted(ctx context.Context, parts []streamlog.LogPartition) (map[streamlog.LogPartition]int64, error) {
	out := make(map[streamlog.LogPartition]int64, len(parts))
	if len(parts) == 0 {
		return out, nil
	}
	starts, err := r.b.startOffsets(ctx, r.topics(parts)...)
	if err != nil {
		return nil, err
	}
	committed := make(map[string]map[int32]int64)
	for _, lp := range parts {
		topic := r.b.Topic(lp.Name)
		if _, ok := committed[topic]; !ok {
			c, err := r.b.committedOffsets(ctx, r.group, topic)
			if err != nil {
				return nil, err
			}
			committed[topic] = c
		}
		start := starts[topic][int32(lp.Partition)]
		next, ok := committed[topic][int32(lp.Partition)]
		if !ok || next < start {
			next = start
		}
		out[lp] = next
	}
	return out, nil
}

func (r *reader) topics(parts []streamlog.LogPartition) []string {
	seen := make(map[string]bool)
	var out []string
	for _, lp := range parts {
		t := r.b.Topic(lp.Name)
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// seekTo moves the consumer of each partition to its target offset.
func (r *reader) seekTo(targets map[streamlog.LogPartition]int64) {
	offsets := make(map[string]map[int32]kgo.EpochOffset)
	for lp, next := range targets {
		topic := r.b.Topic(lp.Name)
		if offsets[topic] == nil {
			offsets[topic] = make(map[int32]kgo.EpochOffset)
		}
		offsets[topic][int32(lp.Partition)] = kgo.EpochOffset{Epoch: -1, Offset: next}
	}
	r.cl.SetOffsets(offsets)

	r.mu.Lock()
	defer r.mu.Unlock()
	for lp, next := range targets {
		r.pos[lp] = next
	}
	if r.pending != nil {
		if name, ok := r.b.logName(r.pending.Topic); ok {
			if _, moved := targets[streamlog.PartitionOf(name, int(r.pending.Partition))]; moved {
				r.pending = nil
			}
		}
	}
}

func (r *reader) Seek(offset streamlog.LogOffset) error {
	r.mu.Lock()
	ok := r.isAssigned(offset.Partition)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", streamlog.ErrNotAssigned, offset.Partition)
	}
	r.seekTo(map[streamlog.LogPartition]int64{offset.Partition: offset.Offset})
	return nil
}

// listed resolves start or end offsets of every assigned partition.
func (r *reader) listed(ctx context.Context, list func(context.Context, ...string) (map[string]map[int32]int64, error)) (map[streamlog.LogPartition]int64, error) {
	parts := r.Assignments()
	out := make(map[streamlog.LogPartition]int64, len(parts))
	if len(parts) == 0 {
		return out, nil
	}
	offsets, err := list(ctx, r.topics(parts)...)
	if err != nil {
		return nil, err
	}
	for _, lp := range parts {
		out[lp] = offsets[r.b.Topic(lp.Name)][int32(lp.Partition)]
	}
	return out, nil
}

func (r *reader) ToStart() error {
	ctx, cancel := r.b.requestContext()
	defer cancel()
	targets, err := r.listed(ctx, r.b.startOffsets)
	if err != nil {
		return err
	}
	r.seekTo(targets)
	return nil
}

func (r *reader) ToEnd() error {
	ctx, cancel := r.b.requestContext()
	defer cancel()
	targets, err := r.listed(ctx, r.b.endOffsets)
	if err != nil {
		return err
	}
	r.seekTo(targets)
	return nil
}

func (r *reader) ToLastCommitted() error {
	ctx, cancel := r.b.requestContext()
	defer cancel()
	targets, err := r.lastCommitted(ctx, r.Assignments())
	if err != nil {
		return err
	}
	r.seekTo(targets)
	return nil
}

// Reset drops the committed offsets of the assigned partitions. Brokers
// refuse to delete offsets of topics an active group consumes, so a
// subscribed reader commits the log start instead.
func (r *reader) Reset() error {
	parts := r.Assignments()
	if len(parts) == 0 {
		return nil
	}
	ctx, cancel := r.b.requestContext()
	defer cancel()
	if r.dynamic {
		starts, err := r.listed(ctx, r.b.startOffsets)
		if err != nil {
			return err
		}
		if err := r.commitPositions(ctx, starts); err != nil {
			return err
		}
	} else {
		set := make(kadm.TopicsSet)
		for _, lp := range parts {
			set.Add(r.b.Topic(lp.Name), int32(lp.Partition))
		}
		resp, err := r.b.adm.DeleteOffsets(ctx, r.b.GroupID(r.group), set)
		if err != nil && !errors.Is(err, kerr.GroupIDNotFound) {
			return fmt.Errorf("kafkalog: delete offsets of %s: %w", r.b.GroupID(r.group), err)
		}
		for topic, ps := range resp {
			for p, perr := range ps {
				if perr != nil && !errors.Is(perr, kerr.UnknownTopicOrPartition) {
					return fmt.Errorf("kafkalog: delete offset %s/%d: %w", topic, p, perr)
				}
			}
		}
	}
	return r.ToStart()
}

func (r *reader) Commit(partitions ...streamlog.LogPartition) error {
	r.mu.Lock()
	selected := r.assigned
	if len(partitions) > 0 {
		selected = partitions
	}
	positions := make(map[streamlog.LogPartition]int64, len(selected))
	for _, lp := range selected {
		if !r.isAssigned(lp) {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s", streamlog.ErrNotAssigned, lp)
		}
		if next, ok := r.pos[lp]; ok {
			positions[lp] = next
		}
	}
	r.mu.Unlock()
	if len(positions) == 0 {
		return nil
	}
	ctx, cancel := r.b.requestContext()
	defer cancel()
	return r.commitPositions(ctx, positions)
}

func (r *reader) commitPositions(ctx context.Context, positions map[streamlog.LogPartition]int64) error {
	groupID := r.b.GroupID(r.group)
	if r.dynamic {
		// members of an active group must commit with their generation
		uncommitted := make(map[string]map[int32]kgo.EpochOffset)
		for lp, next := range positions {
			topic := r.b.Topic(lp.Name)
			if uncommitted[topic] == nil {
				uncommitted[topic] = make(map[int32]kgo.EpochOffset)
			}
			uncommitted[topic][int32(lp.Partition)] = kgo.EpochOffset{Epoch: -1, Offset: next}
		}
		var commitErr error
		r.cl.CommitOffsetsSync(ctx, uncommitted, func(_ *kgo.Client, _ *kmsg.OffsetCommitRequest, resp *kmsg.OffsetCommitResponse, err error) {
			if err != nil {
				commitErr = err
				return
			}
			for _, t := range resp.Topics {
				for _, p := range t.Partitions {
					if perr := kerr.ErrorForCode(p.ErrorCode); perr != nil && commitErr == nil {
						commitErr = fmt.Errorf("%s/%d: %w", t.Topic, p.Partition, perr)
					}
				}
			}
		})
		if commitErr != nil {
			return fmt.Errorf("kafkalog: commit %s: %w", groupID, commitErr)
		}
		return nil
	}

	offsets := make(kadm.Offsets)
	for lp, next := range positions {
		offsets.Add(kadm.Offset{Topic: r.b.Topic(lp.Name), Partition: int32(lp.Partition), At: next, LeaderEpoch: -1})
	}
	resp, err := r.b.adm.CommitOffsets(ctx, groupID, offsets)
	if err != nil {
		return fmt.Errorf("kafkalog: commit %s: %w", groupID, err)
	}
	for topic, ps := range resp {
		for p, o := range ps {
			if o.Err != nil {
				return fmt.Errorf("kafkalog: commit %s on %s/%d: %w", groupID, topic, p, o.Err)
			}
		}
	}
	return nil
}

func (r *reader) Close() error {
	r.once.Do(func() {
		r.closed.Store(true)
		r.cancel()
		if r.cl != nil {
			r.cl.Close()
		}
	})
	return nil
}
