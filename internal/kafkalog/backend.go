package kafkalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/rzbill/flolog/internal/streamlog"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

const (
	defaultRequestTimeout = 30 * time.Second
	topicPollInterval     = 100 * time.Millisecond
)

// Options configures the Kafka backend.
type Options struct {
	Brokers []string
	// TopicPrefix namespaces topics and consumer groups.
	TopicPrefix       string
	ReplicationFactor int16
	// ClientID prefixes the client id of every Kafka client opened.
	ClientID string
	// RequestTimeout bounds admin and produce requests.
	RequestTimeout time.Duration
	Logger         logpkg.Logger
	// ClientOpts are appended to the options of every client, e.g. TLS or
	// SASL settings.
	ClientOpts []kgo.Opt
}

// Backend stores logs as Kafka topics.
type Backend struct {
	opts   Options
	logger logpkg.Logger

	producer *kgo.Client
	adm      *kadm.Client

	mu     sync.Mutex
	closed bool
}

var _ streamlog.Backend = (*Backend)(nil)

// Open connects the producer and admin clients.
func Open(opts Options) (*Backend, error) {
	if len(opts.Brokers) == 0 {
		return nil, errors.New("kafkalog: Options.Brokers is required")
	}
	if opts.ReplicationFactor <= 0 {
		opts.ReplicationFactor = 1
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.ClientID == "" {
		opts.ClientID = "flolog"
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNop()
	}
	b := &Backend{opts: opts, logger: opts.Logger.WithComponent("kafkalog")}
	cl, err := kgo.NewClient(b.clientOpts("producer",
		kgo.RecordPartitioner(kgo.ManualPartitioner()),
		kgo.ProduceRequestTimeout(opts.RequestTimeout),
	)...)
	if err != nil {
		return nil, fmt.Errorf("kafkalog: producer: %w", err)
	}
	b.producer = cl
	b.adm = kadm.NewClient(cl)

	ctx, cancel := b.requestContext()
	defer cancel()
	if err := cl.Ping(ctx); err != nil {
		cl.Close()
		return nil, fmt.Errorf("kafkalog: ping %v: %w", opts.Brokers, err)
	}
	b.logger.Info("kafka backend opened", logpkg.Strs("brokers", opts.Brokers), logpkg.Str("prefix", opts.TopicPrefix))
	return b, nil
}

// clientOpts returns the options shared by every client, followed by extra.
func (b *Backend) clientOpts(role string, extra ...kgo.Opt) []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(b.opts.Brokers...),
		kgo.ClientID(fmt.Sprintf("%s-%s-%s", b.opts.ClientID, role, uuid.NewString()[:8])),
		kgo.WithLogger(newKgoLogger(b.opts.Logger)),
	}
	opts = append(opts, b.opts.ClientOpts...)
	return append(opts, extra...)
}

func (b *Backend) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), b.opts.RequestTimeout)
}

func (b *Backend) checkOpen() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("kafkalog: %w", streamlog.ErrClosed)
	}
	return nil
}

// Kind implements streamlog.Backend.
func (b *Backend) Kind() string { return "kafka" }

// Topic returns the topic backing log name.
func (b *Backend) Topic(name string) string { return b.opts.TopicPrefix + name }

// GroupID returns the Kafka group backing consumer group group.
func (b *Backend) GroupID(group string) string { return b.opts.TopicPrefix + group }

// logName maps a topic back to its log, reporting false for foreign topics.
func (b *Backend) logName(topic string) (string, bool) {
	name, ok := strings.CutPrefix(topic, b.opts.TopicPrefix)
	if !ok || streamlog.ValidateLogName(name) != nil {
		return "", false
	}
	return name, true
}

// partitions returns the partition count of the topic of name.
func (b *Backend) partitions(ctx context.Context, name string) (int, error) {
	if err := streamlog.ValidateLogName(name); err != nil {
		return 0, fmt.Errorf("%w: %s", streamlog.ErrUnknownLog, name)
	}
	topic := b.Topic(name)
	details, err := b.adm.ListTopics(ctx, topic)
	if err != nil {
		return 0, fmt.Errorf("kafkalog: list topic %s: %w", topic, err)
	}
	d, ok := details[topic]
	if !ok || errors.Is(d.Err, kerr.UnknownTopicOrPartition) {
		return 0, fmt.Errorf("%w: %s", streamlog.ErrUnknownLog, name)
	}
	if d.Err != nil {
		return 0, fmt.Errorf("kafkalog: describe topic %s: %w", topic, d.Err)
	}
	return len(d.Partitions), nil
}

// Exists implements streamlog.Backend.
func (b *Backend) Exists(name string) (bool, error) {
	if err := b.checkOpen(); err != nil {
		return false, err
	}
	ctx, cancel := b.requestContext()
	defer cancel()
	_, err := b.partitions(ctx, name)
	if errors.Is(err, streamlog.ErrUnknownLog) {
		return false, nil
	}
	return err == nil, err
}

// Create implements streamlog.Backend. It waits until the topic metadata
// shows every partition.
func (b *Backend) Create(name string, partitions int) (bool, error) {
	if err := streamlog.ValidateLogName(name); err != nil {
		return false, err
	}
	if err := b.checkOpen(); err != nil {
		return false, err
	}
	ctx, cancel := b.requestContext()
	defer cancel()
	topic := b.Topic(name)
	resp, err := b.adm.CreateTopics(ctx, int32(partitions), b.opts.ReplicationFactor, nil, topic)
	if err != nil {
		return false, fmt.Errorf("kafkalog: create topic %s: %w", topic, err)
	}
	if r, ok := resp[topic]; ok && r.Err != nil {
		if errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return false, nil
		}
		return false, fmt.Errorf("kafkalog: create topic %s: %w", topic, r.Err)
	}
	for {
		n, err := b.partitions(ctx, name)
		if err == nil && n == partitions {
			break
		}
		select {
		case <-ctx.Done():
			return true, fmt.Errorf("kafkalog: topic %s not visible: %w", topic, ctx.Err())
		case <-time.After(topicPollInterval):
		}
	}
	b.logger.Info("topic created", logpkg.Str("topic", topic), logpkg.Int("partitions", partitions))
	return true, nil
}

// Size implements streamlog.Backend.
func (b *Backend) Size(name string) (int, error) {
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	ctx, cancel := b.requestContext()
	defer cancel()
	return b.partitions(ctx, name)
}

// Delete implements streamlog.Backend. Committed offsets are dropped by the
// brokers along with the topic.
func (b *Backend) Delete(name string) (bool, error) {
	if err := streamlog.ValidateLogName(name); err != nil {
		return false, err
	}
	if err := b.checkOpen(); err != nil {
		return false, err
	}
	ctx, cancel := b.requestContext()
	defer cancel()
	topic := b.Topic(name)
	resp, err := b.adm.DeleteTopics(ctx, topic)
	if err != nil {
		return false, fmt.Errorf("kafkalog: delete topic %s: %w", topic, err)
	}
	if r, ok := resp[topic]; ok && r.Err != nil {
		if errors.Is(r.Err, kerr.UnknownTopicOrPartition) {
			return false, nil
		}
		return false, fmt.Errorf("kafkalog: delete topic %s: %w", topic, r.Err)
	}
	b.logger.Info("topic deleted", logpkg.Str("topic", topic))
	return true, nil
}

// ListAll implements streamlog.Backend.
func (b *Backend) ListAll() ([]string, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	ctx, cancel := b.requestContext()
	defer cancel()
	details, err := b.adm.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("kafkalog: list topics: %w", err)
	}
	var out []string
	for topic, d := range details {
		if d.Err != nil {
			continue
		}
		if name, ok := b.logName(topic); ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ListConsumerGroups implements streamlog.Backend. A group is listed when it
// holds a committed offset on the topic of name.
func (b *Backend) ListConsumerGroups(name string) ([]string, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	ctx, cancel := b.requestContext()
	defer cancel()
	if _, err := b.partitions(ctx, name); err != nil {
		return nil, err
	}
	topic := b.Topic(name)
	listed, err := b.adm.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("kafkalog: list groups: %w", err)
	}
	var out []string
	for id := range listed {
		group, ok := strings.CutPrefix(id, b.opts.TopicPrefix)
		if !ok || group == "" {
			continue
		}
		fetched, err := b.adm.FetchOffsets(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("kafkalog: fetch offsets of %s: %w", id, err)
		}
		for _, o := range fetched[topic] {
			if o.Err == nil && o.At >= 0 {
				out = append(out, group)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// committedOffsets returns the committed next offsets of group on topic.
// Partitions without a commit are absent.
func (b *Backend) committedOffsets(ctx context.Context, group, topic string) (map[int32]int64, error) {
	fetched, err := b.adm.FetchOffsets(ctx, b.GroupID(group))
	if err != nil {
		return nil, fmt.Errorf("kafkalog: fetch offsets of %s: %w", b.GroupID(group), err)
	}
	out := make(map[int32]int64)
	for p, o := range fetched[topic] {
		if o.Err != nil {
			return nil, fmt.Errorf("kafkalog: offset of %s on %s/%d: %w", b.GroupID(group), topic, p, o.Err)
		}
		if o.At >= 0 {
			out[p] = o.At
		}
	}
	return out, nil
}

// listedOffsets flattens start or end offsets of topics.
func listedOffsets(listed kadm.ListedOffsets) (map[string]map[int32]int64, error) {
	out := make(map[string]map[int32]int64, len(listed))
	for topic, parts := range listed {
		m := make(map[int32]int64, len(parts))
		for p, o := range parts {
			if o.Err != nil {
				return nil, fmt.Errorf("kafkalog: list offset %s/%d: %w", topic, p, o.Err)
			}
			m[p] = o.Offset
		}
		out[topic] = m
	}
	return out, nil
}

func (b *Backend) startOffsets(ctx context.Context, topics ...string) (map[string]map[int32]int64, error) {
	listed, err := b.adm.ListStartOffsets(ctx, topics...)
	if err != nil {
		return nil, fmt.Errorf("kafkalog: list start offsets: %w", err)
	}
	return listedOffsets(listed)
}

func (b *Backend) endOffsets(ctx context.Context, topics ...string) (map[string]map[int32]int64, error) {
	listed, err := b.adm.ListEndOffsets(ctx, topics...)
	if err != nil {
		return nil, fmt.Errorf("kafkalog: list end offsets: %w", err)
	}
	return listedOffsets(listed)
}

// LagPerPartition implements streamlog.Backend.
func (b *Backend) LagPerPartition(name, group string) ([]streamlog.LogLag, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	ctx, cancel := b.requestContext()
	defer cancel()
	n, err := b.partitions(ctx, name)
	if err != nil {
		return nil, err
	}
	topic := b.Topic(name)
	ends, err := b.endOffsets(ctx, topic)
	if err != nil {
		return nil, err
	}
	committed, err := b.committedOffsets(ctx, group, topic)
	if err != nil {
		return nil, err
	}
	lags := make([]streamlog.LogLag, n)
	for i := range lags {
		upper := ends[topic][int32(i)]
		lags[i] = streamlog.LogLag{Lower: min(committed[int32(i)], upper), Upper: upper}
	}
	return lags, nil
}

// Committed implements streamlog.Backend.
func (b *Backend) Committed(p streamlog.LogPartition, group string) (int64, bool, error) {
	if err := b.checkOpen(); err != nil {
		return 0, false, err
	}
	ctx, cancel := b.requestContext()
	defer cancel()
	committed, err := b.committedOffsets(ctx, group, b.Topic(p.Name))
	if err != nil {
		return 0, false, err
	}
	next, ok := committed[int32(p.Partition)]
	return next, ok, nil
}

// RecordAt implements streamlog.Backend. It fetches the single record with a
// short-lived client; compacted or deleted offsets yield a nil record.
func (b *Backend) RecordAt(o streamlog.LogOffset) (*streamlog.Record, time.Time, error) {
	if err := b.checkOpen(); err != nil {
		return nil, time.Time{}, err
	}
	ctx, cancel := b.requestContext()
	defer cancel()
	n, err := b.partitions(ctx, o.Partition.Name)
	if err != nil {
		return nil, time.Time{}, err
	}
	if o.Partition.Partition < 0 || o.Partition.Partition >= n {
		return nil, time.Time{}, fmt.Errorf("%w: %s", streamlog.ErrPartitionOutOfRange, o.Partition)
	}
	topic := b.Topic(o.Partition.Name)
	p := int32(o.Partition.Partition)
	start, err := b.startOffsets(ctx, topic)
	if err != nil {
		return nil, time.Time{}, err
	}
	end, err := b.endOffsets(ctx, topic)
	if err != nil {
		return nil, time.Time{}, err
	}
	if o.Offset < start[topic][p] || o.Offset >= end[topic][p] {
		return nil, time.Time{}, nil
	}

	cl, err := kgo.NewClient(b.clientOpts("lookup",
		kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{topic: {p: kgo.NewOffset().At(o.Offset)}}),
	)...)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("kafkalog: lookup client: %w", err)
	}
	defer cl.Close()
	for ctx.Err() == nil {
		fetches := cl.PollRecords(ctx, 1)
		if err := fetchError(fetches); err != nil {
			return nil, time.Time{}, err
		}
		var kr *kgo.Record
		fetches.EachRecord(func(rec *kgo.Record) { kr = rec })
		switch {
		case kr == nil:
		case kr.Offset == o.Offset:
			return &streamlog.Record{Offset: o, Message: kr.Value}, kr.Timestamp, nil
		case kr.Offset > o.Offset:
			return nil, time.Time{}, nil
		}
	}
	return nil, time.Time{}, nil
}

// SupportSubscribe implements streamlog.Backend.
func (b *Backend) SupportSubscribe() bool { return true }

// NewWriter implements streamlog.Backend. Writers share the backend producer.
func (b *Backend) NewWriter(name string) (streamlog.Writer, error) {
	n, err := b.Size(name)
	if err != nil {
		return nil, err
	}
	return &writer{b: b, name: name, topic: b.Topic(name), size: n}, nil
}

// NewReader implements streamlog.Backend.
func (b *Backend) NewReader(group string, partitions []streamlog.LogPartition) (streamlog.Reader, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	r := newReader(b, group, false, nil)
	r.assigned = append(r.assigned, partitions...)

	ctx, cancel := b.requestContext()
	defer cancel()
	positions, err := r.lastCommitted(ctx, partitions)
	if err != nil {
		return nil, err
	}
	consume := make(map[string]map[int32]kgo.Offset)
	for lp, next := range positions {
		topic := b.Topic(lp.Name)
		if consume[topic] == nil {
			consume[topic] = make(map[int32]kgo.Offset)
		}
		consume[topic][int32(lp.Partition)] = kgo.NewOffset().At(next)
		r.pos[lp] = next
	}
	cl, err := kgo.NewClient(b.clientOpts("reader",
		kgo.ConsumePartitions(consume),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)...)
	if err != nil {
		return nil, fmt.Errorf("kafkalog: reader client: %w", err)
	}
	r.cl = cl
	return r, nil
}

// Subscribe implements streamlog.Backend.
func (b *Backend) Subscribe(group string, names []string, listener streamlog.RebalanceListener) (streamlog.Reader, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	r := newReader(b, group, true, listener)
	topics := make([]string, len(names))
	for i, name := range names {
		topics[i] = b.Topic(name)
	}
	cl, err := kgo.NewClient(b.clientOpts("group",
		kgo.ConsumerGroup(b.GroupID(group)),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.OnPartitionsAssigned(r.onAssigned),
		kgo.OnPartitionsRevoked(r.onRevoked),
		kgo.OnPartitionsLost(r.onRevoked),
	)...)
	if err != nil {
		return nil, fmt.Errorf("kafkalog: group client: %w", err)
	}
	r.cl = cl
	b.logger.Debug("group consumer started", logpkg.Str("group", b.GroupID(group)), logpkg.Strs("topics", topics))
	return r, nil
}

// Close implements streamlog.Backend. Readers opened by the backend must be
// closed by their owner.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	b.producer.Close()
	return nil
}
