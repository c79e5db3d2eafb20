package streamlog

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"go.uber.org/multierr"

	logpkg "github.com/rzbill/flolog/pkg/log"
)

// Manager is the directory and lifecycle authority for the logs of one
// backend. It owns every Appender and Tailer it vends and closes them on
// Close.
type Manager struct {
	backend  Backend
	logger   logpkg.Logger
	observer Observer

	mu        sync.Mutex
	closed    bool
	appenders map[string]*Appender
	tailers   map[*Tailer]struct{}
	owners    map[ownerKey]*Tailer
	codecs    map[string]string
}

type ownerKey struct {
	group     string
	partition LogPartition
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used by the manager and its handles.
func WithLogger(l logpkg.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithObserver registers an event observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// NewManager returns a Manager running on backend. The manager takes
// ownership of backend and closes it on Close.
func NewManager(backend Backend, opts ...Option) *Manager {
	m := &Manager{
		backend:   backend,
		logger:    logpkg.NewNop(),
		observer:  nopObserver{},
		appenders: make(map[string]*Appender),
		tailers:   make(map[*Tailer]struct{}),
		owners:    make(map[ownerKey]*Tailer),
		codecs:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logpkg.Component("streamlog"), logpkg.Str("backend", backend.Kind()))
	return m
}

// Backend returns the backend the manager runs on.
func (m *Manager) Backend() Backend { return m.backend }

func (m *Manager) checkOpen() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("manager: %w", ErrClosed)
	}
	return nil
}

// CreateIfNotExists creates name with the given partition count. It returns
// false when the log already exists, whatever its partition count.
func (m *Manager) CreateIfNotExists(name string, partitions int) (bool, error) {
	if err := ValidateLogName(name); err != nil {
		return false, err
	}
	if partitions <= 0 {
		return false, fmt.Errorf("%w: partitions must be positive, got %d", ErrInvalidArgument, partitions)
	}
	if err := m.checkOpen(); err != nil {
		return false, err
	}
	created, err := m.backend.Create(name, partitions)
	if err != nil {
		return false, fmt.Errorf("create log %s: %w", name, err)
	}
	if created {
		m.logger.Info("log created", logpkg.Str("log", name), logpkg.Int("partitions", partitions))
	}
	return created, nil
}

// Exists reports whether the log exists.
func (m *Manager) Exists(name string) (bool, error) {
	if err := m.checkOpen(); err != nil {
		return false, err
	}
	return m.backend.Exists(name)
}

// Size returns the partition count of name.
func (m *Manager) Size(name string) (int, error) {
	if err := m.checkOpen(); err != nil {
		return 0, err
	}
	return m.backend.Size(name)
}

// Delete removes a log and its consumer group offsets. The cached appender
// and every tailer reading the log are closed.
func (m *Manager) Delete(name string) (bool, error) {
	if err := m.checkOpen(); err != nil {
		return false, err
	}
	m.mu.Lock()
	app := m.appenders[name]
	delete(m.appenders, name)
	delete(m.codecs, name)
	var tailers []*Tailer
	for t := range m.tailers {
		if t.tails(name) {
			tailers = append(tailers, t)
		}
	}
	m.mu.Unlock()
	if app != nil {
		_ = app.Close()
	}
	for _, t := range tailers {
		if err := t.Close(); err != nil {
			m.logger.Warn("closing tailer of deleted log failed", logpkg.Str("log", name), logpkg.Str("group", t.group), logpkg.Err(err))
		}
	}
	deleted, err := m.backend.Delete(name)
	if err != nil {
		return false, fmt.Errorf("delete log %s: %w", name, err)
	}
	if deleted {
		m.logger.Info("log deleted", logpkg.Str("log", name))
	}
	return deleted, nil
}

// GetAppender returns the appender of name, creating it on first use.
func (m *Manager) GetAppender(name string) (*Appender, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if app, ok := m.appenders[name]; ok && !app.Closed() {
		m.mu.Unlock()
		return app, nil
	}
	m.mu.Unlock()

	size, err := m.backend.Size(name)
	if err != nil {
		return nil, err
	}
	w, err := m.backend.NewWriter(name)
	if err != nil {
		return nil, fmt.Errorf("open appender %s: %w", name, err)
	}
	app := &Appender{m: m, name: name, size: size, w: w}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		_ = w.Close()
		return nil, fmt.Errorf("manager: %w", ErrClosed)
	}
	if cur, ok := m.appenders[name]; ok && !cur.Closed() {
		_ = w.Close()
		return cur, nil
	}
	m.appenders[name] = app
	return app, nil
}

// CreateTailer opens a tailer for group over an explicit partition set. At
// most one tailer may be open per group and partition.
func (m *Manager) CreateTailer(group string, partitions ...LogPartition) (*Tailer, error) {
	if err := ValidateGroupName(group); err != nil {
		return nil, err
	}
	if len(partitions) == 0 {
		return nil, fmt.Errorf("%w: no partition to tail", ErrInvalidArgument)
	}
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	sizes := make(map[string]int)
	seen := make(map[LogPartition]bool, len(partitions))
	assigned := make([]LogPartition, 0, len(partitions))
	for _, p := range partitions {
		size, ok := sizes[p.Name]
		if !ok {
			var err error
			if size, err = m.backend.Size(p.Name); err != nil {
				return nil, err
			}
			sizes[p.Name] = size
		}
		if p.Partition < 0 || p.Partition >= size {
			return nil, fmt.Errorf("%w: %s has %d partitions, got %d", ErrPartitionOutOfRange, p.Name, size, p.Partition)
		}
		if !seen[p] {
			seen[p] = true
			assigned = append(assigned, p)
		}
	}

	t := &Tailer{m: m, group: group, static: assigned}
	if err := m.reserve(t); err != nil {
		return nil, err
	}
	r, err := m.backend.NewReader(group, assigned)
	if err != nil {
		m.release(t)
		return nil, fmt.Errorf("open tailer %s: %w", group, err)
	}
	m.mu.Lock()
	t.reader = r
	m.mu.Unlock()
	if t.Closed() {
		// the manager closed while the reader was opening
		_ = r.Close()
		return nil, fmt.Errorf("tailer %s: %w", group, ErrClosed)
	}
	m.observer.TailerOpened(group)
	m.logger.Debug("tailer opened", logpkg.Str("group", group), logpkg.Any("partitions", assigned))
	return t, nil
}

// CreateTailerForLog opens a tailer for group over every partition of name.
func (m *Manager) CreateTailerForLog(group, name string) (*Tailer, error) {
	size, err := m.Size(name)
	if err != nil {
		return nil, err
	}
	parts := make([]LogPartition, size)
	for i := range parts {
		parts[i] = LogPartition{Name: name, Partition: i}
	}
	return m.CreateTailer(group, parts...)
}

// Subscribe opens a tailer whose assignment is managed by the backend group
// coordinator. The assignment is empty until the first Read, and the Read
// following any assignment change fails with ErrRebalance.
func (m *Manager) Subscribe(group string, names []string, listener RebalanceListener) (*Tailer, error) {
	if !m.backend.SupportSubscribe() {
		return nil, ErrSubscribeNotSupported
	}
	if err := ValidateGroupName(group); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no log to subscribe to", ErrInvalidArgument)
	}
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	for _, name := range names {
		if _, err := m.backend.Size(name); err != nil {
			return nil, err
		}
	}
	r, err := m.backend.Subscribe(group, names, listener)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", group, err)
	}
	t := &Tailer{m: m, group: group, reader: r, dynamic: true, logs: slices.Clone(names)}
	if err := m.reserve(t); err != nil {
		_ = r.Close()
		return nil, err
	}
	m.observer.TailerOpened(group)
	m.logger.Debug("tailer subscribed", logpkg.Str("group", group), logpkg.Strs("logs", names))
	return t, nil
}

// SupportSubscribe reports whether Subscribe is available.
func (m *Manager) SupportSubscribe() bool {
	return m.backend.SupportSubscribe()
}

// GetLag returns the lag of group aggregated over every partition of name.
func (m *Manager) GetLag(name, group string) (LogLag, error) {
	lags, err := m.GetLagPerPartition(name, group)
	if err != nil {
		return LogLag{}, err
	}
	return SumLags(lags...), nil
}

// GetLagPerPartition returns the lag of group on each partition of name.
func (m *Manager) GetLagPerPartition(name, group string) ([]LogLag, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	lags, err := m.backend.LagPerPartition(name, group)
	if err != nil {
		return nil, fmt.Errorf("lag %s/%s: %w", name, group, err)
	}
	return lags, nil
}

// GetLatency aggregates GetLatencyPerPartition with LatencyOf.
func (m *Manager) GetLatency(name, group string, keyOf func(msg []byte) string) (Latency, error) {
	latencies, err := m.GetLatencyPerPartition(name, group, keyOf)
	if err != nil {
		return Latency{}, err
	}
	return LatencyOf(latencies...), nil
}

// GetLatencyPerPartition returns, for each partition of name, the lag of
// group and the append time of the last record it committed. keyOf, when
// set, derives Latency.Key from that record. Partitions where the group is
// caught up or committed nothing carry no timestamp.
func (m *Manager) GetLatencyPerPartition(name, group string, keyOf func(msg []byte) string) ([]Latency, error) {
	lags, err := m.GetLagPerPartition(name, group)
	if err != nil {
		return nil, err
	}
	out := make([]Latency, len(lags))
	for i, lag := range lags {
		out[i].Lag = lag
		if lag.Lag() == 0 || lag.Lower == 0 {
			continue
		}
		last := LogOffset{Partition: PartitionOf(name, i), Offset: lag.Lower - 1}
		rec, appended, err := m.backend.RecordAt(last)
		if err != nil {
			return nil, fmt.Errorf("latency %s/%s: %w", name, group, err)
		}
		if rec == nil {
			// reclaimed by retention
			continue
		}
		out[i].Timestamp = appended
		if keyOf != nil {
			out[i].Key = keyOf(rec.Message)
		}
	}
	return out, nil
}

// ListAll returns the sorted log names.
func (m *Manager) ListAll() ([]string, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	names, err := m.backend.ListAll()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// ListConsumerGroups returns the groups that committed offsets on name.
func (m *Manager) ListConsumerGroups(name string) ([]string, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	groups, err := m.backend.ListConsumerGroups(name)
	if err != nil {
		return nil, err
	}
	sort.Strings(groups)
	return groups, nil
}

// Close closes every appender and tailer vended, then the backend.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	apps := make([]*Appender, 0, len(m.appenders))
	for _, a := range m.appenders {
		apps = append(apps, a)
	}
	tailers := make([]*Tailer, 0, len(m.tailers))
	for t := range m.tailers {
		tailers = append(tailers, t)
	}
	m.mu.Unlock()

	var err error
	for _, t := range tailers {
		err = multierr.Append(err, t.Close())
	}
	for _, a := range apps {
		err = multierr.Append(err, a.Close())
	}
	err = multierr.Append(err, m.backend.Close())
	m.logger.Info("manager closed", logpkg.Int("tailers", len(tailers)), logpkg.Int("appenders", len(apps)))
	return err
}

// reserve registers t and claims its static partitions for its group.
func (m *Manager) reserve(t *Tailer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("manager: %w", ErrClosed)
	}
	for _, p := range t.static {
		if _, taken := m.owners[ownerKey{t.group, p}]; taken {
			return fmt.Errorf("%w: group %s on %s", ErrTailerAlreadyOpen, t.group, p)
		}
	}
	for _, p := range t.static {
		m.owners[ownerKey{t.group, p}] = t
	}
	m.tailers[t] = struct{}{}
	return nil
}

func (m *Manager) release(t *Tailer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range t.static {
		if m.owners[ownerKey{t.group, p}] == t {
			delete(m.owners, ownerKey{t.group, p})
		}
	}
	delete(m.tailers, t)
}

// bindCodec records the codec used on name. A log keeps the first codec
// bound to it for the lifetime of the manager.
func (m *Manager) bindCodec(name, codec string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.codecs[name]; ok && cur != codec {
		return fmt.Errorf("%w: log %s uses %s, got %s", ErrCodecMismatch, name, cur, codec)
	}
	m.codecs[name] = codec
	return nil
}

// CodecOf returns the codec bound to name, if any.
func (m *Manager) CodecOf(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codecs[name]
	return c, ok
}
