package cyclelog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	pebblestore "github.com/rzbill/flolog/internal/storage/pebble"
	"github.com/rzbill/flolog/internal/streamlog"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

const (
	offsetsDir      = "offsets"
	partitionPrefix = "P-"

	defaultSweepInterval = time.Minute
)

var partitionDirRe = regexp.MustCompile(`^P-[0-9]+$`)

// Options configures the disk backend.
type Options struct {
	// Root holds one directory per log.
	Root string
	// Retention is "10m", "12h", "4d" or "0" (keep forever). See
	// ParseRetention.
	Retention string
	// Fsync applies to the offset store and cycle files. FsyncModeAlways
	// syncs every append, FsyncModeInterval syncs on each sweep.
	Fsync pebblestore.FsyncMode
	// SweepInterval is the period of the background retention and sync
	// task. Zero means one minute, negative disables it.
	SweepInterval time.Duration
	// Now overrides the clock used to pick cycles.
	Now     func() time.Time
	Logger  logpkg.Logger
	Metrics pebblestore.MetricsHook
}

// Backend stores logs as cycle files on the local disk.
type Backend struct {
	opts      Options
	retention Retention
	now       func() time.Time
	logger    logpkg.Logger

	mu     sync.Mutex
	logs   map[string]*logState
	closed bool

	notifyMu sync.Mutex
	notifyCh chan struct{}

	stop chan struct{}
	wg   sync.WaitGroup
}

var _ streamlog.Backend = (*Backend)(nil)

type logState struct {
	name    string
	dir     string
	offsets *offsetStore
	// roll is fixed when the log is created; keep follows the configured
	// retention window.
	roll  RollCycle
	keep  int
	parts []*partition
}

func (ls *logState) close() error {
	var err error
	for _, p := range ls.parts {
		err = multierr.Append(err, p.close())
	}
	return multierr.Append(err, ls.offsets.close())
}

// Open returns a disk backend rooted at opts.Root.
func Open(opts Options) (*Backend, error) {
	if opts.Root == "" {
		return nil, errors.New("cyclelog: Options.Root is required")
	}
	retention, err := ParseRetention(opts.Retention)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, fmt.Errorf("cyclelog: create root: %w", err)
	}
	b := &Backend{
		opts:      opts,
		retention: retention,
		now:       opts.Now,
		logger:    opts.Logger,
		logs:      make(map[string]*logState),
		notifyCh:  make(chan struct{}),
		stop:      make(chan struct{}),
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.logger == nil {
		b.logger = logpkg.NewNop()
	}
	b.logger = b.logger.WithComponent("cyclelog")

	interval := opts.SweepInterval
	if interval == 0 {
		interval = defaultSweepInterval
	}
	if interval > 0 {
		b.wg.Add(1)
		go b.janitor(interval)
	}
	b.logger.Info("disk backend opened", logpkg.Str("root", opts.Root), logpkg.Str("retention", retention.String()))
	return b, nil
}

// Kind implements streamlog.Backend.
func (b *Backend) Kind() string { return "disk" }

// Retention returns the parsed retention policy.
func (b *Backend) Retention() Retention { return b.retention }

func (b *Backend) logDir(name string) string {
	return filepath.Join(b.opts.Root, name)
}

// lookup returns the opened state of an existing log.
func (b *Backend) lookup(name string) (*logState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("cyclelog: %w", streamlog.ErrClosed)
	}
	if ls, ok := b.logs[name]; ok {
		return ls, nil
	}
	if err := streamlog.ValidateLogName(name); err != nil {
		return nil, fmt.Errorf("%w: %s", streamlog.ErrUnknownLog, name)
	}
	if !isDir(filepath.Join(b.logDir(name), offsetsDir)) {
		return nil, fmt.Errorf("%w: %s", streamlog.ErrUnknownLog, name)
	}
	ls, _, err := b.openLog(name, 0)
	return ls, err
}

// openLog opens the log state, writing the partition count when create > 0
// and none is stored yet. Must be called with b.mu held.
func (b *Backend) openLog(name string, create int) (*logState, bool, error) {
	dir := b.logDir(name)
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: filepath.Join(dir, offsetsDir),
		Fsync:   b.opts.Fsync,
		Logger:  b.logger,
		Metrics: b.opts.Metrics,
	})
	if err != nil {
		return nil, false, err
	}
	ls := &logState{name: name, dir: dir, offsets: &offsetStore{db: db}}
	created := false
	n, err := ls.offsets.partitions()
	switch {
	case errors.Is(err, errNoMeta) && create > 0:
		if err := ls.offsets.setRollCycle(b.retention.Roll); err != nil {
			_ = db.Close()
			return nil, false, err
		}
		if err := ls.offsets.setPartitions(create); err != nil {
			_ = db.Close()
			return nil, false, err
		}
		n, created = create, true
	case errors.Is(err, errNoMeta):
		_ = db.Close()
		return nil, false, fmt.Errorf("%w: %s", streamlog.ErrUnknownLog, name)
	case err != nil:
		_ = db.Close()
		return nil, false, err
	}

	roll, err := ls.offsets.rollCycle()
	if errors.Is(err, errNoMeta) {
		// logs written before the roll cycle was stored get the configured one
		roll = b.retention.Roll
		err = ls.offsets.setRollCycle(roll)
	}
	if err != nil {
		_ = db.Close()
		return nil, false, err
	}
	ls.roll = roll
	ls.keep = b.retention.KeepIn(roll)
	if roll != b.retention.Roll {
		b.logger.Info("log keeps its roll cycle", logpkg.Str("log", name), logpkg.Str("roll", roll.String()),
			logpkg.Str("configured", b.retention.Roll.String()), logpkg.Int("keep", ls.keep))
	}

	fsync := b.opts.Fsync == pebblestore.FsyncModeAlways
	for i := 0; i < n; i++ {
		wm, err := ls.offsets.watermark(i)
		if err != nil {
			_ = ls.close()
			return nil, false, err
		}
		p, err := openPartition(filepath.Join(dir, partitionPrefix+strconv.Itoa(i)), roll, fsync, wm)
		if err != nil {
			_ = ls.close()
			return nil, false, fmt.Errorf("cyclelog: open %s partition %d: %w", name, i, err)
		}
		ls.parts = append(ls.parts, p)
	}
	b.logs[name] = ls
	return ls, created, nil
}

// Exists implements streamlog.Backend.
func (b *Backend) Exists(name string) (bool, error) {
	_, err := b.lookup(name)
	if errors.Is(err, streamlog.ErrUnknownLog) {
		return false, nil
	}
	return err == nil, err
}

// Create implements streamlog.Backend.
func (b *Backend) Create(name string, partitions int) (bool, error) {
	if err := streamlog.ValidateLogName(name); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false, fmt.Errorf("cyclelog: %w", streamlog.ErrClosed)
	}
	if _, ok := b.logs[name]; ok {
		return false, nil
	}
	if err := os.MkdirAll(b.logDir(name), 0o755); err != nil {
		return false, err
	}
	_, created, err := b.openLog(name, partitions)
	return created, err
}

// Size implements streamlog.Backend.
func (b *Backend) Size(name string) (int, error) {
	ls, err := b.lookup(name)
	if err != nil {
		return 0, err
	}
	return len(ls.parts), nil
}

// Delete implements streamlog.Backend. It refuses to remove a log directory
// holding entries the backend did not create.
func (b *Backend) Delete(name string) (bool, error) {
	if err := streamlog.ValidateLogName(name); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false, fmt.Errorf("cyclelog: %w", streamlog.ErrClosed)
	}
	dir := b.logDir(name)
	if !isDir(dir) {
		return false, nil
	}
	if err := checkOwned(dir); err != nil {
		return false, err
	}
	var err error
	if ls, ok := b.logs[name]; ok {
		err = ls.close()
		delete(b.logs, name)
	}
	if rmErr := os.RemoveAll(dir); rmErr != nil {
		return false, multierr.Append(err, rmErr)
	}
	b.logger.Info("log removed", logpkg.Str("log", name))
	return true, err
}

// checkOwned fails with ErrForeignFiles when dir holds anything besides the
// offset store and partition directories of cycle files.
func checkOwned(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		switch {
		case e.Name() == offsetsDir && e.IsDir():
		case partitionDirRe.MatchString(e.Name()) && e.IsDir():
			files, err := os.ReadDir(filepath.Join(dir, e.Name()))
			if err != nil {
				return err
			}
			for _, f := range files {
				if f.IsDir() || !(strings.HasSuffix(f.Name(), cycleExt) || strings.HasSuffix(f.Name(), indexExt)) {
					return fmt.Errorf("%w: %s", streamlog.ErrForeignFiles, filepath.Join(dir, e.Name(), f.Name()))
				}
			}
		default:
			return fmt.Errorf("%w: %s", streamlog.ErrForeignFiles, filepath.Join(dir, e.Name()))
		}
	}
	return nil
}

// ListAll implements streamlog.Backend.
func (b *Backend) ListAll() ([]string, error) {
	entries, err := os.ReadDir(b.opts.Root)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() || streamlog.ValidateLogName(e.Name()) != nil {
			continue
		}
		if isDir(filepath.Join(b.opts.Root, e.Name(), offsetsDir)) {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// ListConsumerGroups implements streamlog.Backend.
func (b *Backend) ListConsumerGroups(name string) ([]string, error) {
	ls, err := b.lookup(name)
	if err != nil {
		return nil, err
	}
	return ls.offsets.groups()
}

// LagPerPartition implements streamlog.Backend. It also reclaims expired
// cycles of the log.
func (b *Backend) LagPerPartition(name, group string) ([]streamlog.LogLag, error) {
	ls, err := b.lookup(name)
	if err != nil {
		return nil, err
	}
	b.sweepLog(ls)
	lags := make([]streamlog.LogLag, len(ls.parts))
	for i, p := range ls.parts {
		_, next := p.bounds()
		committed, _, err := ls.offsets.committed(group, i)
		if err != nil {
			return nil, err
		}
		lags[i] = streamlog.LogLag{Lower: int64(min(committed, next)), Upper: int64(next)}
	}
	return lags, nil
}

// Committed implements streamlog.Backend.
func (b *Backend) Committed(p streamlog.LogPartition, group string) (int64, bool, error) {
	ls, err := b.lookup(p.Name)
	if err != nil {
		return 0, false, err
	}
	if p.Partition < 0 || p.Partition >= len(ls.parts) {
		return 0, false, fmt.Errorf("%w: %s", streamlog.ErrPartitionOutOfRange, p)
	}
	next, ok, err := ls.offsets.committed(group, p.Partition)
	return int64(next), ok, err
}

// RecordAt implements streamlog.Backend.
func (b *Backend) RecordAt(o streamlog.LogOffset) (*streamlog.Record, time.Time, error) {
	ls, err := b.lookup(o.Partition.Name)
	if err != nil {
		return nil, time.Time{}, err
	}
	if o.Partition.Partition < 0 || o.Partition.Partition >= len(ls.parts) {
		return nil, time.Time{}, fmt.Errorf("%w: %s", streamlog.ErrPartitionOutOfRange, o.Partition)
	}
	if o.Offset < 0 {
		return nil, time.Time{}, nil
	}
	f, ok, err := ls.parts[o.Partition.Partition].read(uint64(o.Offset))
	if err != nil || !ok || f.seq != uint64(o.Offset) {
		// read skips forward past reclaimed cycles
		return nil, time.Time{}, err
	}
	return &streamlog.Record{Offset: o, Message: f.payload}, time.UnixMilli(f.appendMs), nil
}

// SupportSubscribe implements streamlog.Backend. Assignments are always
// explicit on disk.
func (b *Backend) SupportSubscribe() bool { return false }

// Subscribe implements streamlog.Backend.
func (b *Backend) Subscribe(string, []string, streamlog.RebalanceListener) (streamlog.Reader, error) {
	return nil, streamlog.ErrSubscribeNotSupported
}

// NewWriter implements streamlog.Backend.
func (b *Backend) NewWriter(name string) (streamlog.Writer, error) {
	ls, err := b.lookup(name)
	if err != nil {
		return nil, err
	}
	return &writer{b: b, ls: ls}, nil
}

// NewReader implements streamlog.Backend.
func (b *Backend) NewReader(group string, partitions []streamlog.LogPartition) (streamlog.Reader, error) {
	r := &reader{b: b, group: group, done: make(chan struct{})}
	for _, lp := range partitions {
		ls, err := b.lookup(lp.Name)
		if err != nil {
			return nil, err
		}
		if lp.Partition < 0 || lp.Partition >= len(ls.parts) {
			return nil, fmt.Errorf("%w: %s", streamlog.ErrPartitionOutOfRange, lp)
		}
		r.cursors = append(r.cursors, &cursor{lp: lp, log: ls, part: ls.parts[lp.Partition]})
	}
	if err := r.ToLastCommitted(); err != nil {
		return nil, err
	}
	return r, nil
}

// Close implements streamlog.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.stop)
	b.mu.Unlock()
	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	for name, ls := range b.logs {
		err = multierr.Append(err, ls.close())
		delete(b.logs, name)
	}
	b.notify()
	return err
}

// waitCh returns the channel closed by the next append.
func (b *Backend) waitCh() <-chan struct{} {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()
	return b.notifyCh
}

func (b *Backend) notify() {
	b.notifyMu.Lock()
	close(b.notifyCh)
	b.notifyCh = make(chan struct{})
	b.notifyMu.Unlock()
}

// Sweep reclaims expired cycles of every open log.
func (b *Backend) Sweep() {
	b.mu.Lock()
	logs := make([]*logState, 0, len(b.logs))
	for _, ls := range b.logs {
		logs = append(logs, ls)
	}
	b.mu.Unlock()
	for _, ls := range logs {
		b.sweepLog(ls)
	}
}

func (b *Backend) sweepLog(ls *logState) {
	for i := range ls.parts {
		b.purgePartition(ls, i)
	}
}

func (b *Backend) purgePartition(ls *logState, i int) {
	if ls.keep <= 0 {
		return
	}
	current := ls.roll.Cycle(b.now())
	removed, err := ls.parts[i].purge(current, ls.keep, func(next uint64) error {
		return ls.offsets.setWatermark(i, next)
	})
	if err != nil {
		b.logger.Warn("retention purge failed", logpkg.Str("log", ls.name), logpkg.Int("partition", i), logpkg.Err(err))
		return
	}
	if len(removed) > 0 {
		b.logger.Info("cycles reclaimed", logpkg.Str("log", ls.name), logpkg.Int("partition", i), logpkg.Int("cycles", len(removed)))
	}
}

func (b *Backend) janitor(interval time.Duration) {
	defer b.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-t.C:
			b.Sweep()
			if b.opts.Fsync == pebblestore.FsyncModeInterval {
				b.syncAll()
			}
		}
	}
}

func (b *Backend) syncAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ls := range b.logs {
		for i, p := range ls.parts {
			if err := p.sync(); err != nil {
				b.logger.Warn("cycle sync failed", logpkg.Str("log", ls.name), logpkg.Int("partition", i), logpkg.Err(err))
			}
		}
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
