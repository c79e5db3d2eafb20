// Package logtest is the behavioral contract every streamlog.Backend must
// satisfy. Backend packages run it from their own tests:
//
//	func TestContract(t *testing.T) {
//	    logtest.Run(t, func(t *testing.T) logtest.Opener {
//	        root := t.TempDir()
//	        return func() streamlog.Backend { ... open on root ... }
//	    }, logtest.Options{})
//	}
package logtest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/flolog/internal/streamlog"
)

// Opener opens a backend over the storage chosen by a Factory. Each call
// must see the data written through earlier ones.
type Opener func() streamlog.Backend

// Factory returns an Opener bound to fresh storage for one test.
type Factory func(t *testing.T) Opener

// Options tunes the suite to the backend latency.
type Options struct {
	// ReadTimeout bounds reads that must return a record.
	ReadTimeout time.Duration
	// EmptyTimeout bounds reads that must return nothing.
	EmptyTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 2 * time.Second
	}
	if o.EmptyTimeout <= 0 {
		o.EmptyTimeout = 50 * time.Millisecond
	}
	return o
}

type harness struct {
	t      *testing.T
	open   Opener
	opts   Options
	m      *streamlog.Manager
	closed bool
	prefix string
	logs   map[string]bool
}

func newHarness(t *testing.T, factory Factory, opts Options) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		open:   factory(t),
		opts:   opts,
		prefix: "log-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		logs:   make(map[string]bool),
	}
	h.m = streamlog.NewManager(h.open())
	t.Cleanup(h.cleanup)
	return h
}

func (h *harness) cleanup() {
	if h.closed {
		h.m = streamlog.NewManager(h.open())
	}
	for name := range h.logs {
		_, _ = h.m.Delete(name)
	}
	_ = h.m.Close()
}

// logName returns a log name unique to the test.
func (h *harness) logName(suffix string) string {
	name := h.prefix + suffix
	h.logs[name] = true
	return name
}

func (h *harness) create(name string, partitions int) {
	h.t.Helper()
	h.logs[name] = true
	_, err := h.m.CreateIfNotExists(name, partitions)
	require.NoError(h.t, err)
}

// reset closes the manager and opens a new one on the same storage.
func (h *harness) reset() {
	h.t.Helper()
	if !h.closed {
		require.NoError(h.t, h.m.Close())
	}
	h.m = streamlog.NewManager(h.open())
	h.closed = false
}

func (h *harness) closeManager() {
	h.t.Helper()
	require.NoError(h.t, h.m.Close())
	h.closed = true
}

func (h *harness) appender(name string) *streamlog.Appender {
	h.t.Helper()
	a, err := h.m.GetAppender(name)
	require.NoError(h.t, err)
	return a
}

func (h *harness) append(a *streamlog.Appender, partition int, msg string) streamlog.LogOffset {
	h.t.Helper()
	off, err := a.Append(partition, []byte(msg))
	require.NoError(h.t, err)
	return off
}

func (h *harness) tailer(group string, partitions ...streamlog.LogPartition) *streamlog.Tailer {
	h.t.Helper()
	tl, err := h.m.CreateTailer(group, partitions...)
	require.NoError(h.t, err)
	return tl
}

// read returns the next message, retrying once on a rebalance.
func (h *harness) read(tl *streamlog.Tailer) string {
	h.t.Helper()
	rec, err := tl.Read(h.opts.ReadTimeout)
	if errors.Is(err, streamlog.ErrRebalance) {
		rec, err = tl.Read(h.opts.ReadTimeout)
	}
	require.NoError(h.t, err)
	require.NotNil(h.t, rec, "expected a record")
	return string(rec.Message)
}

func (h *harness) requireEmpty(tl *streamlog.Tailer) {
	h.t.Helper()
	rec, err := tl.Read(h.opts.EmptyTimeout)
	require.NoError(h.t, err)
	if rec != nil {
		require.Nil(h.t, rec, "unexpected record %s: %q", rec.Offset, rec.Message)
	}
}

func (h *harness) lag(name, group string) streamlog.LogLag {
	h.t.Helper()
	l, err := h.m.GetLag(name, group)
	require.NoError(h.t, err)
	return l
}

func lagOf(lower, upper int64) streamlog.LogLag {
	return streamlog.LogLag{Lower: lower, Upper: upper}
}
