package logtest

import (
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rzbill/flolog/internal/streamlog"
)

// Run executes the contract suite against the backends built by factory.
func Run(t *testing.T, factory Factory, opts Options) {
	opts = opts.withDefaults()
	tests := []struct {
		name string
		fn   func(h *harness)
	}{
		{"CreateAndOpen", testCreateAndOpen},
		{"InvalidArguments", testInvalidArguments},
		{"GetAppender", testGetAppender},
		{"CloseManagerClosesHandles", testCloseManagerClosesHandles},
		{"AppendOnClosedAppender", testAppendOnClosedAppender},
		{"CreateTailer", testCreateTailer},
		{"ReadOnClosedTailer", testReadOnClosedTailer},
		{"TailerExclusivePerGroup", testTailerExclusivePerGroup},
		{"AppendAndTail", testAppendAndTail},
		{"CommitAndSeek", testCommitAndSeek},
		{"MoreCommit", testMoreCommit},
		{"CommitWithGroup", testCommitWithGroup},
		{"CommitConcurrently", testCommitConcurrently},
		{"WaitForConsumer", testWaitForConsumer},
		{"TailerOnMultiPartitions", testTailerOnMultiPartitions},
		{"TailerOnMultiPartitionsUnbalanced", testTailerOnMultiPartitionsUnbalanced},
		{"Lag", testLag},
		{"LagLeak", testLagLeak},
		{"Latencies", testLatencies},
		{"ListAll", testListAll},
		{"ListConsumerGroups", testListConsumerGroups},
		{"ConcurrentAppenders", testConcurrentAppenders},
		{"InitialOffset", testInitialOffset},
		{"RoundTrip", testRoundTrip},
		{"Delete", testDelete},
		{"Subscribe", testSubscribe},
		{"Codecs", testCodecs},
		{"CodecCheck", testCodecCheck},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(newHarness(t, factory, opts))
		})
	}
}

func testCreateAndOpen(h *harness) {
	t := h.t
	name := h.logName("")
	exists, err := h.m.Exists(name)
	require.NoError(t, err)
	require.False(t, exists)

	created, err := h.m.CreateIfNotExists(name, 5)
	require.NoError(t, err)
	require.True(t, created)
	exists, err = h.m.Exists(name)
	require.NoError(t, err)
	require.True(t, exists)
	size, err := h.m.Size(name)
	require.NoError(t, err)
	require.Equal(t, 5, size)

	// the partition count survives a restart even without data
	h.reset()
	exists, err = h.m.Exists(name)
	require.NoError(t, err)
	require.True(t, exists)

	h.reset()
	created, err = h.m.CreateIfNotExists(name, 1)
	require.NoError(t, err)
	require.False(t, created)
	size, err = h.m.Size(name)
	require.NoError(t, err)
	require.Equal(t, 5, size)
}

func testInvalidArguments(h *harness) {
	t := h.t
	_, err := h.m.CreateIfNotExists(h.logName(""), 0)
	require.ErrorIs(t, err, streamlog.ErrInvalidArgument)
	_, err = h.m.CreateIfNotExists("bad/name", 1)
	require.ErrorIs(t, err, streamlog.ErrInvalidName)
	_, err = h.m.Size(h.logName("-missing"))
	require.ErrorIs(t, err, streamlog.ErrUnknownLog)
}

func testGetAppender(h *harness) {
	t := h.t
	name := h.logName("")
	h.create(name, 5)
	a := h.appender(name)
	require.False(t, a.Closed())
	require.Equal(t, name, a.Name())
	require.Equal(t, 5, a.Size())
	h.append(a, 0, "foo")

	_, err := a.Append(5, []byte("bar"))
	require.ErrorIs(t, err, streamlog.ErrPartitionOutOfRange)

	_, err = h.m.GetAppender(h.logName("-unknown"))
	require.ErrorIs(t, err, streamlog.ErrUnknownLog)
	require.ErrorIs(t, err, streamlog.ErrInvalidArgument)
}

func testCloseManagerClosesHandles(h *harness) {
	t := h.t
	name := h.logName("")
	h.create(name, 1)
	a := h.appender(name)
	h.append(a, 0, "foo")
	tl := h.tailer("test-default", streamlog.PartitionOf(name, 0))
	require.Equal(t, "foo", h.read(tl))

	h.reset()

	require.True(t, a.Closed())
	require.True(t, tl.Closed())
}

func testAppendOnClosedAppender(h *harness) {
	t := h.t
	name := h.logName("")
	h.create(name, 1)
	a := h.appender(name)
	require.False(t, a.Closed())

	h.closeManager()
	require.True(t, a.Closed())
	_, err := a.Append(0, []byte("foo"))
	require.ErrorIs(t, err, streamlog.ErrClosed)
	require.ErrorIs(t, err, streamlog.ErrIllegalState)
}

func testCreateTailer(h *harness) {
	t := h.t
	name := h.logName("")
	group := "test-consumer"
	p := streamlog.PartitionOf(name, 1)
	h.create(name, 5)

	tl := h.tailer(group, p)
	require.False(t, tl.Closed())
	require.Equal(t, group, tl.Group())
	require.Equal(t, []streamlog.LogPartition{p}, tl.Assignments())
	require.NoError(t, tl.ToEnd())
	require.NoError(t, tl.ToStart())
	require.NoError(t, tl.ToLastCommitted())
	require.NoError(t, tl.Commit())
	require.NoError(t, tl.CommitPartition(p))
	require.ErrorIs(t, tl.CommitPartition(streamlog.PartitionOf(name, 2)), streamlog.ErrNotAssigned)
	require.NoError(t, tl.Close())

	// a tailer can take every partition of a log
	tl, err := h.m.CreateTailerForLog(group, name)
	require.NoError(t, err)
	require.Len(t, tl.Assignments(), 5)
	require.NoError(t, tl.ToEnd())
	require.NoError(t, tl.ToStart())
	require.NoError(t, tl.ToLastCommitted())
	require.NoError(t, tl.Commit())

	_, err = h.m.CreateTailer(group, streamlog.PartitionOf(h.logName("-unknown"), 1))
	require.ErrorIs(t, err, streamlog.ErrUnknownLog)

	_, err = h.m.CreateTailer(group, streamlog.PartitionOf(name, 100))
	require.ErrorIs(t, err, streamlog.ErrPartitionOutOfRange)
	require.ErrorIs(t, err, streamlog.ErrInvalidArgument)
}

func testReadOnClosedTailer(h *harness) {
	t := h.t
	name := h.logName("")
	h.create(name, 1)
	tl := h.tailer("test-default", streamlog.PartitionOf(name, 0))
	require.False(t, tl.Closed())
	require.NoError(t, tl.Close())
	require.True(t, tl.Closed())

	_, err := tl.Read(h.opts.EmptyTimeout)
	require.ErrorIs(t, err, streamlog.ErrIllegalState)
}

func testTailerExclusivePerGroup(h *harness) {
	t := h.t
	name := h.logName("")
	h.create(name, 1)
	p := streamlog.PartitionOf(name, 0)

	tl := h.tailer("test-default", p)
	require.Equal(t, "test-default", tl.Group())
	_, err := h.m.CreateTailer("test-default", p)
	require.ErrorIs(t, err, streamlog.ErrTailerAlreadyOpen)
	require.ErrorIs(t, err, streamlog.ErrInvalidArgument)

	// another group on the same partition is fine
	tl2 := h.tailer("test-another", p)
	require.Equal(t, "test-another", tl2.Group())

	// the pair is free again once the first tailer closed
	require.NoError(t, tl.Close())
	h.tailer("test-default", p)
}

func testAppendAndTail(h *harness) {
	t := h.t
	name := h.logName("")
	group := "test-default"
	h.create(name, 5)
	a := h.appender(name)
	h.append(a, 1, "id1")

	tl1 := h.tailer(group, streamlog.PartitionOf(name, 1))
	require.Equal(t, "id1", h.read(tl1))
	h.requireEmpty(tl1)

	// a message on another partition is not visible
	h.append(a, 2, "id2")
	h.requireEmpty(tl1)

	h.append(a, 1, "id2")
	require.Equal(t, "id2", h.read(tl1))
	require.NoError(t, tl1.Close())

	tl2 := h.tailer(group, streamlog.PartitionOf(name, 2))
	require.Equal(t, "id2", h.read(tl2))
	require.NoError(t, tl2.Close())

	// nothing was committed, reopened tailers start over
	tl1 = h.tailer(group, streamlog.PartitionOf(name, 1))
	tl2 = h.tailer(group, streamlog.PartitionOf(name, 2))
	require.Equal(t, "id1", h.read(tl1))
	require.Equal(t, "id2", h.read(tl1))
	h.requireEmpty(tl1)
	require.Equal(t, "id2", h.read(tl2))
	h.requireEmpty(tl2)
	require.NoError(t, tl1.Close())
	require.NoError(t, tl2.Close())

	require.Equal(t, streamlog.LagOf(3), h.lag(name, group))
}

func testCommitAndSeek(h *harness) {
	t := h.t
	name := h.logName("")
	group := "test-default"
	h.create(name, 5)
	a := h.appender(name)

	h.append(a, 1, "id1")
	offset2 := h.append(a, 1, "id2")
	h.append(a, 1, "id3")
	offset4 := h.append(a, 2, "id4")
	h.append(a, 2, "id5")

	tl := h.tailer(group, streamlog.PartitionOf(name, 1))
	require.Equal(t, "id1", h.read(tl))
	require.NoError(t, tl.Commit())
	require.Equal(t, "id2", h.read(tl))
	require.NoError(t, tl.Commit())
	require.NoError(t, tl.Close())

	tl = h.tailer(group, streamlog.PartitionOf(name, 2))
	require.Equal(t, "id4", h.read(tl))
	require.NoError(t, tl.Commit())
	require.NoError(t, tl.Commit())
	require.NoError(t, tl.Close())

	h.reset()

	tl = h.tailer(group, streamlog.PartitionOf(name, 1))
	require.NoError(t, tl.ToStart())
	require.Equal(t, "id1", h.read(tl))
	require.NoError(t, tl.ToEnd())
	h.requireEmpty(tl)
	require.NoError(t, tl.ToLastCommitted())
	require.Equal(t, "id3", h.read(tl))
	require.NoError(t, tl.Seek(offset2))
	require.Equal(t, "id2", h.read(tl))
	err := tl.Seek(offset4)
	require.ErrorIs(t, err, streamlog.ErrNotAssigned)
	require.ErrorIs(t, err, streamlog.ErrIllegalState)
	require.NoError(t, tl.Close())

	// a new tailer starts on the last committed offset
	tl = h.tailer(group, streamlog.PartitionOf(name, 2))
	require.Equal(t, "id5", h.read(tl))
	require.NoError(t, tl.ToStart())
	require.Equal(t, "id4", h.read(tl))
	require.NoError(t, tl.Close())

	require.Equal(t, lagOf(3, 5), h.lag(name, group))
}

func testMoreCommit(h *harness) {
	t := h.t
	name := h.logName("")
	group := "test-default"
	h.create(name, 5)
	a := h.appender(name)
	for i := 1; i <= 4; i++ {
		h.append(a, 1, "id"+strconv.Itoa(i))
	}
	require.Equal(t, lagOf(0, 4), h.lag(name, group))

	tl := h.tailer(group, streamlog.PartitionOf(name, 1))
	require.Equal(t, "id1", h.read(tl))
	require.NoError(t, tl.Commit())
	require.Equal(t, "id2", h.read(tl))
	require.NoError(t, tl.Commit())
	// restart from the beginning, committing after the first message
	require.NoError(t, tl.ToStart())
	require.Equal(t, "id1", h.read(tl))
	require.NoError(t, tl.Commit())
	require.NoError(t, tl.Close())

	tl = h.tailer(group, streamlog.PartitionOf(name, 1))
	require.NoError(t, tl.ToLastCommitted())
	require.Equal(t, "id2", h.read(tl))
	require.NoError(t, tl.Close())
	require.Equal(t, lagOf(1, 4), h.lag(name, group))

	tl = h.tailer(group, streamlog.PartitionOf(name, 1))
	require.NoError(t, tl.Reset())
	require.Equal(t, "id1", h.read(tl))
	require.NoError(t, tl.Close())
	require.Equal(t, lagOf(0, 4), h.lag(name, group))
}

func testCommitWithGroup(h *harness) {
	t := h.t
	name := h.logName("")
	h.create(name, 1)
	a := h.appender(name)
	for i := 0; i < 10; i++ {
		h.append(a, 0, "id"+strconv.Itoa(i))
	}
	p := streamlog.PartitionOf(name, 0)
	groupA, groupB := "test-group-a", "test-group-b"

	tailerA := h.tailer(groupA, p)
	tailerB := h.tailer(groupB, p)
	require.Equal(t, "id0", h.read(tailerA))
	require.Equal(t, "id1", h.read(tailerA))
	require.NoError(t, tailerA.Commit())
	require.Equal(t, "id2", h.read(tailerA))
	require.Equal(t, "id3", h.read(tailerA))
	require.NoError(t, tailerA.ToLastCommitted())
	require.Equal(t, "id2", h.read(tailerA))
	require.Equal(t, "id3", h.read(tailerA))

	require.Equal(t, "id0", h.read(tailerB))
	require.NoError(t, tailerB.Commit())
	require.Equal(t, "id1", h.read(tailerB))
	require.Equal(t, "id2", h.read(tailerB))
	require.NoError(t, tailerB.ToLastCommitted())
	require.Equal(t, "id1", h.read(tailerB))

	require.NoError(t, tailerA.ToLastCommitted())
	require.Equal(t, "id2", h.read(tailerA))

	h.reset()

	tl := h.tailer("test-default", p)
	tailerA = h.tailer(groupA, p)
	tailerB = h.tailer(groupB, p)
	require.Equal(t, "id0", h.read(tl))
	require.Equal(t, "id2", h.read(tailerA))
	require.Equal(t, "id1", h.read(tailerB))

	require.Equal(t, lagOf(2, 10), h.lag(name, groupA))
	require.Equal(t, lagOf(1, 10), h.lag(name, groupB))
}

func testCommitConcurrently(h *harness) {
	t := h.t
	name := h.logName("")
	h.create(name, 1)
	a := h.appender(name)
	for i := 0; i < 10; i++ {
		h.append(a, 0, "id"+strconv.Itoa(i))
	}
	p := streamlog.PartitionOf(name, 0)
	tailerA := h.tailer("test-group-a", p)
	tailerB := h.tailer("test-group-b", p)

	require.Equal(t, "id0", h.read(tailerA))
	require.Equal(t, "id0", h.read(tailerB))
	require.Equal(t, "id1", h.read(tailerA))
	require.NoError(t, tailerA.Commit())
	require.NoError(t, tailerB.Commit())

	require.Equal(t, "id1", h.read(tailerB))
	require.Equal(t, "id2", h.read(tailerA))
	require.Equal(t, "id2", h.read(tailerB))
	require.Equal(t, "id3", h.read(tailerB))
	require.Equal(t, "id4", h.read(tailerB))
	require.NoError(t, tailerB.Commit())

	require.NoError(t, tailerA.ToLastCommitted())
	require.NoError(t, tailerB.ToStart())
	require.Equal(t, "id2", h.read(tailerA))
	require.Equal(t, "id0", h.read(tailerB))

	require.NoError(t, tailerB.ToLastCommitted())
	require.Equal(t, "id5", h.read(tailerB))

	require.NoError(t, tailerA.Close())
	require.NoError(t, tailerB.Close())

	require.Equal(t, lagOf(2, 10), h.lag(name, "test-group-a"))
	require.Equal(t, lagOf(5, 10), h.lag(name, "test-group-b"))
}

func testWaitForConsumer(h *harness) {
	t := h.t
	name := h.logName("")
	h.create(name, 1)
	a := h.appender(name)

	var offset, offset0, offset5 streamlog.LogOffset
	for i := 0; i < 10; i++ {
		offset = h.append(a, 0, "id"+strconv.Itoa(i))
		switch i {
		case 0:
			offset0 = offset
		case 5:
			offset5 = offset
		}
	}

	waitFor := func(off streamlog.LogOffset, group string, expect bool) {
		t.Helper()
		timeout := h.opts.EmptyTimeout
		if expect {
			timeout = h.opts.ReadTimeout
		}
		ok, err := a.WaitFor(off, group, timeout)
		require.NoError(t, err)
		require.Equal(t, expect, ok, "waitFor %s group %s", off, group)
	}

	// nothing committed
	waitFor(offset, "test-foo", false)
	waitFor(offset0, "test-foo", false)
	waitFor(offset5, "test-foo", false)

	group := "test-default"
	tl := h.tailer(group, streamlog.PartitionOf(name, 0))
	h.read(tl)
	require.NoError(t, tl.Commit())

	waitFor(offset0, group, true)
	waitFor(offset5, group, false)
	waitFor(offset, group, false)

	for {
		rec, err := tl.Read(h.opts.EmptyTimeout)
		require.NoError(t, err)
		if rec == nil {
			break
		}
	}
	// read but not committed yet
	waitFor(offset, group, false)
	require.NoError(t, tl.Commit())
	require.NoError(t, tl.Close())

	waitFor(offset0, group, true)
	waitFor(offset5, group, true)
	waitFor(offset, group, true)
}

func testTailerOnMultiPartitions(h *harness) {
	t := h.t
	group := "test-default"
	name1, name2 := h.logName("1"), h.logName("2")
	h.create(name1, 2)
	h.create(name2, 2)

	partitions1 := []streamlog.LogPartition{streamlog.PartitionOf(name1, 0), streamlog.PartitionOf(name2, 0)}
	partitions2 := []streamlog.LogPartition{streamlog.PartitionOf(name1, 1), streamlog.PartitionOf(name2, 1)}
	tailer1 := h.tailer(group, partitions1...)
	tailer2 := h.tailer(group, partitions2...)
	require.Equal(t, partitions1, tailer1.Assignments())
	require.Equal(t, partitions2, tailer2.Assignments())

	appender1, appender2 := h.appender(name1), h.appender(name2)
	h.append(appender1, 0, "msg1")
	h.append(appender1, 0, "msg1")
	h.append(appender2, 0, "msg1")
	h.append(appender1, 1, "msg2")
	h.append(appender2, 1, "msg2")
	h.append(appender2, 1, "msg2")

	require.Equal(t, "msg1", h.read(tailer1))
	require.NoError(t, tailer1.Commit())
	require.Equal(t, "msg1", h.read(tailer1))
	require.Equal(t, "msg1", h.read(tailer1))
	h.requireEmpty(tailer1)

	// replay from the last commit
	require.NoError(t, tailer1.ToLastCommitted())
	require.Equal(t, "msg1", h.read(tailer1))
	require.Equal(t, "msg1", h.read(tailer1))
	h.requireEmpty(tailer1)
	require.NoError(t, tailer1.Commit())

	for i := 0; i < 3; i++ {
		require.Equal(t, "msg2", h.read(tailer2))
	}
	h.requireEmpty(tailer2)
	require.NoError(t, tailer2.ToStart())
	for i := 0; i < 3; i++ {
		require.Equal(t, "msg2", h.read(tailer2))
	}
	h.requireEmpty(tailer2)

	h.reset()

	// another assignment in the same group sees the group's commits
	tailer3 := h.tailer(group, streamlog.PartitionOf(name1, 0))
	h.requireEmpty(tailer3)
	tailer4 := h.tailer(group, streamlog.PartitionOf(name1, 1))
	require.Equal(t, "msg2", h.read(tailer4))
}

func testTailerOnMultiPartitionsUnbalanced(h *harness) {
	t := h.t
	const size, count = 5, 50
	name := h.logName("")
	h.create(name, size)
	partitions := make([]streamlog.LogPartition, size)
	for i := range partitions {
		partitions[i] = streamlog.PartitionOf(name, i)
	}
	tl := h.tailer("test-default", partitions...)
	require.Equal(t, partitions, tl.Assignments())

	a := h.appender(name)
	for i := 0; i < count; i++ {
		h.append(a, 1, "msg1")
	}
	h.append(a, 3, "msg3")

	got := map[string]int{}
	for {
		rec, err := tl.Read(h.opts.ReadTimeout)
		require.NoError(t, err)
		if rec == nil {
			break
		}
		got[string(rec.Message)]++
	}
	require.Equal(t, map[string]int{"msg1": count, "msg3": 1}, got)
}

func testLag(h *harness) {
	t := h.t
	name := h.logName("")
	group := "test-default"
	h.create(name, 5)
	a := h.appender(name)

	require.Equal(t, streamlog.LagOf(0), h.lag(name, "unknown-group"))
	h.append(a, 1, "id1")
	require.Equal(t, streamlog.LagOf(1), h.lag(name, "unknown-group"))

	tl := h.tailer(group, streamlog.PartitionOf(name, 1))
	require.Equal(t, "id1", h.read(tl))
	require.Equal(t, streamlog.LagOf(1), h.lag(name, group))
	require.NoError(t, tl.Commit())
	require.NoError(t, tl.Close())

	require.Equal(t, streamlog.LagOf(1), h.lag(name, "unknown-group"))
	lag := h.lag(name, group)
	require.Equal(t, int64(0), lag.Lag())
	require.Equal(t, lagOf(1, 1), lag)

	perPartition, err := h.m.GetLagPerPartition(name, group)
	require.NoError(t, err)
	require.Len(t, perPartition, 5)
	require.Equal(t, lagOf(1, 1), perPartition[1])
	require.Equal(t, lagOf(0, 0), perPartition[0])
}

func testLagLeak(h *harness) {
	t := h.t
	name := h.logName("")
	h.create(name, 1)
	a := h.appender(name)
	require.Equal(t, streamlog.LagOf(0), h.lag(name, "unknown-group"))
	h.append(a, 0, "id1")
	for i := 0; i < 20; i++ {
		require.Equal(t, streamlog.LagOf(1), h.lag(name, "unknown-group"))
	}
}

func testLatencies(h *harness) {
	t := h.t
	name := h.logName("")
	group := "test-latency"
	h.create(name, 5)
	a := h.appender(name)
	h.append(a, 0, "first")
	h.append(a, 0, "here")
	h.append(a, 0, "end")
	h.append(a, 1, "first")
	h.append(a, 1, "here")
	h.append(a, 2, "here")
	h.append(a, 2, "end")
	h.append(a, 3, "first")

	tl0 := h.tailer(group, streamlog.PartitionOf(name, 0))
	tl1 := h.tailer(group, streamlog.PartitionOf(name, 1))
	tl2 := h.tailer(group, streamlog.PartitionOf(name, 2))
	// middle of the partition
	require.Equal(t, "first", h.read(tl0))
	require.Equal(t, "here", h.read(tl0))
	// on the last record
	require.Equal(t, "first", h.read(tl1))
	require.Equal(t, "here", h.read(tl1))
	// on the first record
	require.Equal(t, "here", h.read(tl2))
	for _, tl := range []*streamlog.Tailer{tl0, tl1, tl2} {
		require.NoError(t, tl.Commit())
		require.NoError(t, tl.Close())
	}

	keyOf := func(msg []byte) string { return string(msg) }
	latencies, err := h.m.GetLatencyPerPartition(name, group, keyOf)
	require.NoError(t, err)
	require.Len(t, latencies, 5)
	require.Equal(t, "here", latencies[0].Key, latencies[0].String())
	require.False(t, latencies[0].Timestamp.IsZero())
	require.Equal(t, "", latencies[1].Key, latencies[1].String())
	require.True(t, latencies[1].Timestamp.IsZero())
	require.Equal(t, "here", latencies[2].Key, latencies[2].String())
	require.False(t, latencies[2].Timestamp.IsZero())
	// nothing committed on 3, nothing appended on 4
	require.Equal(t, "", latencies[3].Key, latencies[3].String())
	require.Equal(t, "", latencies[4].Key, latencies[4].String())
	require.Equal(t, lagOf(0, 1), latencies[3].Lag)
	require.Equal(t, lagOf(0, 0), latencies[4].Lag)

	latency := streamlog.LatencyOf(latencies...)
	require.Equal(t, int64(3), latency.Lag.Lag())
	require.Equal(t, "here", latency.Key)

	total, err := h.m.GetLatency(name, group, nil)
	require.NoError(t, err)
	require.Equal(t, latency.Lag, total.Lag)
	require.Equal(t, "", total.Key)

	_, err = h.m.GetLatencyPerPartition(h.logName("-missing"), group, keyOf)
	require.ErrorIs(t, err, streamlog.ErrUnknownLog)
}

func testListAll(h *harness) {
	t := h.t
	name, name2 := h.logName(""), h.logName("2")
	h.create(name, 2)
	h.create(name2, 2)

	logs, err := h.m.ListAll()
	require.NoError(t, err)
	require.Contains(t, logs, name)
	require.Contains(t, logs, name2)
}

func testListConsumerGroups(h *harness) {
	t := h.t
	name := h.logName("")
	group1, group2 := "test-group1", "test-group2"
	h.create(name, 1)
	a := h.appender(name)
	h.append(a, 0, "id1")
	h.append(a, 0, "id2")
	h.append(a, 0, "id3")

	var tailer, tailer2 *streamlog.Tailer
	var err error
	if h.m.SupportSubscribe() {
		tailer, err = h.m.Subscribe(group1, []string{name}, nil)
		require.NoError(t, err)
		tailer2, err = h.m.Subscribe(group2, []string{name}, nil)
		require.NoError(t, err)
	} else {
		tailer = h.tailer(group1, streamlog.PartitionOf(name, 0))
		tailer2 = h.tailer(group2, streamlog.PartitionOf(name, 0))
	}
	require.Equal(t, "id1", h.read(tailer))
	require.Equal(t, "id2", h.read(tailer))
	require.NoError(t, tailer.Commit())
	require.Equal(t, "id1", h.read(tailer2))
	require.NoError(t, tailer2.Commit())

	groups, err := h.m.ListConsumerGroups(name)
	require.NoError(t, err)
	require.Contains(t, groups, group1)
	require.Contains(t, groups, group2)
	require.NoError(t, tailer.Close())
	require.NoError(t, tailer2.Close())
}

func testConcurrentAppenders(h *harness) {
	t := h.t
	const writers, count = 4, 100
	name := h.logName("")
	h.create(name, 1)
	a := h.appender(name)

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < count; i++ {
				if _, err := a.Append(0, []byte(fmt.Sprintf("msg%d", i))); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, streamlog.LagOf(writers*count), h.lag(name, "test-counter"))
}

func testInitialOffset(h *harness) {
	t := h.t
	name := h.logName("")
	h.create(name, 1)
	a := h.appender(name)
	tl, err := h.m.CreateTailerForLog("test-some-group", name)
	require.NoError(t, err)

	offset, err := a.AppendKey("foo", []byte("1234567890"))
	require.NoError(t, err)
	rec, err := tl.Read(h.opts.ReadTimeout)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, offset, rec.Offset)
	require.Equal(t, "1234567890", string(rec.Message))
}

func testRoundTrip(h *harness) {
	for _, size := range []int{1, 3, 7} {
		h.t.Run(fmt.Sprintf("partitions=%d", size), func(t *testing.T) {
			name := h.logName("-rt" + strconv.Itoa(size))
			_, err := h.m.CreateIfNotExists(name, size)
			require.NoError(t, err)
			a, err := h.m.GetAppender(name)
			require.NoError(t, err)

			var want []string
			for i := 0; i < 40; i++ {
				msg := fmt.Sprintf("key-%d-msg-%d", i%9, i)
				_, err := a.AppendKey(fmt.Sprintf("key-%d", i%9), []byte(msg))
				require.NoError(t, err)
				want = append(want, msg)
			}

			tl, err := h.m.CreateTailerForLog("test-rt", name)
			require.NoError(t, err)
			defer tl.Close()
			var got []string
			for len(got) < len(want) {
				rec, err := tl.Read(h.opts.ReadTimeout)
				require.NoError(t, err)
				if rec == nil {
					break
				}
				got = append(got, string(rec.Message))
			}
			require.ElementsMatch(t, want, got)
		})
	}
}

func testDelete(h *harness) {
	t := h.t
	name := h.logName("")
	h.create(name, 2)
	a := h.appender(name)
	h.append(a, 0, "id1")

	deleted, err := h.m.Delete(name)
	require.NoError(t, err)
	require.True(t, deleted)
	require.True(t, a.Closed())

	exists, err := h.m.Exists(name)
	require.NoError(t, err)
	require.False(t, exists)
	_, err = h.m.GetAppender(name)
	require.ErrorIs(t, err, streamlog.ErrUnknownLog)

	deleted, err = h.m.Delete(name)
	require.NoError(t, err)
	require.False(t, deleted)
}

func testSubscribe(h *harness) {
	t := h.t
	name := h.logName("")
	h.create(name, 2)
	if !h.m.SupportSubscribe() {
		_, err := h.m.Subscribe("test-sub", []string{name}, nil)
		require.ErrorIs(t, err, streamlog.ErrSubscribeNotSupported)
		return
	}

	a := h.appender(name)
	h.append(a, 0, "id0")
	h.append(a, 1, "id1")

	listener := &recordingListener{}
	tl, err := h.m.Subscribe("test-sub", []string{name}, listener)
	require.NoError(t, err)
	defer tl.Close()
	require.True(t, tl.Dynamic())
	require.Empty(t, tl.Assignments())

	// the first read reports the initial assignment
	rebalanced := false
	got := map[string]bool{}
	for i := 0; i < 10 && len(got) < 2; i++ {
		rec, err := tl.Read(h.opts.ReadTimeout)
		if streamlog.IsRebalance(err) {
			rebalanced = true
			continue
		}
		require.NoError(t, err)
		if rec != nil {
			got[string(rec.Message)] = true
		}
	}
	require.True(t, rebalanced)
	require.Equal(t, map[string]bool{"id0": true, "id1": true}, got)
	require.Len(t, tl.Assignments(), 2)
	require.NotEmpty(t, listener.assigned())
	require.NoError(t, tl.Commit())
}

type recordingListener struct {
	mu  sync.Mutex
	got []streamlog.LogPartition
}

func (l *recordingListener) OnPartitionsRevoked([]streamlog.LogPartition) {}

func (l *recordingListener) OnPartitionsAssigned(ps []streamlog.LogPartition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, ps...)
}

func (l *recordingListener) assigned() []streamlog.LogPartition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]streamlog.LogPartition(nil), l.got...)
}
