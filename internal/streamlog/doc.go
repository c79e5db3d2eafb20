// Package streamlog is the partitioned append-log engine: a Manager vends
// Appenders and Tailers over a pluggable Backend.
//
// A log is a named set of partitions fixed at creation. Appenders write to one
// partition at a time and get back the record's LogOffset. Tailers read for a
// consumer group, either over an explicit partition assignment or through a
// dynamic subscription on backends that coordinate groups. Commits are durable
// and group-scoped; nothing else about a tailer session survives a restart.
//
//	m := streamlog.NewManager(backend, streamlog.WithLogger(logger))
//	defer m.Close()
//
//	_, _ = m.CreateIfNotExists("orders", 4)
//	app, _ := m.GetAppender("orders")
//	off, _ := app.Append(1, []byte("id1"))
//
//	t, _ := m.CreateTailer("billing", streamlog.LogPartition{Name: "orders", Partition: 1})
//	defer t.Close()
//	rec, _ := t.Read(time.Second) // nil on timeout
//	_ = t.Commit()
//
// A new tailer starts at its group's last committed position, or at the start
// of the partition when the group never committed.
package streamlog
