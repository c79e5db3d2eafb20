// Package pebblestore provides a thin wrapper around Pebble with fsync policy,
// batches, prefix scans and minimal metrics hooks. The disk log backend keeps
// partition metadata and consumer group offsets in it.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./offsets",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	_ = db.Set([]byte("cursor/g1/0"), value)
//	_ = db.ScanPrefix([]byte("cursor/"), func(k, v []byte) bool { return true })
package pebblestore
