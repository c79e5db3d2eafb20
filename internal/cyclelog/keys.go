package cyclelog

import (
	"encoding/binary"
)

// Offset store keyspace (byte-wise, lexicographically sortable):
// - meta/partitions                 -> be4 partition count
// - meta/roll                       -> be4 roll cycle
// - meta/next/{part_be4}            -> be8 next sequence watermark
// - cursor/{group}/{part_be4}       -> be8 committed next offset
//
// Groups may contain '/', so a cursor key is parsed from both ends.

var (
	keyPartitions = []byte("meta/partitions")
	keyRoll       = []byte("meta/roll")
	nextPrefix    = []byte("meta/next/")
	cursorPrefix  = []byte("cursor/")
)

func appendBE4(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func keyNext(partition int) []byte {
	k := make([]byte, 0, len(nextPrefix)+4)
	k = append(k, nextPrefix...)
	return appendBE4(k, uint32(partition))
}

func keyCursor(group string, partition int) []byte {
	k := make([]byte, 0, len(cursorPrefix)+len(group)+5)
	k = append(k, cursorPrefix...)
	k = append(k, group...)
	k = append(k, '/')
	return appendBE4(k, uint32(partition))
}

// parseCursorKey extracts the group and partition of a cursor key.
func parseCursorKey(k []byte) (string, int, bool) {
	if len(k) < len(cursorPrefix)+1+1+4 || string(k[:len(cursorPrefix)]) != string(cursorPrefix) {
		return "", 0, false
	}
	if k[len(k)-5] != '/' {
		return "", 0, false
	}
	group := string(k[len(cursorPrefix) : len(k)-5])
	return group, int(binary.BigEndian.Uint32(k[len(k)-4:])), true
}
