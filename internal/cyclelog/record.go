package cyclelog

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

// Frame layout on disk:
//
//	be4 frameLen | varint headerLen | header | payload | crc32c(header|payload)
//
// The header holds the record sequence and append time (ms), both be8.

const (
	frameLenSize = 4
	headerSize   = 16
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

var errCorruptFrame = errors.New("cyclelog: corrupt frame")

// encodeRecord builds varint headerLen | header | payload | crc32c.
func encodeRecord(header, payload []byte) []byte {
	out := make([]byte, 0, 10+len(header)+len(payload)+4)
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], uint64(len(header)))
	out = append(out, tmp[:n]...)
	out = append(out, header...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	return append(out, crcb[:]...)
}

// decodeRecord splits and verifies an encoded record. The returned slices
// alias b.
func decodeRecord(b []byte) (header, payload []byte, ok bool) {
	if len(b) < 1+4 {
		return nil, nil, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 {
		return nil, nil, false
	}
	if n+int(hlen)+4 > len(b) {
		return nil, nil, false
	}
	header = b[n : n+int(hlen)]
	payload = b[n+int(hlen) : len(b)-4]
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != binary.BigEndian.Uint32(b[len(b)-4:]) {
		return nil, nil, false
	}
	return header, payload, true
}

// encodeFrame returns the on-disk bytes of one record.
func encodeFrame(seq uint64, appendMs int64, payload []byte) []byte {
	var header [headerSize]byte
	binary.BigEndian.PutUint64(header[:8], seq)
	binary.BigEndian.PutUint64(header[8:], uint64(appendMs))
	rec := encodeRecord(header[:], payload)
	out := make([]byte, frameLenSize, frameLenSize+len(rec))
	binary.BigEndian.PutUint32(out, uint32(len(rec)))
	return append(out, rec...)
}

type frame struct {
	seq      uint64
	appendMs int64
	payload  []byte
}

// decodeFrameBody decodes the bytes following the frame length.
func decodeFrameBody(body []byte) (frame, error) {
	header, payload, ok := decodeRecord(body)
	if !ok || len(header) != headerSize {
		return frame{}, errCorruptFrame
	}
	return frame{
		seq:      binary.BigEndian.Uint64(header[:8]),
		appendMs: int64(binary.BigEndian.Uint64(header[8:])),
		payload:  append([]byte(nil), payload...),
	}, nil
}
