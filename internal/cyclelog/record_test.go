package cyclelog

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	buf := encodeFrame(42, 1700000000123, []byte("hello"))
	if got := binary.BigEndian.Uint32(buf); int(got) != len(buf)-frameLenSize {
		t.Fatalf("frame length %d, body %d", got, len(buf)-frameLenSize)
	}
	f, err := decodeFrameBody(buf[frameLenSize:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.seq != 42 || f.appendMs != 1700000000123 || !bytes.Equal(f.payload, []byte("hello")) {
		t.Fatalf("unexpected frame %+v", f)
	}
}

func TestFrameEmptyPayload(t *testing.T) {
	buf := encodeFrame(0, 0, nil)
	f, err := decodeFrameBody(buf[frameLenSize:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(f.payload) != 0 {
		t.Fatalf("payload = %q", f.payload)
	}
}

func TestFrameCorruption(t *testing.T) {
	buf := encodeFrame(7, 1, []byte("payload"))
	body := append([]byte(nil), buf[frameLenSize:]...)
	body[len(body)-6] ^= 0xff
	if _, err := decodeFrameBody(body); !errors.Is(err, errCorruptFrame) {
		t.Fatalf("want errCorruptFrame, got %v", err)
	}
	if _, err := decodeFrameBody(body[:3]); !errors.Is(err, errCorruptFrame) {
		t.Fatalf("short body: want errCorruptFrame, got %v", err)
	}
}

func TestRecordRejectsWrongHeaderSize(t *testing.T) {
	rec := encodeRecord([]byte("abc"), []byte("x"))
	if _, _, ok := decodeRecord(rec); !ok {
		t.Fatalf("record should decode")
	}
	if _, err := decodeFrameBody(rec); !errors.Is(err, errCorruptFrame) {
		t.Fatalf("want errCorruptFrame for a 3 byte header, got %v", err)
	}
}
