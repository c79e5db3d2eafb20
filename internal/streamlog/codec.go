package streamlog

import (
	"encoding/json"

	"google.golang.org/protobuf/proto"
)

// Codec converts messages of type M to and from record payloads. Name
// identifies the wire format; two codecs with the same name must be
// interchangeable.
type Codec[M any] interface {
	Name() string
	Encode(msg M) ([]byte, error)
	Decode(data []byte) (M, error)
}

// RawCodec passes payloads through untouched.
type RawCodec struct{}

func (RawCodec) Name() string                      { return "raw" }
func (RawCodec) Encode(msg []byte) ([]byte, error) { return msg, nil }
func (RawCodec) Decode(data []byte) ([]byte, error) {
	return data, nil
}

// JSONCodec encodes messages with encoding/json.
type JSONCodec[M any] struct{}

func (JSONCodec[M]) Name() string { return "json" }

func (JSONCodec[M]) Encode(msg M) ([]byte, error) {
	return json.Marshal(msg)
}

func (JSONCodec[M]) Decode(data []byte) (M, error) {
	var msg M
	err := json.Unmarshal(data, &msg)
	return msg, err
}

// ProtoCodec encodes protobuf messages in binary wire format. New returns
// an empty message to decode into.
type ProtoCodec[M proto.Message] struct {
	New func() M
}

// NewProtoCodec returns a codec for messages built by newMsg.
func NewProtoCodec[M proto.Message](newMsg func() M) ProtoCodec[M] {
	return ProtoCodec[M]{New: newMsg}
}

func (c ProtoCodec[M]) Name() string {
	return "proto:" + string(c.New().ProtoReflect().Descriptor().FullName())
}

func (c ProtoCodec[M]) Encode(msg M) ([]byte, error) {
	return proto.Marshal(msg)
}

func (c ProtoCodec[M]) Decode(data []byte) (M, error) {
	msg := c.New()
	if err := proto.Unmarshal(data, msg); err != nil {
		var zero M
		return zero, err
	}
	return msg, nil
}
