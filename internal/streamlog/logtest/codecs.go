package logtest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/rzbill/flolog/internal/streamlog"
)

type keyValue struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

func testCodecs(h *harness) {
	h.t.Run("raw", func(t *testing.T) {
		roundTripCodec(t, h, "-raw", streamlog.Codec[[]byte](streamlog.RawCodec{}),
			[][]byte{[]byte("value"), []byte("foo"), []byte("0987654321"), []byte("value")},
			func(want, got []byte) { require.Equal(t, want, got) })
	})
	h.t.Run("json", func(t *testing.T) {
		msgs := []keyValue{
			{Key: "key", Value: []byte("value")},
			{Key: "id2", Value: []byte("foo")},
			{Key: "1234567890", Value: []byte("0987654321")},
			{Key: "key", Value: []byte("value")},
		}
		roundTripCodec(t, h, "-json", streamlog.Codec[keyValue](streamlog.JSONCodec[keyValue]{}), msgs,
			func(want, got keyValue) { require.Equal(t, want, got) })
	})
	h.t.Run("proto", func(t *testing.T) {
		msgs := []*wrapperspb.StringValue{wrapperspb.String("value"), wrapperspb.String("foo"), wrapperspb.String("")}
		codec := streamlog.NewProtoCodec(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
		roundTripCodec(t, h, "-proto", streamlog.Codec[*wrapperspb.StringValue](codec), msgs,
			func(want, got *wrapperspb.StringValue) {
				require.True(t, proto.Equal(want, got), "want %v got %v", want, got)
			})
	})
}

func roundTripCodec[M any](t *testing.T, h *harness, suffix string, codec streamlog.Codec[M], msgs []M, equal func(want, got M)) {
	name := h.logName(suffix)
	_, err := h.m.CreateIfNotExists(name, 1)
	require.NoError(t, err)

	a, err := streamlog.OpenTypedAppender(h.m, name, codec)
	require.NoError(t, err)
	require.Equal(t, codec.Name(), a.Codec().Name())
	for _, m := range msgs {
		_, err := a.Append(0, m)
		require.NoError(t, err)
	}

	tl, err := streamlog.OpenTypedTailer(h.m, "test-default", codec, streamlog.PartitionOf(name, 0))
	require.NoError(t, err)
	defer tl.Close()
	for _, want := range msgs {
		rec, err := tl.Read(h.opts.ReadTimeout)
		require.NoError(t, err)
		require.NotNil(t, rec)
		equal(want, rec.Message)
	}
	rec, err := tl.Read(h.opts.EmptyTimeout)
	require.NoError(t, err)
	require.Nil(t, rec)
}

func testCodecCheck(h *harness) {
	t := h.t
	name := h.logName("")
	group := "test-default"
	h.create(name, 1)
	p := streamlog.PartitionOf(name, 0)

	protoCodec := streamlog.NewProtoCodec(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	jsonCodec := streamlog.JSONCodec[keyValue]{}

	a, err := streamlog.OpenTypedAppender(h.m, name, streamlog.Codec[*wrapperspb.StringValue](protoCodec))
	require.NoError(t, err)
	require.Equal(t, "proto:google.protobuf.StringValue", a.Codec().Name())
	_, err = a.Append(0, wrapperspb.String("1234567890"))
	require.NoError(t, err)

	// another codec on the same log is refused by the manager
	_, err = streamlog.OpenTypedAppender(h.m, name, streamlog.Codec[keyValue](jsonCodec))
	require.ErrorIs(t, err, streamlog.ErrCodecMismatch)
	require.ErrorIs(t, err, streamlog.ErrInvalidArgument)

	// an equivalent codec instance is accepted
	again, err := streamlog.OpenTypedAppender(h.m, name, streamlog.Codec[*wrapperspb.StringValue](protoCodec))
	require.NoError(t, err)
	_, err = again.Append(0, wrapperspb.String("1234567890"))
	require.NoError(t, err)

	_, err = streamlog.OpenTypedTailer(h.m, group, streamlog.Codec[keyValue](jsonCodec), p)
	require.ErrorIs(t, err, streamlog.ErrCodecMismatch)

	codec, ok := h.m.CodecOf(name)
	require.True(t, ok)
	require.Equal(t, protoCodec.Name(), codec)

	// a fresh manager does not know the codec, decoding fails instead
	h.reset()
	tl, err := streamlog.OpenTypedTailer(h.m, group, streamlog.Codec[keyValue](jsonCodec), p)
	require.NoError(t, err)
	_, err = tl.Read(h.opts.ReadTimeout)
	require.ErrorIs(t, err, streamlog.ErrCodecMismatch)
	require.NoError(t, tl.Close())

	h.reset()
	ptl, err := streamlog.OpenTypedTailer(h.m, group, streamlog.Codec[*wrapperspb.StringValue](protoCodec), p)
	require.NoError(t, err)
	defer ptl.Close()
	rec, err := ptl.Read(h.opts.ReadTimeout)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "1234567890", rec.Message.GetValue())
}
