package publisher

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/maxpert/kvstream/cfg"
	"github.com/maxpert/kvstream/encoding"
)

func init() {
	RegisterTransformer(cfg.SinkFormatRaw, func() Transformer { return RawTransformer{} })
	RegisterTransformer(cfg.SinkFormatMsgpack, func() Transformer { return MsgpackTransformer{} })
}

// RawTransformer emits the digest body exactly as published on the channel
type RawTransformer struct{}

func (RawTransformer) Transform(event Event) ([]byte, error) {
	return []byte(event.Body), nil
}

// MsgpackTransformer emits the whole event, sequence and origin included
type MsgpackTransformer struct{}

func (MsgpackTransformer) Transform(event Event) ([]byte, error) {
	return encoding.Marshal(&event)
}

// ZstdTransformer compresses the output of another transformer as one zstd frame
type ZstdTransformer struct {
	inner Transformer
	enc   *zstd.Encoder
}

// NewZstdTransformer wraps inner. The encoder is shared; EncodeAll is safe for concurrent use.
func NewZstdTransformer(inner Transformer) (*ZstdTransformer, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	return &ZstdTransformer{inner: inner, enc: enc}, nil
}

func (z *ZstdTransformer) Transform(event Event) ([]byte, error) {
	data, err := z.inner.Transform(event)
	if err != nil {
		return nil, err
	}
	return z.enc.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func withCompression(trans Transformer, compression string) (Transformer, error) {
	switch compression {
	case "", cfg.SinkCompressionNone:
		return trans, nil
	case cfg.SinkCompressionZstd:
		return NewZstdTransformer(trans)
	default:
		return nil, fmt.Errorf("unknown compression: %s", compression)
	}
}
