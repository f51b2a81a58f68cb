// Package encoding is the single msgpack codec for kvstream. Publish log
// records and msgpack sink envelopes go through it so field tags and
// decoding options stay consistent.
//
// Marshal and Unmarshal are safe for concurrent use.
package encoding

import (
	"bytes"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

type pooledEncoder struct {
	buf *bytes.Buffer
	enc *msgpack.Encoder
}

var encoderPool = sync.Pool{
	New: func() interface{} {
		buf := new(bytes.Buffer)
		return &pooledEncoder{buf: buf, enc: msgpack.NewEncoder(buf)}
	},
}

// Marshal encodes v with a pooled encoder. The returned slice is owned by the caller.
func Marshal(v interface{}) ([]byte, error) {
	pe := encoderPool.Get().(*pooledEncoder)
	defer encoderPool.Put(pe)
	pe.buf.Reset()

	if err := pe.enc.Encode(v); err != nil {
		return nil, err
	}

	out := make([]byte, pe.buf.Len())
	copy(out, pe.buf.Bytes())
	return out, nil
}

// Unmarshal decodes data into v. Strings decode as Go strings, not []byte,
// when the target is interface{}.
func Unmarshal(data []byte, v interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	return dec.Decode(v)
}
