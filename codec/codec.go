// Package codec is the serializer boundary of light-rpc.
//
// A Codec turns values into bytes and back; the codec byte of every frame
// names the Codec that produced its body. The message codec in this package
// builds on it to convert whole messages to and from frames.
package codec

import (
	"sync"

	"light-rpc/protocol"
)

type Codec interface {
	Encode(v any) ([]byte, error)
	// Decode parses data into v. Empty data is an absent value: v is left untouched.
	Decode(data []byte, v any) error
	Type() protocol.CodecType
}

var (
	mu     sync.RWMutex
	codecs = map[protocol.CodecType]Codec{
		protocol.CodecTypeJSON: JSONCodec{},
	}
)

// Register makes c available to the message codec under c.Type(),
// replacing any codec registered before with the same tag.
func Register(c Codec) {
	mu.Lock()
	defer mu.Unlock()
	codecs[c.Type()] = c
}

// GetCodec returns the codec registered for codecType. Unknown tags are
// reported with ok == false, they are not an error.
func GetCodec(codecType protocol.CodecType) (Codec, bool) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := codecs[codecType]
	return c, ok
}

// Convert assigns src to dst (a pointer) by running it through c. Decoded
// payloads hold generic values, this rebinds them to concrete Go types.
func Convert(c Codec, src any, dst any) error {
	data, err := c.Encode(src)
	if err != nil {
		return err
	}
	return c.Decode(data, dst)
}
