package codec

import (
	"bytes"
	"encoding/json"

	"light-rpc/protocol"
)

// JSONCodec uses Go's standard library encoding/json for serialization.
// Numbers decode as json.Number when the target is an interface, so 64-bit
// ids survive the round trip and can be rebound to the exact integer type later.
type JSONCodec struct{}

func (JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Decode(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func (JSONCodec) Type() protocol.CodecType {
	return protocol.CodecTypeJSON
}
