package codec

import (
	"fmt"
	"io"

	"light-rpc/internal/errs"
	"light-rpc/message"
	"light-rpc/protocol"
)

// EncodeMessage serializes msg.Data with the codec named by msg.Codec and
// writes the resulting frame to w. A message without data (a heartbeat)
// produces an empty body. Raw []byte data is written as is, which keeps
// frames of unknown codecs forwardable.
func EncodeMessage(w io.Writer, msg *message.Message) error {
	var body []byte
	switch data := msg.Data.(type) {
	case nil:
	case []byte:
		body = data
	default:
		c, ok := GetCodec(msg.Codec)
		if !ok {
			return fmt.Errorf("light-rpc: no codec registered for type %d", msg.Codec)
		}
		var err error
		if body, err = c.Encode(data); err != nil {
			return fmt.Errorf("light-rpc: encode %s body: %w", msg.MessageType, err)
		}
	}

	return protocol.Encode(w, &protocol.Header{
		CodecType: msg.Codec,
		MsgType:   msg.MessageType,
		RequestID: msg.RequestID,
	}, body)
}

// DecodeMessage reads one frame from r and deserializes its body.
//
// The target shape is chosen by the message type: a REQUEST body becomes a
// *message.Request, a RESPONSE body a *message.Response. A body written with an
// unknown codec is kept as raw []byte. If the body cannot be parsed the message
// is still returned, with nil Data, together with an error wrapping
// errs.ErrMalformedBody. Any other error comes from the frame layer and is
// fatal to the stream.
func DecodeMessage(r io.Reader) (*message.Message, error) {
	h, body, err := protocol.Decode(r)
	if err != nil {
		return nil, err
	}

	msg := &message.Message{
		RequestID:   h.RequestID,
		MessageType: h.MsgType,
		Codec:       h.CodecType,
	}
	if len(body) == 0 {
		return msg, nil
	}

	c, ok := GetCodec(h.CodecType)
	if !ok {
		msg.Data = body
		return msg, nil
	}

	var target any
	switch h.MsgType {
	case protocol.MsgTypeRequest:
		target = &message.Request{}
	case protocol.MsgTypeResponse:
		target = &message.Response{}
	default:
		msg.Data = body
		return msg, nil
	}
	if err = c.Decode(body, target); err != nil {
		return msg, fmt.Errorf("%w: %s %d: %v", errs.ErrMalformedBody, h.MsgType, h.RequestID, err)
	}
	msg.Data = target
	return msg, nil
}
