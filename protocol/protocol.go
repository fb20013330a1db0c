// Package protocol implements the binary frame protocol of light-rpc.
//
// TCP is a byte stream, so every message is wrapped in a frame with a fixed
// 19-byte header. The body length sits at a fixed offset, which lets the
// receiver read the header first and then exactly bodyLen bytes, no matter
// how the stream was split or merged on the way.
//
// Frame format (big-endian):
//
//	0           4  5  6  7                 15        19
//	┌───────────┬──┬──┬──┬─────────────────┬─────────┬───────────────┐
//	│   magic   │v │ct│mt│    requestId    │ bodyLen │    body ...    │
//	│ CAFEBABE  │01│  │  │     uint64      │ uint32  │ bodyLen bytes  │
//	└───────────┴──┴──┴──┴─────────────────┴─────────┴───────────────┘
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"light-rpc/internal/errs"
)

const (
	Magic        uint32 = 0xCAFEBABE
	Version      byte   = 0x01
	HeaderSize   int    = 19 // 4 (magic) + 1 (version) + 1 (codec) + 1 (msgType) + 8 (requestId) + 4 (bodyLen)
	LengthOffset int    = 15 // bodyLen starts after magic, version, codec, msgType and requestId

	// MaxFrameLength bounds header plus body. Larger frames are a protocol violation.
	MaxFrameLength int = 8 * 1024 * 1024
)

// MsgType distinguishes heartbeat, request and response frames.
type MsgType byte

const (
	MsgTypeHeartbeat MsgType = 0 // keep-alive, requestId is always 0 and the body is empty
	MsgTypeRequest   MsgType = 1 // Client → Server RPC request
	MsgTypeResponse  MsgType = 2 // Server → Client RPC response
)

func (t MsgType) String() string {
	switch t {
	case MsgTypeHeartbeat:
		return "HEARTBEAT"
	case MsgTypeRequest:
		return "REQUEST"
	case MsgTypeResponse:
		return "RESPONSE"
	default:
		return fmt.Sprintf("MsgType(%d)", byte(t))
	}
}

// CodecType tags the serializer that produced the body.
type CodecType byte

const (
	CodecTypeJSON     CodecType = 1
	CodecTypeProtobuf CodecType = 2 // reserved
)

// Header represents the fixed 19-byte frame header.
type Header struct {
	CodecType CodecType
	MsgType   MsgType
	RequestID uint64 // matches a response to its request, 0 for heartbeats
	BodyLen   uint32
}

// Encode writes a complete frame (header + body) to w in a single Write call.
// The caller must hold a write lock if multiple goroutines share the same writer,
// otherwise frames from different requests interleave and corrupt the stream.
func Encode(w io.Writer, h *Header, body []byte) error {
	if HeaderSize+len(body) > MaxFrameLength {
		return fmt.Errorf("%w: %d bytes", errs.ErrFrameTooLarge, HeaderSize+len(body))
	}
	buf := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	buf[4] = Version
	buf[5] = byte(h.CodecType)
	buf[6] = byte(h.MsgType)
	binary.BigEndian.PutUint64(buf[7:15], h.RequestID)
	binary.BigEndian.PutUint32(buf[LengthOffset:HeaderSize], uint32(len(body)))
	copy(buf[HeaderSize:], body)

	_, err := w.Write(buf)
	return err
}

// Decode reads one complete frame from r. It blocks until HeaderSize+bodyLen
// bytes are available, so it is safe on a stream that splits or merges frames.
//
// The header is validated before the body is read: a bad magic number, an
// unknown version or an oversized length fails fast and nothing of the frame
// is returned. Such errors are not recoverable, the caller must close the
// connection instead of trying to resynchronize.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if magic := binary.BigEndian.Uint32(headerBuf[0:4]); magic != Magic {
		return nil, nil, fmt.Errorf("%w: %#08x", errs.ErrInvalidMagic, magic)
	}
	if headerBuf[4] != Version {
		return nil, nil, fmt.Errorf("%w: %d", errs.ErrUnsupportedVersion, headerBuf[4])
	}

	bodyLen := binary.BigEndian.Uint32(headerBuf[LengthOffset:HeaderSize])
	if int64(bodyLen)+int64(HeaderSize) > int64(MaxFrameLength) {
		return nil, nil, fmt.Errorf("%w: body of %d bytes", errs.ErrFrameTooLarge, bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{
		CodecType: CodecType(headerBuf[5]),
		MsgType:   MsgType(headerBuf[6]),
		RequestID: binary.BigEndian.Uint64(headerBuf[7:15]),
		BodyLen:   bodyLen,
	}, body, nil
}

// IsProtocolError reports whether err is a framing violation that must tear
// the connection down.
func IsProtocolError(err error) bool {
	return errors.Is(err, errs.ErrInvalidMagic) ||
		errors.Is(err, errs.ErrUnsupportedVersion) ||
		errors.Is(err, errs.ErrFrameTooLarge)
}
