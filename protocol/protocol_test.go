package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"light-rpc/internal/errs"
)

func TestEncodeDecode(t *testing.T) {
	header := Header{
		CodecType: CodecTypeJSON,
		MsgType:   MsgTypeRequest,
		RequestID: 0x1122334455667788,
	}
	body := []byte("hello world")

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &header, body))
	assert.Equal(t, HeaderSize+len(body), buf.Len())

	decodedHeader, decodedBody, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, header.CodecType, decodedHeader.CodecType)
	assert.Equal(t, header.MsgType, decodedHeader.MsgType)
	assert.Equal(t, header.RequestID, decodedHeader.RequestID)
	assert.Equal(t, uint32(len(body)), decodedHeader.BodyLen)
	assert.Equal(t, body, decodedBody)
}

func TestEncodeLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &Header{
		CodecType: CodecTypeJSON,
		MsgType:   MsgTypeResponse,
		RequestID: 42,
	}, []byte("abc")))

	frame := buf.Bytes()
	assert.Equal(t, []byte{0xCA, 0xFE, 0xBA, 0xBE}, frame[0:4])
	assert.Equal(t, Version, frame[4])
	assert.Equal(t, byte(CodecTypeJSON), frame[5])
	assert.Equal(t, byte(MsgTypeResponse), frame[6])
	assert.Equal(t, uint64(42), binary.BigEndian.Uint64(frame[7:15]))
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(frame[15:19]))
	assert.Equal(t, []byte("abc"), frame[19:])
}

func TestDecodeEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &Header{CodecType: CodecTypeJSON, MsgType: MsgTypeHeartbeat}, nil))
	assert.Equal(t, HeaderSize, buf.Len())

	h, body, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgTypeHeartbeat, h.MsgType)
	assert.Equal(t, uint64(0), h.RequestID)
	assert.Equal(t, uint32(0), h.BodyLen)
	assert.Empty(t, body)
}

func TestDecodeFailures(t *testing.T) {
	valid := func() []byte {
		var buf bytes.Buffer
		_ = Encode(&buf, &Header{CodecType: CodecTypeJSON, MsgType: MsgTypeRequest, RequestID: 7}, []byte("hello world"))
		return buf.Bytes()
	}
	testCases := []struct {
		name    string
		frame   func() []byte
		wantErr error
	}{
		{
			name: "invalid magic",
			frame: func() []byte {
				f := valid()
				f[0] = 0x00
				return f
			},
			wantErr: errs.ErrInvalidMagic,
		},
		{
			name: "unsupported version",
			frame: func() []byte {
				f := valid()
				f[4] = 0xFF
				return f
			},
			wantErr: errs.ErrUnsupportedVersion,
		},
		{
			name: "oversized frame",
			frame: func() []byte {
				f := valid()
				binary.BigEndian.PutUint32(f[LengthOffset:HeaderSize], uint32(MaxFrameLength))
				return f
			},
			wantErr: errs.ErrFrameTooLarge,
		},
		{
			name: "truncated body",
			frame: func() []byte {
				f := valid()
				return f[:len(f)-3]
			},
			wantErr: io.ErrUnexpectedEOF,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h, body, err := Decode(bytes.NewReader(tc.frame()))
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Nil(t, h)
			assert.Nil(t, body)
		})
	}
}

func TestIsProtocolError(t *testing.T) {
	assert.True(t, IsProtocolError(errs.ErrInvalidMagic))
	assert.True(t, IsProtocolError(errs.ErrFrameTooLarge))
	assert.False(t, IsProtocolError(io.EOF))
}

func TestEncodeRejectsOversizedBody(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, &Header{CodecType: CodecTypeJSON, MsgType: MsgTypeRequest}, make([]byte, MaxFrameLength))
	assert.ErrorIs(t, err, errs.ErrFrameTooLarge)
	assert.Zero(t, buf.Len())
}

func TestDecodeOneByteAtATime(t *testing.T) {
	var buf bytes.Buffer
	bodies := [][]byte{[]byte("first"), nil, []byte("third frame body")}
	for i, body := range bodies {
		require.NoError(t, Encode(&buf, &Header{CodecType: CodecTypeJSON, MsgType: MsgTypeRequest, RequestID: uint64(i + 1)}, body))
	}

	r := iotest.OneByteReader(&buf)
	for i, want := range bodies {
		h, body, err := Decode(r)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), h.RequestID)
		assert.Equal(t, len(want), len(body))
		assert.True(t, bytes.Equal(want, body))
	}
	_, _, err := Decode(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeLargeBody(t *testing.T) {
	largeBody := make([]byte, 1024*1024)
	for i := range largeBody {
		largeBody[i] = byte(i % 256)
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &Header{CodecType: CodecTypeJSON, MsgType: MsgTypeRequest, RequestID: 999}, largeBody))

	_, decodedBody, err := Decode(&buf)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(largeBody, decodedBody))
}
