package message

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"light-rpc/protocol"
)

func TestResponseSuccess(t *testing.T) {
	testCases := []struct {
		name string
		resp *Response
		want bool
	}{
		{name: "success", resp: &Response{Code: CodeSuccess}, want: true},
		{name: "failure", resp: &Response{Code: CodeFailure}},
		{name: "absent code", resp: &Response{}},
		{name: "nil", resp: nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.resp.Success())
		})
	}
}

func TestNewResponseMessage(t *testing.T) {
	req := &Request{RequestID: 77, InterfaceName: "UserService", MethodName: "GetUser"}
	reqMsg := NewRequestMessage(protocol.CodecTypeJSON, req)
	assert.Equal(t, uint64(77), reqMsg.RequestID)
	assert.Equal(t, protocol.MsgTypeRequest, reqMsg.MessageType)

	respMsg := NewResponseMessage(reqMsg, &Response{RequestID: 77, Code: CodeSuccess})
	assert.Equal(t, reqMsg.RequestID, respMsg.RequestID)
	assert.Equal(t, reqMsg.Codec, respMsg.Codec)
	assert.Equal(t, protocol.MsgTypeResponse, respMsg.MessageType)
	assert.Zero(t, respMsg.Compress)
}

func TestNewHeartbeat(t *testing.T) {
	hb := NewHeartbeat(protocol.CodecTypeJSON)
	assert.Equal(t, uint64(0), hb.RequestID)
	assert.Equal(t, protocol.MsgTypeHeartbeat, hb.MessageType)
	assert.Nil(t, hb.Data)
}

func TestSignature(t *testing.T) {
	assert.Equal(t, "GetUser(string)", Signature("GetUser", []string{"string"}))
	assert.Equal(t, "Ping()", Signature("Ping", nil))
	assert.Equal(t, "Add(int,int)", Signature("Add", []string{"int", "int"}))
}
