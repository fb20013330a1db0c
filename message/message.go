// Package message defines the data exchanged between client and server.
//
// Message is the envelope for every frame. Its Data is a *Request for
// REQUEST frames, a *Response for RESPONSE frames and nil for heartbeats.
package message

import "light-rpc/protocol"

// CodeSuccess is the only Response code that means success.
const CodeSuccess = 200

// CodeFailure is used for every failure the server captures into a response.
const CodeFailure = 500

// Message is the unit exchanged on the wire.
type Message struct {
	RequestID   uint64
	MessageType protocol.MsgType
	Codec       protocol.CodecType
	Compress    byte // reserved, always zero and not part of the frame header
	Data        any  // *Request, *Response, nil for heartbeats or raw []byte for an unknown codec
}

// Request is one remote invocation.
//
// ParamTypes and Parameters always have the same length. A parameter type is
// the Go type identifier in reflect.Type.String() form, e.g. "string" or "*api.User".
type Request struct {
	RequestID     uint64   `json:"requestId"`
	InterfaceName string   `json:"interfaceName"`
	MethodName    string   `json:"methodName"`
	ParamTypes    []string `json:"paramTypes"`
	Parameters    []any    `json:"parameters"`
}

// Response is one invocation result. Any Code other than CodeSuccess,
// including an absent one, is a failure and Data is then empty.
type Response struct {
	RequestID uint64 `json:"requestId"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
}

// Success reports whether the response carries a result.
func (r *Response) Success() bool {
	return r != nil && r.Code == CodeSuccess
}

// NewHeartbeat builds a keep-alive message. Heartbeats carry no correlation id.
func NewHeartbeat(codec protocol.CodecType) *Message {
	return &Message{
		RequestID:   0,
		MessageType: protocol.MsgTypeHeartbeat,
		Codec:       codec,
	}
}

// NewRequestMessage wraps req in a REQUEST message that reuses its id.
func NewRequestMessage(codec protocol.CodecType, req *Request) *Message {
	return &Message{
		RequestID:   req.RequestID,
		MessageType: protocol.MsgTypeRequest,
		Codec:       codec,
		Data:        req,
	}
}

// NewResponseMessage answers reqMsg: same id, same codec, RESPONSE type.
func NewResponseMessage(reqMsg *Message, resp *Response) *Message {
	return &Message{
		RequestID:   reqMsg.RequestID,
		MessageType: protocol.MsgTypeResponse,
		Codec:       reqMsg.Codec,
		Data:        resp,
	}
}
