// Package errs holds the sentinel errors shared by the light-rpc packages.
// Callers match them with errors.Is; producers wrap them with context.
package errs

import "errors"

// Protocol errors are fatal to the connection they occur on.
var (
	ErrInvalidMagic       = errors.New("light-rpc: invalid magic number")
	ErrUnsupportedVersion = errors.New("light-rpc: unsupported protocol version")
	ErrFrameTooLarge      = errors.New("light-rpc: frame exceeds maximum length")
)

// Transport errors.
var (
	ErrClientClosed       = errors.New("light-rpc: client is closed")
	ErrServerClosed       = errors.New("light-rpc: server closed")
	ErrDuplicateRequestID = errors.New("light-rpc: duplicate request id")
)

// Application errors, captured per request into a failed response.
var (
	ErrServiceNotFound  = errors.New("light-rpc: service not found")
	ErrMethodNotFound   = errors.New("light-rpc: method not found")
	ErrArgumentMismatch = errors.New("light-rpc: argument mismatch")
	ErrInvalidService   = errors.New("light-rpc: service must be a non-nil pointer")
	ErrRemote           = errors.New("light-rpc: remote call failed")
)

// Discovery errors.
var (
	ErrNoEndpoint      = errors.New("light-rpc: no endpoint available")
	ErrRegisterFailed  = errors.New("light-rpc: service registration failed")
	ErrInvalidEndpoint = errors.New("light-rpc: invalid endpoint")
)

// ErrMalformedBody reports a frame whose body the codec could not parse.
// Framing is intact, so the connection survives it.
var ErrMalformedBody = errors.New("light-rpc: malformed message body")
