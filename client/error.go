package client

import (
	"fmt"

	"light-rpc/internal/errs"
)

// RemoteError is a call that reached the server and failed there.
type RemoteError struct {
	Service string
	Method  string
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("light-rpc: %s.%s failed with code %d: %s", e.Service, e.Method, e.Code, e.Message)
}

// Is makes errors.Is(err, errs.ErrRemote) hold for every RemoteError.
func (e *RemoteError) Is(target error) bool {
	return target == errs.ErrRemote
}
