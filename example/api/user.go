// Package api is shared by the example server and client. Parameter type
// identifiers are Go type names, so both sides must use these exact types.
package api

import "context"

const ServiceName = "UserService"

type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Age  int    `json:"age"`
}

// UserServiceClient is the typed stub filled by client.Proxy.InitService.
type UserServiceClient struct {
	GetUser  func(ctx context.Context, name string) (*User, error)
	SaveUser func(ctx context.Context, user User) (int64, error)
	Ping     func(ctx context.Context) error
}

func (u *UserServiceClient) ServiceName() string {
	return ServiceName
}
