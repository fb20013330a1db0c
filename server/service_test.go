package server

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"light-rpc/internal/errs"
)

type User struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

type UserService struct{}

func (u *UserService) GetUser(name string) (*User, error) {
	if name == "" {
		return nil, errors.New("empty name")
	}
	return &User{Name: name, Age: 18}, nil
}

func (u *UserService) Add(a, b int) int {
	return a + b
}

func (u *UserService) Rename(user User, name string) User {
	user.Name = name
	return user
}

func (u *UserService) Fail(ctx context.Context, msg string) error {
	return errors.New(msg)
}

func (u *UserService) Echo(v any) any {
	return v
}

func (u *UserService) Panic() {
	panic("something went wrong")
}

func (u *UserService) Sleep(ctx context.Context, ms int) string {
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return "awake"
	case <-ctx.Done():
		return "canceled"
	}
}

// not callable: too many results
func (u *UserService) Triple() (int, int, error) {
	return 0, 0, nil
}

// not callable: variadic
func (u *UserService) Sum(nums ...int) int {
	return len(nums)
}

func TestNewService(t *testing.T) {
	var nilSvc *UserService
	testCases := []struct {
		name        string
		serviceName string
		rcvr        any
		wantErr     error
		wantMethods []string
	}{
		{name: "nil", serviceName: "UserService", rcvr: nil, wantErr: errs.ErrInvalidService},
		{name: "typed nil", serviceName: "UserService", rcvr: nilSvc, wantErr: errs.ErrInvalidService},
		{name: "empty name", serviceName: "", rcvr: &UserService{}, wantErr: errs.ErrInvalidService},
		{
			name:        "user service",
			serviceName: "UserService",
			rcvr:        &UserService{},
			wantMethods: []string{
				"Add(int,int)",
				"Echo(interface {})",
				"Fail(string)",
				"GetUser(string)",
				"Panic()",
				"Rename(server.User,string)",
				"Sleep(int)",
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc, err := NewService(tc.serviceName, tc.rcvr)
			assert.ErrorIs(t, err, tc.wantErr)
			if err != nil {
				return
			}
			assert.Equal(t, tc.serviceName, svc.Name())
			assert.Equal(t, tc.wantMethods, svc.Methods())
		})
	}
}

func TestServiceCall(t *testing.T) {
	svc, err := NewService("UserService", &UserService{})
	require.NoError(t, err)
	c := codecFrom(context.Background())

	testCases := []struct {
		name       string
		method     string
		paramTypes []string
		params     []any
		want       any
		wantErr    error
		wantMsg    string
	}{
		{
			name:       "value and nil error",
			method:     "GetUser",
			paramTypes: []string{"string"},
			params:     []any{"Henry"},
			want:       &User{Name: "Henry", Age: 18},
		},
		{
			name:       "value only",
			method:     "Add",
			paramTypes: []string{"int", "int"},
			params:     []any{float64(1), float64(2)},
			want:       3,
		},
		{
			name:       "struct argument from generic map",
			method:     "Rename",
			paramTypes: []string{"server.User", "string"},
			params:     []any{map[string]any{"name": "Tom", "age": 20}, "Jerry"},
			want:       User{Name: "Jerry", Age: 20},
		},
		{
			name:       "untyped integer",
			method:     "Echo",
			paramTypes: []string{"interface {}"},
			params:     []any{json.Number("42")},
			want:       int64(42),
		},
		{
			name:       "untyped float",
			method:     "Echo",
			paramTypes: []string{"interface {}"},
			params:     []any{json.Number("1.5")},
			want:       1.5,
		},
		{
			name:       "untyped nested numbers",
			method:     "Echo",
			paramTypes: []string{"interface {}"},
			params: []any{map[string]any{
				"age":    json.Number("20"),
				"scores": []any{json.Number("1"), json.Number("2.5")},
			}},
			want: map[string]any{"age": int64(20), "scores": []any{int64(1), 2.5}},
		},
		{
			name:       "nil argument is zero value",
			method:     "GetUser",
			paramTypes: []string{"string"},
			params:     []any{nil},
			wantMsg:    "empty name",
		},
		{
			name:       "error result",
			method:     "Fail",
			paramTypes: []string{"string"},
			params:     []any{"boom"},
			wantMsg:    "boom",
		},
		{
			name:    "panic is captured",
			method:  "Panic",
			wantMsg: "UserService.Panic panicked: something went wrong",
		},
		{
			name:       "unknown method",
			method:     "Delete",
			paramTypes: []string{"string"},
			params:     []any{"Henry"},
			wantErr:    errs.ErrMethodNotFound,
		},
		{
			name:       "overload by types",
			method:     "GetUser",
			paramTypes: []string{"int"},
			params:     []any{1},
			wantErr:    errs.ErrMethodNotFound,
		},
		{
			name:    "uncallable signature",
			method:  "Triple",
			wantErr: errs.ErrMethodNotFound,
		},
		{
			name:       "argument of the wrong shape",
			method:     "GetUser",
			paramTypes: []string{"string"},
			params:     []any{map[string]any{"a": 1}},
			wantErr:    errs.ErrArgumentMismatch,
		},
		{
			name:       "argument count",
			method:     "Add",
			paramTypes: []string{"int", "int"},
			params:     []any{1},
			wantErr:    errs.ErrArgumentMismatch,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mt, err := svc.lookup(tc.method, tc.paramTypes)
			var args []reflect.Value
			if err == nil {
				args, err = mt.bind(c, tc.params)
			}
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)

			got, err := svc.call(context.Background(), mt, args)
			if tc.wantMsg != "" {
				require.Error(t, err)
				assert.Equal(t, tc.wantMsg, err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLocalRegistry(t *testing.T) {
	r := NewLocalRegistry()
	_, ok := r.Get("UserService")
	assert.False(t, ok)

	require.NoError(t, r.Register("UserService", &UserService{}))
	require.NoError(t, r.Register("Calculator", &UserService{}))
	assert.ErrorIs(t, r.Register("Broken", nil), errs.ErrInvalidService)

	first, ok := r.Get("UserService")
	require.True(t, ok)
	// publishing again replaces the binding
	require.NoError(t, r.Register("UserService", &UserService{}))
	second, ok := r.Get("UserService")
	require.True(t, ok)
	assert.NotSame(t, first, second)

	assert.Equal(t, []string{"Calculator", "UserService"}, r.Names())
}
