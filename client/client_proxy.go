package client

import (
	"context"
	"fmt"
	"reflect"

	"light-rpc/codec"
	"light-rpc/internal/errs"
	"light-rpc/message"
)

// Service is a typed client stub: a struct whose exported func fields are
// filled by InitService, named after the remote service they call.
//
//	type UserService struct {
//		GetUser func(ctx context.Context, name string) (*User, error)
//	}
//
//	func (u *UserService) ServiceName() string { return "UserService" }
type Service interface {
	ServiceName() string
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// InitService points every exported func field of srv at a remote call. Each
// field must take a context.Context first and return either an error or a
// value and an error. The remaining parameters become the call arguments and
// their Go types become the parameter type identifiers.
func (p *Proxy) InitService(srv Service) error {
	if srv == nil {
		return errs.ErrInvalidService
	}
	val := reflect.ValueOf(srv)
	if val.Kind() != reflect.Pointer || val.IsNil() || val.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: %T", errs.ErrInvalidService, srv)
	}
	serviceName := srv.ServiceName()
	valElem := val.Elem()
	typElem := valElem.Type()
	for i := 0; i < typElem.NumField(); i++ {
		fieldTyp := typElem.Field(i)
		fieldVal := valElem.Field(i)
		if !fieldVal.CanSet() || fieldTyp.Type.Kind() != reflect.Func {
			continue
		}
		fn, err := p.stub(serviceName, fieldTyp)
		if err != nil {
			return err
		}
		fieldVal.Set(fn)
	}
	return nil
}

func (p *Proxy) stub(serviceName string, field reflect.StructField) (reflect.Value, error) {
	fnTyp := field.Type
	if fnTyp.NumIn() < 1 || fnTyp.In(0) != contextType || fnTyp.IsVariadic() {
		return reflect.Value{}, fmt.Errorf("%w: %s.%s must take a context.Context first",
			errs.ErrInvalidService, serviceName, field.Name)
	}
	if n := fnTyp.NumOut(); n < 1 || n > 2 || fnTyp.Out(n-1) != errorType {
		return reflect.Value{}, fmt.Errorf("%w: %s.%s must return error or (T, error)",
			errs.ErrInvalidService, serviceName, field.Name)
	}

	paramTypes := make([]string, 0, fnTyp.NumIn()-1)
	for j := 1; j < fnTyp.NumIn(); j++ {
		paramTypes = append(paramTypes, message.TypeID(fnTyp.In(j)))
	}
	withValue := fnTyp.NumOut() == 2
	methodName := field.Name

	fn := func(args []reflect.Value) []reflect.Value {
		ctx, _ := args[0].Interface().(context.Context)
		if ctx == nil {
			ctx = context.Background()
		}
		params := make([]any, 0, len(args)-1)
		for _, arg := range args[1:] {
			params = append(params, arg.Interface())
		}

		data, err := p.Call(ctx, serviceName, methodName, paramTypes, params...)
		if !withValue {
			return []reflect.Value{errValue(err)}
		}
		out := reflect.New(fnTyp.Out(0))
		if err == nil && data != nil {
			err = codec.Convert(p.codec, data, out.Interface())
		}
		if err != nil {
			return []reflect.Value{reflect.Zero(fnTyp.Out(0)), errValue(err)}
		}
		return []reflect.Value{out.Elem(), errValue(nil)}
	}
	return reflect.MakeFunc(fnTyp, fn), nil
}

// errValue wraps err as a reflect.Value of type error, nil included.
func errValue(err error) reflect.Value {
	if err == nil {
		return reflect.Zero(errorType)
	}
	return reflect.ValueOf(&err).Elem()
}
