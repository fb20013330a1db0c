package server

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"light-rpc/codec"
	"light-rpc/internal/errs"
	"light-rpc/message"
)

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

type methodType struct {
	method       reflect.Method
	paramTypes   []reflect.Type // without receiver and context
	withContext  bool
	returnsValue bool
	returnsError bool
}

// Service is a published implementation together with its dispatch table,
// which is built once at publish time and keyed by method signature.
type Service struct {
	name    string
	rcvr    reflect.Value
	typ     reflect.Type
	methods map[string]*methodType // "GetUser(string)" → method
}

// NewService scans the exported methods of rcvr. A method is callable if it
// takes an optional leading context.Context followed by any number of
// parameters, and returns nothing, a value, an error, or a value and an error.
func NewService(name string, rcvr any) (*Service, error) {
	if rcvr == nil {
		return nil, errs.ErrInvalidService
	}
	val := reflect.ValueOf(rcvr)
	if val.Kind() == reflect.Ptr && val.IsNil() {
		return nil, errs.ErrInvalidService
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty service name", errs.ErrInvalidService)
	}
	svc := &Service{
		name:    name,
		rcvr:    val,
		typ:     val.Type(),
		methods: make(map[string]*methodType),
	}
	svc.registerMethods()
	return svc, nil
}

func (s *Service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)
		mType := method.Type
		if mType.IsVariadic() || mType.NumOut() > 2 {
			continue
		}
		mt := &methodType{method: method}
		// In(0) is the receiver
		first := 1
		if mType.NumIn() > 1 && mType.In(1) == contextType {
			mt.withContext = true
			first = 2
		}
		for j := first; j < mType.NumIn(); j++ {
			mt.paramTypes = append(mt.paramTypes, mType.In(j))
		}
		switch mType.NumOut() {
		case 1:
			if mType.Out(0) == errorType {
				mt.returnsError = true
			} else {
				mt.returnsValue = true
			}
		case 2:
			if mType.Out(1) != errorType {
				continue
			}
			mt.returnsValue, mt.returnsError = true, true
		}
		s.methods[mt.signature()] = mt
	}
}

func (mt *methodType) signature() string {
	ids := make([]string, len(mt.paramTypes))
	for i, t := range mt.paramTypes {
		ids[i] = message.TypeID(t)
	}
	return message.Signature(mt.method.Name, ids)
}

func (s *Service) Name() string {
	return s.name
}

// Methods lists the signatures this service can dispatch, sorted.
func (s *Service) Methods() []string {
	res := make([]string, 0, len(s.methods))
	for sig := range s.methods {
		res = append(res, sig)
	}
	sort.Strings(res)
	return res
}

func (s *Service) lookup(methodName string, paramTypes []string) (*methodType, error) {
	sig := message.Signature(methodName, paramTypes)
	mt, ok := s.methods[sig]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", errs.ErrMethodNotFound, s.name, sig)
	}
	return mt, nil
}

// bind converts decoded parameters to the declared Go types.
func (mt *methodType) bind(c codec.Codec, params []any) ([]reflect.Value, error) {
	if len(params) != len(mt.paramTypes) {
		return nil, fmt.Errorf("%w: %s expects %d arguments, got %d",
			errs.ErrArgumentMismatch, mt.method.Name, len(mt.paramTypes), len(params))
	}
	args := make([]reflect.Value, len(params))
	for i, p := range params {
		pt := mt.paramTypes[i]
		if p == nil {
			args[i] = reflect.Zero(pt)
			continue
		}
		if pt.Kind() == reflect.Interface {
			p = plainNumbers(p)
		}
		if v := reflect.ValueOf(p); v.Type().AssignableTo(pt) {
			args[i] = v
			continue
		}
		ptr := reflect.New(pt)
		if err := codec.Convert(c, p, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("%w: argument %d of %s as %s: %v",
				errs.ErrArgumentMismatch, i, mt.method.Name, pt, err)
		}
		args[i] = ptr.Elem()
	}
	return args, nil
}

// plainNumbers replaces the json.Number values the codec leaves in untyped
// data with int64 when the number is integral and float64 otherwise, so an
// interface parameter sees the value the caller sent.
func plainNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		for k, e := range val {
			val[k] = plainNumbers(e)
		}
	case []any:
		for i, e := range val {
			val[i] = plainNumbers(e)
		}
	}
	return v
}

// call invokes the method. A panic inside the implementation is turned into
// an error so it only fails this request.
func (s *Service) call(ctx context.Context, mt *methodType, args []reflect.Value) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s.%s panicked: %v", s.name, mt.method.Name, r)
		}
	}()

	in := make([]reflect.Value, 0, len(args)+2)
	in = append(in, s.rcvr)
	if mt.withContext {
		in = append(in, reflect.ValueOf(ctx))
	}
	in = append(in, args...)
	out := mt.method.Func.Call(in)

	if mt.returnsError {
		if errVal := out[len(out)-1]; !errVal.IsNil() {
			return nil, errVal.Interface().(error)
		}
	}
	if mt.returnsValue {
		return out[0].Interface(), nil
	}
	return nil, nil
}
