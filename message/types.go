package message

import (
	"reflect"
	"strings"
)

// TypeID is the parameter type identifier carried in Request.ParamTypes.
func TypeID(t reflect.Type) string {
	return t.String()
}

// Signature is the dispatch key of a method: "Name(type1,type2)".
func Signature(methodName string, paramTypes []string) string {
	return methodName + "(" + strings.Join(paramTypes, ",") + ")"
}
