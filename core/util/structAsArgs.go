package util

import (
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var (
	bigIntType  = reflect.TypeOf((*big.Int)(nil))
	addressType = reflect.TypeOf(common.Address{})
)

// StructAsArgs converts a struct to a list of ABI arguments from struct fields, in the same order
// as they are defined in the struct.
// it also checks if the fields was required by tag
func StructAsArgs(s interface{}) ([]any, error) {
	v := reflect.Indirect(reflect.ValueOf(s))
	if v.Kind() != reflect.Struct {
		return nil, errors.Errorf("expected a struct, got %s", v.Kind())
	}
	t := v.Type()

	args := make([]any, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		value := v.Field(i)

		// check if the field is required
		if isRequired(field) && value.IsZero() {
			return nil, errors.Errorf("required field '%s' is empty", field.Name)
		}

		arg, ok := abiValue(value)
		if !ok {
			return nil, errors.Errorf("unsupported field type '%s' for field '%s'", field.Type, field.Name)
		}
		args = append(args, arg)
	}

	return args, nil
}

func isRequired(field reflect.StructField) bool {
	for _, rule := range strings.Split(field.Tag.Get("validate"), ",") {
		if rule == "required" {
			return true
		}
	}
	return false
}

// abiValue unwraps named scalar types so the ABI packer sees the base Go type.
func abiValue(v reflect.Value) (any, bool) {
	switch {
	case v.Type() == bigIntType:
		if v.IsNil() {
			return new(big.Int), true
		}
		return v.Interface(), true
	case v.Type() == addressType:
		return v.Interface(), true
	}

	switch v.Kind() {
	case reflect.String:
		return v.String(), true
	case reflect.Bool:
		return v.Bool(), true
	case reflect.Uint8:
		return uint8(v.Uint()), true
	case reflect.Uint16:
		return uint16(v.Uint()), true
	case reflect.Uint32:
		return uint32(v.Uint()), true
	case reflect.Uint64:
		return v.Uint(), true
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Bytes(), true
		}
	}
	return nil, false
}
