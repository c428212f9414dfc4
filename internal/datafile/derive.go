package datafile

import "reflect"

// Derive builds a new record from base and override, field by field.
//
// Boolean fields always take the override's value, false included. Every other
// field takes the override's value only when it is truthy (non-empty string,
// map, slice or array, non-nil pointer or interface, non-zero number or
// struct) and keeps the base value otherwise. A non-boolean field therefore
// cannot be reset to its zero value through an override.
//
// T must be a struct; for any other kind the override wins when truthy.
func Derive[T any](base, override T) T {
	baseValue := reflect.ValueOf(&base).Elem()
	overrideValue := reflect.ValueOf(&override).Elem()

	if baseValue.Kind() != reflect.Struct {
		if truthy(overrideValue) {
			return override
		}
		return base
	}

	out := reflect.New(baseValue.Type()).Elem()
	out.Set(baseValue)

	for i := 0; i < out.NumField(); i++ {
		field := out.Type().Field(i)
		if !field.IsExported() {
			continue
		}
		next := overrideValue.Field(i)
		if next.Kind() == reflect.Bool || truthy(next) {
			out.Field(i).Set(next)
		}
	}

	return out.Interface().(T)
}

func truthy(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool()
	case reflect.String, reflect.Map, reflect.Slice, reflect.Array:
		return v.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !v.IsNil()
	case reflect.Invalid:
		return false
	default:
		return !v.IsZero()
	}
}
