package types

import (
	"fmt"
	"reflect"
	"strings"
)

// HasWritableProperty reports whether t (a struct, pointer to struct, or
// string-keyed map type) has a property that can be assigned. Struct field
// matching is case-insensitive on exported fields.
func HasWritableProperty(t reflect.Type, name string) bool {
	_, ok := writableField(t, name)
	return ok
}

// PropertyType returns the declared type of the named property of t, when
// discoverable. For string-keyed maps it is the map's element type.
func PropertyType(t reflect.Type, name string) (reflect.Type, bool) {
	return writableField(t, name)
}

func writableField(t reflect.Type, name string) (reflect.Type, bool) {
	if t == nil {
		return nil, false
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Map:
		if t.Key().Kind() == reflect.String {
			return t.Elem(), true
		}
	case reflect.Struct:
		if f, ok := fieldByNameFold(t, name); ok {
			return f.Type, true
		}
	}
	return nil, false
}

func fieldByNameFold(t reflect.Type, name string) (reflect.StructField, bool) {
	return t.FieldByNameFunc(func(fn string) bool {
		return fn != "" && fn[0] >= 'A' && fn[0] <= 'Z' && strings.EqualFold(fn, name)
	})
}

// GetProperty walks a dotted property path against v: map keys,
// case-insensitive struct fields, and pointers are traversed. A nil value
// anywhere along the path yields nil without error; a path segment that does
// not exist is an error.
func GetProperty(v any, path string) (any, error) {
	cur := reflect.ValueOf(v)
	for _, seg := range strings.Split(path, ".") {
		for cur.Kind() == reflect.Pointer || cur.Kind() == reflect.Interface {
			if cur.IsNil() {
				return nil, nil
			}
			cur = cur.Elem()
		}
		if !cur.IsValid() {
			return nil, nil
		}
		switch cur.Kind() {
		case reflect.Map:
			if cur.Type().Key().Kind() != reflect.String {
				return nil, fmt.Errorf("property %q: map key type %s is not string", path, cur.Type().Key())
			}
			mv := cur.MapIndex(reflect.ValueOf(seg))
			if !mv.IsValid() {
				return nil, fmt.Errorf("property %q: key %q not present", path, seg)
			}
			cur = mv
		case reflect.Struct:
			f, ok := fieldByNameFold(cur.Type(), seg)
			if !ok {
				return nil, fmt.Errorf("property %q: no field %q on %s", path, seg, cur.Type())
			}
			cur = cur.FieldByIndex(f.Index)
		default:
			return nil, fmt.Errorf("property %q: cannot descend into %s at %q", path, cur.Kind(), seg)
		}
	}
	if !cur.IsValid() {
		return nil, nil
	}
	return cur.Interface(), nil
}

// SetProperty assigns value to the dotted property path of target. The
// target must be a pointer to a struct or a string-keyed map; intermediate
// segments are traversed like GetProperty. Numeric values are converted to
// the destination field type when assignable by conversion.
func SetProperty(target any, path string, value any) error {
	cur := reflect.ValueOf(target)
	segs := strings.Split(path, ".")
	for i, seg := range segs {
		last := i == len(segs)-1
		for cur.Kind() == reflect.Pointer || cur.Kind() == reflect.Interface {
			if cur.IsNil() {
				return fmt.Errorf("property %q: nil at %q", path, seg)
			}
			cur = cur.Elem()
		}
		switch cur.Kind() {
		case reflect.Map:
			if !last {
				mv := cur.MapIndex(reflect.ValueOf(seg))
				if !mv.IsValid() {
					return fmt.Errorf("property %q: key %q not present", path, seg)
				}
				cur = mv
				continue
			}
			cur.SetMapIndex(reflect.ValueOf(seg), reflect.ValueOf(value))
			return nil
		case reflect.Struct:
			f, ok := fieldByNameFold(cur.Type(), seg)
			if !ok {
				return fmt.Errorf("property %q: no field %q on %s", path, seg, cur.Type())
			}
			fv := cur.FieldByIndex(f.Index)
			if !last {
				cur = fv
				continue
			}
			if !fv.CanSet() {
				return fmt.Errorf("property %q: field %q is not settable", path, seg)
			}
			return assign(fv, value, path)
		default:
			return fmt.Errorf("property %q: cannot descend into %s at %q", path, cur.Kind(), seg)
		}
	}
	return nil
}

func assign(dst reflect.Value, value any, path string) error {
	if value == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(dst.Type()) {
		dst.Set(v)
		return nil
	}
	if v.Type().ConvertibleTo(dst.Type()) {
		dst.Set(v.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("property %q: cannot assign %s to %s", path, v.Type(), dst.Type())
}
