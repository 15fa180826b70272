package steps

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/vk/metalus/internal/value"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// fieldArgName maps a struct field to its argument name: the `cty` tag
// when present (a "-" tag opts the field out), otherwise the field name
// with a lower-cased first letter.
func fieldArgName(f reflect.StructField) string {
	if !f.IsExported() {
		return ""
	}
	if tag, ok := f.Tag.Lookup("cty"); ok {
		if tag == "-" {
			return ""
		}
		return tag
	}
	return strings.ToLower(f.Name[:1]) + f.Name[1:]
}

// canAssign reports whether v could be decoded into a field of type ft.
func canAssign(ft reflect.Type, v cty.Value) bool {
	scratch := reflect.New(ft).Elem()
	return setField(scratch, v) == nil
}

// setField decodes one cty value into a struct field. It handles capsule
// unwrapping, nested structs, pointers, slices and maps itself, and
// leans on gocty for the primitive conversions.
func setField(fv reflect.Value, v cty.Value) error {
	if value.IsAbsent(v) {
		fv.SetZero()
		return nil
	}

	ft := fv.Type()

	// Raw cty.Value fields receive the value untouched.
	if ft == ctyValueType {
		fv.Set(reflect.ValueOf(v))
		return nil
	}

	// Capsule values carry a native struct already; unwrap when the
	// types line up.
	if v.Type().IsCapsuleType() {
		ev := reflect.ValueOf(v.EncapsulatedValue())
		return assignNative(fv, ev)
	}

	switch ft.Kind() {
	case reflect.Pointer:
		p := reflect.New(ft.Elem())
		if err := setField(p.Elem(), v); err != nil {
			return err
		}
		fv.Set(p)
		return nil

	case reflect.Struct:
		return decodeStruct(fv, v)

	case reflect.Slice:
		t := v.Type()
		if !t.IsListType() && !t.IsSetType() && !t.IsTupleType() {
			return fmt.Errorf("cannot decode %s into %s", t.FriendlyName(), ft)
		}
		out := reflect.MakeSlice(ft, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			elem := reflect.New(ft.Elem()).Elem()
			if err := setField(elem, ev); err != nil {
				return err
			}
			out = reflect.Append(out, elem)
		}
		fv.Set(out)
		return nil

	case reflect.Map:
		t := v.Type()
		if ft.Key().Kind() != reflect.String || (!t.IsMapType() && !t.IsObjectType()) {
			return fmt.Errorf("cannot decode %s into %s", t.FriendlyName(), ft)
		}
		out := reflect.MakeMapWithSize(ft, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			elem := reflect.New(ft.Elem()).Elem()
			if err := setField(elem, ev); err != nil {
				return err
			}
			out.SetMapIndex(reflect.ValueOf(k.AsString()), elem)
		}
		fv.Set(out)
		return nil

	case reflect.Interface:
		if ft.NumMethod() == 0 {
			if native := value.ToNative(v); native != nil {
				fv.Set(reflect.ValueOf(native))
			} else {
				fv.SetZero()
			}
			return nil
		}
		return fmt.Errorf("cannot decode into non-empty interface %s", ft)
	}

	target := reflect.New(ft)
	if err := gocty.FromCtyValue(v, target.Interface()); err != nil {
		return err
	}
	fv.Set(target.Elem())
	return nil
}

// decodeStruct fills a struct from an object or map value field by
// field. Fields absent from the value keep their current contents, which
// is how registered defaults survive.
func decodeStruct(fv reflect.Value, v cty.Value) error {
	t := v.Type()
	if !t.IsObjectType() && !t.IsMapType() {
		return fmt.Errorf("cannot decode %s into struct %s", t.FriendlyName(), fv.Type())
	}
	rt := fv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		name := fieldArgName(f)
		if name == "" {
			continue
		}
		av := value.Path(v, name)
		if value.IsAbsent(av) {
			continue
		}
		if err := setField(fv.Field(i), av); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}
	return nil
}

// assignNative places an already-native value (from a capsule) into a
// field, adjusting for one level of pointer indirection either way.
func assignNative(fv reflect.Value, ev reflect.Value) error {
	ft := fv.Type()
	if ev.Type().AssignableTo(ft) {
		fv.Set(ev)
		return nil
	}
	if ev.Kind() == reflect.Pointer && ev.Elem().Type().AssignableTo(ft) {
		fv.Set(ev.Elem())
		return nil
	}
	if ft.Kind() == reflect.Pointer && ev.Type().AssignableTo(ft.Elem()) {
		p := reflect.New(ft.Elem())
		p.Elem().Set(ev)
		fv.Set(p)
		return nil
	}
	return fmt.Errorf("cannot assign %s to %s", ev.Type(), ft)
}
