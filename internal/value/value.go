// Package value defines the runtime value model shared by the resolver,
// the step registry and the executors. All configuration-carried data is
// a cty.Value; typed objects are capsule values wrapping registered Go
// structs.
package value

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Absent is the single "no value" sentinel. It is distinct from a typed
// null: a null is data carried by configuration, Absent means resolution
// terminated without producing anything.
var Absent = cty.NilVal

// IsAbsent reports whether v is the absence sentinel or a null.
func IsAbsent(v cty.Value) bool {
	return v == cty.NilVal || v.IsNull()
}

// IsEmpty reports whether v is absent, an empty string, or an empty
// collection. Used by the executeIfEmpty short-circuit.
func IsEmpty(v cty.Value) bool {
	if IsAbsent(v) {
		return true
	}
	if !v.IsKnown() {
		return true
	}
	t := v.Type()
	switch {
	case t == cty.String:
		return v.AsString() == ""
	case t.IsListType() || t.IsSetType() || t.IsMapType() || t.IsTupleType():
		return v.LengthInt() == 0
	case t.IsObjectType():
		return len(t.AttributeTypes()) == 0
	}
	return false
}

// IsScalar reports whether v holds a primitive (string, number or bool).
func IsScalar(v cty.Value) bool {
	if IsAbsent(v) {
		return false
	}
	return v.Type().IsPrimitiveType()
}

// capsuleTypes caches one capsule type per registered class name so that
// two values of the same class share a cty type identity.
var (
	capsuleMu    sync.Mutex
	capsuleTypes = map[string]cty.Type{}
)

// CapsuleType returns the capsule type for a class name, creating it on
// first use. goType must be the struct type (not a pointer).
func CapsuleType(className string, goType reflect.Type) cty.Type {
	capsuleMu.Lock()
	defer capsuleMu.Unlock()
	if t, ok := capsuleTypes[className]; ok {
		return t
	}
	t := cty.Capsule(className, goType)
	capsuleTypes[className] = t
	return t
}

// Path descends through v one dotted segment at a time. Maps and objects
// are looked up by key; capsule values are looked up by struct field. A
// single level of optionality is unwrapped per segment: a null or absent
// intermediate (or nil pointer field) terminates the walk with Absent.
func Path(v cty.Value, path string) cty.Value {
	if path == "" {
		return v
	}
	for _, seg := range strings.Split(path, ".") {
		if IsAbsent(v) {
			return Absent
		}
		v = attr(v, seg)
	}
	return v
}

// attr resolves one path segment against a single value.
func attr(v cty.Value, name string) cty.Value {
	t := v.Type()
	switch {
	case t.IsObjectType():
		if t.HasAttribute(name) {
			return v.GetAttr(name)
		}
		return Absent
	case t.IsMapType():
		idx := cty.StringVal(name)
		if v.HasIndex(idx).True() {
			return v.Index(idx)
		}
		return Absent
	case t.IsCapsuleType():
		return capsuleField(v, name)
	}
	return Absent
}

// capsuleField reads a struct field out of a capsule value by cty tag,
// exact name, or exported-case name. Pointer fields are dereferenced
// once; nil pointers terminate with Absent.
func capsuleField(v cty.Value, name string) cty.Value {
	rv := reflect.ValueOf(v.EncapsulatedValue())
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return Absent
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return Absent
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		tag := f.Tag.Get("cty")
		if tag == name || f.Name == name || f.Name == exportedName(name) {
			fv := rv.Field(i)
			for fv.Kind() == reflect.Pointer {
				if fv.IsNil() {
					return Absent
				}
				fv = fv.Elem()
			}
			return FromNative(fv.Interface())
		}
	}
	return Absent
}

func exportedName(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// FromNative converts an arbitrary Go value into a cty.Value. Structured
// Go values fall back to a JSON bridge so that plain maps and slices of
// any shape round-trip into object and tuple values.
func FromNative(in any) cty.Value {
	switch tv := in.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType)
	case cty.Value:
		return tv
	}
	if t, err := gocty.ImpliedType(in); err == nil {
		if v, err := gocty.ToCtyValue(in, t); err == nil {
			return v
		}
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return Absent
	}
	t, err := ctyjson.ImpliedType(raw)
	if err != nil {
		return Absent
	}
	v, err := ctyjson.Unmarshal(raw, t)
	if err != nil {
		return Absent
	}
	return v
}

// ToNative converts a cty.Value into plain Go data: primitives, []any
// and map[string]any. Capsule values surface their wrapped struct.
func ToNative(v cty.Value) any {
	if IsAbsent(v) {
		return nil
	}
	t := v.Type()
	switch {
	case t == cty.String:
		return v.AsString()
	case t == cty.Bool:
		return v.True()
	case t == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			i, _ := bf.Int64()
			return i
		}
		f, _ := bf.Float64()
		return f
	case t.IsCapsuleType():
		return v.EncapsulatedValue()
	case t.IsListType() || t.IsSetType() || t.IsTupleType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			out = append(out, ToNative(ev))
		}
		return out
	case t.IsMapType() || t.IsObjectType():
		out := make(map[string]any, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			out[k.AsString()] = ToNative(ev)
		}
		return out
	}
	return nil
}

// Stringify renders a scalar value for embedded concatenation. Non-scalar
// values report an error so the caller can fall back to the literal text.
func Stringify(v cty.Value) (string, error) {
	if IsAbsent(v) {
		return "", nil
	}
	if !IsScalar(v) {
		return "", fmt.Errorf("cannot render %s as text", v.Type().FriendlyName())
	}
	s, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", err
	}
	return s.AsString(), nil
}
