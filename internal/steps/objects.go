package steps

import (
	"reflect"

	"github.com/vk/metalus/internal/errs"
	"github.com/vk/metalus/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// NewObject constructs an instance of a registered class from a field
// map and wraps it as a capsule value. Fields are matched to struct
// fields by name; pointer, slice and map fields are optional and keep
// their zero value when missing, any other missing field is a mapping
// error.
func (r *Registry) NewObject(className string, fields map[string]cty.Value) (cty.Value, error) {
	rt, ok := r.types[className]
	if !ok {
		return value.Absent, errs.NewConfigError("object class %q is not registered", className)
	}

	ptr := reflect.New(rt)
	rv := ptr.Elem()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		name := fieldArgName(f)
		if name == "" {
			continue
		}
		v, present := fields[name]
		if !present || value.IsAbsent(v) {
			if f.Type.Kind() == reflect.Pointer || f.Type.Kind() == reflect.Slice || f.Type.Kind() == reflect.Map {
				continue
			}
			return value.Absent, errs.NewMappingError(name, "required field of %s is missing", className)
		}
		if err := r.setObjectField(rv.Field(i), v); err != nil {
			return value.Absent, &errs.MappingError{Parameter: name, Message: "cannot construct " + className, Cause: err}
		}
	}

	return cty.CapsuleVal(value.CapsuleType(className, rt), ptr.Interface()), nil
}

// setObjectField decodes one constructor field, recursing through the
// shared field decoder.
func (r *Registry) setObjectField(fv reflect.Value, v cty.Value) error {
	return setField(fv, v)
}
