package steps

import (
	"context"
	"fmt"
	"reflect"

	"github.com/vk/metalus/internal/ctxlog"
	"github.com/vk/metalus/internal/errs"
	"github.com/vk/metalus/internal/pipeline"
	"github.com/vk/metalus/internal/value"
)

// Invoke decodes the bound arguments into the overload's input struct
// and calls the step body. Whatever the body returns is normalized into
// a Response. Panics escaping the body are recovered and surfaced as the
// underlying cause, so the executor can classify them as fatal.
func (c *Callable) Invoke(ctx context.Context, pctx *pipeline.Context) (resp *value.Response, err error) {
	logger := ctxlog.FromContext(ctx).With("step", c.Ref)

	defer func() {
		if r := recover(); r != nil {
			if cause, ok := r.(error); ok {
				err = cause
				return
			}
			err = fmt.Errorf("step body panicked: %v", r)
		}
	}()

	fn := reflect.ValueOf(c.overload.Fn)
	inputType := fn.Type().In(2)

	var input reflect.Value
	if c.overload.NewInput != nil {
		in := c.overload.NewInput()
		if err := c.decodeInto(in); err != nil {
			return nil, err
		}
		input = reflect.ValueOf(in)
		if !input.Type().AssignableTo(inputType) {
			return nil, errs.NewConfigError("input type %s does not match handler parameter %s for %s",
				input.Type(), inputType, c.Ref)
		}
	} else {
		input = reflect.Zero(inputType)
	}

	logger.Debug("Calling step body.")
	results := fn.Call([]reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(pctx), input})
	out, errResult := results[0].Interface(), results[1].Interface()
	if errResult != nil {
		return nil, errResult.(error)
	}
	return value.Wrap(out), nil
}

// decodeInto fills the input struct from the bound argument map.
func (c *Callable) decodeInto(in any) error {
	rv := reflect.ValueOf(in)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return errs.NewConfigError("input for %s is not a struct", c.Ref)
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		name := fieldArgName(f)
		if name == "" {
			continue
		}
		v, present := c.args[name]
		if !present {
			continue
		}
		if err := setField(rv.Field(i), v); err != nil {
			return &errs.MappingError{Parameter: name, Message: "cannot project value into step input", Cause: err}
		}
	}
	return nil
}

// ValidateArgTypes checks every bound argument that names a declared
// input field for assignability. It backs the
// validateStepParameterTypes global.
func (c *Callable) ValidateArgTypes() error {
	if c.overload.NewInput == nil {
		return nil
	}
	rt := reflect.TypeOf(c.overload.NewInput())
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt.Kind() != reflect.Struct {
		return nil
	}
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		name := fieldArgName(f)
		if name == "" {
			continue
		}
		v, present := c.args[name]
		if !present || value.IsAbsent(v) {
			continue
		}
		if !canAssign(f.Type, v) {
			return errs.NewMappingError(name, "value of type %s is not assignable to declared parameter type %s",
				v.Type().FriendlyName(), f.Type)
		}
	}
	return nil
}
