// Package steps resolves `Object.function` references to callable step
// bodies and projects configuration values into their typed inputs.
package steps

import (
	"context"
	"fmt"
	"reflect"

	"github.com/vk/metalus/internal/errs"
	"github.com/vk/metalus/internal/pipeline"
	"github.com/zclconf/go-cty/cty"
)

// Module is the interface step packages implement to self-register.
type Module interface {
	Register(r *Registry)
}

// Overload is one registered body of a step function. NewInput returns a
// pre-defaulted input struct pointer (nil for functions without inputs);
// Fn must have the shape
//
//	func(ctx context.Context, pctx *pipeline.Context, in *X) (any, error)
//
// The pctx slot is the auto-injected pipelineContext argument.
type Overload struct {
	NewInput func() any
	Fn       any
}

// Registry holds the registered step objects and projectable object
// types for a single application instance. It is read-only after
// construction and freely shared across executions.
type Registry struct {
	objects map[string]map[string][]*Overload
	types   map[string]reflect.Type
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		objects: map[string]map[string][]*Overload{},
		types:   map[string]reflect.Type{},
	}
}

var (
	ctxType      = reflect.TypeOf((*context.Context)(nil)).Elem()
	pctxType     = reflect.TypeOf((*pipeline.Context)(nil))
	errType      = reflect.TypeOf((*error)(nil)).Elem()
	ctyValueType = reflect.TypeOf(cty.Value{})
)

// RegisterStep adds an overload for `qualifiedObject.function`.
// Registration order is the overload tie-break order. Invalid handler
// signatures panic: a mismatch between code and registration is a
// programmer error.
func (r *Registry) RegisterStep(qualifiedObject, function string, o *Overload) {
	ft := reflect.TypeOf(o.Fn)
	if ft == nil || ft.Kind() != reflect.Func ||
		ft.NumIn() != 3 || ft.NumOut() != 2 ||
		ft.In(0) != ctxType || ft.In(1) != pctxType || ft.Out(1) != errType {
		panic(fmt.Sprintf("invalid handler signature for step '%s.%s'", qualifiedObject, function))
	}
	fns, ok := r.objects[qualifiedObject]
	if !ok {
		fns = map[string][]*Overload{}
		r.objects[qualifiedObject] = fns
	}
	fns[function] = append(fns[function], o)
}

// RegisterObject makes a struct type constructible from configuration by
// its fully qualified class name. prototype is the zero struct (or a
// pointer to it). Duplicate registration panics.
func (r *Registry) RegisterObject(className string, prototype any) {
	rt := reflect.TypeOf(prototype)
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt.Kind() != reflect.Struct {
		panic(fmt.Sprintf("object class '%s' must be a struct type", className))
	}
	if _, exists := r.types[className]; exists {
		panic(fmt.Sprintf("object class '%s' already registered", className))
	}
	r.types[className] = rt
}

// HasObject reports whether a class name is registered.
func (r *Registry) HasObject(className string) bool {
	_, ok := r.types[className]
	return ok
}

// Callable is a resolved step body bound to its argument map, ready to
// invoke against a pipeline context.
type Callable struct {
	Ref      string
	overload *Overload
	args     map[string]cty.Value
}

// Resolve searches stepPackages in order for the first namespace that
// contains the referenced object, then selects the overload of the
// function with the largest count of declared input fields whose name is
// present in args and whose value is assignable to the field type. Ties
// go to the first registered overload.
func (r *Registry) Resolve(stepPackages []string, ref string, args map[string]cty.Value) (*Callable, error) {
	object, function, ok := splitRef(ref)
	if !ok {
		return nil, errs.NewConfigError("malformed step reference %q", ref)
	}

	var fns map[string][]*Overload
	candidates := qualifiedNames(stepPackages, object)
	for _, name := range candidates {
		if m, found := r.objects[name]; found {
			fns = m
			break
		}
	}
	if fns == nil {
		return nil, errs.NewConfigError("step object %q not found in packages %v", object, stepPackages)
	}

	overloads := fns[function]
	if len(overloads) == 0 {
		return nil, errs.NewConfigError("step function %q not found on object %q", function, object)
	}

	best := overloads[0]
	bestScore := -1
	for _, o := range overloads {
		score := scoreOverload(o, args)
		if score > bestScore {
			best, bestScore = o, score
		}
	}
	return &Callable{Ref: ref, overload: best, args: args}, nil
}

// qualifiedNames lists the lookup keys for an object across the package
// search path, ending with the bare object name for unqualified
// registrations.
func qualifiedNames(stepPackages []string, object string) []string {
	names := make([]string, 0, len(stepPackages)+1)
	for _, pkg := range stepPackages {
		if pkg == "" {
			continue
		}
		names = append(names, pkg+"."+object)
	}
	return append(names, object)
}

// splitRef separates "Object.function" at the last dot.
func splitRef(ref string) (string, string, bool) {
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == '.' {
			if i == 0 || i == len(ref)-1 {
				return "", "", false
			}
			return ref[:i], ref[i+1:], true
		}
	}
	return "", "", false
}

// scoreOverload counts the overload's input fields that are both named in
// args and assignable from the supplied value. Each declared field is
// counted at most once.
func scoreOverload(o *Overload, args map[string]cty.Value) int {
	if o.NewInput == nil {
		return 0
	}
	rt := reflect.TypeOf(o.NewInput())
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt.Kind() != reflect.Struct {
		return 0
	}
	score := 0
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		name := fieldArgName(f)
		if name == "" {
			continue
		}
		v, present := args[name]
		if !present {
			continue
		}
		if canAssign(f.Type, v) {
			score++
		}
	}
	return score
}
