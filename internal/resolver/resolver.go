// Package resolver implements the sigil-prefixed parameter expression
// language evaluated against a pipeline context.
package resolver

import (
	"context"

	"github.com/vk/metalus/internal/errs"
	"github.com/vk/metalus/internal/pipeline"
	"github.com/vk/metalus/internal/steps"
	"github.com/vk/metalus/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// Resolver evaluates declared parameters into runtime values. It is the
// default pipeline.StepMapper. A Resolver is stateless beyond its
// registry reference and safe for concurrent use across executions.
type Resolver struct {
	registry *steps.Registry
}

// New creates a Resolver backed by the given registry for typed-object
// projection.
func New(registry *steps.Registry) *Resolver {
	return &Resolver{registry: registry}
}

// MapParameter resolves one declared parameter against the context: the
// raw value is evaluated, the default applies when evaluation produced
// nothing, an optional class projection runs, and the security manager
// sees the final value.
func (r *Resolver) MapParameter(ctx context.Context, pctx *pipeline.Context, p *pipeline.Parameter) (cty.Value, error) {
	var v cty.Value
	var err error

	// Script parameters carry their text verbatim; everything else goes
	// through expression evaluation.
	if p.Type == pipeline.ParamTypeScript {
		v = value.FromNative(p.Value)
	} else {
		v, err = r.resolveAny(ctx, pctx, p.Value)
		if err != nil {
			return value.Absent, err
		}
	}

	if value.IsAbsent(v) && p.DefaultValue != nil {
		v, err = r.resolveAny(ctx, pctx, p.DefaultValue)
		if err != nil {
			return value.Absent, err
		}
	}

	if p.ClassName != "" && !value.IsAbsent(v) && !v.Type().IsCapsuleType() {
		v, err = r.project(p.ClassName, v)
		if err != nil {
			return value.Absent, err
		}
	}

	if pctx.SecurityManager != nil {
		v = pctx.SecurityManager.SecureParameter(v)
	}
	return v, nil
}

// resolveAny evaluates an arbitrary configuration payload: expression
// strings, typed-object and list descriptors, and nested maps or lists
// whose leaf strings are themselves expressions.
func (r *Resolver) resolveAny(ctx context.Context, pctx *pipeline.Context, raw any) (cty.Value, error) {
	switch tv := raw.(type) {
	case nil:
		return value.Absent, nil
	case string:
		return r.resolveString(ctx, pctx, tv)
	case map[string]any:
		return r.resolveMap(ctx, pctx, tv)
	case []any:
		return r.resolveList(ctx, pctx, tv)
	case cty.Value:
		return r.resolveValue(ctx, pctx, tv)
	default:
		return value.FromNative(raw), nil
	}
}

// resolveMap dispatches map payloads: typed-object descriptors, list
// descriptors, or plain maps resolved entry by entry.
func (r *Resolver) resolveMap(ctx context.Context, pctx *pipeline.Context, m map[string]any) (cty.Value, error) {
	if cn, ok := m["className"].(string); ok {
		if obj, found := m["object"]; found {
			return r.resolveObjectDescriptor(ctx, pctx, cn, obj)
		}
		if list, found := m["value"]; found {
			return r.resolveListDescriptor(ctx, pctx, cn, list)
		}
	}
	if list, found := m["value"]; found && len(m) == 1 {
		if _, isList := list.([]any); isList {
			return r.resolveListDescriptor(ctx, pctx, "", list)
		}
	}

	attrs := make(map[string]cty.Value, len(m))
	for k, entry := range m {
		v, err := r.resolveAny(ctx, pctx, entry)
		if err != nil {
			return value.Absent, err
		}
		if value.IsAbsent(v) {
			v = cty.NullVal(cty.DynamicPseudoType)
		}
		attrs[k] = v
	}
	if len(attrs) == 0 {
		return cty.EmptyObjectVal, nil
	}
	return cty.ObjectVal(attrs), nil
}

// resolveList evaluates each element, producing a tuple so elements may
// differ in type.
func (r *Resolver) resolveList(ctx context.Context, pctx *pipeline.Context, list []any) (cty.Value, error) {
	vals := make([]cty.Value, 0, len(list))
	for _, entry := range list {
		v, err := r.resolveAny(ctx, pctx, entry)
		if err != nil {
			return value.Absent, err
		}
		if value.IsAbsent(v) {
			v = cty.NullVal(cty.DynamicPseudoType)
		}
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		return cty.EmptyTupleVal, nil
	}
	return cty.TupleVal(vals), nil
}

// resolveValue walks an already-cty payload (HCL-authored applications),
// re-evaluating leaf strings as expressions.
func (r *Resolver) resolveValue(ctx context.Context, pctx *pipeline.Context, v cty.Value) (cty.Value, error) {
	if value.IsAbsent(v) {
		return value.Absent, nil
	}
	t := v.Type()
	switch {
	case t == cty.String:
		return r.resolveString(ctx, pctx, v.AsString())
	case t.IsObjectType() || t.IsMapType():
		return r.resolveAny(ctx, pctx, value.ToNative(v))
	case t.IsListType() || t.IsTupleType() || t.IsSetType():
		return r.resolveAny(ctx, pctx, value.ToNative(v))
	}
	return v, nil
}

// resolveObjectDescriptor evaluates every leaf of the descriptor body,
// then constructs the named class through the registry.
func (r *Resolver) resolveObjectDescriptor(ctx context.Context, pctx *pipeline.Context, className string, body any) (cty.Value, error) {
	bodyMap, ok := body.(map[string]any)
	if !ok {
		return value.Absent, errs.NewConfigError("object descriptor for %q must carry a map body", className)
	}
	fields := make(map[string]cty.Value, len(bodyMap))
	for k, entry := range bodyMap {
		v, err := r.resolveAny(ctx, pctx, entry)
		if err != nil {
			return value.Absent, err
		}
		fields[k] = v
	}
	return r.registry.NewObject(className, fields)
}

// resolveListDescriptor evaluates each element of a `value` list,
// projecting elements into className when one is given.
func (r *Resolver) resolveListDescriptor(ctx context.Context, pctx *pipeline.Context, className string, payload any) (cty.Value, error) {
	list, ok := payload.([]any)
	if !ok {
		return value.Absent, errs.NewConfigError("list descriptor value must be a list")
	}
	vals := make([]cty.Value, 0, len(list))
	for _, entry := range list {
		v, err := r.resolveAny(ctx, pctx, entry)
		if err != nil {
			return value.Absent, err
		}
		if className != "" {
			v, err = r.project(className, v)
			if err != nil {
				return value.Absent, err
			}
		}
		if value.IsAbsent(v) {
			v = cty.NullVal(cty.DynamicPseudoType)
		}
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		return cty.EmptyTupleVal, nil
	}
	return cty.TupleVal(vals), nil
}

// project constructs a registered class from an object- or map-shaped
// value.
func (r *Resolver) project(className string, v cty.Value) (cty.Value, error) {
	if v.Type().IsCapsuleType() {
		return v, nil
	}
	t := v.Type()
	if !t.IsObjectType() && !t.IsMapType() {
		return value.Absent, errs.NewMappingError(className, "cannot project %s into an object", t.FriendlyName())
	}
	fields := make(map[string]cty.Value, v.LengthInt())
	for it := v.ElementIterator(); it.Next(); {
		k, ev := it.Element()
		fields[k.AsString()] = ev
	}
	return r.registry.NewObject(className, fields)
}
