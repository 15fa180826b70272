package resolver

import (
	"context"
	"reflect"
	"strings"

	"github.com/vk/metalus/internal/ctxlog"
	"github.com/vk/metalus/internal/pipeline"
	"github.com/vk/metalus/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// Sigils selecting the source of a resolved value when they lead an
// expression string.
const (
	sigilGlobal   = '!'
	sigilStep     = '$'
	sigilPrimary  = '@'
	sigilNamed    = '#'
	sigilPipeline = '&'
)

func isSigil(c byte) bool {
	switch c {
	case sigilGlobal, sigilStep, sigilPrimary, sigilNamed, sigilPipeline:
		return true
	}
	return false
}

// pipelineClass tags Pipeline values produced by `&` lookups so they can
// travel through value space.
const pipelineClass = "metalus.Pipeline"

// PipelineValue wraps a pipeline as a capsule value.
func PipelineValue(p *pipeline.Pipeline) cty.Value {
	return cty.CapsuleVal(value.CapsuleType(pipelineClass, reflect.TypeOf(pipeline.Pipeline{})), p)
}

// PipelineFromValue unwraps a pipeline capsule, if v holds one.
func PipelineFromValue(v cty.Value) (*pipeline.Pipeline, bool) {
	if value.IsAbsent(v) || !v.Type().IsCapsuleType() {
		return nil, false
	}
	p, ok := v.EncapsulatedValue().(*pipeline.Pipeline)
	return p, ok
}

// resolveString evaluates one string payload. The embedded `${expr}`
// form takes precedence over a leading `$` sigil; otherwise a leading
// sigil makes the entire string one expression, and anything else is a
// literal.
func (r *Resolver) resolveString(ctx context.Context, pctx *pipeline.Context, s string) (cty.Value, error) {
	if s == "" {
		return cty.StringVal(""), nil
	}
	if strings.Contains(s, "${") {
		return r.renderEmbedded(ctx, pctx, s)
	}
	if isSigil(s[0]) {
		return r.evaluate(pctx, s), nil
	}
	return cty.StringVal(s), nil
}

// renderEmbedded rewrites a string containing `${expr}` segments by
// evaluating each expression and splicing its text form. An expression
// yielding a non-scalar is logged and left as literal text.
func (r *Resolver) renderEmbedded(ctx context.Context, pctx *pipeline.Context, s string) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx)
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start:], "}")
		if end < 0 {
			b.WriteString(s)
			break
		}
		end += start
		b.WriteString(s[:start])

		inner := s[start+2 : end]
		literal := s[start : end+1]
		switch {
		case inner == "" || !isSigil(inner[0]):
			b.WriteString(literal)
		default:
			v := r.evaluate(pctx, inner)
			if value.IsAbsent(v) {
				// An absent embedding renders as nothing.
			} else if text, err := value.Stringify(v); err != nil {
				logger.Warn("Embedded expression resolved to a non-scalar value, leaving literal text.",
					"expression", inner, "type", v.Type().FriendlyName())
				b.WriteString(literal)
			} else {
				b.WriteString(text)
			}
		}
		s = s[end+1:]
	}
	return cty.StringVal(b.String()), nil
}

// evaluate resolves one whole sigil expression against the context.
func (r *Resolver) evaluate(pctx *pipeline.Context, expr string) cty.Value {
	sigil, rest := expr[0], expr[1:]
	if rest == "" {
		return value.Absent
	}
	switch sigil {
	case sigilGlobal:
		return pctx.Global(rest)
	case sigilPipeline:
		if pctx.PipelineManager == nil {
			return value.Absent
		}
		if p, ok := pctx.PipelineManager.Get(rest); ok {
			return PipelineValue(p)
		}
		return value.Absent
	case sigilStep, sigilPrimary, sigilNamed:
		return r.stepLookup(pctx, sigil, rest)
	}
	return value.Absent
}

// stepLookup locates a recorded step response and descends into it. The
// first dotted segment names a pipeline when results for that pipeline
// exist in the context; otherwise it is a step of the current pipeline.
func (r *Resolver) stepLookup(pctx *pipeline.Context, sigil byte, rest string) cty.Value {
	segs := strings.Split(rest, ".")

	pipelineID := pctx.CurrentPipeline
	stepID := segs[0]
	path := segs[1:]
	// A step of the current pipeline shadows a pipeline of the same name.
	_, isLocalStep := pctx.StepResult(pipelineID, segs[0])
	if !isLocalStep && len(segs) >= 2 && pctx.HasPipelineResults(segs[0]) {
		pipelineID = segs[0]
		stepID = segs[1]
		path = segs[2:]
	}

	resp, ok := pctx.StepResult(pipelineID, stepID)
	if !ok {
		return value.Absent
	}

	var root cty.Value
	switch sigil {
	case sigilPrimary:
		root = resp.Primary
	case sigilNamed:
		root = resp.NamedValue()
	default:
		root = resp.Value()
	}
	return value.Path(root, strings.Join(path, "."))
}
