package value

import "github.com/zclconf/go-cty/cty"

// Response is the canonical step return shape: a primary value plus an
// optional map of named secondary returns.
type Response struct {
	Primary cty.Value
	Named   map[string]cty.Value
}

// Wrap normalizes whatever a step body returned into a Response. A
// Response passes through untouched; any other value becomes the primary
// return; nil becomes an absent primary.
func Wrap(out any) *Response {
	switch tv := out.(type) {
	case *Response:
		if tv == nil {
			return &Response{Primary: Absent}
		}
		return tv
	case Response:
		return &tv
	case nil:
		return &Response{Primary: Absent}
	case cty.Value:
		return &Response{Primary: tv}
	default:
		return &Response{Primary: FromNative(out)}
	}
}

// Value projects the response into value space: an object with the
// primary return under "primaryReturn" and named returns under
// "namedReturns", suitable for dotted-path traversal.
func (r *Response) Value() cty.Value {
	attrs := map[string]cty.Value{}
	if !IsAbsent(r.Primary) {
		attrs["primaryReturn"] = r.Primary
	} else {
		attrs["primaryReturn"] = cty.NullVal(cty.DynamicPseudoType)
	}
	if len(r.Named) > 0 {
		attrs["namedReturns"] = cty.ObjectVal(r.Named)
	} else {
		attrs["namedReturns"] = cty.NullVal(cty.DynamicPseudoType)
	}
	return cty.ObjectVal(attrs)
}

// NamedValue returns the named-returns map as an object value, or Absent
// when the response carries none.
func (r *Response) NamedValue() cty.Value {
	if len(r.Named) == 0 {
		return Absent
	}
	return cty.ObjectVal(r.Named)
}
