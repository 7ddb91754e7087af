package labgen

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

// coerce converts a caller-supplied value to the parameter's declared type
// and checks its bounds. Numbers decoded from JSON arrive as float64 and are
// accepted for int parameters only when integral.
func coerce(tmpl string, p Parameter, v any) (any, error) {
	mismatch := func(format string, args ...any) error {
		return templateErr(CodeTypeMismatch, tmpl, p.Name, format, args...)
	}

	var out any
	switch p.Type {
	case TypeInt:
		n, ok := asInt(v)
		if !ok {
			return nil, mismatch("expected int, got %T(%v)", v, v)
		}
		if p.Min != nil && n < *p.Min {
			return nil, mismatch("%d is below minimum %d", n, *p.Min)
		}
		if p.Max != nil && n > *p.Max {
			return nil, mismatch("%d is above maximum %d", n, *p.Max)
		}
		out = n
	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch("expected bool, got %T(%v)", v, v)
		}
		out = b
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch("expected string, got %T(%v)", v, v)
		}
		out = s
	default:
		return nil, mismatch("unknown parameter type %q", p.Type)
	}

	if len(p.Enum) > 0 && !slices.Contains(p.Enum, fmt.Sprint(out)) {
		return nil, mismatch("%v is not one of %v", out, p.Enum)
	}
	return out, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return asInt(f)
	}
	return 0, false
}

// ResolveParams validates the caller's parameters against the template's
// schema and fills in defaults. Unknown names, missing required values and
// type or range violations are all reported as a *TemplateError.
func (t *Template) ResolveParams(given map[string]any) (map[string]any, error) {
	for name := range given {
		if _, ok := t.Param(name); !ok {
			return nil, templateErr(CodeUnknownParam, t.Name, name, "template has no such parameter")
		}
	}

	out := make(map[string]any, len(t.Parameters))
	for _, p := range t.Parameters {
		v, ok := given[p.Name]
		if !ok || v == nil {
			if p.Default == nil {
				if p.Required {
					return nil, templateErr(CodeMissingParam, t.Name, p.Name, "value is required")
				}
				continue
			}
			v = p.Default
		}
		c, err := coerce(t.Name, p, v)
		if err != nil {
			return nil, err
		}
		out[p.Name] = c
	}
	return out, nil
}

// stringVars renders resolved parameters as placeholder values.
func stringVars(params map[string]any) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = fmt.Sprint(v)
	}
	return out
}
