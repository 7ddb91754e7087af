package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/newtron-network/cmlkit/pkg/util"
)

// ParamType is the JSON type of an operation parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// ParamDef documents one parameter of an operation.
type ParamDef struct {
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required"`
	Default     any       `json:"default,omitempty"`
	Enum        []any     `json:"enum,omitempty"`
	Minimum     *int      `json:"minimum,omitempty"`
	Items       *ParamDef `json:"items,omitempty"`
}

// Definition describes an operation to an agent.
type Definition struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Parameters  map[string]ParamDef `json:"parameters"`
	Mutating    bool                `json:"mutating"`
}

// InputSchema renders the parameters as a JSON Schema object.
func (d Definition) InputSchema() map[string]any {
	props := make(map[string]any, len(d.Parameters))
	required := []string{}
	for name, p := range d.Parameters {
		props[name] = p.schema()
		if p.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func (p ParamDef) schema() map[string]any {
	s := map[string]any{"type": string(p.Type)}
	if p.Description != "" {
		s["description"] = p.Description
	}
	if p.Default != nil {
		s["default"] = p.Default
	}
	if len(p.Enum) > 0 {
		s["enum"] = p.Enum
	}
	if p.Minimum != nil {
		s["minimum"] = *p.Minimum
	}
	if p.Items != nil {
		s["items"] = p.Items.schema()
	}
	return s
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		return jsonName(f)
	})
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

// paramsOf derives parameter definitions from an argument struct. The json
// tag names the parameter, desc documents it, default supplies its default
// and the validate tag marks it required or restricts its values.
func paramsOf(t reflect.Type) map[string]ParamDef {
	out := make(map[string]ParamDef)
	if t == nil || t.Kind() != reflect.Struct {
		return out
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := jsonName(f)
		if !f.IsExported() || name == "" {
			continue
		}
		p := typeOf(f.Type)
		p.Description = f.Tag.Get("desc")
		if def, ok := f.Tag.Lookup("default"); ok {
			p.Default = defaultValue(f.Type, def)
		}
		for _, rule := range strings.Split(f.Tag.Get("validate"), ",") {
			key, arg, _ := strings.Cut(rule, "=")
			if key == "dive" {
				break
			}
			switch key {
			case "required":
				p.Required = true
			case "oneof":
				for _, v := range strings.Fields(arg) {
					p.Enum = append(p.Enum, v)
				}
			case "min", "gte":
				if n, err := strconv.Atoi(arg); err == nil && p.Type == TypeInteger {
					p.Minimum = &n
				}
			}
		}
		out[name] = p
	}
	return out
}

func typeOf(t reflect.Type) ParamDef {
	switch t.Kind() {
	case reflect.Pointer:
		return typeOf(t.Elem())
	case reflect.String:
		return ParamDef{Type: TypeString}
	case reflect.Bool:
		return ParamDef{Type: TypeBoolean}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return ParamDef{Type: TypeInteger}
	case reflect.Slice, reflect.Array:
		items := typeOf(t.Elem())
		return ParamDef{Type: TypeArray, Items: &items}
	default:
		return ParamDef{Type: TypeObject}
	}
}

func defaultValue(t reflect.Type, raw string) any {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Bool:
		b, _ := strconv.ParseBool(raw)
		return b
	case reflect.Int, reflect.Int64:
		n, _ := strconv.Atoi(raw)
		return n
	default:
		return raw
	}
}

// applyDefaults sets every field that carries a default tag. Decoding runs
// afterwards, so supplied arguments win.
func applyDefaults(v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		raw, ok := t.Field(i).Tag.Lookup("default")
		if !ok {
			continue
		}
		f := v.Field(i)
		switch f.Kind() {
		case reflect.String:
			f.SetString(raw)
		case reflect.Bool:
			b, _ := strconv.ParseBool(raw)
			f.SetBool(b)
		case reflect.Int, reflect.Int64:
			n, _ := strconv.ParseInt(raw, 10, 64)
			f.SetInt(n)
		}
	}
}

// bind decodes and validates raw arguments into A. Every failure is a
// *util.ValidationError so nothing malformed reaches the platform.
func bind[A any](raw json.RawMessage) (A, error) {
	var args A
	v := reflect.ValueOf(&args).Elem()
	if v.Kind() != reflect.Struct {
		return args, fmt.Errorf("argument type %T is not a struct", args)
	}
	applyDefaults(v)

	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		dec.UseNumber()
		if err := dec.Decode(&args); err != nil {
			return args, decodeError(err)
		}
	}

	if err := validate.Struct(args); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return args, util.NewValidationError(msgs...)
		}
		return args, util.NewValidationError(err.Error())
	}
	return args, nil
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &typeErr):
		return util.NewValidationError(fmt.Sprintf("%s: expected %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value))
	case errors.As(err, &syntaxErr):
		return util.NewValidationError("arguments are not valid JSON: " + syntaxErr.Error())
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return util.NewValidationError("unknown parameter " + strings.TrimPrefix(err.Error(), "json: unknown field "))
	default:
		return util.NewValidationError(err.Error())
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "min", "gte":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s needs at least %s entries", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
}
