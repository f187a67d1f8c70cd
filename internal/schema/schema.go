// Package schema loads the declared enrichment schema and validates model
// output against it.
//
// The schema lives in enrichment.cue, embedded at build time. It declares the
// next_action enumeration, the enrichment fields in column order, the
// #Enrichment definition that every model result must satisfy, and the hosted
// database properties the publication stage writes.
//
// A Schema holds a cue.Context and is not safe for concurrent use; jobtrail
// processes rows sequentially.
package schema

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/jobtrail/internal/model"
)

//go:embed enrichment.cue
var enrichmentCUE string

// FieldNextAction is the required enrichment field.
const FieldNextAction = "next_action"

// Field is one declared enrichment field.
type Field struct {
	Name        string `json:"name"`
	Kind        string `json:"kind,omitempty"`
	Description string `json:"description"`
}

// Field kinds with a normalization step.
const (
	KindLabel   = "label"
	KindInteger = "integer"
)

// Property is one hosted database property and the row column it is read
// from.
type Property struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Column string `json:"column"`
}

// ValidationError reports an enrichment result that fails the schema.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Schema is a compiled enrichment schema.
type Schema struct {
	ctx         *cue.Context
	def         cue.Value
	nextActions []string
	allowed     map[string]bool
	fields      []Field
	properties  []Property
}

// Load compiles the embedded schema.
func Load() (*Schema, error) {
	return Compile(enrichmentCUE)
}

// MustLoad is like Load but panics on error.
// The embedded schema is covered by tests, so this is safe for wiring code.
func MustLoad() *Schema {
	s, err := Load()
	if err != nil {
		panic(err)
	}
	return s
}

// Compile builds a Schema from CUE source.
func Compile(src string) (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	s := &Schema{ctx: ctx, allowed: map[string]bool{}}

	if err := v.LookupPath(cue.ParsePath("nextActions")).Decode(&s.nextActions); err != nil {
		return nil, fmt.Errorf("decode nextActions: %w", err)
	}
	for _, a := range s.nextActions {
		s.allowed[a] = true
	}

	if err := v.LookupPath(cue.ParsePath("fields")).Decode(&s.fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	if err := v.LookupPath(cue.ParsePath("properties")).Decode(&s.properties); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}

	s.def = v.LookupPath(cue.ParsePath("#Enrichment"))
	if !s.def.Exists() {
		return nil, fmt.Errorf("schema has no #Enrichment definition")
	}

	hasNextAction := false
	for _, f := range s.fields {
		if f.Name == FieldNextAction {
			hasNextAction = true
		}
	}
	if !hasNextAction {
		return nil, fmt.Errorf("schema fields must include %s", FieldNextAction)
	}

	return s, nil
}

// Fields returns the declared enrichment fields in column order.
func (s *Schema) Fields() []Field {
	return s.fields
}

// FieldNames returns the declared enrichment field names in column order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// NextActions returns the allowed next_action values.
func (s *Schema) NextActions() []string {
	return s.nextActions
}

// Properties returns the hosted database property declarations.
func (s *Schema) Properties() []Property {
	return s.properties
}

// PropertyTypes maps every declared property name to its hosted type.
func (s *Schema) PropertyTypes() map[string]string {
	out := make(map[string]string, len(s.properties))
	for _, p := range s.properties {
		out[p.Name] = p.Type
	}
	return out
}

// PropertyValues reads every declared property from a row.
func (s *Schema) PropertyValues(r model.Row) map[string]string {
	out := make(map[string]string, len(s.properties))
	for _, p := range s.properties {
		out[p.Name] = r.Value(p.Column)
	}
	return out
}

// Normalize returns a copy of result with label and integer fields coerced
// to their canonical form: "Recruiter Outreach" becomes recruiter_outreach,
// "2" becomes 2 and 2.5 rounds to 3. Values that cannot be coerced are left
// for Validate to reject. next_action is never rewritten.
func (s *Schema) Normalize(result map[string]any) map[string]any {
	out := maps.Clone(result)
	for _, f := range s.fields {
		v, ok := out[f.Name]
		if !ok || f.Name == FieldNextAction {
			continue
		}
		switch f.Kind {
		case KindLabel:
			if str, isString := v.(string); isString {
				out[f.Name] = label(str)
			}
		case KindInteger:
			out[f.Name] = integer(v)
		}
	}
	return out
}

func label(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), "_")
}

func integer(v any) any {
	switch x := v.(type) {
	case string:
		x = strings.TrimSpace(x)
		if x == "" {
			return nil
		}
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return v
		}
		return math.Round(f)
	case float64:
		return math.Round(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return v
		}
		return math.Round(f)
	}
	return v
}

// Validate checks a model result. next_action is checked first so its
// failure message names the offending value; the rest of the result is then
// unified with #Enrichment. A failing field is reported as
// "<field> invalid: <value>".
func (s *Schema) Validate(result map[string]any) error {
	raw, present := result[FieldNextAction]
	action, isString := raw.(string)
	if !present || !isString || !s.allowed[action] {
		return &ValidationError{
			Field:   FieldNextAction,
			Message: fmt.Sprintf("next_action invalid: %s", describe(raw, present)),
		}
	}

	err := s.unify(result)
	if err == nil {
		return nil
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr
	}

	for _, name := range slices.Sorted(maps.Keys(result)) {
		if name == FieldNextAction {
			continue
		}
		single := map[string]any{FieldNextAction: action, name: result[name]}
		if s.unify(single) != nil {
			return &ValidationError{
				Field:   name,
				Message: fmt.Sprintf("%s invalid: %s", name, describe(result[name], true)),
			}
		}
	}
	return &ValidationError{Message: "enrichment invalid: " + firstError(err)}
}

// unify checks result against #Enrichment.
func (s *Schema) unify(result map[string]any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return &ValidationError{Message: fmt.Sprintf("enrichment result not encodable: %v", err)}
	}
	v := s.ctx.CompileBytes(data)
	if err := v.Err(); err != nil {
		return &ValidationError{Message: fmt.Sprintf("enrichment result not decodable: %v", err)}
	}
	return s.def.Unify(v).Validate(cue.Concrete(true))
}

func firstError(err error) string {
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		return errs[0].Error()
	}
	return err.Error()
}

func describe(v any, present bool) string {
	if !present {
		return "<missing>"
	}
	if v == nil {
		return "<null>"
	}
	return Stringify(v)
}

// Stringify renders a decoded JSON value as a spreadsheet cell.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			parts = append(parts, Stringify(e))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	default:
		return fmt.Sprint(x)
	}
}
