package schema

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Param describes one input parameter of a remote tool.
type Param struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required" yaml:"required"`
}

// FromAny creates a json schema from any JSON-marshalable value,
// typically the decoded `inputSchema` of a remote tool.
//
// For example:
//
//	map[string]any{
//		"type": "object",
//		"properties": map[string]any{
//			"query": map[string]any{
//				"type": "string",
//			},
//		},
//	}
func FromAny(t any) (*jsonschema.Schema, error) {
	js, err := json.Marshal(t)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal schema")
	}
	return FromJSON(js)
}

// FromJSON parses raw JSON schema, the property order of the document is preserved.
func FromJSON(js []byte) (*jsonschema.Schema, error) {
	s := &jsonschema.Schema{}
	if len(js) == 0 || string(js) == "null" {
		return s, nil
	}
	if err := json.Unmarshal(js, s); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal schema")
	}
	return s, nil
}

// Property returns the schema of the named property.
func Property(s *jsonschema.Schema, name string) (*jsonschema.Schema, bool) {
	if s == nil || s.Properties == nil {
		return nil, false
	}
	return s.Properties.Get(name)
}

// PropertyType returns the declared type of the named property, or empty string.
func PropertyType(s *jsonschema.Schema, name string) string {
	if p, ok := Property(s, name); ok && p != nil {
		return p.Type
	}
	return ""
}

// HasProperties returns true if the schema declares at least one property.
func HasProperties(s *jsonschema.Schema) bool {
	return s != nil && s.Properties != nil && s.Properties.Len() > 0
}

// RequiredParams returns the required parameters in the order of `required`,
// skipping names that are not declared as properties.
func RequiredParams(s *jsonschema.Schema) []Param {
	if !HasProperties(s) {
		return nil
	}
	var res []Param
	for _, name := range s.Required {
		if p, ok := s.Properties.Get(name); ok {
			res = append(res, newParam(name, p, true))
		}
	}
	return res
}

// OptionalParams returns the properties that are not required, in declaration order.
func OptionalParams(s *jsonschema.Schema) []Param {
	if !HasProperties(s) {
		return nil
	}
	var res []Param
	forEach(s.Properties, func(name string, p *jsonschema.Schema) {
		if !slices.Contains(s.Required, name) {
			res = append(res, newParam(name, p, false))
		}
	})
	return res
}

// Hash returns a stable hash of the schema document.
func Hash(s *jsonschema.Schema) uint64 {
	if s == nil {
		return 0
	}
	js, _ := json.Marshal(s)
	return xxhash.Sum64(js)
}

// String returns indented JSON of the schema.
func String(s *jsonschema.Schema) string {
	js, _ := json.MarshalIndent(s, "", "\t")
	return string(js)
}

func newParam(name string, p *jsonschema.Schema, required bool) Param {
	param := Param{
		Name:     name,
		Type:     "unknown",
		Required: required,
	}
	if p != nil {
		if p.Type != "" {
			param.Type = p.Type
		}
		param.Description = strings.TrimSpace(p.Description)
	}
	return param
}

func forEach(props *orderedmap.OrderedMap[string, *jsonschema.Schema], fn func(string, *jsonschema.Schema)) {
	for pair := props.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}
