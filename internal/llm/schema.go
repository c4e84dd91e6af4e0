package llm

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is a compiled JSON Schema for one structured output.
type Schema struct {
	Name string
	Raw  json.RawMessage

	compiled *jsonschema.Schema
}

// NewSchema compiles raw under name.
func NewSchema(name string, raw string) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	url := name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader([]byte(raw))); err != nil {
		return nil, eris.Wrapf(err, "llm: add schema %s", name)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, eris.Wrapf(err, "llm: compile schema %s", name)
	}
	return &Schema{Name: name, Raw: json.RawMessage(raw), compiled: compiled}, nil
}

// MustSchema is NewSchema for package-level schema literals.
func MustSchema(name string, raw string) *Schema {
	s, err := NewSchema(name, raw)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks that data is JSON satisfying the schema. A nil Schema
// only checks that data is valid JSON.
func (s *Schema) Validate(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return eris.Wrap(err, "llm: response is not JSON")
	}
	if s == nil {
		return nil
	}
	if err := s.compiled.Validate(v); err != nil {
		return eris.Wrapf(err, "llm: response does not match %s", s.Name)
	}
	return nil
}

// Map returns the schema as a decoded JSON object.
func (s *Schema) Map() map[string]any {
	var m map[string]any
	_ = json.Unmarshal(s.Raw, &m)
	return m
}

// Instructions renders the schema as a prompt suffix for providers without
// native structured output.
func (s *Schema) Instructions() string {
	if s == nil {
		return "Respond with JSON only."
	}
	return "Respond with a single JSON value, no prose, matching this JSON Schema:\n" + string(s.Raw)
}

// parse extracts, checks and returns the JSON in text.
func (s *Schema) parse(provider, text string) (json.RawMessage, error) {
	body := extractJSON(text)
	if err := s.Validate([]byte(body)); err != nil {
		return nil, Malformed(provider, err)
	}
	return json.RawMessage(body), nil
}
