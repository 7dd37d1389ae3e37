package aiproxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var errNoJSON = errors.New("no JSON value in model output")

// extractJSON pulls the first JSON object or array out of model text,
// tolerating markdown fences and prose around it.
func extractJSON(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.ContainsAny(rest[:nl], "{[") {
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		s = strings.TrimSpace(rest)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return nil, errNoJSON
	}
	var raw json.RawMessage
	if err := json.NewDecoder(strings.NewReader(s[start:])).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errNoJSON, err)
	}
	return raw, nil
}

// decodeOutput extracts, validates and decodes model output into out.
func (s *Service) decodeOutput(content, schema string, out any) error {
	raw, err := extractJSON(content)
	if err != nil {
		return err
	}
	// Some models answer a search with a bare array.
	if schema == SchemaFoodSearch && len(raw) > 0 && raw[0] == '[' {
		raw = append(append([]byte(`{"foods":`), raw...), '}')
	}
	if err := s.validator.Validate(schema, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", schema, err)
	}
	return nil
}
