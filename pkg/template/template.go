// Package template renders the engine's `{dotted.path}` placeholder syntax
// (spec §4.4/§4.5/§4.6: "renders ... with {dotted.path} substitutions
// against the data store"). It is intentionally not text/template — the
// placeholder grammar is a single non-nested `{path}` token, not Go's
// action syntax, so a small hand-rolled scanner is clearer than bending
// text/template to a shape it wasn't designed for.
package template

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/skillforge/engine/pkg/pathresolver"
)

// Render replaces every `{dotted.path}` placeholder in s with the value at
// that path in data, resolved via the Path Resolver. Non-string values are
// JSON-stringified (spec §4.4: "strings are JSON-stringified for complex
// values"). A placeholder whose path is missing renders as the empty
// string literal "null" is avoided — missing expands to "".
func Render(s string, data map[string]any) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(s) {
		open := strings.IndexByte(s[i:], '{')
		if open < 0 {
			b.WriteString(s[i:])
			break
		}
		b.WriteString(s[i : i+open])
		start := i + open
		close := strings.IndexByte(s[start:], '}')
		if close < 0 {
			return "", fmt.Errorf("template: unterminated placeholder starting at %q", s[start:])
		}
		path := s[start+1 : start+close]
		if path == "" {
			return "", fmt.Errorf("template: empty placeholder")
		}
		rendered, err := renderValue(path, data)
		if err != nil {
			return "", err
		}
		b.WriteString(rendered)
		i = start + close + 1
	}
	return b.String(), nil
}

func renderValue(path string, data map[string]any) (string, error) {
	v := pathresolver.Get(data, path)
	if v == pathresolver.Missing {
		return "", nil
	}
	switch tv := v.(type) {
	case string:
		return tv, nil
	case nil:
		return "", nil
	default:
		b, err := json.Marshal(tv)
		if err != nil {
			return "", fmt.Errorf("template: marshal value at %q: %w", path, err)
		}
		return string(b), nil
	}
}

// RenderHeaders renders every header value with Render.
func RenderHeaders(headers map[string]string, data map[string]any) (map[string]string, error) {
	if headers == nil {
		return nil, nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		rendered, err := Render(v, data)
		if err != nil {
			return nil, fmt.Errorf("template: header %q: %w", k, err)
		}
		out[k] = rendered
	}
	return out, nil
}
