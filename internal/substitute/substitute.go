// Package substitute resolves {{name}} placeholders in requests against an
// environment's variables.
package substitute

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"collection-runner/internal/models"
)

var placeholderPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// ErrKeyCollision is returned when two keys of one object or map resolve to
// the same text.
var ErrKeyCollision = errors.New("keys resolve to the same name")

// Mode selects how structured fields (headers, params, body) are resolved.
type Mode string

const (
	// Structural walks the decoded value and replaces placeholders in string
	// leaves and object keys only. The result is always well-formed JSON.
	Structural Mode = "structural"
	// Textual serializes each field to JSON, replaces placeholders in the text
	// and parses it back. A value containing quotes can break the document.
	Textual Mode = "textual"
)

// Error reports a field that could not be resolved.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("substituting variables in %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// String replaces every {{key}} in s whose key is present in env. Keys are
// matched verbatim (no trimming, case-sensitive); unknown keys are left as-is.
// Replacement is a single pass, so values containing placeholders are not
// expanded again.
func String(s string, env map[string]string) string {
	if len(env) == 0 || !strings.Contains(s, "{{") {
		return s
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := env[match[2:len(match)-2]]; ok {
			return val
		}
		return match
	})
}

// Value returns a copy of v with placeholders substituted in every string leaf
// and object key. v is expected to be a decoded JSON tree. It fails with
// ErrKeyCollision when two keys of one object resolve to the same text.
func Value(v any, env map[string]string) (any, error) {
	switch val := v.(type) {
	case string:
		return String(val, env), nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			resolved, err := Value(child, env)
			if err != nil {
				return nil, err
			}
			key := String(k, env)
			if _, dup := out[key]; dup {
				return nil, fmt.Errorf("%w: %q", ErrKeyCollision, key)
			}
			out[key] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			resolved, err := Value(child, env)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// Map substitutes keys and values of a string map.
func Map(m map[string]string, env map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(m))
	for k, v := range m {
		key := String(k, env)
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("%w: %q", ErrKeyCollision, key)
		}
		out[key] = String(v, env)
	}
	return out, nil
}

// Unresolved returns the distinct placeholder names still present in s.
func Unresolved(s string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Request returns a deep copy of req with the URL, headers, params and body
// resolved against env. req itself is never modified. An absent body stays absent.
func Request(req models.Request, env map[string]string, mode Mode) (models.Request, error) {
	out := req
	out.URL = String(req.URL, env)
	if req.LastResponse != nil {
		snapshot := *req.LastResponse
		out.LastResponse = &snapshot
	}

	if mode == Textual {
		return textual(out, req, env)
	}

	var err error
	if out.Headers, err = Map(req.Headers, env); err != nil {
		return models.Request{}, &Error{Field: "headers", Err: err}
	}
	if out.Params, err = Map(req.Params, env); err != nil {
		return models.Request{}, &Error{Field: "params", Err: err}
	}
	out.Body = nil
	if req.HasBody() {
		body, err := decode(req.Body)
		if err != nil {
			return models.Request{}, &Error{Field: "body", Err: err}
		}
		resolved, err := Value(body, env)
		if err != nil {
			return models.Request{}, &Error{Field: "body", Err: err}
		}
		encoded, err := encode(resolved)
		if err != nil {
			return models.Request{}, &Error{Field: "body", Err: err}
		}
		out.Body = encoded
	}
	return out, nil
}

func textual(out, req models.Request, env map[string]string) (models.Request, error) {
	var err error
	if out.Headers, err = textualMap("headers", req.Headers, env); err != nil {
		return models.Request{}, err
	}
	if out.Params, err = textualMap("params", req.Params, env); err != nil {
		return models.Request{}, err
	}

	out.Body = nil
	if req.HasBody() {
		body, err := decode(req.Body)
		if err != nil {
			return models.Request{}, &Error{Field: "body", Err: err}
		}
		text, err := encode(body)
		if err != nil {
			return models.Request{}, &Error{Field: "body", Err: err}
		}
		replaced := []byte(replaceEach(string(text), env))
		if !json.Valid(replaced) {
			return models.Request{}, &Error{Field: "body", Err: fmt.Errorf("result is not valid JSON: %s", replaced)}
		}
		out.Body = replaced
	}
	return out, nil
}

func textualMap(field string, m map[string]string, env map[string]string) (map[string]string, error) {
	if m == nil {
		m = map[string]string{}
	}
	text, err := encode(m)
	if err != nil {
		return nil, &Error{Field: field, Err: err}
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(replaceEach(string(text), env)), &out); err != nil {
		return nil, &Error{Field: field, Err: err}
	}
	return out, nil
}

// replaceEach applies one global replacement per key in sorted key order, so a
// value that itself contains {{other}} may be expanded by a later key.
func replaceEach(text string, env map[string]string) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		text = strings.ReplaceAll(text, "{{"+k+"}}", env[k])
	}
	return text
}

func decode(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding body: %w", err)
	}
	return v, nil
}

func encode(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
