// Package schema validates response bodies against JSON Schema documents and
// condenses the violations into a short, human-readable list.
package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const (
	rootPath     = "<root>"
	pathSep      = "\x1f"
	unknownError = "Unknown error"
)

var arrayIndexPattern = regexp.MustCompile(`\[\d+\]`)

// Result is the outcome of validating one response.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Violation is a single (path, message) pair reported by the schema engine.
type Violation struct {
	Path    string
	Message string
}

// Validate compiles schemaText and checks data against it. data is a decoded
// JSON value. A schema that cannot be parsed or compiled yields a single
// "Invalid Schema: ..." error instead of failing.
func Validate(schemaText string, data any) Result {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaText))
	if err != nil {
		return Result{Valid: false, Errors: []string{fmt.Sprintf("Invalid Schema: %v", err)}}
	}

	res, err := compiled.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return Result{Valid: false, Errors: []string{fmt.Sprintf("Invalid Schema: %v", err)}}
	}
	if res.Valid() {
		return Result{Valid: true, Errors: []string{}}
	}

	violations := make([]Violation, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		violations = append(violations, Violation{
			Path:    contextPath(e.Context(), data),
			Message: e.Description(),
		})
	}
	return Result{Valid: false, Errors: Group(violations)}
}

type group struct {
	count        int
	message      string
	originalPath string
	maskedPath   string
}

// Group collapses violations that share a message at the same location across
// array elements. Array indexes are masked to [*]; groups seen more than once are
// reported with the masked path and an "(xN)" suffix, singletons keep the
// original path. Order follows the first occurrence of each group.
func Group(violations []Violation) []string {
	var order []string
	groups := make(map[string]*group)

	for _, v := range violations {
		masked := arrayIndexPattern.ReplaceAllString(v.Path, "[*]")
		key := masked + " " + v.Message
		g, ok := groups[key]
		if !ok {
			g = &group{message: v.Message, originalPath: v.Path, maskedPath: masked}
			groups[key] = g
			order = append(order, key)
		}
		g.count++
	}

	errs := make([]string, 0, len(order))
	for _, key := range order {
		g := groups[key]
		if g.count > 1 {
			errs = append(errs, fmt.Sprintf("%s %s (x%d)", g.maskedPath, g.message, g.count))
		} else {
			errs = append(errs, fmt.Sprintf("%s %s", g.originalPath, g.message))
		}
	}
	if len(errs) == 0 {
		return []string{unknownError}
	}
	return errs
}

// contextPath renders a gojsonschema context as items[0].name, or <root>.
// data is walked alongside the segments so that only array elements get the
// [N] form; object keys made of digits render as ['200'].
func contextPath(ctx *gojsonschema.JsonContext, data any) string {
	if ctx == nil {
		return rootPath
	}
	segments := strings.Split(ctx.String(pathSep), pathSep)
	if len(segments) > 0 && segments[0] == "(root)" {
		segments = segments[1:]
	}

	var b strings.Builder
	node := data
	for _, seg := range segments {
		switch current := node.(type) {
		case []any:
			if i, err := strconv.Atoi(seg); err == nil && i >= 0 && i < len(current) {
				b.WriteString("[" + seg + "]")
				node = current[i]
				continue
			}
			node = nil
		case map[string]any:
			node = current[seg]
		default:
			node = nil
		}
		if _, err := strconv.Atoi(seg); err == nil {
			b.WriteString("['" + seg + "']")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	if b.Len() == 0 {
		return rootPath
	}
	return b.String()
}
