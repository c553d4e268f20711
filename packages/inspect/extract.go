package inspect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/abdul-hamid-achik/hitmux/packages/response"
	"github.com/tidwall/gjson"
)

var bracketIndex = regexp.MustCompile(`\[(\d+)\]`)

// Extractor evaluates expressions against one response.
type Extractor struct {
	response *response.Response
	bodyJSON gjson.Result
}

func NewExtractor(resp *response.Response) *Extractor {
	e := &Extractor{response: resp}
	if gjson.ValidBytes(resp.Body) {
		e.bodyJSON = gjson.ParseBytes(resp.Body)
	}
	return e
}

// Extract evaluates expr. The second result is false when expr selects
// nothing.
func (e *Extractor) Extract(expr string) (any, bool) {
	expr = strings.TrimSpace(expr)
	switch {
	case expr == "status":
		return e.response.StatusCode, true
	case expr == "duration":
		return e.response.DurationMs(), true
	case strings.HasPrefix(expr, "header."):
		return e.extractFromHeader(strings.TrimPrefix(expr, "header."))
	case expr == "body":
		return e.extractFromBody("")
	case strings.HasPrefix(expr, "body."):
		return e.extractFromBody(strings.TrimPrefix(expr, "body."))
	default:
		return e.extractFromBody(expr)
	}
}

func (e *Extractor) extractFromBody(path string) (any, bool) {
	if !e.bodyJSON.Exists() {
		if path == "" && e.response.Body != nil {
			return e.response.BodyString(), true
		}
		return nil, false
	}

	if path == "" {
		return e.bodyJSON.Value(), true
	}

	result := e.bodyJSON.Get(toGJSONPath(path))
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

func (e *Extractor) extractFromHeader(name string) (any, bool) {
	value := e.response.Header(name)
	if value == "" {
		return nil, false
	}
	return value, true
}

// ExtractAll evaluates every expression, keyed by expression. Expressions
// that select nothing are left out.
func ExtractAll(resp *response.Response, exprs []string) map[string]any {
	extractor := NewExtractor(resp)
	results := make(map[string]any, len(exprs))
	for _, expr := range exprs {
		if value, ok := extractor.Extract(expr); ok {
			results[expr] = value
		}
	}
	return results
}

// Extract returns the raw JSON text at path in body. Strings are returned
// unquoted.
func Extract(body []byte, path string) (string, bool) {
	result := gjson.GetBytes(body, toGJSONPath(path))
	if !result.Exists() {
		return "", false
	}
	if result.Type == gjson.String {
		return result.Str, true
	}
	return result.Raw, true
}

// Format renders an extracted value for display.
func Format(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// toGJSONPath converts bracket indexes to gjson dot notation:
// items[0].tags[1] becomes items.0.tags.1.
func toGJSONPath(path string) string {
	path = bracketIndex.ReplaceAllString(path, ".$1")
	return strings.TrimPrefix(path, ".")
}
