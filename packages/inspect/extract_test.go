package inspect

import (
	"testing"
	"time"

	"github.com/abdul-hamid-achik/hitmux/packages/response"
	"github.com/stretchr/testify/assert"
)

func newResponse(body string) *response.Response {
	headers := response.NewHeaders()
	headers.Set("contentType", "application/json")
	headers.Set("xRequestId", "abc-123")

	var b []byte
	if body != "" {
		b = []byte(body)
	}
	return &response.Response{
		StatusCode: 201,
		Headers:    headers,
		Body:       b,
		Duration:   1500 * time.Millisecond,
	}
}

func TestExtractor(t *testing.T) {
	resp := newResponse(`{"id":7,"name":"hitmux","items":[{"tags":["a","b"]}],"ok":true}`)
	e := NewExtractor(resp)

	tests := []struct {
		expr   string
		want   any
		wantOK bool
	}{
		{"status", 201, true},
		{"duration", int64(1500), true},
		{"header.Content-Type", "application/json", true},
		{"header.xRequestId", "abc-123", true},
		{"header.X-Missing", nil, false},
		{"body.name", "hitmux", true},
		{"body.id", float64(7), true},
		{"items[0].tags[1]", "b", true},
		{"body.ok", true, true},
		{"body.nope", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, ok := e.Extract(tt.expr)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractorPlainBody(t *testing.T) {
	e := NewExtractor(newResponse("hello"))

	got, ok := e.Extract("body")
	assert.True(t, ok)
	assert.Equal(t, "hello", got)

	_, ok = e.Extract("body.field")
	assert.False(t, ok)
}

func TestExtractorEmptyBody(t *testing.T) {
	_, ok := NewExtractor(newResponse("")).Extract("body")
	assert.False(t, ok)
}

func TestExtractAll(t *testing.T) {
	resp := newResponse(`{"a":1}`)
	got := ExtractAll(resp, []string{"status", "body.a", "body.b"})
	assert.Equal(t, map[string]any{"status": 201, "body.a": float64(1)}, got)
}

func TestExtract(t *testing.T) {
	body := []byte(`{"user":{"name":"ann","roles":["admin"]},"count":3}`)

	v, ok := Extract(body, "user.name")
	assert.True(t, ok)
	assert.Equal(t, "ann", v)

	v, ok = Extract(body, "user.roles[0]")
	assert.True(t, ok)
	assert.Equal(t, "admin", v)

	v, ok = Extract(body, "user")
	assert.True(t, ok)
	assert.JSONEq(t, `{"name":"ann","roles":["admin"]}`, v)

	v, ok = Extract(body, "count")
	assert.True(t, ok)
	assert.Equal(t, "3", v)

	_, ok = Extract(body, "missing")
	assert.False(t, ok)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "null", Format(nil))
	assert.Equal(t, "x", Format("x"))
	assert.Equal(t, "7", Format(float64(7)))
	assert.Equal(t, "1.5", Format(1.5))
	assert.Equal(t, "true", Format(true))
}
