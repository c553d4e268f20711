package env

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolverResolve(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		variables map[string]any
		expected  string
	}{
		{
			name:     "no variables",
			input:    "hello world",
			expected: "hello world",
		},
		{
			name:      "simple variable",
			input:     "hello {{name}}",
			variables: map[string]any{"name": "world"},
			expected:  "hello world",
		},
		{
			name:      "multiple variables",
			input:     "{{greeting}} {{name}}!",
			variables: map[string]any{"greeting": "Hello", "name": "World"},
			expected:  "Hello World!",
		},
		{
			name:      "whitespace inside braces",
			input:     "{{ baseUrl }}/users",
			variables: map[string]any{"baseUrl": "http://localhost"},
			expected:  "http://localhost/users",
		},
		{
			name:      "non-string value",
			input:     "/sleep?ms={{delay}}",
			variables: map[string]any{"delay": 200},
			expected:  "/sleep?ms=200",
		},
		{
			name:     "unresolved stays as-is",
			input:    "hello {{unknown}}",
			expected: "hello {{unknown}}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver()
			r.SetVariables(tt.variables)
			assert.Equal(t, tt.expected, r.Resolve(tt.input))
		})
	}
}

func TestResolverEnvironment(t *testing.T) {
	t.Setenv("HITMUX_TEST_TOKEN", "s3cret")

	r := NewResolver()
	assert.Equal(t, "Bearer s3cret", r.Resolve("Bearer {{$HITMUX_TEST_TOKEN}}"))
	assert.Equal(t, "{{$HITMUX_TEST_MISSING}}", r.Resolve("{{$HITMUX_TEST_MISSING}}"))
}

func TestResolverWarnsOnUnresolved(t *testing.T) {
	var warnings []string
	r := NewResolver()
	r.SetWarnFunc(func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	})

	r.Resolve("{{missing}} {{$HITMUX_TEST_MISSING}}")

	assert.Equal(t, []string{
		"unresolved variable: missing",
		"unresolved environment variable: $HITMUX_TEST_MISSING",
	}, warnings)
}

func TestResolverUnresolved(t *testing.T) {
	r := NewResolver()
	r.SetVariable("foo", "bar")

	assert.Nil(t, r.Unresolved("{{foo}} plain"))
	assert.Equal(t, []string{"bar", "baz"}, r.Unresolved("{{foo}} {{bar}} {{baz}} {{bar}}"))
}

func TestResolverResolveAll(t *testing.T) {
	r := NewResolver()
	r.SetVariable("token", "abc")

	got := r.ResolveAll(map[string]string{
		"Authorization": "Bearer {{token}}",
		"Accept":        "application/json",
	})

	assert.Equal(t, map[string]string{
		"Authorization": "Bearer abc",
		"Accept":        "application/json",
	}, got)
}

func TestResolverOverrides(t *testing.T) {
	r := NewResolver()
	r.SetOverride("base", "http://override")
	r.SetVariables(map[string]any{"base": "http://file", "other": 1})

	assert.Equal(t, "http://override/x", r.Resolve("{{base}}/x"))

	v, ok := r.GetVariable("base")
	assert.True(t, ok)
	assert.Equal(t, "http://override", v)
}

func TestResolverClone(t *testing.T) {
	r := NewResolver()
	r.SetVariable("a", "1")
	r.SetOverride("b", "2")

	c := r.Clone()
	c.SetVariable("a", "changed")
	c.SetVariable("c", "3")

	assert.Equal(t, "1 2 {{c}}", r.Resolve("{{a}} {{b}} {{c}}"))
	assert.Equal(t, "changed 2 3", c.Resolve("{{a}} {{b}} {{c}}"))
}
