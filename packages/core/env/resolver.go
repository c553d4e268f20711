package env

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
)

var variablePattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// WarnFunc is a function type for handling warnings
type WarnFunc func(format string, args ...any)

// Resolver substitutes placeholders. It is safe for concurrent use.
type Resolver struct {
	mu        sync.RWMutex
	variables map[string]any
	overrides map[string]string
	dotenv    map[string]string
	warnFunc  WarnFunc
}

func NewResolver() *Resolver {
	return &Resolver{
		variables: make(map[string]any),
		overrides: make(map[string]string),
		dotenv:    make(map[string]string),
	}
}

// Clone returns an independent copy, e.g. to resolve one file without its
// variables leaking into the next.
func (r *Resolver) Clone() *Resolver {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := NewResolver()
	c.warnFunc = r.warnFunc
	for k, v := range r.variables {
		c.variables[k] = v
	}
	for k, v := range r.overrides {
		c.overrides[k] = v
	}
	for k, v := range r.dotenv {
		c.dotenv[k] = v
	}
	return c
}

// SetWarnFunc sets a function to be called for unresolved placeholders
func (r *Resolver) SetWarnFunc(fn WarnFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnFunc = fn
}

func (r *Resolver) warn(format string, args ...any) {
	r.mu.RLock()
	fn := r.warnFunc
	r.mu.RUnlock()
	if fn != nil {
		fn(format, args...)
	}
}

func (r *Resolver) SetVariables(vars map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range vars {
		r.variables[k] = v
	}
}

func (r *Resolver) SetVariable(name string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variables[name] = value
}

// SetOverride sets a value that wins over any variable of the same name,
// including ones set later.
func (r *Resolver) SetOverride(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[name] = value
}

func (r *Resolver) GetVariable(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.overrides[name]; ok {
		return v, true
	}
	v, ok := r.variables[name]
	return v, ok
}

// lookup resolves one placeholder expression without warning.
func (r *Resolver) lookup(expr string) (string, bool) {
	if strings.HasPrefix(expr, "$") {
		name := expr[1:]
		if val, ok := os.LookupEnv(name); ok && val != "" {
			return val, true
		}
		r.mu.RLock()
		defer r.mu.RUnlock()
		val, ok := r.dotenv[name]
		return val, ok
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if val, ok := r.overrides[expr]; ok {
		return val, true
	}
	if val, ok := r.variables[expr]; ok {
		return fmt.Sprintf("%v", val), true
	}
	return "", false
}

func (r *Resolver) Resolve(input string) string {
	return variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		expr := strings.TrimSpace(match[2 : len(match)-2])
		if val, ok := r.lookup(expr); ok {
			return val
		}
		if strings.HasPrefix(expr, "$") {
			r.warn("unresolved environment variable: %s", expr)
		} else {
			r.warn("unresolved variable: %s", expr)
		}
		return match
	})
}

func (r *Resolver) ResolveAll(values map[string]string) map[string]string {
	result := make(map[string]string, len(values))
	for k, v := range values {
		result[k] = r.Resolve(v)
	}
	return result
}

// Unresolved lists the placeholder expressions in input that would stay
// unresolved, in order of appearance and without duplicates.
func (r *Resolver) Unresolved(input string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range variablePattern.FindAllStringSubmatch(input, -1) {
		expr := strings.TrimSpace(m[1])
		if seen[expr] {
			continue
		}
		seen[expr] = true
		if _, ok := r.lookup(expr); !ok {
			out = append(out, expr)
		}
	}
	return out
}
