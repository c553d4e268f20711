package batch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitmux/packages/core/config"
	"github.com/abdul-hamid-achik/hitmux/packages/core/env"
	"github.com/abdul-hamid-achik/hitmux/packages/transport"
	"gopkg.in/yaml.v3"
)

// File is a parsed batch file
type File struct {
	Path      string         `yaml:"-"`
	Variables map[string]any `yaml:"variables,omitempty"`
	Requests  []*Request     `yaml:"requests"`
}

// Request is one entry of a batch. Unset fields fall back to the context
// defaults.
type Request struct {
	Name            string            `yaml:"name,omitempty"`
	Method          string            `yaml:"method,omitempty"`
	URL             string            `yaml:"url"`
	Query           map[string]string `yaml:"query,omitempty"`
	Headers         map[string]string `yaml:"headers,omitempty"`
	Body            string            `yaml:"body,omitempty"`
	JSON            any               `yaml:"json,omitempty"`
	Timeout         int               `yaml:"timeout,omitempty"` // milliseconds
	FollowRedirects *bool             `yaml:"followRedirects,omitempty"`
	MaxRedirects    *int              `yaml:"maxRedirects,omitempty"`
	Cookies         string            `yaml:"cookies,omitempty"`
	Insecure        *bool             `yaml:"insecure,omitempty"`
}

// Label names the request in output: its name, else its URL.
func (r *Request) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.URL
}

// ParseFile reads and parses a batch file.
func ParseFile(path string, resolver *env.Resolver) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read batch file: %w", err)
	}

	f, err := Parse(data, resolver)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.Path = path
	return f, nil
}

// Parse decodes a batch document and resolves its placeholders. The file's
// own variables are added to resolver before any request is resolved. A nil
// resolver gets a fresh one.
func Parse(data []byte, resolver *env.Resolver) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("invalid batch file: %w", err)
	}

	if len(f.Requests) == 0 {
		return nil, fmt.Errorf("batch file has no requests")
	}

	for i, req := range f.Requests {
		if req == nil {
			return nil, fmt.Errorf("request %d is empty", i)
		}
		if req.Body != "" && req.JSON != nil {
			return nil, fmt.Errorf("request %d (%s): body and json are mutually exclusive", i, req.Label())
		}
		if req.Timeout < 0 {
			return nil, fmt.Errorf("request %d (%s): timeout must not be negative", i, req.Label())
		}
	}

	if resolver == nil {
		resolver = env.NewResolver()
	}
	resolver.SetVariables(f.Variables)
	for _, req := range f.Requests {
		req.resolve(resolver)
	}

	return &f, nil
}

// FromURLs builds a batch of plain GET requests.
func FromURLs(urls []string) *File {
	f := &File{Requests: make([]*Request, 0, len(urls))}
	for _, u := range urls {
		f.Requests = append(f.Requests, &Request{URL: u})
	}
	return f
}

func (r *Request) resolve(resolver *env.Resolver) {
	r.URL = resolver.Resolve(r.URL)
	r.Body = resolver.Resolve(r.Body)
	r.Cookies = resolver.Resolve(r.Cookies)
	if len(r.Headers) > 0 {
		r.Headers = resolver.ResolveAll(r.Headers)
	}
	if len(r.Query) > 0 {
		r.Query = resolver.ResolveAll(r.Query)
	}
}

// Options converts every request to a transport option set, in file order.
// share is attached to each request when not nil.
func (f *File) Options(share transport.Share) ([]transport.Options, error) {
	out := make([]transport.Options, 0, len(f.Requests))
	for i, req := range f.Requests {
		opts, err := req.Options()
		if err != nil {
			return nil, fmt.Errorf("request %d (%s): %w", i, req.Label(), err)
		}
		if share != nil {
			opts[transport.OptShare] = share
		}
		out = append(out, opts)
	}
	return out, nil
}

// Options converts the request. Only fields that are set produce options, so
// context defaults apply to the rest.
func (r *Request) Options() (transport.Options, error) {
	opts := transport.Options{}

	target := r.URL
	if len(r.Query) > 0 {
		u, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("invalid url: %w", err)
		}
		q := u.Query()
		for k, v := range r.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		target = u.String()
	}
	if target != "" {
		opts[transport.OptURL] = target
	}

	if r.Method != "" {
		opts[transport.OptCustomRequest] = strings.ToUpper(r.Method)
	}

	headers := make(map[string]string, len(r.Headers)+1)
	for k, v := range r.Headers {
		headers[k] = v
	}

	switch {
	case r.JSON != nil:
		body, err := json.Marshal(normalizeYAML(r.JSON))
		if err != nil {
			return nil, fmt.Errorf("encoding json body: %w", err)
		}
		opts[transport.OptPostFields] = body
		if !hasHeader(headers, "Content-Type") {
			headers["Content-Type"] = "application/json"
		}
	case r.Body != "":
		opts[transport.OptPostFields] = r.Body
	}

	if len(headers) > 0 {
		opts[transport.OptHTTPHeader] = config.HeaderLines(headers)
	}
	if r.Timeout > 0 {
		opts[transport.OptTimeout] = time.Duration(r.Timeout) * time.Millisecond
	}
	if r.FollowRedirects != nil {
		opts[transport.OptFollowLocation] = *r.FollowRedirects
	}
	if r.MaxRedirects != nil {
		if *r.MaxRedirects < 0 {
			return nil, fmt.Errorf("maxRedirects must not be negative")
		}
		opts[transport.OptMaxRedirs] = *r.MaxRedirects
	}
	if r.Cookies != "" {
		opts[transport.OptCookie] = r.Cookies
	}
	if r.Insecure != nil {
		opts[transport.OptSSLVerifyPeer] = !*r.Insecure
	}

	return opts, nil
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

// normalizeYAML turns the map[string]any trees yaml.v3 produces into values
// encoding/json accepts, stringifying non-string keys.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeYAML(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalizeYAML(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeYAML(item)
		}
		return out
	}
	return v
}
