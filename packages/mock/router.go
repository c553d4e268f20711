package mock

import (
	"net/http"
	"regexp"
	"strings"
)

// HandlerFunc serves a matched route. params holds the {{name}} path segments.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, params map[string]string)

// Route represents a mock route
type Route struct {
	Method      string // empty matches any method
	PathPattern string
	PathRegex   *regexp.Regexp
	Name        string
	Handler     HandlerFunc
}

// Router matches incoming requests to routes
type Router struct {
	routes []*Route
}

// NewRouter creates a new router
func NewRouter() *Router {
	return &Router{
		routes: make([]*Route, 0),
	}
}

// Handle registers handler for a method and a path pattern such as /status/{{code}}
func (r *Router) Handle(method, pattern, name string, handler HandlerFunc) {
	pattern = normalizePath(pattern)
	r.AddRoute(&Route{
		Method:      method,
		PathPattern: pattern,
		PathRegex:   createPathRegex(pattern),
		Name:        name,
		Handler:     handler,
	})
}

// AddRoute adds a route to the router
func (r *Router) AddRoute(route *Route) {
	r.routes = append(r.routes, route)
}

// Routes returns the registered routes in registration order
func (r *Router) Routes() []*Route {
	return r.routes
}

// Match finds a route matching the given method and path
func (r *Router) Match(method, path string) (*Route, map[string]string) {
	path = normalizePath(path)

	for _, route := range r.routes {
		if route.Method != "" && !strings.EqualFold(route.Method, method) {
			continue
		}

		if params := matchPath(route, path); params != nil {
			return route, params
		}
	}

	return nil, nil
}

func normalizePath(path string) string {
	// Ensure path starts with /
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	// Remove trailing slash (except for root)
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path
}

func createPathRegex(pattern string) *regexp.Regexp {
	parts := regexp.MustCompile(`\{\{([^}]+)\}\}`).Split(pattern, -1)
	names := regexp.MustCompile(`\{\{([^}]+)\}\}`).FindAllStringSubmatch(pattern, -1)

	var b strings.Builder
	b.WriteString("^")
	for i, part := range parts {
		b.WriteString(regexp.QuoteMeta(part))
		if i < len(names) {
			b.WriteString(`(?P<` + names[i][1] + `>[^/]+)`)
		}
	}
	b.WriteString("$")

	regex, err := regexp.Compile(b.String())
	if err != nil {
		// Fallback to literal match
		return regexp.MustCompile("^" + regexp.QuoteMeta(pattern) + "$")
	}
	return regex
}

func matchPath(route *Route, path string) map[string]string {
	if route.PathRegex != nil {
		matches := route.PathRegex.FindStringSubmatch(path)
		if matches != nil {
			params := make(map[string]string)
			names := route.PathRegex.SubexpNames()
			for i, name := range names {
				if i > 0 && name != "" && i < len(matches) {
					params[name] = matches[i]
				}
			}
			return params
		}
	}

	// Exact match
	if route.PathPattern == path {
		return make(map[string]string)
	}

	return nil
}
