package mock

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(w http.ResponseWriter, r *http.Request, _ map[string]string) {}

func TestRouterMatch(t *testing.T) {
	r := NewRouter()
	r.Handle(http.MethodGet, "/users", "list", noop)
	r.Handle(http.MethodGet, "/users/{{id}}", "get", noop)
	r.Handle("", "/any/{{a}}/{{b}}", "any", noop)

	tests := []struct {
		method string
		path   string
		name   string
		params map[string]string
	}{
		{"GET", "/users", "list", map[string]string{}},
		{"GET", "/users/", "list", map[string]string{}},
		{"get", "users/42", "get", map[string]string{"id": "42"}},
		{"DELETE", "/any/x/y", "any", map[string]string{"a": "x", "b": "y"}},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			route, params := r.Match(tt.method, tt.path)
			require.NotNil(t, route)
			assert.Equal(t, tt.name, route.Name)
			assert.Equal(t, tt.params, params)
		})
	}

	route, _ := r.Match(http.MethodPost, "/users")
	assert.Nil(t, route)
	route, _ = r.Match(http.MethodGet, "/users/1/posts")
	assert.Nil(t, route)
}

func TestRouterKeepsRegistrationOrder(t *testing.T) {
	r := NewRouter()
	r.Handle("", "/a", "a", noop)
	r.Handle("", "/b", "b", noop)

	routes := r.Routes()
	require.Len(t, routes, 2)
	assert.Equal(t, "a", routes[0].Name)
	assert.Equal(t, "/b", routes[1].PathPattern)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer().Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, client *http.Client, url string) *http.Response {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServerRoutes(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	t.Run("blank", func(t *testing.T) {
		resp := get(t, client, srv.URL+"/")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, int64(0), resp.ContentLength)
	})

	t.Run("blank is GET only", func(t *testing.T) {
		resp, err := client.Post(srv.URL+"/", "text/plain", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("print", func(t *testing.T) {
		resp := get(t, client, srv.URL+"/print?content=hi")
		assert.Equal(t, HTMLContentType, resp.Header.Get("Content-Type"))
	})

	t.Run("status", func(t *testing.T) {
		assert.Equal(t, 418, get(t, client, srv.URL+"/status/418").StatusCode)
		assert.Equal(t, http.StatusBadRequest, get(t, client, srv.URL+"/status/abc").StatusCode)
	})

	t.Run("sleep", func(t *testing.T) {
		start := time.Now()
		resp := get(t, client, srv.URL+"/sleep?ms=50")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

		assert.Equal(t, http.StatusBadRequest, get(t, client, srv.URL+"/sleep?ms=-1").StatusCode)
	})

	t.Run("setcookie", func(t *testing.T) {
		resp := get(t, client, srv.URL+"/setcookie?name=token&value=a%20b")
		cookies := resp.Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "token", cookies[0].Name)
		assert.Equal(t, "a+b", cookies[0].Value)

		assert.Equal(t, http.StatusBadRequest, get(t, client, srv.URL+"/setcookie").StatusCode)
	})

	t.Run("headers", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/headers", nil)
		require.NoError(t, err)
		req.Header.Set("X-Test", "yes")
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		var headers map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&headers))
		assert.Equal(t, "yes", headers["X-Test"])
	})

	t.Run("redirect", func(t *testing.T) {
		noFollow := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
		resp := get(t, noFollow, srv.URL+"/redirect/2")
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/redirect/1", resp.Header.Get("Location"))

		resp = get(t, client, srv.URL+"/redirect/3")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "/", resp.Request.URL.Path)
	})

	t.Run("not found", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get(t, client, srv.URL+"/missing").StatusCode)
	})
}

func TestServerServeStopsWithContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewServer(WithDelay(time.Millisecond)).Serve(ctx, ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
