package transport

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/hitmux/packages/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(mock.NewServer().Handler())
	t.Cleanup(srv.Close)
	return srv
}

// drive runs handles to completion and returns their results by position.
func drive(t *testing.T, tr *NetTransport, handles ...Handle) []Message {
	t.Helper()

	index := make(map[Handle]int, len(handles))
	for i, h := range handles {
		require.NoError(t, tr.Add(h))
		index[h] = i
	}

	results := make([]Message, len(handles))
	deadline := time.Now().Add(10 * time.Second)
	for {
		running, err := tr.Perform()
		require.NoError(t, err)

		for {
			msg, ok := tr.InfoRead()
			if !ok {
				break
			}
			results[index[msg.Handle]] = msg
		}
		if running == 0 {
			break
		}
		require.True(t, time.Now().Before(deadline), "transfers did not finish")
		_, err = tr.Wait(time.Second)
		require.NoError(t, err)
	}

	for _, h := range handles {
		require.NoError(t, tr.Remove(h))
	}
	return results
}

func TestNetTransportFetch(t *testing.T) {
	srv := newMockServer(t)
	tr := NewNetTransport()
	defer tr.Close()

	h, err := tr.NewHandle(Options{
		OptURL:            srv.URL + "/print?content=hello",
		OptReturnTransfer: true,
		OptHeader:         true,
	})
	require.NoError(t, err)

	results := drive(t, tr, h)
	assert.Equal(t, CodeOK, results[0].Result)

	content := string(h.Content())
	size := h.HeaderSize()
	require.Greater(t, size, 0)
	assert.True(t, strings.HasPrefix(content, "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, content[:size], "Content-Type: "+mock.HTMLContentType+"\r\n")
	assert.True(t, strings.HasSuffix(content[:size], "\r\n\r\n"))
	assert.Equal(t, "hello", content[size:])

	info := h.Info()
	assert.Equal(t, 200, info.StatusCode)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, srv.URL+"/print?content=hello", info.EffectiveURL)

	require.NoError(t, h.Close())
	assert.Nil(t, h.Content())
}

func TestNetTransportBodyOnly(t *testing.T) {
	srv := newMockServer(t)
	tr := NewNetTransport()
	defer tr.Close()

	h, err := tr.NewHandle(Options{
		OptURL:            srv.URL + "/print?content=body",
		OptReturnTransfer: true,
	})
	require.NoError(t, err)

	drive(t, tr, h)
	assert.Equal(t, 0, h.HeaderSize())
	assert.Equal(t, "body", string(h.Content()))
}

func TestNetTransportWritesToFile(t *testing.T) {
	srv := newMockServer(t)
	tr := NewNetTransport()
	defer tr.Close()

	var out bytes.Buffer
	h, err := tr.NewHandle(Options{
		OptURL:  srv.URL + "/print?content=streamed",
		OptFile: &out,
	})
	require.NoError(t, err)

	results := drive(t, tr, h)
	assert.Equal(t, CodeOK, results[0].Result)
	assert.Equal(t, "streamed", out.String())
	assert.Empty(t, h.Content())
}

func TestNetTransportRequestOptions(t *testing.T) {
	srv := newMockServer(t)
	tr := NewNetTransport()
	defer tr.Close()

	h, err := tr.NewHandle(Options{
		OptURL:            srv.URL + "/headers",
		OptHTTPHeader:     []string{"X-Trace: abc", "not a header"},
		OptUserAgent:      "hitmux-test",
		OptCookie:         "session=1",
		OptReturnTransfer: true,
		OptHeaderOut:      true,
	})
	require.NoError(t, err)

	drive(t, tr, h)
	body := string(h.Content())
	assert.Contains(t, body, `"X-Trace":"abc"`)
	assert.Contains(t, body, `"User-Agent":"hitmux-test"`)
	assert.Contains(t, body, `"Cookie":"session=1"`)

	out := h.Info().HeaderOut
	assert.True(t, strings.HasPrefix(out, "GET /headers HTTP/1.1\r\n"))
	assert.Contains(t, out, "X-Trace: abc\r\n")
}

func TestNetTransportKeepsTransferEncoding(t *testing.T) {
	server := mock.NewServer()
	server.Router().Handle(http.MethodGet, "/chunked", "chunked", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		w.Header().Set("Zeta", "1")
		w.Header().Set("Alpha", "2")
		_, _ = w.Write([]byte("part one, "))
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte("part two"))
	})
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	tr := NewNetTransport()
	defer tr.Close()

	h, err := tr.NewHandle(Options{OptURL: srv.URL + "/chunked", OptReturnTransfer: true, OptHeader: true})
	require.NoError(t, err)

	results := drive(t, tr, h)
	require.Equal(t, CodeOK, results[0].Result)

	content := string(h.Content())
	block := content[:h.HeaderSize()]
	assert.Contains(t, block, "Transfer-Encoding: chunked\r\n")
	assert.Less(t, strings.Index(block, "Alpha: 2"), strings.Index(block, "Zeta: 1"))
	assert.Equal(t, "part one, part two", content[h.HeaderSize():])
}

func TestNetTransportPostFieldsImplyPost(t *testing.T) {
	router := mock.NewServer()
	router.Router().Handle("", "/method", "method", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		_, _ = w.Write([]byte(r.Method))
	})
	methodSrv := httptest.NewServer(router.Handler())
	defer methodSrv.Close()

	tr := NewNetTransport()
	defer tr.Close()

	post, err := tr.NewHandle(Options{OptURL: methodSrv.URL + "/method", OptPostFields: "a=1", OptReturnTransfer: true})
	require.NoError(t, err)
	put, err := tr.NewHandle(Options{OptURL: methodSrv.URL + "/method", OptPostFields: "a=1", OptCustomRequest: "PUT", OptReturnTransfer: true})
	require.NoError(t, err)

	drive(t, tr, post, put)
	assert.Equal(t, "POST", string(post.Content()))
	assert.Equal(t, "PUT", string(put.Content()))
}

func TestNetTransportFailures(t *testing.T) {
	srv := newMockServer(t)
	tr := NewNetTransport()
	defer tr.Close()

	tests := []struct {
		name string
		opts Options
		want Code
	}{
		{"missing url", Options{}, CodeURLMalformat},
		{"unsupported scheme", Options{OptURL: "ftp://example.com/x"}, CodeUnsupportedProtocol},
		{"too many redirects", Options{OptURL: srv.URL + "/redirect/3", OptFollowLocation: true, OptMaxRedirs: 1}, CodeTooManyRedirects},
		{"timeout", Options{OptURL: srv.URL + "/sleep?ms=500", OptTimeout: 50 * time.Millisecond}, CodeOperationTimedout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := tr.NewHandle(tt.opts)
			require.NoError(t, err)
			results := drive(t, tr, h)
			assert.Equal(t, tt.want, results[0].Result)
			assert.Error(t, results[0].Err)
		})
	}
}

func TestNetTransportRedirects(t *testing.T) {
	srv := newMockServer(t)
	tr := NewNetTransport()
	defer tr.Close()

	follow, err := tr.NewHandle(Options{OptURL: srv.URL + "/redirect/2", OptFollowLocation: true})
	require.NoError(t, err)
	stay, err := tr.NewHandle(Options{OptURL: srv.URL + "/redirect/2"})
	require.NoError(t, err)

	results := drive(t, tr, follow, stay)
	assert.Equal(t, CodeOK, results[0].Result)
	assert.Equal(t, CodeOK, results[1].Result)
	assert.Equal(t, 200, follow.Info().StatusCode)
	assert.Equal(t, srv.URL+"/", follow.Info().EffectiveURL)
	assert.Equal(t, 302, stay.Info().StatusCode)
}

func TestNetTransportStatusIsNotAFailure(t *testing.T) {
	srv := newMockServer(t)
	tr := NewNetTransport()
	defer tr.Close()

	h, err := tr.NewHandle(Options{OptURL: srv.URL + "/status/503"})
	require.NoError(t, err)

	results := drive(t, tr, h)
	assert.Equal(t, CodeOK, results[0].Result)
	assert.Equal(t, 503, h.Info().StatusCode)
}

func TestNetTransportReusesConnections(t *testing.T) {
	srv := newMockServer(t)
	tr := NewNetTransport()
	defer tr.Close()

	var trace bytes.Buffer
	opts := Options{OptURL: srv.URL + "/", OptVerbose: true, OptStderr: &trace}

	first, err := tr.NewHandle(opts)
	require.NoError(t, err)
	drive(t, tr, first)
	assert.False(t, first.Info().ConnectionReused)

	second, err := tr.NewHandle(opts)
	require.NoError(t, err)
	drive(t, tr, second)
	assert.True(t, second.Info().ConnectionReused)
	assert.Contains(t, trace.String(), "Re-using existing connection!")
}

func TestNetTransportReusesSharedConnections(t *testing.T) {
	srv := newMockServer(t)
	tr := NewNetTransport()
	defer tr.Close()

	share, err := tr.NewShare(ShareSettings{LockDataConnect: ShareLock})
	require.NoError(t, err)
	defer share.Close()

	var trace bytes.Buffer
	opts := Options{OptURL: srv.URL + "/", OptShare: share, OptVerbose: true, OptStderr: &trace}

	first, err := tr.NewHandle(opts)
	require.NoError(t, err)
	drive(t, tr, first)

	second, err := tr.NewHandle(opts)
	require.NoError(t, err)
	drive(t, tr, second)

	assert.True(t, second.Info().ConnectionReused)
	assert.Equal(t, 1, strings.Count(trace.String(), "Re-using existing connection!"))
}

func TestNetTransportVerboseHandlesShareWriter(t *testing.T) {
	srv := newMockServer(t)
	tr := NewNetTransport()
	defer tr.Close()

	require.NoError(t, tr.SetOption(MultiPipelining, PipeHTTP1))

	var trace bytes.Buffer
	handles := make([]Handle, 8)
	for i := range handles {
		h, err := tr.NewHandle(Options{OptURL: srv.URL + "/sleep?ms=20", OptVerbose: true, OptStderr: &trace})
		require.NoError(t, err)
		handles[i] = h
	}

	results := drive(t, tr, handles...)
	for _, msg := range results {
		assert.Equal(t, CodeOK, msg.Result)
	}

	log := trace.String()
	assert.Equal(t, len(handles), strings.Count(log, "Server doesn't support pipelining"))
	assert.Equal(t, len(handles), strings.Count(log, "response received"))
	for _, line := range strings.Split(strings.TrimSpace(log), "\n") {
		assert.True(t, strings.HasPrefix(line, "{") && strings.HasSuffix(line, "}"), line)
	}
}

func TestNetTransportPipeliningFallbackIsLogged(t *testing.T) {
	srv := newMockServer(t)
	tr := NewNetTransport()
	defer tr.Close()

	require.NoError(t, tr.SetOption(MultiPipelining, PipeMultiplex))

	var trace bytes.Buffer
	h, err := tr.NewHandle(Options{OptURL: srv.URL + "/", OptVerbose: true, OptStderr: &trace})
	require.NoError(t, err)
	drive(t, tr, h)

	assert.Contains(t, trace.String(), "Server doesn't support multiplex")
}

func TestNetTransportSharedCookies(t *testing.T) {
	srv := newMockServer(t)
	tr := NewNetTransport()
	defer tr.Close()

	share, err := tr.NewShare(ShareSettings{LockDataCookie: ShareLock, LockDataConnect: ShareLock})
	require.NoError(t, err)
	defer share.Close()

	set, err := tr.NewHandle(Options{OptURL: srv.URL + "/setcookie?name=token&value=a%20b", OptShare: share})
	require.NoError(t, err)
	drive(t, tr, set)

	shared, err := tr.NewHandle(Options{OptURL: srv.URL + "/", OptShare: share, OptHeaderOut: true})
	require.NoError(t, err)
	isolated, err := tr.NewHandle(Options{OptURL: srv.URL + "/", OptHeaderOut: true})
	require.NoError(t, err)
	drive(t, tr, shared, isolated)

	assert.Contains(t, shared.Info().HeaderOut, "Cookie: token=a+b\r\n")
	assert.NotContains(t, isolated.Info().HeaderOut, "Cookie:")
}

func TestNetTransportShareValidation(t *testing.T) {
	tr := NewNetTransport()
	defer tr.Close()

	_, err := tr.NewShare(ShareSettings{LockData(99): ShareLock})
	var optErr *OptionError
	assert.True(t, errors.As(err, &optErr))

	share, err := tr.NewShare(ShareSettings{LockDataCookie: ShareLock})
	require.NoError(t, err)
	require.NoError(t, share.Close())
	require.NoError(t, share.Close())

	_, err = tr.NewHandle(Options{OptURL: "http://example.com", OptShare: share})
	assert.True(t, errors.As(err, &optErr))
}

func TestNetTransportSetOption(t *testing.T) {
	tr := NewNetTransport()
	defer tr.Close()

	assert.NoError(t, tr.SetOption(MultiPipelining, PipeHTTP1))
	assert.NoError(t, tr.SetOption(MultiPipelining, 2))
	assert.NoError(t, tr.SetOption(MultiMaxHostConnections, 4))
	assert.NoError(t, tr.SetOption(MultiMaxTotalConnections, 0))
	assert.NoError(t, tr.SetOption(MultiMaxRequestRate, 10))
	assert.NoError(t, tr.SetOption(MultiMaxRequestRate, 0.0))

	var optErr *OptionError
	assert.True(t, errors.As(tr.SetOption(MultiPipelining, 7), &optErr))
	assert.True(t, errors.As(tr.SetOption(MultiPipelining, "off"), &optErr))
	assert.True(t, errors.As(tr.SetOption(MultiMaxHostConnections, -1), &optErr))
	assert.True(t, errors.As(tr.SetOption(MultiMaxRequestRate, -1.0), &optErr))
	assert.True(t, errors.As(tr.SetOption(MultiOption(99), 1), &optErr))
}

func TestNetTransportRateLimit(t *testing.T) {
	srv := newMockServer(t)
	tr := NewNetTransport()
	defer tr.Close()

	require.NoError(t, tr.SetOption(MultiMaxRequestRate, 10.0))

	handles := make([]Handle, 3)
	for i := range handles {
		h, err := tr.NewHandle(Options{OptURL: srv.URL + "/"})
		require.NoError(t, err)
		handles[i] = h
	}

	start := time.Now()
	results := drive(t, tr, handles...)
	elapsed := time.Since(start)

	for _, msg := range results {
		assert.Equal(t, CodeOK, msg.Result)
	}
	// One token up front, then one every 100ms.
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
}

func TestNetTransportRegistration(t *testing.T) {
	tr := NewNetTransport()

	h, err := tr.NewHandle(Options{OptURL: "http://example.com"})
	require.NoError(t, err)

	require.NoError(t, tr.Add(h))
	assert.ErrorIs(t, tr.Add(h), ErrAddedAlready)
	require.NoError(t, tr.Remove(h))
	assert.ErrorIs(t, tr.Remove(h), ErrNotAdded)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	assert.ErrorIs(t, tr.Add(h), ErrClosed)
	_, err = tr.Perform()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = tr.Wait(time.Millisecond)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = tr.NewShare(nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNetTransportWaitTimesOut(t *testing.T) {
	tr := NewNetTransport()
	defer tr.Close()

	start := time.Now()
	n, err := tr.Wait(20 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
