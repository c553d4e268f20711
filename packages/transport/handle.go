package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type netHandle struct {
	id   string
	opts *resolved
	log  zerolog.Logger

	mu         sync.Mutex
	cancel     context.CancelFunc
	started    bool
	finished   bool
	content    []byte
	headerSize int
	info       Info
}

// newNetHandle builds a handle. diag receives verbose diagnostics and must
// be safe for concurrent use, since handles sharing it run in parallel.
func newNetHandle(opts *resolved, diag io.Writer) *netHandle {
	h := &netHandle{
		id:   uuid.NewString(),
		opts: opts,
		log:  zerolog.Nop(),
	}

	if opts.verbose && diag != nil {
		h.log = zerolog.New(diag).With().Timestamp().Str("handle", h.id).Logger()
	}

	h.info.ID = h.id
	return h
}

func (h *netHandle) Content() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.content
}

func (h *netHandle) HeaderSize() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.headerSize
}

func (h *netHandle) Info() Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.info
}

// Close aborts a running transfer and drops the buffered response.
func (h *netHandle) Close() error {
	h.abort()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.content = nil
	h.headerSize = 0
	return nil
}

func (h *netHandle) isStarted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

func (h *netHandle) isFinished() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finished
}

func (h *netHandle) begin(cancel context.CancelFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = true
	h.cancel = cancel
}

func (h *netHandle) markFinished() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finished = true
}

func (h *netHandle) abort() {
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// client builds the http.Client this handle runs with. Connection pooling and
// cookies come from the attached share when it holds them, otherwise from the
// transport's own pool.
func (h *netHandle) client(owner *pool) *http.Client {
	var rt *http.Transport
	var jar http.CookieJar

	if s, ok := h.opts.share.(*netShare); ok {
		rt, jar = s.resources(h.opts.verifyPeer)
	}
	if rt == nil {
		rt = owner.get(h.opts.verifyPeer)
	}

	opts := h.opts
	return &http.Client{
		Transport: &recordingTransport{next: rt, handle: h},
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if !opts.followLocation {
				return http.ErrUseLastResponse
			}
			if len(via) > opts.maxRedirs {
				return errTooManyRedirects
			}
			return nil
		},
	}
}

func (h *netHandle) perform(ctx context.Context, client *http.Client, pipelining Pipelining) (Code, error) {
	opts := h.opts
	start := time.Now()
	defer func() {
		h.mu.Lock()
		h.info.TotalTime = time.Since(start)
		h.mu.Unlock()
	}()

	if code, err := checkURL(opts.url); code != CodeOK {
		return code, err
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	method := opts.method
	if method == "" {
		method = http.MethodGet
		if opts.hasBody {
			method = http.MethodPost
		}
	}

	var body io.Reader
	if opts.hasBody {
		body = bytes.NewReader(opts.body)
	}

	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			h.mu.Lock()
			h.info.ConnectionReused = info.Reused
			h.mu.Unlock()
			if info.Reused {
				h.log.Info().Str("remote", info.Conn.RemoteAddr().String()).Msg("Re-using existing connection!")
			} else {
				h.log.Info().Str("remote", info.Conn.RemoteAddr().String()).Msg("Connected")
			}
		},
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), method, opts.url, body)
	if err != nil {
		return CodeURLMalformat, err
	}

	for _, line := range opts.headers {
		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}
		req.Header.Add(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	if opts.userAgent != "" {
		req.Header.Set("User-Agent", opts.userAgent)
	}
	if opts.cookie != "" {
		req.Header.Add("Cookie", opts.cookie)
	}

	if pipelining == PipeHTTP1 {
		h.log.Info().Msg("Server doesn't support pipelining: net/http sends each HTTP/1 request on its own connection")
	}

	resp, err := client.Do(req)
	if err != nil {
		return classify(err, false), err
	}
	defer resp.Body.Close()

	if pipelining == PipeMultiplex && resp.ProtoMajor < 2 {
		h.log.Info().Str("proto", resp.Proto).Msg("Server doesn't support multiplex, falling back to HTTP/1.x")
	}
	h.log.Info().Int("status", resp.StatusCode).Str("proto", resp.Proto).Msg("response received")

	var buf bytes.Buffer
	headerSize := 0
	if opts.includeHeader {
		writeHeaderBlock(&buf, resp)
		headerSize = buf.Len()
	}

	code := CodeOK
	var readErr error
	if opts.returnTransfer {
		if _, readErr = io.Copy(&buf, resp.Body); readErr != nil {
			code = classify(readErr, true)
		}
	} else {
		dst := opts.file
		if dst == nil {
			dst = io.Discard
		}
		sink := &sinkWriter{w: dst}
		if _, readErr = io.Copy(sink, resp.Body); readErr != nil {
			code = classify(readErr, true)
			if sink.err != nil {
				code = CodeWriteError
			}
		}
	}

	h.mu.Lock()
	h.content = buf.Bytes()
	h.headerSize = headerSize
	h.info.StatusCode = resp.StatusCode
	h.info.Proto = resp.Proto
	if resp.Request != nil && resp.Request.URL != nil {
		h.info.EffectiveURL = resp.Request.URL.String()
	}
	h.mu.Unlock()

	return code, readErr
}

func checkURL(rawURL string) (Code, error) {
	if rawURL == "" {
		return CodeURLMalformat, errors.New("no URL set")
	}
	if err := ValidateURL(rawURL); err != nil {
		if errors.Is(err, ErrUnsupportedScheme) {
			return CodeUnsupportedProtocol, err
		}
		return CodeURLMalformat, err
	}
	return CodeOK, nil
}

// writeHeaderBlock renders the status line and headers, sorted by name and
// terminated by an empty line. net/http strips Transfer-Encoding from
// resp.Header, so it is restored from resp.TransferEncoding.
func writeHeaderBlock(buf *bytes.Buffer, resp *http.Response) {
	fmt.Fprintf(buf, "%s %s\r\n", resp.Proto, resp.Status)

	header := resp.Header
	if len(resp.TransferEncoding) > 0 && header.Get("Transfer-Encoding") == "" {
		header = header.Clone()
		if header == nil {
			header = make(http.Header)
		}
		header.Set("Transfer-Encoding", strings.Join(resp.TransferEncoding, ", "))
	}

	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, v := range header[k] {
			fmt.Fprintf(buf, "%s: %s\r\n", k, v)
		}
	}
	buf.WriteString("\r\n")
}

type sinkWriter struct {
	w   io.Writer
	err error
}

func (s *sinkWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if err != nil {
		s.err = err
	}
	return n, err
}

// recordingTransport captures the outgoing header block after the client has
// added cookies, so Info.HeaderOut shows what was actually sent.
type recordingTransport struct {
	next   http.RoundTripper
	handle *netHandle
}

func (r *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if r.handle.opts.headerOut {
		var b strings.Builder
		fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", req.Method, req.URL.RequestURI())
		fmt.Fprintf(&b, "Host: %s\r\n", req.URL.Host)

		keys := make([]string, 0, len(req.Header))
		for k := range req.Header {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			for _, v := range req.Header[k] {
				fmt.Fprintf(&b, "%s: %s\r\n", k, v)
			}
		}
		b.WriteString("\r\n")

		r.handle.mu.Lock()
		r.handle.info.HeaderOut = b.String()
		r.handle.mu.Unlock()
	}
	return r.next.RoundTrip(req)
}
