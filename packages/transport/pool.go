package transport

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// DefaultDialTimeout bounds connection establishment
const DefaultDialTimeout = 30 * time.Second

type poolSettings struct {
	pipelining   Pipelining
	maxHost      int
	maxTotal     int
	dialTimeout  time.Duration
	noKeepAlive  bool
	sessionCache tls.ClientSessionCache
}

// pool holds the connection pools of one owner. Requests that skip peer
// verification get their own pool so verified connections are never reused
// for them and vice versa.
type pool struct {
	settings poolSettings
	secure   *http.Transport
	insecure *http.Transport
}

func newPool(settings poolSettings) *pool {
	return &pool{settings: settings}
}

func (p *pool) get(verifyPeer bool) *http.Transport {
	if verifyPeer {
		if p.secure == nil {
			p.secure = p.build(true)
		}
		return p.secure
	}
	if p.insecure == nil {
		p.insecure = p.build(false)
	}
	return p.insecure
}

// reset drops the current pools. In-flight requests keep the transport they
// started with.
func (p *pool) reset(settings poolSettings) {
	p.closeIdle()
	p.settings = settings
	p.secure = nil
	p.insecure = nil
}

func (p *pool) closeIdle() {
	if p.secure != nil {
		p.secure.CloseIdleConnections()
	}
	if p.insecure != nil {
		p.insecure.CloseIdleConnections()
	}
}

func (p *pool) build(verifyPeer bool) *http.Transport {
	s := p.settings

	dialTimeout := s.dialTimeout
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}

	maxIdle := DefaultMaxIdleConns
	if s.maxTotal > 0 {
		maxIdle = s.maxTotal
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        maxIdle,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		MaxConnsPerHost:     s.maxHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		DisableKeepAlives:   s.noKeepAlive,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !verifyPeer,
			ClientSessionCache: s.sessionCache,
		},
	}

	// A non-nil empty TLSNextProto disables HTTP/2, which is only negotiated
	// when multiplexing was asked for.
	if s.pipelining == PipeMultiplex {
		transport.ForceAttemptHTTP2 = true
	} else {
		transport.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}

	return transport
}
