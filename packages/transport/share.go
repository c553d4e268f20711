package transport

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
)

// netShare holds state shared by handles of one NetTransport: a cookie jar and
// a connection pool. Both are safe for concurrent use by running handles.
type netShare struct {
	mu     sync.Mutex
	shared map[LockData]bool
	jar    http.CookieJar
	pool   *pool
	closed bool
}

func newNetShare(settings ShareSettings, base poolSettings) (*netShare, error) {
	s := &netShare{shared: make(map[LockData]bool)}

	for data, action := range settings {
		switch data {
		case LockDataCookie, LockDataDNS, LockDataSSLSession, LockDataConnect:
		default:
			return nil, &OptionError{Option: "SHARE", Value: data, Reason: "unknown lock data"}
		}

		switch action {
		case ShareLock:
			s.shared[data] = true
		case ShareUnlock:
			delete(s.shared, data)
		default:
			return nil, &OptionError{Option: "SHARE", Value: action, Reason: fmt.Sprintf("unknown share action for %s", data)}
		}
	}

	if s.shared[LockDataCookie] {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		s.jar = jar
	}

	// A share keeps its own pool when connections or TLS sessions are
	// shared. Sharing only sessions means every request dials anew but
	// resumes the TLS session.
	if s.shared[LockDataConnect] || s.shared[LockDataSSLSession] {
		settings := base
		settings.noKeepAlive = !s.shared[LockDataConnect]
		if s.shared[LockDataSSLSession] {
			settings.sessionCache = tls.NewLRUClientSessionCache(0)
		}
		s.pool = newPool(settings)
	}

	return s, nil
}

// Shares reports whether the share holds the given category.
func (s *netShare) Shares(data LockData) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shared[data]
}

func (s *netShare) resources(verifyPeer bool) (*http.Transport, http.CookieJar) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rt *http.Transport
	if s.pool != nil && !s.closed {
		rt = s.pool.get(verifyPeer)
	}
	return rt, s.jar
}

func (s *netShare) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *netShare) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.pool != nil {
		s.pool.closeIdle()
	}
	return nil
}
