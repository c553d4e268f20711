package transport

import (
	"fmt"
	"io"
	"time"
)

// Option identifies a per-request setting. Values are interpreted by the
// transport, the engine only merges and forwards them.
type Option int

const (
	// OptURL is the request URL (string)
	OptURL Option = iota + 1
	// OptCustomRequest overrides the request method (string)
	OptCustomRequest
	// OptPostFields is the request body (string or []byte); implies POST unless OptCustomRequest is set
	OptPostFields
	// OptHTTPHeader is a list of "Key: Value" request header lines ([]string)
	OptHTTPHeader
	// OptUserAgent sets the User-Agent header (string)
	OptUserAgent
	// OptReturnTransfer buffers the body in the handle instead of writing it to OptFile (bool)
	OptReturnTransfer
	// OptHeader includes the response header block in the buffered content (bool)
	OptHeader
	// OptHeaderOut records the outgoing request header block in Info (bool)
	OptHeaderOut
	// OptFollowLocation follows redirects (bool)
	OptFollowLocation
	// OptMaxRedirs caps followed redirects (int)
	OptMaxRedirs
	// OptTimeout bounds the whole transfer (time.Duration)
	OptTimeout
	// OptCookie sends a raw Cookie header value (string)
	OptCookie
	// OptShare attaches a Share created by the same transport (Share)
	OptShare
	// OptVerbose writes connection diagnostics to OptStderr (bool)
	OptVerbose
	// OptStderr receives verbose diagnostics (io.Writer)
	OptStderr
	// OptFile receives the body when OptReturnTransfer is off (io.Writer)
	OptFile
	// OptSSLVerifyPeer verifies the server certificate, on by default (bool)
	OptSSLVerifyPeer
)

var optionNames = map[Option]string{
	OptURL:            "URL",
	OptCustomRequest:  "CUSTOMREQUEST",
	OptPostFields:     "POSTFIELDS",
	OptHTTPHeader:     "HTTPHEADER",
	OptUserAgent:      "USERAGENT",
	OptReturnTransfer: "RETURNTRANSFER",
	OptHeader:         "HEADER",
	OptHeaderOut:      "HEADER_OUT",
	OptFollowLocation: "FOLLOWLOCATION",
	OptMaxRedirs:      "MAXREDIRS",
	OptTimeout:        "TIMEOUT",
	OptCookie:         "COOKIE",
	OptShare:          "SHARE",
	OptVerbose:        "VERBOSE",
	OptStderr:         "STDERR",
	OptFile:           "FILE",
	OptSSLVerifyPeer:  "SSL_VERIFYPEER",
}

func (o Option) String() string {
	if name, ok := optionNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Option(%d)", int(o))
}

// Options is one request's option set.
type Options map[Option]any

// Merge returns a new option set holding every key of request plus the keys
// of defaults that request does not set. Values are not merged deeply: a
// request OptHTTPHeader replaces the default list entirely.
func Merge(defaults, request Options) Options {
	merged := make(Options, len(defaults)+len(request))
	for k, v := range request {
		merged[k] = v
	}
	for k, v := range defaults {
		if _, ok := merged[k]; ok {
			continue
		}
		merged[k] = v
	}
	return merged
}

// Clone returns a shallow copy.
func (o Options) Clone() Options {
	c := make(Options, len(o))
	for k, v := range o {
		c[k] = v
	}
	return c
}

// MultiOption identifies an engine-wide setting applied to the whole transport.
type MultiOption int

const (
	// MultiPipelining selects the connection sharing strategy (Pipelining)
	MultiPipelining MultiOption = iota + 1
	// MultiMaxHostConnections caps connections per host, 0 for no limit (int)
	MultiMaxHostConnections
	// MultiMaxTotalConnections caps idle connections kept in the pool (int)
	MultiMaxTotalConnections
	// MultiMaxRequestRate caps how many handles start per second, 0 for no limit (float64)
	MultiMaxRequestRate
)

func (o MultiOption) String() string {
	switch o {
	case MultiPipelining:
		return "PIPELINING"
	case MultiMaxHostConnections:
		return "MAX_HOST_CONNECTIONS"
	case MultiMaxTotalConnections:
		return "MAX_TOTAL_CONNECTIONS"
	case MultiMaxRequestRate:
		return "MAX_REQUEST_RATE"
	}
	return fmt.Sprintf("MultiOption(%d)", int(o))
}

// Pipelining is the value of MultiPipelining.
type Pipelining int

const (
	PipeNothing Pipelining = iota
	PipeHTTP1
	PipeMultiplex
)

func (p Pipelining) String() string {
	switch p {
	case PipeNothing:
		return "off"
	case PipeHTTP1:
		return "http1"
	case PipeMultiplex:
		return "multiplex"
	}
	return fmt.Sprintf("Pipelining(%d)", int(p))
}

// ParsePipelining maps a config or flag value to a Pipelining mode.
func ParsePipelining(s string) (Pipelining, error) {
	switch s {
	case "", "off", "none", "nothing":
		return PipeNothing, nil
	case "http1", "pipeline", "http1-pipeline":
		return PipeHTTP1, nil
	case "multiplex", "http2":
		return PipeMultiplex, nil
	}
	return PipeNothing, fmt.Errorf("unknown pipelining mode: %s", s)
}

// LockData names a category of state a Share can hold.
type LockData int

const (
	LockDataCookie LockData = iota + 1
	LockDataDNS
	LockDataSSLSession
	LockDataConnect
)

func (d LockData) String() string {
	switch d {
	case LockDataCookie:
		return "COOKIE"
	case LockDataDNS:
		return "DNS"
	case LockDataSSLSession:
		return "SSL_SESSION"
	case LockDataConnect:
		return "CONNECT"
	}
	return fmt.Sprintf("LockData(%d)", int(d))
}

// ShareAction turns sharing of a LockData category on or off.
type ShareAction int

const (
	ShareLock ShareAction = iota + 1
	ShareUnlock
)

// ShareSettings configures a Share.
type ShareSettings map[LockData]ShareAction

// OptionError reports an option the transport rejected.
type OptionError struct {
	Option string
	Value  any
	Reason string
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("option %s rejected (%v): %s", e.Option, e.Value, e.Reason)
}

// resolved is the typed view of an Options set a handle runs with.
type resolved struct {
	url            string
	method         string
	body           []byte
	hasBody        bool
	headers        []string
	userAgent      string
	returnTransfer bool
	includeHeader  bool
	headerOut      bool
	followLocation bool
	maxRedirs      int
	timeout        time.Duration
	cookie         string
	share          Share
	verbose        bool
	stderr         io.Writer
	file           io.Writer
	verifyPeer     bool
}

func resolve(opts Options) (*resolved, error) {
	r := &resolved{
		maxRedirs:  DefaultMaxRedirects,
		verifyPeer: true,
	}

	for opt, value := range opts {
		var ok bool
		switch opt {
		case OptURL:
			r.url, ok = value.(string)
		case OptCustomRequest:
			r.method, ok = value.(string)
		case OptPostFields:
			switch v := value.(type) {
			case string:
				r.body, ok = []byte(v), true
			case []byte:
				r.body, ok = v, true
			}
			r.hasBody = ok
		case OptHTTPHeader:
			r.headers, ok = value.([]string)
		case OptUserAgent:
			r.userAgent, ok = value.(string)
		case OptReturnTransfer:
			r.returnTransfer, ok = value.(bool)
		case OptHeader:
			r.includeHeader, ok = value.(bool)
		case OptHeaderOut:
			r.headerOut, ok = value.(bool)
		case OptFollowLocation:
			r.followLocation, ok = value.(bool)
		case OptMaxRedirs:
			r.maxRedirs, ok = value.(int)
			ok = ok && r.maxRedirs >= 0
		case OptTimeout:
			r.timeout, ok = value.(time.Duration)
			ok = ok && r.timeout >= 0
		case OptCookie:
			r.cookie, ok = value.(string)
		case OptShare:
			if value == nil {
				ok = true
				break
			}
			r.share, ok = value.(Share)
		case OptVerbose:
			r.verbose, ok = value.(bool)
		case OptStderr:
			r.stderr, ok = value.(io.Writer)
		case OptFile:
			r.file, ok = value.(io.Writer)
		case OptSSLVerifyPeer:
			r.verifyPeer, ok = value.(bool)
		default:
			return nil, &OptionError{Option: opt.String(), Value: value, Reason: "unknown option"}
		}
		if !ok {
			return nil, &OptionError{Option: opt.String(), Value: value, Reason: fmt.Sprintf("unexpected value type %T", value)}
		}
	}

	return r, nil
}
