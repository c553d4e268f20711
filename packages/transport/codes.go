package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
)

// Code is the per-request transfer result reported in a Message.
type Code int

const (
	CodeOK Code = iota
	CodeUnsupportedProtocol
	CodeURLMalformat
	CodeCouldntResolveHost
	CodeCouldntConnect
	CodeOperationTimedout
	CodeSSLConnectError
	CodePeerFailedVerification
	CodeTooManyRedirects
	CodeGotNothing
	CodeSendError
	CodeRecvError
	CodeWriteError
	CodeAbortedByCallback
)

var codeMessages = map[Code]string{
	CodeOK:                     "No error",
	CodeUnsupportedProtocol:    "Unsupported protocol",
	CodeURLMalformat:           "URL using bad/illegal format or missing URL",
	CodeCouldntResolveHost:     "Couldn't resolve host name",
	CodeCouldntConnect:         "Couldn't connect to server",
	CodeOperationTimedout:      "Timeout was reached",
	CodeSSLConnectError:        "SSL connect error",
	CodePeerFailedVerification: "SSL peer certificate or SSH remote key was not OK",
	CodeTooManyRedirects:       "Number of redirects hit maximum amount",
	CodeGotNothing:             "Server returned nothing (no headers, no data)",
	CodeSendError:              "Failed sending data to the peer",
	CodeRecvError:              "Failure when receiving data from the peer",
	CodeWriteError:             "Failed writing received data to disk/application",
	CodeAbortedByCallback:      "Operation was aborted by an application callback",
}

// Strerror translates a Code into a human readable message.
func Strerror(c Code) string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown error (%d)", int(c))
}

func (c Code) String() string {
	return Strerror(c)
}

var errTooManyRedirects = errors.New("stopped after too many redirects")

// classify maps a round trip error to a Code. recv marks errors raised while
// reading the response body.
func classify(err error, recv bool) Code {
	if err == nil {
		return CodeOK
	}

	if errors.Is(err, errTooManyRedirects) {
		return CodeTooManyRedirects
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeOperationTimedout
	}
	if errors.Is(err, context.Canceled) {
		return CodeAbortedByCallback
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeOperationTimedout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CodeCouldntResolveHost
	}

	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var invalidCert x509.CertificateInvalidError
	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &unknownAuthority) || errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidCert) || errors.As(err, &verifyErr) {
		return CodePeerFailedVerification
	}

	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return CodeSSLConnectError
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return CodeCouldntConnect
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if recv {
			return CodeRecvError
		}
		return CodeGotNothing
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Op == "parse" {
		return CodeURLMalformat
	}

	if recv {
		return CodeRecvError
	}
	return CodeSendError
}
