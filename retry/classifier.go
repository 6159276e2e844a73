package retry

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// IsTransportError reports whether err represents a failure prior to
// receiving a complete HTTP response, as opposed to a soft HTTP error
// (status >= 400, which is not an error at this layer at all) or context
// cancellation.
//
// The string-matching fallback (containsTransientPattern) covers errors
// that arrive already wrapped by a library that doesn't preserve a typed
// cause.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var tlsRecordErr tls.RecordHeaderError
	if errors.As(err, &tlsRecordErr) {
		return true
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	return containsTransientPattern(err.Error())
}

func containsTransientPattern(msg string) bool {
	msg = strings.ToLower(msg)
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"broken pipe",
		"i/o timeout",
		"eof",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// IsCancellation reports whether err represents explicit cancellation
// rather than a transport failure.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsTimeout reports whether err represents a per-attempt or aggregate
// deadline elapsing.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// IsProtocolError reports whether err represents malformed response
// framing rather than a connection-level transport failure: a violation of
// HTTP's wire format after the connection was otherwise healthy.
func IsProtocolError(err error) bool {
	var protoErr *http.ProtocolError
	if errors.As(err, &protoErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe)
}
