package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransportErrorRecognizesNetErrors(t *testing.T) {
	err := &net.DNSError{Err: "no such host", Name: "example.invalid"}
	assert.True(t, IsTransportError(err))
}

func TestIsTransportErrorIgnoresCancellation(t *testing.T) {
	assert.False(t, IsTransportError(context.Canceled))
	assert.False(t, IsTransportError(context.DeadlineExceeded))
}

func TestIsTransportErrorStringFallback(t *testing.T) {
	assert.True(t, IsTransportError(errors.New("dial tcp: connection refused")))
	assert.False(t, IsTransportError(errors.New("validation failed: missing field")))
}

func TestIsCancellation(t *testing.T) {
	assert.True(t, IsCancellation(context.Canceled))
	assert.False(t, IsCancellation(context.DeadlineExceeded))
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.False(t, IsTimeout(context.Canceled))
}

func TestIsProtocolError(t *testing.T) {
	err := &http.ProtocolError{ErrorString: "malformed chunked encoding"}
	assert.True(t, IsProtocolError(err))
	assert.False(t, IsProtocolError(errors.New("connection refused")))
}
