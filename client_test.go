package httpengine

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformSuccessNoRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := New()
	defer client.Close()

	resp, err := client.Request("GetThing").Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	var body struct{ OK bool }
	require.NoError(t, resp.Decode(&body))
	assert.True(t, body.OK)
}

func TestPerform5xxThenSuccess(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New()
	defer client.Close()

	resp, err := client.Request("Flaky").Retry(3, false).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestPerformExhaustedRetriesSurfacesLastResponse(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := New()
	defer client.Close()

	resp, err := client.Request("AlwaysDown").Retry(3, false).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.True(t, resp.IsSoftError())
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestPerformTransportFailureWithoutRetry(t *testing.T) {
	client := New()
	defer client.Close()

	unreachable := unreachableURL(t)
	_, err := client.Request("Unreachable").Retry(3, false).Get(context.Background(), unreachable)
	require.Error(t, err)
	var te *TransportError
	assert.ErrorAs(t, err, &te)
}

func TestPerformTransportFailureWithRetryExhausts(t *testing.T) {
	client := New()
	defer client.Close()

	unreachable := unreachableURL(t)
	start := time.Now()
	_, err := client.Request("Unreachable").Retry(3, true).Get(context.Background(), unreachable)
	require.Error(t, err)
	var te *TransportError
	assert.ErrorAs(t, err, &te)
	// Two backoff delays (attempt 1->2, 2->3) of at least ebBaseTime each
	// should have elapsed before the third attempt's failure resolves it.
	assert.Greater(t, time.Since(start), 20*time.Millisecond)
}

func TestPerformCancellationDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := New()
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	future, err := client.Request("CancelMe").Retry(5, false).
		Method(http.MethodGet).Path(srv.URL).AsyncPerform(ctx)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond) // let the first attempt land, then cancel mid-backoff
	cancel()

	_, getErr := future.Get(context.Background())
	require.Error(t, getErr)
}

func TestCancelIsIdempotentAfterResolution(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New()
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	future, err := client.Request("Quick").Method(http.MethodGet).Path(srv.URL).AsyncPerform(ctx)
	require.NoError(t, err)
	_, err = future.Get(context.Background())
	require.NoError(t, err)

	// Resolution already happened; cancelling the Request's context now, and
	// again, must be a no-op, not a panic or a changed result.
	cancel()
	cancel()
	time.Sleep(5 * time.Millisecond)
	v2, err2 := future.Get(context.Background())
	assert.NoError(t, err2)
	assert.Equal(t, http.StatusOK, v2.StatusCode)
}

func TestPutBodyIsSentAndResetBetweenRetries(t *testing.T) {
	var hits int32
	var lastBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		lastBody = buf
		if n < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New()
	defer client.Close()

	resp, err := client.Request("PutRetry").Retry(3, false).Put(context.Background(), srv.URL, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "payload", string(lastBody))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestHeaderRoundTripLastWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("X-Trace", "first")
		w.Header().Add("X-Trace", "second")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New()
	defer client.Close()

	resp, err := client.Request("Headers").Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "second", resp.HeaderGet("X-Trace"))
}

func TestPerAttemptTimeoutShorterThanHandlerYieldsTimeoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := New()
	defer client.Close()

	start := time.Now()
	_, err := client.Request("SlowFlaky").Retry(5, false).Timeout(20).Get(context.Background(), srv.URL)
	require.Error(t, err)
	var toe *TimeoutError
	assert.ErrorAs(t, err, &toe)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func unreachableURL(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return "http://" + addr
}
