// Package transfer adapts a curl-ev-style per-handle transfer contract onto
// net/http: setters for every transfer concern plus raw header and PUT read
// callbacks. net/http.Transport owns the socket and does not expose a
// per-line header callback, so Handle reconstructs header lines from the
// already-parsed http.Response.Header and replays them through
// ParseHeaderLine — see DESIGN.md for why this is a faithful adaptation.
package transfer

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"net/http/httptrace"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Version is a protocol version hint, mirroring the http_version(v) option.
type Version int

const (
	VersionAuto Version = iota
	Version1_1
	Version2
)

// Config accumulates every transfer setter before a single attempt is
// submitted. A fresh Config (save for the immutable TLS/redirect fields)
// is not required per attempt — only the Response pointed to by
// BodySink/HeaderSink is replaced; the caller is responsible for
// installing a new sink before each attempt.
type Config struct {
	URL            string
	Method         string
	FollowLocation bool
	MaxRedirects   int
	PostRedirect   bool
	VerifyPeer     bool
	VerifyHost     bool
	CAInfo         string
	CAFile         string
	CRLFile        string
	HTTPVersion    Version
	Timeout        time.Duration
	ConnectTimeout time.Duration
	Headers        [][2]string
	Body           io.Reader
	ContentLength  int64
	AcceptEncoding string
	NoBody         bool
	PutReader      io.Reader
	HeaderSink     *HeaderMap
	BodySink       io.Writer
}

// Handle is a single-attempt transfer handle: one Configure + AsyncPerform
// cycle per attempt.
type Handle interface {
	// Configure applies the accumulated setters for the upcoming attempt.
	Configure(cfg *Config) error
	// AsyncPerform submits the transfer. handler is invoked exactly once,
	// with a non-nil error on transport/protocol failure.
	AsyncPerform(ctx context.Context, handler func(error))
	// Cancel requests abort of an in-flight transfer. Idempotent.
	Cancel()
	// TimeToStart reports time to first byte of the most recent attempt.
	TimeToStart() time.Duration
	// EffectiveURL reports the URL ultimately fetched (after redirects).
	EffectiveURL() string
	// ResponseCode reports the HTTP status code of the most recent attempt.
	ResponseCode() int
}

// NetHTTPHandle implements Handle over its own *http.Client, whose
// *http.Transport is a clone made when the handle is constructed, so that
// the per-request verify/CA settings applied by Configure behave like
// curl's per-easy-handle options rather than leaking across Requests.
type NetHTTPHandle struct {
	client *http.Client

	mu           sync.Mutex
	cfg          *Config
	cancel       context.CancelFunc
	effectiveURL string
	responseCode int
	ttfb         time.Duration
}

// NewNetHTTPHandle returns a Handle backed by net/http. base, if non-nil,
// seeds the dial/pool settings (connection pooling and DNS strategy are
// left entirely to net/http); the handle always uses its own clone of
// base, or of http.DefaultTransport when base is nil.
func NewNetHTTPHandle(base *http.Transport) *NetHTTPHandle {
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	return &NetHTTPHandle{
		client: &http.Client{Transport: base.Clone()},
	}
}

// Configure applies cfg, rebuilding the transport's TLS config and redirect
// policy to match the per-attempt setters.
func (h *NetHTTPHandle) Configure(cfg *Config) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg

	transport, ok := h.client.Transport.(*http.Transport)
	if !ok {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	tlsCfg := transport.TLSClientConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{}
	} else {
		tlsCfg = tlsCfg.Clone()
	}
	tlsCfg.InsecureSkipVerify = !cfg.VerifyPeer
	if cfg.VerifyPeer && (cfg.CAInfo != "" || cfg.CAFile != "") {
		pool, err := loadCAPool(cfg.CAInfo, cfg.CAFile)
		if err != nil {
			return err
		}
		tlsCfg.RootCAs = pool
	}
	transport.TLSClientConfig = tlsCfg
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout
	h.client.Transport = transport

	if cfg.FollowLocation {
		maxRedirects := cfg.MaxRedirects
		if maxRedirects <= 0 {
			maxRedirects = 10
		}
		h.client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		}
	} else {
		h.client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return nil
}

// loadCAPool builds a certificate pool from a PEM bundle (CAInfo) and/or a
// directory of trusted certificates (CAFile), mirroring curl's
// ca_info/ca_path distinction.
func loadCAPool(caInfo, caDir string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if caInfo != "" {
		pem, err := os.ReadFile(caInfo)
		if err != nil {
			return nil, err
		}
		pool.AppendCertsFromPEM(pem)
	}
	if caDir != "" {
		entries, err := os.ReadDir(caDir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			pem, err := os.ReadFile(filepath.Join(caDir, e.Name()))
			if err != nil {
				continue
			}
			pool.AppendCertsFromPEM(pem)
		}
	}
	return pool, nil
}

// AsyncPerform submits the configured transfer on its own goroutine and
// invokes handler exactly once with the outcome. The header and body sinks
// configured on cfg are populated before handler runs.
func (h *NetHTTPHandle) AsyncPerform(ctx context.Context, handler func(error)) {
	h.mu.Lock()
	cfg := h.cfg
	attemptCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.mu.Unlock()

	go func() {
		err := h.perform(attemptCtx, cfg)
		handler(err)
	}()
}

func (h *NetHTTPHandle) perform(ctx context.Context, cfg *Config) error {
	body := cfg.Body
	if cfg.PutReader != nil {
		body = cfg.PutReader
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, body)
	if err != nil {
		return err
	}
	if cfg.ContentLength > 0 {
		req.ContentLength = cfg.ContentLength
	}
	for _, kv := range cfg.Headers {
		req.Header.Add(kv[0], kv[1])
	}
	if cfg.AcceptEncoding != "" {
		req.Header.Set("Accept-Encoding", cfg.AcceptEncoding)
	}

	var firstByte time.Time
	start := time.Now()
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() {
			firstByte = time.Now()
		},
	}
	reqCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	req = req.WithContext(httptrace.WithClientTrace(reqCtx, trace))

	resp, err := h.client.Do(req)
	if err != nil {
		h.mu.Lock()
		h.responseCode = 0
		h.mu.Unlock()
		return err
	}
	defer resp.Body.Close()

	h.mu.Lock()
	h.responseCode = resp.StatusCode
	h.effectiveURL = resp.Request.URL.String()
	if !firstByte.IsZero() {
		h.ttfb = firstByte.Sub(start)
	}
	h.mu.Unlock()

	if cfg.HeaderSink != nil {
		replayHeaders(resp, cfg.HeaderSink)
	}
	if cfg.NoBody {
		return nil
	}
	if cfg.BodySink != nil {
		_, err = io.Copy(cfg.BodySink, resp.Body)
		return err
	}
	return nil
}

// replayHeaders reconstructs one "Key:Value" line per response header
// value, in the order http.Response.Header is visited, and feeds each
// through ParseHeaderLine so the HeaderParser's documented contract (and
// its last-wins behaviour) governs the result even though net/http has
// already done its own parsing underneath. No space follows the colon,
// since ParseHeaderLine keeps the value untrimmed and net/http has already
// stripped the value's leading whitespace.
func replayHeaders(resp *http.Response, sink *HeaderMap) {
	for key, values := range resp.Header {
		for _, v := range values {
			line := []byte(key + ":" + v)
			sink.ParseInto(line)
		}
	}
}

// Cancel aborts the in-flight attempt, if any. Idempotent.
func (h *NetHTTPHandle) Cancel() {
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// TimeToStart reports time to first byte of the most recent attempt.
func (h *NetHTTPHandle) TimeToStart() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ttfb
}

// EffectiveURL reports the URL ultimately fetched, after redirects.
func (h *NetHTTPHandle) EffectiveURL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.effectiveURL
}

// ResponseCode reports the HTTP status code of the most recent attempt.
func (h *NetHTTPHandle) ResponseCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.responseCode
}
