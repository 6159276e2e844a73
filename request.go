package httpengine

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/kroma-labs/httpengine/reactor"
	"github.com/kroma-labs/httpengine/retry"
	"github.com/kroma-labs/httpengine/transfer"
)

// RequestBuilder is the fluent configuration surface for one Request.
// Every configuration method returns the same handle to allow chaining;
// values are frozen at AsyncPerform time, not mutable afterward.
type RequestBuilder struct {
	client        *Client
	operationName string

	path    string
	query   url.Values
	headers [][2]string
	method  string

	timeout         int // milliseconds; 0 means engine default
	followRedirects bool
	verify          bool
	caInfo          string
	caFile          string
	crlFile         string
	httpVersion     transfer.Version

	attemptsConfigured int
	onTransportFailure bool

	body    []byte
	putBody []byte
	form    *transfer.Form

	rateLimitKey string
}

// newRequestBuilder applies the engine's defaults: follow redirects,
// verify TLS, and a single attempt with no transport-failure retry.
func newRequestBuilder(c *Client, operationName string) *RequestBuilder {
	return &RequestBuilder{
		client:             c,
		operationName:      operationName,
		method:             http.MethodGet,
		followRedirects:    true,
		verify:             true,
		attemptsConfigured: 1,
		onTransportFailure: false,
	}
}

// Path sets the target URL (absolute, or relative to the Client's base
// URL if one was configured via WithBaseURL).
func (rb *RequestBuilder) Path(p string) *RequestBuilder {
	rb.path = p
	return rb
}

// Query adds a query-string parameter.
func (rb *RequestBuilder) Query(key, value string) *RequestBuilder {
	if rb.query == nil {
		rb.query = url.Values{}
	}
	rb.query.Add(key, value)
	return rb
}

// Header adds a request header. Order is not significant.
func (rb *RequestBuilder) Header(key, value string) *RequestBuilder {
	rb.headers = append(rb.headers, [2]string{key, value})
	return rb
}

// Headers adds every entry of m as a request header.
func (rb *RequestBuilder) Headers(m map[string]string) *RequestBuilder {
	for k, v := range m {
		rb.Header(k, v)
	}
	return rb
}

// Timeout sets the per-attempt timeout in milliseconds, applied to both
// connect and overall transfer.
func (rb *RequestBuilder) Timeout(ms int) *RequestBuilder {
	rb.timeout = ms
	return rb
}

// FollowRedirects enables location following up to 10 hops and, per the
// Open Question decision recorded in DESIGN.md, couples the same boolean
// to POST-redirect replay.
func (rb *RequestBuilder) FollowRedirects(enabled bool) *RequestBuilder {
	rb.followRedirects = enabled
	return rb
}

// Verify toggles TLS peer and hostname verification together.
func (rb *RequestBuilder) Verify(enabled bool) *RequestBuilder {
	rb.verify = enabled
	return rb
}

// CAInfo sets a PEM bundle for peer verification.
func (rb *RequestBuilder) CAInfo(path string) *RequestBuilder {
	rb.caInfo = path
	return rb
}

// CAFile sets a directory of trusted certificates.
func (rb *RequestBuilder) CAFile(dir string) *RequestBuilder {
	rb.caFile = dir
	return rb
}

// CRLFile sets a certificate revocation list path.
func (rb *RequestBuilder) CRLFile(path string) *RequestBuilder {
	rb.crlFile = path
	return rb
}

// HTTPVersion sets a protocol version hint.
func (rb *RequestBuilder) HTTPVersion(v transfer.Version) *RequestBuilder {
	rb.httpVersion = v
	return rb
}

// Retry sets the retry configuration: n is clamped to >= 1 by
// retry.NewPolicy; onFails controls retry on transport errors.
func (rb *RequestBuilder) Retry(n int, onFails bool) *RequestBuilder {
	rb.attemptsConfigured = n
	rb.onTransportFailure = onFails
	return rb
}

// Method sets an arbitrary HTTP method verb.
func (rb *RequestBuilder) Method(m string) *RequestBuilder {
	rb.method = m
	return rb
}

// Body sets a raw request body (used with POST/PATCH/generic methods).
func (rb *RequestBuilder) Body(b []byte) *RequestBuilder {
	rb.body = b
	return rb
}

// BodyJSON marshals v with goccy/go-json and sets it as the request body,
// also setting the Content-Type header.
func (rb *RequestBuilder) BodyJSON(v any) *RequestBuilder {
	b, err := json.Marshal(v)
	if err != nil {
		rb.body = nil
		return rb
	}
	rb.body = b
	rb.Header("Content-Type", "application/json")
	return rb
}

// Form sets a multipart POST body.
func (rb *RequestBuilder) Form(f *transfer.Form) *RequestBuilder {
	rb.form = f
	return rb
}

// Put moves data into the PutBodyFeeder and sets the content length.
func (rb *RequestBuilder) Put(ctx context.Context, urlStr string, data []byte) (*Response, error) {
	rb.method = http.MethodPut
	rb.path = urlStr
	rb.putBody = data
	return rb.Perform(ctx)
}

// Post is the convenience: sets method, URL, and body in one step.
func (rb *RequestBuilder) Post(ctx context.Context, urlStr string, data []byte) (*Response, error) {
	rb.method = http.MethodPost
	rb.path = urlStr
	rb.body = data
	return rb.Perform(ctx)
}

// Patch is the convenience: sets method, URL, and body in one step.
func (rb *RequestBuilder) Patch(ctx context.Context, urlStr string, data []byte) (*Response, error) {
	rb.method = http.MethodPatch
	rb.path = urlStr
	rb.body = data
	return rb.Perform(ctx)
}

// Get submits a GET request to urlStr.
func (rb *RequestBuilder) Get(ctx context.Context, urlStr string) (*Response, error) {
	rb.method = http.MethodGet
	rb.path = urlStr
	return rb.Perform(ctx)
}

// Head submits a HEAD request to urlStr.
func (rb *RequestBuilder) Head(ctx context.Context, urlStr string) (*Response, error) {
	rb.method = http.MethodHead
	rb.path = urlStr
	return rb.Perform(ctx)
}

// Delete submits a DELETE request to urlStr.
func (rb *RequestBuilder) Delete(ctx context.Context, urlStr string) (*Response, error) {
	rb.method = http.MethodDelete
	rb.path = urlStr
	return rb.Perform(ctx)
}

// RateLimitKey attaches a throttle bucket key, consulted once before the
// first attempt is submitted.
func (rb *RequestBuilder) RateLimitKey(key string) *RequestBuilder {
	rb.rateLimitKey = key
	return rb
}

// AsyncPerform returns the future immediately; the caller awaits it from
// whatever cooperative task scheduler it runs on (here, simply another
// goroutine calling Get).
func (rb *RequestBuilder) AsyncPerform(ctx context.Context) (*reactor.Future[*Response], error) {
	effectiveURL, err := rb.buildURL()
	if err != nil {
		return nil, err
	}

	if err := rb.client.limiter.Allow(ctx); err != nil {
		return nil, err
	}
	if rb.rateLimitKey != "" {
		if err := rb.client.keyedLimiter.Allow(ctx, rb.rateLimitKey); err != nil {
			return nil, err
		}
	}

	cfg := transfer.Config{
		URL:            effectiveURL,
		Method:         rb.method,
		FollowLocation: rb.followRedirects,
		MaxRedirects:   10,
		PostRedirect:   rb.followRedirects,
		VerifyPeer:     rb.verify,
		VerifyHost:     rb.verify,
		CAInfo:         rb.caInfo,
		CAFile:         rb.caFile,
		CRLFile:        rb.crlFile,
		HTTPVersion:    rb.httpVersion,
		Timeout:        time.Duration(rb.timeout) * time.Millisecond,
		ConnectTimeout: time.Duration(rb.timeout) * time.Millisecond,
		Headers:        append([][2]string{}, rb.headers...),
	}
	for _, kv := range rb.client.defaultHeaders {
		cfg.Headers = append(cfg.Headers, kv)
	}

	var putFeeder *transfer.PutBodyFeeder
	switch {
	case rb.putBody != nil:
		putFeeder = transfer.NewPutBodyFeeder(rb.putBody)
		cfg.PutReader = putFeeder
		cfg.ContentLength = int64(putFeeder.Len())
	case rb.form != nil:
		body, contentType, err := rb.form.Encode()
		if err != nil {
			return nil, err
		}
		cfg.Body = bytesReader(body)
		cfg.ContentLength = int64(len(body))
		cfg.Headers = append(cfg.Headers, [2]string{"Content-Type", contentType})
	case rb.body != nil:
		cfg.Body = bytesReader(rb.body)
		cfg.ContentLength = int64(len(rb.body))
	}

	policy := retry.NewPolicy(rb.attemptsConfigured, rb.onTransportFailure)

	brk := rb.client.breakerFor(hostOf(effectiveURL))

	core := &requestCore{
		reactor:       rb.client.reactor,
		clock:         rb.client.clock,
		handle:        rb.client.newHandle(),
		breaker:       brk,
		stats:         rb.client.statsSink(rb.operationName),
		tracer:        rb.client.tracer,
		logger:        rb.client.logger,
		operationName: rb.operationName,
		cfg:           cfg,
		retry:         retry.NewState(policy),
		putFeeder:     putFeeder,
	}

	requestID := newRequestID()
	future := core.asyncPerform(ctx, rb.operationName, requestID)

	if rb.timeout > 0 {
		perAttempt := time.Duration(rb.timeout) * time.Millisecond
		future = withAggregateDeadline(future, retry.AggregateTimeout(perAttempt, policy))
	}
	return future, nil
}

// Perform is the blocking convenience: it submits the Request and awaits
// its future.
func (rb *RequestBuilder) Perform(ctx context.Context) (*Response, error) {
	future, err := rb.AsyncPerform(ctx)
	if err != nil {
		return nil, err
	}
	return future.Get(ctx)
}

func (rb *RequestBuilder) buildURL() (string, error) {
	base := rb.client.baseURL
	target := rb.path
	if base != "" && !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(target, "/")
	}
	if rb.query == nil || len(rb.query) == 0 {
		return target, nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vs := range rb.query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}

func bytesReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}
