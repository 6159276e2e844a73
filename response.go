package httpengine

import (
	"strings"

	json "github.com/goccy/go-json"

	"github.com/kroma-labs/httpengine/transfer"
)

// Response is produced lazily per attempt and surfaced to the caller only
// for the final attempt: a fresh Response replaces any previous one at
// the start of every attempt, so prior attempts' bodies are discarded.
// Header duplicates are last-wins, matching HeaderMap.
type Response struct {
	StatusCode int
	Header     *transfer.HeaderMap
	Body       []byte
}

// String returns the body as a string.
func (r *Response) String() string {
	return string(r.Body)
}

// Decode JSON-unmarshals the body into v using goccy/go-json. An empty
// body leaves v untouched and returns nil.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// IsSuccess reports whether StatusCode is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsSoftError reports whether StatusCode is 4xx/5xx. A soft error is never
// raised as a Go error — the Response is returned and the caller inspects
// the status itself.
func (r *Response) IsSoftError() bool {
	return r.StatusCode >= 400
}

// HeaderGet is a convenience accessor over the last-wins header map,
// case-sensitive, matching the underlying map's key-as-is contract.
func (r *Response) HeaderGet(key string) string {
	if r.Header == nil {
		return ""
	}
	v, _ := r.Header.Get(key)
	return v
}

// ContentType is a convenience accessor matching the common
// case-insensitive lookup callers expect even though the underlying map is
// case-sensitive by contract.
func (r *Response) ContentType() string {
	if r.Header == nil {
		return ""
	}
	var found string
	r.Header.Range(func(k, v string) {
		if strings.EqualFold(k, "Content-Type") {
			found = v
		}
	})
	return found
}
