package transfer

import "io"

// PutBodyFeeder is a cursor-based io.Reader over a fixed in-memory PUT
// payload. It is grounded on RequestImpl::PutMethodReadCallback, which
// copies min(remaining, bufferCapacity) bytes per call and returns 0 once
// the payload is drained — precisely io.Reader's Read contract, so the Go
// encoding needs no bespoke callback shape at all.
//
// Before every retry attempt, call Reset to rewind the cursor to the start
// of the payload, matching "the PUT cursor is reset to the start of the
// buffer before each attempt."
type PutBodyFeeder struct {
	payload []byte
	cursor  int
}

// NewPutBodyFeeder wraps payload. The feeder does not copy payload; callers
// must not mutate it for the lifetime of the Request.
func NewPutBodyFeeder(payload []byte) *PutBodyFeeder {
	return &PutBodyFeeder{payload: payload}
}

// Len returns the total payload size, used to set the content-length
// before each attempt.
func (f *PutBodyFeeder) Len() int {
	return len(f.payload)
}

// Reset rewinds the cursor to the start of the buffer.
func (f *PutBodyFeeder) Reset() {
	f.cursor = 0
}

// Read copies min(remaining, len(p)) bytes and advances the cursor. It
// returns io.EOF once the payload is fully drained, matching the feeder's
// "return 0 — end of body" signal via Go's idiomatic Read contract.
func (f *PutBodyFeeder) Read(p []byte) (int, error) {
	remaining := len(f.payload) - f.cursor
	if remaining <= 0 {
		return 0, io.EOF
	}
	n := copy(p, f.payload[f.cursor:])
	f.cursor += n
	return n, nil
}
