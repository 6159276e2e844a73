package transfer

// ParseHeaderLine implements the header-line parsing contract: trim
// trailing whitespace and CR/LF from the right, ignore empty lines, split
// on the first unescaped colon, and return the key as-is and the value
// as-is without further trimming. Lines without a colon yield ok == false.
//
// This is grounded on RequestImpl::parse_header in the original transfer
// engine: it trims trailing space/CR/LF in place, then does a byte search
// for ':' rather than a regex or strings.Cut, to stay allocation-free
// beyond the two returned strings.
func ParseHeaderLine(line []byte) (key, value string, ok bool) {
	end := len(line)
	for end > 0 && isTrailingSpace(line[end-1]) {
		end--
	}
	if end == 0 {
		return "", "", false
	}
	line = line[:end]

	colon := -1
	for i, b := range line {
		if b == ':' {
			colon = i
			break
		}
	}
	if colon < 0 {
		return "", "", false
	}

	key = string(line[:colon])
	value = string(line[colon+1:])
	return key, value, true
}

func isTrailingSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

// HeaderMap is a case-preserved, last-wins accumulation of response
// headers, unlike net/http.Header's multi-value semantics — see the Open
// Question resolution in DESIGN.md.
type HeaderMap struct {
	order []string
	vals  map[string]string
	idx   map[string]int
}

// NewHeaderMap returns an empty HeaderMap.
func NewHeaderMap() *HeaderMap {
	return &HeaderMap{vals: make(map[string]string), idx: make(map[string]int)}
}

// Set stores value for key, overwriting any prior value for the same key
// (case-sensitive, matching the parser's "key is the prefix as-is").
func (h *HeaderMap) Set(key, value string) {
	if _, exists := h.vals[key]; !exists {
		h.idx[key] = len(h.order)
		h.order = append(h.order, key)
	}
	h.vals[key] = value
}

// Get returns the stored value for key and whether it was present.
func (h *HeaderMap) Get(key string) (string, bool) {
	v, ok := h.vals[key]
	return v, ok
}

// Len reports the number of distinct keys stored.
func (h *HeaderMap) Len() int {
	return len(h.order)
}

// Range visits each key/value pair in insertion order.
func (h *HeaderMap) Range(fn func(key, value string)) {
	for _, k := range h.order {
		fn(k, h.vals[k])
	}
}

// ParseInto feeds line through ParseHeaderLine and, on a successful parse,
// stores the result into the HeaderMap.
func (h *HeaderMap) ParseInto(line []byte) {
	key, value, ok := ParseHeaderLine(line)
	if !ok {
		return
	}
	h.Set(key, value)
}
