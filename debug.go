package httpengine

import (
	"strconv"
	"strings"

	"github.com/kroma-labs/httpengine/transfer"
)

// curlCommand renders cfg as an equivalent curl invocation. Used only for
// debug logging; Authorization and Cookie values are redacted since this
// can reach shared log sinks.
func curlCommand(cfg *transfer.Config) string {
	var b strings.Builder
	b.WriteString("curl -X ")
	b.WriteString(cfg.Method)
	b.WriteString(" '")
	b.WriteString(cfg.URL)
	b.WriteString("'")
	for _, kv := range cfg.Headers {
		b.WriteString(" -H '")
		b.WriteString(kv[0])
		b.WriteString(": ")
		if strings.EqualFold(kv[0], "Authorization") || strings.EqualFold(kv[0], "Cookie") {
			b.WriteString("***")
		} else {
			b.WriteString(kv[1])
		}
		b.WriteString("'")
	}
	if cfg.ContentLength > 0 {
		b.WriteString(" -d '<body, ")
		b.WriteString(strconv.FormatInt(cfg.ContentLength, 10))
		b.WriteString(" bytes>'")
	}
	return b.String()
}
