package response

import (
	"strings"
	"unicode/utf8"
)

const eol = "\r\n"

// Buffered is a finished transfer: the raw content with the header block
// first, and where that block ends.
type Buffered interface {
	Content() []byte
	HeaderSize() int
}

// Parse splits b into its body and headers. An empty body is returned as
// nil. Lines without a colon after their first byte, such as the status
// line, are skipped; a header repeated later overwrites the earlier value.
func Parse(b Buffered) ([]byte, *Headers) {
	content := b.Content()
	size := b.HeaderSize()
	if size < 0 {
		size = 0
	}
	if size > len(content) {
		size = len(content)
	}

	var body []byte
	if rest := content[size:]; len(rest) > 0 {
		body = rest
	}

	return body, ParseHeaderBlock(string(content[:size]))
}

// ParseHeaderBlock parses CRLF separated header lines.
func ParseHeaderBlock(block string) *Headers {
	headers := NewHeaders()
	for _, line := range strings.Split(block, eol) {
		if strings.Index(line, ":") <= 0 {
			continue
		}
		key, value, _ := strings.Cut(line, ":")
		headers.Set(NormalizeKey(key), strings.TrimLeft(value, " \t"))
	}
	return headers
}

// NormalizeKey lower-cases a header name and upper-cases every character
// that follows a hyphen, dropping the hyphen: x-powered-by becomes xPoweredBy.
func NormalizeKey(name string) string {
	name = strings.ToLower(name)

	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); {
		r, width := utf8.DecodeRuneInString(name[i:])
		if r == '-' && i+width < len(name) {
			next, nextWidth := utf8.DecodeRuneInString(name[i+width:])
			b.WriteString(strings.ToUpper(string(next)))
			i += width + nextWidth
			continue
		}
		b.WriteRune(r)
		i += width
	}
	return b.String()
}
