package response

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitmux/packages/transport"
)

// Response is a parsed handle together with its transfer info.
type Response struct {
	Index      int
	ID         string
	URL        string
	StatusCode int
	Proto      string
	Reused     bool
	Headers    *Headers
	Body       []byte
	Duration   time.Duration
}

// FromHandle parses h. index is the handle's position in its batch.
func FromHandle(index int, h transport.Handle) *Response {
	body, headers := Parse(h)
	info := h.Info()
	return &Response{
		Index:      index,
		ID:         info.ID,
		URL:        info.EffectiveURL,
		StatusCode: info.StatusCode,
		Proto:      info.Proto,
		Reused:     info.ConnectionReused,
		Headers:    headers,
		Body:       body,
		Duration:   info.TotalTime,
	}
}

// FromHandles parses a whole batch in order.
func FromHandles(handles []transport.Handle) []*Response {
	out := make([]*Response, len(handles))
	for i, h := range handles {
		out[i] = FromHandle(i, h)
	}
	return out
}

func (r *Response) BodyString() string {
	return string(r.Body)
}

func (r *Response) BodyJSON() (any, error) {
	var result any
	if err := json.Unmarshal(r.Body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Header looks a header up by its wire name or its normalized key.
func (r *Response) Header(name string) string {
	if r.Headers == nil {
		return ""
	}
	if v, ok := r.Headers.Lookup(name); ok {
		return v
	}
	return r.Headers.Get(NormalizeKey(name))
}

func (r *Response) ContentType() string {
	return r.Header("Content-Type")
}

func (r *Response) IsJSON() bool {
	return strings.Contains(r.ContentType(), "application/json")
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) IsRedirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500
}

func (r *Response) DurationMs() int64 {
	return r.Duration.Milliseconds()
}
