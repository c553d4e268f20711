package response

import "encoding/json"

// Headers is a string map that remembers insertion order. Overwriting a key
// keeps its original position.
type Headers struct {
	keys   []string
	values map[string]string
}

func NewHeaders() *Headers {
	return &Headers{values: make(map[string]string)}
}

func (h *Headers) Set(key, value string) {
	if _, ok := h.values[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.values[key] = value
}

func (h *Headers) Get(key string) string {
	return h.values[key]
}

func (h *Headers) Lookup(key string) (string, bool) {
	v, ok := h.values[key]
	return v, ok
}

// Delete removes key, keeping the order of the others.
func (h *Headers) Delete(key string) {
	if _, ok := h.values[key]; !ok {
		return
	}
	delete(h.values, key)
	for i, k := range h.keys {
		if k == key {
			h.keys = append(h.keys[:i], h.keys[i+1:]...)
			break
		}
	}
}

func (h *Headers) Keys() []string {
	out := make([]string, len(h.keys))
	copy(out, h.keys)
	return out
}

func (h *Headers) Len() int {
	return len(h.keys)
}

// Map returns an unordered copy.
func (h *Headers) Map() map[string]string {
	out := make(map[string]string, len(h.values))
	for k, v := range h.values {
		out[k] = v
	}
	return out
}

// MarshalJSON writes the headers as an object in insertion order.
func (h *Headers) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range h.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(h.values[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, value...)
	}
	return append(buf, '}'), nil
}
