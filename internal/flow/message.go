package flow

import (
	"strings"
	"time"
)

// Method is an HTTP request method.
type Method string

const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodPatch   Method = "PATCH"
	MethodDelete  Method = "DELETE"
	MethodOptions Method = "OPTIONS"
	MethodTrace   Method = "TRACE"
	MethodConnect Method = "CONNECT"
)

// Headers is an insertion-order mapping from case-preserving header name to
// value, with case-insensitive lookup.
type Headers struct {
	names  []string
	values []string
}

// NewHeaders returns an empty Headers.
func NewHeaders() *Headers {
	return &Headers{}
}

// Add appends a header, preserving duplicates in insertion order.
func (h *Headers) Add(name, value string) {
	h.names = append(h.names, name)
	h.values = append(h.values, value)
}

// Set replaces all existing values for name (case-insensitive) with a
// single value at the first matching position, or appends if none existed.
func (h *Headers) Set(name, value string) {
	replaced := false
	var names, values []string
	for i, n := range h.names {
		if strings.EqualFold(n, name) {
			if !replaced {
				names = append(names, n)
				values = append(values, value)
				replaced = true
			}
			continue
		}
		names = append(names, n)
		values = append(values, h.values[i])
	}
	h.names, h.values = names, values
	if !replaced {
		h.Add(name, value)
	}
}

// Get returns the first value for name (case-insensitive lookup).
func (h *Headers) Get(name string) (string, bool) {
	for i, n := range h.names {
		if strings.EqualFold(n, name) {
			return h.values[i], true
		}
	}
	return "", false
}

// Values returns all values for name, in insertion order.
func (h *Headers) Values(name string) []string {
	var out []string
	for i, n := range h.names {
		if strings.EqualFold(n, name) {
			out = append(out, h.values[i])
		}
	}
	return out
}

// Del removes all entries matching name (case-insensitive).
func (h *Headers) Del(name string) {
	var names, values []string
	for i, n := range h.names {
		if strings.EqualFold(n, name) {
			continue
		}
		names = append(names, n)
		values = append(values, h.values[i])
	}
	h.names, h.values = names, values
}

// Each calls fn for every header in insertion order.
func (h *Headers) Each(fn func(name, value string)) {
	for i := range h.names {
		fn(h.names[i], h.values[i])
	}
}

// Len returns the number of header entries (counting duplicates).
func (h *Headers) Len() int {
	return len(h.names)
}

// MarshalJSON encodes Headers as an ordered array of [name, value] pairs so
// order and duplicates survive a round trip.
func (h *Headers) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('[')
	for i := range h.names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('[')
		b.Write(quoteJSON(h.names[i]))
		b.WriteByte(',')
		b.Write(quoteJSON(h.values[i]))
		b.WriteByte(']')
	}
	b.WriteByte(']')
	return []byte(b.String()), nil
}

func quoteJSON(s string) []byte {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return []byte(b.String())
}

// Body carries a message body in both raw and (best-effort) decoded text
// form.
type Body struct {
	Raw     []byte `json:"raw,omitempty"`
	Text    string `json:"text,omitempty"`
	HasText bool   `json:"hasText"`
}

// Request is the HttpRequest data model.
type Request struct {
	Method        Method    `json:"method"`
	URL           string    `json:"url"`
	Scheme        string    `json:"scheme"`
	Host          string    `json:"host"`
	Port          int       `json:"port"`
	Path          string    `json:"path"`
	Query         string    `json:"query,omitempty"`
	Params        *Params   `json:"params,omitempty"`
	Headers       *Headers  `json:"headers"`
	Body          *Body     `json:"body,omitempty"`
	ContentLength int64     `json:"contentLength"`
	Timestamp     time.Time `json:"timestamp"`
	IsSecure      bool      `json:"isSecure"`
}

// Params is an ordered multimap of decoded query parameters.
type Params struct {
	keys   []string
	values []string
}

// Add appends a decoded query parameter, preserving order and duplicates.
func (p *Params) Add(key, value string) {
	p.keys = append(p.keys, key)
	p.values = append(p.values, value)
}

// Get returns the first value for key, if any.
func (p *Params) Get(key string) (string, bool) {
	for i, k := range p.keys {
		if k == key {
			return p.values[i], true
		}
	}
	return "", false
}

// TimingBreakdown is the optional per-phase timing breakdown on a response.
type TimingBreakdown struct {
	DNS      time.Duration `json:"dns"`
	TCP      time.Duration `json:"tcp"`
	TLS      time.Duration `json:"tls"`
	TTFB     time.Duration `json:"ttfb"`
	Download time.Duration `json:"download"`
	Total    time.Duration `json:"total"`
	Wait     time.Duration `json:"wait"`
}

// Response is the HttpResponse data model.
type Response struct {
	StatusCode        int              `json:"statusCode"`
	StatusMessage     string           `json:"statusMessage"`
	HTTPVersion       string           `json:"httpVersion"`
	Headers           *Headers         `json:"headers"`
	Body              *Body            `json:"body,omitempty"`
	ContentLength     int64            `json:"contentLength"`
	WasCompressed     bool             `json:"wasCompressed"`
	OriginalEncoding  string           `json:"originalEncoding,omitempty"`
	Timestamp         time.Time        `json:"timestamp"`
	Timing            *TimingBreakdown `json:"timing,omitempty"`
}
