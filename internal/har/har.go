// Package har implements HAR 1.2 export and import of captured flows, the
// flow persistence format named in the data model (see internal/flow).
package har

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/syrahproxy/syrah/internal/flow"
	"github.com/syrahproxy/syrah/internal/version"
)

const creatorName = "syrah"

// Document is the root of a HAR 1.2 log.
type Document struct {
	Log Log `json:"log"`
}

// Log is the HAR "log" object.
type Log struct {
	Version string  `json:"version"`
	Creator Creator `json:"creator"`
	Entries []Entry `json:"entries"`
}

// Creator identifies the tool that produced the HAR file.
type Creator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// NameValue is HAR's [{name, value}] header/query-string representation.
type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PostData is HAR's request body representation.
type PostData struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// Content is HAR's response body representation.
type Content struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text,omitempty"`
}

// HARRequest is the HAR "request" object.
type HARRequest struct {
	Method      string      `json:"method"`
	URL         string      `json:"url"`
	HTTPVersion string      `json:"httpVersion"`
	Headers     []NameValue `json:"headers"`
	QueryString []NameValue `json:"queryString"`
	PostData    *PostData   `json:"postData,omitempty"`
	HeadersSize int64       `json:"headersSize"`
	BodySize    int64       `json:"bodySize"`
}

// HARResponse is the HAR "response" object.
type HARResponse struct {
	Status      int         `json:"status"`
	StatusText  string      `json:"statusText"`
	HTTPVersion string      `json:"httpVersion"`
	Headers     []NameValue `json:"headers"`
	Content     Content     `json:"content"`
	HeadersSize int64       `json:"headersSize"`
	BodySize    int64       `json:"bodySize"`
}

// Timings is HAR's per-entry timing breakdown, populated from
// flow.TimingBreakdown where available.
type Timings struct {
	Send    float64 `json:"send"`
	Wait    float64 `json:"wait"`
	Receive float64 `json:"receive"`
}

// Entry is one HAR "entries" element, corresponding to one completed flow.
type Entry struct {
	StartedDateTime time.Time   `json:"startedDateTime"`
	Time            float64     `json:"time"`
	Request         HARRequest  `json:"request"`
	Response        HARResponse `json:"response"`
	Cache           struct{}    `json:"cache"`
	Timings         Timings     `json:"timings"`
	Comment         string      `json:"comment,omitempty"`
}

// Export builds a HAR 1.2 Document from flows. Flows without both a
// Request and a Response are skipped: HAR has no representation for a
// flow that never reached a response.
func Export(flows []*flow.Flow) *Document {
	doc := &Document{Log: Log{
		Version: "1.2",
		Creator: Creator{Name: creatorName, Version: version.Version},
		Entries: make([]Entry, 0, len(flows)),
	}}
	for _, f := range flows {
		if f.Request == nil || f.Response == nil {
			continue
		}
		doc.Log.Entries = append(doc.Log.Entries, toEntry(f))
	}
	return doc
}

// WriteExport writes the HAR document for flows to w as indented JSON.
func WriteExport(w io.Writer, flows []*flow.Flow) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Export(flows))
}

func toEntry(f *flow.Flow) Entry {
	req := f.Request
	resp := f.Response

	entry := Entry{
		StartedDateTime: req.Timestamp,
		Request: HARRequest{
			Method:      string(req.Method),
			URL:         req.URL,
			HTTPVersion: "HTTP/1.1",
			Headers:     headerPairs(req.Headers),
			QueryString: queryPairs(req.Query),
			HeadersSize: -1,
			BodySize:    req.ContentLength,
		},
		Response: HARResponse{
			Status:      resp.StatusCode,
			StatusText:  resp.StatusMessage,
			HTTPVersion: resp.HTTPVersion,
			Headers:     headerPairs(resp.Headers),
			Content: Content{
				Size:     resp.ContentLength,
				MimeType: contentType(resp.Headers),
			},
			HeadersSize: -1,
			BodySize:    resp.ContentLength,
		},
	}

	if req.Body != nil && req.Body.HasText {
		entry.Request.PostData = &PostData{MimeType: contentType(req.Headers), Text: req.Body.Text}
	}
	if resp.Body != nil && resp.Body.HasText {
		entry.Response.Content.Text = resp.Body.Text
	}

	if resp.Timing != nil {
		entry.Time = float64(resp.Timing.Total.Milliseconds())
		entry.Timings = Timings{
			Send:    float64(resp.Timing.TCP.Milliseconds()),
			Wait:    float64(resp.Timing.TTFB.Milliseconds()),
			Receive: float64(resp.Timing.Download.Milliseconds()),
		}
	} else if !resp.Timestamp.IsZero() && !req.Timestamp.IsZero() {
		entry.Time = float64(resp.Timestamp.Sub(req.Timestamp).Milliseconds())
	}

	return entry
}

func headerPairs(h *flow.Headers) []NameValue {
	if h == nil {
		return []NameValue{}
	}
	out := make([]NameValue, 0, h.Len())
	h.Each(func(name, value string) {
		out = append(out, NameValue{Name: name, Value: value})
	})
	return out
}

func queryPairs(rawQuery string) []NameValue {
	var out []NameValue
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 {
			out = append(out, NameValue{Name: kv[0], Value: kv[1]})
		} else {
			out = append(out, NameValue{Name: kv[0], Value: ""})
		}
	}
	if out == nil {
		out = []NameValue{}
	}
	return out
}

func contentType(h *flow.Headers) string {
	if h == nil {
		return ""
	}
	v, _ := h.Get("Content-Type")
	return v
}

// ImportedFlow is one HAR entry rehydrated into its request and response;
// it carries no flow state or history. The bridge/session machinery does not replay
// imported flows through the rule engine; they are history, not traffic.
type ImportedFlow struct {
	Request  *flow.Request
	Response *flow.Response
}

// Import parses a HAR 1.2 document from r into ImportedFlows, preserving
// URL, method, status, header order, and body content for each entry.
func Import(r io.Reader) ([]ImportedFlow, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("har: decoding document: %w", err)
	}

	out := make([]ImportedFlow, 0, len(doc.Log.Entries))
	for _, e := range doc.Log.Entries {
		req := &flow.Request{
			Method:    flow.Method(e.Request.Method),
			URL:       e.Request.URL,
			Headers:   headersFromPairs(e.Request.Headers),
			Timestamp: e.StartedDateTime,
		}
		if e.Request.PostData != nil {
			req.Body = &flow.Body{Text: e.Request.PostData.Text, HasText: true}
			req.ContentLength = int64(len(e.Request.PostData.Text))
		}

		resp := &flow.Response{
			StatusCode:    e.Response.Status,
			StatusMessage: e.Response.StatusText,
			HTTPVersion:   e.Response.HTTPVersion,
			Headers:       headersFromPairs(e.Response.Headers),
			ContentLength: e.Response.Content.Size,
			Timestamp:     e.StartedDateTime.Add(time.Duration(e.Time) * time.Millisecond),
		}
		if e.Response.Content.Text != "" {
			resp.Body = &flow.Body{Text: e.Response.Content.Text, HasText: true}
		}

		out = append(out, ImportedFlow{Request: req, Response: resp})
	}
	return out, nil
}

func headersFromPairs(pairs []NameValue) *flow.Headers {
	h := flow.NewHeaders()
	for _, p := range pairs {
		h.Add(p.Name, p.Value)
	}
	return h
}
