package proxy

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/syrahproxy/syrah/internal/flow"
	"github.com/syrahproxy/syrah/internal/httpmsg"
)

// buildRequest translates a completed httpmsg.Parser into the Flow
// model's Request, decoding the body (if any) for display purposes while
// keeping the raw wire bytes for faithful retransmission upstream.
func buildRequest(p *httpmsg.Parser, scheme, host string, port int, isSecure bool) *flow.Request {
	raw := append([]byte(nil), p.Body.Bytes()...)
	target := p.Start.Target

	reqPath, reqQuery := splitTarget(target)
	reqURL := target
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		reqURL = fmt.Sprintf("%s://%s%s", scheme, host, target)
	}

	contentEncoding, _ := p.Headers.Get("Content-Encoding")
	body := decodedBody(contentEncoding, raw)

	return &flow.Request{
		Method:        flow.Method(p.Start.Method),
		URL:           reqURL,
		Scheme:        scheme,
		Host:          host,
		Port:          port,
		Path:          reqPath,
		Query:         reqQuery,
		Headers:       p.Headers,
		Body:          body,
		ContentLength: int64(len(raw)),
		Timestamp:     time.Now(),
		IsSecure:      isSecure,
	}
}

// buildResponse translates a completed httpmsg.Parser (response kind)
// into the Flow model's Response.
func buildResponse(p *httpmsg.Parser) *flow.Response {
	raw := append([]byte(nil), p.Body.Bytes()...)
	contentEncoding, wasCompressed := p.Headers.Get("Content-Encoding")
	body := decodedBody(contentEncoding, raw)

	return &flow.Response{
		StatusCode:       p.Start.StatusCode,
		StatusMessage:    p.Start.StatusMessage,
		HTTPVersion:      p.Start.Version,
		Headers:          p.Headers,
		Body:             body,
		ContentLength:    int64(len(raw)),
		WasCompressed:    wasCompressed && contentEncoding != "" && !strings.EqualFold(contentEncoding, "identity"),
		OriginalEncoding: contentEncoding,
		Timestamp:        time.Now(),
	}
}

func decodedBody(contentEncoding string, raw []byte) *flow.Body {
	if len(raw) == 0 {
		return nil
	}
	decoded, err := httpmsg.DecodedBody(contentEncoding, raw)
	if err != nil {
		return &flow.Body{Raw: raw}
	}
	return &flow.Body{Raw: raw, Text: string(decoded), HasText: true}
}

func splitTarget(target string) (path, query string) {
	if idx := strings.IndexByte(target, '?'); idx >= 0 {
		return target[:idx], target[idx+1:]
	}
	return target, ""
}

// writeRequest serializes req back onto the wire in the form an origin
// server expects: request-line with an origin-form target (never the
// absolute-form a forward proxy receives), followed by headers and the
// raw body bytes.
func writeRequest(w io.Writer, req *flow.Request) error {
	target := req.Path
	if req.Query != "" {
		target += "?" + req.Query
	}
	if target == "" {
		target = "/"
	}
	if _, err := fmt.Fprintf(w, "%s %s HTTP/1.1\r\n", req.Method, target); err != nil {
		return err
	}
	if err := writeHeaders(w, req.Headers); err != nil {
		return err
	}
	if req.Body != nil {
		_, err := w.Write(req.Body.Raw)
		return err
	}
	return nil
}

// writeResponse serializes resp back onto the wire for delivery to the
// client that issued the request.
func writeResponse(w io.Writer, resp *flow.Response) error {
	version := resp.HTTPVersion
	if version == "" {
		version = "HTTP/1.1"
	}
	if _, err := fmt.Fprintf(w, "%s %d %s\r\n", version, resp.StatusCode, resp.StatusMessage); err != nil {
		return err
	}
	if err := writeHeaders(w, resp.Headers); err != nil {
		return err
	}
	if resp.Body != nil {
		_, err := w.Write(resp.Body.Raw)
		return err
	}
	return nil
}

func writeHeaders(w io.Writer, headers *flow.Headers) error {
	var writeErr error
	if headers != nil {
		headers.Each(func(name, value string) {
			if writeErr != nil {
				return
			}
			_, writeErr = fmt.Fprintf(w, "%s: %s\r\n", name, value)
		})
	}
	if writeErr != nil {
		return writeErr
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// parseAuthority splits a CONNECT target or absolute-form request's
// authority into host/port, defaulting the port by scheme when absent.
func parseAuthority(authority, scheme string) (host string, port int) {
	if u, err := url.Parse("//" + authority); err == nil && u.Hostname() != "" {
		host = u.Hostname()
		if p := u.Port(); p != "" {
			port, _ = strconv.Atoi(p)
		}
	} else {
		host = authority
	}
	if port == 0 {
		if scheme == "https" {
			port = 443
		} else {
			port = 80
		}
	}
	return host, port
}
