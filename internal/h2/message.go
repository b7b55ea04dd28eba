package h2

import (
	"strconv"
	"strings"
	"time"

	"github.com/syrahproxy/syrah/internal/flow"
)

// requestFromStream assembles a synthetic flow.Request from a stream's
// decoded pseudo-headers, regular headers, and accumulated DATA frames.
func requestFromStream(s *Stream) *flow.Request {
	var method, scheme, authority, path string
	headers := flow.NewHeaders()

	s.ReqHeaders.Each(func(name, value string) {
		switch name {
		case ":method":
			method = value
		case ":scheme":
			scheme = value
		case ":authority":
			authority = value
		case ":path":
			path = value
		default:
			headers.Add(name, value)
		}
	})

	host, port := splitAuthority(authority, scheme)
	url := scheme + "://" + authority + path
	body := bodyOf(s.ReqBody.Bytes())

	return &flow.Request{
		Method:        flow.Method(strings.ToUpper(method)),
		URL:           url,
		Scheme:        scheme,
		Host:          host,
		Port:          port,
		Path:          pathOnly(path),
		Query:         queryOnly(path),
		Headers:       headers,
		Body:          body,
		ContentLength: int64(s.ReqBody.Len()),
		Timestamp:     time.Time{},
		IsSecure:      scheme == "https",
	}
}

// responseFromStream assembles a synthetic flow.Response from a stream's
// decoded pseudo-headers, regular headers, and accumulated DATA frames.
func responseFromStream(s *Stream) *flow.Response {
	var statusCode int
	headers := flow.NewHeaders()

	s.RespHeaders.Each(func(name, value string) {
		if name == ":status" {
			statusCode, _ = strconv.Atoi(value)
			return
		}
		headers.Add(name, value)
	})

	body := bodyOf(s.RespBody.Bytes())

	return &flow.Response{
		StatusCode:    statusCode,
		HTTPVersion:   "HTTP/2",
		Headers:       headers,
		Body:          body,
		ContentLength: int64(s.RespBody.Len()),
	}
}

func bodyOf(raw []byte) *flow.Body {
	if len(raw) == 0 {
		return nil
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return &flow.Body{Raw: cp, Text: string(cp), HasText: true}
}

func splitAuthority(authority, scheme string) (host string, port int) {
	host = authority
	if idx := strings.LastIndex(authority, ":"); idx >= 0 {
		host = authority[:idx]
		if p, err := strconv.Atoi(authority[idx+1:]); err == nil {
			return host, p
		}
	}
	if scheme == "https" {
		return host, 443
	}
	return host, 80
}

func pathOnly(target string) string {
	if idx := strings.IndexByte(target, '?'); idx >= 0 {
		return target[:idx]
	}
	return target
}

func queryOnly(target string) string {
	if idx := strings.IndexByte(target, '?'); idx >= 0 {
		return target[idx+1:]
	}
	return ""
}
