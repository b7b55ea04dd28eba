package proxy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/syrahproxy/syrah/internal/flow"
)

func TestShouldKeepAliveDefaultsTrue(t *testing.T) {
	require.True(t, shouldKeepAlive(flow.NewHeaders()))
}

func TestShouldKeepAliveRespectsCloseHeader(t *testing.T) {
	h := flow.NewHeaders()
	h.Add("Connection", "close")
	require.False(t, shouldKeepAlive(h))
}

func TestShouldKeepAliveCaseInsensitive(t *testing.T) {
	h := flow.NewHeaders()
	h.Add("Connection", "Close")
	require.False(t, shouldKeepAlive(h))

	h2 := flow.NewHeaders()
	h2.Add("Connection", "keep-alive")
	require.True(t, shouldKeepAlive(h2))
}

func TestProtocolFor(t *testing.T) {
	require.Equal(t, flow.ProtocolHTTPS, protocolFor("https"))
	require.Equal(t, flow.ProtocolHTTP, protocolFor("http"))
}

func TestSerializeRequestRoundTrip(t *testing.T) {
	headers := flow.NewHeaders()
	headers.Add("Host", "example.test")
	req := &flow.Request{Method: flow.MethodGet, Path: "/x", Headers: headers}
	out := serializeRequest(req)
	require.Equal(t, "GET /x HTTP/1.1\r\nHost: example.test\r\n\r\n", string(out))
}

func TestSerializeResponseRoundTrip(t *testing.T) {
	resp := &flow.Response{StatusCode: 204, StatusMessage: "No Content", HTTPVersion: "HTTP/1.1", Headers: flow.NewHeaders()}
	out := serializeResponse(resp)
	require.Equal(t, "HTTP/1.1 204 No Content\r\n\r\n", string(out))
}

func TestBadGatewayResponse(t *testing.T) {
	resp := badGatewayResponse(errors.New("boom"))
	require.Equal(t, 502, resp.StatusCode)
	require.Equal(t, "Bad Gateway", resp.StatusMessage)
	require.Contains(t, resp.Body.Text, "boom")
	v, ok := resp.Headers.Get("Content-Type")
	require.True(t, ok)
	require.Equal(t, "text/plain", v)
}
