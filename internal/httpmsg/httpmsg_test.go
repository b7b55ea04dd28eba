package httpmsg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSimpleRequest(t *testing.T) {
	p := NewParser(KindRequest)
	require.NoError(t, p.Feed([]byte("GET /index.html HTTP/1.1\r\nHost: example.test\r\n\r\n")))
	require.Equal(t, StateComplete, p.State())
	require.Equal(t, "GET", p.Start.Method)
	require.Equal(t, "/index.html", p.Start.Target)
	v, ok := p.Headers.Get("host")
	require.True(t, ok)
	require.Equal(t, "example.test", v)
	require.Equal(t, 0, p.Body.Len())
}

func TestParseFedByteByByte(t *testing.T) {
	p := NewParser(KindResponse)
	msg := "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhi"
	for i := 0; i < len(msg); i++ {
		require.NoError(t, p.Feed([]byte{msg[i]}))
	}
	require.Equal(t, StateComplete, p.State())
	require.Equal(t, 200, p.Start.StatusCode)
	require.Equal(t, "OK", p.Start.StatusMessage)
	require.Equal(t, "hi", p.Body.String())
}

func TestParseChunkedBody(t *testing.T) {
	p := NewParser(KindResponse)
	msg := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
	require.NoError(t, p.Feed([]byte(msg)))
	require.Equal(t, StateComplete, p.State())
	require.Equal(t, "Wikipedia", p.Body.String())
}

func TestParseChunkedIgnoresExtensions(t *testing.T) {
	p := NewParser(KindResponse)
	msg := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"4;ext=foo\r\nabcd\r\n0\r\n\r\n"
	require.NoError(t, p.Feed([]byte(msg)))
	require.Equal(t, "abcd", p.Body.String())
}

func TestParseChunkedFedByteByByte(t *testing.T) {
	p := NewParser(KindResponse)
	msg := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
	for i := 0; i < len(msg); i++ {
		require.NoError(t, p.Feed([]byte{msg[i]}))
	}
	require.Equal(t, StateComplete, p.State())
	require.Equal(t, "Wikipedia", p.Body.String())
}

func TestParseChunkedEmptyBody(t *testing.T) {
	p := NewParser(KindResponse)
	msg := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n0\r\n\r\n"
	require.NoError(t, p.Feed([]byte(msg)))
	require.Equal(t, StateComplete, p.State())
	require.Equal(t, 0, p.Body.Len())
}

func TestResponse204IgnoresContentLength(t *testing.T) {
	p := NewParser(KindResponse)
	msg := "HTTP/1.1 204 No Content\r\nContent-Length: 10\r\n\r\n"
	require.NoError(t, p.Feed([]byte(msg)))
	require.Equal(t, StateComplete, p.State())
	require.Equal(t, 0, p.Body.Len())
}

func TestRequestWithoutContentLengthHasNoBodyForGet(t *testing.T) {
	p := NewParser(KindRequest)
	msg := "GET / HTTP/1.1\r\nHost: example.test\r\n\r\n"
	require.NoError(t, p.Feed([]byte(msg)))
	require.Equal(t, StateComplete, p.State())
}

func TestUntilCloseFraming(t *testing.T) {
	p := NewParser(KindResponse)
	require.NoError(t, p.Feed([]byte("HTTP/1.0 200 OK\r\n\r\nhello world")))
	require.Equal(t, StateReadingBody, p.State())
	require.NoError(t, p.Close())
	require.Equal(t, StateComplete, p.State())
	require.Equal(t, "hello world", p.Body.String())
}

func TestBareLFIsMalformed(t *testing.T) {
	p := NewParser(KindRequest)
	err := p.Feed([]byte("GET / HTTP/1.1\nHost: example.test\r\n\r\n"))
	require.Error(t, err)
	require.Equal(t, StateError, p.State())
}

func TestFeedAfterErrorIsNoOp(t *testing.T) {
	p := NewParser(KindRequest)
	_ = p.Feed([]byte("garbage\r\n\r\n"))
	require.Equal(t, StateError, p.State())
	err := p.Feed([]byte("more data"))
	require.Error(t, err)
}

func TestResetAllowsReuse(t *testing.T) {
	p := NewParser(KindRequest)
	require.NoError(t, p.Feed([]byte("GET /a HTTP/1.1\r\nHost: a.test\r\n\r\n")))
	require.Equal(t, StateComplete, p.State())

	p.Reset()
	require.Equal(t, StateReadingStart, p.State())
	require.NoError(t, p.Feed([]byte("GET /b HTTP/1.1\r\nHost: b.test\r\n\r\n")))
	require.Equal(t, "/b", p.Start.Target)
}

func TestDuplicateHeadersPreserved(t *testing.T) {
	p := NewParser(KindResponse)
	msg := "HTTP/1.1 200 OK\r\nSet-Cookie: a=1\r\nSet-Cookie: b=2\r\nContent-Length: 0\r\n\r\n"
	require.NoError(t, p.Feed([]byte(msg)))
	require.Equal(t, []string{"a=1", "b=2"}, p.Headers.Values("set-cookie"))
}
