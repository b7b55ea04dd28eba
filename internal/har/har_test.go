package har

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/syrahproxy/syrah/internal/flow"
)

func completedFlow(t *testing.T) *flow.Flow {
	t.Helper()
	f := flow.New("session-1", flow.ProtocolHTTP)

	reqHeaders := flow.NewHeaders()
	reqHeaders.Add("Host", "example.test")
	reqHeaders.Add("Content-Type", "text/plain")
	req := &flow.Request{
		Method:    flow.MethodPost,
		URL:       "http://example.test/widgets?color=blue",
		Query:     "color=blue",
		Headers:   reqHeaders,
		Body:      &flow.Body{Text: "hello", HasText: true},
		Timestamp: time.Now(),
	}
	require.NoError(t, f.RecordRequest(req))

	respHeaders := flow.NewHeaders()
	respHeaders.Add("Content-Type", "application/json")
	resp := &flow.Response{
		StatusCode:    200,
		StatusMessage: "OK",
		HTTPVersion:   "HTTP/1.1",
		Headers:       respHeaders,
		Body:          &flow.Body{Text: `{"ok":true}`, HasText: true},
		Timestamp:     time.Now(),
	}
	require.NoError(t, f.RecordResponseHeaders(resp))
	require.NoError(t, f.CompleteResponse(resp))
	return f
}

func TestExportSkipsFlowsWithoutResponse(t *testing.T) {
	f := flow.New("session-1", flow.ProtocolHTTP)
	doc := Export([]*flow.Flow{f})
	require.Empty(t, doc.Log.Entries)
}

func TestExportImportRoundTrip(t *testing.T) {
	f := completedFlow(t)

	var buf bytes.Buffer
	require.NoError(t, WriteExport(&buf, []*flow.Flow{f}))

	imported, err := Import(&buf)
	require.NoError(t, err)
	require.Len(t, imported, 1)

	got := imported[0]
	require.Equal(t, f.Request.URL, got.Request.URL)
	require.Equal(t, f.Request.Method, got.Request.Method)
	require.Equal(t, f.Response.StatusCode, got.Response.StatusCode)

	gotCT, ok := got.Response.Headers.Get("Content-Type")
	require.True(t, ok)
	wantCT, _ := f.Response.Headers.Get("Content-Type")
	require.Equal(t, wantCT, gotCT)

	require.Equal(t, f.Response.Body.Text, got.Response.Body.Text)
}

func TestExportHasCreator(t *testing.T) {
	doc := Export([]*flow.Flow{completedFlow(t)})
	require.Equal(t, "1.2", doc.Log.Version)
	require.Equal(t, "syrah", doc.Log.Creator.Name)
}
