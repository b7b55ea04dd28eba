package h2

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/syrahproxy/syrah/internal/flow"
)

func encodeHeaders(t *testing.T, fields []hpack.HeaderField) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := hpack.NewEncoder(&buf)
	for _, f := range fields {
		require.NoError(t, enc.WriteField(f))
	}
	return buf.Bytes()
}

func hf(name, value string) hpack.HeaderField {
	return hpack.HeaderField{Name: name, Value: value}
}

func TestConnEmitsMessageOnStreamComplete(t *testing.T) {
	var wire bytes.Buffer
	framer := http2.NewFramer(&wire, &wire)

	var gotStreamID uint32
	var gotReq *flow.Request
	var gotResp *flow.Response
	conn := NewConn(DirectionClient, framer, func(streamID uint32, req *flow.Request, resp *flow.Response) {
		gotStreamID = streamID
		gotReq = req
		gotResp = resp
	})

	reqHeaderBlock := encodeHeaders(t, []hpack.HeaderField{
		hf(":method", "GET"),
		hf(":scheme", "https"),
		hf(":authority", "example.test"),
		hf(":path", "/index.html"),
		hf("user-agent", "syrah-test"),
	})

	require.NoError(t, framer.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      1,
		BlockFragment: reqHeaderBlock,
		EndHeaders:    true,
		EndStream:     true,
	}))

	fr, err := framer.ReadFrame()
	require.NoError(t, err)
	require.NoError(t, conn.HandleFrame(fr))

	require.NotNil(t, gotReq)
	require.Equal(t, flow.MethodGet, gotReq.Method)
	require.Equal(t, "example.test", gotReq.Host)
	require.Equal(t, "/index.html", gotReq.Path)
	require.Equal(t, uint32(1), gotStreamID)
	require.Nil(t, gotResp)
}

func TestConnEmitsRequestAndResponseTogetherAcrossTwoDirections(t *testing.T) {
	var clientWire, serverWire bytes.Buffer
	clientFramer := http2.NewFramer(&clientWire, &clientWire)
	serverFramer := http2.NewFramer(&serverWire, &serverWire)

	clientConn := NewConn(DirectionClient, clientFramer, func(uint32, *flow.Request, *flow.Response) {})

	reqBlock := encodeHeaders(t, []hpack.HeaderField{
		hf(":method", "GET"), hf(":scheme", "https"), hf(":authority", "example.test"), hf(":path", "/"),
	})
	require.NoError(t, clientFramer.WriteHeaders(http2.HeadersFrameParam{StreamID: 1, BlockFragment: reqBlock, EndHeaders: true}))
	fr, err := clientFramer.ReadFrame()
	require.NoError(t, err)
	require.NoError(t, clientConn.HandleFrame(fr))
	require.NoError(t, clientFramer.WriteData(1, true, nil))
	fr, err = clientFramer.ReadFrame()
	require.NoError(t, err)
	require.NoError(t, clientConn.HandleFrame(fr))

	var gotResp *flow.Response
	serverConn := NewConn(DirectionServer, serverFramer, func(_ uint32, _ *flow.Request, resp *flow.Response) {
		gotResp = resp
	})
	// the response-side Conn only has response headers recorded for the
	// stream, so emission requires a request to exist too; seed it by
	// copying state the connection manager would otherwise share.
	serverConn.stream(1).ReqHeaders.Add(":method", "GET")

	respBlock := encodeHeaders(t, []hpack.HeaderField{hf(":status", "200")})
	require.NoError(t, serverFramer.WriteHeaders(http2.HeadersFrameParam{StreamID: 1, BlockFragment: respBlock, EndHeaders: true, EndStream: true}))
	fr, err = serverFramer.ReadFrame()
	require.NoError(t, err)
	require.NoError(t, serverConn.HandleFrame(fr))

	require.NotNil(t, gotResp)
	require.Equal(t, 200, gotResp.StatusCode)
}

func TestConnHandlesSettingsAck(t *testing.T) {
	var wire bytes.Buffer
	framer := http2.NewFramer(&wire, &wire)
	conn := NewConn(DirectionClient, framer, nil)

	require.NoError(t, framer.WriteSettings(http2.Setting{ID: http2.SettingHeaderTableSize, Val: 8192}))
	fr, err := framer.ReadFrame()
	require.NoError(t, err)
	require.NoError(t, conn.HandleFrame(fr))
	require.Equal(t, uint32(8192), conn.headerTableMax)
}

func TestConnWindowUpdateAdjustsStreamWindow(t *testing.T) {
	var wire bytes.Buffer
	framer := http2.NewFramer(&wire, &wire)
	conn := NewConn(DirectionClient, framer, nil)
	conn.table.streams[1] = newStream(1)

	err := conn.handleWindowUpdate(&http2.WindowUpdateFrame{
		FrameHeader: http2.FrameHeader{StreamID: 1},
		Increment:   1000,
	})
	require.NoError(t, err)
	require.Equal(t, defaultWindowSize+1000, int(conn.table.streams[1].RecvWindow))
}

func TestConnWindowUpdateZeroStreamAdjustsConnectionWindow(t *testing.T) {
	var wire bytes.Buffer
	framer := http2.NewFramer(&wire, &wire)
	conn := NewConn(DirectionClient, framer, nil)

	err := conn.handleWindowUpdate(&http2.WindowUpdateFrame{
		FrameHeader: http2.FrameHeader{StreamID: 0},
		Increment:   500,
	})
	require.NoError(t, err)
	require.Equal(t, defaultWindowSize+500, int(conn.connRecvWindow))
}
