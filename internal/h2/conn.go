package h2

import (
	"fmt"
	"sync"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/syrahproxy/syrah/internal/errs"
	"github.com/syrahproxy/syrah/internal/flow"
)

const defaultWindowSize = 65535
const defaultHeaderTableSize = 4096

// Direction tags which side of a connection a Conn parses frames for.
type Direction int

const (
	DirectionClient Direction = iota // frames sent by the client (requests)
	DirectionServer                  // frames sent by the server (responses)
)

// OnMessage is invoked once a stream's request/response exchange is
// observed to be complete, with whatever request and response headers
// were captured for it.
type OnMessage func(streamID uint32, req *flow.Request, resp *flow.Response)

// streamTable is the shared id->Stream map a pair of Conns (one per
// direction of the same TCP connection) use so that a request observed
// by the client-direction Conn and its response observed by the
// server-direction Conn populate the very same Stream.
type streamTable struct {
	mu      sync.Mutex
	streams map[uint32]*Stream
}

// Conn is a per-connection, per-direction HTTP/2 frame parser. A proxied
// connection uses two Conns (one per direction) sharing a stream table,
// constructed together via NewPairedConns.
type Conn struct {
	dir     Direction
	framer  *http2.Framer
	decoder *hpack.Decoder

	table          *streamTable
	connSendWindow int32
	connRecvWindow int32
	headerTableMax uint32

	onMessage OnMessage
}

// NewConn wraps framer (already attached to the connection's byte stream)
// with HPACK and stream-table bookkeeping. The returned Conn owns a
// private stream table; use NewPairedConns when request and response
// frames travel over two separate Framers for the same logical
// connection and must be correlated into one Stream.
func NewConn(dir Direction, framer *http2.Framer, onMessage OnMessage) *Conn {
	return newConn(dir, framer, &streamTable{streams: make(map[uint32]*Stream)}, onMessage)
}

// NewPairedConns returns two Conns, one per direction, sharing a single
// stream table so that a stream's request (observed via clientFramer) and
// response (observed via serverFramer) are recorded against the same
// Stream and OnMessage fires once per stream with both sides populated.
func NewPairedConns(clientFramer, serverFramer *http2.Framer, onMessage OnMessage) (client, server *Conn) {
	table := &streamTable{streams: make(map[uint32]*Stream)}
	client = newConn(DirectionClient, clientFramer, table, onMessage)
	server = newConn(DirectionServer, serverFramer, table, onMessage)
	return client, server
}

func newConn(dir Direction, framer *http2.Framer, table *streamTable, onMessage OnMessage) *Conn {
	return &Conn{
		dir:            dir,
		framer:         framer,
		table:          table,
		decoder:        hpack.NewDecoder(defaultHeaderTableSize, nil),
		connSendWindow: defaultWindowSize,
		connRecvWindow: defaultWindowSize,
		headerTableMax: defaultHeaderTableSize,
		onMessage:      onMessage,
	}
}

func (c *Conn) stream(id uint32) *Stream {
	s, ok := c.table.streams[id]
	if !ok {
		s = newStream(id)
		c.table.streams[id] = s
	}
	return s
}

// HandleFrame dispatches one decoded frame, updating stream and connection
// state. A non-ACK SETTINGS frame is acknowledged by writing a SETTINGS
// ACK through the Conn's own framer; the returned error reports a
// malformed frame or a failed ACK write.
func (c *Conn) HandleFrame(f http2.Frame) error {
	c.table.mu.Lock()
	defer c.table.mu.Unlock()

	switch fr := f.(type) {
	case *http2.SettingsFrame:
		return c.handleSettings(fr)
	case *http2.HeadersFrame:
		return c.handleHeaders(fr)
	case *http2.ContinuationFrame:
		return c.handleContinuation(fr)
	case *http2.DataFrame:
		return c.handleData(fr)
	case *http2.RSTStreamFrame:
		c.stream(fr.StreamID).applyRSTStream()
		return nil
	case *http2.WindowUpdateFrame:
		return c.handleWindowUpdate(fr)
	case *http2.PingFrame, *http2.GoAwayFrame, *http2.PriorityFrame, *http2.PushPromiseFrame:
		return nil
	default:
		return nil
	}
}

func (c *Conn) handleSettings(fr *http2.SettingsFrame) error {
	if fr.IsAck() {
		return nil
	}
	err := fr.ForeachSetting(func(s http2.Setting) error {
		if s.ID == http2.SettingHeaderTableSize {
			c.headerTableMax = s.Val
			c.decoder.SetMaxDynamicTableSize(s.Val)
		}
		return nil
	})
	if err != nil {
		return errs.New(errs.KindParse, "malformed SETTINGS frame", err)
	}
	return c.framer.WriteSettingsAck()
}

func (c *Conn) handleHeaders(fr *http2.HeadersFrame) error {
	s := c.stream(fr.StreamID)
	s.headerBlock.Reset()
	s.headerBlock.Write(fr.HeaderBlockFragment())

	if fr.HeadersEnded() {
		return c.finishHeaderBlock(s, fr.StreamEnded())
	}
	s.headerBlockPhase = headerPhaseRequest
	if c.dir == DirectionServer {
		s.headerBlockPhase = headerPhaseResponse
	}
	s.endStreamSeen = fr.StreamEnded()
	return nil
}

func (c *Conn) handleContinuation(fr *http2.ContinuationFrame) error {
	s := c.stream(fr.StreamID)
	s.headerBlock.Write(fr.HeaderBlockFragment())
	if !fr.HeadersEnded() {
		return nil
	}
	return c.finishHeaderBlock(s, s.endStreamSeen)
}

func (c *Conn) finishHeaderBlock(s *Stream, endStream bool) error {
	dst := s.ReqHeaders
	if c.dir == DirectionServer {
		dst = s.RespHeaders
	}
	if err := decodeHeaderBlock(c.decoder, s.headerBlock.Bytes(), dst); err != nil {
		return errs.New(errs.KindParse, "malformed HPACK block", err)
	}
	s.headerBlock.Reset()
	s.headerBlockPhase = headerPhaseNone
	s.applyHeadersOpen(endStream)
	c.maybeEmit(s)
	return nil
}

func (c *Conn) handleData(fr *http2.DataFrame) error {
	s := c.stream(fr.StreamID)
	data := fr.Data()
	if c.dir == DirectionServer {
		s.RespBody.Write(data)
	} else {
		s.ReqBody.Write(data)
	}
	if fr.StreamEnded() {
		s.applyEndStream()
	}
	c.maybeEmit(s)
	return nil
}

func (c *Conn) handleWindowUpdate(fr *http2.WindowUpdateFrame) error {
	if fr.StreamID == 0 {
		c.connRecvWindow += int32(fr.Increment)
		if c.connRecvWindow < 0 {
			return errs.New(errs.KindParse, "connection flow-control window went negative", nil)
		}
		return nil
	}
	s := c.stream(fr.StreamID)
	s.RecvWindow += int32(fr.Increment)
	if s.RecvWindow < 0 {
		return errs.New(errs.KindParse, fmt.Sprintf("stream %d flow-control window went negative", fr.StreamID), nil)
	}
	return nil
}

// maybeEmit fires onMessage once a stream has both a completed request and
// a completed response (or a request-only exchange that ended the stream
// from the client side, e.g. no response was ever captured).
func (c *Conn) maybeEmit(s *Stream) {
	if c.onMessage == nil {
		return
	}
	if s.emitted {
		return
	}
	if s.State != StreamHalfClosedRemote && s.State != StreamClosed {
		return
	}
	if s.ReqHeaders.Len() == 0 {
		return
	}
	s.emitted = true
	req := requestFromStream(s)
	var resp *flow.Response
	if s.RespHeaders.Len() > 0 {
		resp = responseFromStream(s)
	}
	c.onMessage(s.ID, req, resp)
}
