// Package h2 implements an HTTP/2 frame-level observer: a per-direction
// state machine built on golang.org/x/net/http2's Framer and HPACK decoder,
// with a stream table following RFC 7540 §5.1.
package h2

import (
	"bytes"

	"golang.org/x/net/http2/hpack"

	"github.com/syrahproxy/syrah/internal/flow"
)

// StreamState is a stream's position in the RFC 7540 §5.1 state machine.
type StreamState string

const (
	StreamIdle              StreamState = "Idle"
	StreamReservedLocal     StreamState = "ReservedLocal"
	StreamReservedRemote    StreamState = "ReservedRemote"
	StreamOpen              StreamState = "Open"
	StreamHalfClosedLocal   StreamState = "HalfClosedLocal"
	StreamHalfClosedRemote  StreamState = "HalfClosedRemote"
	StreamClosed            StreamState = "Closed"
)

// Stream is one HTTP/2 stream's accumulated state.
type Stream struct {
	ID    uint32
	State StreamState

	ReqHeaders  *flow.Headers
	RespHeaders *flow.Headers
	ReqBody     bytes.Buffer
	RespBody    bytes.Buffer

	SendWindow int32
	RecvWindow int32

	headerBlock      bytes.Buffer // accumulates HEADERS+CONTINUATION fragments
	headerBlockPhase headerPhase
	endStreamSeen    bool
	emitted          bool
}

type headerPhase int

const (
	headerPhaseNone headerPhase = iota
	headerPhaseRequest
	headerPhaseResponse
)

func newStream(id uint32) *Stream {
	return &Stream{
		ID:          id,
		State:       StreamIdle,
		ReqHeaders:  flow.NewHeaders(),
		RespHeaders: flow.NewHeaders(),
		SendWindow:  defaultWindowSize,
		RecvWindow:  defaultWindowSize,
	}
}

// IsClientInitiated reports whether id was opened by the client (odd ids),
// per RFC 7540 §5.1.1.
func IsClientInitiated(id uint32) bool {
	return id%2 == 1
}

// applyHeadersOpen transitions a stream on receipt of a HEADERS frame, per
// RFC 7540 §5.1: Idle -> Open (or a half-closed state if END_STREAM is set
// on the same frame).
func (s *Stream) applyHeadersOpen(endStream bool) {
	switch s.State {
	case StreamIdle:
		s.State = StreamOpen
	}
	if endStream {
		s.applyEndStream()
	}
}

func (s *Stream) applyEndStream() {
	switch s.State {
	case StreamOpen:
		s.State = StreamHalfClosedRemote
	case StreamHalfClosedLocal:
		s.State = StreamClosed
	}
	s.endStreamSeen = true
}

func (s *Stream) applyRSTStream() {
	s.State = StreamClosed
}

// requestComplete reports whether the stream has observed a full message in
// the sense needed to emit a synthetic HTTP exchange: request headers
// present and either a response has arrived or the stream only ever
// carried a one-way (client-initiated, no response expected) message.
func (s *Stream) requestComplete() bool {
	return s.headerBlockPhase == headerPhaseNone && s.ReqHeaders.Len() > 0 && (s.endStreamSeen || s.RespHeaders.Len() > 0)
}

func decodeHeaderBlock(decoder *hpack.Decoder, block []byte, dst *flow.Headers) error {
	fields, err := decoder.DecodeFull(block)
	if err != nil {
		return err
	}
	for _, f := range fields {
		dst.Add(f.Name, f.Value)
	}
	return nil
}
