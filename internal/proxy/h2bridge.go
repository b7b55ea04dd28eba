package proxy

import (
	"context"
	"io"
	"net"

	"golang.org/x/net/http2"

	"github.com/syrahproxy/syrah/internal/bridge"
	"github.com/syrahproxy/syrah/internal/flow"
	"github.com/syrahproxy/syrah/internal/h2"
	"github.com/syrahproxy/syrah/internal/rules"
)

// bridgeH2 forwards an intercepted HTTP/2 connection to its upstream
// unmodified while tee'ing both directions' raw bytes through a paired
// h2.Conn observer, emitting one flow per completed stream. Frame
// rewriting is out of scope: by the time a stream is observed complete
// its bytes are already forwarded, so rule decisions on h2 traffic are
// recorded (hit counters, bridge visibility) rather than applied to the
// wire.
func (m *Manager) bridgeH2(ctx context.Context, client net.Conn, host string, port int) {
	upstream, err := m.dialUpstream(ctx, host, port, true)
	if err != nil {
		return
	}
	defer upstream.Close()

	// The connection preface precedes the frame stream and isn't itself a
	// frame; forward it directly so the observer framers below only ever
	// see well-formed frames.
	preface := make([]byte, len(http2.ClientPreface))
	if _, err := io.ReadFull(client, preface); err != nil {
		return
	}
	if string(preface) != http2.ClientPreface {
		return
	}
	if _, err := upstream.Write(preface); err != nil {
		return
	}

	clientPR, clientPW := io.Pipe()
	serverPR, serverPW := io.Pipe()
	defer clientPW.Close()
	defer serverPW.Close()

	onComplete := func(streamID uint32, req *flow.Request, resp *flow.Response) {
		f := flow.New(m.sessionID, flow.ProtocolHTTP2)
		_ = f.RecordRequest(req)
		m.engine.Evaluate(rules.PhaseRequest, req, nil)
		if resp == nil {
			m.publishH2(f, req, nil)
			return
		}
		_ = f.RecordResponseHeaders(resp)
		m.engine.Evaluate(rules.PhaseResponse, req, resp)
		_ = f.CompleteResponse(resp)
		m.publishH2(f, req, resp)
	}

	clientFramer := http2.NewFramer(io.Discard, clientPR)
	serverFramer := http2.NewFramer(io.Discard, serverPR)
	clientConn, serverConn := h2.NewPairedConns(clientFramer, serverFramer, onComplete)

	done := make(chan struct{}, 4)
	go func() {
		defer func() { done <- struct{}{} }()
		_, _ = io.Copy(upstream, io.TeeReader(client, clientPW))
		clientPW.Close()
	}()
	go func() {
		defer func() { done <- struct{}{} }()
		_, _ = io.Copy(client, io.TeeReader(upstream, serverPW))
		serverPW.Close()
	}()
	go pumpObservedFrames(clientFramer, clientConn, done)
	go pumpObservedFrames(serverFramer, serverConn, done)

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (m *Manager) publishH2(f *flow.Flow, req *flow.Request, resp *flow.Response) {
	if m.hub == nil {
		return
	}
	m.hub.PublishFlow(bridge.FlowEvent{
		Type:        bridge.OutboundFlow,
		ID:          f.ID,
		Request:     req,
		Response:    resp,
		State:       f.CurrentState(),
		Intercepted: true,
	})
}

func pumpObservedFrames(framer *http2.Framer, conn *h2.Conn, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		f, err := framer.ReadFrame()
		if err != nil {
			return
		}
		if err := conn.HandleFrame(f); err != nil {
			return
		}
	}
}
