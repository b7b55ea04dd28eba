package proxy

import (
	"context"
	"io"
	"net"

	"github.com/syrahproxy/syrah/internal/bridge"
	"github.com/syrahproxy/syrah/internal/flow"
	"github.com/syrahproxy/syrah/internal/wsframe"
)

// bridgeWebSocket splices an upgraded connection's bytes unmodified while
// tee'ing both directions through wsframe's decoder and reassembler, so
// each fully reassembled message is observed and published as a flow of
// its own (Protocol WebSocket). Like bridgeH2, message content cannot be
// rewritten in place here: the bytes are already on the wire by the time
// a message is fully reassembled.
func (m *Manager) bridgeWebSocket(ctx context.Context, client, upstream net.Conn, host string) {
	done := make(chan struct{}, 4)

	go m.copyAndObserveWS(client, upstream, host, "client", done)
	go m.copyAndObserveWS(upstream, client, host, "server", done)

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (m *Manager) copyAndObserveWS(src, dst net.Conn, host, origin string, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	pr, pw := io.Pipe()
	go func() {
		_, _ = io.Copy(dst, io.TeeReader(src, pw))
		pw.Close()
	}()

	var reassembler wsframe.Reassembler
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := pr.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for {
				f, consumed, ok, ferr := wsframe.DecodeFrame(buf)
				if ferr != nil || !ok {
					break
				}
				buf = buf[consumed:]
				msg, merr := reassembler.Feed(f)
				if merr != nil {
					continue
				}
				if msg != nil {
					m.publishWSMessage(host, origin, msg)
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (m *Manager) publishWSMessage(host, origin string, msg *wsframe.Message) {
	if m.hub == nil {
		return
	}
	f := flow.New(m.sessionID, flow.ProtocolWebSocket)
	req := &flow.Request{
		Method: flow.MethodGet,
		URL:    "wss://" + host,
		Host:   host,
		Body:   &flow.Body{Raw: msg.Payload, Text: string(msg.Payload), HasText: true},
	}
	_ = f.RecordRequest(req)
	f.AddTag(origin)
	m.hub.PublishFlow(bridge.FlowEvent{
		Type:        bridge.OutboundFlow,
		ID:          f.ID,
		Request:     req,
		State:       f.CurrentState(),
		Intercepted: true,
	})
}
