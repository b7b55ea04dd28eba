package bridge

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

type fakeRuleUpdater struct {
	received json.RawMessage
	err      error
}

func (f *fakeRuleUpdater) ReplaceRules(raw json.RawMessage) error {
	f.received = raw
	return f.err
}

type fakeKiller struct {
	killedFlowID string
}

func (f *fakeKiller) KillFlow(flowID, reason string) error {
	f.killedFlowID = flowID
	return nil
}

func newLoopbackPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	clientCh := make(chan net.Conn, 1)
	go func() {
		c, _ := net.Dial("tcp", ln.Addr().String())
		clientCh <- c
	}()
	server, err := ln.Accept()
	require.NoError(t, err)
	client := <-clientCh
	return server, client
}

func TestHubPingPong(t *testing.T) {
	server, client := newLoopbackPair(t)
	defer client.Close()

	hub := NewHub(hclog.NewNullLogger(), NewGate(), nil, nil)
	go hub.handleConn(server)

	clientConn := newConn(client)
	require.NoError(t, clientConn.writeJSON(InboundCommand{Command: CommandPing}))

	frame, err := clientConn.readFrame()
	require.NoError(t, err)
	var pong PongEvent
	require.NoError(t, json.Unmarshal(frame, &pong))
	require.Equal(t, OutboundPong, pong.Type)
}

func TestHubResumeResolvesGate(t *testing.T) {
	server, client := newLoopbackPair(t)
	defer client.Close()

	gate := NewGate()
	ch := gate.Register("flow-1")

	hub := NewHub(hclog.NewNullLogger(), gate, nil, nil)
	go hub.handleConn(server)

	clientConn := newConn(client)
	require.NoError(t, clientConn.writeJSON(InboundCommand{
		Command: CommandResume,
		FlowID:  "flow-1",
		Modified: &ResumeModifiers{Method: "PUT"},
	}))

	select {
	case result := <-ch:
		require.Equal(t, "PUT", result.Modified.Method)
	case <-time.After(2 * time.Second):
		t.Fatal("resume never resolved the gate")
	}
}

func TestHubKillFallsBackToFlowKillerWhenNotPaused(t *testing.T) {
	server, client := newLoopbackPair(t)
	defer client.Close()

	killer := &fakeKiller{}
	hub := NewHub(hclog.NewNullLogger(), NewGate(), nil, killer)
	go hub.handleConn(server)

	clientConn := newConn(client)
	require.NoError(t, clientConn.writeJSON(InboundCommand{Command: CommandKill, FlowID: "flow-9"}))

	require.Eventually(t, func() bool {
		return killer.killedFlowID == "flow-9"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubUpdateRulesDelegatesToRuleUpdater(t *testing.T) {
	server, client := newLoopbackPair(t)
	defer client.Close()

	updater := &fakeRuleUpdater{}
	hub := NewHub(hclog.NewNullLogger(), NewGate(), updater, nil)
	go hub.handleConn(server)

	clientConn := newConn(client)
	require.NoError(t, clientConn.writeJSON(InboundCommand{Command: CommandUpdateRules, Rules: json.RawMessage(`[{"id":"r1"}]`)}))

	require.Eventually(t, func() bool {
		return len(updater.received) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubPublishDropsWhenSubscriberBufferFull(t *testing.T) {
	server, client := newLoopbackPair(t)
	defer client.Close()
	_ = server

	hub := NewHub(hclog.NewNullLogger(), NewGate(), nil, nil)
	sub := &subscriber{c: newConn(server), send: make(chan interface{})} // unbuffered, never drained
	hub.subscribers[sub] = struct{}{}

	require.NotPanics(t, func() {
		hub.Publish(FlowEvent{Type: OutboundFlow, ID: "f1"})
	})
}
