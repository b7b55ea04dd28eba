package bridge

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/syrahproxy/syrah/internal/metrics"
)

// pingTimeout is how long a subscriber may go without sending any frame
// before the hub considers it dead.
const pingTimeout = 30 * time.Second

// RuleUpdater is the subset of the rule engine the bridge needs to service
// the "updateRules" command.
type RuleUpdater interface {
	ReplaceRules(raw json.RawMessage) error
}

// FlowKiller aborts a flow by ID outside of the pause gate, for "kill"
// commands targeting a flow that isn't currently paused.
type FlowKiller interface {
	KillFlow(flowID string, reason string) error
}

// Hub accepts UI connections, fans flow events out to all of them
// (dropping events for a disconnected UI rather than buffering), and
// services inbound commands.
type Hub struct {
	logger hclog.Logger
	gate   *Gate
	rules  RuleUpdater
	killer FlowKiller

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

type subscriber struct {
	c          *conn
	send       chan interface{}
	lastActive time.Time
	mu         sync.Mutex
}

// NewHub returns a Hub wired to gate for pause/resume and rules for live
// rule-set replacement.
func NewHub(logger hclog.Logger, gate *Gate, rules RuleUpdater, killer FlowKiller) *Hub {
	return &Hub{
		logger:      logger,
		gate:        gate,
		rules:       rules,
		killer:      killer,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Serve accepts bridge connections on ln until it is closed.
func (h *Hub) Serve(ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			return err
		}
		go h.handleConn(nc)
	}
}

func (h *Hub) handleConn(nc net.Conn) {
	sub := &subscriber{
		c:          newConn(nc),
		send:       make(chan interface{}, 256),
		lastActive: time.Now(),
	}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	metrics.Registry.SetGauge(metrics.BridgeSubscribers, float32(len(h.subscribers)))
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.subscribers, sub)
		metrics.Registry.SetGauge(metrics.BridgeSubscribers, float32(len(h.subscribers)))
		h.mu.Unlock()
		sub.c.Close()
	}()

	go h.writeLoop(sub)
	h.readLoop(sub)
}

func (h *Hub) writeLoop(sub *subscriber) {
	for msg := range sub.send {
		if err := sub.c.writeJSON(msg); err != nil {
			h.logger.Debug("bridge write failed, dropping subscriber", "error", err)
			sub.c.Close()
			return
		}
	}
}

func (h *Hub) readLoop(sub *subscriber) {
	for {
		cmd, err := sub.c.readCommand()
		if err != nil {
			close(sub.send)
			return
		}
		sub.mu.Lock()
		sub.lastActive = time.Now()
		sub.mu.Unlock()
		h.handleCommand(sub, cmd)
	}
}

func (h *Hub) handleCommand(sub *subscriber, cmd *InboundCommand) {
	switch cmd.Command {
	case CommandPing:
		h.unicast(sub, PongEvent{Type: OutboundPong})
	case CommandResume:
		if !h.gate.Resolve(cmd.FlowID, WaitResult{Modified: cmd.Modified}) {
			h.logger.Warn("resume for unknown or already-resolved flow", "flow_id", cmd.FlowID)
		}
	case CommandKill:
		if !h.gate.Resolve(cmd.FlowID, WaitResult{Killed: true}) {
			if h.killer != nil {
				if err := h.killer.KillFlow(cmd.FlowID, "operator killed flow"); err != nil {
					h.logger.Warn("kill failed", "flow_id", cmd.FlowID, "error", err)
				}
			}
		}
	case CommandUpdateRules:
		if h.rules != nil {
			if err := h.rules.ReplaceRules(cmd.Rules); err != nil {
				h.logger.Warn("updateRules failed", "error", err)
			}
		}
	default:
		h.logger.Warn("unknown bridge command", "command", cmd.Command)
	}
}

func (h *Hub) unicast(sub *subscriber, msg interface{}) {
	select {
	case sub.send <- msg:
	default:
		h.logger.Debug("bridge subscriber send buffer full, dropping message")
	}
}

// Publish broadcasts msg to every connected subscriber, dropping it for
// any subscriber whose send buffer is full.
func (h *Hub) Publish(msg interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		select {
		case sub.send <- msg:
		default:
			metrics.Registry.IncrCounter(metrics.BridgeEventsDropped, 1)
		}
	}
}

// PublishFlow emits a FlowEvent for f's current state.
func (h *Hub) PublishFlow(ev FlowEvent) {
	h.Publish(ev)
}

// SweepDeadSubscribers closes any subscriber that hasn't sent a frame
// within pingTimeout. Callers should invoke this periodically (e.g. every
// 10 seconds) from a background goroutine.
func (h *Hub) SweepDeadSubscribers() {
	now := time.Now()
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		sub.mu.Lock()
		stale := now.Sub(sub.lastActive) > pingTimeout
		sub.mu.Unlock()
		if stale {
			sub.c.Close()
		}
	}
}
