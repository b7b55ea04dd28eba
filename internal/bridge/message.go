// Package bridge implements a length-framed JSON message bus between the
// proxy core (server) and an external UI (client).
package bridge

import (
	"encoding/json"

	"github.com/syrahproxy/syrah/internal/flow"
)

// OutboundType tags the outbound (proxy -> UI) message variants.
type OutboundType string

const (
	OutboundFlow   OutboundType = "flow"
	OutboundPong   OutboundType = "pong"
	OutboundStatus OutboundType = "status"
)

// FlowEvent is the "flow" outbound message: a snapshot of one flow's
// current state, emitted at most once per state transition.
type FlowEvent struct {
	Type        OutboundType   `json:"type"`
	ID          string         `json:"id"`
	Request     *flow.Request  `json:"request"`
	Response    *flow.Response `json:"response,omitempty"`
	State       flow.State     `json:"state"`
	Intercepted bool           `json:"intercepted"`
}

// StatusEvent is the "status" outbound message.
type StatusEvent struct {
	Type   OutboundType `json:"type"`
	Status string       `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// PongEvent is the "pong" outbound message sent in response to a ping.
type PongEvent struct {
	Type OutboundType `json:"type"`
}

// InboundCommand is the command envelope for UI -> proxy messages. Fields
// not relevant to Command are left zero.
type InboundCommand struct {
	Command  string           `json:"command"`
	FlowID   string           `json:"flowId,omitempty"`
	Modified *ResumeModifiers `json:"modified,omitempty"`
	Rules    json.RawMessage  `json:"rules,omitempty"`
}

// ResumeModifiers is the resume command's whitelist of request/response
// fields a UI may overwrite before a paused flow continues.
type ResumeModifiers struct {
	Method  string            `json:"method,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

const (
	CommandPing        = "ping"
	CommandResume      = "resume"
	CommandKill        = "kill"
	CommandUpdateRules = "updateRules"
)
