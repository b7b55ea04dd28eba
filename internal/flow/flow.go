// Package flow implements the canonical request/response exchange, its
// state machine, and an append-only transition history.
package flow

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is one of the flow lifecycle states.
type State string

const (
	StatePending   State = "Pending"
	StateWaiting   State = "Waiting"
	StateReceiving State = "Receiving"
	StatePaused    State = "Paused"
	StateCompleted State = "Completed"
	StateFailed    State = "Failed"
	StateAborted   State = "Aborted"
)

// Protocol identifies the application-layer protocol of a flow.
type Protocol string

const (
	ProtocolHTTP      Protocol = "Http"
	ProtocolHTTPS     Protocol = "Https"
	ProtocolHTTP2     Protocol = "Http2"
	ProtocolWebSocket Protocol = "WebSocket"
)

// ErrAlreadyTerminal is returned by mutators invoked on a flow that has
// already reached a terminal state (Completed, Failed, Aborted).
var ErrAlreadyTerminal = errors.New("flow: already in a terminal state")

// ErrInvalidTransition is returned when a mutator is invoked from a state
// that transition table does not permit.
var ErrInvalidTransition = errors.New("flow: invalid state transition")

// Transition records one step of a flow's append-only audit trail.
type Transition struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	At        time.Time `json:"at"`
	Detail    string    `json:"detail,omitempty"`
}

// Flow is one observable request/response exchange.
type Flow struct {
	mu sync.Mutex

	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Request   *Request  `json:"request"`
	Response  *Response `json:"response,omitempty"`
	State     State     `json:"state"`
	Protocol  Protocol  `json:"protocol"`
	Error     string    `json:"error,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	IsMarked  bool      `json:"isMarked"`
	Tags      []string  `json:"tags,omitempty"`
	Notes     string    `json:"notes,omitempty"`

	History []Transition `json:"history"`
}

// New creates a Pending flow with a fresh monotonic-enough ID (a UUIDv4;
// ordering within a session is carried by CreatedAt, not by the ID itself).
func New(sessionID string, protocol Protocol) *Flow {
	now := time.Now()
	return &Flow{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		State:     StatePending,
		Protocol:  protocol,
		CreatedAt: now,
		UpdatedAt: now,
		History:   []Transition{{From: "", To: StatePending, At: now}},
	}
}

func (f *Flow) transitionLocked(to State, detail string) error {
	if f.isTerminalLocked() {
		return ErrAlreadyTerminal
	}
	if !isAllowed(f.State, to) {
		return ErrInvalidTransition
	}
	now := time.Now()
	f.History = append(f.History, Transition{From: f.State, To: to, At: now, Detail: detail})
	f.State = to
	f.UpdatedAt = now
	return nil
}

func (f *Flow) isTerminalLocked() bool {
	switch f.State {
	case StateCompleted, StateFailed, StateAborted:
		return true
	default:
		return false
	}
}

// isAllowed implements the transition table:
//
//	Pending -> Waiting -> Receiving -> Completed
//	(Pending | Waiting | Receiving) -> Paused -> Completed
//	anywhere -> Failed
//	anywhere -> Aborted
//
// Resume moves a Paused flow back to Waiting without consulting this table.
func isAllowed(from, to State) bool {
	if to == StateFailed || to == StateAborted {
		return true
	}
	switch from {
	case StatePending:
		return to == StateWaiting || to == StatePaused
	case StateWaiting:
		return to == StateReceiving || to == StatePaused
	case StateReceiving:
		return to == StateCompleted || to == StatePaused
	case StatePaused:
		return to == StateCompleted
	default:
		return false
	}
}

// RecordRequest attaches req and moves the flow to Waiting.
func (f *Flow) RecordRequest(req *Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.transitionLocked(StateWaiting, "request received"); err != nil {
		return err
	}
	f.Request = req
	return nil
}

// RecordResponseHeaders attaches resp (without requiring the body to be
// complete yet) and moves the flow to Receiving.
func (f *Flow) RecordResponseHeaders(resp *Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.transitionLocked(StateReceiving, "response headers received"); err != nil {
		return err
	}
	f.Response = resp
	return nil
}

// CompleteResponse finalizes resp (with its body, if any) and moves the
// flow to Completed. Invariant: state = Completed implies response.status
// >= 100, enforced here.
func (f *Flow) CompleteResponse(resp *Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if resp == nil || resp.StatusCode < 100 {
		return errors.New("flow: cannot complete with a response below status 100")
	}
	if err := f.transitionLocked(StateCompleted, "response complete"); err != nil {
		return err
	}
	f.Response = resp
	return nil
}

// Pause transitions a flow awaiting a breakpoint decision into Paused. Only
// legal from Waiting, Receiving, or Pending (Pending is included so a
// request-phase breakpoint can pause before the request is even recorded
// against the flow).
func (f *Flow) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.State != StatePending && f.State != StateWaiting && f.State != StateReceiving {
		if f.isTerminalLocked() {
			return ErrAlreadyTerminal
		}
		return ErrInvalidTransition
	}
	return f.transitionLocked(StatePaused, "paused at breakpoint")
}

// Resume transitions a Paused flow onward. modified indicates whether the
// resume command carried a modification (recorded for audit purposes only;
// the caller is responsible for applying the modification to Request
// before calling Resume).
func (f *Flow) Resume(modified bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.State != StatePaused {
		if f.isTerminalLocked() {
			return ErrAlreadyTerminal
		}
		return ErrInvalidTransition
	}
	detail := "resumed"
	if modified {
		detail = "resumed with modification"
	}
	f.State = StateWaiting
	f.UpdatedAt = time.Now()
	f.History = append(f.History, Transition{From: StatePaused, To: StateWaiting, At: f.UpdatedAt, Detail: detail})
	return nil
}

// Kill transitions the flow to Aborted.
func (f *Flow) Kill(reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transitionLocked(StateAborted, reason)
}

// Fail transitions the flow to Failed, recording err's message.
func (f *Flow) Fail(err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if terr := f.transitionLocked(StateFailed, err.Error()); terr != nil {
		return terr
	}
	f.Error = err.Error()
	return nil
}

// Snapshot returns a JSON-serializable copy of the flow's current state,
// safe to hand to the bridge without holding the flow's lock.
func (f *Flow) Snapshot() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return json.Marshal(f)
}

// CurrentState returns the flow's current state.
func (f *Flow) CurrentState() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.State
}

// Mark sets or clears the operator "starred" flag.
func (f *Flow) Mark(marked bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.IsMarked = marked
	f.UpdatedAt = time.Now()
}

// AddTag appends a tag if not already present.
func (f *Flow) AddTag(tag string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.Tags {
		if t == tag {
			return
		}
	}
	f.Tags = append(f.Tags, tag)
	f.UpdatedAt = time.Now()
}

// SetNotes replaces the flow's free-text notes.
func (f *Flow) SetNotes(notes string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Notes = notes
	f.UpdatedAt = time.Now()
}
