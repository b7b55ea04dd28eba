package rules

import (
	"sort"
	"sync"

	"github.com/syrahproxy/syrah/internal/flow"
)

// DecisionKind tags the variant of Decision that is populated.
type DecisionKind string

const (
	DecisionContinue DecisionKind = "continue"
	DecisionShort    DecisionKind = "short"
	DecisionRedirect DecisionKind = "redirect"
	DecisionPause    DecisionKind = "pause"
)

// Decision is the result of evaluating a phase against a request/response.
type Decision struct {
	Kind DecisionKind

	// Short
	Response *flow.Response

	// Redirect
	NewUpstream string

	// Pause
	RuleID string
}

// Engine holds the active rule set, swapped atomically via UpdateRules so
// in-flight evaluations continue against the snapshot they started with.
type Engine struct {
	mu    sync.RWMutex
	rules []*Rule
	cache *compiledCache
}

// NewEngine returns an Engine with no rules loaded.
func NewEngine() *Engine {
	return &Engine{cache: newCompiledCache()}
}

// UpdateRules installs a new rule snapshot, sorted by priority descending
// then insertion order, atomically replacing whatever was active. The
// compiled-matcher cache is left as it is: compiled patterns stay cached,
// and a rule ID disabled by a compile error stays disabled.
func (e *Engine) UpdateRules(newRules []*Rule) {
	sorted := make([]*Rule, len(newRules))
	copy(sorted, newRules)
	for i, r := range sorted {
		r.insertionSeq = i
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	e.mu.Lock()
	e.rules = sorted
	e.mu.Unlock()
}

// Rules returns a copy of the currently active rule snapshot, in
// evaluation order.
func (e *Engine) Rules() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate runs phase's rules against req/resp in priority/insertion
// order; at most one non-Continue decision is applied (first one wins);
// RewriteHeader rules are cumulative and do not short-circuit.
func (e *Engine) Evaluate(phase Phase, req *flow.Request, resp *flow.Response) Decision {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		if r.Phase != PhaseBoth && r.Phase != phase {
			continue
		}
		if !matches(e.cache, r, req) {
			continue
		}

		switch r.Action.Kind {
		case ActionRewriteHdr:
			applyRewrite(r, req, resp)
			r.recordHit()
			continue
		case ActionBlock:
			r.recordHit()
			return Decision{Kind: DecisionShort, Response: blockResponse(r)}
		case ActionMapLocal:
			r.recordHit()
			return Decision{Kind: DecisionShort, Response: mapLocalResponse(r)}
		case ActionMapRemote:
			r.recordHit()
			return Decision{Kind: DecisionRedirect, NewUpstream: r.Action.TargetURL}
		case ActionBreakpoint:
			r.recordHit()
			return Decision{Kind: DecisionPause, RuleID: r.ID}
		}
	}

	return Decision{Kind: DecisionContinue}
}

func applyRewrite(r *Rule, req *flow.Request, resp *flow.Response) {
	var headers *flow.Headers
	switch {
	case r.Phase == PhaseResponse && resp != nil:
		headers = resp.Headers
	case req != nil:
		headers = req.Headers
	}
	if headers == nil {
		return
	}
	for name, value := range r.Action.SetHeaders {
		headers.Set(name, value)
	}
	for name, value := range r.Action.AddHeaders {
		headers.Add(name, value)
	}
	for _, name := range r.Action.RemoveHeaders {
		headers.Del(name)
	}
}

func blockResponse(r *Rule) *flow.Response {
	headers := flow.NewHeaders()
	body := &flow.Body{}
	if len(r.Action.Body) > 0 {
		body.Raw = r.Action.Body
		body.Text = string(r.Action.Body)
		body.HasText = true
	}
	headers.Set("Content-Length", contentLength(len(r.Action.Body)))
	status := r.Action.StatusCode
	if status == 0 {
		status = 403
	}
	return &flow.Response{
		StatusCode:    status,
		HTTPVersion:   "HTTP/1.1",
		Headers:       headers,
		Body:          body,
		ContentLength: int64(len(r.Action.Body)),
	}
}

func mapLocalResponse(r *Rule) *flow.Response {
	status := r.Action.StatusCode
	if status == 0 {
		status = 200
	}
	return &flow.Response{
		StatusCode:  status,
		HTTPVersion: "HTTP/1.1",
		Headers:     flow.NewHeaders(),
	}
}

func contentLength(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
