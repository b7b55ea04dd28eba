package proxy

import (
	"context"

	"github.com/syrahproxy/syrah/internal/bridge"
	"github.com/syrahproxy/syrah/internal/flow"
	"github.com/syrahproxy/syrah/internal/rules"
)

// exchange carries the per-request state a connection task threads
// through rule evaluation, an optional breakpoint pause, and bridge
// emission for one request/response pair.
type exchange struct {
	f           *flow.Flow
	req         *flow.Request
	resp        *flow.Response
	intercepted bool
}

// publish emits the exchange's flow at its current state, per the
// at-most-once-per-transition delivery model.
func (m *Manager) publish(ex *exchange) {
	if m.hub == nil {
		return
	}
	m.hub.PublishFlow(bridge.FlowEvent{
		Type:        bridge.OutboundFlow,
		ID:          ex.f.ID,
		Request:     ex.req,
		Response:    ex.resp,
		State:       ex.f.CurrentState(),
		Intercepted: ex.intercepted,
	})
}

// applyDecision runs one phase of rule evaluation and applies its result.
// killed reports whether the flow was killed while paused awaiting a
// breakpoint decision; the caller must abort the exchange in that case.
func (m *Manager) applyDecision(ctx context.Context, phase rules.Phase, ex *exchange) (decision rules.Decision, killed bool, err error) {
	decision = m.engine.Evaluate(phase, ex.req, ex.resp)

	if decision.Kind != rules.DecisionPause {
		return decision, false, nil
	}

	if err := ex.f.Pause(); err != nil {
		return decision, false, err
	}
	m.publish(ex)

	ch := m.gate.Register(ex.f.ID)
	select {
	case result := <-ch:
		if result.Killed {
			_ = ex.f.Kill("operator killed paused flow")
			return decision, true, nil
		}
		if result.Modified != nil {
			applyResumeModifiers(ex.req, ex.resp, phase, result.Modified)
		}
		if err := ex.f.Resume(result.Modified != nil); err != nil {
			return decision, false, err
		}
	case <-ctx.Done():
		m.gate.Abandon(ex.f.ID)
		_ = ex.f.Kill("connection closed while paused")
		return decision, true, nil
	}

	// Re-run evaluation post-resume so a modified request/response is
	// still subject to any Short/Redirect rule that now matches.
	return m.engine.Evaluate(phase, ex.req, ex.resp), false, nil
}

// applyResumeModifiers applies the resume command's whitelist (method,
// url, headers, body) to whichever side of the exchange the pausing
// phase was evaluating.
func applyResumeModifiers(req *flow.Request, resp *flow.Response, phase rules.Phase, mods *bridge.ResumeModifiers) {
	if phase == rules.PhaseResponse {
		if resp == nil {
			return
		}
		if mods.Body != "" {
			resp.Body = &flow.Body{Raw: []byte(mods.Body), Text: mods.Body, HasText: true}
		}
		for name, value := range mods.Headers {
			resp.Headers.Set(name, value)
		}
		return
	}
	if req == nil {
		return
	}
	if mods.Method != "" {
		req.Method = flow.Method(mods.Method)
	}
	if mods.URL != "" {
		req.URL = mods.URL
	}
	if mods.Body != "" {
		req.Body = &flow.Body{Raw: []byte(mods.Body), Text: mods.Body, HasText: true}
	}
	for name, value := range mods.Headers {
		req.Headers.Set(name, value)
	}
}
