package rules

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/syrahproxy/syrah/internal/flow"
)

func TestEvaluateContinueWhenNoRuleMatches(t *testing.T) {
	e := NewEngine()
	e.UpdateRules([]*Rule{
		NewRule("r1", "", TypeBlock, PhaseRequest, Matcher{Kind: MatcherHost, Host: "ads.example.test"}, Action{Kind: ActionBlock}, 0),
	})

	d := e.Evaluate(PhaseRequest, &flow.Request{Host: "example.test"}, nil)
	require.Equal(t, DecisionContinue, d.Kind)
}

func TestEvaluateBlockShortCircuits(t *testing.T) {
	e := NewEngine()
	r := NewRule("r1", "", TypeBlock, PhaseRequest, Matcher{Kind: MatcherHost, Host: "ads.example.test"}, Action{Kind: ActionBlock, StatusCode: 451}, 0)
	e.UpdateRules([]*Rule{r})

	d := e.Evaluate(PhaseRequest, &flow.Request{Host: "ads.example.test"}, nil)
	require.Equal(t, DecisionShort, d.Kind)
	require.Equal(t, 451, d.Response.StatusCode)
	require.Equal(t, int64(1), r.HitCount())
}

func TestEvaluatePriorityDescendingThenInsertionOrder(t *testing.T) {
	e := NewEngine()
	low := NewRule("low", "", TypeMapRemote, PhaseRequest, Matcher{Kind: MatcherHost, Host: "example.test"}, Action{Kind: ActionMapRemote, TargetURL: "http://low"}, 1)
	high := NewRule("high", "", TypeMapRemote, PhaseRequest, Matcher{Kind: MatcherHost, Host: "example.test"}, Action{Kind: ActionMapRemote, TargetURL: "http://high"}, 10)
	e.UpdateRules([]*Rule{low, high})

	d := e.Evaluate(PhaseRequest, &flow.Request{Host: "example.test"}, nil)
	require.Equal(t, DecisionRedirect, d.Kind)
	require.Equal(t, "http://high", d.NewUpstream)
}

func TestEvaluateRewriteHeaderIsCumulativeAndNonShortCircuiting(t *testing.T) {
	e := NewEngine()
	rw1 := NewRule("rw1", "", TypeRewrite, PhaseRequest, Matcher{Kind: MatcherHost, Host: "example.test"},
		Action{Kind: ActionRewriteHdr, SetHeaders: map[string]string{"X-One": "1"}}, 20)
	rw2 := NewRule("rw2", "", TypeRewrite, PhaseRequest, Matcher{Kind: MatcherHost, Host: "example.test"},
		Action{Kind: ActionRewriteHdr, SetHeaders: map[string]string{"X-Two": "2"}}, 10)
	block := NewRule("block", "", TypeBlock, PhaseRequest, Matcher{Kind: MatcherHost, Host: "example.test"},
		Action{Kind: ActionBlock, StatusCode: 403}, 0)
	e.UpdateRules([]*Rule{rw1, rw2, block})

	req := &flow.Request{Host: "example.test", Headers: flow.NewHeaders()}
	d := e.Evaluate(PhaseRequest, req, nil)

	require.Equal(t, DecisionShort, d.Kind)
	v1, _ := req.Headers.Get("X-One")
	v2, _ := req.Headers.Get("X-Two")
	require.Equal(t, "1", v1)
	require.Equal(t, "2", v2)
	require.Equal(t, int64(1), rw1.HitCount())
	require.Equal(t, int64(1), rw2.HitCount())
	require.Equal(t, int64(1), block.HitCount())
}

func TestEvaluateDisabledRuleIsSkipped(t *testing.T) {
	e := NewEngine()
	r := NewRule("r1", "", TypeBlock, PhaseRequest, Matcher{Kind: MatcherHost, Host: "example.test"}, Action{Kind: ActionBlock}, 0)
	r.Enabled = false
	e.UpdateRules([]*Rule{r})

	d := e.Evaluate(PhaseRequest, &flow.Request{Host: "example.test"}, nil)
	require.Equal(t, DecisionContinue, d.Kind)
	require.Equal(t, int64(0), r.HitCount())
}

func TestEvaluateBreakpointPauses(t *testing.T) {
	e := NewEngine()
	r := NewRule("bp1", "", TypeBreakpoint, PhaseRequest, Matcher{Kind: MatcherHost, Host: "example.test"}, Action{Kind: ActionBreakpoint}, 0)
	e.UpdateRules([]*Rule{r})

	d := e.Evaluate(PhaseRequest, &flow.Request{Host: "example.test"}, nil)
	require.Equal(t, DecisionPause, d.Kind)
	require.Equal(t, "bp1", d.RuleID)
}

func TestEvaluatePhaseBothAppliesToRequestAndResponse(t *testing.T) {
	e := NewEngine()
	r := NewRule("rw1", "", TypeRewrite, PhaseBoth, Matcher{Kind: MatcherHost, Host: "example.test"},
		Action{Kind: ActionRewriteHdr, SetHeaders: map[string]string{"X-Both": "1"}}, 0)
	e.UpdateRules([]*Rule{r})

	req := &flow.Request{Host: "example.test", Headers: flow.NewHeaders()}
	e.Evaluate(PhaseRequest, req, nil)
	v, _ := req.Headers.Get("X-Both")
	require.Equal(t, "1", v)

	resp := &flow.Response{Headers: flow.NewHeaders()}
	e.Evaluate(PhaseResponse, req, resp)
	v, _ = resp.Headers.Get("X-Both")
	require.Equal(t, "1", v)
}
