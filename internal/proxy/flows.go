package proxy

import (
	"context"

	"github.com/syrahproxy/syrah/internal/errs"
)

// registerFlow tracks flowID against the cancel func for its in-flight
// exchange context, so a bridge "kill" command that targets a flow which
// is not currently paused at a breakpoint can still abort it.
func (m *Manager) registerFlow(flowID string, cancel context.CancelFunc) {
	m.flowsMu.Lock()
	defer m.flowsMu.Unlock()
	m.flows[flowID] = cancel
}

func (m *Manager) unregisterFlow(flowID string) {
	m.flowsMu.Lock()
	defer m.flowsMu.Unlock()
	delete(m.flows, flowID)
}

// KillFlow implements bridge.FlowKiller. It cancels the exchange context
// for flowID, which unblocks whichever throttle wait, dial, or breakpoint
// pause the exchange is currently parked on. It reports an error if the
// flow is unknown (already completed, or never existed).
func (m *Manager) KillFlow(flowID string, reason string) error {
	m.flowsMu.Lock()
	cancel, ok := m.flows[flowID]
	m.flowsMu.Unlock()
	if !ok {
		return errs.New(errs.KindBridge, "unknown flow: "+flowID, nil)
	}
	cancel()
	return nil
}
