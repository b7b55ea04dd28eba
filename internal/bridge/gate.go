package bridge

import "sync"

// WaitResult is what a Paused flow's connection task receives once the UI
// issues a resume or kill command for it.
type WaitResult struct {
	Killed   bool
	Modified *ResumeModifiers
}

// Gate lets a connection task block on a Paused flow's resume/kill
// decision while the bridge's command loop, running on a different
// goroutine, resolves it.
type Gate struct {
	mu      sync.Mutex
	waiters map[string]chan WaitResult
}

// NewGate returns an empty Gate.
func NewGate() *Gate {
	return &Gate{waiters: make(map[string]chan WaitResult)}
}

// Register installs a waiter for flowID and returns the channel the
// connection task should block on. Only one waiter may be registered per
// flow ID at a time.
func (g *Gate) Register(flowID string) <-chan WaitResult {
	ch := make(chan WaitResult, 1)
	g.mu.Lock()
	g.waiters[flowID] = ch
	g.mu.Unlock()
	return ch
}

// Resolve delivers result to flowID's waiter, if one is registered. It
// reports whether a waiter was found.
func (g *Gate) Resolve(flowID string, result WaitResult) bool {
	g.mu.Lock()
	ch, ok := g.waiters[flowID]
	if ok {
		delete(g.waiters, flowID)
	}
	g.mu.Unlock()
	if !ok {
		return false
	}
	ch <- result
	return true
}

// Abandon removes flowID's waiter without resolving it, used when the
// connection task stops waiting on its own (e.g. context cancellation).
func (g *Gate) Abandon(flowID string) {
	g.mu.Lock()
	delete(g.waiters, flowID)
	g.mu.Unlock()
}
