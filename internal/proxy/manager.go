package proxy

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/syrahproxy/syrah/internal/bridge"
	"github.com/syrahproxy/syrah/internal/ca"
	"github.com/syrahproxy/syrah/internal/metrics"
	"github.com/syrahproxy/syrah/internal/rules"
)

// Manager binds the proxy's listening socket and spawns one task per
// accepted connection, wiring each connection's parsed flows through the
// rule engine and out to the bridge.
type Manager struct {
	cfg      Config
	logger   hclog.Logger
	caStore  *ca.Store
	leafs    *ca.LeafCache
	engine   *rules.Engine
	hub      *bridge.Hub
	gate     *bridge.Gate
	throttle *Throttle

	sessionID   string
	activeConns int64

	flowsMu sync.Mutex
	flows   map[string]context.CancelFunc
}

// NewManager wires a Manager from its dependencies. caStore/leafs may be
// nil when cfg.Intercept is false.
func NewManager(cfg Config, logger hclog.Logger, caStore *ca.Store, leafs *ca.LeafCache, engine *rules.Engine, hub *bridge.Hub, gate *bridge.Gate) *Manager {
	return &Manager{
		cfg:       cfg,
		logger:    logger,
		caStore:   caStore,
		leafs:     leafs,
		engine:    engine,
		hub:       hub,
		gate:      gate,
		throttle:  NewThrottle(cfg.Throttle),
		sessionID: "default",
		flows:     make(map[string]context.CancelFunc),
	}
}

// SetHub attaches the bridge hub after construction, for callers that must
// build the Hub from a reference to this Manager (as bridge.FlowKiller)
// before the Manager itself can be handed a non-nil Hub.
func (m *Manager) SetHub(hub *bridge.Hub) {
	m.hub = hub
}

// Serve binds cfg.ListenAddr and runs the accept loop until ctx is
// cancelled, at which point the listener and every in-flight connection
// task are torn down before Serve returns.
func (m *Manager) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", m.cfg.ListenAddr)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		<-groupCtx.Done()
		return ln.Close()
	})

	group.Go(func() error {
		for {
			nc, err := ln.Accept()
			if err != nil {
				select {
				case <-groupCtx.Done():
					return nil
				default:
					return err
				}
			}
			n := atomic.AddInt64(&m.activeConns, 1)
			metrics.Registry.SetGauge(metrics.ActiveConnections, float32(n))
			group.Go(func() error {
				defer func() {
					n := atomic.AddInt64(&m.activeConns, -1)
					metrics.Registry.SetGauge(metrics.ActiveConnections, float32(n))
				}()
				m.handleConn(groupCtx, nc)
				return nil
			})
		}
	})

	return group.Wait()
}
