// Package metrics exposes proxy-wide gauges and counters through a
// prometheus sink: armon/go-metrics feeding a prometheus.PrometheusSink.
package metrics

import (
	"github.com/armon/go-metrics"
	"github.com/armon/go-metrics/prometheus"
)

var (
	ActiveConnections   = []string{"syrah", "active_connections"}
	PausedFlows         = []string{"syrah", "paused_flows"}
	LeafCacheSize       = []string{"syrah", "leaf_cache_size"}
	BridgeSubscribers   = []string{"syrah", "bridge_subscribers"}
	FlowsCompleted      = []string{"syrah", "flows_completed"}
	FlowsFailed         = []string{"syrah", "flows_failed"}
	RuleHits            = []string{"syrah", "rule_hits"}
	LeafCertsGenerated  = []string{"syrah", "leaf_certs_generated"}
	BridgeEventsDropped = []string{"syrah", "bridge_events_dropped"}
)

// Registry is the process-wide metrics sink. It is a package-level var so
// every component can report without threading a sink through every
// constructor.
var Registry metrics.MetricSink

func init() {
	sink, err := prometheus.NewPrometheusSinkFrom(prometheus.PrometheusOpts{
		GaugeDefinitions: []prometheus.GaugeDefinition{
			{Name: ActiveConnections, Help: "The number of currently open client connections"},
			{Name: PausedFlows, Help: "The number of flows currently paused at a breakpoint"},
			{Name: LeafCacheSize, Help: "The number of leaf certificates currently cached"},
			{Name: BridgeSubscribers, Help: "The number of bridge UI clients currently connected"},
		},
		CounterDefinitions: []prometheus.CounterDefinition{
			{Name: FlowsCompleted, Help: "The total number of flows that reached the Completed state"},
			{Name: FlowsFailed, Help: "The total number of flows that reached the Failed state"},
			{Name: RuleHits, Help: "The total number of non-Continue rule decisions applied"},
			{Name: LeafCertsGenerated, Help: "The total number of leaf certificates generated"},
			{Name: BridgeEventsDropped, Help: "The total number of bridge events dropped because a UI client's send buffer was full"},
		},
	})
	if err != nil {
		panic(err)
	}
	Registry = sink
}
