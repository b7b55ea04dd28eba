// Package server implements `syrah server`, wiring the Connection Manager,
// Root CA Store, Rule Engine, and Bridge Protocol server into one running
// process.
package server

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"golang.org/x/sync/errgroup"

	"github.com/syrahproxy/syrah/internal/bridge"
	"github.com/syrahproxy/syrah/internal/ca"
	"github.com/syrahproxy/syrah/internal/common"
	"github.com/syrahproxy/syrah/internal/config"
	"github.com/syrahproxy/syrah/internal/logging"
	"github.com/syrahproxy/syrah/internal/metrics"
	"github.com/syrahproxy/syrah/internal/profiling"
	"github.com/syrahproxy/syrah/internal/rules"
	"github.com/syrahproxy/syrah/internal/rulestore"

	proxypkg "github.com/syrahproxy/syrah/internal/proxy"
)

const sweepInterval = 10 * time.Second

// Exit codes per the external interfaces' bind/CA-failure conditions.
const (
	exitClean     = 0
	exitGeneric   = 1
	exitBindFail  = 2
	exitCAFailure = 3
)

// Command runs the proxy's listener, bridge server, and (optionally) its
// metrics/pprof endpoints until the process receives a termination signal.
type Command struct {
	UI     cli.Ui
	output io.Writer
	ctx    context.Context

	flagConfigFile    string
	flagListenAddr    string
	flagBridgeAddr    string
	flagCADir         string
	flagRulesFile     string
	flagIntercept     bool
	flagInsecureUp    bool
	flagMetricsAddr   string
	flagProfilingAddr string
	flagLogLevel      string
	flagLogJSON       bool
	flagUploadBPS     int
	flagDownloadBPS   int
	flagLossPercent   float64

	flagSet *flag.FlagSet
	once    sync.Once
}

// New returns a new server command.
func New(ctx context.Context, ui cli.Ui, logOutput io.Writer) *Command {
	return &Command{UI: ui, output: common.SynchronizeWriter(logOutput), ctx: ctx}
}

func (c *Command) init() {
	c.flagSet = flag.NewFlagSet("", flag.ContinueOnError)
	c.flagSet.StringVar(&c.flagConfigFile, "config-file", "", "Path to a JSON config file. Flags take precedence over its contents.")
	c.flagSet.StringVar(&c.flagListenAddr, "listen-addr", "", "Address the proxy listens for client connections on.")
	c.flagSet.StringVar(&c.flagBridgeAddr, "bridge-addr", "", "Address the bridge protocol server listens on.")
	c.flagSet.StringVar(&c.flagCADir, "ca-dir", "", "Directory holding the root CA's key and certificate artifacts.")
	c.flagSet.StringVar(&c.flagRulesFile, "rules-file", "", "Path to the persisted rule set.")
	c.flagSet.BoolVar(&c.flagIntercept, "intercept", false, "Terminate TLS on CONNECT tunnels and parse the plaintext traffic.")
	c.flagSet.BoolVar(&c.flagInsecureUp, "insecure-skip-verify-upstream", false, "Disable upstream TLS certificate verification.")
	c.flagSet.StringVar(&c.flagMetricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on. Empty disables the metrics server.")
	c.flagSet.StringVar(&c.flagProfilingAddr, "pprof-addr", "", "Address to serve net/http/pprof on. Empty disables the pprof server.")
	c.flagSet.StringVar(&c.flagLogLevel, "log-level", "", "Log verbosity: trace, debug, info, warn, error.")
	c.flagSet.BoolVar(&c.flagLogJSON, "log-json", false, "Emit logs as JSON.")
	c.flagSet.IntVar(&c.flagUploadBPS, "upload-bytes-per-sec", 0, "Upload throttle, in bytes per second. 0 disables it.")
	c.flagSet.IntVar(&c.flagDownloadBPS, "download-bytes-per-sec", 0, "Download throttle, in bytes per second. 0 disables it.")
	c.flagSet.Float64Var(&c.flagLossPercent, "loss-percent", 0, "Percentage of egress bytes to drop, for fault injection.")
}

func (c *Command) Run(args []string) int {
	c.once.Do(c.init)
	c.flagSet.SetOutput(c.output)
	if err := c.flagSet.Parse(args); err != nil {
		c.UI.Error("error parsing flags: " + err.Error())
		return exitGeneric
	}

	cfg, err := config.LoadFile(c.flagConfigFile)
	if err != nil {
		c.UI.Error("error loading config file: " + err.Error())
		return exitGeneric
	}
	c.applyFlagOverrides(&cfg)

	logger := logging.CreateLogger(c.output, cfg.LogLevel, cfg.LogJSON, "syrah-server")

	return c.run(cfg, logger)
}

func (c *Command) applyFlagOverrides(cfg *config.Config) {
	set := make(map[string]bool)
	c.flagSet.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["listen-addr"] {
		cfg.ListenAddr = c.flagListenAddr
	}
	if set["bridge-addr"] {
		cfg.BridgeAddr = c.flagBridgeAddr
	}
	if set["ca-dir"] {
		cfg.CADir = c.flagCADir
	}
	if set["rules-file"] {
		cfg.RulesFile = c.flagRulesFile
	}
	if set["intercept"] {
		cfg.Intercept = c.flagIntercept
	}
	if set["insecure-skip-verify-upstream"] {
		cfg.InsecureSkipVerifyUpstream = c.flagInsecureUp
	}
	if set["metrics-addr"] {
		cfg.MetricsAddr = c.flagMetricsAddr
	}
	if set["pprof-addr"] {
		cfg.ProfilingAddr = c.flagProfilingAddr
	}
	if set["log-level"] {
		cfg.LogLevel = c.flagLogLevel
	}
	if set["log-json"] {
		cfg.LogJSON = c.flagLogJSON
	}
	if set["upload-bytes-per-sec"] {
		cfg.UploadBytesPerSecond = c.flagUploadBPS
	}
	if set["download-bytes-per-sec"] {
		cfg.DownloadBytesPerSecond = c.flagDownloadBPS
	}
	if set["loss-percent"] {
		cfg.LossPercent = c.flagLossPercent
	}
}

func (c *Command) run(cfg config.Config, logger hclog.Logger) int {
	caStore := ca.NewStore(cfg.CADir)
	if _, err := caStore.Load(); err != nil {
		logger.Error("failed to load root CA", "error", err)
		return exitCAFailure
	}
	leafs := ca.NewLeafCache(caStore, ca.DefaultCapacity)

	store := rulestore.NewStore(cfg.RulesFile)
	initialRules, err := store.Load()
	if err != nil {
		logger.Error("failed to load rule set", "error", err)
		return exitGeneric
	}
	engine := rules.NewEngine()
	engine.UpdateRules(initialRules)
	bound := rulestore.Bind(engine, store)

	gate := bridge.NewGate()
	manager := proxypkg.NewManager(cfg.ProxyConfig(), logger.Named("proxy"), caStore, leafs, engine, nil, gate)
	hub := bridge.NewHub(logger.Named("bridge"), gate, bound, manager)
	manager.SetHub(hub)

	bridgeLn, err := net.Listen("tcp", cfg.BridgeAddr)
	if err != nil {
		logger.Error("failed to bind bridge address", "address", cfg.BridgeAddr, "error", err)
		return exitBindFail
	}

	ctx, stop := signal.NotifyContext(c.ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return manager.Serve(groupCtx)
	})

	group.Go(func() error {
		go func() {
			<-groupCtx.Done()
			bridgeLn.Close()
		}()
		return hub.Serve(bridgeLn)
	})

	group.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				hub.SweepDeadSubscribers()
			}
		}
	})

	if cfg.MetricsAddr != "" {
		group.Go(func() error {
			return metrics.RunServer(groupCtx, logger.Named("metrics"), cfg.MetricsAddr)
		})
	}
	if cfg.ProfilingAddr != "" {
		group.Go(func() error {
			return profiling.RunServer(groupCtx, logger.Named("pprof"), cfg.ProfilingAddr)
		})
	}

	logger.Info("syrah server started", "listen_addr", cfg.ListenAddr, "bridge_addr", cfg.BridgeAddr, "intercept", cfg.Intercept)
	if err := group.Wait(); err != nil && groupCtx.Err() == nil {
		logger.Error("server exited with error", "error", err)
		return exitGeneric
	}
	return exitClean
}

func (c *Command) Synopsis() string {
	return "Runs the MITM proxy, its bridge protocol server, and optional metrics/pprof endpoints"
}

func (c *Command) Help() string {
	return fmt.Sprintf(`
Usage: syrah server [options]

  Starts the proxy listener, the bridge protocol server that a UI client
  connects to, and (optionally) Prometheus metrics and pprof endpoints.

Options:

%s
`, helpForFlags(c))
}

func helpForFlags(c *Command) string {
	c.once.Do(c.init)
	names := []string{
		"config-file", "listen-addr", "bridge-addr", "ca-dir", "rules-file",
		"intercept", "insecure-skip-verify-upstream", "metrics-addr", "pprof-addr",
		"log-level", "log-json", "upload-bytes-per-sec", "download-bytes-per-sec", "loss-percent",
	}
	out := ""
	c.flagSet.VisitAll(func(f *flag.Flag) {
		for _, n := range names {
			if f.Name == n {
				out += fmt.Sprintf("  -%-30s %s\n", f.Name, f.Usage)
			}
		}
	})
	return out
}
