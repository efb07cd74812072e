// Command nscc-agent loads an NSCC configuration, derives the Scaling
// Oracle's parameters, and serves Prometheus metrics and a health
// endpoint for the flows its FlowManager holds. It does not simulate a
// network and opens no flows itself: OpenFlow/CloseFlow are for whatever
// host process links against internal/agent.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/dipsingh/nscc/internal/agent"
	"github.com/dipsingh/nscc/internal/congestion"
	"github.com/dipsingh/nscc/internal/config"
	"github.com/dipsingh/nscc/internal/hostnic"
	"github.com/dipsingh/nscc/internal/metrics"
	"github.com/dipsingh/nscc/internal/multipath"
	"github.com/dipsingh/nscc/internal/topology"
)

var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
	startTime = time.Now()
)

func main() {
	configPath := flag.String("c", "nscc.yaml", "configuration file path")
	showVersion := flag.Bool("v", false, "print version and exit")
	genConfig := flag.Bool("gen-config", false, "write an example configuration file and exit")

	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}

	if *genConfig {
		if err := config.WriteExampleConfig("nscc.example.yaml"); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write example config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("wrote nscc.example.yaml")
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	oracle, err := buildTopologyOracle(cfg.Topology)
	if err != nil {
		fmt.Fprintf(os.Stderr, "topology error: %v\n", err)
		os.Exit(1)
	}

	params := congestion.DeriveParams(congestion.OracleInput{
		LinkSpeedBitsPerSec:      cfg.Oracle.LinkSpeedBitsPerSec(),
		NetworkRTT:               cfg.Oracle.NetworkRTT(),
		TargetQdelayOverride:     cfg.Oracle.TargetQdelayOverride(),
		MTU:                      cfg.Oracle.MTU,
		Multiplier:               cfg.Oracle.Multiplier,
		QAGate:                   cfg.Oracle.QAGate,
		AdjustBytesThresholdMTUs: cfg.Oracle.AdjustBytesThresholdMTUs,
		TrimmingEnabled:          cfg.Oracle.TrimmingEnabled,
	})

	var engine *multipath.QualityEngine
	if cfg.Multipath.Enabled {
		engine = multipath.NewQualityEngine(hostnic.RealClock{}, cfg.Multipath.Cooldown(), cfg.Multipath.Paths)
	}

	var metricsServer *metrics.Server
	var m *metrics.Metrics

	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path, cfg.Metrics.HealthPath, cfg.Metrics.EnablePprof)
		m = metrics.New(metricsServer.Registry())
	}

	nic := hostnic.NewPacedNIC(
		hostnic.NullNIC{LinkSpeedBitsPerSec: cfg.Oracle.LinkSpeedBitsPerSec(), Clock: hostnic.RealClock{}},
		float64(cfg.Oracle.LinkSpeedBitsPerSec())/8,
		int(cfg.Oracle.MTU),
		time.Now(),
	)

	manager := agent.NewFlowManager(params, cfg.Oracle.LinkSpeedBitsPerSec(), hostnic.RealClock{}, nic, nil, oracle, engine, m)

	if metricsServer != nil {
		metricsServer.MustRegisterCollector(metrics.NewFlowCollector(manager))
		if engine != nil {
			metricsServer.MustRegisterCollector(metrics.NewPathCollector(agent.PathEngine{Engine: engine}))
		}

		metricsServer.SetHealthCheck(func() metrics.HealthStatus {
			return healthStatus(cfg, engine)
		})

		if err := metricsServer.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "metrics server failed to start: %v\n", err)
		}
	}

	go quickAdaptLoop(ctx, manager)

	printBanner(cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("shutting down...")
	cancel()

	if metricsServer != nil {
		metricsServer.Stop()
	}
}

func buildTopologyOracle(cfg config.TopologyConfig) (topology.Oracle, error) {
	switch cfg.Mode {
	case "diameter":
		return topology.DiameterOracle{Diameter: cfg.Diameter()}, nil
	case "probe":
		return nil, fmt.Errorf("topology.mode \"probe\" requires a host-provided topology.Prober; this standalone agent has none wired")
	default:
		return nil, fmt.Errorf("unknown topology.mode %q", cfg.Mode)
	}
}

// quickAdaptLoop drives every open flow's periodic Quick Adapt
// evaluation at a granularity finer than any realistic base_rtt.
func quickAdaptLoop(ctx context.Context, manager *agent.FlowManager) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			manager.QuickAdaptTick(now)
		}
	}
}

func healthStatus(cfg *config.Config, engine *multipath.QualityEngine) metrics.HealthStatus {
	status := metrics.HealthStatus{
		Status:     "healthy",
		Timestamp:  time.Now(),
		Version:    Version,
		Uptime:     time.Since(startTime),
		Components: make(map[string]metrics.ComponentHealth),
	}

	status.Components["oracle"] = metrics.ComponentHealth{
		Status:  "healthy",
		Message: fmt.Sprintf("link_speed=%vGbps mtu=%d", cfg.Oracle.LinkSpeedGbps, cfg.Oracle.MTU),
	}

	if engine != nil {
		status.Components["multipath"] = metrics.ComponentHealth{
			Status:  "healthy",
			Message: fmt.Sprintf("active_path=%s", engine.SelectNext()),
		}
	}

	return status
}

func printVersion() {
	fmt.Printf("nscc-agent v%s\n", Version)
	fmt.Printf("  build: %s\n", BuildTime)
	fmt.Printf("  commit: %s\n", GitCommit)
	fmt.Printf("  go: %s\n", runtime.Version())
	fmt.Printf("  os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func printBanner(cfg *config.Config) {
	fmt.Println("nscc-agent starting")
	fmt.Printf("  oracle: link_speed=%vGbps network_rtt=%vus mtu=%d multiplier=%v\n",
		cfg.Oracle.LinkSpeedGbps, cfg.Oracle.NetworkRTTMicros, cfg.Oracle.MTU, cfg.Oracle.Multiplier)
	fmt.Printf("  multipath: enabled=%v paths=%v\n", cfg.Multipath.Enabled, cfg.Multipath.Paths)
	fmt.Printf("  topology: mode=%s\n", cfg.Topology.Mode)
	if cfg.Metrics.Enabled {
		fmt.Printf("  metrics: http://localhost%s%s\n", cfg.Metrics.Listen, cfg.Metrics.Path)
		fmt.Printf("  health:  http://localhost%s%s\n", cfg.Metrics.Listen, cfg.Metrics.HealthPath)
	}
}
