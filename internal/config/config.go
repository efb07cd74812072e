// Package config loads and validates the YAML configuration for the
// NSCC agent: the Scaling Oracle's inputs, multipath engine policy,
// topology oracle wiring, and the metrics endpoint.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Oracle    OracleConfig    `yaml:"oracle"`
	Multipath MultipathConfig `yaml:"multipath"`
	Topology  TopologyConfig  `yaml:"topology"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// OracleConfig is the Scaling Oracle's YAML-configured input surface.
// Every field here maps directly onto congestion.OracleInput.
type OracleConfig struct {
	LinkSpeedGbps float64 `yaml:"link_speed_gbps"`

	// NetworkRTTMicros is the network_rtt fed to the Scaling Oracle. The
	// topology oracle separately seeds each flow's initial base_rtt.
	NetworkRTTMicros float64 `yaml:"network_rtt_micros"`

	// TargetQdelayMicros, if > 0, overrides the trimming-enabled/
	// network-rtt default priority order.
	TargetQdelayMicros float64 `yaml:"target_qdelay_micros"`

	MTU                      int64   `yaml:"mtu"`
	Multiplier               float64 `yaml:"multiplier"`
	QAGate                   int     `yaml:"qa_gate"`
	AdjustBytesThresholdMTUs int64   `yaml:"adjust_bytes_threshold_mtus"`
	TrimmingEnabled          bool    `yaml:"trimming_enabled"`
}

// MultipathConfig configures the reference QualityEngine.
type MultipathConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Paths         []string `yaml:"paths"`
	CooldownMs    int      `yaml:"cooldown_ms"`
}

// TopologyConfig configures how base_rtt is seeded at flow setup.
type TopologyConfig struct {
	// Mode is "probe" (consult a live two-point-rtt prober, deduped via
	// singleflight) or "diameter" (always return DiameterMicros). Both
	// pass Validate, but nscc-agent wires no prober and exits with an
	// error in "probe" mode.
	Mode           string  `yaml:"mode"`
	DiameterMicros float64 `yaml:"diameter_micros"`
}

// MetricsConfig configures the Prometheus/health HTTP server.
type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Listen      string `yaml:"listen"`
	Path        string `yaml:"path"`
	HealthPath  string `yaml:"health_path"`
	EnablePprof bool   `yaml:"enable_pprof"`
}

// Load reads, parses, and validates a config file, starting from
// DefaultConfig so unset fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the configuration for a single-NIC, single-path
// deployment with a 12 microsecond / 100 Gbps reference fabric — the
// Scaling Oracle's own reference network, so defaults produce a==b==1.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",

		Oracle: OracleConfig{
			LinkSpeedGbps:            100,
			NetworkRTTMicros:         12,
			MTU:                      4096,
			Multiplier:               1.25,
			QAGate:                   3,
			AdjustBytesThresholdMTUs: 8,
			TrimmingEnabled:          false,
		},

		Multipath: MultipathConfig{
			Enabled:    true,
			Paths:      []string{"path-0"},
			CooldownMs: 50,
		},

		Topology: TopologyConfig{
			Mode:           "diameter",
			DiameterMicros: 12,
		},

		Metrics: MetricsConfig{
			Enabled:     true,
			Listen:      ":9100",
			Path:        "/metrics",
			HealthPath:  "/health",
			EnablePprof: false,
		},
	}
}

// Validate rejects configurations that would otherwise surface as
// confusing runtime behavior rather than a clear startup error.
func (c *Config) Validate() error {
	if c.Oracle.LinkSpeedGbps <= 0 {
		return fmt.Errorf("oracle.link_speed_gbps must be > 0")
	}
	if c.Oracle.NetworkRTTMicros <= 0 {
		return fmt.Errorf("oracle.network_rtt_micros must be > 0")
	}
	if c.Oracle.MTU <= 0 {
		return fmt.Errorf("oracle.mtu must be > 0")
	}
	if c.Oracle.Multiplier < 1.25 || c.Oracle.Multiplier > 1.5 {
		return fmt.Errorf("oracle.multiplier must be in [1.25, 1.5], got %v", c.Oracle.Multiplier)
	}
	if c.Oracle.QAGate < 0 || c.Oracle.QAGate > 4 {
		return fmt.Errorf("oracle.qa_gate must be in [0, 4], got %d", c.Oracle.QAGate)
	}
	if c.Oracle.AdjustBytesThresholdMTUs <= 0 {
		return fmt.Errorf("oracle.adjust_bytes_threshold_mtus must be > 0")
	}

	if c.Multipath.Enabled && len(c.Multipath.Paths) == 0 {
		return fmt.Errorf("multipath.paths must list at least one path when multipath.enabled")
	}

	switch c.Topology.Mode {
	case "probe", "diameter":
	default:
		return fmt.Errorf("topology.mode must be \"probe\" or \"diameter\", got %q", c.Topology.Mode)
	}
	if c.Topology.Mode == "diameter" && c.Topology.DiameterMicros <= 0 {
		return fmt.Errorf("topology.diameter_micros must be > 0 when topology.mode is \"diameter\"")
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen must be set when metrics.enabled")
	}

	return nil
}

// LinkSpeedBitsPerSec converts the configured link speed to bits/sec.
func (o OracleConfig) LinkSpeedBitsPerSec() uint64 {
	return uint64(o.LinkSpeedGbps * 1_000_000_000)
}

// NetworkRTT converts the configured network RTT to a time.Duration.
func (o OracleConfig) NetworkRTT() time.Duration {
	return time.Duration(o.NetworkRTTMicros * float64(time.Microsecond))
}

// TargetQdelayOverride converts the configured override, or zero if
// unset.
func (o OracleConfig) TargetQdelayOverride() time.Duration {
	if o.TargetQdelayMicros <= 0 {
		return 0
	}
	return time.Duration(o.TargetQdelayMicros * float64(time.Microsecond))
}

// Cooldown converts the configured multipath switch cooldown.
func (m MultipathConfig) Cooldown() time.Duration {
	return time.Duration(m.CooldownMs) * time.Millisecond
}

// Diameter converts the configured topology diameter.
func (t TopologyConfig) Diameter() time.Duration {
	return time.Duration(t.DiameterMicros * float64(time.Microsecond))
}

// WriteExampleConfig writes a fully-commented example configuration to
// path, for `nscc-agent -gen-config`.
func WriteExampleConfig(path string) error {
	return os.WriteFile(path, []byte(exampleConfigYAML), 0644)
}

const exampleConfigYAML = `# NSCC agent configuration.
log_level: info

oracle:
  link_speed_gbps: 100
  network_rtt_micros: 12
  # target_qdelay_micros: 9       # uncomment to override the default priority order
  mtu: 4096
  multiplier: 1.25
  qa_gate: 3
  adjust_bytes_threshold_mtus: 8
  trimming_enabled: false

multipath:
  enabled: true
  paths:
    - path-0
    - path-1
  cooldown_ms: 50

topology:
  mode: diameter   # or "probe"
  diameter_micros: 12

metrics:
  enabled: true
  listen: ":9100"
  path: /metrics
  health_path: /health
  enable_pprof: false
`
