package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("top level defaults", func(t *testing.T) {
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
		}
	})

	t.Run("oracle defaults", func(t *testing.T) {
		if cfg.Oracle.LinkSpeedGbps != 100 {
			t.Errorf("Oracle.LinkSpeedGbps = %v, want 100", cfg.Oracle.LinkSpeedGbps)
		}
		if cfg.Oracle.NetworkRTTMicros != 12 {
			t.Errorf("Oracle.NetworkRTTMicros = %v, want 12", cfg.Oracle.NetworkRTTMicros)
		}
		if cfg.Oracle.MTU != 4096 {
			t.Errorf("Oracle.MTU = %d, want 4096", cfg.Oracle.MTU)
		}
		if cfg.Oracle.Multiplier != 1.25 {
			t.Errorf("Oracle.Multiplier = %v, want 1.25", cfg.Oracle.Multiplier)
		}
		if cfg.Oracle.QAGate != 3 {
			t.Errorf("Oracle.QAGate = %d, want 3", cfg.Oracle.QAGate)
		}
		if cfg.Oracle.AdjustBytesThresholdMTUs != 8 {
			t.Errorf("Oracle.AdjustBytesThresholdMTUs = %d, want 8", cfg.Oracle.AdjustBytesThresholdMTUs)
		}
		if cfg.Oracle.TrimmingEnabled {
			t.Error("Oracle.TrimmingEnabled default should be false")
		}
	})

	t.Run("multipath defaults", func(t *testing.T) {
		if !cfg.Multipath.Enabled {
			t.Error("Multipath.Enabled default should be true")
		}
		if len(cfg.Multipath.Paths) != 1 || cfg.Multipath.Paths[0] != "path-0" {
			t.Errorf("Multipath.Paths = %v, want [path-0]", cfg.Multipath.Paths)
		}
		if cfg.Multipath.CooldownMs != 50 {
			t.Errorf("Multipath.CooldownMs = %d, want 50", cfg.Multipath.CooldownMs)
		}
	})

	t.Run("topology defaults", func(t *testing.T) {
		if cfg.Topology.Mode != "diameter" {
			t.Errorf("Topology.Mode = %q, want %q", cfg.Topology.Mode, "diameter")
		}
		if cfg.Topology.DiameterMicros != 12 {
			t.Errorf("Topology.DiameterMicros = %v, want 12", cfg.Topology.DiameterMicros)
		}
	})

	t.Run("metrics defaults", func(t *testing.T) {
		if !cfg.Metrics.Enabled {
			t.Error("Metrics.Enabled default should be true")
		}
		if cfg.Metrics.Listen != ":9100" {
			t.Errorf("Metrics.Listen = %q, want %q", cfg.Metrics.Listen, ":9100")
		}
		if cfg.Metrics.Path != "/metrics" {
			t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
		}
	})

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig() failed Validate(): %v", err)
	}
}

func TestValidateRejectsBadOracleConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero link speed", func(c *Config) { c.Oracle.LinkSpeedGbps = 0 }},
		{"negative network rtt", func(c *Config) { c.Oracle.NetworkRTTMicros = -1 }},
		{"zero mtu", func(c *Config) { c.Oracle.MTU = 0 }},
		{"multiplier too low", func(c *Config) { c.Oracle.Multiplier = 1.0 }},
		{"multiplier too high", func(c *Config) { c.Oracle.Multiplier = 2.0 }},
		{"qa gate out of range", func(c *Config) { c.Oracle.QAGate = 5 }},
		{"zero adjust threshold", func(c *Config) { c.Oracle.AdjustBytesThresholdMTUs = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() = nil, want error for %s", tc.name)
			}
		})
	}
}

func TestValidateRejectsBadMultipathConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Multipath.Enabled = true
	cfg.Multipath.Paths = nil

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil, want error for multipath.enabled with no paths")
	}
}

func TestValidateRejectsBadTopologyConfig(t *testing.T) {
	t.Run("unknown mode", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Topology.Mode = "teleport"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() = nil, want error for unknown topology.mode")
		}
	})

	t.Run("diameter mode with zero diameter", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Topology.Mode = "diameter"
		cfg.Topology.DiameterMicros = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() = nil, want error for diameter mode with zero diameter_micros")
		}
	})

	t.Run("probe mode does not require diameter", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Topology.Mode = "probe"
		cfg.Topology.DiameterMicros = 0
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() = %v, want nil for probe mode with no diameter set", err)
		}
	})
}

func TestValidateRejectsMetricsWithoutListen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Listen = ""

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil, want error for metrics.enabled with empty listen")
	}
}

func TestLoadParsesYAMLAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nscc.yaml")

	yaml := `
oracle:
  link_speed_gbps: 400
  network_rtt_micros: 20
multipath:
  paths:
    - path-a
    - path-b
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Oracle.LinkSpeedGbps != 400 {
		t.Errorf("Oracle.LinkSpeedGbps = %v, want 400", cfg.Oracle.LinkSpeedGbps)
	}
	if cfg.Oracle.NetworkRTTMicros != 20 {
		t.Errorf("Oracle.NetworkRTTMicros = %v, want 20", cfg.Oracle.NetworkRTTMicros)
	}
	// fields not present in the YAML keep DefaultConfig's values.
	if cfg.Oracle.MTU != 4096 {
		t.Errorf("Oracle.MTU = %d, want default 4096", cfg.Oracle.MTU)
	}
	if len(cfg.Multipath.Paths) != 2 {
		t.Errorf("Multipath.Paths = %v, want 2 entries", cfg.Multipath.Paths)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nscc.yaml")

	yaml := `
oracle:
  link_speed_gbps: -1
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() = nil error, want validation failure")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() = nil error, want read failure for missing file")
	}
}

func TestConversionHelpers(t *testing.T) {
	cfg := DefaultConfig()

	if got, want := cfg.Oracle.LinkSpeedBitsPerSec(), uint64(100_000_000_000); got != want {
		t.Errorf("LinkSpeedBitsPerSec() = %d, want %d", got, want)
	}
	if got, want := cfg.Oracle.NetworkRTT(), 12_000; int64(got) != int64(want) {
		t.Errorf("NetworkRTT() = %v, want 12us", got)
	}
	if got := cfg.Oracle.TargetQdelayOverride(); got != 0 {
		t.Errorf("TargetQdelayOverride() = %v, want 0 when unset", got)
	}

	cfg.Oracle.TargetQdelayMicros = 9
	if got, want := cfg.Oracle.TargetQdelayOverride(), 9_000; int64(got) != int64(want) {
		t.Errorf("TargetQdelayOverride() = %v, want 9us", got)
	}

	if got, want := cfg.Multipath.Cooldown(), 50; got.Milliseconds() != int64(want) {
		t.Errorf("Cooldown() = %v, want 50ms", got)
	}
	if got, want := cfg.Topology.Diameter(), 12_000; int64(got) != int64(want) {
		t.Errorf("Diameter() = %v, want 12us", got)
	}
}

func TestWriteExampleConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "example.yaml")

	if err := WriteExampleConfig(path); err != nil {
		t.Fatalf("WriteExampleConfig() failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("generated example config failed to Load(): %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("generated example config failed Validate(): %v", err)
	}
}
