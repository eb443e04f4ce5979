package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tidewater-labs/plantpulse/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http_address: ":9080"
  ingest_rate_per_min: 1200
database:
  path: /var/lib/plantpulse/alerts.db
pipeline:
  workers: 8
  queue_size: 512
  skew_tolerance: 2m
scoring:
  min_samples: 50
  alpha: 0.2
  thresholds:
    temperature:
      low: 2
      medium: 3
      high: 4
      critical: 6
  hard_limits:
    pressure:
      max: 12.5
alerting:
  renotify_cooldown: 15m
  auto_resolve_count: 5
notifier:
  max_attempts: 3
  channel_map:
    critical: [sms, email]
    medium: [email]
  recipients:
    email: [ops@example.com]
  on_call:
    plant-a:
      - channel: sms
        address: "+15550100"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.HTTPAddress != ":9080" || cfg.Server.IngestRatePerMin != 1200 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.MetricsAddress != ":9090" {
		t.Errorf("MetricsAddress = %q, want default :9090", cfg.Server.MetricsAddress)
	}
	if cfg.Database.Path != "/var/lib/plantpulse/alerts.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Pipeline.SkewTolerance != 2*time.Minute {
		t.Errorf("SkewTolerance = %v", cfg.Pipeline.SkewTolerance)
	}
	if cfg.Alerting.RenotifyCooldown != 15*time.Minute || cfg.Alerting.AutoResolveCount != 5 {
		t.Errorf("alerting = %+v", cfg.Alerting)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.HTTPAddress != ":8080" {
		t.Errorf("HTTPAddress = %q", cfg.Server.HTTPAddress)
	}
	if cfg.Database.Path != "data/plantpulse.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Pipeline.SkewTolerance != 5*time.Minute {
		t.Errorf("SkewTolerance = %v", cfg.Pipeline.SkewTolerance)
	}
	if cfg.Alerting.RetentionWindow != 72*time.Hour {
		t.Errorf("RetentionWindow = %v", cfg.Alerting.RetentionWindow)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadConfig succeeded on a missing file")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			"bad alpha",
			"scoring:\n  alpha: 1.5\n",
		},
		{
			"negative retention window",
			"alerting:\n  retention_window: -1h\n",
		},
		{
			"unknown sensor type in thresholds",
			"scoring:\n  thresholds:\n    voltage:\n      low: 2\n",
		},
		{
			"unknown sensor type in hard limits",
			"scoring:\n  hard_limits:\n    voltage:\n      max: 10\n",
		},
		{
			"unknown severity in channel map",
			"notifier:\n  channel_map:\n    urgent: [email]\n",
		},
		{
			"unknown channel in channel map",
			"notifier:\n  channel_map:\n    critical: [pager]\n",
		},
		{
			"unknown channel in recipients",
			"notifier:\n  recipients:\n    pager: [ops]\n",
		},
		{
			"on-call entry without address",
			"notifier:\n  on_call:\n    plant-a:\n      - channel: sms\n",
		},
		{
			"enabled email without host",
			"notifier:\n  email:\n    enabled: true\n",
		},
		{
			"enabled sms with non-http gateway",
			"notifier:\n  sms:\n    enabled: true\n    gateway_url: ftp://gw\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.yaml)); err == nil {
				t.Error("LoadConfig accepted invalid configuration")
			}
		})
	}
}

func TestScorerConfigConversion(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
scoring:
  min_samples: 40
  alpha: 0.05
  thresholds:
    vibration:
      low: 1.5
      medium: 2.5
      high: 3.5
      critical: 5
  hard_limits:
    temperature:
      min: -10
      max: 90
`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	sc := cfg.ScorerConfig()
	if sc.MinSamples != 40 || sc.Alpha != 0.05 {
		t.Errorf("scorer config = %+v", sc)
	}
	th, ok := sc.Thresholds[models.SensorVibration]
	if !ok || th.Low != 1.5 || th.Critical != 5 {
		t.Errorf("vibration thresholds = %+v", th)
	}
	limits, ok := sc.HardLimits[models.SensorTemperature]
	if !ok || limits.Min == nil || *limits.Min != -10 || limits.Max == nil || *limits.Max != 90 {
		t.Errorf("temperature limits = %+v", limits)
	}
}

func TestDispatcherConfigConversion(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
notifier:
  attempt_timeout: 5s
  max_attempts: 3
  renotify_per_minute: 2
  channel_map:
    critical: [sms]
  recipients:
    email: [ops@example.com]
  on_call:
    plant-a:
      - channel: sms
        address: "+15550100"
`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	dc := cfg.DispatcherConfig()
	if dc.AttemptTimeout != 5*time.Second || dc.RenotifyPerMinute != 2 {
		t.Errorf("dispatcher config = %+v", dc)
	}
	if dc.Retry.MaxAttempts != 3 || dc.Retry.Initial != 30*time.Second {
		t.Errorf("retry = %+v, want default schedule with 3 attempts", dc.Retry)
	}
	if got := dc.ChannelMap[models.SeverityCritical]; len(got) != 1 || got[0] != models.ChannelSMS {
		t.Errorf("channel map = %v", dc.ChannelMap)
	}
	if got := dc.Recipients[models.ChannelEmail]; len(got) != 1 || got[0] != "ops@example.com" {
		t.Errorf("recipients = %v", dc.Recipients)
	}
	roster := dc.OnCall["plant-a"]
	if len(roster) != 1 || roster[0].Channel != models.ChannelSMS || roster[0].Address != "+15550100" {
		t.Errorf("on call = %v", dc.OnCall)
	}
}

func TestChannelMapNilWhenUnset(t *testing.T) {
	if m := DefaultConfig().ChannelMap(); m != nil {
		t.Errorf("ChannelMap = %v, want nil so the dispatcher default applies", m)
	}
}
