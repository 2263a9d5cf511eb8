package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:  "single service - scheduler",
			input: "scheduler",
			expected: map[ServiceMode]bool{
				ServiceModeScheduler: true,
			},
		},
		{
			name:  "single service - worker",
			input: "worker",
			expected: map[ServiceMode]bool{
				ServiceModeWorker: true,
			},
		},
		{
			name:  "multiple services",
			input: "scheduler,worker",
			expected: map[ServiceMode]bool{
				ServiceModeScheduler: true,
				ServiceModeWorker:    true,
			},
		},
		{
			name:  "all services",
			input: "scheduler,worker,reaper",
			expected: map[ServiceMode]bool{
				ServiceModeScheduler: true,
				ServiceModeWorker:    true,
				ServiceModeReaper:    true,
			},
		},
		{
			name:  "whitespace tolerated",
			input: " scheduler , worker ",
			expected: map[ServiceMode]bool{
				ServiceModeScheduler: true,
				ServiceModeWorker:    true,
			},
		},
		{
			name:        "invalid service name",
			input:       "scheduler,frontend",
			expectError: true,
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "only commas",
			input:       ",,,",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServices(tt.input)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error for input %q, got services %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for input %q: %v", tt.input, err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ParseServices(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestAppConfigDefaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config from env: %v", err)
	}
	cfg.Sanitize()

	if cfg.Postgres.Host != "localhost" {
		t.Errorf("Postgres.Host = %q, want localhost", cfg.Postgres.Host)
	}
	if cfg.Postgres.Port != 5432 {
		t.Errorf("Postgres.Port = %d, want 5432", cfg.Postgres.Port)
	}
	if cfg.Worker.Queue != "default" {
		t.Errorf("Worker.Queue = %q, want default", cfg.Worker.Queue)
	}
	if cfg.Worker.Concurrency < 1 {
		t.Errorf("Worker.Concurrency = %d, want >= 1", cfg.Worker.Concurrency)
	}
	if !cfg.IsSchedulerEnabled() || !cfg.IsWorkerEnabled() || !cfg.IsReaperEnabled() {
		t.Errorf("default SERVICES should enable scheduler, worker, and reaper; got %q", cfg.Services)
	}
}

func TestSanitizeGuardrails(t *testing.T) {
	cfg := AppConfig{
		Scheduler: SchedulerConfig{Interval: 10 * time.Millisecond},
		Worker:    WorkerConfig{Queue: "  ", Concurrency: 0, Lease: time.Second},
		Reaper: ReaperConfig{
			Interval:       time.Second,
			PendingMaxAge:  time.Second,
			TerminalMaxAge: time.Minute,
			LogMaxAge:      time.Minute,
		},
		Hooks: HookConfig{CacheTTL: -time.Minute},
	}
	cfg.Sanitize()

	if cfg.Scheduler.Interval < time.Second {
		t.Errorf("Scheduler.Interval = %v, want >= 1s", cfg.Scheduler.Interval)
	}
	if cfg.Worker.Queue != "default" {
		t.Errorf("Worker.Queue = %q, want default", cfg.Worker.Queue)
	}
	if cfg.Worker.Concurrency != 1 {
		t.Errorf("Worker.Concurrency = %d, want 1", cfg.Worker.Concurrency)
	}
	if cfg.Worker.Lease != 5*time.Second {
		t.Errorf("Worker.Lease = %v, want 5s", cfg.Worker.Lease)
	}
	if cfg.Reaper.Interval != time.Minute {
		t.Errorf("Reaper.Interval = %v, want 1m", cfg.Reaper.Interval)
	}
	if cfg.Reaper.PendingMaxAge != 5*time.Minute {
		t.Errorf("Reaper.PendingMaxAge = %v, want 5m", cfg.Reaper.PendingMaxAge)
	}
	if cfg.Reaper.TerminalMaxAge != time.Hour {
		t.Errorf("Reaper.TerminalMaxAge = %v, want 1h", cfg.Reaper.TerminalMaxAge)
	}
	if cfg.Hooks.CacheTTL != 5*time.Minute {
		t.Errorf("Hooks.CacheTTL = %v, want 5m", cfg.Hooks.CacheTTL)
	}
}

func TestObservabilityMetricsSanitize(t *testing.T) {
	c := ObservabilityMetricsConfig{Enabled: true, StatsdAddress: "   "}
	c.Sanitize()
	if c.IsEnabled() {
		t.Error("metrics should be disabled when the statsd address is blank")
	}

	c = ObservabilityMetricsConfig{Enabled: true, StatsdAddress: "127.0.0.1:8125"}
	c.Sanitize()
	if !c.IsEnabled() {
		t.Error("metrics should stay enabled with a valid address")
	}
}
