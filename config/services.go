package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeScheduler runs the schedule evaluation loop.
	ServiceModeScheduler ServiceMode = "scheduler"
	// ServiceModeWorker runs the job execution worker pool.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper runs the lease and retention cleanup loop.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeScheduler,
		ServiceModeWorker,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeScheduler, ServiceModeWorker, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: scheduler, worker, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// SchedulerConfig contains scheduler service configuration.
type SchedulerConfig struct {
	// Interval is the scheduler tick interval.
	Interval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"5s"`
}

// Sanitize applies guardrails to scheduler configuration values.
func (s *SchedulerConfig) Sanitize() {
	if s.Interval < time.Second {
		s.Interval = time.Second
	}
}

// WorkerConfig contains job execution worker configuration.
type WorkerConfig struct {
	// Queue is the task queue this worker pool drains.
	Queue string `env:"WORKER_QUEUE" envDefault:"default"`

	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"4"`

	// Lease is the duration a reserved run is held before another worker may
	// reclaim it. Heartbeats extend the lease while the job executes.
	Lease time.Duration `env:"WORKER_LEASE" envDefault:"60s"`

	// ID labels runs finished by this worker. Defaults to hostname.pid when
	// empty.
	ID string `env:"WORKER_ID" envDefault:""`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if strings.TrimSpace(w.Queue) == "" {
		w.Queue = "default"
	}
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.Lease < 5*time.Second {
		w.Lease = 5 * time.Second
	}
}

// ReaperConfig contains run cleanup service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// Queues lists the task queues whose leases and stale pending runs the
	// reaper maintains.
	Queues []string `env:"REAPER_QUEUES" envSeparator:"," envDefault:"default"`

	// PendingMaxAge is the maximum age for pending runs before they are
	// marked failed. Runs stuck in pending longer than this have no worker
	// draining their queue.
	PendingMaxAge time.Duration `env:"REAPER_PENDING_MAX_AGE" envDefault:"24h"`

	// TerminalMaxAge is the maximum age for terminal runs before deletion.
	TerminalMaxAge time.Duration `env:"REAPER_TERMINAL_MAX_AGE" envDefault:"2160h"` // 90 days

	// LogMaxAge is the maximum age for job log entries before deletion.
	LogMaxAge time.Duration `env:"REAPER_LOG_MAX_AGE" envDefault:"2160h"` // 90 days
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.PendingMaxAge < 5*time.Minute {
		r.PendingMaxAge = 5 * time.Minute
	}
	if r.TerminalMaxAge < 1*time.Hour {
		r.TerminalMaxAge = 1 * time.Hour
	}
	if r.LogMaxAge < 1*time.Hour {
		r.LogMaxAge = 1 * time.Hour
	}

	queues := make([]string, 0, len(r.Queues))
	for _, q := range r.Queues {
		if q = strings.TrimSpace(q); q != "" {
			queues = append(queues, q)
		}
	}
	if len(queues) == 0 {
		queues = []string{"default"}
	}
	r.Queues = queues
}
