// Package jobs holds the built-in job classes shipped with the engine.
package jobs

import (
	"context"
	"encoding/json"

	"github.com/jobforge/jobforge/internal/catalog"
	"github.com/jobforge/jobforge/internal/domain/model"
)

// RegisterBuiltins adds the built-in system jobs to the catalog.
func RegisterBuiltins(c *catalog.Catalog) error {
	regs := []catalog.Registration{
		{
			ModuleName: "system",
			ClassName:  "HealthCheck",
			Meta: model.JobMetadata{
				Name:        "Health Check",
				Grouping:    "System",
				Description: "Verifies the worker can execute jobs end to end.",
				TimeLimit:   30,
			},
			New: func() catalog.Runner { return &healthCheck{} },
		},
		{
			ModuleName: "system",
			ClassName:  "Echo",
			Meta: model.JobMetadata{
				Name:        "Echo",
				Grouping:    "System",
				Description: "Returns its keyword arguments unchanged. Useful for exercising dispatch.",
			},
			New: func() catalog.Runner { return &echo{} },
		},
	}

	for _, reg := range regs {
		if err := c.Register(reg); err != nil {
			return err
		}
	}
	return nil
}

type healthCheck struct{}

func (j *healthCheck) Run(ctx context.Context, rc *catalog.RunContext) (json.RawMessage, error) {
	rc.Log.Info(ctx, "health check passed")
	return json.RawMessage(`{"healthy":true}`), nil
}

// echo reflects its inputs back as the run result.
type echo struct{}

func (j *echo) Run(ctx context.Context, rc *catalog.RunContext) (json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	if len(rc.Args) > 0 {
		out["args"] = rc.Args
	}
	if len(rc.Kwargs) > 0 {
		out["kwargs"] = rc.Kwargs
	}
	if rc.DryRun {
		rc.Log.Info(ctx, "dry run, echoing inputs without side effects")
	}
	return json.Marshal(out)
}
