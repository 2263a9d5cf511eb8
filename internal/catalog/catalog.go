// Package catalog holds the in-process registry of runnable job classes and
// reconciles it against the persisted job definition registry.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jobforge/jobforge/internal/domain/model"
	apperrors "github.com/jobforge/jobforge/internal/errors"
)

// JobLogger is the structured log sink handed to a running job. Entries are
// persisted through the independently-committing log store.
type JobLogger interface {
	Debug(ctx context.Context, message string, opts ...LogOption)
	Info(ctx context.Context, message string, opts ...LogOption)
	Success(ctx context.Context, message string, opts ...LogOption)
	Warning(ctx context.Context, message string, opts ...LogOption)
	Failure(ctx context.Context, message string, opts ...LogOption)
}

// LogOption customizes one log entry.
type LogOption func(*LogEntryOptions)

// LogEntryOptions carries the optional fields of a log entry.
type LogEntryOptions struct {
	Grouping    string
	LogObject   *string
	AbsoluteURL *string
}

// WithGrouping sets the entry grouping instead of the default "main".
func WithGrouping(grouping string) LogOption {
	return func(o *LogEntryOptions) { o.Grouping = grouping }
}

// WithObject attaches a plain-text reference to the object the entry is about.
func WithObject(obj string) LogOption {
	return func(o *LogEntryOptions) { o.LogObject = &obj }
}

// WithURL attaches a link to the referenced object.
func WithURL(url string) LogOption {
	return func(o *LogEntryOptions) { o.AbsoluteURL = &url }
}

// RunContext is the execution environment passed to a job's Run method.
type RunContext struct {
	// Args and Kwargs are the positional and keyword arguments recorded on
	// the run.
	Args   json.RawMessage
	Kwargs json.RawMessage
	// DryRun is true when the run should not commit side effects.
	DryRun bool
	// Log writes entries tied to this run.
	Log JobLogger
}

// Runner is one executable job instance. Run returns the serialized result
// stored on the run record; a non-nil error marks the run errored unless it
// is a FailError.
type Runner interface {
	Run(ctx context.Context, rc *RunContext) (json.RawMessage, error)
}

// FailError distinguishes a deliberate business failure (run status
// "failed") from an unexpected error (run status "errored").
type FailError struct {
	Reason string
}

// Error implements the error interface.
func (e *FailError) Error() string {
	return e.Reason
}

// Fail creates a FailError with a formatted reason.
func Fail(format string, args ...any) *FailError {
	return &FailError{Reason: fmt.Sprintf(format, args...)}
}

// Registration binds a task identity and its declared metadata to a factory
// producing fresh Runner instances.
type Registration struct {
	ModuleName string
	ClassName  string
	Meta       model.JobMetadata
	New        func() Runner
}

// TaskName returns the "module.ClassName" identity.
func (r Registration) TaskName() string {
	return r.ModuleName + "." + r.ClassName
}

func (r Registration) validate() error {
	if strings.TrimSpace(r.ModuleName) == "" {
		return apperrors.ValidationField("module_name", "module name is required")
	}
	if strings.TrimSpace(r.ClassName) == "" {
		return apperrors.ValidationField("class_name", "class name is required")
	}
	if r.New == nil {
		return apperrors.Validation("a runner factory is required")
	}
	if strings.TrimSpace(r.Meta.Name) == "" {
		return apperrors.ValidationField("name", "job metadata name is required")
	}
	return nil
}

// Catalog is the process-wide registry of runnable jobs. Registration
// normally happens during startup; lookups happen on every dispatch.
type Catalog struct {
	mu    sync.RWMutex
	jobs  map[string]Registration
	names map[string]string // Meta.Name -> owning task name
}

// New creates an empty Catalog.
func New() *Catalog {
	return &Catalog{
		jobs:  make(map[string]Registration),
		names: make(map[string]string),
	}
}

// Register adds a job class. Both identities must be unique: the
// (module, class) task name, and the human name, which the definition
// registry also enforces with a unique constraint.
func (c *Catalog) Register(reg Registration) error {
	if err := reg.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := reg.TaskName()
	if _, exists := c.jobs[key]; exists {
		return apperrors.Conflictf("job %s is already registered", key)
	}
	if owner, exists := c.names[reg.Meta.Name]; exists {
		return apperrors.Conflictf("job name %q is already registered by %s", reg.Meta.Name, owner)
	}
	c.jobs[key] = reg
	c.names[reg.Meta.Name] = key
	return nil
}

// Lookup returns the registration for a task name.
func (c *Catalog) Lookup(taskName string) (Registration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	reg, ok := c.jobs[taskName]
	return reg, ok
}

// List returns all registrations sorted by task name.
func (c *Catalog) List() []Registration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Registration, 0, len(c.jobs))
	for _, reg := range c.jobs {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TaskName() < out[j].TaskName()
	})
	return out
}

// TaskNames returns the sorted task names of all registrations.
func (c *Catalog) TaskNames() []string {
	regs := c.List()
	names := make([]string, len(regs))
	for i, reg := range regs {
		names[i] = reg.TaskName()
	}
	return names
}
