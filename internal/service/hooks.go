package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jobforge/jobforge/internal/domain/model"
	apperrors "github.com/jobforge/jobforge/internal/errors"
	"github.com/jobforge/jobforge/internal/observability/statsd"
)

// HookService manages job hooks and dispatches change events to their
// receiving jobs: one enqueue per matching hook per event.
type HookService struct {
	hooks   HookRepository
	defs    DefinitionRepository
	enqueue Enqueuer
	cache   HookCache
	metrics statsd.Sink
	logger  *slog.Logger
}

// Enqueuer is the slice of RunService the dispatcher needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, p EnqueueParams) (*model.JobResult, error)
}

// HookServiceOptions holds the dependencies for creating a HookService.
type HookServiceOptions struct {
	Hooks       HookRepository
	Definitions DefinitionRepository
	Enqueuer    Enqueuer
	// Cache is optional; without it every dispatch hits the database.
	Cache   HookCache
	Metrics statsd.Sink
	Logger  *slog.Logger
}

// NewHookService creates a HookService with the given dependencies.
func NewHookService(opts HookServiceOptions) *HookService {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &HookService{
		hooks:   opts.Hooks,
		defs:    opts.Definitions,
		enqueue: opts.Enqueuer,
		cache:   opts.Cache,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

// Create validates the hook, rejects overlapping claims, stores it, and
// invalidates the match cache.
func (s *HookService) Create(ctx context.Context, hook *model.JobHook) (*model.JobHook, error) {
	if err := s.checkReceiver(ctx, hook); err != nil {
		return nil, err
	}
	if err := s.rejectConflicts(ctx, hook); err != nil {
		return nil, err
	}
	saved, err := s.hooks.Create(ctx, hook)
	if err != nil {
		return nil, err
	}
	s.invalidateCache(ctx)
	return saved, nil
}

// Update validates the edited hook, rejects overlapping claims, stores it,
// and invalidates the match cache.
func (s *HookService) Update(ctx context.Context, hook *model.JobHook) (*model.JobHook, error) {
	if err := s.checkReceiver(ctx, hook); err != nil {
		return nil, err
	}
	if err := s.rejectConflicts(ctx, hook); err != nil {
		return nil, err
	}
	saved, err := s.hooks.Update(ctx, hook)
	if err != nil {
		return nil, err
	}
	s.invalidateCache(ctx)
	return saved, nil
}

// Delete removes a hook and invalidates the match cache.
func (s *HookService) Delete(ctx context.Context, id string) error {
	if err := s.hooks.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateCache(ctx)
	return nil
}

func (s *HookService) checkReceiver(ctx context.Context, hook *model.JobHook) error {
	if hook == nil {
		return apperrors.Validation("job hook is required")
	}
	if err := hook.Validate(); err != nil {
		return err
	}
	def, err := s.defs.GetByID(ctx, hook.JobDefinitionID)
	if err != nil {
		return err
	}
	if !def.IsJobHookReceiver {
		return apperrors.Validationf("job %s is not a hook receiver", def.TaskName())
	}
	return nil
}

func (s *HookService) rejectConflicts(ctx context.Context, hook *model.JobHook) error {
	conflicts, err := s.CheckForConflicts(ctx, hook)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		c := conflicts[0]
		return apperrors.Conflictf(
			"hook %q already claims %s/%s for the same job",
			c.ConflictingHookName, c.ContentType, c.Action,
		)
	}
	return nil
}

// CheckForConflicts returns every (content type, action) combination the
// given hook shares with another hook bound to the same job.
func (s *HookService) CheckForConflicts(ctx context.Context, hook *model.JobHook) ([]model.HookConflict, error) {
	if hook == nil {
		return nil, apperrors.Validation("job hook is required")
	}

	others, err := s.hooks.ListOverlapping(ctx, hook)
	if err != nil {
		return nil, err
	}

	var conflicts []model.HookConflict
	for _, other := range others {
		overlap := intersect(hook.ContentTypes, other.ContentTypes)
		for _, ct := range overlap {
			for _, action := range sharedActions(hook, other) {
				conflicts = append(conflicts, model.HookConflict{
					ContentType:         ct,
					Action:              action,
					ConflictingHookID:   other.ID,
					ConflictingHookName: other.Name,
				})
			}
		}
	}
	return conflicts, nil
}

// Dispatch enqueues the receiving job of every enabled hook matching the
// event. Returns the number of runs enqueued.
func (s *HookService) Dispatch(ctx context.Context, event model.ChangeEvent) (int, error) {
	if !event.Action.Valid() {
		return 0, apperrors.Validationf("invalid change action: %q", string(event.Action))
	}
	if event.ContentType == "" {
		return 0, apperrors.ValidationField("content_type", "content type is required")
	}

	matched, err := s.matchingHooks(ctx, event)
	if err != nil {
		return 0, err
	}

	kwargs, err := json.Marshal(map[string]any{
		"content_type": event.ContentType,
		"action":       string(event.Action),
	})
	if err != nil {
		return 0, fmt.Errorf("marshal hook kwargs: %w", err)
	}
	args, err := json.Marshal([]string{event.RecordID})
	if err != nil {
		return 0, fmt.Errorf("marshal hook args: %w", err)
	}

	enqueued := 0
	for _, hook := range matched {
		def, defErr := s.defs.GetByID(ctx, hook.JobDefinitionID)
		if defErr != nil {
			s.logger.WarnContext(ctx, "hook receiver lookup failed",
				"hook", hook.Name,
				"error", defErr,
			)
			continue
		}

		if _, enqErr := s.enqueue.Enqueue(ctx, EnqueueParams{
			TaskName: def.TaskName(),
			Args:     args,
			Kwargs:   kwargs,
		}); enqErr != nil {
			s.logger.ErrorContext(ctx, "hook dispatch enqueue failed",
				"hook", hook.Name,
				"task_name", def.TaskName(),
				"error", enqErr,
			)
			continue
		}
		enqueued++
	}

	if s.metrics != nil {
		s.metrics.Count("hooks.dispatched", int64(enqueued), map[string]string{
			"content_type": event.ContentType,
			"action":       string(event.Action),
		})
	}
	return enqueued, nil
}

// matchingHooks resolves the hooks claiming the event, consulting the cache
// first. Cache failures degrade to the database, never fail the dispatch.
func (s *HookService) matchingHooks(ctx context.Context, event model.ChangeEvent) ([]*model.JobHook, error) {
	if s.cache != nil {
		ids, hit, err := s.cache.Get(ctx, event.ContentType, event.Action)
		if err != nil {
			s.logger.WarnContext(ctx, "hook match cache read failed", "error", err)
		} else if hit {
			return s.hooksByID(ctx, ids)
		}
	}

	matched, err := s.hooks.ListMatching(ctx, event.ContentType, event.Action)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		ids := make([]string, len(matched))
		for i, h := range matched {
			ids[i] = h.ID
		}
		if err := s.cache.Put(ctx, event.ContentType, event.Action, ids); err != nil {
			s.logger.WarnContext(ctx, "hook match cache write failed", "error", err)
		}
	}
	return matched, nil
}

func (s *HookService) hooksByID(ctx context.Context, ids []string) ([]*model.JobHook, error) {
	hooks := make([]*model.JobHook, 0, len(ids))
	for _, id := range ids {
		hook, err := s.hooks.GetByID(ctx, id)
		if err != nil {
			if apperrors.IsNotFound(err) {
				continue // deleted since the cache entry was written
			}
			return nil, err
		}
		if hook.Enabled {
			hooks = append(hooks, hook)
		}
	}
	return hooks, nil
}

func (s *HookService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "hook match cache invalidation failed", "error", err)
	}
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	var out []string
	for _, v := range b {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

func sharedActions(a, b *model.JobHook) []model.ChangeAction {
	var out []model.ChangeAction
	if a.TypeCreate && b.TypeCreate {
		out = append(out, model.ActionCreate)
	}
	if a.TypeUpdate && b.TypeUpdate {
		out = append(out, model.ActionUpdate)
	}
	if a.TypeDelete && b.TypeDelete {
		out = append(out, model.ActionDelete)
	}
	return out
}
