package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"repodesk/internal/bulk"
	"repodesk/internal/model"
	"repodesk/internal/output"
	"repodesk/internal/poller"
)

// Clone registers each source URL and waits for the clone jobs. Rows appear in
// the store as soon as a job is accepted and are reconciled when it ends.
// Results are keyed by URL. Jobs still running when polling times out stay
// PENDING, are reported with OutcomePending and are returned in
// AggregateResult.Pending.
func (c *Console) Clone(ctx context.Context, urls []string) (model.AggregateResult, error) {
	if ctx == nil {
		return model.AggregateResult{}, fmt.Errorf("Clone: nil context")
	}
	if len(urls) == 0 {
		return model.AggregateResult{}, model.NewValidationError("repo_url", "at least one repository URL is required")
	}

	runID := uuid.NewString()
	_ = c.out.Emit(output.Event{Type: output.EventActionStarted, Action: model.ActionClone, RunID: runID, Total: len(urls)})

	results := make([]model.Result, len(urls))
	record := func(i int, r model.Result) {
		results[i] = r
		_ = c.out.Emit(output.Record{Action: model.ActionClone, Result: r})
	}

	type job struct {
		idx    int
		url    string
		handle model.TaskHandle
	}
	var jobs []job
	seen := map[string]struct{}{}
	for i, raw := range urls {
		entity := strings.TrimSpace(raw)
		u, err := model.ValidateSourceURL(raw)
		if err != nil {
			record(i, c.failure(entity, err))
			continue
		}
		norm := model.NormalizeURL(u)
		if _, dup := seen[norm]; dup {
			record(i, c.failure(entity, &model.SubmissionError{Detail: "repository URL is listed more than once"}))
			continue
		}
		seen[norm] = struct{}{}
		if existing, ok := c.store.RepositoryByURL(u); ok {
			record(i, c.failure(entity, &model.SubmissionError{
				Detail: fmt.Sprintf("Repository already exists as '%s' (id %s)", existing.Name, existing.ID),
			}))
			continue
		}

		h, err := c.poller.Submit(ctx, poller.JobRequest{Job: model.JobClone, URL: u})
		if err != nil {
			record(i, c.failure(entity, err))
			continue
		}
		c.store.InsertOptimistic(model.Repository{
			ID:          h.OwnerID,
			Name:        model.NameFromURL(u),
			URL:         u,
			CloneStatus: model.ClonePending,
		})
		c.logger.Info("clone accepted", "task_id", h.TaskID, "owner_id", h.OwnerID, "url", u)
		jobs = append(jobs, job{idx: i, url: entity, handle: h})
	}

	var (
		mu      sync.Mutex
		pending []model.TaskHandle
	)
	g := new(errgroup.Group)
	for _, j := range jobs {
		g.Go(func() error {
			r, stillRunning := c.settleClone(ctx, j.url, j.handle)
			if stillRunning {
				mu.Lock()
				pending = append(pending, j.handle)
				mu.Unlock()
			}
			mu.Lock()
			record(j.idx, r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	agg := model.NewAggregateResult(model.ActionClone, results)
	agg.Pending = pending
	_ = c.out.Emit(output.Event{
		Type:      output.EventActionFinished,
		Action:    model.ActionClone,
		RunID:     runID,
		Total:     len(urls),
		Succeeded: agg.SuccessCount,
		Status:    agg.Status,
	})
	return agg, nil
}

// settleClone awaits one clone and reconciles the store. stillRunning is set
// when the job outlived polling and its row stays PENDING.
func (c *Console) settleClone(ctx context.Context, entity string, h model.TaskHandle) (model.Result, bool) {
	res, err := c.poller.Await(ctx, h, c.pollOpts)
	var timeout *model.TimeoutError
	switch {
	case errors.As(err, &timeout):
		c.logger.Warn("clone still pending", "task_id", h.TaskID, "owner_id", h.OwnerID, "elapsed", timeout.Elapsed)
		return stillPending(entity, h, timeout), true
	case errors.Is(err, poller.ErrForgotten):
		return model.Result{EntityID: entity, Outcome: model.OutcomeFailure, Message: "clone abandoned: repository was removed"}, false
	case err != nil && ctx.Err() != nil:
		return model.Result{EntityID: entity, Outcome: model.OutcomePending, Message: fmt.Sprintf("still pending when interrupted (task %s)", h.TaskID)}, true
	case err != nil:
		return c.failure(entity, err), false
	}

	if err := c.store.Reconcile(h, res); err != nil {
		return c.failure(entity, err), false
	}
	if !res.Succeeded() {
		return model.Result{EntityID: entity, Outcome: model.OutcomeFailure, Message: res.Reason}, false
	}

	id := res.PayloadString("repo_id")
	if id == "" {
		id = h.OwnerID
	}
	c.enrich(ctx, id)

	name := res.PayloadString("repo_name")
	if r, ok := c.store.Repository(id); ok {
		name = r.Name
	}
	return model.Result{EntityID: entity, Outcome: model.OutcomeSuccess, Message: fmt.Sprintf("cloned as %s (id %s)", name, id)}, false
}

// enrich fills an empty description from the describer. Lookup and update
// failures are logged and never fail the clone.
func (c *Console) enrich(ctx context.Context, id string) {
	if c.describer == nil {
		return
	}
	r, ok := c.store.Repository(id)
	if !ok || strings.TrimSpace(r.Description) != "" {
		return
	}
	desc, err := c.describer.Describe(ctx, r.URL)
	if err != nil {
		c.logger.Warn("description lookup failed", "repo_id", id, "error", err)
		return
	}
	if desc == "" {
		return
	}
	patch := model.RepositoryPatch{Description: &desc}
	if !model.IsProvisional(id) {
		if err := c.backend.UpdateRepository(ctx, id, patch); err != nil {
			c.logger.Warn("description update failed", "repo_id", id, "error", err)
			return
		}
	}
	if err := c.store.UpdateRepository(id, patch); err != nil {
		c.logger.Warn("description update failed", "repo_id", id, "error", err)
	}
}

// Settle awaits tracked handles, such as prompt regenerations, and reconciles
// each into the store. Results are keyed by owner id.
func (c *Console) Settle(ctx context.Context, action model.Action, handles []model.TaskHandle) model.AggregateResult {
	runID := uuid.NewString()
	_ = c.out.Emit(output.Event{Type: output.EventActionStarted, Action: action, RunID: runID, Total: len(handles)})

	results := make([]model.Result, len(handles))
	var pending []model.TaskHandle
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)
	for i, h := range handles {
		g.Go(func() error {
			r := model.Result{EntityID: h.OwnerID, Outcome: model.OutcomeSuccess}
			res, err := c.poller.Await(ctx, h, c.pollOpts)
			var timeout *model.TimeoutError
			switch {
			case errors.As(err, &timeout):
				r = stillPending(h.OwnerID, h, timeout)
				mu.Lock()
				pending = append(pending, h)
				mu.Unlock()
			case err != nil:
				r = c.failure(h.OwnerID, err)
			case !res.Succeeded():
				r.Outcome, r.Message = model.OutcomeFailure, res.Reason
				if err := c.store.Reconcile(h, res); err != nil {
					c.logger.Warn("reconcile failed result", "task_id", h.TaskID, "owner_id", h.OwnerID, "error", err)
				}
			default:
				if err := c.store.Reconcile(h, res); err != nil {
					r = c.failure(h.OwnerID, err)
				}
			}
			results[i] = r
			_ = c.out.Emit(output.Record{Action: action, Result: r})
			return nil
		})
	}
	_ = g.Wait()

	agg := model.NewAggregateResult(action, results)
	agg.Pending = pending
	_ = c.out.Emit(output.Event{
		Type:      output.EventActionFinished,
		Action:    action,
		RunID:     runID,
		Total:     len(handles),
		Succeeded: agg.SuccessCount,
		Status:    agg.Status,
	})
	return agg
}

// stillPending reports a job that outlived polling. Its entity keeps its last
// known state, so this is not a failure.
func stillPending(entity string, h model.TaskHandle, timeout *model.TimeoutError) model.Result {
	return model.Result{
		EntityID: entity,
		Outcome:  model.OutcomePending,
		Message:  fmt.Sprintf("still pending after %s (task %s)", timeout.Elapsed.Truncate(time.Second), h.TaskID),
	}
}

func (c *Console) failure(entity string, err error) model.Result {
	return model.Result{EntityID: entity, Outcome: model.OutcomeFailure, Message: bulk.PresentError(err, c.verbose)}
}
