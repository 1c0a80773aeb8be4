// Package bulk fans an action out over a selection and aggregates the
// per-entity outcomes.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"repodesk/internal/backend"
	"repodesk/internal/model"
	"repodesk/internal/output"
	"repodesk/internal/poller"
	"repodesk/internal/store"
)

// SkippedAfterDuplicate is the message for ids left untouched once a rename
// in the same edit collided with an existing name.
const SkippedAfterDuplicate = "skipped after duplicate name"

const defaultConcurrency = 4

// Payload carries the action-specific input. Edit uses Name and Description;
// edit-prompt uses Template (by name) or Prompt; edit-goal uses Goal.
type Payload struct {
	Name        *string
	Description *string
	Template    string
	Prompt      *string
	Goal        *string
}

// Coordinator applies bulk actions. Per-entity failures never abort the other
// entities, except that a duplicate rename stops the rest of an edit.
type Coordinator struct {
	backend     backend.Backend
	store       *store.Store
	poller      *poller.Poller
	out         *output.Manager
	logger      *slog.Logger
	concurrency int
	verbose     bool
}

type Option func(*Coordinator)

// WithOutput streams lifecycle events and per-entity records to m.
func WithOutput(m *output.Manager) Option {
	return func(c *Coordinator) { c.out = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithConcurrency bounds the fan-out of delete and edit-prompt.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithVerbose keeps request details in failure messages.
func WithVerbose(v bool) Option {
	return func(c *Coordinator) { c.verbose = v }
}

func New(b backend.Backend, s *store.Store, p *poller.Poller, opts ...Option) *Coordinator {
	c := &Coordinator{
		backend:     b,
		store:       s,
		poller:      p,
		logger:      slog.Default(),
		concurrency: defaultConcurrency,
	}
	for _, apply := range opts {
		if apply != nil {
			apply(c)
		}
	}
	return c
}

// Apply runs action over ids. The error is reserved for invalid requests
// (unknown action, empty selection, missing payload); entity failures are
// reported in the AggregateResult.
func (c *Coordinator) Apply(ctx context.Context, action model.Action, ids []string, payload Payload) (model.AggregateResult, error) {
	if ctx == nil {
		return model.AggregateResult{}, fmt.Errorf("Apply: nil context")
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return model.AggregateResult{}, model.NewValidationError("selection", "no entities selected")
	}

	var run func(context.Context, []string, Payload, *recorder) error
	switch action {
	case model.ActionEdit:
		if payload.Name == nil && payload.Description == nil {
			return model.AggregateResult{}, model.NewValidationError("payload", "edit needs a name or a description")
		}
		if payload.Name != nil && strings.TrimSpace(*payload.Name) == "" {
			return model.AggregateResult{}, model.NewValidationError("name", "name cannot be empty")
		}
		run = c.edit
	case model.ActionDelete:
		run = c.delete
	case model.ActionGenerateDocumentation:
		run = c.generate
	case model.ActionEditPrompt:
		if payload.Template == "" && payload.Prompt == nil {
			return model.AggregateResult{}, model.NewValidationError("payload", "edit-prompt needs a template name or prompt text")
		}
		run = c.editPrompt
	case model.ActionDeleteDocumentation:
		run = c.deleteDocumentation
	case model.ActionRegenerate:
		run = c.regenerate
	case model.ActionEditGoal:
		if payload.Goal == nil {
			return model.AggregateResult{}, model.NewValidationError("goal", "edit-goal needs a goal")
		}
		run = c.editGoal
	default:
		return model.AggregateResult{}, model.NewValidationError("action", fmt.Sprintf("unknown action %q", action))
	}

	rec := newRecorder(action, ids, c.out)
	start := time.Now()
	c.logger.Info("bulk action started", "action", action, "run_id", rec.runID, "entities", len(ids))
	rec.emit(output.Event{Type: output.EventActionStarted, Action: action, RunID: rec.runID, Total: len(ids)})

	if err := run(ctx, ids, payload, rec); err != nil {
		return model.AggregateResult{}, err
	}

	agg := model.NewAggregateResult(action, rec.results())
	agg.Pending = rec.pending
	rec.emit(output.Event{
		Type:      output.EventActionFinished,
		Action:    action,
		RunID:     rec.runID,
		Total:     len(ids),
		Succeeded: agg.SuccessCount,
		Status:    agg.Status,
	})
	c.logger.Info("bulk action finished", "action", action, "run_id", rec.runID,
		"succeeded", agg.SuccessCount, "total", len(ids), "status", agg.Status, "elapsed", time.Since(start))
	return agg, nil
}

func (c *Coordinator) fail(err error) string {
	return PresentError(err, c.verbose)
}

func (c *Coordinator) edit(ctx context.Context, ids []string, p Payload, rec *recorder) error {
	patch := model.RepositoryPatch{Name: p.Name, Description: p.Description}
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			for _, rest := range ids[i:] {
				rec.failure(rest, c.fail(err))
			}
			return nil
		}
		if _, ok := c.store.Repository(id); !ok {
			rec.failure(id, c.fail(&model.NotFoundError{Kind: model.KindRepository, ID: id}))
			continue
		}

		err := c.editOne(ctx, id, patch)
		var dup *model.DuplicateNameError
		if errors.As(err, &dup) {
			rec.failure(id, c.fail(err))
			for _, rest := range ids[i+1:] {
				rec.failure(rest, SkippedAfterDuplicate)
			}
			c.logger.Info("edit stopped on duplicate name", "entity_id", id, "name", dup.Name, "skipped", len(ids)-i-1)
			return nil
		}
		if err != nil {
			rec.failure(id, c.fail(err))
			continue
		}
		rec.success(id, "")
	}
	return nil
}

func (c *Coordinator) editOne(ctx context.Context, id string, patch model.RepositoryPatch) error {
	// The backend has no row for a provisional id, and reconciliation would
	// not carry a local edit over to the server id.
	if model.IsProvisional(id) {
		return model.NewValidationError("repo_id", "repository has no server id yet; edit it once its clone has finished")
	}
	if patch.Name != nil {
		if err := c.store.CheckRename(id, *patch.Name); err != nil {
			return err
		}
	}
	if err := c.backend.UpdateRepository(ctx, id, patch); err != nil {
		return err
	}
	return c.store.UpdateRepository(id, patch)
}

func (c *Coordinator) delete(ctx context.Context, ids []string, _ Payload, rec *recorder) error {
	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if model.IsProvisional(id) {
				for _, h := range c.poller.Outstanding() {
					if h.OwnerID == id {
						c.poller.Forget(h)
					}
				}
			} else if _, ok := c.store.Repository(id); ok {
				if err := c.backend.DeleteRepository(ctx, id); err != nil {
					rec.failure(id, c.fail(err))
					return nil
				}
			}
			if err := c.store.RemoveRepository(id); err != nil {
				rec.failure(id, c.fail(err))
				return nil
			}
			rec.success(id, "")
			return nil
		})
	}
	return g.Wait()
}

func (c *Coordinator) generate(ctx context.Context, ids []string, _ Payload, rec *recorder) error {
	byName := map[string]string{}
	var submit []string
	for _, id := range ids {
		r, ok := c.store.Repository(id)
		switch {
		case !ok:
			rec.failure(id, c.fail(&model.NotFoundError{Kind: model.KindRepository, ID: id}))
		case r.CloneStatus != model.CloneSuccess || model.IsProvisional(id):
			rec.failure(id, fmt.Sprintf("repository %s is not cloned (%s)", r.Name, r.CloneStatus))
		default:
			byName[r.Name] = id
			submit = append(submit, id)
		}
	}
	if len(submit) == 0 {
		return nil
	}

	h, err := c.poller.Submit(ctx, poller.JobRequest{Job: model.JobGenerate, RepoIDs: submit})
	if err != nil {
		msg := c.fail(err)
		for _, id := range submit {
			rec.failure(id, msg)
		}
		return nil
	}
	res, err := c.poller.Await(ctx, h, poller.Options{})
	if err != nil {
		msg := c.fail(err)
		for _, id := range submit {
			rec.failure(id, msg)
		}
		return nil
	}
	resp, _ := res.Payload["response"].(backend.GenerateResponse)

	documented := map[string]bool{}
	for _, gr := range resp.Results {
		if !gr.Documented() {
			continue
		}
		id, ok := byName[gr.Repository]
		if !ok || documented[id] {
			continue
		}
		doc := model.Documentation{ID: gr.PromptID.String(), RepoID: id, Title: gr.Repository}
		if doc.ID == "" {
			doc.ID = "doc:" + id
		}
		if gr.Documentation != nil {
			doc.Content = gr.Documentation.Content
		}
		if err := c.store.PutDocumentation(doc); err != nil {
			rec.failure(id, c.fail(err))
			documented[id] = true
			continue
		}
		documented[id] = true
		rec.success(id, "")
	}

	for _, id := range submit {
		if documented[id] {
			continue
		}
		r, _ := c.store.Repository(id)
		rec.failure(id, generateFailure(resp, id, r.Name))
	}
	return nil
}

// generateFailure picks the batched error that names the repository, or
// falls back to the batch message.
func generateFailure(resp backend.GenerateResponse, id, name string) string {
	for _, msg := range resp.Errors {
		if mentionsID(msg, id) || (name != "" && strings.Contains(msg, name)) {
			return msg
		}
	}
	if len(resp.Errors) == 1 && resp.SuccessfulCount == 0 {
		return resp.Errors[0]
	}
	if resp.Message != "" {
		return resp.Message
	}
	return "documentation generation failed"
}

func (c *Coordinator) editPrompt(ctx context.Context, ids []string, p Payload, rec *recorder) error {
	text := ""
	if p.Template != "" {
		tpl, ok := c.store.TemplateByName(p.Template)
		if !ok {
			return &model.NotFoundError{Kind: model.KindTemplate, ID: p.Template}
		}
		text = tpl.Content
	} else {
		text = *p.Prompt
	}

	handles := make([]*model.TaskHandle, len(ids))
	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if _, ok := c.store.Repository(id); !ok {
				rec.failure(id, c.fail(&model.NotFoundError{Kind: model.KindRepository, ID: id}))
				return nil
			}
			if model.IsProvisional(id) {
				rec.failure(id, "repository is still cloning")
				return nil
			}
			resp, err := c.backend.SavePrompt(ctx, id, text)
			if err != nil {
				rec.failure(id, c.fail(err))
				return nil
			}
			prompt := strings.TrimSpace(text)
			if err := c.store.UpdateRepository(id, model.RepositoryPatch{SpecificPrompt: &prompt}); err != nil {
				rec.failure(id, c.fail(err))
				return nil
			}
			if resp.TaskID != "" {
				h := model.TaskHandle{TaskID: resp.TaskID, OwnerID: id, Job: model.JobPrompt, SubmittedAt: time.Now()}
				c.poller.Track(h)
				handles[i] = &h
			}
			rec.success(id, resp.Message)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, h := range handles {
		if h != nil {
			rec.pending = append(rec.pending, *h)
		}
	}
	return nil
}

func (c *Coordinator) deleteDocumentation(ctx context.Context, ids []string, _ Payload, rec *recorder) error {
	var submit []string
	for _, id := range ids {
		if _, ok := c.store.Documentation(id); !ok {
			rec.failure(id, c.fail(&model.NotFoundError{Kind: model.KindDocumentation, ID: id}))
			continue
		}
		submit = append(submit, id)
	}
	if len(submit) == 0 {
		return nil
	}

	resp, err := c.backend.DeleteDocumentation(ctx, submit)
	if err != nil {
		msg := c.fail(err)
		for _, id := range submit {
			rec.failure(id, msg)
		}
		return nil
	}
	for _, id := range submit {
		if msg, failed := errorFor(resp.Errors, id); failed {
			rec.failure(id, msg)
			continue
		}
		if resp.DeletedCount == 0 && resp.Status == "error" {
			rec.failure(id, "documentation was not deleted")
			continue
		}
		if err := c.store.RemoveDocumentation(id); err != nil {
			rec.failure(id, c.fail(err))
			continue
		}
		rec.success(id, "")
	}
	return nil
}

// regenerate rebuilds documents in one batch. Rebuilt documents drop their
// cached content so the next read fetches the new text.
func (c *Coordinator) regenerate(ctx context.Context, ids []string, _ Payload, rec *recorder) error {
	var submit []string
	for _, id := range ids {
		if _, ok := c.store.Documentation(id); !ok {
			rec.failure(id, c.fail(&model.NotFoundError{Kind: model.KindDocumentation, ID: id}))
			continue
		}
		submit = append(submit, id)
	}
	if len(submit) == 0 {
		return nil
	}

	resp, err := c.backend.RegenerateDocumentation(ctx, submit)
	if err != nil {
		msg := c.fail(err)
		for _, id := range submit {
			rec.failure(id, msg)
		}
		return nil
	}
	stale := ""
	for _, id := range submit {
		if msg, failed := errorFor(resp.Errors, id); failed {
			rec.failure(id, msg)
			continue
		}
		if resp.UpdatedCount == 0 && resp.Status == "error" {
			rec.failure(id, "documentation was not regenerated")
			continue
		}
		if err := c.store.UpdateDocumentation(id, model.DocumentationPatch{Content: &stale}); err != nil {
			rec.failure(id, c.fail(err))
			continue
		}
		rec.success(id, "")
	}
	return nil
}

func errorFor(errs []string, id string) (string, bool) {
	for _, msg := range errs {
		if mentionsID(msg, id) {
			return msg, true
		}
	}
	return "", false
}

func (c *Coordinator) editGoal(ctx context.Context, ids []string, p Payload, rec *recorder) error {
	for _, id := range ids {
		if _, ok := c.store.Documentation(id); !ok {
			rec.failure(id, c.fail(&model.NotFoundError{Kind: model.KindDocumentation, ID: id}))
			continue
		}
		if err := c.backend.UpdateGoal(ctx, id, *p.Goal); err != nil {
			rec.failure(id, c.fail(err))
			continue
		}
		if err := c.store.UpdateDocumentation(id, model.DocumentationPatch{Goal: p.Goal}); err != nil {
			rec.failure(id, c.fail(err))
			continue
		}
		rec.success(id, "")
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// recorder collects per-entity results in selection order regardless of the
// order goroutines finish in.
type recorder struct {
	mu      sync.Mutex
	action  model.Action
	runID   string
	order   map[string]int
	byID    map[string]model.Result
	out     *output.Manager
	pending []model.TaskHandle
}

func newRecorder(action model.Action, ids []string, out *output.Manager) *recorder {
	order := make(map[string]int, len(ids))
	for i, id := range ids {
		order[id] = i
	}
	return &recorder{
		action: action,
		runID:  uuid.NewString(),
		order:  order,
		byID:   make(map[string]model.Result, len(ids)),
		out:    out,
	}
}

func (r *recorder) success(id, msg string) {
	r.add(model.Result{EntityID: id, Outcome: model.OutcomeSuccess, Message: msg})
}

func (r *recorder) failure(id, msg string) {
	r.add(model.Result{EntityID: id, Outcome: model.OutcomeFailure, Message: msg})
}

func (r *recorder) add(res model.Result) {
	r.mu.Lock()
	if _, done := r.byID[res.EntityID]; done {
		r.mu.Unlock()
		return
	}
	r.byID[res.EntityID] = res
	r.mu.Unlock()
	r.emit(output.Record{Action: r.action, Result: res})
}

func (r *recorder) emit(v any) {
	// Sink failures must not change action outcomes.
	_ = r.out.Emit(v)
}

func (r *recorder) results() []model.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Result, len(r.order))
	for id, i := range r.order {
		res, ok := r.byID[id]
		if !ok {
			res = model.Result{EntityID: id, Outcome: model.OutcomeFailure, Message: "no outcome recorded"}
		}
		out[i] = res
	}
	return out
}
