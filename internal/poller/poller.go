// Package poller tracks asynchronous backend jobs until they reach a
// terminal state.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"repodesk/internal/backend"
	"repodesk/internal/model"
)

const (
	DefaultInterval = 2 * time.Second
	DefaultTimeout  = 10 * time.Minute
)

// ErrForgotten is returned by Await once a handle has been forgotten.
var ErrForgotten = errors.New("poller: handle forgotten")

// JobRequest describes a job to submit. URL is used by clone jobs, RepoIDs by
// generate jobs.
type JobRequest struct {
	Job     model.JobKind
	OwnerID string
	URL     string
	RepoIDs []string
}

// Options bounds one Await. Zero Interval uses DefaultInterval; zero Timeout
// waits until ctx is done.
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
}

type entry struct {
	handle    model.TaskHandle
	ctx       context.Context
	forget    context.CancelFunc
	forgotten bool
	done      bool

	waiters    int
	lastErr    error
	loopCtx    context.Context
	loopCancel context.CancelFunc
}

// Poller resolves each handle exactly once; concurrent Await calls for one
// handle share a single poll loop.
type Poller struct {
	backend backend.Backend
	logger  *slog.Logger
	now     func() time.Time

	group   singleflight.Group
	results sync.Map // task id -> model.TerminalResult

	mu      sync.Mutex
	entries map[string]*entry
	order   []string
}

type Option func(*Poller)

func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

func New(b backend.Backend, opts ...Option) *Poller {
	p := &Poller{
		backend: b,
		logger:  slog.Default(),
		now:     time.Now,
		entries: map[string]*entry{},
	}
	for _, apply := range opts {
		if apply != nil {
			apply(p)
		}
	}
	return p
}

// Submit starts a job. A synchronous rejection is returned as-is (a
// *model.SubmissionError for backend refusals) and no handle is created.
// Generate jobs are answered in the submitting request, so their handle is
// resolved immediately.
func (p *Poller) Submit(ctx context.Context, req JobRequest) (model.TaskHandle, error) {
	if ctx == nil {
		return model.TaskHandle{}, fmt.Errorf("Submit: nil context")
	}
	switch req.Job {
	case model.JobClone:
		taskID, err := p.backend.SubmitClone(ctx, req.URL)
		if err != nil {
			return model.TaskHandle{}, err
		}
		owner := req.OwnerID
		if owner == "" {
			owner = model.ProvisionalID(taskID)
		}
		h := model.TaskHandle{TaskID: taskID, OwnerID: owner, Job: model.JobClone, SubmittedAt: p.now()}
		p.Track(h)
		p.logger.Debug("clone submitted", "task_id", taskID, "owner_id", owner, "url", req.URL)
		return h, nil

	case model.JobGenerate:
		if len(req.RepoIDs) == 0 {
			return model.TaskHandle{}, model.NewValidationError("repo_ids", "at least one repository is required")
		}
		resp, err := p.backend.GenerateDocumentation(ctx, req.RepoIDs)
		if err != nil {
			return model.TaskHandle{}, err
		}
		h := model.TaskHandle{TaskID: uuid.NewString(), OwnerID: req.OwnerID, Job: model.JobGenerate, SubmittedAt: p.now()}
		p.Track(h)
		p.resolve(h, model.Success(map[string]any{
			"status":   resp.Status,
			"message":  resp.Message,
			"response": resp,
		}))
		p.logger.Debug("generate answered", "task_id", h.TaskID, "status", resp.Status, "successful", resp.SuccessfulCount)
		return h, nil

	default:
		return model.TaskHandle{}, model.NewValidationError("job", fmt.Sprintf("unsupported job kind %q", req.Job))
	}
}

// Track registers a handle obtained outside Submit, such as the regeneration
// task a prompt save queues. Tracking a known handle is a no-op.
func (p *Poller) Track(h model.TaskHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[h.TaskID]; ok {
		return
	}
	if h.SubmittedAt.IsZero() {
		h.SubmittedAt = p.now()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.entries[h.TaskID] = &entry{handle: h, ctx: ctx, forget: cancel}
	p.order = append(p.order, h.TaskID)
}

// Forget stops polling for h. The backend job is not cancelled.
func (p *Poller) Forget(h model.TaskHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[h.TaskID]
	if !ok {
		return
	}
	e.forgotten = true
	e.forget()
}

// Pending reports whether ownerID has a tracked handle that is neither
// resolved nor forgotten.
func (p *Poller) Pending(ownerID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range p.order {
		e := p.entries[id]
		if e.handle.OwnerID == ownerID && !e.done && !e.forgotten {
			return true
		}
	}
	return false
}

// Outstanding lists unresolved, unforgotten handles in submission order.
func (p *Poller) Outstanding() []model.TaskHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.TaskHandle
	for _, id := range p.order {
		e := p.entries[id]
		if !e.done && !e.forgotten {
			out = append(out, e.handle)
		}
	}
	return out
}

// Result returns the cached terminal result of a resolved handle.
func (p *Poller) Result(h model.TaskHandle) (model.TerminalResult, bool) {
	v, ok := p.results.Load(h.TaskID)
	if !ok {
		return model.TerminalResult{}, false
	}
	return v.(model.TerminalResult), true
}

func (p *Poller) resolve(h model.TaskHandle, res model.TerminalResult) model.TerminalResult {
	actual, _ := p.results.LoadOrStore(h.TaskID, res)
	p.mu.Lock()
	if e, ok := p.entries[h.TaskID]; ok {
		e.done = true
	}
	p.mu.Unlock()
	return actual.(model.TerminalResult)
}

// Await blocks until h is terminal, opts.Timeout elapses (*model.TimeoutError),
// the handle is forgotten (ErrForgotten) or ctx is done. Timing out does not
// resolve the handle; a later Await resumes polling.
//
// Concurrent waiters share one status loop, paced by the first waiter's
// Interval. Each waiter enforces its own Timeout.
func (p *Poller) Await(ctx context.Context, h model.TaskHandle, opts Options) (model.TerminalResult, error) {
	if ctx == nil {
		return model.TerminalResult{}, fmt.Errorf("Await: nil context")
	}
	if res, ok := p.Result(h); ok {
		return res, nil
	}
	p.Track(h)

	start := p.now()
	var deadline <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		loopCtx, err := p.join(h.TaskID)
		if err != nil {
			return model.TerminalResult{}, err
		}
		ch := p.group.DoChan(h.TaskID, func() (interface{}, error) {
			return p.poll(loopCtx, h, opts.Interval)
		})

		select {
		case <-ctx.Done():
			p.leave(h.TaskID)
			return model.TerminalResult{}, ctx.Err()
		case <-deadline:
			p.leave(h.TaskID)
			if res, ok := p.Result(h); ok {
				return res, nil
			}
			return model.TerminalResult{}, &model.TimeoutError{TaskID: h.TaskID, Elapsed: p.now().Sub(start), LastErr: p.lastErr(h.TaskID)}
		case r := <-ch:
			p.leave(h.TaskID)
			if r.Err == nil {
				return r.Val.(model.TerminalResult), nil
			}
			// The shared loop was cancelled because its last waiter left; a
			// waiter that is still interested starts a new one.
			if errors.Is(r.Err, context.Canceled) && ctx.Err() == nil && !p.forgotten(h.TaskID) {
				continue
			}
			if p.forgotten(h.TaskID) {
				return model.TerminalResult{}, ErrForgotten
			}
			return model.TerminalResult{}, r.Err
		}
	}
}

func (p *Poller) join(taskID string) (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.entries[taskID]
	if e.forgotten {
		return nil, ErrForgotten
	}
	e.waiters++
	if e.loopCancel == nil {
		e.loopCtx, e.loopCancel = context.WithCancel(e.ctx)
	}
	return e.loopCtx, nil
}

func (p *Poller) leave(taskID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.entries[taskID]
	e.waiters--
	if e.waiters <= 0 && e.loopCancel != nil {
		e.waiters = 0
		e.loopCancel()
		e.loopCtx, e.loopCancel = nil, nil
	}
}

// noteErr records the latest transient status error; nil clears it.
func (p *Poller) noteErr(taskID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[taskID]; ok {
		e.lastErr = err
	}
}

func (p *Poller) lastErr(taskID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[taskID]; ok {
		return e.lastErr
	}
	return nil
}

func (p *Poller) forgotten(taskID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[taskID]
	return ok && e.forgotten
}

// poll runs the shared status loop for h until it is terminal or ctx, the
// loop context owned by the current waiters, is cancelled.
func (p *Poller) poll(ctx context.Context, h model.TaskHandle, interval time.Duration) (model.TerminalResult, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	start := p.now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if res, ok := p.Result(h); ok {
			return res, nil
		}
		st, err := p.backend.TaskStatus(ctx, h.TaskID)
		switch {
		case err != nil && ctx.Err() != nil:
			return model.TerminalResult{}, ctx.Err()
		case err != nil:
			p.noteErr(h.TaskID, err)
			p.logger.Warn("task status failed; will retry", "task_id", h.TaskID, "owner_id", h.OwnerID, "error", err)
		case st.Terminal():
			res := p.resolve(h, st.TerminalResult())
			p.logger.Debug("task resolved", "task_id", h.TaskID, "owner_id", h.OwnerID, "outcome", res.Outcome, "elapsed", p.now().Sub(start))
			return res, nil
		default:
			p.noteErr(h.TaskID, nil)
			p.logger.Debug("task pending", "task_id", h.TaskID, "state", st.State)
		}

		select {
		case <-ctx.Done():
			return model.TerminalResult{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
