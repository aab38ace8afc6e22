// Package executor runs batches of action requests against the domain store.
//
// A batch is either independent, in which case actions are fanned out
// concurrently and each failure stays with its own result, or dependent
// (it contains a QUERY or SEND_MESSAGE), in which case actions run in
// emitted order and the first failure halts the rest.
package executor

import (
	"context"
	"fmt"
	"time"

	"opsdesk/internal/models"
	"opsdesk/internal/tools"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Mode int

const (
	Parallel Mode = iota
	Sequential
)

func (m Mode) String() string {
	if m == Sequential {
		return "sequential"
	}
	return "parallel"
}

const DefaultMaxParallel = 8

// Classify reports how a batch must run.
func Classify(actions []models.ActionRequest) Mode {
	for _, a := range actions {
		if a.Kind.Dependent() {
			return Sequential
		}
	}
	return Parallel
}

// ProgressFunc receives progress updates. It is only ever called from the
// goroutine that called Run.
type ProgressFunc func(models.Progress)

// Report is the outcome of one Run. Results line up with the requests by
// position regardless of mode.
type Report struct {
	Mode     Mode
	Results  []models.ActionResult
	Navigate string
	Summary  string
	Canceled bool
}

// Undo folds the undo descriptors of every successful mutation into one.
// Several descriptors are wrapped in a batch descriptor.
func (r Report) Undo() *models.UndoDescriptor {
	var children []models.UndoDescriptor
	for _, res := range r.Results {
		if res.Success && res.Undo != nil {
			children = append(children, *res.Undo)
		}
	}
	switch len(children) {
	case 0:
		return nil
	case 1:
		return &children[0]
	}
	return &models.UndoDescriptor{
		Kind:        models.UndoBatch,
		Description: fmt.Sprintf("%d changes", len(children)),
		Children:    children,
	}
}

// Failed reports whether any action failed or was skipped.
func (r Report) Failed() bool {
	for _, res := range r.Results {
		if !res.Success {
			return true
		}
	}
	return false
}

type handler func(ctx context.Context, req models.ActionRequest) (models.ActionResult, error)

type Executor struct {
	store       models.DomainStore
	contract    *tools.Contract
	logger      *zap.Logger
	maxParallel int
	now         func() time.Time
	handlers    map[models.ActionKind]handler
}

type Option func(*Executor)

func WithMaxParallel(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

func New(store models.DomainStore, contract *tools.Contract, logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if contract == nil {
		contract = tools.Default()
	}
	e := &Executor{
		store:       store,
		contract:    contract,
		logger:      logger.Named("executor"),
		maxParallel: DefaultMaxParallel,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.handlers = map[models.ActionKind]handler{
		models.KindCreateTask:    e.create,
		models.KindCreateProject: e.create,
		models.KindUpdateTask:    e.update,
		models.KindUpdateProject: e.update,
		models.KindDeleteTask:    e.remove,
		models.KindDeleteProject: e.remove,
		models.KindQuery:         e.query,
		models.KindSendMessage:   e.sendMessage,
	}
	return e
}

// Run executes the batch and renders its summary. Cancellation stops
// actions that have not started yet; completed mutations stay applied.
func (e *Executor) Run(ctx context.Context, actions []models.ActionRequest, progress ProgressFunc) Report {
	if progress == nil {
		progress = func(models.Progress) {}
	}
	report := Report{
		Mode:    Classify(actions),
		Results: make([]models.ActionResult, len(actions)),
	}

	e.logger.Debug("running batch",
		zap.Int("actions", len(actions)),
		zap.Stringer("mode", report.Mode))

	if report.Mode == Sequential {
		report.Canceled = e.runSequential(ctx, actions, report.Results, progress)
	} else {
		report.Canceled = e.runParallel(ctx, actions, report.Results, progress)
	}

	progress(models.Progress{Total: len(actions), Current: len(actions), Status: models.StatusSummarizing})
	for _, res := range report.Results {
		if res.Navigate != "" {
			report.Navigate = res.Navigate
			break
		}
	}
	report.Summary = Summarize(actions, report.Results)
	progress(models.Progress{Total: len(actions), Current: len(actions), Status: models.StatusComplete})
	return report
}

func (e *Executor) runSequential(ctx context.Context, actions []models.ActionRequest, results []models.ActionResult, progress ProgressFunc) bool {
	for i, a := range actions {
		if ctx.Err() != nil {
			skipRest(results, i, "canceled before it started")
			return true
		}
		progress(models.Progress{Total: len(actions), Current: i + 1, Status: models.StatusExecuting, CurrentAction: a.Describe()})
		results[i] = e.Execute(ctx, a)
		if !results[i].Success {
			skipRest(results, i+1, "not run because an earlier action failed")
			return false
		}
	}
	return false
}

func (e *Executor) runParallel(ctx context.Context, actions []models.ActionRequest, results []models.ActionResult, progress ProgressFunc) bool {
	var g errgroup.Group
	g.SetLimit(e.maxParallel)

	canceled := false
	for i, a := range actions {
		if ctx.Err() != nil {
			skipRest(results, i, "canceled before it started")
			canceled = true
			break
		}
		progress(models.Progress{Total: len(actions), Current: i + 1, Status: models.StatusExecuting, CurrentAction: a.Describe()})
		g.Go(func() error {
			results[i] = e.Execute(ctx, a)
			return nil
		})
	}
	_ = g.Wait()
	return canceled
}

func skipRest(results []models.ActionResult, from int, reason string) {
	for j := from; j < len(results); j++ {
		results[j] = models.ActionResult{Skipped: true, Error: reason}
	}
}

// Execute runs a single action. Unknown kinds and invalid payloads fail
// closed; nothing reaches the store unless the request validated.
func (e *Executor) Execute(ctx context.Context, req models.ActionRequest) models.ActionResult {
	req = e.contract.Normalize(req)
	if !e.contract.Known(req.Kind) {
		err := fmt.Errorf("%w: %q", tools.ErrUnknownKind, req.Kind)
		e.logger.Warn("rejected action", zap.Error(err))
		return models.ActionResult{Error: err.Error()}
	}
	if err := e.contract.Validate(req); err != nil {
		e.logger.Warn("rejected action", zap.String("kind", string(req.Kind)), zap.Error(err))
		return models.ActionResult{Error: err.Error()}
	}
	h, ok := e.handlers[req.Kind]
	if !ok {
		return models.ActionResult{Error: fmt.Sprintf("no handler for %s", req.Kind)}
	}

	start := time.Now()
	res, err := h(ctx, req)
	if err != nil {
		e.logger.Warn("action failed",
			zap.String("kind", string(req.Kind)),
			zap.String("ref", req.RefID()),
			zap.Error(err))
		return models.ActionResult{Error: err.Error()}
	}
	e.logger.Debug("action completed",
		zap.String("kind", string(req.Kind)),
		zap.Duration("took", time.Since(start)))
	res.Success = true
	return res
}
