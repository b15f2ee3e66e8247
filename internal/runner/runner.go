// Package runner executes an ordered list of requests against one environment,
// one at a time, tracking the status of every item.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"collection-runner/internal/models"
	"collection-runner/internal/schema"
	"collection-runner/internal/substitute"
	"collection-runner/internal/transport"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ItemStatus is the status of one request within a run.
type ItemStatus string

const (
	StatusPending ItemStatus = "pending"
	StatusRunning ItemStatus = "running"
	StatusSuccess ItemStatus = "success"
	StatusError   ItemStatus = "error"
	StatusSkipped ItemStatus = "skipped"
)

// State is the state of a run as a whole.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

// ResultStore persists the last response observed for a request.
type ResultStore interface {
	SaveLastResponse(ctx context.Context, requestID string, resp models.LastResponse) error
}

// Item is the transient outcome record of one request in a run.
type Item struct {
	RequestID        string         `json:"requestId"`
	Name             string         `json:"name"`
	Method           string         `json:"method"`
	Status           ItemStatus     `json:"status"`
	StatusCode       int            `json:"statusCode,omitempty"`
	Duration         time.Duration  `json:"-"`
	DurationMs       int64          `json:"duration,omitempty"`
	Error            string         `json:"error,omitempty"`
	SchemaValidation *schema.Result `json:"schemaValidation,omitempty"`
}

type Summary struct {
	Total   int     `json:"total"`
	Success int     `json:"success"`
	Error   int     `json:"error"`
	Percent float64 `json:"percent"`
}

// Snapshot is a point-in-time copy of a run.
type Snapshot struct {
	ID          string                 `json:"id"`
	State       State                  `json:"state"`
	Environment models.EnvironmentName `json:"environment"`
	StopOnError bool                   `json:"stopOnError"`
	Items       []Item                 `json:"items"`
	Summary     Summary                `json:"summary"`
	Latency     *Latency               `json:"latency,omitempty"`
	StartedAt   time.Time              `json:"startedAt"`
	FinishedAt  *time.Time             `json:"finishedAt,omitempty"`
}

// Options describe one run. StopOnError is fixed once the run has started.
type Options struct {
	Requests    []models.Request
	Environment models.EnvironmentName
	Variables   map[string]string
	StopOnError bool
}

type Option func(*Controller)

// WithObserver registers fn to receive a snapshot after every state change.
// fn is called from the run goroutine, in order.
func WithObserver(fn func(Snapshot)) Option {
	return func(c *Controller) { c.observer = fn }
}

func WithSubstitutionMode(mode substitute.Mode) Option {
	return func(c *Controller) { c.mode = mode }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithLogger(logger *log.Entry) Option {
	return func(c *Controller) { c.logger = logger }
}

// Controller owns one run at a time: Idle -> Running -> Completed | Aborted.
// A finished controller may be started again.
type Controller struct {
	transport transport.Transport
	store     ResultStore
	mode      substitute.Mode
	now       func() time.Time
	observer  func(Snapshot)
	logger    *log.Entry

	mu         sync.Mutex
	id         string
	state      State
	opts       Options
	items      []Item
	cancel     context.CancelFunc
	done       chan struct{}
	startedAt  time.Time
	finishedAt time.Time

	// latency is recomputed only after an item finishes.
	latency      *Latency
	latencyStale bool
}

// NewController returns an idle controller. store may be nil, in which case
// responses are not persisted.
func NewController(tr transport.Transport, store ResultStore, opts ...Option) *Controller {
	c := &Controller{
		transport: tr,
		store:     store,
		mode:      substitute.Structural,
		now:       time.Now,
		logger:    log.NewEntry(log.StandardLogger()),
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start validates opts and begins the run in the background. It fails with
// ErrEmptyCollection or ErrAlreadyRunning without changing any state.
func (c *Controller) Start(ctx context.Context, opts Options) error {
	if opts.Environment == "" {
		opts.Environment = models.EnvDev
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRunning {
		return ErrAlreadyRunning
	}
	if len(opts.Requests) == 0 {
		return ErrEmptyCollection
	}
	if !opts.Environment.Valid() {
		return fmt.Errorf("unknown environment %q", opts.Environment)
	}

	requests := make([]models.Request, len(opts.Requests))
	copy(requests, opts.Requests)
	opts.Requests = requests

	vars := make(map[string]string, len(opts.Variables))
	for k, v := range opts.Variables {
		vars[k] = v
	}
	opts.Variables = vars

	items := make([]Item, len(requests))
	for i, req := range requests {
		items[i] = Item{
			RequestID: req.ID,
			Name:      req.Name,
			Method:    req.Method,
			Status:    StatusPending,
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.id = uuid.NewString()
	c.state = StateRunning
	c.opts = opts
	c.items = items
	c.cancel = cancel
	c.done = make(chan struct{})
	c.startedAt = c.now()
	c.finishedAt = time.Time{}
	c.latency = nil
	c.latencyStale = false

	logger := c.logger.WithFields(log.Fields{
		"run_id":        c.id,
		"environment":   opts.Environment,
		"requests":      len(requests),
		"stop_on_error": opts.StopOnError,
	})
	logger.Info("run started")

	go c.loop(runCtx, logger, opts, c.done)
	return nil
}

// Run starts a run and waits for it to reach a terminal state.
func (c *Controller) Run(ctx context.Context, opts Options) (Snapshot, error) {
	if err := c.Start(ctx, opts); err != nil {
		return c.Status(), err
	}
	return c.Wait(), nil
}

// Cancel asks the current run to stop. An in-flight request is allowed to
// finish; it and every item not yet started are marked skipped.
func (c *Controller) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the current run has finished and returns its final snapshot.
func (c *Controller) Wait() Snapshot {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
	return c.Status()
}

// Done is closed when the current run finishes. It is nil before the first run.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Status returns a snapshot of the current (or last) run.
func (c *Controller) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	items := make([]Item, len(c.items))
	copy(items, c.items)
	for i := range items {
		if items[i].SchemaValidation != nil {
			v := *items[i].SchemaValidation
			v.Errors = append([]string(nil), v.Errors...)
			items[i].SchemaValidation = &v
		}
	}

	snap := Snapshot{
		ID:          c.id,
		State:       c.state,
		Environment: c.opts.Environment,
		StopOnError: c.opts.StopOnError,
		Items:       items,
		Summary:     Summarize(items),
		StartedAt:   c.startedAt,
	}
	if c.latencyStale {
		c.latency = LatencyOf(c.items)
		c.latencyStale = false
	}
	if c.latency != nil {
		latency := *c.latency
		snap.Latency = &latency
	}
	if !c.finishedAt.IsZero() {
		finished := c.finishedAt
		snap.FinishedAt = &finished
	}
	return snap
}

// Summarize counts terminal items. Percent is the share of items that reached
// success or error.
func Summarize(items []Item) Summary {
	s := Summary{Total: len(items)}
	for _, it := range items {
		switch it.Status {
		case StatusSuccess:
			s.Success++
		case StatusError:
			s.Error++
		}
	}
	if s.Total > 0 {
		s.Percent = float64(s.Success+s.Error) / float64(s.Total) * 100
	}
	return s
}

func (c *Controller) loop(ctx context.Context, logger *log.Entry, opts Options, done chan struct{}) {
	defer close(done)
	c.notify()

	for i, req := range opts.Requests {
		if ctx.Err() != nil {
			c.abort(logger, i)
			return
		}

		c.update(i, func(it *Item) { it.Status = StatusRunning })

		status, cancelled := c.execute(ctx, logger, i, req, opts.Variables)
		if cancelled {
			c.abort(logger, i)
			return
		}
		if status == StatusError && opts.StopOnError {
			logger.WithField("request_id", req.ID).Info("stopping run after error")
			c.finish(logger, StateCompleted)
			return
		}
	}

	c.finish(logger, StateCompleted)
}

// execute runs item i. It reports cancelled when cancellation arrived while
// the call was in flight, in which case nothing is recorded for the item.
func (c *Controller) execute(ctx context.Context, logger *log.Entry, i int, req models.Request, vars map[string]string) (ItemStatus, bool) {
	logger = logger.WithFields(log.Fields{"request_id": req.ID, "request": req.Name})

	resolved, err := substitute.Request(req, vars, c.mode)
	if err != nil {
		logger.WithError(err).Warn("variable substitution failed")
		c.update(i, func(it *Item) {
			it.Status = StatusError
			it.Error = err.Error()
		})
		return StatusError, false
	}
	if unresolved := substitute.Unresolved(resolved.URL); len(unresolved) > 0 {
		logger.WithField("variables", unresolved).Warn("unresolved variables in URL")
	}

	// In-flight calls are never interrupted by Cancel.
	callCtx := context.WithoutCancel(ctx)
	start := time.Now()
	resp, callErr := c.transport.Do(callCtx, transport.FromRequest(resolved))
	duration := time.Since(start)

	if ctx.Err() != nil {
		return StatusSkipped, true
	}

	status, classErr := Classify(resp, callErr)

	// A schema mismatch is informational and never changes the status.
	var validation *schema.Result
	if status == StatusSuccess && req.ExpectedSchema != "" {
		result := schema.Validate(req.ExpectedSchema, resp.Data)
		validation = &result
	}

	c.update(i, func(it *Item) {
		it.Status = status
		it.Duration = duration
		it.DurationMs = duration.Milliseconds()
		if resp != nil {
			it.StatusCode = resp.Status
		}
		if classErr != nil {
			it.Error = classErr.Error()
		}
		it.SchemaValidation = validation
	})

	entry := logger.WithFields(log.Fields{"status": status, "duration_ms": duration.Milliseconds()})
	if resp != nil {
		entry = entry.WithField("status_code", resp.Status)
	}
	var transportErr *TransportError
	if errors.As(classErr, &transportErr) {
		entry = entry.WithField("error", transportErr.Message)
	}
	entry.Info("request finished")

	c.persist(callCtx, logger, req.ID, resp, callErr, duration)
	return status, false
}

func (c *Controller) persist(ctx context.Context, logger *log.Entry, requestID string, resp *transport.Response, callErr error, duration time.Duration) {
	if c.store == nil || requestID == "" {
		return
	}

	last := models.LastResponse{
		Duration:  duration.Milliseconds(),
		Timestamp: c.now().UnixMilli(),
	}
	if resp != nil {
		last.Status = resp.Status
		last.StatusText = resp.StatusText
		last.Headers = resp.Headers
		last.Data = resp.Data
	}
	if callErr != nil {
		last.Error = callErr.Error()
	}

	if err := c.store.SaveLastResponse(ctx, requestID, last); err != nil {
		logger.WithError(err).Warn("failed to persist last response")
	}
}

func (c *Controller) update(i int, fn func(it *Item)) {
	c.mu.Lock()
	fn(&c.items[i])
	if st := c.items[i].Status; st == StatusSuccess || st == StatusError {
		c.latencyStale = true
	}
	c.mu.Unlock()
	c.notify()
}

// abort marks item from and everything after it as skipped.
func (c *Controller) abort(logger *log.Entry, from int) {
	c.mu.Lock()
	for i := from; i < len(c.items); i++ {
		c.items[i].Status = StatusSkipped
	}
	c.mu.Unlock()
	c.finish(logger, StateAborted)
}

func (c *Controller) finish(logger *log.Entry, state State) {
	c.mu.Lock()
	c.state = state
	c.finishedAt = c.now()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	summary := Summarize(c.items)
	c.mu.Unlock()

	logger.WithFields(log.Fields{
		"state":   state,
		"success": summary.Success,
		"errors":  summary.Error,
	}).Info("run finished")
	c.notify()
}

func (c *Controller) notify() {
	if c.observer == nil {
		return
	}
	c.mu.Lock()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.observer(snap)
}
