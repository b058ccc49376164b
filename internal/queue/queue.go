// Package queue runs chained background tasks on named lanes, each with its
// own worker pool, and tracks their status in a pluggable backend.
//
// A task is submitted under a kind. Its handler either finishes the task
// with a result or hands off to the next kind, possibly on another lane, under
// the same task ID. Handlers signal transient failures by returning an error
// matching ErrRetryable; those are retried with exponential backoff.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/serpctx/internal/metrics"
)

var (
	// ErrRetryable marks transient handler failures.
	ErrRetryable = errors.New("retryable")
	// ErrNotFound is returned by Status for unknown task IDs.
	ErrNotFound = errors.New("task not found")
	// ErrUnknownKind is returned when no handler is registered for a kind.
	ErrUnknownKind = errors.New("unknown task kind")
	// ErrClosed is returned by Submit after Stop.
	ErrClosed = errors.New("queue closed")
)

// RetryableError wraps a transient failure so errors.Is(err, ErrRetryable)
// holds while the cause stays reachable.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	if e.Err == nil {
		return ErrRetryable.Error()
	}
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error { return e.Err }

func (e *RetryableError) Is(target error) bool { return target == ErrRetryable }

// Retryable wraps err in a RetryableError. A nil err stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// Task states.
const (
	StatePending = "pending"
	StateStarted = "started"
	StateRetry   = "retry"
	StateSuccess = "success"
	StateFailure = "failure"
)

// Status is the externally visible record of a task chain.
type Status struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	State     string          `json:"state"`
	Stage     string          `json:"stage,omitempty"`
	Attempts  int             `json:"attempts"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Terminal reports whether the task chain has finished.
func (s Status) Terminal() bool { return s.State == StateSuccess || s.State == StateFailure }

// Step names the next task in a chain.
type Step struct {
	Kind string
	Args any
}

// Outcome is what a handler produces. A non-nil Next continues the chain and
// Result is ignored.
type Outcome struct {
	Result any
	Next   *Step
}

// Handler runs one task attempt.
type Handler func(ctx context.Context, t *Task) (Outcome, error)

// RetryPolicy bounds retries of ErrRetryable failures. MaxRetries zero means
// a task is never retried.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy retries up to three times starting at one second.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, InitialInterval: time.Second, MaxInterval: 30 * time.Second}

func (p RetryPolicy) backoff() backoff.BackOff {
	if p.MaxRetries == 0 {
		return &backoff.StopBackOff{}
	}
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0
	eb.Reset()
	return backoff.WithMaxRetries(eb, p.MaxRetries)
}

// Task is one attempt's view of a queued unit of work.
type Task struct {
	ID      string
	Kind    string
	Args    json.RawMessage
	Attempt int

	broker *Broker
	bo     backoff.BackOff
}

// Decode unmarshals the task arguments into v.
func (t *Task) Decode(v any) error {
	if err := json.Unmarshal(t.Args, v); err != nil {
		return fmt.Errorf("decode %s args: %w", t.Kind, err)
	}
	return nil
}

// Progress records the stage the task has reached.
func (t *Task) Progress(stage string) {
	if t.broker == nil {
		return
	}
	t.broker.update(t.ID, func(s *Status) { s.Stage = stage })
}

type registration struct {
	lane    string
	handler Handler
	policy  RetryPolicy
}

type lane struct {
	name    string
	workers int
	ch      chan *Task
}

// Option configures a Broker.
type Option func(*Broker)

// WithLane declares a lane with its own worker pool.
func WithLane(name string, workers int) Option {
	return func(b *Broker) {
		if workers <= 0 {
			workers = 1
		}
		b.lanes[name] = &lane{name: name, workers: workers, ch: make(chan *Task, b.buffer)}
	}
}

// WithBuffer sets the per-lane queue capacity. Apply before WithLane.
func WithBuffer(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// Broker dispatches tasks to lane workers.
type Broker struct {
	backend  Backend
	buffer   int
	lanes    map[string]*lane
	handlers map[string]registration

	mu      sync.Mutex // serializes status read-modify-write
	quit    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
	timers  sync.WaitGroup
}

// New returns a Broker storing status in backend.
func New(backend Backend, opts ...Option) *Broker {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	b := &Broker{
		backend:  backend,
		buffer:   1024,
		lanes:    map[string]*lane{},
		handlers: map[string]registration{},
		quit:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register binds a handler for kind to a declared lane.
func (b *Broker) Register(kind, laneName string, h Handler, policy RetryPolicy) error {
	if _, ok := b.lanes[laneName]; !ok {
		return fmt.Errorf("register %s: unknown lane %q", kind, laneName)
	}
	b.handlers[kind] = registration{lane: laneName, handler: h, policy: policy}
	return nil
}

// Start launches the worker pools. Workers exit when ctx ends or Stop is called.
func (b *Broker) Start(ctx context.Context) {
	for _, l := range b.lanes {
		for i := 0; i < l.workers; i++ {
			b.wg.Add(1)
			go b.work(ctx, l)
		}
		log.Debug().Str("lane", l.name).Int("workers", l.workers).Msg("queue lane started")
	}
}

// Stop signals workers to exit and waits for in-flight tasks.
func (b *Broker) Stop() {
	b.stopped.Do(func() { close(b.quit) })
	b.wg.Wait()
	b.timers.Wait()
}

// Submit records a pending task and enqueues it.
func (b *Broker) Submit(ctx context.Context, kind string, args any) (string, error) {
	if _, ok := b.handlers[kind]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode %s args: %w", kind, err)
	}
	id := uuid.NewString()
	st := Status{ID: id, Kind: kind, State: StatePending, UpdatedAt: time.Now().UTC()}
	if err := b.backend.Save(ctx, st); err != nil {
		return "", fmt.Errorf("save status: %w", err)
	}
	if err := b.enqueue(ctx, b.newTask(id, kind, raw)); err != nil {
		return "", err
	}
	return id, nil
}

// Status returns the current status of a task chain.
func (b *Broker) Status(ctx context.Context, id string) (Status, error) {
	return b.backend.Load(ctx, id)
}

func (b *Broker) newTask(id, kind string, args json.RawMessage) *Task {
	return &Task{ID: id, Kind: kind, Args: args, broker: b, bo: b.handlers[kind].policy.backoff()}
}

func (b *Broker) enqueue(ctx context.Context, t *Task) error {
	reg, ok := b.handlers[t.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, t.Kind)
	}
	l := b.lanes[reg.lane]
	select {
	case <-b.quit:
		return ErrClosed
	default:
	}
	select {
	case l.ch <- t:
		return nil
	case <-b.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handOff queues the next stage without ever blocking the calling worker:
// a full lane would otherwise stall workers that feed their own lane.
func (b *Broker) handOff(ctx context.Context, t *Task) error {
	reg, ok := b.handlers[t.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, t.Kind)
	}
	select {
	case <-b.quit:
		return ErrClosed
	case b.lanes[reg.lane].ch <- t:
		return nil
	default:
	}
	b.timers.Add(1)
	go func() {
		defer b.timers.Done()
		if err := b.enqueue(ctx, t); err != nil {
			b.fail(t, fmt.Errorf("hand off to %s: %w", t.Kind, err))
		}
	}()
	return nil
}

func (b *Broker) work(ctx context.Context, l *lane) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.quit:
			return
		case t := <-l.ch:
			b.run(ctx, t)
		}
	}
}

func (b *Broker) run(ctx context.Context, t *Task) {
	reg := b.handlers[t.Kind]
	t.Attempt++
	b.update(t.ID, func(s *Status) {
		s.Kind = t.Kind
		s.State = StateStarted
		s.Attempts = t.Attempt
		s.Error = ""
	})

	start := time.Now()
	out, err := safeCall(ctx, reg.handler, t)
	metrics.TaskDuration.WithLabelValues(t.Kind).Observe(time.Since(start).Seconds())
	logger := log.With().Str("task_id", t.ID).Str("kind", t.Kind).Int("attempt", t.Attempt).Logger()

	switch {
	case err == nil && out.Next != nil:
		raw, merr := json.Marshal(out.Next.Args)
		if merr == nil {
			next := b.newTask(t.ID, out.Next.Kind, raw)
			b.update(t.ID, func(s *Status) {
				s.Kind = next.Kind
				s.State = StatePending
				s.Attempts = 0
			})
			merr = b.handOff(ctx, next)
		}
		if merr != nil {
			b.fail(t, fmt.Errorf("hand off to %s: %w", out.Next.Kind, merr))
			return
		}
		metrics.TasksTotal.WithLabelValues(t.Kind, StateSuccess).Inc()
		logger.Debug().Str("next", out.Next.Kind).Msg("task handed off")

	case err == nil:
		raw, merr := json.Marshal(out.Result)
		if merr != nil {
			b.fail(t, fmt.Errorf("encode result: %w", merr))
			return
		}
		b.update(t.ID, func(s *Status) {
			s.State = StateSuccess
			s.Result = raw
		})
		metrics.TasksTotal.WithLabelValues(t.Kind, StateSuccess).Inc()
		logger.Info().Dur("elapsed", time.Since(start)).Msg("task completed")

	case errors.Is(err, ErrRetryable):
		wait := t.bo.NextBackOff()
		if wait == backoff.Stop {
			logger.Error().Err(err).Msg("task retries exhausted")
			b.fail(t, err)
			return
		}
		b.update(t.ID, func(s *Status) {
			s.State = StateRetry
			s.Error = err.Error()
		})
		metrics.TasksTotal.WithLabelValues(t.Kind, StateRetry).Inc()
		logger.Warn().Err(err).Dur("wait", wait).Msg("task failed; retrying")
		b.retryAfter(ctx, t, wait)

	default:
		logger.Error().Err(err).Msg("task failed")
		b.fail(t, err)
	}
}

func (b *Broker) retryAfter(ctx context.Context, t *Task, wait time.Duration) {
	b.timers.Add(1)
	go func() {
		defer b.timers.Done()
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-b.quit:
			return
		case <-ctx.Done():
			return
		}
		if err := b.enqueue(ctx, t); err != nil {
			b.fail(t, err)
		}
	}()
}

func (b *Broker) fail(t *Task, err error) {
	b.update(t.ID, func(s *Status) {
		s.State = StateFailure
		s.Error = err.Error()
	})
	metrics.TasksTotal.WithLabelValues(t.Kind, StateFailure).Inc()
}

// update applies fn to the stored status. Backend errors are logged; status
// tracking never fails a task.
func (b *Broker) update(id string, fn func(*Status)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := b.backend.Load(ctx, id)
	if err != nil {
		st = Status{ID: id}
	}
	fn(&st)
	st.UpdatedAt = time.Now().UTC()
	if err := b.backend.Save(ctx, st); err != nil {
		log.Warn().Err(err).Str("task_id", id).Msg("failed to save task status")
	}
}

func safeCall(ctx context.Context, h Handler, t *Task) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, t)
}
