// Package manager admits media packages into the publication pipeline
// under a concurrency bound. Packages beyond the bound wait in a FIFO
// queue; every slot release promotes the queue head before the
// triggering event reaches subscribers.
package manager

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"publishd/internal/config"
	"publishd/internal/fsm"
	"publishd/internal/logging"
	"publishd/internal/media"
)

// Store is the persistence surface the manager needs.
type Store interface {
	Insert(ctx context.Context, rec *media.Record) error
	Update(ctx context.Context, rec *media.Record) error
	GetByID(ctx context.Context, id string) (*media.Record, error)
	FindByOriginalPath(ctx context.Context, path string) (*media.Record, error)
	ListExcluding(ctx context.Context, states ...media.State) ([]*media.Record, error)
}

// Runner drives one package through its pipeline.
type Runner interface {
	Run(ctx context.Context) (fsm.Result, error)
	Record() *media.Record
}

// Factory builds a Runner for a record.
type Factory interface {
	New(rec *media.Record) (Runner, error)
}

// Manager owns the pending set and the waiting queue.
type Manager struct {
	cfg     *config.Config
	store   Store
	factory Factory
	logger  *slog.Logger

	mu          sync.Mutex
	pending     map[string]Runner
	waiting     []Runner
	subscribers map[int]chan Event
	nextSubID   int
	closed      bool

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a manager. Call Start before submitting packages.
func New(cfg *config.Config, store Store, factory Factory, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:         cfg,
		store:       store,
		factory:     factory,
		logger:      logging.NewComponentLogger(logger, "manager"),
		pending:     make(map[string]Runner),
		subscribers: make(map[int]chan Event),
	}
}

// Start establishes the context package goroutines run under.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runCtx != nil {
		return
	}
	m.runCtx, m.cancel = context.WithCancel(ctx)
}

// Close stops accepting work, cancels running packages and waits for
// their goroutines, then closes subscriber channels.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	m.mu.Unlock()
}

// Subscribe returns a channel of manager events and a cancel function.
// Slow subscribers lose events rather than blocking the pipeline.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	ch := make(chan Event, 32)
	m.subscribers[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subscribers[id]; ok {
			close(sub)
			delete(m.subscribers, id)
		}
	}
	return ch, cancel
}

// PendingCount reports how many packages hold a processing slot.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// WaitingCount reports how many packages sit in the FIFO queue.
func (m *Manager) WaitingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiting)
}

// admit gives the runner a slot when one is free and queues it otherwise.
func (m *Manager) admit(runner Runner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	rec := runner.Record()
	if len(m.pending) < m.cfg.Publish.MaxConcurrent {
		m.startLocked(runner)
		return
	}
	m.waiting = append(m.waiting, runner)
	m.logger.Info("package queued",
		logging.String(logging.FieldPackageID, rec.ID),
		logging.Int("queue_length", len(m.waiting)))
}

// startLocked moves the runner into the pending set and launches its
// goroutine. Callers hold the mutex.
func (m *Manager) startLocked(runner Runner) {
	rec := runner.Record()
	m.pending[rec.ID] = runner
	m.logger.Info("package started",
		logging.String(logging.FieldPackageID, rec.ID),
		logging.String(logging.FieldState, string(rec.State)))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		result, err := runner.Run(m.runCtx)
		m.finish(runner, result, err)
	}()
}

// finish releases the slot, promotes the queue head, then reports the
// outcome to subscribers. Promotion happens before the event goes out so
// the bound is never under-used while an observer reacts.
func (m *Manager) finish(runner Runner, result fsm.Result, err error) {
	rec := runner.Record()

	m.mu.Lock()
	delete(m.pending, rec.ID)
	if len(m.waiting) > 0 && len(m.pending) < m.cfg.Publish.MaxConcurrent && !m.closed {
		next := m.waiting[0]
		m.waiting = m.waiting[1:]
		m.startLocked(next)
	}
	m.mu.Unlock()

	switch result {
	case fsm.ResultDone:
		m.logger.Info("package complete",
			logging.String(logging.FieldPackageID, rec.ID),
			logging.String(logging.FieldState, string(rec.State)))
		m.emit(Event{Kind: EventComplete, Record: *rec, Code: media.ErrCodeNone})
	case fsm.ResultParked:
		m.logger.Info("package parked until a platform is chosen",
			logging.String(logging.FieldPackageID, rec.ID))
		m.emit(Event{Kind: EventParked, Record: *rec, Code: media.ErrCodeNone})
	case fsm.ResultFailed:
		if errors.Is(err, context.Canceled) {
			// Shutdown, not a package failure: the startup sweep
			// resumes the record from its checkpoint.
			m.logger.Info("package interrupted by shutdown",
				logging.String(logging.FieldPackageID, rec.ID))
			return
		}
		m.failPackage(rec, err)
	}
}

// failPackage persists the error state and emits the error event.
func (m *Manager) failPackage(rec *media.Record, err error) {
	code := media.CodeOf(err)
	message := "publication failed"
	if err != nil {
		message = err.Error()
	}
	message = message + " (package " + rec.ID + ")"
	rec.SetError(code, message)

	if updateErr := m.store.Update(context.Background(), rec); updateErr != nil {
		m.logger.Error("persist error state",
			logging.String(logging.FieldPackageID, rec.ID),
			logging.Error(updateErr))
	}
	m.logger.Error("package failed",
		logging.String(logging.FieldPackageID, rec.ID),
		logging.String(logging.FieldErrorCode, code.String()),
		logging.Error(err))
	m.emit(Event{Kind: EventError, Record: *rec, Code: code, Err: err})
}

func (m *Manager) emit(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- event:
		default:
			m.logger.Warn("subscriber full, event dropped",
				logging.String(logging.FieldEventType, event.Kind.String()))
		}
	}
}
