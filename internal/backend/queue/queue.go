package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/vesseldata/vesseldata/internal/store/types"
	"github.com/vesseldata/vesseldata/internal/syslog"
)

// Sentinel error values.
var (
	ErrUnknownTask = errors.New("unknown task kind")
	ErrQueueFull   = errors.New("task queue is full; job rejected")
	ErrClosed      = errors.New("attempt to submit on closed queue")
)

const poolBuffer = 512

// Handler executes one claimed job. The returned payload is delivered
// only to synchronous submitters.
type Handler func(ctx context.Context, job types.Job) (any, error)

type submission struct {
	job    types.Job
	result chan outcome
}

type outcome struct {
	payload any
	err     error
}

type pool struct {
	kind    types.TaskKind
	workers int
	handler Handler
	jobs    chan submission
}

// Manager is the task dispatch fabric: each registered task kind gets
// its own fixed-size worker pool, so no more than N jobs of a kind run
// concurrently system-wide. Excess submissions queue in arrival order.
type Manager struct {
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	pools   map[types.TaskKind]*pool
	started bool
	wg      sync.WaitGroup
}

func NewManager(ctx context.Context) *Manager {
	newCtx, cancel := context.WithCancel(ctx)
	return &Manager{
		ctx:    newCtx,
		cancel: cancel,
		pools:  make(map[types.TaskKind]*pool),
	}
}

// Register binds a task kind to its handler and pool size. All
// registration happens at boot, before Start; a duplicate kind is a
// programming error and panics.
func (m *Manager) Register(kind types.TaskKind, workers int, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		panic("queue: Register after Start")
	}
	if _, dup := m.pools[kind]; dup {
		panic(fmt.Sprintf("queue: task kind %q registered twice", kind))
	}
	if workers <= 0 {
		workers = 1
	}

	m.pools[kind] = &pool{
		kind:    kind,
		workers: workers,
		handler: handler,
		jobs:    make(chan submission, poolBuffer),
	}
}

// Registered reports whether a task kind has a pool. The hook table is
// validated against this at boot.
func (m *Manager) Registered(kind types.TaskKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pools[kind]
	return ok
}

// Start launches every pool's workers.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.started = true

	for _, p := range m.pools {
		for i := 0; i < p.workers; i++ {
			m.wg.Add(1)
			go m.worker(p)
		}
	}
}

func (m *Manager) worker(p *pool) {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case sub := <-p.jobs:
			payload, err := p.handler(m.ctx, sub.job)
			if sub.result != nil {
				sub.result <- outcome{payload: payload, err: err}
				continue
			}
			if err != nil {
				syslog.L.Error(err).
					WithField("task", string(p.kind)).
					WithField("handle", sub.job.Handle).
					WithMessage("background job failed").Write()
			}
		}
	}
}

func (m *Manager) submit(kind types.TaskKind, transferID string, mode types.SubmitMode, result chan outcome) (types.Job, error) {
	if m.ctx.Err() != nil {
		return types.Job{}, ErrClosed
	}

	m.mu.Lock()
	p, ok := m.pools[kind]
	m.mu.Unlock()
	if !ok {
		return types.Job{}, fmt.Errorf("%w: %s", ErrUnknownTask, kind)
	}

	job := types.Job{
		Handle:     uuid.NewString(),
		Task:       kind,
		TransferID: transferID,
		Mode:       mode,
	}

	select {
	case p.jobs <- submission{job: job, result: result}:
		return job, nil
	default:
		return types.Job{}, fmt.Errorf("%w (%s)", ErrQueueFull, kind)
	}
}

// Submit enqueues a fire-and-forget job and returns its handle
// immediately; the caller never sees the result.
func (m *Manager) Submit(kind types.TaskKind, transferID string) (string, error) {
	job, err := m.submit(kind, transferID, types.ModeBackground, nil)
	if err != nil {
		return "", err
	}
	return job.Handle, nil
}

// SubmitWait enqueues a job and blocks until its worker finishes,
// returning the worker's result payload.
func (m *Manager) SubmitWait(ctx context.Context, kind types.TaskKind, transferID string) (any, error) {
	result := make(chan outcome, 1)
	if _, err := m.submit(kind, transferID, types.ModeSynchronous, result); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.ctx.Done():
		return nil, ErrClosed
	case out := <-result:
		return out.payload, out.err
	}
}

// Close stops accepting submissions and waits for in-flight workers.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}
