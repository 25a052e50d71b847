package jit

import (
	"context"
	"sync"
	"time"
)

// CodeGenerator produces native code for a function at a target tier.
// Implementations live outside this package; the runtime wires in the
// real backend and tests use StubGenerator.
type CodeGenerator interface {
	Generate(name string, tier Tier) (code []byte, compileTime time.Duration, err error)
}

// StubGenerator is a placeholder backend that emits a bare return
// sequence. It keeps the promotion pipeline exercisable while the real
// code generator is wired in by the embedding runtime.
type StubGenerator struct{}

// Generate emits a single RET instruction.
func (StubGenerator) Generate(name string, tier Tier) ([]byte, time.Duration, error) {
	start := time.Now()
	return []byte{0xC3}, time.Since(start), nil
}

// Worker fulfills promotion requests on a background goroutine so the
// execution thread never waits on code generation. A request that is
// dropped (full queue) or fails to compile simply leaves its function
// at tier None, which is always a valid state.
type Worker struct {
	manager *Manager
	gen     CodeGenerator
	queue   chan PromotionRequest
	done    chan struct{}

	// OnError, if set, is called when generation or installation
	// fails. Must not block.
	OnError func(name string, err error)

	closeOnce sync.Once
}

// NewWorker creates a worker feeding the given manager.
func NewWorker(m *Manager, gen CodeGenerator, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Worker{
		manager: m,
		gen:     gen,
		queue:   make(chan PromotionRequest, queueSize),
		done:    make(chan struct{}),
	}
}

// Enqueue submits a promotion request without blocking. Returns false
// if the queue is full or the worker is closed; the request is then
// simply dropped.
func (w *Worker) Enqueue(req PromotionRequest) bool {
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case w.queue <- req:
		return true
	default:
		return false
	}
}

// Run processes promotion requests until the context is cancelled or
// Close is called.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case req := <-w.queue:
			w.fulfill(req)
		}
	}
}

func (w *Worker) fulfill(req PromotionRequest) {
	code, compileTime, err := w.gen.Generate(req.Name, req.Tier)
	if err == nil {
		err = w.manager.Install(req.Name, req.Tier, code, compileTime)
	}
	if err != nil && w.OnError != nil {
		w.OnError(req.Name, err)
	}
}

// Close stops the worker. Idempotent.
func (w *Worker) Close() {
	w.closeOnce.Do(func() { close(w.done) })
}
