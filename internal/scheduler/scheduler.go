package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"bp-hedge-bot/internal/config"
	"bp-hedge-bot/internal/engine"

	"go.uber.org/zap"
)

// CycleRunner runs one full hedge cycle. Satisfied by engine.Engine.
type CycleRunner interface {
	RunCycle(ctx context.Context) engine.CycleResult
}

// Recorder persists finished cycle results. Optional.
type Recorder interface {
	RecordCycle(ctx context.Context, res engine.CycleResult)
}

type Worker struct {
	Label  string
	Runner CycleRunner
}

// Scheduler runs one non-terminating worker per pair. Workers share nothing
// but read-only configuration; a worker only stops when ctx is cancelled.
type Scheduler struct {
	cfg      config.StrategyConfig
	log      *zap.Logger
	recorder Recorder

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration

	wg sync.WaitGroup
}

func New(cfg config.StrategyConfig, recorder Recorder, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		log:      log,
		recorder: recorder,
		sleep:    sleepCtx,
		jitter:   randomJitter,
	}
}

// Start launches every worker. Call Wait to block until ctx cancellation
// has drained them.
func (s *Scheduler) Start(ctx context.Context, workers []Worker) {
	for _, w := range workers {
		s.wg.Add(1)
		go func(w Worker) {
			defer s.wg.Done()
			s.runWorker(ctx, w)
		}(w)
	}
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runWorker(ctx context.Context, w Worker) {
	log := s.log.With(zap.String("pair", w.Label))

	// Stagger worker starts so pairs do not hit the exchange in lockstep.
	delay := s.jitter(s.cfg.PairStartDelayMax)
	log.Info("worker starting", zap.Duration("start_delay", delay))
	if s.sleep(ctx, delay) != nil {
		return
	}

	for {
		res := s.safeCycle(ctx, w)
		if s.recorder != nil {
			s.recorder.RecordCycle(ctx, res)
		}
		if ctx.Err() != nil {
			log.Info("worker stopping")
			return
		}
		if s.sleep(ctx, s.cfg.CycleWaitTime) != nil {
			log.Info("worker stopping")
			return
		}
	}
}

// safeCycle converts a panicking cycle into a failed-cycle result. A cycle
// failure must never take the worker down with it.
func (s *Scheduler) safeCycle(ctx context.Context, w Worker) (res engine.CycleResult) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("cycle panicked",
				zap.String("pair", w.Label),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
			res.Pair = w.Label
			res.Err = fmt.Errorf("cycle panic: %v", r)
		}
	}()
	return w.Runner.RunCycle(ctx)
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
