package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// RunCycle executes one full hedge cycle: deposit, open short then long,
// place take-profits, monitor until flat, sweep residual funds home.
func (e *Engine) RunCycle(ctx context.Context) CycleResult {
	res := CycleResult{Pair: e.pair.Label(), Started: e.now(), Monitor: OutcomeSkipped}
	e.metrics.CyclesStarted.Inc()
	e.log.Info("cycle starting", zap.String("symbol", e.cfg.Symbol))

	res.Err = e.runPhases(ctx, &res)
	res.Finished = e.now()
	if res.Err != nil {
		e.metrics.CyclesFailed.Inc()
		e.log.Warn("cycle failed",
			zap.String("short_outcome", string(res.Short.Outcome)),
			zap.String("long_outcome", string(res.Long.Outcome)),
			zap.Error(res.Err),
		)
		return res
	}
	e.metrics.CyclesCompleted.Inc()
	e.log.Info("cycle completed",
		zap.String("short_outcome", string(res.Short.Outcome)),
		zap.String("monitor_outcome", string(res.Monitor)),
		zap.Int("take_profits", res.TakeProfits),
		zap.Int("swept", res.Swept),
		zap.Duration("duration", res.Finished.Sub(res.Started)),
	)
	return res
}

func (e *Engine) runPhases(ctx context.Context, res *CycleResult) error {
	if err := e.Deposit(ctx); err != nil {
		return err
	}

	res.Short = e.OpenShort(ctx)
	if !res.Short.Opened() {
		return errors.New("short leg did not open")
	}
	res.Long = e.OpenLong(ctx)
	if res.Long.Outcome != OutcomeOpened {
		return errors.New("long leg did not open")
	}

	if err := e.generalDelay(ctx); err != nil {
		return err
	}
	res.TakeProfits = e.PlaceTakeProfits(ctx)

	res.Monitor = e.Monitor(ctx)

	if err := e.generalDelay(ctx); err != nil {
		return err
	}
	res.Swept = e.Sweep(ctx)
	return nil
}

func (e *Engine) generalDelay(ctx context.Context) error {
	return e.sleep(ctx, e.jitter(e.cfg.GeneralDelay.Min, e.cfg.GeneralDelay.Max))
}
