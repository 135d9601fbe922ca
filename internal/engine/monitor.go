package engine

import (
	"context"

	"bp-hedge-bot/internal/exchange"

	"go.uber.org/zap"
)

// Monitor polls both legs until both are flat or the ceiling lapses. A flat
// reading inside the grace window must re-confirm after a short delay to
// rule out API flakiness; past the grace window a single observation is
// enough. The monitor always hands off to the sweep phase: a timeout is an
// outcome, not an error.
func (e *Engine) Monitor(ctx context.Context) Outcome {
	start := e.now()
	e.log.Info("monitoring positions",
		zap.Duration("check_interval", e.cfg.CheckInterval),
		zap.Duration("ceiling", e.cfg.MonitorCeiling),
	)

	for {
		if ctx.Err() != nil {
			return OutcomeTimedOut
		}
		elapsed := e.now().Sub(start)
		if elapsed >= e.cfg.MonitorCeiling {
			e.log.Warn("monitor ceiling reached, proceeding to sweep", zap.Duration("elapsed", elapsed))
			return OutcomeTimedOut
		}

		shortPos, shortFlat := e.legState(ctx, e.short)
		longPos, longFlat := e.legState(ctx, e.long)

		if shortFlat && longFlat {
			if elapsed >= e.cfg.MonitorGrace {
				e.log.Info("both legs flat past grace window", zap.Duration("elapsed", elapsed))
				return OutcomeClosed
			}
			if e.sleep(ctx, e.confirmDelay) != nil {
				return OutcomeTimedOut
			}
			if _, stillFlat := e.legState(ctx, e.short); stillFlat {
				if _, stillFlat := e.legState(ctx, e.long); stillFlat {
					e.log.Info("both legs confirmed closed", zap.Duration("elapsed", elapsed))
					return OutcomeClosed
				}
			}
			e.log.Info("flat reading did not confirm, continuing monitor")
		} else {
			e.log.Debug("legs still active",
				zap.Float64("short_qty", shortPos.NetQuantity),
				zap.Float64("short_pnl", shortPos.UnrealizedPnL),
				zap.Float64("long_qty", longPos.NetQuantity),
				zap.Float64("long_pnl", longPos.UnrealizedPnL),
				zap.Duration("elapsed", elapsed),
			)
		}

		if e.sleep(ctx, e.cfg.CheckInterval) != nil {
			return OutcomeTimedOut
		}
	}
}

func (e *Engine) legState(ctx context.Context, leg LegClient) (exchange.Position, bool) {
	pos, ok := leg.Position(ctx, e.cfg.Symbol)
	if ok {
		if e.observer != nil {
			e.observer.ObservePosition(e.pair.Label(), leg.Name(), pos)
		}
		if !pos.Flat() {
			e.log.Info("position",
				zap.String("account", leg.Name()),
				zap.Float64("quantity", pos.NetQuantity),
				zap.Float64("notional", pos.Size()*pos.MarkPrice),
				zap.Float64("entry_price", pos.EntryPrice),
				zap.Float64("mark_price", pos.MarkPrice),
				zap.Float64("liquidation_price", pos.LiquidationPrice),
				zap.Float64("unrealized_pnl", pos.UnrealizedPnL),
			)
		}
	}
	return pos, !ok || pos.Flat()
}
