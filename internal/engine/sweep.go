package engine

import (
	"context"

	"go.uber.org/zap"
)

// Balances at or below this are dust: not worth a withdrawal.
const sweepThreshold = 0.1

// Sweep withdraws each leg's residual margin back to the treasury address.
// Best effort: a failed withdrawal is logged and skipped, never retried
// here. Returns the number of withdrawals submitted.
func (e *Engine) Sweep(ctx context.Context) int {
	swept := 0
	for _, leg := range []LegClient{e.short, e.long} {
		margin := leg.AvailableMargin(ctx)
		if margin <= sweepThreshold {
			e.log.Info("sweep skipped, balance negligible",
				zap.String("account", leg.Name()),
				zap.Float64("margin", margin),
			)
			continue
		}
		if err := leg.RequestWithdrawal(ctx, e.treasuryAddress, margin); err != nil {
			e.log.Warn("sweep withdrawal failed",
				zap.String("account", leg.Name()),
				zap.Float64("quantity", margin),
				zap.Error(err),
			)
			continue
		}
		e.metrics.SweepsSubmitted.Inc()
		e.log.Info("sweep withdrawal submitted",
			zap.String("account", leg.Name()),
			zap.Float64("quantity", margin),
		)
		swept++
	}
	return swept
}
