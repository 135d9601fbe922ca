package engine

import (
	"context"
	"fmt"

	"bp-hedge-bot/internal/config"

	"go.uber.org/zap"
)

// Deposit funds both legs from the treasury before a cycle opens. A failed
// deposit leaves a leg without margin, so exhausting the retries aborts
// the cycle.
func (e *Engine) Deposit(ctx context.Context) error {
	if e.cfg.InitialDeposit <= 0 || e.treasury == nil {
		return nil
	}
	for _, acc := range []config.AccountConfig{e.pair.ShortAccount, e.pair.LongAccount} {
		if err := e.depositTo(ctx, acc); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) depositTo(ctx context.Context, acc config.AccountConfig) error {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.SweepAttempts; attempt++ {
		err := e.treasury.RequestWithdrawal(ctx, acc.Address, e.cfg.InitialDeposit)
		if err == nil {
			e.metrics.DepositsSubmitted.Inc()
			e.log.Info("deposit submitted",
				zap.String("account", acc.Name),
				zap.Float64("quantity", e.cfg.InitialDeposit),
				zap.Int("attempt", attempt),
			)
			// let the transfer settle before touching the account
			return e.generalDelay(ctx)
		}
		lastErr = err
		e.log.Warn("deposit failed",
			zap.String("account", acc.Name),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < e.cfg.SweepAttempts {
			if serr := e.sleep(ctx, e.depositBackoff); serr != nil {
				return serr
			}
		}
	}
	return fmt.Errorf("deposit to %s failed after %d attempts: %w", acc.Name, e.cfg.SweepAttempts, lastErr)
}
