package engine

import (
	"context"
	"time"

	"bp-hedge-bot/internal/exchange"

	"go.uber.org/zap"
)

// OpenLong opens the long leg with a market order sized at the account's
// full buying power. If the fill never registers, the short leg is actively
// flattened so the pair is not left carrying unhedged risk.
func (e *Engine) OpenLong(ctx context.Context) LongResult {
	symbol := e.cfg.Symbol
	leg := e.long
	log := e.log.With(zap.String("account", leg.Name()), zap.String("symbol", symbol))

	res := LongResult{Outcome: OutcomeFailed}

	for attempt := 1; attempt <= e.cfg.LongOpenAttempts; attempt++ {
		res.Attempts = attempt
		if ctx.Err() != nil {
			break
		}

		margin := leg.AvailableMargin(ctx)
		if margin <= 0 {
			log.Warn("no available margin for long leg", zap.Int("attempt", attempt))
			if e.sleep(ctx, e.longRetryDelay) != nil {
				break
			}
			continue
		}

		notional := margin * e.cfg.Leverage
		if _, err := leg.PlaceMarketOrder(ctx, symbol, exchange.SideBid, notional); err != nil {
			e.metrics.OrdersFailed.Inc()
			log.Warn("long market order rejected",
				zap.Int("attempt", attempt),
				zap.Float64("notional", notional),
				zap.Error(err),
			)
			if e.sleep(ctx, e.longRetryDelay) != nil {
				break
			}
			continue
		}
		e.metrics.OrdersPlaced.Inc()
		res.Notional = notional

		if e.sleep(ctx, e.settleDelay) != nil {
			break
		}
		if pos, ok := e.confirmLongFill(ctx, leg, symbol); ok {
			log.Info("long leg opened",
				zap.Float64("size", pos.Size()),
				zap.Float64("entry_price", pos.EntryPrice),
				zap.Float64("notional", notional),
				zap.Int("attempt", attempt),
			)
			res.Outcome = OutcomeOpened
			return res
		}
		log.Warn("long fill not confirmed", zap.Int("attempt", attempt))
	}

	log.Error("long leg did not open, unwinding short", zap.Int("attempts", res.Attempts))
	res.Unwound = e.unwindShort(ctx)
	return res
}

// confirmLongFill polls for the position with increasing per-check delays.
// Market fills can lag the order acknowledgement on the position endpoint.
func (e *Engine) confirmLongFill(ctx context.Context, leg LegClient, symbol string) (exchange.Position, bool) {
	for check := 1; check <= e.confirmChecks; check++ {
		if pos, ok := leg.Position(ctx, symbol); ok && !pos.Flat() {
			return pos, true
		}
		if check < e.confirmChecks {
			if e.sleep(ctx, time.Duration(check)*e.pollTick) != nil {
				break
			}
		}
	}
	return exchange.Position{}, false
}

// unwindShort flattens the short leg with an opposing market order sized at
// its current quantity times mark price. Reports whether an unwind order
// was actually submitted.
func (e *Engine) unwindShort(ctx context.Context) bool {
	symbol := e.cfg.Symbol
	log := e.log.With(zap.String("account", e.short.Name()), zap.String("symbol", symbol))

	pos, ok := e.short.Position(ctx, symbol)
	if !ok || pos.Flat() {
		log.Info("short leg already flat, nothing to unwind")
		return false
	}
	notional := pos.Size() * pos.MarkPrice
	log.Warn("unwinding unhedged short leg",
		zap.Float64("size", pos.Size()),
		zap.Float64("mark_price", pos.MarkPrice),
		zap.Float64("notional", notional),
	)
	if _, err := e.short.PlaceMarketOrder(ctx, symbol, exchange.SideBid, notional); err != nil {
		e.metrics.OrdersFailed.Inc()
		log.Error("short unwind order failed", zap.Error(err))
		return false
	}
	e.metrics.OrdersPlaced.Inc()
	e.metrics.ShortUnwinds.Inc()
	return true
}
