package engine

import (
	"context"

	"bp-hedge-bot/internal/exchange"

	"go.uber.org/zap"
)

// PlaceTakeProfits places one reduce-only exit order per leg, each anchored
// to the opposite leg's estimated liquidation price: the protective exit
// fires around where the other side would be forced out. Falls back to
// entry-price-relative targets when liquidation data is missing. Failures
// are logged, never fatal: positions can still close via liquidation or a
// later manual exit, so the monitor phase runs regardless. Returns the
// number of orders placed.
func (e *Engine) PlaceTakeProfits(ctx context.Context) int {
	symbol := e.cfg.Symbol

	shortPos, okShort := e.short.Position(ctx, symbol)
	longPos, okLong := e.long.Position(ctx, symbol)
	if !okShort || shortPos.Flat() || !okLong || longPos.Flat() {
		e.log.Warn("skipping take-profit placement, a leg has no position",
			zap.Bool("short_open", okShort && !shortPos.Flat()),
			zap.Bool("long_open", okLong && !longPos.Flat()),
		)
		return 0
	}

	var shortTP, longTP float64
	if shortPos.LiquidationPrice > 0 && longPos.LiquidationPrice > 0 {
		longTP = exchange.RoundPrice(shortPos.LiquidationPrice + e.cfg.TakeProfitOffset.Long)
		shortTP = exchange.RoundPrice(longPos.LiquidationPrice + e.cfg.TakeProfitOffset.Short)
	} else {
		shortTP = exchange.RoundPrice(shortPos.EntryPrice * e.cfg.FallbackTakeProfit.Short)
		longTP = exchange.RoundPrice(longPos.EntryPrice * e.cfg.FallbackTakeProfit.Long)
		e.log.Warn("liquidation prices unavailable, using entry-relative take-profits",
			zap.Float64("short_liq", shortPos.LiquidationPrice),
			zap.Float64("long_liq", longPos.LiquidationPrice),
		)
	}
	e.log.Info("take-profit targets",
		zap.Float64("short_tp", shortTP),
		zap.Float64("long_tp", longTP),
		zap.Float64("short_liq", shortPos.LiquidationPrice),
		zap.Float64("long_liq", longPos.LiquidationPrice),
	)

	placed := 0
	if _, err := e.short.PlaceLimitOrder(ctx, symbol, exchange.SideBid, shortTP, shortPos.Size(), true); err != nil {
		e.metrics.OrdersFailed.Inc()
		e.log.Warn("short take-profit rejected",
			zap.String("account", e.short.Name()),
			zap.Float64("price", shortTP),
			zap.Error(err),
		)
	} else {
		e.metrics.OrdersPlaced.Inc()
		placed++
	}
	if _, err := e.long.PlaceLimitOrder(ctx, symbol, exchange.SideAsk, longTP, longPos.Size(), true); err != nil {
		e.metrics.OrdersFailed.Inc()
		e.log.Warn("long take-profit rejected",
			zap.String("account", e.long.Name()),
			zap.Float64("price", longTP),
			zap.Error(err),
		)
	} else {
		e.metrics.OrdersPlaced.Inc()
		placed++
	}
	return placed
}
