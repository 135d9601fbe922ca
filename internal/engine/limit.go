package engine

import (
	"context"
	"time"

	"bp-hedge-bot/internal/exchange"

	"go.uber.org/zap"
)

// OpenShort opens the short leg with a maker order, reconciling partial
// fills across attempts. The target size is recorded once per cycle: from
// available margin on a fresh start, or from margin plus the margin already
// committed when resuming a partially filled leg.
func (e *Engine) OpenShort(ctx context.Context) ShortResult {
	symbol := e.cfg.Symbol
	leg := e.short
	log := e.log.With(zap.String("account", leg.Name()), zap.String("symbol", symbol))

	res := ShortResult{Outcome: OutcomeFailed}
	var target float64

	for attempt := 1; attempt <= e.cfg.LimitOrderRetries; attempt++ {
		res.Attempts = attempt
		if ctx.Err() != nil {
			return res
		}
		lastAttempt := attempt == e.cfg.LimitOrderRetries

		step, err := leg.QuantityStep(ctx, symbol)
		if err != nil {
			log.Warn("quantity step unavailable", zap.Int("attempt", attempt), zap.Error(err))
			if e.sleep(ctx, e.retryDelay) != nil {
				return res
			}
			continue
		}

		pos, havePos := leg.Position(ctx, symbol)
		size := 0.0
		if havePos {
			size = pos.Size()
		}

		book := leg.OrderBook(ctx, symbol)
		bestAsk := book.BestAsk()
		if bestAsk <= 0 {
			if size > 0 {
				log.Warn("order book empty, keeping existing partial fill",
					zap.Float64("size", size),
					zap.Int("attempt", attempt),
				)
				res.Outcome = OutcomePartial
				res.Target, res.Filled, res.Price = target, size, pos.EntryPrice
				return res
			}
			log.Warn("order book empty", zap.Int("attempt", attempt))
			if e.sleep(ctx, e.retryDelay) != nil {
				return res
			}
			continue
		}
		price := exchange.RoundPrice(bestAsk * (1 + e.cfg.MakerOffset.Short))

		var quantity float64
		if size > 0 {
			if target == 0 {
				margin := leg.AvailableMargin(ctx)
				target = exchange.FloorToStep((margin+pos.InitialMargin)*e.cfg.Leverage/price, step)
				log.Info("resuming partial short fill",
					zap.Float64("size", size),
					zap.Float64("target", target),
					zap.Float64("margin", margin),
				)
			}
			if target > 0 && size >= e.cfg.FillAcceptRatio*target {
				log.Info("short leg sufficiently filled",
					zap.Float64("size", size),
					zap.Float64("target", target),
					zap.Int("attempt", attempt),
				)
				res.Outcome = OutcomeOpened
				res.Target, res.Filled, res.Price = target, size, price
				return res
			}
			quantity = exchange.FloorToStep(target-size, step)
		} else {
			margin := leg.AvailableMargin(ctx)
			if margin <= 0 {
				log.Warn("no available margin for short leg", zap.Int("attempt", attempt))
				if e.sleep(ctx, e.retryDelay) != nil {
					return res
				}
				continue
			}
			quantity = exchange.FloorToStep(margin*e.cfg.Leverage/price, step)
			target = quantity
		}
		if quantity <= 0 {
			if size > 0 {
				log.Warn("cannot size a top-up order, keeping existing partial fill",
					zap.Float64("size", size),
					zap.Float64("target", target),
				)
				res.Outcome = OutcomePartial
				res.Target, res.Filled, res.Price = target, size, price
				return res
			}
			log.Warn("computed order quantity is zero", zap.Int("attempt", attempt))
			if e.sleep(ctx, e.retryDelay) != nil {
				return res
			}
			continue
		}

		order, err := leg.PlaceLimitOrder(ctx, symbol, exchange.SideAsk, price, quantity, false)
		if err != nil {
			e.metrics.OrdersFailed.Inc()
			log.Warn("short limit order rejected", zap.Int("attempt", attempt), zap.Error(err))
			if e.sleep(ctx, e.retryDelay) != nil {
				return res
			}
			continue
		}
		e.metrics.OrdersPlaced.Inc()

		filled, newSize := e.waitForFill(ctx, leg, order, size, target, step, log)
		if filled {
			res.Outcome = OutcomeOpened
			res.Target, res.Filled, res.Price = target, newSize, price
			return res
		}
		if newSize > 0 && lastAttempt {
			log.Warn("accepting partial short fill on final attempt",
				zap.Float64("size", newSize),
				zap.Float64("target", target),
			)
			res.Outcome = OutcomePartial
			res.Target, res.Filled, res.Price = target, newSize, price
			return res
		}
	}

	log.Error("short leg never filled", zap.Int("attempts", e.cfg.LimitOrderRetries))
	return res
}

// waitForFill polls one outstanding order until filled, a partial fill
// stalls progress, or the timeout lapses. The order is always cancelled
// before returning unfilled, so the next attempt starts with a clean book.
func (e *Engine) waitForFill(ctx context.Context, leg LegClient, order exchange.Order, startSize, target, step float64, log *zap.Logger) (bool, float64) {
	deadline := e.now().Add(e.cfg.LimitOrderTimeout)
	want := startSize + order.Quantity
	size := startSize
	var lastPositionCheck time.Time

	for e.now().Before(deadline) {
		if e.sleep(ctx, e.pollTick) != nil {
			break
		}
		if now := e.now(); now.Sub(lastPositionCheck) >= e.positionEvery {
			lastPositionCheck = now
			if pos, ok := leg.Position(ctx, order.Symbol); ok {
				size = pos.Size()
			}
			if size >= want-step || (target > 0 && size >= e.cfg.FillAcceptRatio*target) {
				log.Info("short order filled by size", zap.Float64("size", size), zap.Float64("target", target))
				return true, size
			}
			if size > startSize {
				log.Info("short order partially filled, topping up",
					zap.Float64("size", size),
					zap.Float64("requested", order.Quantity),
				)
				_ = leg.CancelOrder(ctx, order.Symbol, order.ID)
				return false, size
			}
		}
		status, err := leg.OrderStatus(ctx, order.Symbol, order.ID)
		if err == nil && status == exchange.StatusFilled {
			if pos, ok := leg.Position(ctx, order.Symbol); ok {
				size = pos.Size()
			}
			log.Info("short order filled by status", zap.Float64("size", size))
			return true, size
		}
	}

	_ = leg.CancelOrder(ctx, order.Symbol, order.ID)
	if pos, ok := leg.Position(ctx, order.Symbol); ok && !pos.Flat() {
		log.Info("short order timed out with partial position", zap.Float64("size", pos.Size()))
		return false, pos.Size()
	}
	log.Warn("short order timed out unfilled", zap.String("order_id", order.ID))
	return false, 0
}
