package engine

import (
	"context"
	"math/rand"
	"time"

	"bp-hedge-bot/internal/config"
	"bp-hedge-bot/internal/exchange"
	"bp-hedge-bot/internal/metrics"

	"go.uber.org/zap"
)

// LegClient is the per-account exchange surface one hedge leg runs against.
// Satisfied by exchange.Adapter.
type LegClient interface {
	Name() string
	OrderBook(ctx context.Context, symbol string) exchange.Book
	QuantityStep(ctx context.Context, symbol string) (float64, error)
	PlaceLimitOrder(ctx context.Context, symbol string, side exchange.Side, price, quantity float64, reduceOnly bool) (exchange.Order, error)
	PlaceMarketOrder(ctx context.Context, symbol string, side exchange.Side, quoteNotional float64) (exchange.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	OrderStatus(ctx context.Context, symbol, orderID string) (exchange.OrderStatus, error)
	Position(ctx context.Context, symbol string) (exchange.Position, bool)
	AvailableMargin(ctx context.Context) float64
	RequestWithdrawal(ctx context.Context, address string, quantity float64) error
}

// TreasuryClient funds the legs from the main account before a cycle opens.
type TreasuryClient interface {
	RequestWithdrawal(ctx context.Context, address string, quantity float64) error
}

// PositionObserver receives every live position read during monitoring.
type PositionObserver interface {
	ObservePosition(pair, account string, pos exchange.Position)
}

// Outcome tags how a phase ended.
type Outcome string

const (
	OutcomeOpened   Outcome = "opened"
	OutcomePartial  Outcome = "partial"
	OutcomeFailed   Outcome = "failed"
	OutcomeTimedOut Outcome = "timed_out"
	OutcomeClosed   Outcome = "closed"
	OutcomeSkipped  Outcome = "skipped"
)

type ShortResult struct {
	Outcome  Outcome
	Target   float64
	Filled   float64
	Price    float64
	Attempts int
}

// Opened reports whether the short leg holds any accepted position,
// full or partial.
func (r ShortResult) Opened() bool {
	return r.Outcome == OutcomeOpened || r.Outcome == OutcomePartial
}

type LongResult struct {
	Outcome  Outcome
	Notional float64
	Unwound  bool
	Attempts int
}

type CycleResult struct {
	Pair        string
	Short       ShortResult
	Long        LongResult
	TakeProfits int
	Monitor     Outcome
	Swept       int
	Started     time.Time
	Finished    time.Time
	Err         error
}

func (r CycleResult) Failed() bool {
	return r.Err != nil
}

// Engine runs the hedge lifecycle for one pair: deposit, open short then
// long, place take-profits, monitor until flat, sweep funds home. All waits
// are blocking polls with fixed delays; the only cancellation signal is ctx.
type Engine struct {
	cfg             config.StrategyConfig
	pair            config.PairConfig
	treasury        TreasuryClient
	treasuryAddress string
	short           LegClient
	long            LegClient
	log             *zap.Logger
	metrics         *metrics.Metrics
	observer        PositionObserver

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(min, max time.Duration) time.Duration
	now    func() time.Time

	retryDelay     time.Duration
	longRetryDelay time.Duration
	settleDelay    time.Duration
	confirmDelay   time.Duration
	pollTick       time.Duration
	positionEvery  time.Duration
	depositBackoff time.Duration
	confirmChecks  int
}

func New(cfg config.StrategyConfig, pair config.PairConfig, treasuryAddress string, treasury TreasuryClient, short, long LegClient, log *zap.Logger, m *metrics.Metrics) *Engine {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Engine{
		cfg:             cfg,
		pair:            pair,
		treasury:        treasury,
		treasuryAddress: treasuryAddress,
		short:           short,
		long:            long,
		log:             log.With(zap.String("pair", pair.Label())),
		metrics:         m,
		sleep:           sleepCtx,
		jitter:          randomDelay,
		now:             time.Now,
		retryDelay:      2 * time.Second,
		longRetryDelay:  5 * time.Second,
		settleDelay:     3 * time.Second,
		confirmDelay:    3 * time.Second,
		pollTick:        time.Second,
		positionEvery:   2 * time.Second,
		depositBackoff:  time.Second,
		confirmChecks:   5,
	}
}

// SetObserver attaches an optional sink for monitored position reads.
func (e *Engine) SetObserver(obs PositionObserver) {
	e.observer = obs
}

func randomDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
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
