package engine

import (
	"context"
	"fmt"
	"time"

	"bp-hedge-bot/internal/config"
	"bp-hedge-bot/internal/exchange"
	"bp-hedge-bot/internal/metrics"

	"go.uber.org/zap"
)

type posResp struct {
	pos exchange.Position
	ok  bool
}

type placedMarket struct {
	side     exchange.Side
	notional float64
}

type withdrawal struct {
	address  string
	quantity float64
}

// fakeLeg scripts exchange responses from queues: the head is consumed per
// call and the last entry is sticky once the queue runs dry.
type fakeLeg struct {
	name      string
	step      float64
	book      exchange.Book
	margins   []float64
	positions []posResp
	statuses  []exchange.OrderStatus

	limitErrs   []error
	marketErrs  []error
	withdrawErr error

	limits      []exchange.Order
	markets     []placedMarket
	cancels     []string
	withdrawals []withdrawal

	positionCalls int
	marginCalls   int
}

func (f *fakeLeg) Name() string { return f.name }

func (f *fakeLeg) OrderBook(ctx context.Context, symbol string) exchange.Book {
	return f.book
}

func (f *fakeLeg) QuantityStep(ctx context.Context, symbol string) (float64, error) {
	if f.step == 0 {
		return 0.01, nil
	}
	return f.step, nil
}

func (f *fakeLeg) PlaceLimitOrder(ctx context.Context, symbol string, side exchange.Side, price, quantity float64, reduceOnly bool) (exchange.Order, error) {
	if err := popErr(&f.limitErrs); err != nil {
		return exchange.Order{}, err
	}
	order := exchange.Order{
		ID:         fmt.Sprintf("o-%d", len(f.limits)+1),
		Symbol:     symbol,
		Side:       side,
		Price:      price,
		Quantity:   quantity,
		ReduceOnly: reduceOnly,
	}
	f.limits = append(f.limits, order)
	return order, nil
}

func (f *fakeLeg) PlaceMarketOrder(ctx context.Context, symbol string, side exchange.Side, quoteNotional float64) (exchange.Order, error) {
	if err := popErr(&f.marketErrs); err != nil {
		return exchange.Order{}, err
	}
	f.markets = append(f.markets, placedMarket{side: side, notional: quoteNotional})
	return exchange.Order{ID: fmt.Sprintf("m-%d", len(f.markets)), Symbol: symbol, Side: side}, nil
}

func (f *fakeLeg) CancelOrder(ctx context.Context, symbol, orderID string) error {
	f.cancels = append(f.cancels, orderID)
	return nil
}

func (f *fakeLeg) OrderStatus(ctx context.Context, symbol, orderID string) (exchange.OrderStatus, error) {
	if len(f.statuses) == 0 {
		return exchange.StatusOpen, nil
	}
	s := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return s, nil
}

func (f *fakeLeg) Position(ctx context.Context, symbol string) (exchange.Position, bool) {
	f.positionCalls++
	if len(f.positions) == 0 {
		return exchange.Position{}, false
	}
	r := f.positions[0]
	if len(f.positions) > 1 {
		f.positions = f.positions[1:]
	}
	return r.pos, r.ok
}

func (f *fakeLeg) AvailableMargin(ctx context.Context) float64 {
	f.marginCalls++
	if len(f.margins) == 0 {
		return 0
	}
	m := f.margins[0]
	if len(f.margins) > 1 {
		f.margins = f.margins[1:]
	}
	return m
}

func (f *fakeLeg) RequestWithdrawal(ctx context.Context, address string, quantity float64) error {
	if f.withdrawErr != nil {
		return f.withdrawErr
	}
	f.withdrawals = append(f.withdrawals, withdrawal{address: address, quantity: quantity})
	return nil
}

func popErr(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

type fakeTreasury struct {
	errs  []error
	calls []withdrawal
}

func (f *fakeTreasury) RequestWithdrawal(ctx context.Context, address string, quantity float64) error {
	f.calls = append(f.calls, withdrawal{address: address, quantity: quantity})
	return popErr(&f.errs)
}

// fakeClock makes sleeps advance virtual time so deadline loops run
// instantly and deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.t = c.t.Add(d)
	return nil
}

func testStrategyConfig() config.StrategyConfig {
	return config.StrategyConfig{
		Symbol:             "SOL_USDC_PERP",
		Leverage:           5,
		MakerOffset:        config.MakerOffset{Short: 0.0005},
		TakeProfitOffset:   config.LongShort{Long: 0.5, Short: -0.5},
		FallbackTakeProfit: config.LongShort{Long: 1.02, Short: 0.98},
		FillAcceptRatio:    0.9,
		LimitOrderTimeout:  30 * time.Second,
		LimitOrderRetries:  3,
		LongOpenAttempts:   2,
		CheckInterval:      10 * time.Second,
		MonitorGrace:       time.Hour,
		MonitorCeiling:     24 * time.Hour,
		SweepAttempts:      3,
	}
}

func testPair() config.PairConfig {
	return config.PairConfig{
		ShortAccount: config.AccountConfig{Name: "sub1", Address: "addr-sub1"},
		LongAccount:  config.AccountConfig{Name: "sub2", Address: "addr-sub2"},
	}
}

func newTestEngine(cfg config.StrategyConfig, short, long *fakeLeg, treasury TreasuryClient) *Engine {
	e := New(cfg, testPair(), "addr-treasury", treasury, short, long, zap.NewNop(), metrics.NewNoop())
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	e.now = clock.now
	e.sleep = clock.sleep
	e.jitter = func(min, max time.Duration) time.Duration { return min }
	return e
}

func shortPosition(size float64) posResp {
	return posResp{pos: exchange.Position{Symbol: "SOL_USDC_PERP", NetQuantity: -size}, ok: true}
}

func longPosition(size float64) posResp {
	return posResp{pos: exchange.Position{Symbol: "SOL_USDC_PERP", NetQuantity: size}, ok: true}
}

func flat() posResp {
	return posResp{}
}
