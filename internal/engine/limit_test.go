package engine

import (
	"context"
	"errors"
	"testing"

	"bp-hedge-bot/internal/exchange"
)

func askBook(bestAsk float64) exchange.Book {
	return exchange.Book{Asks: []exchange.Level{{Price: bestAsk, Size: 500}}}
}

func TestOpenShortFullFill(t *testing.T) {
	// margin=1000, leverage=5, best ask 50.00, offset 0.0005:
	// maker price 50.03, quantity 99.94.
	short := &fakeLeg{
		name:      "sub1",
		book:      askBook(50.00),
		margins:   []float64{1000},
		positions: []posResp{flat(), shortPosition(99.94)},
	}
	e := newTestEngine(testStrategyConfig(), short, &fakeLeg{}, nil)

	res := e.OpenShort(context.Background())
	if res.Outcome != OutcomeOpened {
		t.Fatalf("expected opened, got %v", res.Outcome)
	}
	if res.Price != 50.03 {
		t.Fatalf("expected maker price 50.03, got %v", res.Price)
	}
	if res.Filled != 99.94 || res.Target != 99.94 {
		t.Fatalf("expected fill 99.94 of target 99.94, got %v of %v", res.Filled, res.Target)
	}
	if len(short.limits) != 1 {
		t.Fatalf("expected one limit order, got %d", len(short.limits))
	}
	order := short.limits[0]
	if order.Side != exchange.SideAsk || order.Price != 50.03 || order.Quantity != 99.94 {
		t.Fatalf("unexpected order: %+v", order)
	}
	if order.ReduceOnly {
		t.Fatalf("entry order must not be reduce-only")
	}
}

func TestOpenShortTopsUpPartialFill(t *testing.T) {
	short := &fakeLeg{
		name:    "sub1",
		book:    askBook(50.00),
		margins: []float64{1000},
		positions: []posResp{
			flat(),               // attempt 1 entry check
			shortPosition(50.00), // partial progress during wait
			shortPosition(50.00), // attempt 2 entry check
			shortPosition(99.94), // fill after top-up
		},
	}
	e := newTestEngine(testStrategyConfig(), short, &fakeLeg{}, nil)

	res := e.OpenShort(context.Background())
	if res.Outcome != OutcomeOpened {
		t.Fatalf("expected opened, got %v", res.Outcome)
	}
	if len(short.limits) != 2 {
		t.Fatalf("expected two limit orders, got %d", len(short.limits))
	}
	if got := short.limits[1].Quantity; got != 49.94 {
		t.Fatalf("expected top-up quantity 49.94, got %v", got)
	}
	// the target is recorded once and never recomputed from margin again
	if short.marginCalls != 1 {
		t.Fatalf("expected one margin query, got %d", short.marginCalls)
	}
	if len(short.cancels) != 1 {
		t.Fatalf("expected the stalled order cancelled, got %d cancels", len(short.cancels))
	}
}

func TestOpenShortResumesExistingPartial(t *testing.T) {
	// A leftover 90-unit short against a recomputed target of 99.94 clears
	// the 90% acceptance bar, so no new order is needed.
	short := &fakeLeg{
		name:    "sub1",
		book:    askBook(50.00),
		margins: []float64{100},
		positions: []posResp{
			{pos: exchange.Position{Symbol: "SOL_USDC_PERP", NetQuantity: -90, InitialMargin: 900}, ok: true},
		},
	}
	e := newTestEngine(testStrategyConfig(), short, &fakeLeg{}, nil)

	res := e.OpenShort(context.Background())
	if res.Outcome != OutcomeOpened {
		t.Fatalf("expected opened, got %v", res.Outcome)
	}
	if res.Target != 99.94 {
		t.Fatalf("expected target 99.94 from committed margin, got %v", res.Target)
	}
	if len(short.limits) != 0 {
		t.Fatalf("expected no new orders, got %d", len(short.limits))
	}
}

func TestOpenShortAcceptsPartialOnFinalAttempt(t *testing.T) {
	cfg := testStrategyConfig()
	cfg.LimitOrderRetries = 1
	short := &fakeLeg{
		name:    "sub1",
		book:    askBook(50.00),
		margins: []float64{1000},
		positions: []posResp{
			flat(),               // attempt entry check
			shortPosition(30.00), // partial during wait, below 90%
		},
	}
	e := newTestEngine(cfg, short, &fakeLeg{}, nil)

	res := e.OpenShort(context.Background())
	if res.Outcome != OutcomePartial {
		t.Fatalf("expected partial acceptance on final attempt, got %v", res.Outcome)
	}
	if res.Filled != 30.00 {
		t.Fatalf("expected filled 30.00, got %v", res.Filled)
	}
	if !res.Opened() {
		t.Fatalf("partial result must count as opened")
	}
}

func TestOpenShortKeepsPartialWhenBookGoesEmpty(t *testing.T) {
	// An existing partial position must never be abandoned just because the
	// book stopped quoting: the cycle continues so the hedge can cover it.
	short := &fakeLeg{
		name:      "sub1",
		positions: []posResp{shortPosition(50.00)},
	}
	e := newTestEngine(testStrategyConfig(), short, &fakeLeg{}, nil)

	res := e.OpenShort(context.Background())
	if res.Outcome != OutcomePartial {
		t.Fatalf("expected existing partial kept, got %v", res.Outcome)
	}
	if res.Filled != 50.00 {
		t.Fatalf("expected filled 50.00, got %v", res.Filled)
	}
	if !res.Opened() {
		t.Fatalf("kept partial must count as opened")
	}
	if len(short.limits) != 0 {
		t.Fatalf("expected no orders against an empty book, got %d", len(short.limits))
	}
}

func TestOpenShortKeepsPartialWhenTopUpUnsizeable(t *testing.T) {
	// Margin is drained and the resumed position reports no committed
	// margin, so no top-up can be sized; the existing fill is kept rather
	// than failing the cycle with the short leg still open.
	short := &fakeLeg{
		name:      "sub1",
		book:      askBook(50.00),
		positions: []posResp{shortPosition(50.00)},
	}
	e := newTestEngine(testStrategyConfig(), short, &fakeLeg{}, nil)

	res := e.OpenShort(context.Background())
	if res.Outcome != OutcomePartial {
		t.Fatalf("expected existing partial kept, got %v", res.Outcome)
	}
	if res.Filled != 50.00 {
		t.Fatalf("expected filled 50.00, got %v", res.Filled)
	}
	if short.marginCalls != 1 {
		t.Fatalf("expected one margin query, got %d", short.marginCalls)
	}
	if len(short.limits) != 0 {
		t.Fatalf("expected no new orders, got %d", len(short.limits))
	}
}

func TestOpenShortFailsWithNoFill(t *testing.T) {
	cfg := testStrategyConfig()
	cfg.LimitOrderRetries = 2
	short := &fakeLeg{
		name:    "sub1",
		book:    askBook(50.00),
		margins: []float64{1000},
	}
	e := newTestEngine(cfg, short, &fakeLeg{}, nil)

	res := e.OpenShort(context.Background())
	if res.Outcome != OutcomeFailed {
		t.Fatalf("expected failed, got %v", res.Outcome)
	}
	if res.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", res.Attempts)
	}
	if len(short.cancels) != 2 {
		t.Fatalf("expected a cancel per timed-out attempt, got %d", len(short.cancels))
	}
}

func TestOpenShortRetriesEmptyBook(t *testing.T) {
	cfg := testStrategyConfig()
	cfg.LimitOrderRetries = 2
	short := &fakeLeg{name: "sub1", margins: []float64{1000}}
	e := newTestEngine(cfg, short, &fakeLeg{}, nil)

	res := e.OpenShort(context.Background())
	if res.Outcome != OutcomeFailed {
		t.Fatalf("expected failed on persistently empty book, got %v", res.Outcome)
	}
	if len(short.limits) != 0 {
		t.Fatalf("expected no orders against an empty book, got %d", len(short.limits))
	}
}

func TestOpenShortRetriesRejectedOrder(t *testing.T) {
	short := &fakeLeg{
		name:      "sub1",
		book:      askBook(50.00),
		margins:   []float64{1000},
		limitErrs: []error{errors.New("INSUFFICIENT_MARGIN")},
		positions: []posResp{flat(), flat(), shortPosition(99.94)},
	}
	e := newTestEngine(testStrategyConfig(), short, &fakeLeg{}, nil)

	res := e.OpenShort(context.Background())
	if res.Outcome != OutcomeOpened {
		t.Fatalf("expected opened after retrying rejection, got %v", res.Outcome)
	}
	if len(short.limits) != 1 {
		t.Fatalf("expected one accepted order, got %d", len(short.limits))
	}
}

func TestOpenShortFilledByStatus(t *testing.T) {
	short := &fakeLeg{
		name:      "sub1",
		book:      askBook(50.00),
		margins:   []float64{1000},
		positions: []posResp{flat(), flat(), shortPosition(99.94)},
		statuses:  []exchange.OrderStatus{exchange.StatusFilled},
	}
	e := newTestEngine(testStrategyConfig(), short, &fakeLeg{}, nil)

	res := e.OpenShort(context.Background())
	if res.Outcome != OutcomeOpened {
		t.Fatalf("expected opened via status report, got %v", res.Outcome)
	}
}
