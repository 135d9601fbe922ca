package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"bp-hedge-bot/internal/config"
)

func TestDepositFundsBothLegs(t *testing.T) {
	cfg := testStrategyConfig()
	cfg.InitialDeposit = 140
	treasury := &fakeTreasury{}
	e := newTestEngine(cfg, &fakeLeg{name: "sub1"}, &fakeLeg{name: "sub2"}, treasury)

	if err := e.Deposit(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(treasury.calls) != 2 {
		t.Fatalf("expected one deposit per leg, got %d", len(treasury.calls))
	}
	if treasury.calls[0].address != "addr-sub1" || treasury.calls[1].address != "addr-sub2" {
		t.Fatalf("unexpected deposit targets: %v", treasury.calls)
	}
	for _, c := range treasury.calls {
		if c.quantity != 140 {
			t.Fatalf("expected deposit of 140, got %v", c.quantity)
		}
	}
}

func TestDepositRetriesTransientFailures(t *testing.T) {
	cfg := testStrategyConfig()
	cfg.InitialDeposit = 140
	treasury := &fakeTreasury{errs: []error{errors.New("busy"), errors.New("busy")}}
	e := newTestEngine(cfg, &fakeLeg{name: "sub1"}, &fakeLeg{name: "sub2"}, treasury)

	if err := e.Deposit(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// sub1 needs three attempts, sub2 succeeds first try
	if len(treasury.calls) != 4 {
		t.Fatalf("expected 4 withdrawal calls, got %d", len(treasury.calls))
	}
}

func TestDepositFailsAfterExhaustingAttempts(t *testing.T) {
	cfg := testStrategyConfig()
	cfg.InitialDeposit = 140
	cfg.SweepAttempts = 2
	treasury := &fakeTreasury{errs: []error{errors.New("down"), errors.New("down"), errors.New("down")}}
	e := newTestEngine(cfg, &fakeLeg{name: "sub1"}, &fakeLeg{name: "sub2"}, treasury)

	if err := e.Deposit(context.Background()); err == nil {
		t.Fatalf("expected error after exhausting deposit attempts")
	}
	if len(treasury.calls) != 2 {
		t.Fatalf("expected attempts bounded at 2, got %d", len(treasury.calls))
	}
}

func TestDepositDelaysAfterEachAccount(t *testing.T) {
	cfg := testStrategyConfig()
	cfg.InitialDeposit = 140
	cfg.GeneralDelay = config.DelayBounds{Min: 7 * time.Second, Max: 7 * time.Second}
	treasury := &fakeTreasury{}
	e := newTestEngine(cfg, &fakeLeg{name: "sub1"}, &fakeLeg{name: "sub2"}, treasury)
	var slept []time.Duration
	inner := e.sleep
	e.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return inner(ctx, d)
	}

	if err := e.Deposit(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slept) != 2 || slept[0] != 7*time.Second || slept[1] != 7*time.Second {
		t.Fatalf("expected a settle delay after each deposit, got %v", slept)
	}
}

func TestDepositSkippedWhenUnconfigured(t *testing.T) {
	treasury := &fakeTreasury{}
	e := newTestEngine(testStrategyConfig(), &fakeLeg{name: "sub1"}, &fakeLeg{name: "sub2"}, treasury)

	if err := e.Deposit(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(treasury.calls) != 0 {
		t.Fatalf("expected no deposits with a zero amount, got %d", len(treasury.calls))
	}
}
