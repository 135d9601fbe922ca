package engine

import (
	"context"
	"testing"
	"time"

	"bp-hedge-bot/internal/exchange"
	"bp-hedge-bot/internal/metrics"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingObserver struct {
	accounts []string
}

func (r *recordingObserver) ObservePosition(pair, account string, pos exchange.Position) {
	r.accounts = append(r.accounts, account)
}

func TestMonitorRequiresConfirmedClosure(t *testing.T) {
	// A single transient zero reading must not end monitoring: the long leg
	// reappears on the confirmation re-check, so the monitor keeps going
	// until a flat reading confirms.
	short := &fakeLeg{name: "sub1"}
	long := &fakeLeg{
		name: "sub2",
		positions: []posResp{
			flat(),              // first observation: flat
			longPosition(99.40), // confirmation re-check: still active
			flat(),              // second observation and beyond
		},
	}
	e := newTestEngine(testStrategyConfig(), short, long, nil)

	if outcome := e.Monitor(context.Background()); outcome != OutcomeClosed {
		t.Fatalf("expected closed, got %v", outcome)
	}
	if long.positionCalls != 4 {
		t.Fatalf("expected 2 observations with 2 confirmations, got %d polls", long.positionCalls)
	}
}

func TestMonitorCeilingForcesExit(t *testing.T) {
	cfg := testStrategyConfig()
	cfg.MonitorCeiling = time.Minute
	cfg.MonitorGrace = time.Minute
	short := &fakeLeg{name: "sub1", positions: []posResp{shortPosition(99.94)}}
	long := &fakeLeg{name: "sub2", positions: []posResp{longPosition(99.40)}}
	e := newTestEngine(cfg, short, long, nil)

	if outcome := e.Monitor(context.Background()); outcome != OutcomeTimedOut {
		t.Fatalf("expected timed_out at the ceiling, got %v", outcome)
	}
}

func TestMonitorGraceAcceptsSingleFlatReading(t *testing.T) {
	// Past the grace window one flat observation of both legs is enough.
	cfg := testStrategyConfig()
	cfg.MonitorGrace = 0
	short := &fakeLeg{name: "sub1"}
	long := &fakeLeg{name: "sub2"}
	e := newTestEngine(cfg, short, long, nil)

	if outcome := e.Monitor(context.Background()); outcome != OutcomeClosed {
		t.Fatalf("expected closed, got %v", outcome)
	}
	if short.positionCalls != 1 || long.positionCalls != 1 {
		t.Fatalf("expected a single poll per leg, got %d/%d", short.positionCalls, long.positionCalls)
	}
}

func TestMonitorClosedWithinGraceAfterConfirmation(t *testing.T) {
	short := &fakeLeg{name: "sub1", positions: []posResp{shortPosition(99.94), flat()}}
	long := &fakeLeg{name: "sub2", positions: []posResp{longPosition(99.40), flat()}}
	e := newTestEngine(testStrategyConfig(), short, long, nil)

	if outcome := e.Monitor(context.Background()); outcome != OutcomeClosed {
		t.Fatalf("expected closed, got %v", outcome)
	}
}

func TestMonitorFeedsObserver(t *testing.T) {
	short := &fakeLeg{name: "sub1", positions: []posResp{shortPosition(99.94), flat()}}
	long := &fakeLeg{name: "sub2", positions: []posResp{longPosition(99.40), flat()}}
	e := newTestEngine(testStrategyConfig(), short, long, nil)
	obs := &recordingObserver{}
	e.SetObserver(obs)

	if outcome := e.Monitor(context.Background()); outcome != OutcomeClosed {
		t.Fatalf("expected closed, got %v", outcome)
	}
	// only the live reads from the first observation reach the observer;
	// flat reads report ok=false and carry no position data
	if len(obs.accounts) != 2 || obs.accounts[0] != "sub1" || obs.accounts[1] != "sub2" {
		t.Fatalf("unexpected observations: %v", obs.accounts)
	}
}

func TestMonitorLogsPositionReadsAtInfo(t *testing.T) {
	// Position observations form the audit trail of an open hedge; they must
	// survive the default info log level.
	core, logs := observer.New(zapcore.InfoLevel)
	short := &fakeLeg{name: "sub1", positions: []posResp{shortPosition(99.94), flat()}}
	long := &fakeLeg{name: "sub2", positions: []posResp{longPosition(99.40), flat()}}
	e := New(testStrategyConfig(), testPair(), "addr-treasury", nil, short, long, zap.New(core), metrics.NewNoop())
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	e.now = clock.now
	e.sleep = clock.sleep
	e.jitter = func(min, max time.Duration) time.Duration { return min }

	if outcome := e.Monitor(context.Background()); outcome != OutcomeClosed {
		t.Fatalf("expected closed, got %v", outcome)
	}
	if got := logs.FilterMessage("position").Len(); got != 2 {
		t.Fatalf("expected one position entry per live leg, got %d", got)
	}
}

func TestMonitorStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	short := &fakeLeg{name: "sub1", positions: []posResp{shortPosition(99.94)}}
	long := &fakeLeg{name: "sub2", positions: []posResp{longPosition(99.40)}}
	e := newTestEngine(testStrategyConfig(), short, long, nil)

	if outcome := e.Monitor(ctx); outcome != OutcomeTimedOut {
		t.Fatalf("expected timed_out on cancellation, got %v", outcome)
	}
}
