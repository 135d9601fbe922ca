package app

import (
	"context"
	"time"

	"bp-hedge-bot/internal/alerts"
	"bp-hedge-bot/internal/engine"
	"bp-hedge-bot/internal/exchange"
	"bp-hedge-bot/internal/state"
	"bp-hedge-bot/internal/state/sqlite"
	"bp-hedge-bot/internal/timescale"

	"go.uber.org/zap"
)

// Recorder fans a finished cycle out to the durable sinks: the sqlite
// snapshot and history, the timescale event stream, and the failure pager.
type Recorder struct {
	store  *sqlite.Store
	writer *timescale.Writer
	alerts *alerts.Telegram
	log    *zap.Logger
}

func (r *Recorder) RecordCycle(ctx context.Context, res engine.CycleResult) {
	snapshot := snapshotFromResult(res)
	if r.store != nil {
		if err := state.SaveCycleSnapshot(ctx, r.store, snapshot); err != nil {
			r.log.Warn("cycle snapshot save failed", zap.String("pair", res.Pair), zap.Error(err))
		}
		if err := r.store.InsertCycle(ctx, snapshot); err != nil {
			r.log.Warn("cycle history insert failed", zap.String("pair", res.Pair), zap.Error(err))
		}
	}
	if r.writer != nil {
		r.writer.EnqueueCycle(timescale.CycleEvent{
			Time:           res.Finished,
			Pair:           res.Pair,
			ShortOutcome:   snapshot.ShortOutcome,
			LongOutcome:    snapshot.LongOutcome,
			MonitorOutcome: snapshot.MonitorOutcome,
			TargetSize:     snapshot.TargetSize,
			FilledSize:     snapshot.FilledSize,
			EntryPrice:     snapshot.EntryPrice,
			TakeProfits:    snapshot.TakeProfits,
			Swept:          snapshot.Swept,
			Failed:         snapshot.Failed,
			Error:          snapshot.Error,
			DurationMS:     res.Finished.Sub(res.Started).Milliseconds(),
		})
	}
	if r.alerts != nil {
		r.alerts.NotifyCycle(ctx, res.Pair, snapshot.Failed, snapshot.Error)
	}
}

func snapshotFromResult(res engine.CycleResult) state.CycleSnapshot {
	snapshot := state.CycleSnapshot{
		Pair:           res.Pair,
		ShortOutcome:   string(res.Short.Outcome),
		LongOutcome:    string(res.Long.Outcome),
		MonitorOutcome: string(res.Monitor),
		TargetSize:     res.Short.Target,
		FilledSize:     res.Short.Filled,
		EntryPrice:     res.Short.Price,
		TakeProfits:    res.TakeProfits,
		Swept:          res.Swept,
		StartedAtMS:    res.Started.UnixMilli(),
		FinishedAtMS:   res.Finished.UnixMilli(),
	}
	if res.Err != nil {
		snapshot.Failed = true
		snapshot.Error = res.Err.Error()
	}
	return snapshot
}

var timeNow = time.Now

// legObserver streams monitored position reads into the history writer.
type legObserver struct {
	writer *timescale.Writer
}

func (o *legObserver) ObservePosition(pair, account string, pos exchange.Position) {
	o.writer.EnqueueLegSnapshot(timescale.LegSnapshot{
		Time:             timeNow(),
		Pair:             pair,
		Account:          account,
		Symbol:           pos.Symbol,
		NetQuantity:      pos.NetQuantity,
		EntryPrice:       pos.EntryPrice,
		MarkPrice:        pos.MarkPrice,
		LiquidationPrice: pos.LiquidationPrice,
		UnrealizedPnL:    pos.UnrealizedPnL,
	})
}
