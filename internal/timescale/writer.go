package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"bp-hedge-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// LegSnapshot is one observation of a leg's position during monitoring.
type LegSnapshot struct {
	Time             time.Time
	Pair             string
	Account          string
	Symbol           string
	NetQuantity      float64
	EntryPrice       float64
	MarkPrice        float64
	LiquidationPrice float64
	UnrealizedPnL    float64
}

// CycleEvent is the terminal record of one finished hedge cycle.
type CycleEvent struct {
	Time           time.Time
	Pair           string
	ShortOutcome   string
	LongOutcome    string
	MonitorOutcome string
	TargetSize     float64
	FilledSize     float64
	EntryPrice     float64
	TakeProfits    int
	Swept          int
	Failed         bool
	Error          string
	DurationMS     int64
}

// Writer persists monitoring history asynchronously. Inserts are queued and
// drained by a single goroutine; a full queue drops rather than blocks the
// trading path.
type Writer struct {
	db        *sql.DB
	log       *zap.Logger
	schema    string
	legs      chan LegSnapshot
	cycles    chan CycleEvent
	started   atomic.Bool
	dropLeg   atomic.Uint64
	dropCycle atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:     db,
		log:    log,
		schema: schema,
		legs:   make(chan LegSnapshot, queueSize),
		cycles: make(chan CycleEvent, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueLegSnapshot(snapshot LegSnapshot) {
	if w == nil {
		return
	}
	select {
	case w.legs <- snapshot:
		return
	default:
		if w.dropLeg.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale leg snapshot queue full")
		}
	}
}

func (w *Writer) EnqueueCycle(event CycleEvent) {
	if w == nil {
		return
	}
	select {
	case w.cycles <- event:
		return
	default:
		if w.dropCycle.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale cycle queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-w.legs:
			w.writeLegSnapshot(ctx, snap)
		case event := <-w.cycles:
			w.writeCycle(ctx, event)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		pair TEXT NOT NULL,
		account TEXT NOT NULL,
		symbol TEXT NOT NULL,
		net_quantity DOUBLE PRECISION NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		mark_price DOUBLE PRECISION NOT NULL,
		liquidation_price DOUBLE PRECISION NOT NULL,
		unrealized_pnl DOUBLE PRECISION NOT NULL
	)`, w.table("leg_snapshots"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		pair TEXT NOT NULL,
		short_outcome TEXT NOT NULL,
		long_outcome TEXT NOT NULL,
		monitor_outcome TEXT NOT NULL,
		target_size DOUBLE PRECISION NOT NULL,
		filled_size DOUBLE PRECISION NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		take_profits INTEGER NOT NULL,
		swept INTEGER NOT NULL,
		failed BOOLEAN NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		duration_ms BIGINT NOT NULL
	)`, w.table("cycle_events"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("leg_snapshots"))); err != nil && w.log != nil {
		w.log.Warn("timescale leg_snapshots hypertable create failed", zap.Error(err))
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("cycle_events"))); err != nil && w.log != nil {
		w.log.Warn("timescale cycle_events hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeLegSnapshot(ctx context.Context, snap LegSnapshot) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, pair, account, symbol, net_quantity, entry_price, mark_price,
		liquidation_price, unrealized_pnl
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9
	)`, w.table("leg_snapshots"))
	if _, err := w.db.ExecContext(ctx, query,
		snap.Time,
		snap.Pair,
		snap.Account,
		snap.Symbol,
		snap.NetQuantity,
		snap.EntryPrice,
		snap.MarkPrice,
		snap.LiquidationPrice,
		snap.UnrealizedPnL,
	); err != nil && w.log != nil {
		w.log.Warn("timescale leg snapshot insert failed", zap.Error(err))
	}
}

func (w *Writer) writeCycle(ctx context.Context, event CycleEvent) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, pair, short_outcome, long_outcome, monitor_outcome,
		target_size, filled_size, entry_price, take_profits, swept,
		failed, error, duration_ms
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
	)`, w.table("cycle_events"))
	if _, err := w.db.ExecContext(ctx, query,
		event.Time,
		event.Pair,
		event.ShortOutcome,
		event.LongOutcome,
		event.MonitorOutcome,
		event.TargetSize,
		event.FilledSize,
		event.EntryPrice,
		event.TakeProfits,
		event.Swept,
		event.Failed,
		event.Error,
		event.DurationMS,
	); err != nil && w.log != nil {
		w.log.Warn("timescale cycle insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
