package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"bp-hedge-bot/internal/alerts"
	"bp-hedge-bot/internal/bpx/rest"
	"bp-hedge-bot/internal/bpx/ws"
	"bp-hedge-bot/internal/config"
	"bp-hedge-bot/internal/engine"
	"bp-hedge-bot/internal/exchange"
	"bp-hedge-bot/internal/metrics"
	"bp-hedge-bot/internal/scheduler"
	"bp-hedge-bot/internal/state/sqlite"
	"bp-hedge-bot/internal/timescale"

	"go.uber.org/zap"
)

type accountStream struct {
	account string
	client  *ws.Client
}

// App wires the full process: one exchange adapter per account, one engine
// per pair, the scheduler that runs them, and the observability sinks.
type App struct {
	cfg     *config.Config
	log     *zap.Logger
	store   *sqlite.Store
	metrics *metrics.Metrics
	prom    *metrics.Prometheus
	writer  *timescale.Writer
	alerts  *alerts.Telegram
	sched   *scheduler.Scheduler
	workers []scheduler.Worker
	streams []accountStream
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}

	writer, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var treasury engine.TreasuryClient
	if cfg.MainAccount.APIKey != "" && cfg.MainAccount.APISecret != "" {
		adapter, _, err := buildLeg(cfg, cfg.MainAccount, log)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("main account: %w", err)
		}
		treasury = adapter
	} else if cfg.Strategy.InitialDeposit > 0 {
		_ = store.Close()
		return nil, errors.New("main account credentials are required for deposits")
	}

	alertsClient := alerts.NewTelegram(cfg.Telegram, log)

	app := &App{
		cfg:     cfg,
		log:     log,
		store:   store,
		metrics: m,
		prom:    prom,
		writer:  writer,
		alerts:  alertsClient,
	}

	var observer engine.PositionObserver
	if writer != nil {
		observer = &legObserver{writer: writer}
	}
	for _, pair := range cfg.Pairs {
		shortLeg, shortStream, err := buildLeg(cfg, pair.ShortAccount, log)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("pair %s: %w", pair.Label(), err)
		}
		longLeg, longStream, err := buildLeg(cfg, pair.LongAccount, log)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("pair %s: %w", pair.Label(), err)
		}
		eng := engine.New(cfg.Strategy, pair, cfg.MainAccount.Address, treasury, shortLeg, longLeg, log, m)
		if observer != nil {
			eng.SetObserver(observer)
		}
		app.workers = append(app.workers, scheduler.Worker{Label: pair.Label(), Runner: eng})
		if shortStream != nil {
			app.streams = append(app.streams, accountStream{account: pair.ShortAccount.Name, client: shortStream})
		}
		if longStream != nil {
			app.streams = append(app.streams, accountStream{account: pair.LongAccount.Name, client: longStream})
		}
	}

	recorder := &Recorder{store: store, writer: writer, alerts: alertsClient, log: log}
	app.sched = scheduler.New(cfg.Strategy, recorder, log)
	return app, nil
}

// buildLeg constructs one account's signed REST adapter and, when streaming
// is enabled, its private order-update subscription.
func buildLeg(cfg *config.Config, acc config.AccountConfig, log *zap.Logger) (*exchange.Adapter, *ws.Client, error) {
	signer, err := rest.NewSigner(acc.APIKey, acc.APISecret)
	if err != nil {
		return nil, nil, fmt.Errorf("account %s: %w", acc.Name, err)
	}
	client := rest.New(cfg.REST.BaseURL, cfg.REST.Timeout, signer, cfg.REST.Window, log)
	adapter := exchange.New(acc.Name, client, log)
	if !cfg.WS.Enabled {
		return adapter, nil, nil
	}
	stream := ws.New(cfg.WS.URL, cfg.WS.ReconnectDelay, cfg.WS.PingInterval, log)
	if err := stream.Subscribe(context.Background(), ws.PrivateSubscription(signer, cfg.REST.Window, ws.OrderUpdateStream)); err != nil {
		return nil, nil, err
	}
	return adapter, stream, nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()

	a.writer.Start(ctx)
	defer a.writer.Close()

	var metricsSrv *http.Server
	if a.prom != nil {
		mux := http.NewServeMux()
		mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
		metricsSrv = &http.Server{Addr: a.cfg.Metrics.Address, Handler: mux}
		go func() {
			a.log.Info("metrics server listening", zap.String("address", a.cfg.Metrics.Address))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	for _, s := range a.streams {
		s := s
		go func() {
			if err := s.client.Run(ctx, a.handleOrderUpdate(s.account)); err != nil && ctx.Err() == nil {
				a.log.Warn("order update stream stopped", zap.String("account", s.account), zap.Error(err))
			}
		}()
	}

	a.log.Info("starting pair workers", zap.Int("pairs", len(a.workers)))
	a.sched.Start(ctx, a.workers)
	a.sched.Wait()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return ctx.Err()
}

func (a *App) handleOrderUpdate(account string) func(json.RawMessage) {
	return func(raw json.RawMessage) {
		update, ok := ws.ParseOrderUpdate(raw)
		if !ok {
			return
		}
		a.metrics.OrderUpdates.Inc()
		a.log.Info("order update",
			zap.String("account", account),
			zap.String("event", update.Event),
			zap.String("symbol", update.Symbol),
			zap.String("order_id", update.OrderID),
			zap.String("status", update.Status),
			zap.Float64("filled", update.FilledQuantity),
			zap.Float64("price", update.Price),
		)
	}
}
