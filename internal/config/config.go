package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log         LoggingConfig   `yaml:"log"`
	REST        RESTConfig      `yaml:"rest"`
	WS          WSConfig        `yaml:"ws"`
	State       StateConfig     `yaml:"state"`
	Metrics     MetricsConfig   `yaml:"metrics"`
	Timescale   TimescaleConfig `yaml:"timescale"`
	Telegram    TelegramConfig  `yaml:"telegram"`
	Strategy    StrategyConfig  `yaml:"strategy"`
	MainAccount AccountConfig   `yaml:"main_account"`
	Pairs       []PairConfig    `yaml:"pairs"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type RESTConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Window  int64         `yaml:"window"`
}

type WSConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type StrategyConfig struct {
	Symbol             string        `yaml:"symbol"`
	Leverage           float64       `yaml:"leverage"`
	MakerOffset        MakerOffset   `yaml:"maker_offset"`
	TakeProfitOffset   LongShort     `yaml:"take_profit_offset"`
	FallbackTakeProfit LongShort     `yaml:"fallback_take_profit"`
	FillAcceptRatio    float64       `yaml:"fill_accept_ratio"`
	LimitOrderTimeout  time.Duration `yaml:"limit_order_timeout"`
	LimitOrderRetries  int           `yaml:"limit_order_retries"`
	LongOpenAttempts   int           `yaml:"long_open_attempts"`
	CheckInterval      time.Duration `yaml:"check_interval"`
	MonitorGrace       time.Duration `yaml:"monitor_grace"`
	MonitorCeiling     time.Duration `yaml:"monitor_ceiling"`
	GeneralDelay       DelayBounds   `yaml:"general_delay"`
	InitialDeposit     float64       `yaml:"initial_deposit"`
	SweepAttempts      int           `yaml:"sweep_attempts"`
	PairStartDelayMax  time.Duration `yaml:"pair_start_delay_max"`
	CycleWaitTime      time.Duration `yaml:"cycle_wait_time"`
}

type MakerOffset struct {
	Short float64 `yaml:"short"`
}

type LongShort struct {
	Long  float64 `yaml:"long"`
	Short float64 `yaml:"short"`
}

type DelayBounds struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

type AccountConfig struct {
	Name      string `yaml:"name"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Address   string `yaml:"address"`
}

type PairConfig struct {
	ShortAccount AccountConfig `yaml:"short_account"`
	LongAccount  AccountConfig `yaml:"long_account"`
}

func (p PairConfig) Label() string {
	return p.ShortAccount.Name + "/" + p.LongAccount.Name
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.REST.BaseURL == "" {
		cfg.REST.BaseURL = "https://api.backpack.exchange"
	}
	if cfg.REST.Timeout == 0 {
		cfg.REST.Timeout = 10 * time.Second
	}
	if cfg.REST.Window == 0 {
		cfg.REST.Window = 5000
	}
	if cfg.WS.URL == "" {
		cfg.WS.URL = "wss://ws.backpack.exchange"
	}
	if cfg.WS.ReconnectDelay == 0 {
		cfg.WS.ReconnectDelay = 3 * time.Second
	}
	if cfg.WS.PingInterval == 0 {
		cfg.WS.PingInterval = 30 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/bp-hedge-bot.db"
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Strategy.Leverage == 0 {
		cfg.Strategy.Leverage = 1
	}
	if cfg.Strategy.MakerOffset.Short == 0 {
		cfg.Strategy.MakerOffset.Short = 0.0005
	}
	if cfg.Strategy.FallbackTakeProfit.Short == 0 {
		cfg.Strategy.FallbackTakeProfit.Short = 0.98
	}
	if cfg.Strategy.FallbackTakeProfit.Long == 0 {
		cfg.Strategy.FallbackTakeProfit.Long = 1.02
	}
	if cfg.Strategy.FillAcceptRatio == 0 {
		cfg.Strategy.FillAcceptRatio = 0.9
	}
	if cfg.Strategy.LimitOrderTimeout == 0 {
		cfg.Strategy.LimitOrderTimeout = 30 * time.Second
	}
	if cfg.Strategy.LimitOrderRetries == 0 {
		cfg.Strategy.LimitOrderRetries = 10
	}
	if cfg.Strategy.LongOpenAttempts == 0 {
		cfg.Strategy.LongOpenAttempts = 3
	}
	if cfg.Strategy.CheckInterval == 0 {
		cfg.Strategy.CheckInterval = 10 * time.Second
	}
	if cfg.Strategy.MonitorGrace == 0 {
		cfg.Strategy.MonitorGrace = time.Hour
	}
	if cfg.Strategy.MonitorCeiling == 0 {
		cfg.Strategy.MonitorCeiling = 24 * time.Hour
	}
	if cfg.Strategy.SweepAttempts == 0 {
		cfg.Strategy.SweepAttempts = 8
	}
	if cfg.Strategy.CycleWaitTime == 0 {
		cfg.Strategy.CycleWaitTime = 5 * time.Minute
	}
}

func applyEnvOverrides(cfg *Config) {
	if token := strings.TrimSpace(os.Getenv("BP_TELEGRAM_TOKEN")); token != "" {
		cfg.Telegram.Token = token
	}
	if chatID := strings.TrimSpace(os.Getenv("BP_TELEGRAM_CHAT_ID")); chatID != "" {
		cfg.Telegram.ChatID = chatID
	}
	if key := strings.TrimSpace(os.Getenv("BP_MAIN_API_KEY")); key != "" {
		cfg.MainAccount.APIKey = key
	}
	if secret := strings.TrimSpace(os.Getenv("BP_MAIN_API_SECRET")); secret != "" {
		cfg.MainAccount.APISecret = secret
	}
}

func validate(cfg *Config) error {
	if cfg.Strategy.Symbol == "" {
		return errors.New("strategy.symbol is required")
	}
	if cfg.Strategy.Leverage <= 0 {
		return errors.New("strategy.leverage must be > 0")
	}
	if cfg.Strategy.FillAcceptRatio <= 0 || cfg.Strategy.FillAcceptRatio > 1 {
		return errors.New("strategy.fill_accept_ratio must be in (0, 1]")
	}
	if cfg.Strategy.FallbackTakeProfit.Short <= 0 || cfg.Strategy.FallbackTakeProfit.Long <= 0 {
		return errors.New("strategy.fallback_take_profit values must be > 0")
	}
	if cfg.Strategy.GeneralDelay.Min < 0 || cfg.Strategy.GeneralDelay.Max < cfg.Strategy.GeneralDelay.Min {
		return errors.New("strategy.general_delay bounds are invalid")
	}
	if cfg.Strategy.MonitorGrace > cfg.Strategy.MonitorCeiling {
		return errors.New("strategy.monitor_grace exceeds strategy.monitor_ceiling")
	}
	if cfg.MainAccount.Address == "" {
		return errors.New("main_account.address is required")
	}
	if len(cfg.Pairs) == 0 {
		return errors.New("at least one pair is required")
	}
	for i, pair := range cfg.Pairs {
		if err := validateAccount(pair.ShortAccount); err != nil {
			return fmt.Errorf("pairs[%d].short_account: %w", i, err)
		}
		if err := validateAccount(pair.LongAccount); err != nil {
			return fmt.Errorf("pairs[%d].long_account: %w", i, err)
		}
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	if cfg.Telegram.Enabled && (cfg.Telegram.Token == "" || cfg.Telegram.ChatID == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	return nil
}

func validateAccount(acc AccountConfig) error {
	if acc.Name == "" {
		return errors.New("name is required")
	}
	if acc.APIKey == "" || acc.APISecret == "" {
		return errors.New("api_key and api_secret are required")
	}
	if acc.Address == "" {
		return errors.New("address is required")
	}
	return nil
}
