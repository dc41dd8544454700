// Package config loads the dashboard configuration from an optional YAML
// file, an optional .env file and environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"marketdash/internal/analysis"
	"marketdash/internal/indicator"
	"marketdash/internal/model"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all application configuration.
type Config struct {
	Symbols      []string `yaml:"symbols"`
	Timeframes   []string `yaml:"timeframes"`
	HistoryLimit int      `yaml:"history_limit"`

	Schedule struct {
		RefreshCron   string `yaml:"refresh_cron"`
		SentimentCron string `yaml:"sentiment_cron"`
	} `yaml:"schedule"`

	Binance struct {
		RESTURL string `yaml:"rest_url"`
		WSURL   string `yaml:"ws_url"`
	} `yaml:"binance"`

	FearGreedURL string `yaml:"fear_greed_url"`

	// Infrastructure. Empty Redis address or SQLite path disables the store.
	Redis struct {
		Addr      string        `yaml:"addr"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		LatestTTL time.Duration `yaml:"latest_ttl"`
	} `yaml:"redis"`
	SQLitePath string `yaml:"sqlite_path"`
	HTTPAddr   string `yaml:"http_addr"`
	LogLevel   string `yaml:"log_level"`

	Notify struct {
		TelegramToken  string `yaml:"telegram_token"`
		TelegramChatID int64  `yaml:"telegram_chat_id"`
		WebhookURL     string `yaml:"webhook_url"`
		MinSeverity    string `yaml:"min_severity"`
	} `yaml:"notify"`

	Indicators Indicators `yaml:"indicators"`
}

// Indicators are the indicator settings applied to every timeframe.
type Indicators struct {
	MAPeriods  []int   `yaml:"ma_periods"`
	CrossShort int     `yaml:"cross_short"`
	CrossLong  int     `yaml:"cross_long"`
	RSIPeriod  int     `yaml:"rsi_period"`
	BBPeriod   int     `yaml:"bb_period"`
	BBStdDev   float64 `yaml:"bb_std_dev"`
	StochRSI   struct {
		RSIPeriod   int `yaml:"rsi_period"`
		StochPeriod int `yaml:"stoch_period"`
		KSmooth     int `yaml:"k_smooth"`
		DSmooth     int `yaml:"d_smooth"`
	} `yaml:"stoch_rsi"`
	MACD struct {
		Fast   int `yaml:"fast"`
		Slow   int `yaml:"slow"`
		Signal int `yaml:"signal"`
	} `yaml:"macd"`
}

// Load reads path (skipped when empty or missing), then .env, then the
// environment, fills defaults and validates.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("[config] could not load .env", "err", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := getEnv("SYMBOLS", ""); v != "" {
		c.Symbols = splitList(v)
	}
	if v := getEnv("TIMEFRAMES", ""); v != "" {
		c.Timeframes = splitList(v)
	}
	c.Schedule.RefreshCron = getEnv("REFRESH_CRON", c.Schedule.RefreshCron)
	c.Schedule.SentimentCron = getEnv("SENTIMENT_CRON", c.Schedule.SentimentCron)
	c.Binance.RESTURL = getEnv("BINANCE_REST_URL", c.Binance.RESTURL)
	c.Binance.WSURL = getEnv("BINANCE_WS_URL", c.Binance.WSURL)
	c.FearGreedURL = getEnv("FEAR_GREED_URL", c.FearGreedURL)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Notify.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", c.Notify.TelegramToken)
	c.Notify.WebhookURL = getEnv("WEBHOOK_URL", c.Notify.WebhookURL)
	c.Notify.MinSeverity = getEnv("NOTIFY_MIN_SEVERITY", c.Notify.MinSeverity)

	var err error
	if c.HistoryLimit, err = getEnvInt("HISTORY_LIMIT", c.HistoryLimit); err != nil {
		return err
	}
	if c.Redis.DB, err = getEnvInt("REDIS_DB", c.Redis.DB); err != nil {
		return err
	}
	if v := getEnv("TELEGRAM_CHAT_ID", ""); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: TELEGRAM_CHAT_ID=%q", ErrInvalid, v)
		}
		c.Notify.TelegramChatID = id
	}
	return nil
}

func (c *Config) applyDefaults() {
	if len(c.Symbols) == 0 {
		c.Symbols = []string{"BTCUSDT"}
	}
	for i, s := range c.Symbols {
		c.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	if len(c.Timeframes) == 0 {
		for _, tf := range model.DefaultTimeframes {
			c.Timeframes = append(c.Timeframes, string(tf))
		}
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = 500
	}
	if c.Schedule.RefreshCron == "" {
		c.Schedule.RefreshCron = "*/5 * * * *"
	}
	if c.Schedule.SentimentCron == "" {
		c.Schedule.SentimentCron = "*/30 * * * *"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Notify.MinSeverity == "" {
		c.Notify.MinSeverity = string(model.SeverityMedium)
	}

	d := analysis.DefaultParams()
	ind := &c.Indicators
	if len(ind.MAPeriods) == 0 {
		ind.MAPeriods = d.MAPeriods
	}
	setDefault(&ind.CrossShort, d.CrossShort)
	setDefault(&ind.CrossLong, d.CrossLong)
	setDefault(&ind.RSIPeriod, d.RSIPeriod)
	setDefault(&ind.BBPeriod, d.BBPeriod)
	if ind.BBStdDev == 0 {
		ind.BBStdDev = d.BBStdDev
	}
	setDefault(&ind.StochRSI.RSIPeriod, d.StochRSI.RSIPeriod)
	setDefault(&ind.StochRSI.StochPeriod, d.StochRSI.StochPeriod)
	setDefault(&ind.StochRSI.KSmooth, d.StochRSI.KSmooth)
	setDefault(&ind.StochRSI.DSmooth, d.StochRSI.DSmooth)
	setDefault(&ind.MACD.Fast, d.MACD.Fast)
	setDefault(&ind.MACD.Slow, d.MACD.Slow)
	setDefault(&ind.MACD.Signal, d.MACD.Signal)
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("%w: no symbols", ErrInvalid)
	}
	for _, s := range c.Symbols {
		if s == "" {
			return fmt.Errorf("%w: empty symbol", ErrInvalid)
		}
	}
	if c.HistoryLimit < 1 || c.HistoryLimit > 1000 {
		return fmt.Errorf("%w: history_limit=%d must be in [1, 1000]", ErrInvalid, c.HistoryLimit)
	}
	if _, err := cron.ParseStandard(c.Schedule.RefreshCron); err != nil {
		return fmt.Errorf("%w: refresh_cron %q: %v", ErrInvalid, c.Schedule.RefreshCron, err)
	}
	if _, err := cron.ParseStandard(c.Schedule.SentimentCron); err != nil {
		return fmt.Errorf("%w: sentiment_cron %q: %v", ErrInvalid, c.Schedule.SentimentCron, err)
	}
	switch model.Severity(c.Notify.MinSeverity) {
	case model.SeverityLow, model.SeverityMedium, model.SeverityHigh:
	default:
		return fmt.Errorf("%w: min_severity %q", ErrInvalid, c.Notify.MinSeverity)
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == 0) {
		return fmt.Errorf("%w: telegram needs both bot token and chat id", ErrInvalid)
	}
	if _, err := c.AnalysisConfigs(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// AnalysisConfigs builds one analysis config per configured timeframe.
func (c *Config) AnalysisConfigs() ([]analysis.TimeframeConfig, error) {
	ind := c.Indicators
	params := analysis.Params{
		MAPeriods:  append([]int(nil), ind.MAPeriods...),
		CrossShort: ind.CrossShort,
		CrossLong:  ind.CrossLong,
		RSIPeriod:  ind.RSIPeriod,
		StochRSI: indicator.StochRSIParams{
			RSIPeriod:   ind.StochRSI.RSIPeriod,
			StochPeriod: ind.StochRSI.StochPeriod,
			KSmooth:     ind.StochRSI.KSmooth,
			DSmooth:     ind.StochRSI.DSmooth,
		},
		MACD: indicator.MACDParams{
			Fast:   ind.MACD.Fast,
			Slow:   ind.MACD.Slow,
			Signal: ind.MACD.Signal,
		},
		BBPeriod: ind.BBPeriod,
		BBStdDev: ind.BBStdDev,
	}

	configs := make([]analysis.TimeframeConfig, 0, len(c.Timeframes))
	for _, s := range c.Timeframes {
		tf, err := model.ParseTimeframe(s)
		if err != nil {
			return nil, err
		}
		configs = append(configs, analysis.TimeframeConfig{Timeframe: tf, Params: params})
	}
	if err := analysis.ValidateConfigs(configs); err != nil {
		return nil, err
	}
	return configs, nil
}

func setDefault(v *int, d int) {
	if *v == 0 {
		*v = d
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, v)
	}
	return n, nil
}
