// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HEDGEBOT_TRADING_MAX_POSITION_SIZE
const EnvPrefix = "HEDGEBOT"

// Config holds all configuration for the bot
type Config struct {
	Polymarket PolymarketConfig `mapstructure:"polymarket"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Debug      bool             `mapstructure:"debug"`

	// Set from the command line, not from the config file
	Simulation bool `mapstructure:"-"`
}

// PolymarketConfig holds API endpoints and credentials
type PolymarketConfig struct {
	GammaAPIURL       string  `mapstructure:"gamma_api_url"`
	CLOBAPIURL        string  `mapstructure:"clob_api_url"`
	WSURL             string  `mapstructure:"ws_url"`
	UseWebsocket      bool    `mapstructure:"use_websocket"`
	APIKey            string  `mapstructure:"api_key"`
	APISecret         string  `mapstructure:"api_secret"`
	Passphrase        string  `mapstructure:"passphrase"`
	WalletAddress     string  `mapstructure:"wallet_address"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	RequestTimeoutMs  int     `mapstructure:"request_timeout_ms"`
}

// RequestTimeout returns the per-request HTTP timeout
func (c *PolymarketConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// TradingConfig holds detection and sizing settings
type TradingConfig struct {
	MinProfitThreshold float64 `mapstructure:"min_profit_threshold"`
	MaxPositionSize    float64 `mapstructure:"max_position_size"`
	SOLConditionID     string  `mapstructure:"sol_condition_id"`
	BTCConditionID     string  `mapstructure:"btc_condition_id"`
	CheckIntervalMs    int     `mapstructure:"check_interval_ms"`
}

// MinProfitDecimal returns the detection threshold as decimal.Decimal
func (c *TradingConfig) MinProfitDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinProfitThreshold)
}

// MaxPositionDecimal returns the per-trade cap as decimal.Decimal
func (c *TradingConfig) MaxPositionDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MaxPositionSize)
}

// CheckInterval returns the snapshot polling interval
func (c *TradingConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalMs) * time.Millisecond
}

// Pinned reports whether both condition ids are configured, which skips discovery
func (c *TradingConfig) Pinned() bool {
	return c.SOLConditionID != "" && c.BTCConditionID != ""
}

// NotifyConfig holds the optional Telegram notifier settings
type NotifyConfig struct {
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID int64  `mapstructure:"telegram_chat_id"`
}

// Enabled reports whether settlement notifications can be sent
func (c *NotifyConfig) Enabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// StorageConfig holds the optional trade journal location
type StorageConfig struct {
	DatabasePath string `mapstructure:"database_path"`
}

// MetricsConfig holds the Prometheus endpoint settings. Port 0 disables it.
type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

// Load reads path, creating it with defaults when it does not exist, then
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	setDefaults(v)

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := writeDefaults(path); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		log.Info().Str("path", path).Msg("📝 Created default config")
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// writeDefaults uses a separate viper so env-bound secrets never reach the file
func writeDefaults(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	d := viper.New()
	d.SetConfigType("json")
	setDefaults(d)
	return d.SafeWriteConfigAs(path)
}

func bindEnvVars(v *viper.Viper) {
	// Secrets, also accepted under their conventional names
	_ = v.BindEnv("polymarket.api_key", EnvPrefix+"_POLYMARKET_API_KEY", "CLOB_API_KEY")
	_ = v.BindEnv("polymarket.api_secret", EnvPrefix+"_POLYMARKET_API_SECRET", "CLOB_API_SECRET")
	_ = v.BindEnv("polymarket.passphrase", EnvPrefix+"_POLYMARKET_PASSPHRASE", "CLOB_PASSPHRASE")
	_ = v.BindEnv("polymarket.wallet_address", EnvPrefix+"_POLYMARKET_WALLET_ADDRESS", "WALLET_ADDRESS")

	_ = v.BindEnv("notify.telegram_token", EnvPrefix+"_NOTIFY_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("notify.telegram_chat_id", EnvPrefix+"_NOTIFY_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID")

	_ = v.BindEnv("storage.database_path", EnvPrefix+"_STORAGE_DATABASE_PATH", "DATABASE_PATH")

	_ = v.BindEnv("debug", EnvPrefix+"_DEBUG", "DEBUG")
}

func setDefaults(v *viper.Viper) {
	// Polymarket
	v.SetDefault("polymarket.gamma_api_url", "https://gamma-api.polymarket.com")
	v.SetDefault("polymarket.clob_api_url", "https://clob.polymarket.com")
	v.SetDefault("polymarket.ws_url", "wss://ws-subscriptions-clob.polymarket.com/ws/market")
	v.SetDefault("polymarket.use_websocket", false)
	v.SetDefault("polymarket.api_key", "")
	v.SetDefault("polymarket.requests_per_second", 20.0)
	v.SetDefault("polymarket.request_timeout_ms", 10000)

	// Trading
	v.SetDefault("trading.min_profit_threshold", 0.01)
	v.SetDefault("trading.max_position_size", 100.0)
	v.SetDefault("trading.sol_condition_id", "")
	v.SetDefault("trading.btc_condition_id", "")
	v.SetDefault("trading.check_interval_ms", 1000)

	// Optional surfaces, all off by default
	v.SetDefault("notify.telegram_token", "")
	v.SetDefault("notify.telegram_chat_id", 0)
	v.SetDefault("storage.database_path", "")
	v.SetDefault("metrics.port", 0)

	v.SetDefault("debug", false)
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Trading.MinProfitThreshold < 0 {
		return fmt.Errorf("trading.min_profit_threshold must be >= 0, got %v", c.Trading.MinProfitThreshold)
	}
	if c.Trading.MaxPositionSize <= 0 {
		return fmt.Errorf("trading.max_position_size must be positive, got %v", c.Trading.MaxPositionSize)
	}
	if c.Trading.CheckIntervalMs <= 0 {
		return fmt.Errorf("trading.check_interval_ms must be positive, got %d", c.Trading.CheckIntervalMs)
	}

	sol, btc := c.Trading.SOLConditionID, c.Trading.BTCConditionID
	if (sol == "") != (btc == "") {
		return errors.New("trading.sol_condition_id and trading.btc_condition_id must be set together")
	}
	if sol != "" && sol == btc {
		return fmt.Errorf("trading condition ids must differ, both are %s", sol)
	}

	if c.Polymarket.GammaAPIURL == "" || c.Polymarket.CLOBAPIURL == "" {
		return errors.New("polymarket api urls are required")
	}
	if c.Polymarket.RequestsPerSecond <= 0 {
		return fmt.Errorf("polymarket.requests_per_second must be positive, got %v", c.Polymarket.RequestsPerSecond)
	}
	if c.Polymarket.RequestTimeoutMs <= 0 {
		return fmt.Errorf("polymarket.request_timeout_ms must be positive, got %d", c.Polymarket.RequestTimeoutMs)
	}
	if c.Polymarket.UseWebsocket && c.Polymarket.WSURL == "" {
		return errors.New("polymarket.ws_url is required when use_websocket is set")
	}
	if addr := c.Polymarket.WalletAddress; addr != "" && !common.IsHexAddress(addr) {
		return fmt.Errorf("invalid wallet address: %s", addr)
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port out of range: %d", c.Metrics.Port)
	}

	return nil
}
