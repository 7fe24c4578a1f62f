package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`

	HTTP       HTTPConfig
	Pagination PaginationConfig
	CacheTTL   time.Duration

	Polymarket PolymarketConfig
	Kalshi     KalshiConfig
	Redis      RedisConfig
}

// HTTPConfig holds REST transport settings shared by both adapters.
type HTTPConfig struct {
	TimeoutSec  int `mapstructure:"timeout_sec"`
	MaxRetries  int `mapstructure:"max_retries"`
	BackoffMsec int `mapstructure:"backoff_msec"`
}

// Timeout returns the per-request timeout.
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSec) * time.Second
}

// Backoff returns the initial retry backoff.
func (h HTTPConfig) Backoff() time.Duration {
	return time.Duration(h.BackoffMsec) * time.Millisecond
}

// PaginationConfig bounds catalog fetches.
type PaginationConfig struct {
	PageSize int `mapstructure:"page_size"`
	MaxPages int `mapstructure:"max_pages"`
}

// PolymarketConfig holds Polymarket endpoint settings.
type PolymarketConfig struct {
	GammaURL string `mapstructure:"gamma_url"`
	CLOBURL  string `mapstructure:"clob_url"`
	WSURL    string `mapstructure:"ws_url"`
}

// KalshiConfig holds Kalshi endpoint and credential settings. The private
// key is referenced by path and read at startup, so the key material never
// passes through the environment.
type KalshiConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	WSURL          string `mapstructure:"ws_url"`
	APIKey         string `mapstructure:"api_key"`
	PrivateKeyPath string `mapstructure:"private_key_path"`
}

// PrivateKeyPEM reads the configured key file. Returns nil when no path is
// set.
func (k KalshiConfig) PrivateKeyPEM() ([]byte, error) {
	if k.PrivateKeyPath == "" {
		return nil, nil
	}
	return os.ReadFile(k.PrivateKeyPath)
}

// RedisConfig holds settings for the optional top-of-book publisher.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Load reads configuration from environment variables prefixed with PMXT_.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PMXT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("cache_ttl_sec", 60)

	// HTTP defaults
	v.SetDefault("http.timeout_sec", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_msec", 1000)

	// Pagination defaults
	v.SetDefault("pagination.page_size", 100)
	v.SetDefault("pagination.max_pages", 20)

	// Polymarket defaults
	v.SetDefault("polymarket.gamma_url", "https://gamma-api.polymarket.com")
	v.SetDefault("polymarket.clob_url", "https://clob.polymarket.com")
	v.SetDefault("polymarket.ws_url", "wss://ws-subscriptions-clob.polymarket.com/ws/market")

	// Kalshi defaults
	v.SetDefault("kalshi.base_url", "https://api.elections.kalshi.com/trade-api/v2")
	v.SetDefault("kalshi.ws_url", "wss://api.elections.kalshi.com/trade-api/ws/v2")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	cfg := &Config{}

	cfg.Env = v.GetString("env")
	cfg.LogLevel = v.GetString("log_level")
	cfg.CacheTTL = time.Duration(v.GetInt("cache_ttl_sec")) * time.Second

	cfg.HTTP = HTTPConfig{
		TimeoutSec:  v.GetInt("http.timeout_sec"),
		MaxRetries:  v.GetInt("http.max_retries"),
		BackoffMsec: v.GetInt("http.backoff_msec"),
	}

	cfg.Pagination = PaginationConfig{
		PageSize: v.GetInt("pagination.page_size"),
		MaxPages: v.GetInt("pagination.max_pages"),
	}

	cfg.Polymarket = PolymarketConfig{
		GammaURL: v.GetString("polymarket.gamma_url"),
		CLOBURL:  v.GetString("polymarket.clob_url"),
		WSURL:    v.GetString("polymarket.ws_url"),
	}

	cfg.Kalshi = KalshiConfig{
		BaseURL:        v.GetString("kalshi.base_url"),
		WSURL:          v.GetString("kalshi.ws_url"),
		APIKey:         v.GetString("kalshi.api_key"),
		PrivateKeyPath: v.GetString("kalshi.private_key_path"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("redis.enabled"),
		Addr:     v.GetString("redis.addr"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
	}

	return cfg, nil
}
