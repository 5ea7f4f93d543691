package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	paperTradingURL = "https://paper-api.alpaca.markets"
	liveTradingURL  = "https://api.alpaca.markets"
	defaultDataURL  = "https://data.alpaca.markets"
)

var (
	// ErrLiveTradingDisabled is returned when ALPACA_PAPER=false. Live
	// trading is not supported by this bot.
	ErrLiveTradingDisabled = errors.New("live trading is disabled: set ALPACA_PAPER=true")
	ErrMissingCredentials  = errors.New("missing Alpaca credentials: set ALPACA_KEY/APCA_API_KEY_ID and ALPACA_SECRET/APCA_API_SECRET_KEY")
)

type Config struct {
	Alpaca       AlpacaConfig       `json:"alpaca"`
	Strategy     StrategyConfig     `json:"strategy"`
	Trading      TradingConfig      `json:"trading"`
	Logging      LoggingConfig      `json:"logging"`
	Server       ServerConfig       `json:"server"`
	Auth         AuthConfig         `json:"auth"`
	Vault        VaultConfig        `json:"vault"`
	Redis        RedisConfig        `json:"redis"`
	Database     DatabaseConfig     `json:"database"`
	Notification NotificationConfig `json:"notification"`
	Metrics      MetricsConfig      `json:"metrics"`
}

// AlpacaConfig holds broker and market data settings
type AlpacaConfig struct {
	APIKey         string `json:"api_key"`
	SecretKey      string `json:"secret_key"`
	Paper          bool   `json:"paper"`
	TradingURL     string `json:"trading_url"`
	DataURL        string `json:"data_url"`
	Feed           string `json:"feed"`       // iex or sip
	GapSource      string `json:"gap_source"` // bars or snapshot
	MockMode       bool   `json:"mock_mode"`  // Simulated data and fills, no credentials needed
	UseCalendarAPI bool   `json:"use_calendar_api"`
}

// StrategyConfig holds the gap fade parameters
type StrategyConfig struct {
	Symbol             string  `json:"symbol"`
	MaxTradesPerDay    int     `json:"max_trades_per_day"`
	RiskPct            float64 `json:"risk_pct"`
	GapThreshold       float64 `json:"gap_threshold"`
	BandLookback       int     `json:"band_lookback"`
	BandMult           float64 `json:"band_mult"`
	EntryWindowMinutes int     `json:"entry_window_minutes"`
	StopPct            float64 `json:"stop_pct"`
	UseVWAPExit        bool    `json:"use_vwap_exit"`
	MaxPositionPct     float64 `json:"max_position_pct"`
}

type TradingConfig struct {
	DryRun           bool          `json:"dry_run"`
	PollInterval     time.Duration `json:"poll_interval"`
	EODFlattenBuffer time.Duration `json:"eod_flatten_buffer"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"` // Comma separated, empty allows all
	ProductionMode  bool   `json:"production_mode"`
	RateLimit       int    `json:"rate_limit"`       // Requests per minute per route
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// Origins splits AllowedOrigins into a list
func (s ServerConfig) Origins() []string {
	var origins []string
	for _, o := range strings.Split(s.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" && o != "*" {
			origins = append(origins, o)
		}
	}
	return origins
}

// AuthConfig holds API authentication configuration
type AuthConfig struct {
	Enabled       bool          `json:"enabled"`
	JWTSecret     string        `json:"jwt_secret"`
	TokenDuration time.Duration `json:"token_duration"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV v2 secrets engine mount path
	SecretPath string `json:"secret_path"` // Path of the Alpaca secret
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// RedisConfig holds Redis configuration for the gap cache
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// DatabaseConfig holds PostgreSQL configuration for the audit journal
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
	SSLMode  string `json:"ssl_mode"`
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

// Default returns the configuration used when neither a file nor the
// environment says otherwise
func Default() *Config {
	return &Config{
		Alpaca: AlpacaConfig{
			Paper:          true,
			DataURL:        defaultDataURL,
			Feed:           "iex",
			GapSource:      "bars",
			UseCalendarAPI: true,
		},
		Strategy: StrategyConfig{
			Symbol:             "SPY",
			MaxTradesPerDay:    5,
			RiskPct:            0.01,
			GapThreshold:       0.005,
			BandLookback:       20,
			BandMult:           2.0,
			EntryWindowMinutes: 30,
			StopPct:            0.01,
			UseVWAPExit:        true,
			MaxPositionPct:     0.10,
		},
		Trading: TradingConfig{
			PollInterval:     60 * time.Second,
			EODFlattenBuffer: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8080,
			Host:            "0.0.0.0",
			RateLimit:       120,
			ShutdownTimeout: 30,
		},
		Auth: AuthConfig{
			TokenDuration: 30 * 24 * time.Hour,
		},
		Vault: VaultConfig{
			Address:    "http://localhost:8200",
			MountPath:  "secret",
			SecretPath: "gap-reversion-bot/alpaca",
		},
		Redis: RedisConfig{
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "gapbot",
			Name:    "gapbot",
			SSLMode: "disable",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load reads .env, then config.json (or CONFIG_FILE), then the
// environment. Later sources win.
func Load() (*Config, error) {
	// A missing .env is fine
	_ = godotenv.Load()

	cfg := Default()
	filename := getEnvOrDefault("CONFIG_FILE", "config.json")
	if err := loadFromFile(filename, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Alpaca config. Both the bot's own and the SDK's variable names work.
	cfg.Alpaca.APIKey = getEnvOrDefault("ALPACA_KEY", getEnvOrDefault("APCA_API_KEY_ID", cfg.Alpaca.APIKey))
	cfg.Alpaca.SecretKey = getEnvOrDefault("ALPACA_SECRET", getEnvOrDefault("APCA_API_SECRET_KEY", cfg.Alpaca.SecretKey))
	cfg.Alpaca.Paper = getEnvBoolOrDefault("ALPACA_PAPER", cfg.Alpaca.Paper)
	cfg.Alpaca.TradingURL = getEnvOrDefault("ALPACA_TRADING_URL", cfg.Alpaca.TradingURL)
	if cfg.Alpaca.TradingURL == "" {
		cfg.Alpaca.TradingURL = liveTradingURL
		if cfg.Alpaca.Paper {
			cfg.Alpaca.TradingURL = paperTradingURL
		}
	}
	cfg.Alpaca.DataURL = getEnvOrDefault("ALPACA_DATA_URL", cfg.Alpaca.DataURL)
	cfg.Alpaca.Feed = getEnvOrDefault("ALPACA_DATA_FEED", cfg.Alpaca.Feed)
	cfg.Alpaca.GapSource = getEnvOrDefault("ALPACA_GAP_SOURCE", cfg.Alpaca.GapSource)
	cfg.Alpaca.MockMode = getEnvBoolOrDefault("MOCK_MODE", cfg.Alpaca.MockMode)
	cfg.Alpaca.UseCalendarAPI = getEnvBoolOrDefault("ALPACA_USE_CALENDAR", cfg.Alpaca.UseCalendarAPI)

	// Strategy config
	cfg.Strategy.Symbol = strings.ToUpper(getEnvOrDefault("SYMBOL", cfg.Strategy.Symbol))
	cfg.Strategy.MaxTradesPerDay = getEnvIntOrDefault("MAX_TRADES_PER_DAY", cfg.Strategy.MaxTradesPerDay)
	cfg.Strategy.RiskPct = getEnvFloatOrDefault("RISK_PCT", cfg.Strategy.RiskPct)
	cfg.Strategy.GapThreshold = getEnvFloatOrDefault("GAP_THRESHOLD", cfg.Strategy.GapThreshold)
	cfg.Strategy.BandLookback = getEnvIntOrDefault("BAND_LOOKBACK", cfg.Strategy.BandLookback)
	cfg.Strategy.BandMult = getEnvFloatOrDefault("BAND_MULT", cfg.Strategy.BandMult)
	cfg.Strategy.EntryWindowMinutes = getEnvIntOrDefault("ENTRY_WINDOW_MINUTES", cfg.Strategy.EntryWindowMinutes)
	cfg.Strategy.StopPct = getEnvFloatOrDefault("STOP_PCT", cfg.Strategy.StopPct)
	cfg.Strategy.UseVWAPExit = getEnvBoolOrDefault("USE_VWAP_EXIT", cfg.Strategy.UseVWAPExit)
	cfg.Strategy.MaxPositionPct = getEnvFloatOrDefault("MAX_POSITION_PCT", cfg.Strategy.MaxPositionPct)

	// Trading config
	cfg.Trading.DryRun = getEnvBoolOrDefault("DRY_RUN", cfg.Trading.DryRun)
	cfg.Trading.PollInterval = getEnvDurationOrDefault("POLL_INTERVAL", cfg.Trading.PollInterval)
	cfg.Trading.EODFlattenBuffer = getEnvDurationOrDefault("EOD_FLATTEN_BUFFER", cfg.Trading.EODFlattenBuffer)

	// Logging config
	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Output = getEnvOrDefault("LOG_OUTPUT", cfg.Logging.Output)
	cfg.Logging.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.Logging.JSONFormat)
	cfg.Logging.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.Logging.IncludeFile)

	// Server config
	cfg.Server.Enabled = getEnvBoolOrDefault("SERVER_ENABLED", cfg.Server.Enabled)
	cfg.Server.Port = getEnvIntOrDefault("WEB_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnvOrDefault("WEB_HOST", cfg.Server.Host)
	cfg.Server.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.Server.AllowedOrigins)
	cfg.Server.ProductionMode = getEnvBoolOrDefault("SERVER_PRODUCTION", cfg.Server.ProductionMode)
	cfg.Server.RateLimit = getEnvIntOrDefault("SERVER_RATE_LIMIT", cfg.Server.RateLimit)
	cfg.Server.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	// Auth config
	cfg.Auth.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.Auth.Enabled)
	cfg.Auth.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.TokenDuration = getEnvDurationOrDefault("AUTH_TOKEN_DURATION", cfg.Auth.TokenDuration)

	// Vault config
	cfg.Vault.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.Vault.Enabled)
	cfg.Vault.Address = getEnvOrDefault("VAULT_ADDR", cfg.Vault.Address)
	cfg.Vault.Token = getEnvOrDefault("VAULT_TOKEN", cfg.Vault.Token)
	cfg.Vault.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.Vault.MountPath)
	cfg.Vault.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.Vault.SecretPath)
	cfg.Vault.TLSEnabled = getEnvBoolOrDefault("VAULT_TLS_ENABLED", cfg.Vault.TLSEnabled)
	cfg.Vault.CACert = getEnvOrDefault("VAULT_CACERT", cfg.Vault.CACert)

	// Redis config
	cfg.Redis.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.Redis.Address)
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvIntOrDefault("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", cfg.Redis.PoolSize)

	// Database config
	cfg.Database.Enabled = getEnvBoolOrDefault("DATABASE_ENABLED", cfg.Database.Enabled)
	cfg.Database.Host = getEnvOrDefault("DATABASE_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvIntOrDefault("DATABASE_PORT", cfg.Database.Port)
	cfg.Database.User = getEnvOrDefault("DATABASE_USER", cfg.Database.User)
	cfg.Database.Password = getEnvOrDefault("DATABASE_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnvOrDefault("DATABASE_NAME", cfg.Database.Name)
	cfg.Database.SSLMode = getEnvOrDefault("DATABASE_SSL_MODE", cfg.Database.SSLMode)

	// Notification config
	cfg.Notification.Enabled = getEnvBoolOrDefault("NOTIFICATIONS_ENABLED", cfg.Notification.Enabled)
	cfg.Notification.Telegram.Enabled = getEnvBoolOrDefault("TELEGRAM_ENABLED", cfg.Notification.Telegram.Enabled)
	cfg.Notification.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.Notification.Telegram.BotToken)
	cfg.Notification.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.Notification.Telegram.ChatID)
	cfg.Notification.Discord.Enabled = getEnvBoolOrDefault("DISCORD_ENABLED", cfg.Notification.Discord.Enabled)
	cfg.Notification.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.Notification.Discord.WebhookURL)

	// Metrics config
	cfg.Metrics.Enabled = getEnvBoolOrDefault("METRICS_ENABLED", cfg.Metrics.Enabled)
}

// Validate rejects configurations the bot must not start with
func (c *Config) Validate() error {
	if !c.Alpaca.Paper {
		return ErrLiveTradingDisabled
	}
	if !c.Alpaca.MockMode && (c.Alpaca.APIKey == "" || c.Alpaca.SecretKey == "") {
		return ErrMissingCredentials
	}
	if c.Alpaca.GapSource != "bars" && c.Alpaca.GapSource != "snapshot" {
		return fmt.Errorf("ALPACA_GAP_SOURCE must be bars or snapshot, got %q", c.Alpaca.GapSource)
	}

	s := c.Strategy
	switch {
	case s.Symbol == "":
		return fmt.Errorf("SYMBOL must not be empty")
	case s.BandLookback <= 0:
		return fmt.Errorf("BAND_LOOKBACK must be positive, got %d", s.BandLookback)
	case s.MaxTradesPerDay <= 0:
		return fmt.Errorf("MAX_TRADES_PER_DAY must be positive, got %d", s.MaxTradesPerDay)
	case s.RiskPct <= 0 || s.RiskPct >= 1:
		return fmt.Errorf("RISK_PCT must be in (0, 1), got %v", s.RiskPct)
	case s.StopPct <= 0 || s.StopPct >= 1:
		return fmt.Errorf("STOP_PCT must be in (0, 1), got %v", s.StopPct)
	case s.GapThreshold < 0:
		return fmt.Errorf("GAP_THRESHOLD must not be negative, got %v", s.GapThreshold)
	case s.BandMult <= 0:
		return fmt.Errorf("BAND_MULT must be positive, got %v", s.BandMult)
	case s.EntryWindowMinutes <= 0:
		return fmt.Errorf("ENTRY_WINDOW_MINUTES must be positive, got %d", s.EntryWindowMinutes)
	case s.MaxPositionPct <= 0 || s.MaxPositionPct > 0.10:
		return fmt.Errorf("MAX_POSITION_PCT must be in (0, 0.10], got %v", s.MaxPositionPct)
	}

	if c.Trading.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %v", c.Trading.PollInterval)
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_ENABLED requires AUTH_JWT_SECRET")
	}
	return nil
}

func loadFromFile(filename string, cfg *Config) error {
	file, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	if err := json.Unmarshal(file, cfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault accepts Go durations ("90s") or bare seconds ("60")
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Default()
	config.Alpaca.APIKey = "your_api_key_here"
	config.Alpaca.SecretKey = "your_secret_key_here"
	config.Alpaca.TradingURL = paperTradingURL
	config.Trading.DryRun = true

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
