package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/Alias1177/Backtester/internal/database"
	"github.com/Alias1177/Backtester/models"
)

// Config holds all application configuration
type Config struct {
	Mode     string                `yaml:"mode"` // binary or weighted
	Backtest models.BacktestConfig `yaml:"backtest"`
	Logging  LoggingConfig         `yaml:"logging"`
	Database DatabaseConfig        `yaml:"database"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DatabaseConfig describes the optional PostgreSQL run store
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// Params converts the section into driver connection parameters
func (d DatabaseConfig) Params() database.ConnectionParams {
	return database.ConnectionParams{
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
		DBName:   d.Name,
		SSLMode:  d.SSLMode,
	}
}

// Default returns the configuration used when no file or variable is set
func Default() Config {
	return Config{
		Mode:     models.SignalBinary.String(),
		Backtest: models.DefaultBacktestConfig(),
		Logging:  LoggingConfig{Level: "info"},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			Name:    "backtest",
			SSLMode: "disable",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// the environment (a .env file is read first when present), then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, relying on actual environment variables")
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides fields from environment variables; unset or
// unparsable variables keep the current value.
func (c *Config) applyEnv() {
	bt := &c.Backtest
	bt.InitialCapital = getEnvFloatWithDefault("BT_INITIAL_CAPITAL", bt.InitialCapital)
	bt.CommissionRate = getEnvFloatWithDefault("BT_COMMISSION_RATE", bt.CommissionRate)
	bt.MinHoldingPeriods = getEnvIntWithDefault("BT_MIN_HOLDING_PERIODS", bt.MinHoldingPeriods)
	bt.RiskPerTrade = getEnvFloatWithDefault("BT_RISK_PER_TRADE", bt.RiskPerTrade)
	bt.MaxSinglePositionWeight = getEnvFloatWithDefault("BT_MAX_SINGLE_POSITION_WEIGHT", bt.MaxSinglePositionWeight)
	bt.EnableRiskSizing = getEnvBoolWithDefault("BT_ENABLE_RISK_SIZING", bt.EnableRiskSizing)
	bt.EnableKellySizing = getEnvBoolWithDefault("BT_ENABLE_KELLY_SIZING", bt.EnableKellySizing)
	bt.KellyHistoryLimit = getEnvIntWithDefault("BT_KELLY_HISTORY_LIMIT", bt.KellyHistoryLimit)
	bt.MaxDrawdownPct = getEnvFloatWithDefault("BT_MAX_DRAWDOWN_PCT", bt.MaxDrawdownPct)
	bt.RebalanceThreshold = getEnvFloatWithDefault("BT_REBALANCE_THRESHOLD", bt.RebalanceThreshold)
	bt.CashBuffer = getEnvFloatWithDefault("BT_CASH_BUFFER", bt.CashBuffer)
	bt.VolumeLookback = getEnvIntWithDefault("BT_VOLUME_LOOKBACK", bt.VolumeLookback)

	risk := &bt.Risk
	risk.StopLossATR = getEnvFloatWithDefault("BT_ATR_STOP_LOSS_MULTIPLIER", risk.StopLossATR)
	risk.TakeProfitATR = getEnvFloatWithDefault("BT_ATR_TAKE_PROFIT_MULTIPLIER", risk.TakeProfitATR)
	risk.TrailingStopATR = getEnvFloatWithDefault("BT_ATR_TRAILING_STOP_MULTIPLIER", risk.TrailingStopATR)
	risk.MaxStopLossPct = getEnvFloatWithDefault("BT_MAX_STOP_LOSS_PCT", risk.MaxStopLossPct)
	risk.TrailingStopActive = getEnvBoolWithDefault("BT_TRAILING_STOP_ACTIVE", risk.TrailingStopActive)
	risk.RegimeAdaptive = getEnvBoolWithDefault("BT_REGIME_ADAPTIVE", risk.RegimeAdaptive)
	risk.MaxHoldingPeriods = getEnvIntWithDefault("BT_MAX_HOLDING_PERIODS", risk.MaxHoldingPeriods)

	c.Mode = getEnvWithDefault("BT_MODE", c.Mode)
	c.Logging.Level = getEnvWithDefault("LOG_LEVEL", c.Logging.Level)
	c.Logging.JSON = getEnvBoolWithDefault("LOG_JSON", c.Logging.JSON)

	db := &c.Database
	db.Enabled = getEnvBoolWithDefault("DB_ENABLED", db.Enabled)
	db.Host = getEnvWithDefault("DB_HOST", db.Host)
	db.Port = getEnvWithDefault("DB_PORT", db.Port)
	db.User = getEnvWithDefault("DB_USER", db.User)
	db.Password = getEnvWithDefault("DB_PASSWORD", db.Password)
	db.Name = getEnvWithDefault("DB_NAME", db.Name)
	db.SSLMode = getEnvWithDefault("DB_SSLMODE", db.SSLMode)
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Backtest.Validate(); err != nil {
		return err
	}
	if _, ok := models.ParseSignalKind(c.Mode); !ok {
		return fmt.Errorf("%w: mode %q (allowed: binary|weighted)", models.ErrInvalidConfig, c.Mode)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil {
		return fmt.Errorf("%w: log level: %v", models.ErrInvalidConfig, err)
	}
	if c.Database.Enabled && (c.Database.Host == "" || c.Database.Name == "") {
		return fmt.Errorf("%w: database host and name are required when enabled", models.ErrInvalidConfig)
	}
	return nil
}

// SignalKind returns the parsed mode; call after Validate
func (c *Config) SignalKind() models.SignalKind {
	kind, _ := models.ParseSignalKind(c.Mode)
	return kind
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}
