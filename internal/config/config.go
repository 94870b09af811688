package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ReferenceDateLayout is the layout of rule reference-window dates in configuration.
const ReferenceDateLayout = "2006-01-02"

type Config struct {
	Environment string             `mapstructure:"environment"`
	LogLevel    string             `mapstructure:"log_level"`
	Data        DataConfig         `mapstructure:"data"`
	Instruments []InstrumentConfig `mapstructure:"instruments"`
	Rules       RulesConfig        `mapstructure:"rules"`
	Combination CombinationConfig  `mapstructure:"combination"`
	Redis       RedisConfig        `mapstructure:"redis"`
	Database    DatabaseConfig     `mapstructure:"database"`
	Server      ServerConfig       `mapstructure:"server"`
	Telemetry   TelemetryConfig    `mapstructure:"telemetry"`
}

// DataConfig describes how price files are laid out on disk.
type DataConfig struct {
	Directory        string `mapstructure:"directory"`
	Delimiter        string `mapstructure:"delimiter"`
	DateLayout       string `mapstructure:"date_layout"`
	DecimalSeparator string `mapstructure:"decimal_separator"`
	Timezone         string `mapstructure:"timezone"`
}

type InstrumentConfig struct {
	Name string `mapstructure:"name"`
	File string `mapstructure:"file"`
}

// EWMACConfig configures one crossover rule. A zero Scalar means the scalar is
// estimated from the rule's forecast history.
type EWMACConfig struct {
	ShortHorizon int     `mapstructure:"short_horizon"`
	LongHorizon  int     `mapstructure:"long_horizon"`
	Weight       float64 `mapstructure:"weight"`
	Scalar       float64 `mapstructure:"scalar"`
}

type VolatilityDifferentialConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Lookback       int     `mapstructure:"lookback"`
	ReferenceStart string  `mapstructure:"reference_start"`
	ReferenceEnd   string  `mapstructure:"reference_end"`
	Weight         float64 `mapstructure:"weight"`
	Scalar         float64 `mapstructure:"scalar"`
}

type RulesConfig struct {
	EWMAC                  []EWMACConfig                `mapstructure:"ewmac"`
	VolatilityDifferential VolatilityDifferentialConfig `mapstructure:"volatility_differential"`
}

type CombinationConfig struct {
	Correlations [][]float64 `mapstructure:"correlations"`
	ForecastCap  float64     `mapstructure:"forecast_cap"`
	BaseScale    float64     `mapstructure:"base_scale"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTL      string `mapstructure:"ttl"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
}

type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Exporter    string `mapstructure:"exporter"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

func Load() (*Config, error) {
	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks settings that do not depend on price data.
func (c *Config) Validate() error {
	if len(c.Rules.EWMAC) == 0 && !c.Rules.VolatilityDifferential.Enabled {
		return errors.New("at least one forecast rule must be configured")
	}
	for i, rule := range c.Rules.EWMAC {
		if rule.Weight < 0 {
			return fmt.Errorf("rules.ewmac[%d]: weight must not be negative, got %v", i, rule.Weight)
		}
		if rule.Scalar < 0 {
			return fmt.Errorf("rules.ewmac[%d]: scalar must not be negative, got %v", i, rule.Scalar)
		}
	}

	vd := c.Rules.VolatilityDifferential
	if vd.Enabled {
		if vd.Weight < 0 {
			return fmt.Errorf("rules.volatility_differential: weight must not be negative, got %v", vd.Weight)
		}
		if vd.Scalar < 0 {
			return fmt.Errorf("rules.volatility_differential: scalar must not be negative, got %v", vd.Scalar)
		}
		if _, _, err := vd.ReferenceWindow(time.UTC); err != nil {
			return err
		}
	}

	if c.Combination.ForecastCap <= 0 {
		return fmt.Errorf("combination.forecast_cap must be positive, got %v", c.Combination.ForecastCap)
	}
	if c.Combination.BaseScale <= 0 {
		return fmt.Errorf("combination.base_scale must be positive, got %v", c.Combination.BaseScale)
	}

	if _, err := c.Data.Location(); err != nil {
		return err
	}

	if c.Redis.Enabled {
		if _, err := c.Redis.TTLDuration(); err != nil {
			return err
		}
	}

	switch c.Telemetry.Exporter {
	case "stdout", "otlp":
	default:
		return fmt.Errorf("telemetry.exporter must be stdout or otlp, got %q", c.Telemetry.Exporter)
	}

	return nil
}

// Weights returns the rule weights in evaluation order: crossover rules first,
// then the volatility differential rule when enabled.
func (r RulesConfig) Weights() []float64 {
	weights := make([]float64, 0, len(r.EWMAC)+1)
	for _, rule := range r.EWMAC {
		weights = append(weights, rule.Weight)
	}
	if r.VolatilityDifferential.Enabled {
		weights = append(weights, r.VolatilityDifferential.Weight)
	}
	return weights
}

// ReferenceWindow parses the reference window bounds in loc.
func (v VolatilityDifferentialConfig) ReferenceWindow(loc *time.Location) (start, end time.Time, err error) {
	start, err = time.ParseInLocation(ReferenceDateLayout, v.ReferenceStart, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid rules.volatility_differential.reference_start %q: %w", v.ReferenceStart, err)
	}
	end, err = time.ParseInLocation(ReferenceDateLayout, v.ReferenceEnd, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid rules.volatility_differential.reference_end %q: %w", v.ReferenceEnd, err)
	}
	return start, end, nil
}

// Location resolves the configured timezone.
func (d DataConfig) Location() (*time.Location, error) {
	if d.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid data.timezone %q: %w", d.Timezone, err)
	}
	return loc, nil
}

// TTLDuration parses the cache TTL.
func (r RedisConfig) TTLDuration() (time.Duration, error) {
	ttl, err := time.ParseDuration(r.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid redis.ttl %q: %w", r.TTL, err)
	}
	return ttl, nil
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Data
	viper.SetDefault("data.directory", "./data")
	viper.SetDefault("data.delimiter", ";")
	viper.SetDefault("data.date_layout", "02.01.2006")
	viper.SetDefault("data.decimal_separator", ",")
	viper.SetDefault("data.timezone", "UTC")

	// Rules
	viper.SetDefault("rules.ewmac", []map[string]interface{}{
		{"short_horizon": 16, "long_horizon": 64, "weight": 1.0, "scalar": 0.0},
	})
	viper.SetDefault("rules.volatility_differential.enabled", false)
	viper.SetDefault("rules.volatility_differential.lookback", 25)
	viper.SetDefault("rules.volatility_differential.reference_start", "")
	viper.SetDefault("rules.volatility_differential.reference_end", "")
	viper.SetDefault("rules.volatility_differential.weight", 0.0)
	viper.SetDefault("rules.volatility_differential.scalar", 0.0)

	// Combination
	viper.SetDefault("combination.correlations", [][]float64{{1}})
	viper.SetDefault("combination.forecast_cap", 20.0)
	viper.SetDefault("combination.base_scale", 10.0)

	// Redis
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttl", "24h")

	// Database
	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "celebrum_forecast")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_conns", 10)

	// Server
	viper.SetDefault("server.enabled", false)
	viper.SetDefault("server.port", 8080)

	// Telemetry
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.exporter", "stdout")
	viper.SetDefault("telemetry.endpoint", "localhost:4318")
	viper.SetDefault("telemetry.service_name", "celebrum-forecast")
}
