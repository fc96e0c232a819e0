package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/stock-cutter/internal/cutting"
	"github.com/eugenenazirov/stock-cutter/internal/oracle"
	"github.com/eugenenazirov/stock-cutter/internal/storage"
)

const (
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
	defaultSolverTimeout  = 30 * time.Second
	defaultMaxUploadBytes = 10 << 20
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	Port                 string
	Stock                cutting.RawStock
	MaxIterations        int
	SolverTimeout        time.Duration
	SolverEngine         oracle.EngineKind
	PlanHistory          int
	MaxUploadBytes       int64
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	LogLevel             string
	RateLimitRPS         float64
	RateLimitBurst       int
}

// yamlConfig represents the YAML configuration file structure. Pointer
// fields distinguish "absent" from an explicit zero.
type yamlConfig struct {
	Port                 string        `yaml:"port"`
	Stock                yamlStock     `yaml:"stock"`
	Solver               yamlSolver    `yaml:"solver"`
	PlanHistory          *int          `yaml:"plan_history"`
	MaxUploadBytes       *int64        `yaml:"max_upload_bytes"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	LogLevel             string        `yaml:"log_level"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
}

// yamlStock represents the raw stock section in YAML.
type yamlStock struct {
	RawLength      *int `yaml:"raw_length"`
	WasteAllowance *int `yaml:"waste_allowance"`
	AvailableUnits *int `yaml:"available_units"`
}

// yamlSolver represents the solver section in YAML.
type yamlSolver struct {
	MaxIterations *int   `yaml:"max_iterations"`
	Timeout       string `yaml:"timeout"`
	Engine        string `yaml:"engine"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

// CLIOverrides holds command-line flag overrides. Nil fields were not set.
type CLIOverrides struct {
	ConfigFile     string
	Port           *string
	RawLength      *int
	WasteAllowance *int
	MaxIterations  *int
	SolverTimeout  *time.Duration
	SolverEngine   *string
	LogLevel       *string
	RateLimitRPS   *float64
	RateLimitBurst *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	if err := applyEnvConfig(&cfg); err != nil {
		return Config{}, err
	}

	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		Stock:                storage.DefaultStock(),
		MaxIterations:        cutting.DefaultMaxIterations,
		SolverTimeout:        defaultSolverTimeout,
		SolverEngine:         oracle.BranchAndBoundEngine,
		PlanHistory:          storage.DefaultPlanHistory,
		MaxUploadBytes:       defaultMaxUploadBytes,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         2 * time.Minute,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		LogLevel:             defaultLogLevel,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
	}
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	if yamlCfg.Port != "" {
		cfg.Port = yamlCfg.Port
	}

	setInt(&cfg.Stock.Length, yamlCfg.Stock.RawLength)
	setInt(&cfg.Stock.WasteAllowance, yamlCfg.Stock.WasteAllowance)
	setInt(&cfg.Stock.Available, yamlCfg.Stock.AvailableUnits)
	setInt(&cfg.MaxIterations, yamlCfg.Solver.MaxIterations)
	setInt(&cfg.PlanHistory, yamlCfg.PlanHistory)

	if yamlCfg.MaxUploadBytes != nil {
		cfg.MaxUploadBytes = *yamlCfg.MaxUploadBytes
	}

	durations := []struct {
		name  string
		raw   string
		field *time.Duration
	}{
		{"solver.timeout", yamlCfg.Solver.Timeout, &cfg.SolverTimeout},
		{"shutdown_grace_period", yamlCfg.ShutdownGracePeriod, &cfg.ShutdownGracePeriod},
		{"read_header_timeout", yamlCfg.ReadHeaderTimeout, &cfg.ReadHeaderTimeout},
		{"write_timeout", yamlCfg.WriteTimeout, &cfg.WriteTimeout},
		{"idle_timeout", yamlCfg.IdleTimeout, &cfg.IdleTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.field = parsed
	}

	if yamlCfg.Solver.Engine != "" {
		cfg.SolverEngine = oracle.EngineKind(yamlCfg.Solver.Engine)
	}

	if yamlCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}

	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}

	if yamlCfg.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}
	setInt(&cfg.RateLimitBurst, yamlCfg.RateLimit.Burst)

	return nil
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) error {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Port = port
	}

	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}

	ints := []struct {
		name  string
		field *int
	}{
		{"RAW_LENGTH", &cfg.Stock.Length},
		{"WASTE_ALLOWANCE", &cfg.Stock.WasteAllowance},
		{"AVAILABLE_UNITS", &cfg.Stock.Available},
		{"MAX_ITERATIONS", &cfg.MaxIterations},
		{"PLAN_HISTORY", &cfg.PlanHistory},
		{"RATE_LIMIT_BURST", &cfg.RateLimitBurst},
	}
	for _, env := range ints {
		raw := strings.TrimSpace(os.Getenv(env.name))
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", env.name, raw)
		}
		*env.field = value
	}

	if raw := strings.TrimSpace(os.Getenv("SOLVER_TIMEOUT")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("SOLVER_TIMEOUT: %w", err)
		}
		cfg.SolverTimeout = d
	}

	if engine := strings.TrimSpace(os.Getenv("SOLVER_ENGINE")); engine != "" {
		cfg.SolverEngine = oracle.EngineKind(engine)
	}

	if rps := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); rps != "" {
		value, err := strconv.ParseFloat(rps, 64)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_RPS: invalid number %q", rps)
		}
		cfg.RateLimitRPS = value
	}

	return nil
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	setInt(&cfg.Stock.Length, overrides.RawLength)
	setInt(&cfg.Stock.WasteAllowance, overrides.WasteAllowance)
	setInt(&cfg.MaxIterations, overrides.MaxIterations)

	if overrides.SolverTimeout != nil {
		cfg.SolverTimeout = *overrides.SolverTimeout
	}

	if overrides.SolverEngine != nil && *overrides.SolverEngine != "" {
		cfg.SolverEngine = oracle.EngineKind(*overrides.SolverEngine)
	}

	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		cfg.LogLevel = *overrides.LogLevel
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if err := storage.ValidateStock(cfg.Stock); err != nil {
		return fmt.Errorf("stock %+v: %w", cfg.Stock, err)
	}
	if cfg.MaxIterations <= 0 {
		return fmt.Errorf("MAX_ITERATIONS must be > 0")
	}
	if cfg.SolverTimeout < 0 {
		return fmt.Errorf("SOLVER_TIMEOUT must be >= 0")
	}
	if _, err := oracle.ParseEngineKind(string(cfg.SolverEngine)); err != nil {
		return fmt.Errorf("SOLVER_ENGINE: %w", err)
	}
	if cfg.PlanHistory <= 0 {
		return fmt.Errorf("PLAN_HISTORY must be > 0")
	}
	if cfg.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload size must be > 0")
	}
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	return nil
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
