package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cloudauditor/internal/analysis/remote"
	"cloudauditor/internal/collectors"
)

type Config struct {
	Env         string `yaml:"env"`
	ListenAddr  string `yaml:"listenAddr"`
	DatabaseURL string `yaml:"databaseUrl"`
	LogLevel    string `yaml:"logLevel"`

	ScanWorkers int           `yaml:"scanWorkers"`
	ScanTimeout time.Duration `yaml:"scanTimeout"`

	DoHEndpoint      string  `yaml:"dohEndpoint"`
	HostIntelBaseURL string  `yaml:"hostIntelBaseUrl"`
	HostIntelRPS     float64 `yaml:"hostIntelRps"`
	UserAgent        string  `yaml:"userAgent"`

	AnalyzerURL     string        `yaml:"analyzerUrl"`
	AnalyzerToken   string        `yaml:"analyzerToken"`
	AnalyzerTimeout time.Duration `yaml:"analyzerTimeout"`

	OTLPEndpoint string `yaml:"otlpEndpoint"`
}

func Defaults() Config {
	return Config{
		Env:              "development",
		ListenAddr:       ":8080",
		LogLevel:         "info",
		ScanWorkers:      4,
		DoHEndpoint:      collectors.DefaultDoHEndpoint,
		HostIntelBaseURL: collectors.DefaultHostIntelBaseURL,
		HostIntelRPS:     1,
		UserAgent:        collectors.DefaultUserAgent,
		AnalyzerTimeout:  remote.DefaultTimeout,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE, then the environment. A .env file in the working directory
// is loaded first and never overrides variables that are already set.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	var errs []error
	cfg.Env = getenv("APP_ENV", cfg.Env)
	cfg.ListenAddr = getenv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.ScanWorkers = getenvInt("SCAN_WORKERS", cfg.ScanWorkers, &errs)
	cfg.ScanTimeout = getenvDuration("SCAN_TIMEOUT", cfg.ScanTimeout, &errs)
	cfg.DoHEndpoint = getenv("DOH_ENDPOINT", cfg.DoHEndpoint)
	cfg.HostIntelBaseURL = getenv("HOSTINTEL_BASE_URL", cfg.HostIntelBaseURL)
	cfg.HostIntelRPS = getenvFloat("HOSTINTEL_RPS", cfg.HostIntelRPS, &errs)
	cfg.UserAgent = getenv("USER_AGENT", cfg.UserAgent)
	cfg.AnalyzerURL = getenv("ANALYZER_URL", cfg.AnalyzerURL)
	cfg.AnalyzerToken = getenv("ANALYZER_TOKEN", cfg.AnalyzerToken)
	cfg.AnalyzerTimeout = getenvDuration("ANALYZER_TIMEOUT", cfg.AnalyzerTimeout, &errs)
	cfg.OTLPEndpoint = getenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)

	if cfg.ScanWorkers < 1 {
		errs = append(errs, fmt.Errorf("SCAN_WORKERS must be at least 1, got %d", cfg.ScanWorkers))
	}
	if cfg.ScanTimeout < 0 {
		errs = append(errs, fmt.Errorf("SCAN_TIMEOUT must not be negative"))
	}
	if _, err := cfg.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return cfg, errors.Join(errs...)
}

func (c Config) Production() bool { return c.Env == "production" }

func (c Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return lvl, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func getenvFloat(key string, def float64, errs *[]error) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

// getenvDuration accepts Go durations ("90s") or a bare number of seconds.
func getenvDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
