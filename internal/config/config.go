// Package config loads service settings from defaults, an optional config
// file, ASCAS_* environment variables and bound command-line flags, in
// increasing order of precedence.
//
// Keys are dotted and snake_case ("tle.max_age"); the matching environment
// variable upper-cases the key and replaces dots ("ASCAS_TLE_MAX_AGE").
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/star/ascas/internal/auth"
	"github.com/star/ascas/internal/cache"
	"github.com/star/ascas/internal/logging"
	"github.com/star/ascas/internal/observability"
	"github.com/star/ascas/internal/propagation"
	"github.com/star/ascas/internal/resolver"
	"github.com/star/ascas/internal/tle"
)

// EnvPrefix prefixes every environment variable the service reads.
const EnvPrefix = "ASCAS"

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Addr               string
	TrustProxy         bool
	MaxConcurrentPerIP int
	MaxConcurrentTotal int
}

// TLEConfig holds element source settings.
type TLEConfig struct {
	EnableFetch     bool
	SourceURL       string
	ExtraSourceURLs []string
	ObjectURL       string
	SnapshotDir     string
	MaxFiles        int
	MaxAge          time.Duration
	RefreshInterval time.Duration
}

// Config is the complete service configuration.
type Config struct {
	HTTP        HTTPConfig
	Log         logging.Config
	Auth        auth.Config
	TLE         TLEConfig
	Cache       cache.Config
	Propagation propagation.PropConfig
	Resolver    resolver.Config
	Tracing     observability.TracingConfig
	CatalogFile string
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.trust_proxy", false)
	v.SetDefault("http.max_concurrent_per_ip", 8)
	v.SetDefault("http.max_concurrent_total", 256)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token", "")

	v.SetDefault("tle.enable_fetch", true)
	v.SetDefault("tle.source_url", "")
	v.SetDefault("tle.extra_urls", "")
	v.SetDefault("tle.object_url", tle.DefaultObjectURL)
	v.SetDefault("tle.snapshot_dir", "/tmp/ascas/tle")
	v.SetDefault("tle.max_files", 5)
	v.SetDefault("tle.max_age", "24h")
	v.SetDefault("tle.refresh_interval", "10m")

	v.SetDefault("cache.ttl", "6h")
	v.SetDefault("cache.sweep_interval", "1m")
	v.SetDefault("cache.max_entries", 1024)
	v.SetDefault("cache.fetch_timeout", "30s")

	v.SetDefault("propagation.workers", runtime.NumCPU())

	v.SetDefault("resolver.default_step", "8766h")
	v.SetDefault("resolver.default_horizon", resolver.DefaultHorizon)
	v.SetDefault("resolver.max_positions", 1000)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "ascas")
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("catalog.file", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile merges a YAML, JSON or TOML config file into v. An empty path is
// a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// Load builds a Config from v. Malformed optional values are logged and
// replaced by their defaults; only settings that would make the service
// unsafe to start are returned as errors.
func Load(v *viper.Viper, logger *slog.Logger) (Config, error) {
	authCfg, err := loadAuthConfig(v, logger)
	if err != nil {
		return Config{}, err
	}

	resCfg := loadResolverConfig(v, logger)
	propCfg := loadPropConfig(v, logger, resCfg)

	return Config{
		HTTP:        loadHTTPConfig(v, logger),
		Log:         logging.Config{Level: v.GetString("log.level"), Format: v.GetString("log.format")},
		Auth:        authCfg,
		TLE:         loadTLEConfig(v, logger),
		Cache:       loadCacheConfig(v, logger),
		Propagation: propCfg,
		Resolver:    resCfg,
		Tracing:     loadTracingConfig(v, logger),
		CatalogFile: v.GetString("catalog.file"),
	}, nil
}

func loadAuthConfig(v *viper.Viper, logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabled, err := strconv.ParseBool(v.GetString("auth.enabled"))
	if err != nil {
		return cfg, errors.New("auth.enabled must be a boolean value (true/false/1/0)")
	}
	cfg.Enabled = enabled

	if cfg.Enabled {
		cfg.Token = v.GetString("auth.token")
		if cfg.Token == "" {
			return cfg, errors.New("auth.token is required when auth is enabled")
		}
		logger.Info("auth enabled", "component", "config")
	}

	return cfg, nil
}

func loadHTTPConfig(v *viper.Viper, logger *slog.Logger) HTTPConfig {
	cfg := HTTPConfig{
		Addr:               v.GetString("http.addr"),
		TrustProxy:         boolValue(v, logger, "http.trust_proxy", false),
		MaxConcurrentPerIP: positiveInt(v, logger, "http.max_concurrent_per_ip", 8),
		MaxConcurrentTotal: positiveInt(v, logger, "http.max_concurrent_total", 256),
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	return cfg
}

func loadTLEConfig(v *viper.Viper, logger *slog.Logger) TLEConfig {
	cfg := TLEConfig{
		EnableFetch:     boolValue(v, logger, "tle.enable_fetch", true),
		SourceURL:       v.GetString("tle.source_url"),
		ExtraSourceURLs: stringList(v, "tle.extra_urls"),
		ObjectURL:       v.GetString("tle.object_url"),
		SnapshotDir:     v.GetString("tle.snapshot_dir"),
		MaxFiles:        positiveInt(v, logger, "tle.max_files", 5),
		MaxAge:          duration(v, logger, "tle.max_age", 24*time.Hour),
		RefreshInterval: duration(v, logger, "tle.refresh_interval", 10*time.Minute),
	}

	if strings.Count(cfg.ObjectURL, "%d") != 1 {
		logger.Warn("invalid tle.object_url, using default",
			"component", "config", "value", cfg.ObjectURL, "default", tle.DefaultObjectURL)
		cfg.ObjectURL = tle.DefaultObjectURL
	}

	logger.Info("TLE config",
		"component", "config",
		"fetch_enabled", cfg.EnableFetch,
		"source_url", cfg.SourceURL,
		"extra_urls", cfg.ExtraSourceURLs,
		"snapshot_dir", cfg.SnapshotDir,
		"max_age_seconds", cfg.MaxAge.Seconds(),
	)
	return cfg
}

func loadCacheConfig(v *viper.Viper, logger *slog.Logger) cache.Config {
	cfg := cache.Config{
		TTL:           duration(v, logger, "cache.ttl", 6*time.Hour),
		SweepInterval: duration(v, logger, "cache.sweep_interval", time.Minute),
		MaxEntries:    positiveInt(v, logger, "cache.max_entries", 1024),
		FetchTimeout:  duration(v, logger, "cache.fetch_timeout", 30*time.Second),
	}

	logger.Info("cache config",
		"component", "config",
		"ttl_seconds", cfg.TTL.Seconds(),
		"sweep_interval_seconds", cfg.SweepInterval.Seconds(),
		"max_entries", cfg.MaxEntries,
		"fetch_timeout_seconds", cfg.FetchTimeout.Seconds(),
	)
	return cfg
}

func loadResolverConfig(v *viper.Viper, logger *slog.Logger) resolver.Config {
	cfg := resolver.Config{
		DefaultStep:    duration(v, logger, "resolver.default_step", resolver.DefaultStep),
		DefaultHorizon: positiveInt(v, logger, "resolver.default_horizon", resolver.DefaultHorizon),
		MaxPositions:   positiveInt(v, logger, "resolver.max_positions", 1000),
		MinStep:        time.Second,
	}

	if cfg.DefaultStep%time.Second != 0 {
		logger.Warn("resolver.default_step is not a whole number of seconds, truncating",
			"component", "config", "value", cfg.DefaultStep.String())
		cfg.DefaultStep = cfg.DefaultStep.Truncate(time.Second)
	}
	if cfg.DefaultHorizon > cfg.MaxPositions {
		logger.Warn("resolver.default_horizon exceeds resolver.max_positions, clamping",
			"component", "config", "default_horizon", cfg.DefaultHorizon, "max_positions", cfg.MaxPositions)
		cfg.DefaultHorizon = cfg.MaxPositions
	}

	logger.Info("resolver config",
		"component", "config",
		"default_step_seconds", cfg.DefaultStep.Seconds(),
		"default_horizon", cfg.DefaultHorizon,
		"max_positions", cfg.MaxPositions,
	)
	return cfg
}

func loadPropConfig(v *viper.Viper, logger *slog.Logger, res resolver.Config) propagation.PropConfig {
	cfg := propagation.PropConfig{
		Workers:      positiveInt(v, logger, "propagation.workers", runtime.NumCPU()),
		Step:         res.DefaultStep,
		Horizon:      res.DefaultHorizon,
		MaxPositions: res.MaxPositions,
	}

	logger.Info("propagation config", "component", "config", "workers", cfg.Workers)
	return cfg
}

func loadTracingConfig(v *viper.Viper, logger *slog.Logger) observability.TracingConfig {
	cfg := observability.DefaultTracingConfig()
	cfg.Enabled = boolValue(v, logger, "tracing.enabled", false)
	if s := v.GetString("tracing.service_name"); s != "" {
		cfg.ServiceName = s
	}
	if s := strings.ToLower(v.GetString("tracing.exporter")); s != "" {
		cfg.Exporter = s
	}
	cfg.Endpoint = v.GetString("tracing.endpoint")

	raw := v.GetString("tracing.sample_ratio")
	if ratio, err := strconv.ParseFloat(raw, 64); err != nil || ratio < 0 || ratio > 1 {
		logger.Warn("invalid tracing.sample_ratio, using default", "component", "config", "value", raw, "default", 1.0)
	} else {
		cfg.SampleRatio = ratio
	}
	return cfg
}

// duration reads key as a Go duration string or a whole number of seconds.
// Missing, malformed or non-positive values fall back to def.
func duration(v *viper.Viper, logger *slog.Logger, key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return def
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		logger.Warn("invalid duration, using default", "component", "config", "key", key, "value", raw, "default", def.String())
		return def
	}
	return d
}

func positiveInt(v *viper.Viper, logger *slog.Logger, key string, def int) int {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		logger.Warn("invalid value, using default", "component", "config", "key", key, "value", raw, "default", def)
		return def
	}
	return n
}

func boolValue(v *viper.Viper, logger *slog.Logger, key string, def bool) bool {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		logger.Warn("invalid boolean, using default", "component", "config", "key", key, "value", raw, "default", def)
		return def
	}
	return b
}

// stringList accepts either a list in a config file or a comma-separated
// string from the environment.
func stringList(v *viper.Viper, key string) []string {
	var out []string
	for _, s := range v.GetStringSlice(key) {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
