// Package config loads and validates sitemirror configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/sitemirror/internal/extract"
	"github.com/JakeFAU/sitemirror/internal/mapping"
	"github.com/JakeFAU/sitemirror/internal/rewrite"
)

// EnvPrefix prefixes every environment override, e.g. SITEMIRROR_MIRROR_MAX_PAGES.
const EnvPrefix = "SITEMIRROR"

// Validation errors.
var (
	ErrMissingOutputDir        = errors.New("mirror.output_dir is required")
	ErrInvalidMaxPages         = errors.New("mirror.max_pages must be > 0")
	ErrInvalidDelay            = errors.New("mirror.delay must be >= 0")
	ErrInvalidConcurrency      = errors.New("mirror.concurrency must be > 0")
	ErrInvalidAssetConcurrency = errors.New("mirror.asset_concurrency must be > 0")
	ErrUnknownExtractor        = errors.New("mirror.extractor must be regex or dom")
	ErrInvalidTimeout          = errors.New("http.timeout must be > 0")
	ErrInvalidMaxBodyBytes     = errors.New("http.max_body_bytes must be > 0")
	ErrInvalidRateLimit        = errors.New("http.rate_limit_rps must be >= 0")
	ErrMissingRewriteDir       = errors.New("rewrite.dir is required")
	ErrUnknownMode             = errors.New("rewrite.mode is not a known mode")
	ErrInvalidScheme           = errors.New("rewrite.scheme must be http or https")
	ErrInvalidLogLevel         = errors.New("logging.level is not a zap level")
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Mirror  MirrorConfig  `mapstructure:"mirror"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Rewrite RewriteConfig `mapstructure:"rewrite"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MirrorConfig governs the crawl.
type MirrorConfig struct {
	StartURL         string        `mapstructure:"start_url"`
	OutputDir        string        `mapstructure:"output_dir"`
	AllowedHosts     []string      `mapstructure:"allowed_hosts"`
	MaxPages         int           `mapstructure:"max_pages"`
	Delay            time.Duration `mapstructure:"delay"`
	Concurrency      int           `mapstructure:"concurrency"`
	AssetConcurrency int           `mapstructure:"asset_concurrency"`
	Extractor        string        `mapstructure:"extractor"`
	TrackingParams   []string      `mapstructure:"tracking_params"`
	Progress         bool          `mapstructure:"progress"`
}

// HTTPConfig configures the fetcher.
type HTTPConfig struct {
	UserAgent          string            `mapstructure:"user_agent"`
	Timeout            time.Duration     `mapstructure:"timeout"`
	InsecureSkipVerify bool              `mapstructure:"insecure_skip_verify"`
	MaxBodyBytes       int64             `mapstructure:"max_body_bytes"`
	Headers            map[string]string `mapstructure:"headers"`
	RateLimitRPS       float64           `mapstructure:"rate_limit_rps"`
	RateLimitBurst     int               `mapstructure:"rate_limit_burst"`
}

// RewriteConfig configures the offline rewriter.
type RewriteConfig struct {
	Dir          string   `mapstructure:"dir"`
	Mode         string   `mapstructure:"mode"`
	SiteHosts    []string `mapstructure:"site_hosts"`
	PrimaryHost  string   `mapstructure:"primary_host"`
	RestoreHosts []string `mapstructure:"restore_hosts"`
	Scheme       string   `mapstructure:"scheme"`
	Workers      int      `mapstructure:"workers"`
}

// LoggingConfig toggles zap development features and the optional rotating
// log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

// MetricsConfig enables the Prometheus endpoint during mirror runs.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from defaults, an optional file, the environment and
// the flags named in bindings (flag name to config key). Flags win over the
// environment, which wins over the file.
func Load(path string, flags *pflag.FlagSet, bindings ...map[string]string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for _, binding := range bindings {
			for name, key := range binding {
				flag := flags.Lookup(name)
				if flag == nil {
					continue
				}
				if err := v.BindPFlag(key, flag); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Flag bindings per command. Flag names are shared across commands, so each
// command binds its own set plus GlobalFlags.
var (
	GlobalFlags = map[string]string{
		"dev":       "logging.development",
		"log-level": "logging.level",
		"log-file":  "logging.file",
	}
	MirrorFlags = map[string]string{
		"base":         "mirror.start_url",
		"out":          "mirror.output_dir",
		"hosts":        "mirror.allowed_hosts",
		"max-pages":    "mirror.max_pages",
		"delay":        "mirror.delay",
		"concurrency":  "mirror.concurrency",
		"extractor":    "mirror.extractor",
		"insecure":     "http.insecure_skip_verify",
		"user-agent":   "http.user_agent",
		"timeout":      "http.timeout",
		"rate":         "http.rate_limit_rps",
		"progress":     "mirror.progress",
		"metrics-addr": "metrics.addr",
	}
	RewriteFlags = map[string]string{
		"dir":           "rewrite.dir",
		"mode":          "rewrite.mode",
		"hosts":         "rewrite.site_hosts",
		"restore-hosts": "rewrite.restore_hosts",
		"scheme":        "rewrite.scheme",
	}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("mirror.start_url", "")
	v.SetDefault("mirror.output_dir", "")
	v.SetDefault("mirror.allowed_hosts", []string{})
	v.SetDefault("mirror.max_pages", 2000)
	v.SetDefault("mirror.delay", 200*time.Millisecond)
	v.SetDefault("mirror.concurrency", 1)
	v.SetDefault("mirror.asset_concurrency", 4)
	v.SetDefault("mirror.extractor", extract.NameRegex)
	v.SetDefault("mirror.tracking_params", []string(mapping.DefaultTrackingParams))
	v.SetDefault("mirror.progress", false)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) "+
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("http.timeout", 15*time.Second)
	v.SetDefault("http.insecure_skip_verify", false)
	v.SetDefault("http.max_body_bytes", int64(50<<20))
	v.SetDefault("http.rate_limit_rps", 0.0)
	v.SetDefault("http.rate_limit_burst", 1)
	v.SetDefault("rewrite.dir", "")
	v.SetDefault("rewrite.mode", string(rewrite.ModeOffline))
	v.SetDefault("rewrite.site_hosts", []string{})
	v.SetDefault("rewrite.primary_host", "")
	v.SetDefault("rewrite.restore_hosts", []string{})
	v.SetDefault("rewrite.scheme", "")
	v.SetDefault("rewrite.workers", 4)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("metrics.addr", "")
}

// ValidateMirror checks the settings a mirror run needs. The start URL is
// left to mirror.ParseStartURL, which reports it as malformed input.
func (c Config) ValidateMirror() error {
	switch {
	case strings.TrimSpace(c.Mirror.OutputDir) == "":
		return ErrMissingOutputDir
	case c.Mirror.MaxPages <= 0:
		return ErrInvalidMaxPages
	case c.Mirror.Delay < 0:
		return ErrInvalidDelay
	case c.Mirror.Concurrency <= 0:
		return ErrInvalidConcurrency
	case c.Mirror.AssetConcurrency <= 0:
		return ErrInvalidAssetConcurrency
	case c.HTTP.Timeout <= 0:
		return ErrInvalidTimeout
	case c.HTTP.MaxBodyBytes <= 0:
		return ErrInvalidMaxBodyBytes
	case c.HTTP.RateLimitRPS < 0:
		return ErrInvalidRateLimit
	}
	if _, err := extract.New(c.Mirror.Extractor); err != nil {
		return fmt.Errorf("%w: %w", ErrUnknownExtractor, err)
	}
	return c.validateLogging()
}

// ValidateRewrite checks the settings a rewrite run needs.
func (c Config) ValidateRewrite() error {
	if strings.TrimSpace(c.Rewrite.Dir) == "" {
		return ErrMissingRewriteDir
	}
	if _, err := rewrite.ParseMode(c.Rewrite.Mode); err != nil {
		return fmt.Errorf("%w: %w", ErrUnknownMode, err)
	}
	switch strings.ToLower(c.Rewrite.Scheme) {
	case "", "http", "https":
	default:
		return ErrInvalidScheme
	}
	return c.validateLogging()
}

func (c Config) validateLogging() error {
	if c.Logging.Level == "" {
		return nil
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLogLevel, err)
	}
	return nil
}

// RequestHeaders returns the extra request headers as an http.Header.
func (c HTTPConfig) RequestHeaders() http.Header {
	if len(c.Headers) == 0 {
		return nil
	}
	h := make(http.Header, len(c.Headers))
	for k, v := range c.Headers {
		h.Set(k, v)
	}
	return h
}
