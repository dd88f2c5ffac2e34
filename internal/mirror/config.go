package mirror

import (
	"errors"
	"time"

	"github.com/JakeFAU/sitemirror/internal/mapping"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultMaxPages         = 2000
	DefaultDelay            = 200 * time.Millisecond
	DefaultConcurrency      = 1
	DefaultAssetConcurrency = 4
	ManifestName            = ".sitemirror.json"
)

// Config drives one mirror run.
type Config struct {
	StartURL         string
	AllowedHosts     []string
	MaxPages         int
	Delay            time.Duration
	Concurrency      int
	AssetConcurrency int
	Tracking         mapping.TrackingParams
	// SkipManifest disables writing ManifestName at the end of the run.
	SkipManifest bool
}

var (
	errMaxPages         = errors.New("max pages must be positive")
	errDelay            = errors.New("delay must not be negative")
	errConcurrency      = errors.New("concurrency must be positive")
	errAssetConcurrency = errors.New("asset concurrency must be positive")
)

func (c Config) withDefaults() Config {
	if c.MaxPages == 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.AssetConcurrency == 0 {
		c.AssetConcurrency = DefaultAssetConcurrency
	}
	return c
}

// Validate checks numeric limits. The start URL is checked separately by
// ParseStartURL so callers can tell malformed input from bad settings.
func (c Config) Validate() error {
	switch {
	case c.MaxPages <= 0:
		return errMaxPages
	case c.Delay < 0:
		return errDelay
	case c.Concurrency <= 0:
		return errConcurrency
	case c.AssetConcurrency <= 0:
		return errAssetConcurrency
	}
	return nil
}

// hostSet returns the allowed hosts, falling back to the start URL's host.
func (c Config) hostSet(startHost string) mapping.HostSet {
	set := mapping.NewHostSet(c.AllowedHosts...)
	if set.Len() == 0 {
		set = mapping.NewHostSet(startHost)
	}
	return set
}
