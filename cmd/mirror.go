package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemirror/internal/clock/system"
	"github.com/JakeFAU/sitemirror/internal/config"
	"github.com/JakeFAU/sitemirror/internal/extract"
	collyfetcher "github.com/JakeFAU/sitemirror/internal/fetcher/colly"
	"github.com/JakeFAU/sitemirror/internal/id/uuid"
	"github.com/JakeFAU/sitemirror/internal/mapping"
	"github.com/JakeFAU/sitemirror/internal/metrics"
	"github.com/JakeFAU/sitemirror/internal/mirror"
	"github.com/JakeFAU/sitemirror/internal/policy/ratelimit"
	"github.com/JakeFAU/sitemirror/internal/storage/local"
)

// newMirrorCmd creates the 'mirror' subcommand.
func newMirrorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Crawl a site and store its pages and assets",
		Long: `Crawls breadth-first from --base, following links on the allowed hosts
until the queue drains or --max-pages pages are stored. Static assets are
downloaded from any host; cross-origin ones land under _ext/<host>/.`,
		Example: "  sitemirror mirror --base https://example.com/ --out ./example --max-pages 500",
		Args:    cobra.NoArgs,
		RunE:    runMirrorCommand,
	}

	flags := cmd.Flags()
	flags.String("base", "", "start URL (http or https)")
	flags.String("out", "", "output directory")
	flags.StringSlice("hosts", nil, "hosts to crawl (default: host of --base)")
	flags.Int("max-pages", mirror.DefaultMaxPages, "maximum number of pages to store")
	flags.Duration("delay", mirror.DefaultDelay, "pause after each page, per worker")
	flags.Int("concurrency", mirror.DefaultConcurrency, "number of page workers")
	flags.String("extractor", extract.NameRegex, "reference extractor (regex or dom)")
	flags.Bool("insecure", false, "skip TLS certificate verification")
	flags.String("user-agent", collyfetcher.DefaultUserAgent, "User-Agent header")
	flags.Duration("timeout", collyfetcher.DefaultTimeout, "per-request timeout")
	flags.Float64("rate", 0, "requests per second per host, pages and assets together (0: unlimited)")
	flags.Bool("progress", false, "draw a progress bar on stderr")
	flags.String("metrics-addr", "", "serve /metrics and /healthz on this address during the run")
	return cmd
}

func runMirrorCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, config.MirrorFlags)
	if err != nil {
		return err
	}
	// Malformed start URLs are reported before anything else is touched.
	if _, err := mirror.ParseStartURL(cfg.Mirror.StartURL); err != nil {
		return err
	}
	if err := cfg.ValidateMirror(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if cfg.Metrics.Addr != "" {
		done, err := metrics.Serve(ctx, cfg.Metrics.Addr, logger.Named("metrics"))
		if err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		// The endpoint lives only as long as the run.
		defer func() {
			cancel()
			if serr := <-done; serr != nil {
				logger.Warn("metrics server stopped", zap.Error(serr))
			}
		}()
	}

	var bar *progressbar.ProgressBar
	if cfg.Mirror.Progress {
		bar = newProgressBar(cmd.ErrOrStderr(), cfg.Mirror.MaxPages)
	}
	engine, err := buildEngine(cfg, logger, bar)
	if err != nil {
		return err
	}
	manifest, err := engine.Run(ctx)
	if err != nil {
		return fmt.Errorf("run mirror: %w", err)
	}
	if bar != nil {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr())
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Done. Pages: %d, Assets: %d\n",
		manifest.Stats.PagesStored, manifest.Stats.AssetsStored)
	return nil
}

// newProgressBar counts stored pages against the page budget.
func newProgressBar(w io.Writer, maxPages int) *progressbar.ProgressBar {
	return progressbar.NewOptions(maxPages,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("pages"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func buildEngine(cfg config.Config, logger *zap.Logger, bar *progressbar.ProgressBar) (*mirror.Engine, error) {
	store, err := local.New(local.Config{BaseDir: cfg.Mirror.OutputDir})
	if err != nil {
		return nil, fmt.Errorf("init output directory: %w", err)
	}
	extractor, err := extract.New(cfg.Mirror.Extractor)
	if err != nil {
		return nil, fmt.Errorf("init extractor: %w", err)
	}
	fetcher := ratelimit.WrapFetcher(collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.HTTP.UserAgent,
		Timeout:      cfg.HTTP.Timeout,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		Insecure:     cfg.HTTP.InsecureSkipVerify,
		Headers:      cfg.HTTP.RequestHeaders(),
	}), ratelimit.New(ratelimit.Config{
		RPS:   cfg.HTTP.RateLimitRPS,
		Burst: cfg.HTTP.RateLimitBurst,
	}))
	deps := mirror.Deps{
		Fetcher:   fetcher,
		Store:     store,
		Extractor: extractor,
		IDs:       uuid.New(),
		Clock:     system.New(),
		Logger:    logger,
	}
	if bar != nil {
		deps.Progress = bar
	}
	engine, err := mirror.NewEngine(mirror.Config{
		StartURL:         cfg.Mirror.StartURL,
		AllowedHosts:     cfg.Mirror.AllowedHosts,
		MaxPages:         cfg.Mirror.MaxPages,
		Delay:            cfg.Mirror.Delay,
		Concurrency:      cfg.Mirror.Concurrency,
		AssetConcurrency: cfg.Mirror.AssetConcurrency,
		Tracking:         mapping.TrackingParams(cfg.Mirror.TrackingParams),
	}, deps)
	if err != nil {
		return nil, fmt.Errorf("init mirror engine: %w", err)
	}
	return engine, nil
}
