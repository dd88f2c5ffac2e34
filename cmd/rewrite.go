package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/sitemirror/internal/config"
	"github.com/JakeFAU/sitemirror/internal/mapping"
	"github.com/JakeFAU/sitemirror/internal/rewrite"
	"github.com/JakeFAU/sitemirror/internal/storage/local"
)

// newRewriteCmd creates the 'rewrite' subcommand.
func newRewriteCmd() *cobra.Command {
	modes := make([]string, 0, len(rewrite.Modes))
	for _, m := range rewrite.Modes {
		modes = append(modes, string(m))
	}
	cmd := &cobra.Command{
		Use:   "rewrite",
		Short: "Rewrite a mirrored tree for offline browsing",
		Long: `Rewrites the HTML and CSS files of a mirror in place. Site hosts default
to the ones recorded in the mirror's manifest.

Modes:
  links     rewrite page hrefs only
  offline   rewrite page hrefs and media references (default)
  localize  like offline, plus stylesheets and scripts
  restore   point _ext/ references back at their origin`,
		Example: "  sitemirror rewrite --dir ./example --mode localize",
		Args:    cobra.NoArgs,
		RunE:    runRewriteCommand,
	}

	flags := cmd.Flags()
	flags.String("dir", "", "mirror directory to rewrite")
	flags.String("mode", string(rewrite.ModeOffline), "rewrite mode ("+strings.Join(modes, ", ")+")")
	flags.StringSlice("hosts", nil, "site hosts (default: from the manifest)")
	flags.StringSlice("restore-hosts", nil, "restore only these external hosts (default: all)")
	flags.String("scheme", "", "scheme used when restoring external URLs (default: from the manifest, else https)")
	return cmd
}

func runRewriteCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, config.RewriteFlags)
	if err != nil {
		return err
	}
	if err := cfg.ValidateRewrite(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ok, err := afero.DirExists(afero.NewOsFs(), cfg.Rewrite.Dir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", cfg.Rewrite.Dir, err)
	}
	if !ok {
		return fmt.Errorf("mirror directory %s does not exist", cfg.Rewrite.Dir)
	}
	tree, err := local.New(local.Config{BaseDir: cfg.Rewrite.Dir})
	if err != nil {
		return fmt.Errorf("open mirror directory: %w", err)
	}

	rewriter, err := rewrite.New(tree, rewrite.Options{
		Mode:         rewrite.Mode(cfg.Rewrite.Mode),
		SiteHosts:    cfg.Rewrite.SiteHosts,
		PrimaryHost:  cfg.Rewrite.PrimaryHost,
		Scheme:       strings.ToLower(cfg.Rewrite.Scheme),
		RestoreHosts: cfg.Rewrite.RestoreHosts,
		Tracking:     mapping.TrackingParams(cfg.Mirror.TrackingParams),
		Workers:      cfg.Rewrite.Workers,
	}, logger)
	if err != nil {
		return fmt.Errorf("init rewriter: %w", err)
	}
	report, err := rewriter.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("run rewrite: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Done. Mode: %s, Files changed: %d\n", report.Mode, len(report.Changed))
	return nil
}
