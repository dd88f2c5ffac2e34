package rewrite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/sitemirror/internal/mapping"
	"github.com/JakeFAU/sitemirror/internal/metrics"
	"github.com/JakeFAU/sitemirror/internal/mirror"
)

const (
	kindHTML = "html"
	kindCSS  = "css"

	defaultScheme  = "https"
	defaultWorkers = 4
)

var errNoSiteHosts = errors.New("site hosts are required when the tree has no manifest")

// Tree is the mirrored tree the rewriter reads and updates.
type Tree interface {
	Walk(ctx context.Context, fn func(path string) error) error
	GetObject(ctx context.Context, path string) ([]byte, error)
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Options configures a Rewriter. SiteHosts, PrimaryHost and Scheme fall back
// to the mirror manifest when one is present. The manifest scheme only
// applies to site hosts; restored cross-origin references default to https.
type Options struct {
	Mode         Mode
	SiteHosts    []string
	PrimaryHost  string
	Scheme       string
	RestoreHosts []string
	Tracking     mapping.TrackingParams
	Workers      int
}

// Report counts what a run did. Changed and Failed hold tree paths.
type Report struct {
	Mode        Mode     `json:"mode"`
	HTMLScanned int      `json:"html_scanned"`
	HTMLChanged int      `json:"html_changed"`
	CSSScanned  int      `json:"css_scanned"`
	CSSChanged  int      `json:"css_changed"`
	Changed     []string `json:"changed,omitempty"`
	Failed      []string `json:"failed,omitempty"`
}

// Rewriter applies one Mode to a Tree.
type Rewriter struct {
	tree    Tree
	opts    Options
	logger  *zap.Logger
	hosts   mapping.HostSet
	restore mapping.HostSet
	mapper  mapping.Mapper

	// extScheme is used for restored cross-origin URLs: Options.Scheme when
	// given, else https whatever the site itself used.
	extScheme string

	mu     sync.Mutex
	report Report
}

// New validates opts. Site hosts are resolved lazily in Run because they may
// come from the manifest.
func New(tree Tree, opts Options, logger *zap.Logger) (*Rewriter, error) {
	if tree == nil {
		return nil, errors.New("rewriter requires a tree")
	}
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	opts.Mode = mode
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rewriter{
		tree:    tree,
		opts:    opts,
		logger:  logger.Named("rewrite"),
		restore: mapping.NewHostSet(opts.RestoreHosts...),
	}, nil
}

// Run rewrites every eligible file once. Per-file failures are logged and
// listed in the report; only walking the tree or resolving the site hosts can
// fail the run.
func (r *Rewriter) Run(ctx context.Context) (Report, error) {
	if err := r.resolveSite(ctx); err != nil {
		return Report{}, err
	}
	r.report = Report{Mode: r.opts.Mode}

	var htmlFiles, cssFiles []string
	err := r.tree.Walk(ctx, func(p string) error {
		switch {
		case p == mirror.ManifestName:
		case isHTMLPath(p) && !isExternal(p):
			htmlFiles = append(htmlFiles, p)
		case mapping.IsStylesheetPath(p):
			cssFiles = append(cssFiles, p)
		}
		return nil
	})
	if err != nil {
		return Report{}, fmt.Errorf("scan tree: %w", err)
	}

	r.logger.Info("rewrite started",
		zap.String("mode", string(r.opts.Mode)),
		zap.Strings("site_hosts", r.hosts.Hosts()),
		zap.Int("html_files", len(htmlFiles)),
		zap.Int("css_files", len(cssFiles)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for _, p := range htmlFiles {
		g.Go(func() error {
			return r.process(gctx, p, kindHTML, "text/html; charset=utf-8", r.rewriteHTML)
		})
	}
	if r.opts.Mode.rewritesCSS() {
		for _, p := range cssFiles {
			g.Go(func() error {
				return r.process(gctx, p, kindCSS, "text/css", r.rewriteCSS)
			})
		}
	}
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("rewrite canceled: %w", err)
	}

	report := r.report
	sort.Strings(report.Changed)
	sort.Strings(report.Failed)
	r.logger.Info("rewrite finished",
		zap.Int("html_changed", report.HTMLChanged),
		zap.Int("css_changed", report.CSSChanged),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}

// process rewrites one file. Only context errors are returned so a bad file
// does not stop the others.
func (r *Rewriter) process(
	ctx context.Context,
	p, kind, contentType string,
	fn func(docPath, text string) string,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := r.tree.GetObject(ctx, p)
	if err != nil {
		r.fail(p, "read failed", err)
		return nil
	}
	out := fn(p, string(data))
	changed := out != string(data)
	if changed {
		if _, err := r.tree.PutObject(ctx, p, contentType, []byte(out)); err != nil {
			r.fail(p, "write failed", &mirror.WriteError{Path: p, Err: err})
			return nil
		}
		r.logger.Debug("file rewritten", zap.String("path", p))
	}
	metrics.ObserveRewrite(kind, changed)

	r.mu.Lock()
	defer r.mu.Unlock()
	switch kind {
	case kindHTML:
		r.report.HTMLScanned++
		if changed {
			r.report.HTMLChanged++
		}
	case kindCSS:
		r.report.CSSScanned++
		if changed {
			r.report.CSSChanged++
		}
	}
	if changed {
		r.report.Changed = append(r.report.Changed, p)
	}
	return nil
}

func (r *Rewriter) fail(p, msg string, err error) {
	r.logger.Warn(msg, zap.String("path", p), zap.Error(err))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Failed = append(r.report.Failed, p)
}

// resolveSite fills hosts, primary host and scheme from the options, falling
// back to the manifest written by the mirror engine.
func (r *Rewriter) resolveSite(ctx context.Context) error {
	hosts := r.opts.SiteHosts
	primary := strings.ToLower(strings.TrimSpace(r.opts.PrimaryHost))
	scheme := strings.ToLower(strings.TrimSpace(r.opts.Scheme))
	r.extScheme = scheme
	if r.extScheme == "" {
		r.extScheme = defaultScheme
	}

	if len(hosts) == 0 || primary == "" || scheme == "" {
		if manifest, ok := r.readManifest(ctx); ok {
			start, err := url.Parse(manifest.StartURL)
			if err == nil {
				if primary == "" {
					primary = mapping.Host(start)
				}
				if scheme == "" {
					scheme = strings.ToLower(start.Scheme)
				}
			}
			if len(hosts) == 0 {
				hosts = manifest.Hosts
			}
		}
	}

	set := mapping.NewHostSet(hosts...)
	if set.Len() == 0 {
		return errNoSiteHosts
	}
	if primary == "" || !set.Contains(primary) {
		primary = set.Hosts()[0]
	}
	if scheme == "" {
		scheme = defaultScheme
	}
	r.hosts = set
	r.opts.PrimaryHost = primary
	r.opts.Scheme = scheme
	r.mapper = mapping.NewMapper(set, r.opts.Tracking)
	return nil
}

func (r *Rewriter) readManifest(ctx context.Context) (mirror.Manifest, bool) {
	data, err := r.tree.GetObject(ctx, mirror.ManifestName)
	if err != nil {
		return mirror.Manifest{}, false
	}
	var manifest mirror.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		r.logger.Warn("manifest unreadable", zap.Error(err))
		return mirror.Manifest{}, false
	}
	return manifest, true
}

// localTarget decides where a resolved reference should point inside the
// tree. isHref selects the page rules; other attributes only carry assets.
func (r *Rewriter) localTarget(u *url.URL, isHref bool) (string, bool) {
	if mapping.Classify(u) == mapping.KindPage {
		if !isHref || !r.hosts.Contains(mapping.Host(u)) {
			return "", false
		}
		return r.mapper.LocalPathURL(u, true), true
	}
	// Every same-site href is localized, whatever it points at.
	if isHref && r.hosts.Contains(mapping.Host(u)) {
		return r.mapper.LocalPathURL(u, false), true
	}
	if !r.opts.Mode.rewritesMedia() {
		return "", false
	}
	if mapping.IsCodePath(u.Path) && !r.opts.Mode.rewritesCode() {
		return "", false
	}
	return r.mapper.LocalPathURL(u, false), true
}

// relativeRef renders target as seen from docPath, keeping u's fragment.
func relativeRef(docPath, target string, u *url.URL) string {
	ref := mapping.EscapePath(mapping.Relative(docPath, target))
	if u.Fragment != "" {
		ref += "#" + u.EscapedFragment()
	}
	return ref
}

// resolve turns absolute, protocol-relative and root-relative references into
// URLs. Plain relative references already work inside the tree and are left
// alone.
func resolve(raw string, origin *url.URL) (*url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	var candidate string
	switch {
	case strings.HasPrefix(raw, "//"):
		candidate = origin.Scheme + ":" + raw
	case strings.HasPrefix(raw, "/"):
		candidate = origin.Scheme + "://" + origin.Host + raw
	default:
		lower := strings.ToLower(raw)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			return nil, false
		}
		candidate = raw
	}
	u, err := url.Parse(candidate)
	if err != nil || !mapping.IsHTTP(u) || u.Host == "" {
		return nil, false
	}
	return u, true
}

func isHTMLPath(p string) bool {
	lower := strings.ToLower(p)
	return strings.HasSuffix(lower, ".html") || strings.HasSuffix(lower, ".htm")
}

func isExternal(p string) bool {
	return strings.HasPrefix(p, mapping.ExternalDir+"/")
}
