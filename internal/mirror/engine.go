package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/sitemirror/internal/extract"
	"github.com/JakeFAU/sitemirror/internal/mapping"
	"github.com/JakeFAU/sitemirror/internal/metrics"
)

const (
	kindPage  = "page"
	kindAsset = "asset"
)

// Engine mirrors one site. An Engine runs once; build a new one per run.
type Engine struct {
	cfg       Config
	start     *url.URL
	hosts     mapping.HostSet
	mapper    mapping.Mapper
	frontier  *Frontier
	fetcher   Fetcher
	store     BlobStore
	extractor extract.Extractor
	ids       IDGenerator
	clock     Clock
	pauser    pauseController
	progress  Progress
	logger    *zap.Logger
}

// Deps bundles the collaborators of an Engine. Fetcher and Store are
// required; the rest fall back to defaults.
type Deps struct {
	Fetcher   Fetcher
	Store     BlobStore
	Extractor extract.Extractor
	IDs       IDGenerator
	Clock     Clock
	Progress  Progress
	Logger    *zap.Logger
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

// NewEngine validates cfg and wires the collaborators. A bad start URL is
// reported as *MalformedInputError.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	start, err := ParseStartURL(cfg.StartURL)
	if err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mirror config: %w", err)
	}
	if deps.Fetcher == nil || deps.Store == nil {
		return nil, errors.New("mirror engine requires a fetcher and a blob store")
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.NewRegex()
	}
	if deps.Clock == nil {
		deps.Clock = clockFunc(func() time.Time { return time.Now().UTC() })
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	hosts := cfg.hostSet(mapping.Host(start))
	mapper := mapping.NewMapper(hosts, cfg.Tracking)
	return &Engine{
		cfg:       cfg,
		start:     start,
		hosts:     hosts,
		mapper:    mapper,
		frontier:  NewFrontier(start.String(), hosts, cfg.MaxPages, mapper),
		fetcher:   deps.Fetcher,
		store:     deps.Store,
		extractor: deps.Extractor,
		ids:       deps.IDs,
		clock:     deps.Clock,
		pauser:    timerPauseController{},
		progress:  deps.Progress,
		logger:    deps.Logger.Named("mirror"),
	}, nil
}

// Frontier exposes the crawl state, mainly for inspection after Run.
func (e *Engine) Frontier() *Frontier {
	return e.frontier
}

// Run crawls until the queue drains, the page budget is used or ctx is
// canceled, then writes the manifest. Individual fetch and write failures
// are logged and counted, never returned.
func (e *Engine) Run(ctx context.Context) (Manifest, error) {
	startedAt := e.clock.Now()
	runID := ""
	if e.ids != nil {
		id, err := e.ids.NewID()
		if err != nil {
			return Manifest{}, fmt.Errorf("generate run id: %w", err)
		}
		runID = id
	}
	logger := e.logger.With(zap.String("run_id", runID))
	logger.Info("mirror started",
		zap.String("start_url", e.start.String()),
		zap.Strings("hosts", e.hosts.Hosts()),
		zap.Int("max_pages", e.cfg.MaxPages),
		zap.Int("concurrency", e.cfg.Concurrency),
	)

	var wg sync.WaitGroup
	for i := range e.cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.work(ctx, logger.With(zap.Int("worker", i)))
		}()
	}
	wg.Wait()
	metrics.SetQueueDepth(e.frontier.QueueDepth())

	pages, assets, failed := e.frontier.snapshot()
	manifest := Manifest{
		RunID:      runID,
		StartURL:   e.start.String(),
		Hosts:      e.hosts.Hosts(),
		StartedAt:  startedAt,
		FinishedAt: e.clock.Now(),
		Canceled:   ctx.Err() != nil,
		Stats:      e.frontier.Stats(),
		Pages:      pages,
		Assets:     assets,
		Failed:     failed,
	}
	if !e.cfg.SkipManifest {
		// The manifest is still written after cancellation.
		if err := e.writeManifest(context.WithoutCancel(ctx), manifest); err != nil {
			logger.Warn("manifest write failed", zap.Error(err))
		}
	}
	logger.Info("mirror finished",
		zap.Int("pages", manifest.Stats.PagesStored),
		zap.Int("assets", manifest.Stats.AssetsStored),
		zap.Int("pages_failed", manifest.Stats.PagesFailed),
		zap.Int("assets_failed", manifest.Stats.AssetsFailed),
		zap.Bool("canceled", manifest.Canceled),
	)
	return manifest, nil
}

func (e *Engine) work(ctx context.Context, logger *zap.Logger) {
	for {
		target, ok := e.frontier.Next(ctx)
		if !ok {
			return
		}
		metrics.SetQueueDepth(e.frontier.QueueDepth())
		e.processPage(ctx, logger, target)
		e.frontier.Done()
		e.pauser.Pause(ctx, e.cfg.Delay)
	}
}

func (e *Engine) processPage(ctx context.Context, logger *zap.Logger, target string) {
	resp, err := e.fetch(ctx, target)
	if err != nil {
		e.frontier.Fail(target)
		metrics.ObserveFetch(kindPage, statusLabel(err), 0)
		logger.Warn("page fetch failed", zap.String("url", target), zap.Error(err))
		return
	}
	local := e.mapper.LocalPathURL(mustParse(target), true)
	stub := ""
	if final, ok := e.movedPage(resp, local); ok && e.frontier.Redirect(target, final) {
		stub, local = local, e.mapper.LocalPathURL(mustParse(final), true)
	}
	if _, err := e.store.PutObject(ctx, local, resp.ContentType, resp.Body); err != nil {
		e.frontier.Fail(target)
		metrics.ObserveFetch(kindPage, "write_error", 0)
		logger.Warn("page write failed", zap.String("url", target), zap.Error(&WriteError{Path: local, Err: err}))
		return
	}
	if !e.frontier.Commit(target) {
		logger.Warn("page discarded over budget", zap.String("url", target))
		return
	}
	if stub != "" {
		if _, err := e.store.PutObject(ctx, stub, "text/html; charset=utf-8", redirectStub(stub, local)); err != nil {
			logger.Warn("redirect stub write failed", zap.String("url", target), zap.Error(&WriteError{Path: stub, Err: err}))
		}
	}
	metrics.ObserveFetch(kindPage, strconv.Itoa(resp.StatusCode), len(resp.Body))
	logger.Info("page stored", zap.String("url", target), zap.String("path", local), zap.Int("bytes", len(resp.Body)))
	if e.progress != nil {
		_ = e.progress.Add(1)
	}

	if !resp.IsHTML() {
		return
	}
	var pages, assets []string
	for _, ref := range e.extractor.Extract(baseURL(resp), resp.Body, extract.DocHTML) {
		if ref.Kind == mapping.KindAsset {
			assets = append(assets, ref.URL)
			continue
		}
		pages = append(pages, ref.URL)
	}
	if n := e.frontier.Enqueue(pages...); n > 0 {
		logger.Debug("pages queued", zap.String("from", target), zap.Int("count", n))
	}
	e.downloadAssets(ctx, logger, assets)
}

// downloadAssets fetches the unclaimed assets of one page on a bounded pool.
func (e *Engine) downloadAssets(ctx context.Context, logger *zap.Logger, assets []string) {
	var g errgroup.Group
	g.SetLimit(e.cfg.AssetConcurrency)
	for _, asset := range assets {
		if !e.frontier.ClaimAsset(asset) {
			continue
		}
		g.Go(func() error {
			e.fetchAsset(ctx, logger, asset)
			return nil
		})
	}
	_ = g.Wait()
}

// fetchAsset stores one claimed asset. Stylesheets are scanned and their
// unclaimed assets fetched in turn; the claim set bounds the recursion.
func (e *Engine) fetchAsset(ctx context.Context, logger *zap.Logger, target string) {
	resp, err := e.fetch(ctx, target)
	if err != nil {
		e.frontier.FailAsset(target)
		metrics.ObserveFetch(kindAsset, statusLabel(err), 0)
		logger.Warn("asset fetch failed", zap.String("url", target), zap.Error(err))
		return
	}
	local := e.mapper.LocalPathURL(mustParse(target), false)
	if _, err := e.store.PutObject(ctx, local, resp.ContentType, resp.Body); err != nil {
		e.frontier.FailAsset(target)
		metrics.ObserveFetch(kindAsset, "write_error", 0)
		logger.Warn("asset write failed", zap.String("url", target), zap.Error(&WriteError{Path: local, Err: err}))
		return
	}
	e.frontier.CommitAsset(target)
	metrics.ObserveFetch(kindAsset, strconv.Itoa(resp.StatusCode), len(resp.Body))
	logger.Debug("asset stored", zap.String("url", target), zap.String("path", local))

	if !resp.IsStylesheet() {
		return
	}
	for _, ref := range e.extractor.Extract(baseURL(resp), resp.Body, extract.DocCSS) {
		if ref.Kind != mapping.KindAsset || !e.frontier.ClaimAsset(ref.URL) {
			continue
		}
		e.fetchAsset(ctx, logger, ref.URL)
	}
}

func (e *Engine) fetch(ctx context.Context, target string) (Response, error) {
	resp, err := e.fetcher.Fetch(ctx, target)
	if err != nil {
		return Response{}, err
	}
	if resp.URL == "" {
		resp.URL = target
	}
	if resp.FinalURL == "" {
		resp.FinalURL = resp.URL
	}
	return resp, nil
}

func (e *Engine) writeManifest(ctx context.Context, manifest Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if _, err := e.store.PutObject(ctx, ManifestName, "application/json", data); err != nil {
		return &WriteError{Path: ManifestName, Err: err}
	}
	return nil
}

// movedPage returns the final URL of an HTML page that redirected to a
// same-site URL with a different local path. Such a page is stored under
// the final path so its relative references keep working offline.
func (e *Engine) movedPage(resp Response, local string) (string, bool) {
	if resp.FinalURL == "" || resp.FinalURL == resp.URL || !resp.IsHTML() {
		return "", false
	}
	u, err := url.Parse(resp.FinalURL)
	if err != nil || !mapping.IsHTTP(u) || !e.hosts.Contains(mapping.Host(u)) {
		return "", false
	}
	if e.mapper.LocalPathURL(u, true) == local {
		return "", false
	}
	return resp.FinalURL, true
}

// redirectStub is the page left at the requested path of a moved page. It
// forwards to the stored copy with a relative link.
func redirectStub(from, to string) []byte {
	href := html.EscapeString(mapping.EscapePath(mapping.Relative(from, to)))
	return []byte(`<!DOCTYPE html>
<html><head><meta charset="utf-8">
<meta http-equiv="refresh" content="0; url=` + href + `">
<link rel="canonical" href="` + href + `">
</head><body><a href="` + href + `">` + href + `</a></body></html>
`)
}

// baseURL is where relative references resolve from: the post-redirect URL.
func baseURL(resp Response) *url.URL {
	if u, err := url.Parse(resp.FinalURL); err == nil && u.Host != "" {
		return u
	}
	return mustParse(resp.URL)
}

func statusLabel(err error) string {
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return strconv.Itoa(protoErr.StatusCode)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "transport_error"
}
