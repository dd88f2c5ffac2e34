package mirror

import (
	"context"
	"net/url"
	"sort"
	"sync"

	"github.com/JakeFAU/sitemirror/internal/mapping"
)

// Frontier owns all crawl state for a run: the FIFO page queue, per-URL
// states and the visited sets. Every method is safe for concurrent use.
//
// A page URL is claimed when it is queued, so it is fetched at most once.
// Next reserves a budget slot before handing a URL out and Commit turns the
// reservation into a stored page, which keeps stored pages <= maxPages even
// with many workers.
type Frontier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	hosts    mapping.HostSet
	mapper   mapping.Mapper
	maxPages int

	queue  []string
	pages  map[string]State
	assets map[string]State

	visitedPages  map[string]string
	visitedAssets map[string]string
	redirects     map[string]string // fetching URL -> canonical final URL

	reserved int // handed out, not yet committed or failed
	active   int // handed out, Done not yet called
	stats    Stats
}

// NewFrontier returns a Frontier seeded with start.
func NewFrontier(start string, hosts mapping.HostSet, maxPages int, mapper mapping.Mapper) *Frontier {
	f := &Frontier{
		hosts:         hosts,
		mapper:        mapper,
		maxPages:      maxPages,
		pages:         make(map[string]State),
		assets:        make(map[string]State),
		visitedPages:  make(map[string]string),
		visitedAssets: make(map[string]string),
		redirects:     make(map[string]string),
	}
	f.cond = sync.NewCond(&f.mu)
	f.Enqueue(start)
	return f
}

// Enqueue adds unseen same-site http(s) URLs to the tail of the queue and
// returns how many were accepted.
func (f *Frontier) Enqueue(urls ...string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	accepted := 0
	for _, raw := range urls {
		key, ok := f.pageKey(raw)
		if !ok {
			continue
		}
		if _, seen := f.pages[key]; seen {
			continue
		}
		f.pages[key] = StateQueued
		f.queue = append(f.queue, key)
		accepted++
	}
	if accepted > 0 {
		f.cond.Broadcast()
	}
	return accepted
}

// Next blocks until a URL can be fetched. It returns false when the page
// budget is used up, the queue is drained with nothing in flight, or ctx is
// canceled. Each URL returned must be finished with Commit or Fail and then
// released with Done.
func (f *Frontier) Next(ctx context.Context) (string, bool) {
	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if ctx.Err() != nil || f.stats.PagesStored >= f.maxPages {
			return "", false
		}
		if len(f.queue) > 0 && f.stats.PagesStored+f.reserved < f.maxPages {
			next := f.queue[0]
			f.queue[0] = ""
			f.queue = f.queue[1:]
			if f.pages[next] != StateQueued {
				continue
			}
			if u, err := url.Parse(next); err != nil || !f.hosts.Contains(mapping.Host(u)) {
				f.pages[next] = StateFailed
				f.stats.Skipped++
				continue
			}
			f.pages[next] = StateFetching
			f.reserved++
			f.active++
			return next, true
		}
		if len(f.queue) == 0 && f.active == 0 {
			return "", false
		}
		f.cond.Wait()
	}
}

// Commit records a stored page. It returns false if the URL was not being
// fetched or the budget is already full; the page is then not counted.
func (f *Frontier) Commit(rawURL string) bool {
	key := f.key(rawURL)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pages[key] != StateFetching {
		return false
	}
	f.reserved--
	defer f.cond.Broadcast()
	final, redirected := f.redirects[key]
	delete(f.redirects, key)
	if f.stats.PagesStored >= f.maxPages {
		f.pages[key] = StateFailed
		if redirected {
			f.pages[final] = StateFailed
		}
		f.stats.PagesFailed++
		return false
	}
	f.pages[key] = StateStored
	stored := key
	if redirected {
		f.pages[final] = StateStored
		stored = final
	}
	f.visitedPages[key] = f.mapper.LocalPathURL(mustParse(stored), true)
	f.stats.PagesStored++
	return true
}

// Redirect ties a page being fetched to the same-site URL it redirected to.
// The final URL is claimed so it is never fetched on its own, and Commit
// records the page under the final URL's local path. It returns false when
// the final URL is off-site, the same page, or already claimed.
func (f *Frontier) Redirect(rawURL, finalURL string) bool {
	key := f.key(rawURL)
	final, ok := f.pageKey(finalURL)
	if !ok || final == key {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pages[key] != StateFetching {
		return false
	}
	if _, taken := f.redirects[key]; taken {
		return false
	}
	if s := f.pages[final]; s != StateUnknown && s != StateQueued {
		return false
	}
	f.pages[final] = StateFetching
	f.redirects[key] = final
	return true
}

// Fail marks a page as permanently failed and releases its budget slot.
func (f *Frontier) Fail(rawURL string) {
	key := f.key(rawURL)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pages[key] != StateFetching {
		return
	}
	f.reserved--
	f.pages[key] = StateFailed
	if final, ok := f.redirects[key]; ok {
		f.pages[final] = StateFailed
		delete(f.redirects, key)
	}
	f.stats.PagesFailed++
	f.cond.Broadcast()
}

// Done tells the Frontier the worker has finished with a URL returned by
// Next, including enqueuing whatever the page linked to.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active--
	f.cond.Broadcast()
}

// ClaimAsset reserves an asset URL for download. Only the first claim of a
// canonical URL succeeds.
func (f *Frontier) ClaimAsset(rawURL string) bool {
	key := f.key(rawURL)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, seen := f.assets[key]; seen {
		return false
	}
	f.assets[key] = StateFetching
	return true
}

// CommitAsset records a stored asset.
func (f *Frontier) CommitAsset(rawURL string) {
	key := f.key(rawURL)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assets[key] != StateFetching {
		return
	}
	f.assets[key] = StateStored
	f.visitedAssets[key] = f.mapper.LocalPathURL(mustParse(key), false)
	f.stats.AssetsStored++
}

// FailAsset marks an asset as permanently failed.
func (f *Frontier) FailAsset(rawURL string) {
	key := f.key(rawURL)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assets[key] != StateFetching {
		return
	}
	f.assets[key] = StateFailed
	f.stats.AssetsFailed++
}

// PageState returns the state of a page URL.
func (f *Frontier) PageState(rawURL string) State {
	key := f.key(rawURL)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages[key]
}

// VisitedPages returns the canonical URLs of stored pages, sorted.
func (f *Frontier) VisitedPages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedKeys(f.visitedPages)
}

// VisitedAssets returns the canonical URLs of stored assets, sorted.
func (f *Frontier) VisitedAssets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedKeys(f.visitedAssets)
}

// QueueDepth returns the number of URLs waiting to be fetched.
func (f *Frontier) QueueDepth() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Stats returns a snapshot of the run counters.
func (f *Frontier) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *Frontier) snapshot() (pages, assets map[string]string, failed []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pages = make(map[string]string, len(f.visitedPages))
	for k, v := range f.visitedPages {
		pages[k] = v
	}
	assets = make(map[string]string, len(f.visitedAssets))
	for k, v := range f.visitedAssets {
		assets[k] = v
	}
	for k, s := range f.pages {
		if s == StateFailed {
			failed = append(failed, k)
		}
	}
	for k, s := range f.assets {
		if s == StateFailed {
			failed = append(failed, k)
		}
	}
	sort.Strings(failed)
	return pages, assets, failed
}

// pageKey canonicalizes raw and filters out non-http and off-site URLs.
func (f *Frontier) pageKey(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || !mapping.IsHTTP(u) || u.Host == "" {
		return "", false
	}
	if !f.hosts.Contains(mapping.Host(u)) {
		return "", false
	}
	return mapping.CanonicalURL(u), true
}

func (f *Frontier) key(raw string) string {
	key, err := mapping.Canonical(raw)
	if err != nil {
		return raw
	}
	return key
}

func mustParse(canonical string) *url.URL {
	u, err := url.Parse(canonical)
	if err != nil {
		return &url.URL{Path: canonical}
	}
	return u
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
