package fetcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/panjf2000/ants/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/ratelimit"

	"kptv-browser/work/cache"
	"kptv-browser/work/client"
	"kptv-browser/work/config"
	"kptv-browser/work/logger"
	"kptv-browser/work/metrics"
	"kptv-browser/work/utils"
)

// Result is the settled outcome of fetching one source. Exactly one of Text
// (possibly empty) or Err is meaningful.
type Result struct {
	Source config.SourceConfig
	Text   string
	Err    error
	Cached bool
}

// OK reports whether the source was fetched successfully.
func (r Result) OK() bool { return r.Err == nil }

// Status is the last known fetch outcome of a source, exposed for diagnostics.
type Status struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	OK        bool      `json:"ok"`
	Cached    bool      `json:"cached"`
	Error     string    `json:"error,omitempty"`
	Bytes     int       `json:"bytes"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Fetcher retrieves playlist documents concurrently on a shared worker pool.
type Fetcher struct {
	cfg        *config.Config
	httpClient *client.HeaderSettingClient
	pool       *ants.Pool
	cache      *cache.PlaylistCache
	limiters   map[string]ratelimit.Limiter // per-source limiters keyed by source URL
	limiterMu  sync.Mutex
	status     *xsync.MapOf[string, Status] // last outcome keyed by source URL
}

// New wires a fetcher. cache may be nil to disable body caching.
func New(cfg *config.Config, httpClient *client.HeaderSettingClient, pool *ants.Pool, playlistCache *cache.PlaylistCache) *Fetcher {
	return &Fetcher{
		cfg:        cfg,
		httpClient: httpClient,
		pool:       pool,
		cache:      playlistCache,
		limiters:   make(map[string]ratelimit.Limiter),
		status:     xsync.NewMapOf[string, Status](),
	}
}

// FetchAll fetches every source concurrently and waits for all of them to
// settle. One source failing never cancels or fails another. Results are
// returned in the order of sources.
func (f *Fetcher) FetchAll(ctx context.Context, sources []config.SourceConfig) []Result {
	logger.Debug("{fetcher - FetchAll} fetching %d sources", len(sources))

	results := make([]Result, len(sources))
	var wg sync.WaitGroup

	for i := range sources {
		src := sources[i]
		wg.Add(1)

		task := func() {
			defer wg.Done()
			results[i] = f.fetchOne(ctx, src)
		}
		if err := f.pool.Submit(task); err != nil {
			wg.Done()
			results[i] = Result{Source: src, Err: fmt.Errorf("failed to schedule fetch: %w", err)}
			f.record(results[i])
		}
	}

	wg.Wait()

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	logger.Info("{fetcher - FetchAll} %d/%d sources fetched", len(sources)-failed, len(sources))

	return results
}

// Statuses returns the last known outcome of every source that has been fetched.
func (f *Fetcher) Statuses() []Status {
	out := make([]Status, 0, f.status.Size())
	for _, src := range f.cfg.GetSourcesByOrder() {
		if st, ok := f.status.Load(src.URL); ok {
			out = append(out, st)
		}
	}
	return out
}

// ClearCache drops cached bodies so the next fetch goes to the sources.
func (f *Fetcher) ClearCache() {
	f.cache.Clear()
}

func (f *Fetcher) fetchOne(ctx context.Context, src config.SourceConfig) Result {
	if body, ok := f.cache.Get(src.URL); ok {
		logger.Debug("{fetcher - fetchOne} serving cached playlist for %s", utils.LogURL(f.cfg, src.URL))
		res := Result{Source: src, Text: body, Cached: true}
		f.record(res)
		return res
	}

	f.limiterFor(src).Take()

	body, err := f.download(ctx, &src)
	res := Result{Source: src, Text: body, Err: err}
	if err != nil {
		logger.Warn("{fetcher - fetchOne} failed to fetch %s (%s): %v", src.Name, utils.LogURL(f.cfg, src.URL), err)
	} else {
		f.cache.Set(src.URL, body)
		logger.Debug("{fetcher - fetchOne} fetched %d bytes from %s", len(body), utils.LogURL(f.cfg, src.URL))
	}

	f.record(res)
	return res
}

func (f *Fetcher) download(ctx context.Context, src *config.SourceConfig) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req, src)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	reader, err := maybeGunzip(resp.Body)
	if err != nil {
		return "", err
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	return string(data), nil
}

// maybeGunzip transparently decompresses bodies starting with the gzip magic
// bytes. A ".m3u.gz" served with on-the-fly decompression arrives as plain text
// and is passed through.
func maybeGunzip(body io.Reader) (io.Reader, error) {
	buffered := bufio.NewReader(body)
	magic, err := buffered.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	if len(magic) < 2 || magic[0] != 0x1f || magic[1] != 0x8b {
		return buffered, nil
	}

	gz, err := gzip.NewReader(buffered)
	if err != nil {
		return nil, fmt.Errorf("invalid gzip body: %w", err)
	}
	return gz, nil
}

func (f *Fetcher) limiterFor(src config.SourceConfig) ratelimit.Limiter {
	f.limiterMu.Lock()
	defer f.limiterMu.Unlock()

	if l, ok := f.limiters[src.URL]; ok {
		return l
	}
	rate := src.RequestsPerSecond
	if rate <= 0 {
		rate = 5
	}
	l := ratelimit.New(rate)
	f.limiters[src.URL] = l
	return l
}

func (f *Fetcher) record(r Result) {
	st := Status{
		Name:      r.Source.Name,
		URL:       utils.LogURL(f.cfg, r.Source.URL),
		OK:        r.OK(),
		Cached:    r.Cached,
		Bytes:     len(r.Text),
		FetchedAt: time.Now(),
	}
	result := "ok"
	switch {
	case r.Err != nil:
		st.Error = r.Err.Error()
		result = "failed"
	case r.Cached:
		result = "cached"
	}
	f.status.Store(r.Source.URL, st)
	metrics.PlaylistFetches.WithLabelValues(r.Source.Name, result).Inc()
}
