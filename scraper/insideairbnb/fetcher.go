package insideairbnb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/sync/errgroup"

	"rental-insights/config"
	"rental-insights/utils"
)

// ExportLink is one listing export published for a city
type ExportLink struct {
	City string
	Slug string
	Date time.Time
	URL  string
}

// exportPath matches .../<country>/<region>/<city-slug>/<yyyy-mm-dd>/data/listings.csv.gz
var exportPath = regexp.MustCompile(`/([^/]+)/([^/]+)/([^/]+)/(\d{4}-\d{2}-\d{2})/data/listings\.csv\.gz$`)

// Fetcher discovers and downloads the per-city listing exports
type Fetcher struct {
	cfg         *config.Config
	logger      *utils.Logger
	rateLimiter *utils.RateLimiter
	tracker     *utils.URLTracker
	client      *http.Client
}

// NewFetcher creates a new Fetcher
func NewFetcher(cfg *config.Config, logger *utils.Logger) *Fetcher {
	return &Fetcher{
		cfg:         cfg,
		logger:      logger,
		rateLimiter: utils.NewRateLimiter(cfg.Fetch.RateLimitDelay),
		tracker:     utils.NewURLTracker(),
		client:      &http.Client{Timeout: cfg.Fetch.Timeout},
	}
}

// newContext creates a fresh chromedp context (one browser, one tab)
func (f *Fetcher) newContext(parent context.Context) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("log-level", "3"), // suppress Chrome logs
		chromedp.WindowSize(1280, 900),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, opts...)
	ctx, cancelCtx := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	cancel := func() {
		cancelCtx()
		cancelAlloc()
	}
	return ctx, cancel
}

// Fetch discovers the newest export of every configured city and downloads it
func (f *Fetcher) Fetch(ctx context.Context) ([]string, error) {
	links, err := f.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, links)
}

// Discover loads the data page in a headless browser and returns the newest
// export link per configured city
func (f *Fetcher) Discover(ctx context.Context) ([]ExportLink, error) {
	f.logger.Info("Loading %s ...", f.cfg.Fetch.InsideAirbnbURL)

	bctx, cancel := f.newContext(ctx)
	defer cancel()
	bctx, cancelTimeout := context.WithTimeout(bctx, 3*time.Minute)
	defer cancelTimeout()

	var hrefs []string
	err := utils.RetryWithBackoff(ctx, f.cfg.Fetch.MaxRetries, func() error {
		return chromedp.Run(bctx,
			chromedp.Navigate(f.cfg.Fetch.InsideAirbnbURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Evaluate(`
				Array.from(document.querySelectorAll('a[href$="/data/listings.csv.gz"]'))
					.map(function(a) { return a.href; })
			`, &hrefs),
		)
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("export discovery failed: %w", err)
	}
	f.logger.Info("Found %d listing export links", len(hrefs))

	links := SelectLatest(hrefs, f.cfg.Fetch.Country, f.cfg.Cities)
	found := make(map[string]bool, len(links))
	for _, l := range links {
		found[l.City] = true
		f.logger.Info("  %s -> %s (%s)", l.City, l.URL, l.Date.Format("2006-01-02"))
	}
	for _, c := range f.cfg.Cities {
		if !found[c] {
			f.logger.Warn("No export found for %s", c)
		}
	}
	return links, nil
}

// SelectLatest keeps, per configured city, the newest export under country
func SelectLatest(hrefs []string, country string, cities []string) []ExportLink {
	bySlug := make(map[string]string, len(cities))
	for _, c := range cities {
		bySlug[Slug(c)] = c
	}

	latest := make(map[string]ExportLink)
	for _, href := range hrefs {
		m := exportPath.FindStringSubmatch(href)
		if m == nil {
			continue
		}
		if country != "" && m[1] != country {
			continue
		}
		city, ok := bySlug[m[3]]
		if !ok {
			continue
		}
		date, err := time.Parse("2006-01-02", m[4])
		if err != nil {
			continue
		}
		if cur, ok := latest[city]; !ok || date.After(cur.Date) {
			latest[city] = ExportLink{City: city, Slug: m[3], Date: date, URL: href}
		}
	}

	out := make([]ExportLink, 0, len(latest))
	for _, l := range latest {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].City < out[j].City })
	return out
}

// Slug renders a city name the way export URLs spell it ("San Mateo County" -> "san-mateo-county")
func Slug(city string) string {
	return strings.Join(strings.Fields(strings.ToLower(city)), "-")
}

// Download fetches every link into DataDir/<city>/<source file>.gz with at
// most MaxConcurrency transfers in flight. It returns the written paths.
func (f *Fetcher) Download(ctx context.Context, links []ExportLink) ([]string, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Fetch.MaxConcurrency)

	paths := make([]string, len(links))
	for i, link := range links {
		dest := filepath.Join(f.cfg.DataDir, link.City, f.cfg.SourceFileName+".gz")
		if !f.tracker.Claim(link.URL, dest) {
			f.logger.Debug("Skipping duplicate export %s -> %s", link.URL, dest)
			continue
		}
		g.Go(func() error {
			if err := f.rateLimiter.Wait(gctx); err != nil {
				f.tracker.Release(link.URL)
				return err
			}
			err := utils.RetryWithBackoff(gctx, f.cfg.Fetch.MaxRetries, func() error {
				return f.downloadFile(gctx, link.URL, dest)
			}, f.logger)
			if err != nil {
				f.tracker.Release(link.URL)
				return fmt.Errorf("download %s: %w", link.City, err)
			}
			paths[i] = dest
			f.logger.Info("Downloaded %s -> %s", link.City, dest)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := paths[:0]
	for _, p := range paths {
		if p != "" {
			out = append(out, p)
		}
	}
	f.logger.Info("Downloaded %d exports (%d unique URLs)", len(out), f.tracker.Count())
	return out, nil
}

// downloadFile streams url to dest through a temp file in the same directory
func (f *Fetcher) downloadFile(ctx context.Context, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".part-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
