package sitemeta

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eringen/sitemeta/internal/metrics"
	"github.com/eringen/sitemeta/prerender"
)

// BuildReport summarizes one rebuild.
type BuildReport struct {
	Routes    int              `json:"routes"`
	Prerender prerender.Report `json:"prerender"`
	Started   time.Time        `json:"started"`
	Finished  time.Time        `json:"finished"`
}

// Builder regenerates the static SEO artifacts in DistDir: sitemap.xml,
// robots.txt, feed.xml and a prerendered index.html per indexable route.
type Builder struct {
	// Renderer overrides the page source. When nil, each run reads the SPA
	// shell from DistDir/index.html, falling back to the embedded shell.
	Renderer    prerender.Renderer
	Concurrency int
	Timeout     time.Duration // per triggered run (default 10m)

	cache    *MetaCache
	resolver *Resolver
	config   func() SiteConfig

	runMu sync.Mutex // serializes Run

	mu      sync.Mutex
	running bool
	pending bool
	last    *BuildReport
	wg      sync.WaitGroup
}

// NewBuilder creates a Builder reading content through cache and resolver.
func NewBuilder(cache *MetaCache, resolver *Resolver, config func() SiteConfig) *Builder {
	return &Builder{cache: cache, resolver: resolver, config: config}
}

// Run performs one rebuild. Concurrent calls run one after another.
func (b *Builder) Run(ctx context.Context) (BuildReport, error) {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	report, err := b.run(ctx)
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case !report.Prerender.OK():
		result = "partial"
	}
	metrics.Rebuilds.WithLabelValues(result).Inc()
	if err == nil {
		b.mu.Lock()
		b.last = &report
		b.mu.Unlock()
	}
	return report, err
}

func (b *Builder) run(ctx context.Context) (BuildReport, error) {
	report := BuildReport{Started: time.Now()}
	cfg := b.config()
	b.cache.Invalidate()

	routes, err := CollectRoutes(ctx, cfg, b.cache)
	if err != nil {
		return report, fmt.Errorf("collect routes: %w", err)
	}
	if err := os.MkdirAll(cfg.DistDir, 0o755); err != nil {
		return report, fmt.Errorf("create dist dir: %w", err)
	}

	posts, err := b.cache.ListPosts(ctx, "")
	if err != nil {
		return report, err
	}
	artifacts := map[string]func(io.Writer) error{
		"sitemap.xml": func(w io.Writer) error { return WriteSitemap(w, cfg.URL, routes) },
		"robots.txt":  func(w io.Writer) error { return WriteRobots(w, cfg.URL, cfg.Disallow) },
		"feed.xml":    func(w io.Writer) error { return WriteFeed(w, cfg, posts) },
	}
	for name, write := range artifacts {
		var buf bytes.Buffer
		if err := write(&buf); err != nil {
			return report, fmt.Errorf("render %s: %w", name, err)
		}
		if err := prerender.WriteFile(filepath.Join(cfg.DistDir, name), buf.Bytes()); err != nil {
			return report, fmt.Errorf("write %s: %w", name, err)
		}
	}

	renderer := b.Renderer
	if renderer == nil {
		shell, err := prerender.NewShellRenderer(filepath.Join(cfg.DistDir, "index.html"), EmbeddedAssets, "embedded/shell.html")
		if err != nil {
			return report, err
		}
		renderer = shell
	}

	var paths []string
	for _, r := range routes {
		if !r.NoIndex {
			paths = append(paths, r.Path)
		}
	}
	report.Routes = len(paths)

	pr := &prerender.Prerenderer{
		Renderer:    renderer,
		Meta:        b.resolver,
		OutDir:      cfg.DistDir,
		Concurrency: b.Concurrency,
	}
	report.Prerender, err = pr.Run(ctx, paths)
	report.Finished = time.Now()
	if err != nil {
		return report, fmt.Errorf("prerender: %w", err)
	}

	log.Info().
		Int("routes", report.Routes).
		Int("rendered", len(report.Prerender.Rendered)).
		Int("failed", len(report.Prerender.Failed)).
		Dur("took", report.Finished.Sub(report.Started)).
		Msg("rebuild finished")
	return report, nil
}

// Trigger starts a rebuild in the background. If one is already running it
// schedules a single follow-up run instead and returns false.
func (b *Builder) Trigger() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		b.pending = true
		return false
	}
	b.running = true
	b.wg.Add(1)
	go b.loop()
	return true
}

func (b *Builder) loop() {
	defer b.wg.Done()
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	for {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if _, err := b.Run(ctx); err != nil {
			log.Error().Err(err).Msg("rebuild failed")
		}
		cancel()

		b.mu.Lock()
		if !b.pending {
			b.running = false
			b.mu.Unlock()
			return
		}
		b.pending = false
		b.mu.Unlock()
	}
}

// Wait blocks until triggered rebuilds, including follow-ups, finish.
func (b *Builder) Wait() {
	b.wg.Wait()
}

// Last returns the most recent successful report.
func (b *Builder) Last() (BuildReport, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		return BuildReport{}, false
	}
	return *b.last, true
}
