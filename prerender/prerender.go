// Package prerender writes static HTML snapshots of SPA routes with their
// SEO metadata injected, so crawlers and static hosts get complete <head>
// markup without executing JavaScript.
package prerender

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/eringen/sitemeta/internal/metrics"
	"github.com/eringen/sitemeta/views"
)

// DefaultConcurrency is the number of routes rendered in parallel.
const DefaultConcurrency = 4

// Renderer produces the HTML of a route before metadata injection.
type Renderer interface {
	Render(ctx context.Context, path string) (string, error)
}

// MetaSource resolves the metadata of a route.
type MetaSource interface {
	Resolve(ctx context.Context, path string) (views.Meta, error)
}

// Failure is a route that could not be prerendered.
type Failure struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// Report summarizes a run.
type Report struct {
	Rendered []string  `json:"rendered"`
	Failed   []Failure `json:"failed"`
}

// OK reports whether every route rendered.
func (r Report) OK() bool {
	return len(r.Failed) == 0
}

// Prerenderer renders routes and writes them below OutDir.
type Prerenderer struct {
	Renderer    Renderer
	Meta        MetaSource
	OutDir      string
	Concurrency int
}

// Run renders every path. A failing route is recorded in the report and
// does not stop the others; only context cancellation aborts the run.
func (p *Prerenderer) Run(ctx context.Context, paths []string) (Report, error) {
	limit := p.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	var (
		mu     sync.Mutex
		report Report
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, route := range paths {
		route := route
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := p.renderOne(gctx, route)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				metrics.PrerenderPages.WithLabelValues("failed").Inc()
				log.Warn().Err(err).Str("path", route).Msg("prerender failed")
				report.Failed = append(report.Failed, Failure{Path: route, Err: err.Error()})
				return nil
			}
			metrics.PrerenderPages.WithLabelValues("ok").Inc()
			report.Rendered = append(report.Rendered, route)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	sort.Strings(report.Rendered)
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Path < report.Failed[j].Path })
	return report, nil
}

func (p *Prerenderer) renderOne(ctx context.Context, route string) error {
	meta, err := p.Meta.Resolve(ctx, route)
	if err != nil {
		return fmt.Errorf("resolve metadata: %w", err)
	}
	page, err := p.Renderer.Render(ctx, route)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	out, err := Inject(page, meta)
	if err != nil {
		return err
	}
	return WriteFile(OutputPath(p.OutDir, route), []byte(out))
}

// OutputPath maps a route to its index.html below dir.
func OutputPath(dir, route string) string {
	clean := path.Clean("/" + route)
	return filepath.Join(dir, filepath.FromSlash(clean), "index.html")
}

// WriteFile atomically replaces name with data, creating parent directories.
func WriteFile(name string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(name), ".prerender-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), name)
}

// Inject replaces the SEO tags of an HTML document with those of meta.
func Inject(page string, meta views.Meta) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find(views.ManagedSelector).Remove()
	head := doc.Find("head")
	if head.Length() == 0 {
		return "", errors.New("document has no head")
	}
	head.AppendHtml(views.HeadHTML(meta))
	if meta.Locale != "" {
		doc.Find("html").SetAttr("lang", views.Lang(meta.Locale))
	}
	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("serialize html: %w", err)
	}
	if !strings.HasPrefix(strings.ToLower(out), "<!doctype") {
		out = "<!DOCTYPE html>\n" + out
	}
	return out, nil
}
