package sitemeta

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestBuilder(t *testing.T, routes []Route) (*Builder, *Store, string) {
	t.Helper()
	s := newTestStore(t)
	dist := filepath.Join(t.TempDir(), "dist")
	cfg := SiteConfig{
		Name:        "Folio",
		URL:         "https://folio.dev",
		Description: "Projects and writing by Sam.",
		DistDir:     dist,
		Routes:      NormalizeRoutes(routes),
		Disallow:    []string{"/admin"},
	}
	cfg.setDefaults()
	config := func() SiteConfig { return cfg }
	cache := NewMetaCache(s, time.Hour)
	return NewBuilder(cache, NewResolver(cache, config), config), s, dist
}

func TestBuilderRun(t *testing.T) {
	b, s, dist := newTestBuilder(t, []Route{{Path: "/"}, {Path: "/about", Title: "About"}, {Path: "/draft", NoIndex: true}})
	s.SavePost(context.Background(), BlogPost{Slug: "hello", Title: "Hello", Date: "2026-01-02", Published: true})

	report, err := b.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Routes != 3 || !report.Prerender.OK() {
		t.Errorf("report = %+v", report)
	}

	sitemap, err := os.ReadFile(filepath.Join(dist, "sitemap.xml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(sitemap), "https://folio.dev/blog/hello") || strings.Contains(string(sitemap), "/draft") {
		t.Errorf("sitemap.xml = %s", sitemap)
	}
	robots, _ := os.ReadFile(filepath.Join(dist, "robots.txt"))
	if !strings.Contains(string(robots), "Disallow: /admin") {
		t.Errorf("robots.txt = %s", robots)
	}
	if _, err := os.Stat(filepath.Join(dist, "feed.xml")); err != nil {
		t.Errorf("feed.xml: %v", err)
	}

	about, err := os.ReadFile(filepath.Join(dist, "about", "index.html"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(about), "<title>About | Folio</title>") {
		t.Errorf("about/index.html missing metadata:\n%s", about)
	}
	if _, err := os.Stat(filepath.Join(dist, "draft", "index.html")); !os.IsNotExist(err) {
		t.Error("noindex route was prerendered")
	}
	post, _ := os.ReadFile(filepath.Join(dist, "blog", "hello", "index.html"))
	if !strings.Contains(string(post), `content="article"`) {
		t.Errorf("post page missing og:type article:\n%s", post)
	}

	last, ok := b.Last()
	if !ok || last.Routes != report.Routes {
		t.Errorf("Last() = %+v, %v", last, ok)
	}
}

func TestBuilderRunTwiceKeepsOneHead(t *testing.T) {
	b, _, dist := newTestBuilder(t, []Route{{Path: "/", Title: "Home"}})
	for i := 0; i < 2; i++ {
		if _, err := b.Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
	}
	index, _ := os.ReadFile(filepath.Join(dist, "index.html"))
	if n := strings.Count(string(index), "<title>"); n != 1 {
		t.Errorf("index.html has %d <title> elements after two runs", n)
	}
}

type failingRenderer struct{}

func (failingRenderer) Render(ctx context.Context, path string) (string, error) {
	if path == "/broken" {
		return "", errors.New("boom")
	}
	return "<html><head></head><body></body></html>", nil
}

func TestBuilderRunPartialFailure(t *testing.T) {
	b, _, _ := newTestBuilder(t, []Route{{Path: "/"}, {Path: "/broken"}})
	b.Renderer = failingRenderer{}
	report, err := b.Run(context.Background())
	if err != nil {
		t.Fatalf("a failing route must not fail the run: %v", err)
	}
	if report.Prerender.OK() || len(report.Prerender.Failed) != 1 || report.Prerender.Failed[0].Path != "/broken" {
		t.Errorf("report = %+v", report.Prerender)
	}
}

// blockingRenderer holds every render until release is closed and counts
// how many times "/" was rendered.
type blockingRenderer struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	runs    atomic.Int32
}

func (r *blockingRenderer) Render(ctx context.Context, path string) (string, error) {
	r.runs.Add(1)
	r.once.Do(func() { close(r.entered) })
	select {
	case <-r.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "<html><head></head><body></body></html>", nil
}

func TestBuilderTriggerCoalesces(t *testing.T) {
	b, _, _ := newTestBuilder(t, []Route{{Path: "/"}})
	r := &blockingRenderer{entered: make(chan struct{}), release: make(chan struct{})}
	b.Renderer = r

	if !b.Trigger() {
		t.Fatal("first Trigger should start a run")
	}
	<-r.entered
	for i := 0; i < 3; i++ {
		if b.Trigger() {
			t.Fatal("Trigger started a second concurrent run")
		}
	}
	close(r.release)
	b.Wait()

	if got := r.runs.Load(); got != 2 {
		t.Errorf("rendered %d times, want the first run plus one follow-up", got)
	}
	if !b.Trigger() {
		t.Error("Trigger after completion should start a new run")
	}
	b.Wait()
}
