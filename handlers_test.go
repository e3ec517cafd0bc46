package sitemeta

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/sitemeta/metacheck"
)

const (
	googlebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	browserUA   = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
	testSecret  = "test-jwt-secret"
)

const testSiteFile = `name: Folio
description: Projects and writing by Sam, a developer who builds small fast web tools.
author: Sam
routes:
  - path: /
    priority: 1
  - path: /about
    title: About
  - path: /private
    noindex: true
disallow:
  - /admin
`

const testShell = `<!DOCTYPE html><html lang="en"><head><title>Loading</title></head><body><div id="root"></div></body></html>`

func newTestApp(t *testing.T, cfg SiteConfig, opts ...Option) *App {
	t.Helper()
	dir := t.TempDir()
	siteFile := filepath.Join(dir, "site.yaml")
	if err := os.WriteFile(siteFile, []byte(testSiteFile), 0o644); err != nil {
		t.Fatal(err)
	}
	dist := filepath.Join(dir, "dist")
	os.MkdirAll(dist, 0o755)
	if err := os.WriteFile(filepath.Join(dist, "index.html"), []byte(testShell), 0o644); err != nil {
		t.Fatal(err)
	}

	if cfg.URL == "" {
		cfg.URL = "https://folio.dev"
	}
	cfg.SiteFile = siteFile
	cfg.DistDir = dist
	cfg.UploadsDir = filepath.Join(dir, "uploads")
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = testSecret
	}

	store := newTestStore(t)
	a := New(cfg, append([]Option{WithStore(store)}, opts...)...)
	if err := a.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func doRequest(a *App, method, target, ua string, body string, header http.Header) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T) http.Header {
	t.Helper()
	tok, err := IssueToken(testSecret, "sam", "editor", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return http.Header{"Authorization": {"Bearer " + tok}}
}

func TestCrawlerGetsMetadata(t *testing.T) {
	a := newTestApp(t, SiteConfig{})
	rec := doRequest(a, http.MethodGet, "/about", googlebotUA, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(BotHeader); got != "Googlebot" {
		t.Errorf("%s = %q, want Googlebot", BotHeader, got)
	}
	if vary := rec.Header().Values("Vary"); !slices.Contains(vary, "User-Agent") {
		t.Errorf("Vary = %q, want User-Agent", vary)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"<title>About | Folio</title>",
		`<link rel="canonical" href="https://folio.dev/about">`,
		`property="og:title"`,
		`name="twitter:card"`,
		`application/ld+json`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}

	report, err := metacheck.Check(body, metacheck.Expect{Title: "About | Folio", Canonical: "https://folio.dev/about"})
	if err != nil {
		t.Fatal(err)
	}
	if !report.OK() {
		t.Errorf("crawler document has errors: %+v", report.Errors())
	}

	a.bg.Wait()
	hits, err := a.Store.ListCrawlerHits(context.Background(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].BotName != "Googlebot" || hits[0].Path != "/about" {
		t.Errorf("hits = %+v", hits)
	}
}

func TestCrawlerDuringShutdown(t *testing.T) {
	a := newTestApp(t, SiteConfig{})
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	ran := false
	if a.goBackground(func(context.Context) { ran = true }) {
		t.Error("goBackground accepted work after Close")
	}
	a.bg.Wait()
	if ran {
		t.Error("background work ran after Close")
	}

	rec := doRequest(a, http.MethodGet, "/about", googlebotUA, "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	hits, err := a.Store.ListCrawlerHits(context.Background(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %+v, want none recorded after Close", hits)
	}
}

func TestCrawlerHomeListsPosts(t *testing.T) {
	a := newTestApp(t, SiteConfig{})
	a.Store.SavePost(context.Background(), BlogPost{Slug: "hello", Title: "Hello", Date: "2026-01-02", Content: "# Hi\n\nBody text", Published: true})

	rec := doRequest(a, http.MethodGet, "/", googlebotUA, "", nil)
	if !strings.Contains(rec.Body.String(), `<a href="/blog/hello">Hello</a>`) {
		t.Errorf("home page should link posts:\n%s", rec.Body.String())
	}

	rec = doRequest(a, http.MethodGet, "/blog/hello", googlebotUA, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `content="article"`) || !strings.Contains(body, "Body text") {
		t.Errorf("post document missing article metadata or content:\n%s", body)
	}
}

func TestCrawlerUnknownSlug(t *testing.T) {
	a := newTestApp(t, SiteConfig{})
	rec := doRequest(a, http.MethodGet, "/blog/missing", googlebotUA, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Page not found") || !strings.Contains(body, "noindex") {
		t.Errorf("404 document = %s", body)
	}
}

func TestHumanGetsSPA(t *testing.T) {
	a := newTestApp(t, SiteConfig{})
	for _, target := range []string{"/", "/about", "/blog/anything"} {
		rec := doRequest(a, http.MethodGet, target, browserUA, "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", target, rec.Code)
			continue
		}
		if !strings.Contains(rec.Body.String(), `<div id="root">`) {
			t.Errorf("%s: expected the SPA shell", target)
		}
		if rec.Header().Get(BotHeader) != "" {
			t.Errorf("%s: human response carries %s", target, BotHeader)
		}
		if vary := rec.Header().Values("Vary"); !slices.Contains(vary, "User-Agent") {
			t.Errorf("%s: Vary = %q, want User-Agent", target, vary)
		}
	}
}

func TestAssetsBypassCrawlerDetection(t *testing.T) {
	a := newTestApp(t, SiteConfig{})
	os.WriteFile(filepath.Join(a.Config().DistDir, "app.js"), []byte("console.log(1)"), 0o644)

	rec := doRequest(a, http.MethodGet, "/app.js", googlebotUA, "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "console.log(1)" {
		t.Errorf("asset: status = %d body = %q", rec.Code, rec.Body.String())
	}
	rec = doRequest(a, http.MethodGet, "/missing.js", browserUA, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing asset: status = %d, want 404", rec.Code)
	}
}

func TestTrailingSlashRedirect(t *testing.T) {
	a := newTestApp(t, SiteConfig{})
	rec := doRequest(a, http.MethodGet, "/about/", googlebotUA, "", nil)
	if rec.Code != http.StatusMovedPermanently || rec.Header().Get("Location") != "/about" {
		t.Errorf("status = %d location = %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestHumanProxiedToOrigin(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("origin:" + r.URL.Path))
	}))
	defer origin.Close()

	a := newTestApp(t, SiteConfig{OriginURL: origin.URL})
	rec := doRequest(a, http.MethodGet, "/about", browserUA, "", nil)
	if rec.Body.String() != "origin:/about" {
		t.Errorf("body = %q, want the origin response", rec.Body.String())
	}
	if vary := rec.Header().Values("Vary"); !slices.Contains(vary, "User-Agent") {
		t.Errorf("Vary = %q, want User-Agent", vary)
	}

	rec = doRequest(a, http.MethodGet, "/about", googlebotUA, "", nil)
	if rec.Header().Get(BotHeader) != "Googlebot" {
		t.Error("crawlers must not be proxied")
	}
}

func TestSitemapAndRobotsEndpoints(t *testing.T) {
	a := newTestApp(t, SiteConfig{})
	a.Store.SavePost(context.Background(), BlogPost{Slug: "hello", Title: "Hello", Date: "2026-01-02", Published: true})

	rec := doRequest(a, http.MethodGet, "/sitemap.xml", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sitemap status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"<loc>https://folio.dev/</loc>", "<loc>https://folio.dev/about</loc>", "<loc>https://folio.dev/blog/hello</loc>"} {
		if !strings.Contains(body, want) {
			t.Errorf("sitemap missing %s", want)
		}
	}
	if strings.Contains(body, "/private") {
		t.Error("sitemap lists a noindex route")
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=3600" {
		t.Errorf("Cache-Control = %q", got)
	}

	rec = doRequest(a, http.MethodGet, "/robots.txt", "", "", nil)
	if !strings.Contains(rec.Body.String(), "Disallow: /admin") ||
		!strings.Contains(rec.Body.String(), "Sitemap: https://folio.dev/sitemap.xml") {
		t.Errorf("robots.txt = %q", rec.Body.String())
	}

	rec = doRequest(a, http.MethodGet, "/feed.xml", "", "", nil)
	if !strings.Contains(rec.Body.String(), "<link>https://folio.dev/blog/hello</link>") {
		t.Errorf("feed = %s", rec.Body.String())
	}
}

func TestOGImageEndpoint(t *testing.T) {
	a := newTestApp(t, SiteConfig{})
	rec := doRequest(a, http.MethodGet, "/functions/v1/og-image?title=Hello", "", "", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/svg+xml" {
		t.Fatalf("svg: status = %d type = %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "Hello") {
		t.Error("svg card missing title")
	}

	rec = doRequest(a, http.MethodGet, "/og-image?format=png", "", "", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("png: status = %d type = %q", rec.Code, rec.Header().Get("Content-Type"))
	}

	rec = doRequest(a, http.MethodGet, "/og-image?format=gif", "", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("gif: status = %d, want 400", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	a := newTestApp(t, SiteConfig{})
	rec := doRequest(a, http.MethodGet, "/healthz", "", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestDevModeRequiresToken(t *testing.T) {
	a := newTestApp(t, SiteConfig{})
	rec := doRequest(a, http.MethodGet, "/functions/v1/dev-mode-changes", "", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
		t.Errorf("expected a JSON error body, got %s", rec.Body.String())
	}

	wrong, _ := IssueToken("other-secret", "sam", "", time.Hour)
	rec = doRequest(a, http.MethodGet, "/functions/v1/dev-mode-changes", "", "",
		http.Header{"Authorization": {"Bearer " + wrong}})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong secret: status = %d, want 401", rec.Code)
	}
}

func TestDevModeRateLimitsFailures(t *testing.T) {
	a := newTestApp(t, SiteConfig{})
	bad := http.Header{"Authorization": {"Bearer nope"}}
	for i := 0; i < 10; i++ {
		if rec := doRequest(a, http.MethodGet, "/functions/v1/dev-mode-changes", "", "", bad); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d", i+1, rec.Code)
		}
	}
	rec := doRequest(a, http.MethodGet, "/functions/v1/dev-mode-changes", "", "", bearer(t))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429 even with a valid token", rec.Code)
	}
}

func TestDevModeChangeLifecycle(t *testing.T) {
	a := newTestApp(t, SiteConfig{})
	ctx := context.Background()
	auth := bearer(t)
	a.Store.SaveSEOMeta(ctx, SEOMeta{Path: "/about", Title: "Old title"})

	rec := doRequest(a, http.MethodPost, "/functions/v1/dev-mode-changes", "", `{"path":"/nowhere","field":"canonical","new_value":"x"}`, auth)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field: status = %d, want 400", rec.Code)
	}
	rec = doRequest(a, http.MethodPost, "/functions/v1/dev-mode-changes", "", `{"field":"title","new_value":"x"}`, auth)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing path: status = %d, want 400", rec.Code)
	}

	rec = doRequest(a, http.MethodPost, "/functions/v1/dev-mode-changes", "", `{"path":"about/","field":"title","new_value":"New title"}`, auth)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d body = %s", rec.Code, rec.Body.String())
	}
	var change DevModeChange
	if err := json.Unmarshal(rec.Body.Bytes(), &change); err != nil {
		t.Fatal(err)
	}
	if change.ID == "" || change.Path != "/about" || change.OldValue != "Old title" || change.Author != "sam" || change.Applied {
		t.Errorf("change = %+v", change)
	}

	rec = doRequest(a, http.MethodGet, "/functions/v1/dev-mode-changes?pending=true&path=/about", "", "", auth)
	var pending []DevModeChange
	json.Unmarshal(rec.Body.Bytes(), &pending)
	if len(pending) != 1 {
		t.Errorf("pending = %+v", pending)
	}

	// Warm the cache so the apply has to invalidate it.
	doRequest(a, http.MethodGet, "/about", googlebotUA, "", nil)

	rec = doRequest(a, http.MethodPost, "/functions/v1/dev-mode-changes/"+change.ID+"/apply", "", "", auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("apply: status = %d body = %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(a, http.MethodPost, "/functions/v1/dev-mode-changes/"+change.ID+"/apply", "", "", auth)
	if rec.Code != http.StatusConflict {
		t.Errorf("second apply: status = %d, want 409", rec.Code)
	}

	rec = doRequest(a, http.MethodGet, "/about", googlebotUA, "", nil)
	if !strings.Contains(rec.Body.String(), "<title>New title | Folio</title>") {
		t.Errorf("applied change not served to crawlers:\n%s", rec.Body.String())
	}

	rec = doRequest(a, http.MethodGet, "/functions/v1/dev-mode-changes/"+change.ID, "", "", auth)
	json.Unmarshal(rec.Body.Bytes(), &change)
	if !change.Applied || change.AppliedAt == nil {
		t.Errorf("change after apply = %+v", change)
	}

	rec = doRequest(a, http.MethodDelete, "/functions/v1/dev-mode-changes/"+change.ID, "", "", auth)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: status = %d", rec.Code)
	}
	rec = doRequest(a, http.MethodGet, "/functions/v1/dev-mode-changes/"+change.ID, "", "", auth)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get deleted: status = %d, want 404", rec.Code)
	}
}

func TestRebuildHook(t *testing.T) {
	a := newTestApp(t, SiteConfig{RebuildToken: "deploy-token"})

	rec := doRequest(a, http.MethodPost, "/functions/v1/rebuild-hook", "", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	rec = doRequest(a, http.MethodPost, "/functions/v1/rebuild-hook", "", "",
		http.Header{"Authorization": {"Bearer deploy-token"}})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Status string `json:"status"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Status != "queued" {
		t.Errorf("status field = %q, want queued", body.Status)
	}

	a.Builder.Wait()
	dist := a.Config().DistDir
	for _, name := range []string{"sitemap.xml", "robots.txt", "feed.xml", "about/index.html"} {
		if _, err := os.Stat(filepath.Join(dist, name)); err != nil {
			t.Errorf("rebuild did not write %s: %v", name, err)
		}
	}
	if _, ok := a.Builder.Last(); !ok {
		t.Error("Builder.Last() has no report after the rebuild")
	}

	rec = doRequest(a, http.MethodPost, "/functions/v1/rebuild-hook", "", "", bearer(t))
	if rec.Code != http.StatusAccepted {
		t.Errorf("jwt: status = %d, want 202", rec.Code)
	}
}

func TestSEOVerifyEndpoint(t *testing.T) {
	srv := httptest.NewUnstartedServer(nil)
	siteURL := "http://" + srv.Listener.Addr().String()
	a := newTestApp(t, SiteConfig{URL: siteURL})
	a.verifier = &metacheck.Verifier{Attempts: 1, Backoff: time.Millisecond}
	srv.Config.Handler = a.Echo
	srv.Start()
	defer srv.Close()

	rec := doRequest(a, http.MethodGet, "/functions/v1/seo-verify?path=/about", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		OK      bool               `json:"ok"`
		Results []metacheck.Result `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || !resp.OK {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Results[0].URL != siteURL+"/about" || resp.Results[0].Status != http.StatusOK {
		t.Errorf("result = %+v", resp.Results[0])
	}

	rec = doRequest(a, http.MethodGet, "/functions/v1/seo-verify", "", "", nil)
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Results) != 2 {
		t.Errorf("full verify checked %d pages, want / and /about", len(resp.Results))
	}

	rec = doRequest(a, http.MethodGet, "/functions/v1/seo-verify?url=https://elsewhere.example/about", "", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("foreign url: status = %d, want 400", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrAlreadyApplied, http.StatusConflict},
		{ErrInvalidField, http.StatusBadRequest},
		{os.ErrPermission, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if code, _ := statusFor(tt.err); code != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, code, tt.want)
		}
	}
}

func TestCustomRoutes(t *testing.T) {
	a := newTestApp(t, SiteConfig{}, WithCustomRoutes(func(a *App) {
		a.Echo.GET("/api/ping", func(c echo.Context) error {
			return c.String(http.StatusOK, "pong")
		})
	}))
	rec := doRequest(a, http.MethodGet, "/api/ping", googlebotUA, "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Errorf("status = %d body = %q", rec.Code, rec.Body.String())
	}
}
