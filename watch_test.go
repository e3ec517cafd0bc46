package sitemeta

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eringen/sitemeta/crawler"
)

func TestReloadSiteFile(t *testing.T) {
	a := newTestApp(t, SiteConfig{})
	file := a.Config().SiteFile

	updated := strings.Replace(testSiteFile, "name: Folio", "name: Renamed", 1)
	if err := os.WriteFile(file, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := a.ReloadSiteFile(); err != nil {
		t.Fatalf("ReloadSiteFile failed: %v", err)
	}
	if a.Config().Name != "Renamed" {
		t.Errorf("Name = %q after reload", a.Config().Name)
	}
	if a.Config().DistDir == "" || a.Config().URL != "https://folio.dev" {
		t.Errorf("reload lost flag values: %+v", a.Config())
	}

	os.WriteFile(file, []byte("routes: [broken"), 0o644)
	if err := a.ReloadSiteFile(); err == nil {
		t.Error("expected a parse error")
	}
	if a.Config().Name != "Renamed" {
		t.Errorf("a failed reload replaced the config: %q", a.Config().Name)
	}
}

func TestWatchSiteFile(t *testing.T) {
	a := newTestApp(t, SiteConfig{})
	file := a.Config().SiteFile

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.watchSiteFile(ctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	updated := strings.Replace(testSiteFile, "name: Folio", "name: Watched", 1)
	deadline := time.Now().Add(5 * time.Second)
	for {
		// The watcher may not be registered yet, so rewrite after each quiet
		// period. Writes closer together than reloadDebounce would keep
		// postponing the reload.
		if err := os.WriteFile(file, []byte(updated), 0o644); err != nil {
			t.Fatal(err)
		}
		wait := time.Now().Add(3 * reloadDebounce)
		for time.Now().Before(wait) && a.Config().Name != "Watched" {
			time.Sleep(20 * time.Millisecond)
		}
		if a.Config().Name == "Watched" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("site file change was not picked up, Name = %q", a.Config().Name)
		}
	}
}

func TestStartSchedulerRejectsBadSpec(t *testing.T) {
	a := newTestApp(t, SiteConfig{RebuildSchedule: "every tuesday"})
	if err := a.startScheduler(); err == nil {
		t.Error("expected an error for an invalid cron spec")
	}

	b := newTestApp(t, SiteConfig{VerifySchedule: "@hourly"})
	if err := b.startScheduler(); err != nil {
		t.Fatalf("startScheduler failed: %v", err)
	}
	if n := len(b.scheduler.Entries()); n != 3 {
		t.Errorf("scheduler has %d entries, want rebuild, retention and verify", n)
	}
}

func TestPruneCrawlerHits(t *testing.T) {
	a := newTestApp(t, SiteConfig{CrawlerRetentionDays: 30})
	ctx := context.Background()
	a.Store.RecordCrawlerHit(ctx, crawler.Hit{BotName: "Googlebot", Path: "/", CreatedAt: time.Now().AddDate(0, 0, -45)})
	a.Store.RecordCrawlerHit(ctx, crawler.Hit{BotName: "Bingbot", Path: "/", CreatedAt: time.Now().AddDate(0, 0, -2)})

	a.pruneCrawlerHits()

	hits, err := a.Store.ListCrawlerHits(ctx, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].BotName != "Bingbot" {
		t.Errorf("hits after prune = %+v", hits)
	}
}
