// Package sitemeta serves and builds the SEO layer of a single page
// application: crawlers get fully rendered metadata, humans get the SPA.
//
// It resolves per-route <head> metadata from a YAML site file and the
// content tables, prerenders static snapshots, writes sitemap.xml and
// robots.txt, verifies the live result, and exposes the HTTP functions the
// site's dev mode and deploy hooks call.
package sitemeta

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/eringen/sitemeta/caption"
	"github.com/eringen/sitemeta/metacheck"
)

// App is the central sitemeta application. It wires together the store,
// cache, resolver, builder, handlers and middleware.
type App struct {
	Echo     *echo.Echo
	Store    *Store
	Cache    *MetaCache
	Resolver *Resolver
	Builder  *Builder

	mu   sync.RWMutex
	cfg  SiteConfig
	base SiteConfig // as passed to New, before the site file and defaults

	captioner    caption.Captioner
	verifier     *metacheck.Verifier
	loginLimiter *LoginLimiter
	authLimiter  *LoginLimiter
	scheduler    *cron.Cron
	human        echo.HandlerFunc
	customRoutes []func(*App)
	salt         string
	ownsStore    bool

	bgMu     sync.Mutex
	bgClosed bool
	bg       sync.WaitGroup
}

// New creates a new App with the given configuration.
func New(cfg SiteConfig, opts ...Option) *App {
	a := &App{
		Echo: echo.New(),
		base: cfg,
	}
	a.Echo.HideBanner = true
	a.Echo.HidePort = true
	cfg.setDefaults()
	a.cfg = cfg

	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the current configuration. It changes when the site file
// is reloaded.
func (a *App) Config() SiteConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// ReloadSiteFile re-reads the site file and swaps in the new configuration.
// On error the previous configuration stays active.
func (a *App) ReloadSiteFile() error {
	cfg := a.base
	sitePath := cfg.SiteFile
	if sitePath == "" {
		sitePath = "site.yaml"
	}
	sf, err := LoadSiteFile(sitePath)
	if err != nil {
		return err
	}
	sf.Apply(&cfg)
	cfg.setDefaults()

	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	if a.Cache != nil {
		a.Cache.Invalidate()
	}
	return nil
}

// Init opens the store and wires every component and route without
// starting the server.
func (a *App) Init(ctx context.Context) error {
	if err := a.ReloadSiteFile(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("sitemeta: %w", err)
		}
		log.Warn().Str("file", a.Config().SiteFile).Msg("site file not found, using flags only")
	}
	cfg := a.Config()

	if cfg.AdminPassword != "" && cfg.SessionSecret == "" {
		return fmt.Errorf("sitemeta: SessionSecret is required when AdminPassword is set")
	}

	if a.Store == nil {
		store, err := Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("sitemeta: init store: %w", err)
		}
		a.Store = store
		a.ownsStore = true
	}

	salt, err := a.initSalt(ctx)
	if err != nil {
		return fmt.Errorf("sitemeta: init salt: %w", err)
	}
	a.salt = salt

	a.Cache = NewMetaCache(a.Store, cfg.CacheTTL)
	a.Resolver = NewResolver(a.Cache, a.Config)
	a.Builder = NewBuilder(a.Cache, a.Resolver, a.Config)

	if a.captioner == nil {
		var next caption.Captioner
		if cfg.CaptionAPIKey != "" {
			g, err := caption.NewGenAI(ctx, cfg.CaptionAPIKey, cfg.CaptionModel)
			if err != nil {
				log.Warn().Err(err).Msg("caption model unavailable, using default alt text")
			} else {
				next = g
			}
		}
		a.captioner = caption.Fallback{Next: next, Timeout: 10 * time.Second}
	}
	if a.verifier == nil {
		a.verifier = &metacheck.Verifier{}
	}

	a.loginLimiter = NewLoginLimiter(5, time.Minute)
	a.authLimiter = NewLoginLimiter(10, time.Minute)

	human, err := a.humanHandler(cfg)
	if err != nil {
		return fmt.Errorf("sitemeta: %w", err)
	}
	a.human = human

	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	return nil
}

// Start initializes the app and serves HTTP until ctx is cancelled, then
// shuts down gracefully.
func (a *App) Start(ctx context.Context) error {
	if err := a.Init(ctx); err != nil {
		return err
	}
	defer a.Close()

	if err := a.startScheduler(); err != nil {
		return err
	}
	go a.watchSiteFile(ctx)

	cfg := a.Config()
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("site", cfg.URL).Msg("sitemeta listening")
		errCh <- a.Echo.Start(cfg.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.Echo.Shutdown(shutdownCtx)
}

// Close stops background work and releases resources. Call this when the
// app is shutting down.
func (a *App) Close() error {
	a.bgMu.Lock()
	a.bgClosed = true
	a.bgMu.Unlock()

	if a.scheduler != nil {
		<-a.scheduler.Stop().Done()
	}
	if a.Builder != nil {
		a.Builder.Wait()
	}
	a.bg.Wait()
	if a.loginLimiter != nil {
		a.loginLimiter.Stop()
	}
	if a.authLimiter != nil {
		a.authLimiter.Stop()
	}
	if a.Store != nil && a.ownsStore {
		return a.Store.Close()
	}
	return nil
}

const saltKey = "crawler_salt"

// initSalt loads the crawler IP hashing salt, creating it on first run.
func (a *App) initSalt(ctx context.Context) (string, error) {
	salt, err := a.Store.GetSetting(ctx, saltKey)
	if err == nil && salt != "" {
		return salt, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	salt = hex.EncodeToString(b)
	if err := a.Store.SetSetting(ctx, saltKey, salt); err != nil {
		return "", err
	}
	return salt, nil
}

// goBackground runs fn after the request returns. Close waits for it; once
// Close has started fn is dropped and goBackground reports false.
func (a *App) goBackground(fn func(ctx context.Context)) bool {
	a.bgMu.Lock()
	defer a.bgMu.Unlock()
	if a.bgClosed {
		return false
	}
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		fn(ctx)
	}()
	return true
}
