package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/eringen/sitemeta"
	"github.com/eringen/sitemeta/metacheck"
	"github.com/eringen/sitemeta/prerender"
	"github.com/eringen/sitemeta/scaffold"
)

// lookup returns the innermost context in which name was set, so a flag
// given before the command name still applies when the command declares it
// too. Unset flags read their default from c.
func lookup(c *cli.Context, name string) *cli.Context {
	for _, cc := range c.Lineage() {
		if cc.IsSet(name) {
			return cc
		}
	}
	return c
}

// siteConfig builds the configuration shared by every command from the
// flags. Serve-only flags read as their root defaults elsewhere.
func siteConfig(c *cli.Context) sitemeta.SiteConfig {
	str := func(name string) string { return lookup(c, name).String(name) }
	return sitemeta.SiteConfig{
		URL:                  str("site-url"),
		DatabaseURL:          str("database-url"),
		SiteFile:             str("site-file"),
		DistDir:              str("dist"),
		Addr:                 str("addr"),
		OriginURL:            str("origin"),
		AdminPassword:        str("admin-password"),
		SessionSecret:        str("session-secret"),
		CookieSecure:         lookup(c, "cookie-secure").Bool("cookie-secure"),
		JWTSecret:            str("jwt-secret"),
		RebuildToken:         str("rebuild-token"),
		RebuildSchedule:      str("rebuild-schedule"),
		VerifySchedule:       str("verify-schedule"),
		CacheTTL:             lookup(c, "cache-ttl").Duration("cache-ttl"),
		CrawlerRetentionDays: lookup(c, "crawler-retention-days").Int("crawler-retention-days"),
		UploadsDir:           str("uploads-dir"),
		CaptionAPIKey:        str("caption-api-key"),
		CaptionModel:         str("caption-model"),
	}
}

// openApp initializes an App for one-shot commands. The caller must Close it.
func openApp(c *cli.Context) (*sitemeta.App, error) {
	app := sitemeta.New(siteConfig(c))
	if err := app.Init(c.Context); err != nil {
		return nil, err
	}
	return app, nil
}

func runServe(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := sitemeta.New(siteConfig(c))
	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

// writeOutput renders into name atomically; "-" is stdout.
func writeOutput(name string, render func(io.Writer) error) error {
	if name == "-" {
		return render(os.Stdout)
	}
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return err
	}
	if err := prerender.WriteFile(name, buf.Bytes()); err != nil {
		return err
	}
	log.Info().Str("file", name).Int("bytes", buf.Len()).Msg("wrote file")
	return nil
}

func runSitemap(c *cli.Context) error {
	app, err := openApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	cfg := app.Config()
	routes, err := sitemeta.CollectRoutes(c.Context, cfg, app.Cache)
	if err != nil {
		return fmt.Errorf("collect routes: %w", err)
	}
	out := c.String("out")
	if out == "" {
		out = filepath.Join(cfg.DistDir, "sitemap.xml")
	}
	return writeOutput(out, func(w io.Writer) error {
		return sitemeta.WriteSitemap(w, cfg.URL, routes)
	})
}

func runRobots(c *cli.Context) error {
	app := sitemeta.New(siteConfig(c))
	if err := app.ReloadSiteFile(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	cfg := app.Config()
	out := c.String("out")
	if out == "" {
		out = filepath.Join(cfg.DistDir, "robots.txt")
	}
	return writeOutput(out, func(w io.Writer) error {
		return sitemeta.WriteRobots(w, cfg.URL, cfg.Disallow)
	})
}

func runPrerender(c *cli.Context) error {
	app, err := openApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	app.Builder.Concurrency = c.Int("concurrency")
	switch c.String("mode") {
	case "shell":
	case "browser":
		origin := lookup(c, "origin").String("origin")
		if origin == "" {
			return errors.New("prerender: --origin is required in browser mode")
		}
		br, err := prerender.NewBrowserRenderer(c.Context, origin, prerender.BrowserOptions{
			Bin:          c.String("chrome"),
			WaitSelector: c.String("wait-selector"),
		})
		if err != nil {
			return fmt.Errorf("prerender: %w", err)
		}
		defer br.Close()
		app.Builder.Renderer = br
	default:
		return fmt.Errorf("prerender: unknown mode %q", c.String("mode"))
	}

	report, err := app.Builder.Run(c.Context)
	if err != nil {
		return fmt.Errorf("prerender: %w", err)
	}
	for _, f := range report.Prerender.Failed {
		log.Error().Str("path", f.Path).Str("error", f.Err).Msg("prerender failed")
	}
	if !report.Prerender.OK() {
		return fmt.Errorf("prerender: %d of %d routes failed", len(report.Prerender.Failed), report.Routes)
	}
	return nil
}

func runValidate(c *cli.Context) error {
	dir := lookup(c, "dist").String("dist")
	reports, err := metacheck.ValidateDir(dir)
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	failed := 0
	for _, fr := range reports {
		for _, issue := range fr.Report.Issues {
			ev := log.Warn()
			if issue.Severity == metacheck.SeverityError {
				ev = log.Error()
			}
			ev.Str("file", fr.Path).Str("tag", issue.Tag).Msg(issue.Message)
		}
		if !fr.Report.OK() {
			failed++
		}
	}
	log.Info().Int("files", len(reports)).Int("failed", failed).Msg("validate finished")
	if len(reports) == 0 {
		return fmt.Errorf("validate: no html files in %s", dir)
	}
	if failed > 0 {
		return fmt.Errorf("validate: %d of %d files have errors", failed, len(reports))
	}
	return nil
}

func runVerify(c *cli.Context) error {
	app, err := openApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	v := &metacheck.Verifier{
		Attempts:    c.Int("attempts"),
		Backoff:     c.Duration("backoff"),
		Concurrency: c.Int("concurrency"),
	}
	results, err := app.VerifySite(c.Context, c.String("base"), v)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	failed := 0
	for _, r := range results {
		if r.OK() {
			log.Info().Str("url", r.URL).Int("attempts", r.Attempts).Msg("ok")
			continue
		}
		failed++
		if r.Err != "" {
			log.Error().Str("url", r.URL).Int("status", r.Status).Int("attempts", r.Attempts).Msg(r.Err)
			continue
		}
		for _, issue := range r.Report.Errors() {
			log.Error().Str("url", r.URL).Str("tag", issue.Tag).Msg(issue.Message)
		}
	}
	if failed > 0 {
		return fmt.Errorf("verify: %d of %d pages failed", failed, len(results))
	}
	return nil
}

func runMigrate(c *cli.Context) error {
	store, err := sitemeta.Open(c.Context, c.String("database-url"))
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info().Str("dialect", store.Dialect()).Msg("migrations applied")
	return store.Close()
}

func runInit(c *cli.Context) error {
	dir := c.Args().First()
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	data := scaffold.Data{
		SiteName: c.String("name"),
		SiteURL:  c.String("site-url"),
		Author:   c.String("author"),
	}
	if data.SiteName == "" {
		data.SiteName = scaffold.TitleFromDir(abs)
	}
	if data.SiteURL == "" {
		data.SiteURL = "http://localhost:3000"
	}
	if data.Author == "" {
		data.Author = data.SiteName
	}
	created, err := scaffold.Write(dir, data, c.Bool("force"))
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	for _, p := range created {
		fmt.Fprintf(c.App.Writer, "  created %s\n", p)
	}
	return nil
}

func runToken(c *cli.Context) error {
	token, err := sitemeta.IssueToken(c.String("jwt-secret"), c.String("subject"), c.String("role"), c.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, token)
	return nil
}
