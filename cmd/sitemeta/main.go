package main

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/eringen/sitemeta/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Error().Err(err).Msg("application error")
		os.Exit(1)
	}
}

// distFlag is declared on every command that reads or writes the build
// output, so --dist works after the command name.
func distFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "dist",
		Value:   "dist",
		Usage:   "SPA build output directory",
		EnvVars: []string{"DIST_DIR"},
	}
}

// serveFlags configure the server. They are attached to both the root app,
// where serve is the default action, and the serve command.
func serveFlags() []cli.Flag {
	return []cli.Flag{
		distFlag(),
		&cli.StringFlag{Name: "addr", Value: ":3000", Usage: "Listen address", EnvVars: []string{"ADDR"}},
		&cli.StringFlag{Name: "origin", Usage: "SPA origin to proxy humans to; empty serves --dist", EnvVars: []string{"ORIGIN_URL"}},
		&cli.StringFlag{Name: "admin-password", Usage: "Admin password; empty disables /admin", EnvVars: []string{"ADMIN_PASSWORD"}},
		&cli.StringFlag{Name: "session-secret", Usage: "Admin session secret", EnvVars: []string{"ADMIN_SESSION_SECRET"}},
		&cli.BoolFlag{Name: "cookie-secure", Usage: "Mark cookies Secure (HTTPS)", EnvVars: []string{"COOKIE_SECURE"}},
		&cli.StringFlag{Name: "jwt-secret", Usage: "HS256 secret for function tokens", EnvVars: []string{"JWT_SECRET"}},
		&cli.StringFlag{Name: "rebuild-token", Usage: "Static bearer token for the rebuild hook", EnvVars: []string{"REBUILD_TOKEN"}},
		&cli.StringFlag{Name: "rebuild-schedule", Value: "@daily", Usage: "Cron spec for rebuilds", EnvVars: []string{"REBUILD_SCHEDULE"}},
		&cli.StringFlag{Name: "verify-schedule", Usage: "Cron spec for live verification; empty disables", EnvVars: []string{"VERIFY_SCHEDULE"}},
		&cli.DurationFlag{Name: "cache-ttl", Value: 5 * time.Minute, Usage: "Metadata cache TTL", EnvVars: []string{"CACHE_TTL"}},
		&cli.IntFlag{Name: "crawler-retention-days", Value: 365, Usage: "Days of crawler hits to keep", EnvVars: []string{"CRAWLER_RETENTION_DAYS"}},
		&cli.StringFlag{Name: "uploads-dir", Value: "data/uploads", Usage: "Directory for admin image uploads", EnvVars: []string{"UPLOADS_DIR"}},
		&cli.StringFlag{Name: "caption-api-key", Usage: "Gemini API key for image alt text", EnvVars: []string{"GEMINI_API_KEY"}},
		&cli.StringFlag{Name: "caption-model", Value: "gemini-2.0-flash", Usage: "Caption model", EnvVars: []string{"CAPTION_MODEL"}},
	}
}

func newApp() *cli.App {
	globals := []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Aliases: []string{"l"},
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			EnvVars: []string{"LOG_LEVEL"},
		},
		&cli.BoolFlag{
			Name:    "log-pretty",
			Usage:   "Human readable console logs instead of JSON",
			EnvVars: []string{"LOG_PRETTY"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Aliases: []string{"d"},
			Value:   "data/site.db",
			Usage:   "SQLite file path or postgres:// URL",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "site-file",
			Aliases: []string{"f"},
			Value:   "site.yaml",
			Usage:   "YAML file with site identity and routes",
			EnvVars: []string{"SITE_FILE"},
		},
		&cli.StringFlag{
			Name:    "site-url",
			Usage:   "Canonical site URL, overrides the site file",
			EnvVars: []string{"SITE_URL"},
		},
	}

	return &cli.App{
		Name:    "sitemeta",
		Usage:   "SEO edge, prerenderer and sitemap generator for single page apps",
		Version: version,
		Flags:   append(globals, serveFlags()...),
		Before: func(c *cli.Context) error {
			logger.Setup(logger.ParseLevel(c.String("log-level")), c.Bool("log-pretty"))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the edge server (default)",
				Flags:  serveFlags(),
				Action: runServe,
			},
			{
				Name:  "sitemap",
				Usage: "Write sitemap.xml",
				Flags: []cli.Flag{
					distFlag(),
					&cli.StringFlag{Name: "out", Usage: "Output file, - for stdout (default <dist>/sitemap.xml)"},
				},
				Action: runSitemap,
			},
			{
				Name:  "robots",
				Usage: "Write robots.txt",
				Flags: []cli.Flag{
					distFlag(),
					&cli.StringFlag{Name: "out", Usage: "Output file, - for stdout (default <dist>/robots.txt)"},
				},
				Action: runRobots,
			},
			{
				Name:  "prerender",
				Usage: "Prerender every indexable route into --dist, with sitemap.xml and robots.txt",
				Flags: []cli.Flag{
					distFlag(),
					&cli.StringFlag{Name: "mode", Value: "shell", Usage: "shell (inject into index.html) or browser (headless Chrome)"},
					&cli.StringFlag{Name: "origin", Usage: "Running SPA to render in browser mode", EnvVars: []string{"ORIGIN_URL"}},
					&cli.StringFlag{Name: "wait-selector", Usage: "Selector to wait for in browser mode"},
					&cli.StringFlag{Name: "chrome", Usage: "Chrome binary for browser mode", EnvVars: []string{"CHROME_BIN"}},
					&cli.IntFlag{Name: "concurrency", Value: 4, Usage: "Routes rendered in parallel"},
				},
				Action: runPrerender,
			},
			{
				Name:   "validate",
				Usage:  "Check the SEO markup of every HTML file in --dist",
				Flags:  []cli.Flag{distFlag()},
				Action: runValidate,
			},
			{
				Name:  "verify",
				Usage: "Fetch every route as Googlebot and check its markup",
				Flags: []cli.Flag{
					distFlag(),
					&cli.StringFlag{Name: "base", Usage: "Fetch from this base URL instead of the site URL"},
					&cli.IntFlag{Name: "attempts", Value: 3, Usage: "Attempts per page"},
					&cli.DurationFlag{Name: "backoff", Value: 500 * time.Millisecond, Usage: "Initial retry delay"},
					&cli.IntFlag{Name: "concurrency", Value: 4, Usage: "Pages fetched in parallel"},
				},
				Action: runVerify,
			},
			{
				Name:   "migrate",
				Usage:  "Apply database migrations",
				Action: runMigrate,
			},
			{
				Name:      "init",
				Usage:     "Create a starter site.yaml and .env.example",
				ArgsUsage: "[dir]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Site name (default from the directory name)"},
					&cli.StringFlag{Name: "author", Usage: "Author name"},
					&cli.BoolFlag{Name: "force", Usage: "Overwrite existing files"},
				},
				Action: runInit,
			},
			{
				Name:  "token",
				Usage: "Issue a bearer token for the dev mode and rebuild functions",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "jwt-secret", Usage: "HS256 secret", EnvVars: []string{"JWT_SECRET"}, Required: true},
					&cli.StringFlag{Name: "subject", Value: "dev", Usage: "Token subject, recorded as the change author"},
					&cli.StringFlag{Name: "role", Value: "editor", Usage: "Token role"},
					&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour, Usage: "Token lifetime"},
				},
				Action: runToken,
			},
		},
		Action: runServe,
	}
}
