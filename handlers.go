package sitemeta

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/eringen/sitemeta/crawler"
	"github.com/eringen/sitemeta/internal/metrics"
	"github.com/eringen/sitemeta/markdown"
	"github.com/eringen/sitemeta/views"
)

// BotHeader names the crawler a prerendered response was served to.
const BotHeader = "X-Sitemeta-Bot"

const headerUserAgent = "User-Agent"

func (a *App) setupRoutes() {
	e := a.Echo

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", a.handleHealth)

	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/feed.xml", a.handleFeed)

	e.GET("/og-image", a.handleOGImage)
	e.Static("/uploads", a.Config().UploadsDir)

	fn := e.Group("/functions/v1")
	fn.GET("/og-image", a.handleOGImage)
	fn.GET("/seo-verify", a.handleSEOVerify)
	fn.POST("/rebuild-hook", a.handleRebuildHook, a.requireBearer(true))

	dev := fn.Group("/dev-mode-changes", a.requireBearer(false))
	dev.GET("", a.handleListChanges)
	dev.POST("", a.handleCreateChange)
	dev.GET("/:id", a.handleGetChange)
	dev.POST("/:id/apply", a.handleApplyChange)
	dev.DELETE("/:id", a.handleDeleteChange)

	if a.Config().AdminPassword != "" {
		a.setupAdminRoutes(e.Group("/admin", a.adminMiddleware()...))
	}

	e.Match([]string{http.MethodGet, http.MethodHead}, "/*", a.handleEdge)
}

func (a *App) handleHealth(c echo.Context) error {
	if err := a.Store.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// isAsset reports whether p names a static file rather than an SPA route.
func isAsset(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	return ext != "" && ext != ".html" && ext != ".htm"
}

// handleEdge is the bot gate: crawlers get server-rendered metadata, humans
// and asset requests get the SPA.
func (a *App) handleEdge(c echo.Context) error {
	req := c.Request()
	if isAsset(req.URL.Path) {
		return a.human(c)
	}
	bot := crawler.Detect(req.UserAgent())
	if !bot.IsBot {
		return a.human(c)
	}
	return a.serveCrawler(c, bot)
}

func (a *App) serveCrawler(c echo.Context, bot crawler.Result) error {
	ctx := c.Request().Context()
	p := NormalizePath(c.Request().URL.Path)
	c.Set(botKey, bot.Name)
	c.Response().Header().Set(BotHeader, bot.Name)
	c.Response().Header().Add(echo.HeaderVary, headerUserAgent)
	metrics.CrawlerRequests.WithLabelValues(bot.Name, string(bot.Kind)).Inc()

	hit := crawler.Hit{
		BotName:   bot.Name,
		Kind:      bot.Kind,
		UserAgent: c.Request().UserAgent(),
		Path:      p,
		IPHash:    crawler.HashIP(a.salt, c.RealIP()),
	}
	recorded := a.goBackground(func(ctx context.Context) {
		if err := a.Store.RecordCrawlerHit(ctx, hit); err != nil {
			log.Warn().Err(err).Str("bot", hit.BotName).Msg("record crawler hit")
		}
	})
	if !recorded {
		log.Debug().Str("bot", hit.BotName).Msg("shutting down, crawler hit dropped")
	}

	meta, err := a.Resolver.Resolve(ctx, p)
	if errors.Is(err, ErrNotFound) {
		return RenderStatus(c, http.StatusNotFound, views.NotFound(meta))
	}
	if err != nil {
		return err
	}

	heading, body, err := a.crawlerBody(ctx, p, meta)
	if err != nil {
		return err
	}
	return Render(c, views.Document(meta, heading, body))
}

// crawlerBody returns the visible heading and, for blog posts, the rendered
// article content.
func (a *App) crawlerBody(ctx context.Context, p string, meta views.Meta) (string, templ.Component, error) {
	if slug, ok := BlogSlug(p); ok {
		post, err := a.Cache.GetPost(ctx, slug)
		if err != nil {
			return "", nil, err
		}
		return post.Title, markdown.Render(post.Content), nil
	}
	heading := strings.TrimSuffix(meta.Title, " | "+meta.SiteName)
	if p == "/" {
		posts, err := a.Cache.ListPosts(ctx, "")
		if err != nil {
			return "", nil, err
		}
		return heading, postLinks(posts), nil
	}
	return heading, nil, nil
}

// postLinks lists posts so crawlers can discover them from the home page.
func postLinks(posts []BlogPost) templ.Component {
	if len(posts) == 0 {
		return nil
	}
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<ul>\n")
		for _, p := range posts {
			fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a></li>\n",
				templ.EscapeString(p.Link), templ.EscapeString(p.Title))
		}
		b.WriteString("</ul>")
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// humanHandler proxies to the SPA origin, or serves the build output with
// index.html as the fallback for client-side routes.
func (a *App) humanHandler(cfg SiteConfig) (echo.HandlerFunc, error) {
	notFound := func(c echo.Context) error { return echo.ErrNotFound }
	if cfg.OriginURL == "" {
		spa := middleware.StaticWithConfig(middleware.StaticConfig{
			Root:  cfg.DistDir,
			HTML5: true,
		})(notFound)
		// A missing asset is a 404, not the index.html fallback.
		files := middleware.StaticWithConfig(middleware.StaticConfig{
			Root: cfg.DistDir,
		})(notFound)
		return func(c echo.Context) error {
			if isAsset(c.Request().URL.Path) {
				return files(c)
			}
			c.Response().Header().Add(echo.HeaderVary, headerUserAgent)
			return spa(c)
		}, nil
	}
	target, err := url.Parse(cfg.OriginURL)
	if err != nil || !target.IsAbs() {
		return nil, fmt.Errorf("invalid origin url %q", cfg.OriginURL)
	}
	balancer := middleware.NewRoundRobinBalancer([]*middleware.ProxyTarget{{URL: target}})
	return middleware.ProxyWithConfig(middleware.ProxyConfig{
		Balancer: balancer,
		ModifyResponse: func(res *http.Response) error {
			res.Header.Add(echo.HeaderVary, headerUserAgent)
			return nil
		},
	})(notFound), nil
}

func (a *App) handleSitemap(c echo.Context) error {
	cfg := a.Config()
	routes, err := CollectRoutes(c.Request().Context(), cfg, a.Cache)
	if err != nil {
		return err
	}
	return writeBlob(c, echo.MIMEApplicationXMLCharsetUTF8, func(w io.Writer) error {
		return WriteSitemap(w, cfg.URL, routes)
	})
}

func (a *App) handleRobots(c echo.Context) error {
	cfg := a.Config()
	return writeBlob(c, echo.MIMETextPlainCharsetUTF8, func(w io.Writer) error {
		return WriteRobots(w, cfg.URL, cfg.Disallow)
	})
}

func (a *App) handleFeed(c echo.Context) error {
	posts, err := a.Cache.ListPosts(c.Request().Context(), "")
	if err != nil {
		return err
	}
	cfg := a.Config()
	return writeBlob(c, "application/rss+xml; charset=UTF-8", func(w io.Writer) error {
		return WriteFeed(w, cfg, posts)
	})
}

// isAPI reports whether p is served as JSON.
func isAPI(p string) bool {
	return strings.HasPrefix(p, "/functions/") || strings.HasPrefix(p, "/admin")
}

// statusFor maps an error to an HTTP status and client-facing message.
func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code, fmt.Sprint(he.Message)
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, ErrAlreadyApplied):
		return http.StatusConflict, "change already applied"
	case errors.Is(err, ErrInvalidField):
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code, msg := statusFor(err)
	if code >= 500 {
		log.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("server error")
	}

	var werr error
	switch {
	case isAPI(c.Request().URL.Path):
		werr = c.JSON(code, map[string]string{"error": msg})
	case code == http.StatusNotFound:
		meta, _ := a.Resolver.Resolve(c.Request().Context(), "/")
		werr = RenderStatus(c, code, views.NotFound(meta))
	case code >= 500:
		werr = RenderStatus(c, code, views.ServerError(a.Config().Name))
	default:
		werr = c.String(code, msg)
	}
	if werr != nil {
		log.Warn().Err(werr).Msg("write error response")
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
