package sitemeta

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/eringen/sitemeta/caption"
)

func (a *App) setupAdminRoutes(g *echo.Group) {
	g.GET("/session", a.handleAdminSession)
	g.POST("/login", a.handleAdminLogin)
	g.POST("/logout", handleAdminLogout)

	auth := g.Group("", requireAdmin)
	auth.GET("/posts", a.handleAdminPosts)
	auth.GET("/posts/:slug", a.handleAdminPost)
	auth.POST("/posts", a.handleAdminSavePost)
	auth.DELETE("/posts/:slug", a.handleAdminDeletePost)

	auth.GET("/seo", a.handleAdminSEO)
	auth.POST("/seo", a.handleAdminSaveSEO)
	auth.DELETE("/seo", a.handleAdminDeleteSEO)

	auth.GET("/pages", a.handleAdminPages)
	auth.POST("/pages", a.handleAdminSavePage)
	auth.DELETE("/pages", a.handleAdminDeletePage)

	auth.GET("/crawlers", a.handleAdminCrawlers)

	auth.GET("/images", a.handleImageList)
	auth.POST("/images", a.handleImageUpload)
	auth.DELETE("/images/:filename", a.handleImageDelete)

	auth.GET("/rebuild", a.handleAdminLastBuild)
	auth.POST("/rebuild", a.handleRebuildHook)
}

func requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !IsAdmin(c) {
			return echo.NewHTTPError(http.StatusUnauthorized, "login required")
		}
		return next(c)
	}
}

func (a *App) handleAdminSession(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"authenticated": IsAdmin(c),
		"csrf_token":    CsrfToken(c),
	})
}

func (a *App) handleAdminLogin(c echo.Context) error {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many login attempts, try again later")
	}
	var req struct {
		Password string `json:"password" form:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(a.Config().AdminPassword)) != 1 {
		a.loginLimiter.Record(ip)
		return echo.NewHTTPError(http.StatusUnauthorized, "wrong password")
	}
	a.loginLimiter.Reset(ip)
	if err := setAdminSession(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"authenticated": true})
}

func handleAdminLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleAdminPosts(c echo.Context) error {
	posts, err := a.Store.ListAllPosts(c.Request().Context())
	if err != nil {
		return err
	}
	if posts == nil {
		posts = []BlogPost{}
	}
	return c.JSON(http.StatusOK, posts)
}

func (a *App) handleAdminPost(c echo.Context) error {
	post, err := a.Store.GetPostAny(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, post)
}

func (a *App) handleAdminSavePost(c echo.Context) error {
	var post BlogPost
	if err := c.Bind(&post); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	post.Title = strings.TrimSpace(post.Title)
	post.Slug = strings.TrimSpace(post.Slug)
	if post.Slug == "" {
		post.Slug = Slugify(post.Title)
	}
	if post.Slug == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "slug is required, add a title or slug")
	}
	// /blog/<slug> must stay an SPA route, so no dots or other separators.
	if Slugify(post.Slug) != post.Slug {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid slug %q, use lowercase letters, digits and dashes", post.Slug))
	}
	post.Date = strings.TrimSpace(post.Date)
	if post.Date == "" {
		post.Date = time.Now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", post.Date); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date format, use YYYY-MM-DD")
	}
	for i := range post.Tags {
		post.Tags[i] = strings.TrimSpace(post.Tags[i])
	}
	post.Tags = FilterEmpty(post.Tags)

	ctx := c.Request().Context()
	if err := a.Store.SavePost(ctx, post); err != nil {
		return err
	}
	a.Cache.Invalidate()
	saved, err := a.Store.GetPostAny(ctx, post.Slug)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, saved)
}

func (a *App) handleAdminDeletePost(c echo.Context) error {
	if err := a.Store.DeletePost(c.Request().Context(), c.Param("slug")); err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.NoContent(http.StatusNoContent)
}

// pathParam reads the required ?path= parameter.
func pathParam(c echo.Context) (string, error) {
	p := c.QueryParam("path")
	if strings.TrimSpace(p) == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "path is required")
	}
	return NormalizePath(p), nil
}

func (a *App) handleAdminSEO(c echo.Context) error {
	ctx := c.Request().Context()
	if c.QueryParam("path") != "" {
		m, err := a.Store.GetSEOMeta(ctx, NormalizePath(c.QueryParam("path")))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, m)
	}
	rows, err := a.Store.ListSEOMeta(ctx)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []SEOMeta{}
	}
	return c.JSON(http.StatusOK, rows)
}

// handleAdminSaveSEO upserts an override. An image without alt text gets a
// generated caption.
func (a *App) handleAdminSaveSEO(c echo.Context) error {
	var m SEOMeta
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(m.Path) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path is required")
	}
	m.Path = NormalizePath(m.Path)

	ctx := c.Request().Context()
	cfg := a.Config()
	if m.Image != "" && strings.TrimSpace(m.ImageAlt) == "" {
		alt, err := a.captioner.Caption(ctx, caption.Input{
			Title:       m.Title,
			Description: m.Description,
			ImageURL:    AbsoluteURL(BuildURL(cfg.URL), m.Image),
			SiteName:    cfg.Name,
		})
		if err != nil {
			log.Warn().Err(err).Str("path", m.Path).Msg("caption image")
		}
		m.ImageAlt = alt
	}

	if err := a.Store.SaveSEOMeta(ctx, m); err != nil {
		return err
	}
	a.Cache.Invalidate()
	saved, err := a.Store.GetSEOMeta(ctx, m.Path)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, saved)
}

func (a *App) handleAdminDeleteSEO(c echo.Context) error {
	p, err := pathParam(c)
	if err != nil {
		return err
	}
	if err := a.Store.DeleteSEOMeta(c.Request().Context(), p); err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleAdminPages(c echo.Context) error {
	pages, err := a.Store.ListPages(c.Request().Context())
	if err != nil {
		return err
	}
	if pages == nil {
		pages = []PageMetadata{}
	}
	return c.JSON(http.StatusOK, pages)
}

func (a *App) handleAdminSavePage(c echo.Context) error {
	var p PageMetadata
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(p.Path) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path is required")
	}
	// Route normalization clamps priority and validates changefreq.
	r := NormalizeRoutes([]Route{{Path: p.Path, ChangeFreq: p.ChangeFreq, Priority: p.Priority}})[0]
	p.Path, p.ChangeFreq, p.Priority = r.Path, r.ChangeFreq, r.Priority

	if err := a.Store.SavePage(c.Request().Context(), p); err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusOK, p)
}

func (a *App) handleAdminDeletePage(c echo.Context) error {
	p, err := pathParam(c)
	if err != nil {
		return err
	}
	if err := a.Store.DeletePage(c.Request().Context(), p); err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleAdminCrawlers(c echo.Context) error {
	days := 30
	if v := c.QueryParam("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 365 {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be between 1 and 365")
		}
		days = n
	}
	stats, err := a.Store.CrawlerStats(c.Request().Context(), days)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (a *App) handleAdminLastBuild(c echo.Context) error {
	report, ok := a.Builder.Last()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no rebuild has completed yet")
	}
	return c.JSON(http.StatusOK, report)
}
