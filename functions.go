package sitemeta

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eringen/sitemeta/metacheck"
	"github.com/eringen/sitemeta/ogimage"
)

type verifyResponse struct {
	Results []metacheck.Result `json:"results"`
	OK      bool               `json:"ok"`
}

// handleSEOVerify fetches one page (?path= or ?url=) or every indexable
// route as a crawler and reports its metadata problems.
func (a *App) handleSEOVerify(c echo.Context) error {
	ctx := c.Request().Context()
	cfg := a.Config()
	site, err := url.Parse(cfg.URL)
	if err != nil {
		return err
	}

	var paths []string
	switch raw := c.QueryParam("url"); {
	case raw != "":
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || !strings.EqualFold(u.Host, site.Host) {
			return echo.NewHTTPError(http.StatusBadRequest, "url must be an absolute URL on "+site.Host)
		}
		paths = []string{u.Path}
	case c.QueryParam("path") != "":
		paths = []string{c.QueryParam("path")}
	default:
		if paths, err = a.indexablePaths(ctx); err != nil {
			return err
		}
	}

	targets, err := a.verifyTargets(ctx, paths)
	if err != nil {
		return err
	}
	results := a.verifier.VerifyAll(ctx, targets)
	resp := verifyResponse{Results: results, OK: true}
	for _, r := range results {
		resp.OK = resp.OK && r.OK()
	}
	return c.JSON(http.StatusOK, resp)
}

// indexablePaths lists every route that belongs in the sitemap.
func (a *App) indexablePaths(ctx context.Context) ([]string, error) {
	routes, err := CollectRoutes(ctx, a.Config(), a.Cache)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, r := range routes {
		if !r.NoIndex {
			paths = append(paths, r.Path)
		}
	}
	return paths, nil
}

// VerifySite verifies every indexable route with v. When base is set pages
// are fetched from base instead of the canonical host, which lets a staging
// deploy be checked against production metadata.
func (a *App) VerifySite(ctx context.Context, base string, v *metacheck.Verifier) ([]metacheck.Result, error) {
	paths, err := a.indexablePaths(ctx)
	if err != nil {
		return nil, err
	}
	targets, err := a.verifyTargets(ctx, paths)
	if err != nil {
		return nil, err
	}
	if base != "" {
		for i, p := range paths {
			targets[i].URL = BuildURL(base, p)
		}
	}
	return v.VerifyAll(ctx, targets), nil
}

// verifyTargets pairs each path's live URL with the metadata it should carry.
func (a *App) verifyTargets(ctx context.Context, paths []string) ([]metacheck.Target, error) {
	targets := make([]metacheck.Target, 0, len(paths))
	for _, p := range paths {
		meta, err := a.Resolver.Resolve(ctx, p)
		if err != nil && !isNotFound(err) {
			return nil, err
		}
		targets = append(targets, metacheck.Target{
			URL:    meta.Canonical,
			Expect: metacheck.Expect{Title: meta.Title, Canonical: meta.Canonical},
		})
	}
	return targets, nil
}

type changeRequest struct {
	Path     string `json:"path"`
	Field    string `json:"field"`
	NewValue string `json:"new_value"`
}

func (a *App) handleListChanges(c echo.Context) error {
	p := c.QueryParam("path")
	if p != "" {
		p = NormalizePath(p)
	}
	pending, _ := strconv.ParseBool(c.QueryParam("pending"))
	changes, err := a.Store.ListChanges(c.Request().Context(), p, pending)
	if err != nil {
		return err
	}
	if changes == nil {
		changes = []DevModeChange{}
	}
	return c.JSON(http.StatusOK, changes)
}

func (a *App) handleGetChange(c echo.Context) error {
	change, err := a.Store.GetChange(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, change)
}

func (a *App) handleCreateChange(c echo.Context) error {
	var req changeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Path) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path is required")
	}
	if !slices.Contains(DevModeFields, req.Field) {
		return echo.NewHTTPError(http.StatusBadRequest, "field must be one of: "+strings.Join(DevModeFields, ", "))
	}
	ctx := c.Request().Context()
	p := NormalizePath(req.Path)

	var old string
	if m, err := a.Store.GetSEOMeta(ctx, p); err == nil {
		old = m.Get(req.Field)
	} else if !isNotFound(err) {
		return err
	}
	change, err := a.Store.CreateChange(ctx, DevModeChange{
		Path:     p,
		Field:    req.Field,
		OldValue: old,
		NewValue: req.NewValue,
		Author:   tokenSubject(c),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, change)
}

func (a *App) handleApplyChange(c echo.Context) error {
	change, err := a.Store.ApplyChange(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusOK, change)
}

func (a *App) handleDeleteChange(c echo.Context) error {
	if err := a.Store.DeleteChange(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// handleOGImage draws the preview card for ?title=&subtitle=.
func (a *App) handleOGImage(c echo.Context) error {
	cfg := a.Config()
	card := ogimage.Card{
		Title:    c.QueryParam("title"),
		Subtitle: c.QueryParam("subtitle"),
		SiteName: cfg.Name,
	}
	if strings.TrimSpace(card.Title) == "" {
		card.Title = cfg.Name
	}
	c.Response().Header().Set("Cache-Control", "public, max-age=86400")
	switch c.QueryParam("format") {
	case "", "svg":
		return c.Blob(http.StatusOK, "image/svg+xml", ogimage.SVG(card))
	case "png":
		data, err := ogimage.PNG(card)
		if err != nil {
			return err
		}
		return c.Blob(http.StatusOK, "image/png", data)
	}
	return echo.NewHTTPError(http.StatusBadRequest, "format must be svg or png")
}

// handleRebuildHook queues a rebuild. A request arriving while a rebuild
// runs is folded into a single follow-up run.
func (a *App) handleRebuildHook(c echo.Context) error {
	started := a.Builder.Trigger()
	return c.JSON(http.StatusAccepted, map[string]any{"status": "queued", "coalesced": !started})
}
