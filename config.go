package sitemeta

import (
	"fmt"
	"math"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eringen/sitemeta/caption"
)

// SiteConfig holds all configuration for a sitemeta deployment.
type SiteConfig struct {
	Name          string // Site name (default "Portfolio")
	URL           string // Canonical URL (default "http://localhost:3000")
	Description   string // Default meta description
	Author        string // Author name for JSON-LD
	TwitterHandle string // twitter:site, e.g. "@jane"
	DefaultImage  string // Default og:image; empty uses the generated card
	Locale        string // og:locale (default "en_US")

	Addr        string // Listen address (default ":3000")
	DatabaseURL string // SQLite path or postgres:// DSN (default "data/site.db")
	OriginURL   string // SPA origin humans are proxied to; empty serves DistDir
	DistDir     string // Build output directory (default "dist")
	SiteFile    string // YAML site file (default "site.yaml")
	UploadsDir  string // Admin image uploads, served at /uploads (default "data/uploads")

	AdminPassword string // Admin login password; empty disables /admin
	SessionSecret string // Session encryption secret
	CookieSecure  bool   // Set true for HTTPS
	JWTSecret     string // HS256 secret for dev mode and rebuild tokens
	RebuildToken  string // Static bearer token accepted by the rebuild hook

	CacheTTL             time.Duration // Metadata cache TTL (default 5min)
	RebuildSchedule      string        // Cron spec for scheduled rebuilds (default "@daily")
	VerifySchedule       string        // Cron spec for scheduled verification; empty disables
	CrawlerRetentionDays int           // Crawler hit retention (default 365)

	CaptionAPIKey string // Gemini API key for alt text; empty uses the fallback caption
	CaptionModel  string // Caption model (default "gemini-2.0-flash")

	Routes   []Route  // Static routes from the site file
	Disallow []string // robots.txt Disallow entries
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Portfolio"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	c.URL = strings.TrimRight(c.URL, "/")
	if c.Locale == "" {
		c.Locale = "en_US"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = "data/site.db"
	}
	if c.DistDir == "" {
		c.DistDir = "dist"
	}
	if c.SiteFile == "" {
		c.SiteFile = "site.yaml"
	}
	if c.UploadsDir == "" {
		c.UploadsDir = "data/uploads"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 5 * time.Minute
	}
	if c.RebuildSchedule == "" {
		c.RebuildSchedule = "@daily"
	}
	if c.CrawlerRetentionDays == 0 {
		c.CrawlerRetentionDays = 365
	}
	if c.CaptionModel == "" {
		c.CaptionModel = "gemini-2.0-flash"
	}
}

// Route is a statically known page of the SPA.
type Route struct {
	Path        string  `yaml:"path" json:"path"`
	Title       string  `yaml:"title" json:"title,omitempty"`
	Description string  `yaml:"description" json:"description,omitempty"`
	Image       string  `yaml:"image" json:"image,omitempty"`
	ChangeFreq  string  `yaml:"changefreq" json:"changefreq,omitempty"`
	Priority    float64 `yaml:"priority" json:"priority,omitempty"`
	LastMod     string  `yaml:"lastmod" json:"lastmod,omitempty"`
	NoIndex     bool    `yaml:"noindex" json:"noindex,omitempty"`
}

// SiteFile is the YAML document describing site identity and static routes.
type SiteFile struct {
	Name          string   `yaml:"name"`
	URL           string   `yaml:"url"`
	Description   string   `yaml:"description"`
	Author        string   `yaml:"author"`
	TwitterHandle string   `yaml:"twitter"`
	DefaultImage  string   `yaml:"default_image"`
	Locale        string   `yaml:"locale"`
	Routes        []Route  `yaml:"routes"`
	Disallow      []string `yaml:"disallow"`
}

// LoadSiteFile reads and parses the YAML site file at p.
func LoadSiteFile(p string) (SiteFile, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return SiteFile{}, fmt.Errorf("read site file: %w", err)
	}
	var sf SiteFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return SiteFile{}, fmt.Errorf("parse site file %s: %w", p, err)
	}
	sf.Routes = NormalizeRoutes(sf.Routes)
	return sf, nil
}

// Apply copies identity fields into cfg where cfg has no value yet, and
// replaces cfg's routes and disallow list.
func (sf SiteFile) Apply(cfg *SiteConfig) {
	setIfEmpty(&cfg.Name, sf.Name)
	setIfEmpty(&cfg.URL, sf.URL)
	setIfEmpty(&cfg.Description, sf.Description)
	setIfEmpty(&cfg.Author, sf.Author)
	setIfEmpty(&cfg.TwitterHandle, sf.TwitterHandle)
	setIfEmpty(&cfg.DefaultImage, sf.DefaultImage)
	setIfEmpty(&cfg.Locale, sf.Locale)
	cfg.Routes = sf.Routes
	cfg.Disallow = sf.Disallow
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

var changeFreqs = map[string]bool{
	"always": true, "hourly": true, "daily": true, "weekly": true,
	"monthly": true, "yearly": true, "never": true,
}

// NormalizePath returns p with a leading slash and no trailing slash,
// except for the root path.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = path.Clean("/" + p)
	return p
}

// NormalizeRoutes cleans paths, clamps priorities to [0,1] (NaN means
// unset), drops unknown changefreq values and collapses duplicate paths
// (last wins). The result is sorted with "/" first.
func NormalizeRoutes(routes []Route) []Route {
	byPath := make(map[string]Route, len(routes))
	for _, r := range routes {
		r.Path = NormalizePath(r.Path)
		r.ChangeFreq = strings.ToLower(strings.TrimSpace(r.ChangeFreq))
		if !changeFreqs[r.ChangeFreq] {
			r.ChangeFreq = ""
		}
		if math.IsNaN(r.Priority) {
			r.Priority = 0
		}
		r.Priority = math.Max(0, math.Min(1, r.Priority))
		byPath[r.Path] = r
	}
	out := make([]Route, 0, len(byPath))
	for _, r := range byPath {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path == "/" || out[j].Path == "/" {
			return out[i].Path == "/"
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App before the server starts.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStore uses an already opened store instead of opening DatabaseURL.
func WithStore(s *Store) Option {
	return func(a *App) {
		a.Store = s
	}
}

// WithCaptioner overrides the alt text generator.
func WithCaptioner(c caption.Captioner) Option {
	return func(a *App) {
		a.captioner = c
	}
}
