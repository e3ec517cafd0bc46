// Package crawler classifies User-Agent strings into search engines, social
// link unfurlers, SEO tools and generic bots so the edge can decide whether
// a request gets prerendered metadata or the client-side app.
package crawler

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Kind groups crawlers by what they do with the page.
type Kind string

const (
	KindNone    Kind = "none"
	KindSearch  Kind = "search"
	KindSocial  Kind = "social"
	KindSEO     Kind = "seo"
	KindGeneric Kind = "generic"
)

// Result is the outcome of Detect.
type Result struct {
	IsBot bool
	Name  string
	Kind  Kind
}

type pattern struct {
	match string
	name  string
	kind  Kind
}

// patterns is ordered: specific names before the generic fallbacks, since
// "googlebot" also contains "bot".
var patterns = []pattern{
	{"googlebot", "Googlebot", KindSearch},
	{"google-inspectiontool", "Google Inspection", KindSearch},
	{"bingbot", "Bingbot", KindSearch},
	{"yandex", "Yandex", KindSearch},
	{"baiduspider", "Baidu", KindSearch},
	{"duckduckbot", "DuckDuckBot", KindSearch},
	{"applebot", "Applebot", KindSearch},
	{"slurp", "Yahoo Slurp", KindSearch},
	{"petalbot", "PetalBot", KindSearch},

	{"facebookexternalhit", "Facebook", KindSocial},
	{"facebookcatalog", "Facebook", KindSocial},
	{"twitterbot", "Twitterbot", KindSocial},
	{"linkedinbot", "LinkedIn", KindSocial},
	{"slackbot", "Slackbot", KindSocial},
	{"slack-imgproxy", "Slackbot", KindSocial},
	{"discordbot", "Discordbot", KindSocial},
	{"whatsapp", "WhatsApp", KindSocial},
	{"telegrambot", "TelegramBot", KindSocial},
	{"pinterest", "Pinterest", KindSocial},
	{"redditbot", "Redditbot", KindSocial},
	{"embedly", "Embedly", KindSocial},
	{"skypeuripreview", "Skype", KindSocial},
	{"vkshare", "VK", KindSocial},

	{"ahrefsbot", "Ahrefs", KindSEO},
	{"semrushbot", "SEMrush", KindSEO},
	{"mj12bot", "Majestic", KindSEO},
	{"dotbot", "Moz", KindSEO},
	{"screaming frog", "Screaming Frog", KindSEO},

	{"crawler", "Generic Crawler", KindGeneric},
	{"spider", "Generic Spider", KindGeneric},
	{"crawl", "Generic Crawler", KindGeneric},
	{"scrape", "Generic Scraper", KindGeneric},
	{"headlesschrome", "Headless Chrome", KindGeneric},
	{"bot", "Other Bot", KindGeneric},
}

// Detect classifies ua. An empty User-Agent is not treated as a bot.
func Detect(ua string) Result {
	ua = strings.ToLower(strings.TrimSpace(ua))
	if ua == "" {
		return Result{Kind: KindNone}
	}
	for _, p := range patterns {
		if strings.Contains(ua, p.match) {
			return Result{IsBot: true, Name: p.name, Kind: p.kind}
		}
	}
	return Result{Kind: KindNone}
}

// IsBot reports whether ua belongs to any known crawler.
func IsBot(ua string) bool {
	return Detect(ua).IsBot
}

// HashIP creates a salted SHA-256 hash of an IP address.
func HashIP(salt, ip string) string {
	h := sha256.New()
	h.Write([]byte(salt + ip))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Hit is a single crawler request served by the edge.
type Hit struct {
	ID        string    `json:"id"`
	BotName   string    `json:"bot_name"`
	Kind      Kind      `json:"kind"`
	UserAgent string    `json:"user_agent"`
	Path      string    `json:"path"`
	IPHash    string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats holds aggregated crawler activity for a period.
type Stats struct {
	Days        int             `json:"days"`
	TotalVisits int             `json:"total_visits"`
	TopBots     []DimensionStat `json:"top_bots"`
	TopPages    []DimensionStat `json:"top_pages"`
	DailyVisits []DailyCount    `json:"daily_visits"`
}

// DimensionStat is one row of a breakdown.
type DimensionStat struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// DailyCount is the number of hits on a single day.
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Aggregate builds Stats from raw hits. Breakdowns are sorted by count
// descending and capped at limit entries; days are sorted ascending.
func Aggregate(hits []Hit, days, limit int) Stats {
	bots := make(map[string]int)
	pages := make(map[string]int)
	daily := make(map[string]int)
	for _, h := range hits {
		bots[h.BotName]++
		pages[h.Path]++
		daily[h.CreatedAt.UTC().Format("2006-01-02")]++
	}
	st := Stats{
		Days:        days,
		TotalVisits: len(hits),
		TopBots:     topN(bots, limit),
		TopPages:    topN(pages, limit),
	}
	for d, n := range daily {
		st.DailyVisits = append(st.DailyVisits, DailyCount{Date: d, Count: n})
	}
	sortDaily(st.DailyVisits)
	return st
}
