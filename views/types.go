package views

// Meta is the fully resolved <head> metadata for one route. Every URL field
// is absolute.
type Meta struct {
	Title       string
	Description string
	Canonical   string // canonical link + og:url
	Image       string
	ImageAlt    string
	Type        string // "website" or "article"
	Keywords    string
	Robots      string
	TwitterCard string
	TwitterSite string
	Locale      string
	SiteName    string
	JSONLD      []string // pre-encoded JSON-LD documents
}

// ManagedSelector matches every head element Head emits. Prerendering removes
// these from an existing document before injecting fresh ones.
const ManagedSelector = `title, meta[name="description"], meta[name="keywords"], meta[name="robots"], ` +
	`link[rel="canonical"], meta[property^="og:"], meta[name^="twitter:"], ` +
	`script[type="application/ld+json"]`
