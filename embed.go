package sitemeta

import "embed"

// migrationsFS holds the goose SQL migrations applied by Open.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// EmbeddedAssets contains files shipped with the binary: the fallback SPA
// shell used for prerendering when no build output exists.
//
//go:embed embedded/*
var EmbeddedAssets embed.FS
