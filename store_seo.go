package sitemeta

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var seoColumns = []string{"path", "title", "description", "image", "image_alt", "keywords", "og_type", "noindex", "updated_at"}

func scanSEOMeta(row rowScanner) (SEOMeta, error) {
	var m SEOMeta
	var updated string
	err := row.Scan(&m.Path, &m.Title, &m.Description, &m.Image, &m.ImageAlt, &m.Keywords, &m.OGType, &m.NoIndex, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SEOMeta{}, ErrNotFound
		}
		return SEOMeta{}, fmt.Errorf("scan seo meta: %w", err)
	}
	m.UpdatedAt = parseTime(updated)
	return m, nil
}

// ListSEOMeta returns every seo_meta row ordered by path.
func (s *Store) ListSEOMeta(ctx context.Context) ([]SEOMeta, error) {
	query, args, err := s.sb.Select(seoColumns...).From("seo_meta").OrderBy("path").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query seo meta: %w", err)
	}
	defer rows.Close()

	var out []SEOMeta
	for rows.Next() {
		m, err := scanSEOMeta(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetSEOMeta returns the override row for path.
func (s *Store) GetSEOMeta(ctx context.Context, path string) (SEOMeta, error) {
	query, args, err := s.sb.Select(seoColumns...).From("seo_meta").Where(sq.Eq{"path": path}).ToSql()
	if err != nil {
		return SEOMeta{}, fmt.Errorf("build query: %w", err)
	}
	return scanSEOMeta(s.db.QueryRowContext(ctx, query, args...))
}

// SaveSEOMeta upserts the override row for m.Path.
func (s *Store) SaveSEOMeta(ctx context.Context, m SEOMeta) error {
	return s.saveSEOMeta(ctx, s.db, m)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) saveSEOMeta(ctx context.Context, db execer, m SEOMeta) error {
	query, args, err := s.sb.Insert("seo_meta").Columns(seoColumns...).
		Values(m.Path, m.Title, m.Description, m.Image, m.ImageAlt, m.Keywords, m.OGType, m.NoIndex, formatTime(time.Now())).
		Suffix(upsertSuffix("path", seoColumns[1:])).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save seo meta: %w", err)
	}
	return nil
}

// DeleteSEOMeta removes the override row for path.
func (s *Store) DeleteSEOMeta(ctx context.Context, path string) error {
	return s.deleteWhere(ctx, "seo_meta", sq.Eq{"path": path})
}

var pageColumns = []string{"path", "title", "description", "changefreq", "priority", "lastmod"}

// ListPages returns every page_metadata row ordered by path.
func (s *Store) ListPages(ctx context.Context) ([]PageMetadata, error) {
	query, args, err := s.sb.Select(pageColumns...).From("page_metadata").OrderBy("path").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	var out []PageMetadata
	for rows.Next() {
		var p PageMetadata
		if err := rows.Scan(&p.Path, &p.Title, &p.Description, &p.ChangeFreq, &p.Priority, &p.LastMod); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SavePage upserts a page_metadata row.
func (s *Store) SavePage(ctx context.Context, p PageMetadata) error {
	query, args, err := s.sb.Insert("page_metadata").Columns(pageColumns...).
		Values(p.Path, p.Title, p.Description, p.ChangeFreq, p.Priority, p.LastMod).
		Suffix(upsertSuffix("path", pageColumns[1:])).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save page: %w", err)
	}
	return nil
}

// DeletePage removes a page_metadata row.
func (s *Store) DeletePage(ctx context.Context, path string) error {
	return s.deleteWhere(ctx, "page_metadata", sq.Eq{"path": path})
}
