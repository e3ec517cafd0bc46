package sitemeta

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/eringen/sitemeta/crawler"
)

// RecordCrawlerHit stores one crawler request.
func (s *Store) RecordCrawlerHit(ctx context.Context, h crawler.Hit) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	query, args, err := s.sb.Insert("crawler_hits").
		Columns("id", "bot_name", "kind", "user_agent", "path", "ip_hash", "created_at").
		Values(h.ID, h.BotName, string(h.Kind), h.UserAgent, h.Path, h.IPHash, formatTime(h.CreatedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record crawler hit: %w", err)
	}
	return nil
}

// ListCrawlerHits returns hits recorded at or after since, oldest first.
func (s *Store) ListCrawlerHits(ctx context.Context, since time.Time) ([]crawler.Hit, error) {
	query, args, err := s.sb.Select("id", "bot_name", "kind", "user_agent", "path", "ip_hash", "created_at").
		From("crawler_hits").
		Where(sq.GtOrEq{"created_at": formatTime(since)}).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query crawler hits: %w", err)
	}
	defer rows.Close()

	var out []crawler.Hit
	for rows.Next() {
		var h crawler.Hit
		var kind, created string
		if err := rows.Scan(&h.ID, &h.BotName, &kind, &h.UserAgent, &h.Path, &h.IPHash, &created); err != nil {
			return nil, fmt.Errorf("scan crawler hit: %w", err)
		}
		h.Kind = crawler.Kind(kind)
		h.CreatedAt = parseTime(created)
		out = append(out, h)
	}
	return out, rows.Err()
}

// CrawlerStats aggregates the last days of crawler traffic.
func (s *Store) CrawlerStats(ctx context.Context, days int) (crawler.Stats, error) {
	hits, err := s.ListCrawlerHits(ctx, time.Now().AddDate(0, 0, -days))
	if err != nil {
		return crawler.Stats{}, err
	}
	return crawler.Aggregate(hits, days, 10), nil
}

// DeleteCrawlerHitsBefore removes hits older than cutoff and returns how
// many were deleted.
func (s *Store) DeleteCrawlerHitsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := s.sb.Delete("crawler_hits").Where(sq.Lt{"created_at": formatTime(cutoff)}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete crawler hits: %w", err)
	}
	return res.RowsAffected()
}
