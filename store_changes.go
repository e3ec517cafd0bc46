package sitemeta

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// ErrAlreadyApplied is returned when applying a dev mode change twice.
var ErrAlreadyApplied = errors.New("change already applied")

var changeColumns = []string{"id", "path", "field", "old_value", "new_value", "author", "applied", "created_at", "applied_at"}

func scanChange(row rowScanner) (DevModeChange, error) {
	var c DevModeChange
	var created string
	var applied sql.NullString
	err := row.Scan(&c.ID, &c.Path, &c.Field, &c.OldValue, &c.NewValue, &c.Author, &c.Applied, &created, &applied)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DevModeChange{}, ErrNotFound
		}
		return DevModeChange{}, fmt.Errorf("scan change: %w", err)
	}
	c.CreatedAt = parseTime(created)
	if applied.Valid {
		t := parseTime(applied.String)
		c.AppliedAt = &t
	}
	return c, nil
}

// CreateChange stores a new pending change and returns it with its ID set.
func (s *Store) CreateChange(ctx context.Context, c DevModeChange) (DevModeChange, error) {
	c.ID = uuid.NewString()
	c.Applied = false
	c.AppliedAt = nil
	c.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	query, args, err := s.sb.Insert("dev_mode_changes").
		Columns("id", "path", "field", "old_value", "new_value", "author", "applied", "created_at").
		Values(c.ID, c.Path, c.Field, c.OldValue, c.NewValue, c.Author, false, formatTime(c.CreatedAt)).
		ToSql()
	if err != nil {
		return DevModeChange{}, fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return DevModeChange{}, fmt.Errorf("create change: %w", err)
	}
	return c, nil
}

// GetChange returns a change by ID.
func (s *Store) GetChange(ctx context.Context, id string) (DevModeChange, error) {
	query, args, err := s.sb.Select(changeColumns...).From("dev_mode_changes").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return DevModeChange{}, fmt.Errorf("build query: %w", err)
	}
	return scanChange(s.db.QueryRowContext(ctx, query, args...))
}

// ListChanges returns changes newest first, optionally filtered by path
// and restricted to pending ones.
func (s *Store) ListChanges(ctx context.Context, path string, pendingOnly bool) ([]DevModeChange, error) {
	q := s.sb.Select(changeColumns...).From("dev_mode_changes").OrderBy("created_at DESC")
	if path != "" {
		q = q.Where(sq.Eq{"path": path})
	}
	if pendingOnly {
		q = q.Where(sq.Eq{"applied": false})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	var out []DevModeChange
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ApplyChange writes a pending change into seo_meta and marks it applied,
// capturing the value it replaced. Both writes share one transaction.
func (s *Store) ApplyChange(ctx context.Context, id string) (DevModeChange, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return DevModeChange{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query, args, err := s.sb.Select(changeColumns...).From("dev_mode_changes").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return DevModeChange{}, fmt.Errorf("build query: %w", err)
	}
	c, err := scanChange(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		return DevModeChange{}, err
	}
	if c.Applied {
		return c, ErrAlreadyApplied
	}

	query, args, err = s.sb.Select(seoColumns...).From("seo_meta").Where(sq.Eq{"path": c.Path}).ToSql()
	if err != nil {
		return DevModeChange{}, fmt.Errorf("build query: %w", err)
	}
	meta, err := scanSEOMeta(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, ErrNotFound) {
		meta = SEOMeta{Path: c.Path}
	} else if err != nil {
		return DevModeChange{}, err
	}

	c.OldValue = meta.Get(c.Field)
	if !meta.Set(c.Field, c.NewValue) {
		return DevModeChange{}, fmt.Errorf("%w: %q", ErrInvalidField, c.Field)
	}
	if err := s.saveSEOMeta(ctx, tx, meta); err != nil {
		return DevModeChange{}, err
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	query, args, err = s.sb.Update("dev_mode_changes").
		Set("applied", true).
		Set("old_value", c.OldValue).
		Set("applied_at", formatTime(now)).
		Where(sq.Eq{"id": id, "applied": false}).
		ToSql()
	if err != nil {
		return DevModeChange{}, fmt.Errorf("build update: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return DevModeChange{}, fmt.Errorf("mark applied: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return DevModeChange{}, ErrAlreadyApplied
	}
	if err := tx.Commit(); err != nil {
		return DevModeChange{}, fmt.Errorf("commit: %w", err)
	}
	c.Applied = true
	c.AppliedAt = &now
	return c, nil
}

// DeleteChange removes a change by ID.
func (s *Store) DeleteChange(ctx context.Context, id string) error {
	return s.deleteWhere(ctx, "dev_mode_changes", sq.Eq{"id": id})
}
