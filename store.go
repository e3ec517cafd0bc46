package sitemeta

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Store wraps the content database. It runs against a local SQLite file or a
// Supabase Postgres database depending on the DSN given to Open.
type Store struct {
	db      *sql.DB
	sb      sq.StatementBuilderType
	dialect string
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Open connects to dsn and applies pending migrations. DSNs starting with
// postgres:// or postgresql:// use pgx; anything else is a SQLite file path.
func Open(ctx context.Context, dsn string) (*Store, error) {
	s := &Store{}
	var err error
	if isPostgres(dsn) {
		s.dialect = "postgres"
		s.sb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
		s.db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		s.db.SetMaxOpenConns(10)
		s.db.SetMaxIdleConns(2)
		s.db.SetConnMaxLifetime(time.Hour)
	} else {
		s.dialect = "sqlite3"
		s.sb = sq.StatementBuilder.PlaceholderFormat(sq.Question)
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		// WAL for concurrent readers, a busy timeout so writers wait instead
		// of failing with SQLITE_BUSY, and synchronous=NORMAL which is safe
		// under WAL. Pragmas in the DSN apply to every pooled connection.
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		s.db, err = sql.Open("sqlite", dsn+sep+"_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		s.db.SetMaxOpenConns(4)
		s.db.SetMaxIdleConns(4)
	}
	if err := s.db.PingContext(ctx); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		s.db.Close()
		return nil, err
	}
	return s, nil
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func (s *Store) migrate(ctx context.Context) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect(s.dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// gooseLogger forwards goose output to zerolog at debug level.
type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...interface{}) {
	log.Debug().Str("component", "goose").Msgf(strings.TrimSpace(format), v...)
}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	log.Fatal().Str("component", "goose").Msgf(strings.TrimSpace(format), v...)
}

// Dialect returns "sqlite3" or "postgres".
func (s *Store) Dialect() string {
	return s.dialect
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

var postColumns = []string{"slug", "title", "published_on", "tags", "summary", "content", "image", "published", "updated_at"}

func scanPost(row rowScanner) (BlogPost, error) {
	var p BlogPost
	var tags, updated string
	if err := row.Scan(&p.Slug, &p.Title, &p.Date, &tags, &p.Summary, &p.Content, &p.Image, &p.Published, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BlogPost{}, ErrNotFound
		}
		return BlogPost{}, fmt.Errorf("scan post: %w", err)
	}
	p.Tags = ParseTags(tags)
	p.Link = "/blog/" + p.Slug
	p.UpdatedAt = parseTime(updated)
	return p, nil
}

func (s *Store) queryPosts(ctx context.Context, q sq.SelectBuilder) ([]BlogPost, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []BlogPost
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// ListPosts returns all published posts ordered by date descending.
// If tag is non-empty, results are filtered to posts containing that tag.
func (s *Store) ListPosts(ctx context.Context, tag string) ([]BlogPost, error) {
	q := s.sb.Select(postColumns...).From("blog_posts").
		Where(sq.Eq{"published": true}).
		OrderBy("published_on DESC", "slug")
	if tag = normalizeTag(tag); tag != "" {
		q = q.Where(sq.Like{"tags": "%," + tag + ",%"})
	}
	return s.queryPosts(ctx, q)
}

// ListAllPosts returns every post (published and drafts) ordered by date descending.
func (s *Store) ListAllPosts(ctx context.Context) ([]BlogPost, error) {
	return s.queryPosts(ctx, s.sb.Select(postColumns...).From("blog_posts").OrderBy("published_on DESC", "slug"))
}

// ListTags returns a sorted, deduplicated slice of all tags from published posts.
func (s *Store) ListTags(ctx context.Context) ([]string, error) {
	posts, err := s.ListPosts(ctx, "")
	if err != nil {
		return nil, err
	}
	return collectTags(posts), nil
}

func collectTags(posts []BlogPost) []string {
	set := make(map[string]struct{})
	for _, p := range posts {
		for _, t := range p.Tags {
			set[normalizeTag(t)] = struct{}{}
		}
	}
	result := make([]string, 0, len(set))
	for t := range set {
		result = append(result, t)
	}
	sort.Strings(result)
	return result
}

// GetPost returns a single published post by slug.
func (s *Store) GetPost(ctx context.Context, slug string) (BlogPost, error) {
	return s.getPost(ctx, sq.Eq{"slug": slug, "published": true})
}

// GetPostAny returns a post by slug regardless of published status (for admin).
func (s *Store) GetPostAny(ctx context.Context, slug string) (BlogPost, error) {
	return s.getPost(ctx, sq.Eq{"slug": slug})
}

func (s *Store) getPost(ctx context.Context, where sq.Eq) (BlogPost, error) {
	query, args, err := s.sb.Select(postColumns...).From("blog_posts").Where(where).ToSql()
	if err != nil {
		return BlogPost{}, fmt.Errorf("build query: %w", err)
	}
	return scanPost(s.db.QueryRowContext(ctx, query, args...))
}

// SavePost upserts a blog post. Tags are normalized to lowercase.
func (s *Store) SavePost(ctx context.Context, p BlogPost) error {
	normalized := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		if t = normalizeTag(t); t != "" {
			normalized = append(normalized, t)
		}
	}
	tagString := ""
	if len(normalized) > 0 {
		tagString = "," + strings.Join(normalized, ",") + ","
	}
	query, args, err := s.sb.Insert("blog_posts").Columns(postColumns...).
		Values(p.Slug, p.Title, p.Date, tagString, p.Summary, p.Content, p.Image, p.Published, formatTime(time.Now())).
		Suffix(upsertSuffix("slug", postColumns[1:])).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save post: %w", err)
	}
	return nil
}

// DeletePost removes a post by slug.
func (s *Store) DeletePost(ctx context.Context, slug string) error {
	return s.deleteWhere(ctx, "blog_posts", sq.Eq{"slug": slug})
}

func (s *Store) deleteWhere(ctx context.Context, table string, where sq.Sqlizer) error {
	query, args, err := s.sb.Delete(table).Where(where).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSetting returns a stored setting, or "" when unset.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	query, args, err := s.sb.Select("value").From("settings").Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return "", err
	}
	var v string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

// SetSetting stores a setting, replacing any previous value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	query, args, err := s.sb.Insert("settings").Columns("key", "value").Values(key, value).
		Suffix(upsertSuffix("key", []string{"value"})).ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// upsertSuffix builds an ON CONFLICT clause understood by both SQLite and Postgres.
func upsertSuffix(key string, cols []string) string {
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = excluded." + c
	}
	return "ON CONFLICT (" + key + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

// ParseTags splits a comma-delimited tag string (e.g. ",go,web,") into a slice.
func ParseTags(tagString string) []string {
	tagString = strings.Trim(tagString, ",")
	if tagString == "" {
		return nil
	}
	parts := strings.Split(tagString, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
