package sitemeta

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// startScheduler registers the periodic jobs: rebuilds, crawler hit
// retention and, when VerifySchedule is set, live verification.
func (a *App) startScheduler() error {
	cfg := a.Config()
	c := cron.New()

	if _, err := c.AddFunc(cfg.RebuildSchedule, func() {
		a.Builder.Trigger()
	}); err != nil {
		return fmt.Errorf("rebuild schedule %q: %w", cfg.RebuildSchedule, err)
	}

	if _, err := c.AddFunc("@daily", a.pruneCrawlerHits); err != nil {
		return fmt.Errorf("retention schedule: %w", err)
	}

	if cfg.VerifySchedule != "" {
		if _, err := c.AddFunc(cfg.VerifySchedule, a.scheduledVerify); err != nil {
			return fmt.Errorf("verify schedule %q: %w", cfg.VerifySchedule, err)
		}
	}

	a.scheduler = c
	c.Start()
	log.Info().
		Str("rebuild", cfg.RebuildSchedule).
		Str("verify", cfg.VerifySchedule).
		Int("retention_days", cfg.CrawlerRetentionDays).
		Msg("scheduler started")
	return nil
}

func (a *App) pruneCrawlerHits() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	days := a.Config().CrawlerRetentionDays
	cutoff := time.Now().AddDate(0, 0, -days)
	n, err := a.Store.DeleteCrawlerHitsBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("prune crawler hits")
		return
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Int("retention_days", days).Msg("pruned crawler hits")
	}
}

// scheduledVerify checks every indexable route of the live site and logs
// the pages with errors.
func (a *App) scheduledVerify() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	results, err := a.VerifySite(ctx, "", a.verifier)
	if err != nil {
		log.Error().Err(err).Msg("scheduled verify")
		return
	}
	failed := 0
	for _, r := range results {
		if r.OK() {
			continue
		}
		failed++
		ev := log.Warn().Str("url", r.URL).Int("status", r.Status).Int("attempts", r.Attempts)
		if r.Err != "" {
			ev = ev.Str("error", r.Err)
		}
		if r.Report != nil {
			ev = ev.Int("errors", len(r.Report.Errors()))
		}
		ev.Msg("verify failed")
	}
	log.Info().Int("pages", len(results)).Int("failed", failed).Msg("scheduled verify finished")
}
