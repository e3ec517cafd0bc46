package sitemeta

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// reloadDebounce lets editors finish writing before the file is re-read.
const reloadDebounce = 300 * time.Millisecond

// watchSiteFile reloads the site file whenever it changes until ctx is done.
// The directory is watched rather than the file so that editors replacing
// the file by rename are picked up.
func (a *App) watchSiteFile(ctx context.Context) {
	file, err := filepath.Abs(a.Config().SiteFile)
	if err != nil {
		log.Warn().Err(err).Msg("site file watch disabled")
		return
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("site file watch disabled")
		return
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(file)); err != nil {
		log.Warn().Err(err).Str("dir", filepath.Dir(file)).Msg("site file watch disabled")
		return
	}
	log.Debug().Str("file", file).Msg("watching site file")

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != file || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(reloadDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("site file watcher")
		case <-timer.C:
			if err := a.ReloadSiteFile(); err != nil {
				log.Error().Err(err).Msg("site file reload failed, keeping previous config")
				continue
			}
			cfg := a.Config()
			log.Info().Int("routes", len(cfg.Routes)).Msg("site file reloaded")
		}
	}
}
