package coverage

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/catcoverage/internal/storage"
)

const reloadDebounce = 200 * time.Millisecond

// ReloadCallback is called after every reload attempt triggered by the
// watcher. changed is false when the file content was unchanged.
type ReloadCallback func(changed bool, checksum string, err error)

// Watch reloads svc whenever the annotation file in the workdir is
// written, created or renamed into place, until ctx is cancelled. Bursts
// of events are debounced into a single reload.
func Watch(ctx context.Context, svc *Service, logger *slog.Logger, cb ReloadCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// The directory is watched so that atomic renames are seen.
	if err := w.Add(svc.dir.Root()); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("workdir", svc.dir.Root()))

	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(reloadDebounce)
			timerCh = timer.C
		} else {
			timer.Reset(reloadDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			changed, err := svc.Reload(ctx)
			sum := ""
			if snap, cerr := svc.Current(); cerr == nil {
				sum = snap.Checksum
			}
			if err != nil {
				logger.Warn("watcher: reload failed", slog.String("error", err.Error()))
			} else if !changed {
				logger.Debug("watcher: annotation file unchanged")
			}
			if cb != nil {
				cb(changed, sum, err)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != storage.AnnotationsFile {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				logger.Debug("watcher: annotation file event", slog.String("op", ev.Op.String()))
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
