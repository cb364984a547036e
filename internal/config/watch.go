package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce collapses the burst of fsnotify events one editor save produces
// (write, chmod, rename-replace) into a single reload.
const debounce = 250 * time.Millisecond

// Watch monitors the config file and calls onChange when the analysis
// section changes on disk. Only analysis parameters are hot-reloadable; the
// server and mqtt sections are bound at startup, so edits to them take
// effect on the next restart and do not trigger onChange. A file that fails
// to load keeps the previous parameters active. Runs until ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	current, err := Load(path)
	if err != nil {
		return err
	}
	active := current.Analysis

	slog.Info("config: watching analysis parameters", "path", path)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, which arrives as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			pending = time.After(debounce)

		case <-pending:
			pending = nil

			// An atomic save replaced the inode; re-arm before reading.
			_ = watcher.Add(path)

			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, analysis parameters unchanged",
					"path", path, "err", err)
				continue
			}
			if cfg.Analysis == active {
				continue
			}

			active = cfg.Analysis
			slog.Info("config: analysis parameters reloaded",
				"path", path,
				"burn_threshold", active.BurnThreshold,
				"smoothing_window", active.SmoothingWindow,
			)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
