package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const debounceDelay = 250 * time.Millisecond

// Watch reloads path whenever it changes and hands each valid result to
// onChange. Invalid files are logged and ignored. The watcher runs until ctx
// is done; the returned channel closes once it has stopped.
func Watch(ctx context.Context, path string, log *zap.Logger, onChange func(Config)) (<-chan struct{}, error) {
	if log == nil {
		log = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	// Editors replace files by rename, so watch the directory.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer fw.Close()

		var timer *time.Timer
		var fire <-chan time.Time
		target := filepath.Clean(path)
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(debounceDelay)
				fire = timer.C
			case <-fire:
				fire = nil
				cfg, err := Load(path)
				if err != nil {
					log.Error("config reload rejected", zap.String("path", path), zap.Error(err))
					continue
				}
				log.Info("config reloaded", zap.String("path", path))
				onChange(cfg)
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				log.Error("config watcher error", zap.Error(err))
			}
		}
	}()
	return done, nil
}
