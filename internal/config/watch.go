package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"agentcron/pkg/logx"
)

// Watch observes the config file and invokes onChange with each newly
// parsed and validated config. Editors often write in multiple events, so
// changes are debounced; parse or validation failures keep the previous
// config and are only logged.
func Watch(ctx context.Context, path string, log logx.Logger, onChange func(*Config)) error {
	if log.IsZero() {
		log = logx.Nop()
	}
	dir := filepath.Dir(path)
	file := filepath.Base(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return err
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, func() {
			cfg, err := Load(path)
			if err != nil {
				log.Warn("config reload rejected", logx.String("path", path), logx.Err(err))
				return
			}
			log.Info("config reloaded", logx.String("path", path))
			onChange(cfg)
		})
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != file {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				debounce()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("config watch error", logx.Err(err))
			}
		}
	}()
	return nil
}
