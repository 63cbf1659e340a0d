package config

import (
	"context"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-reads the config when the file changes, so schedule edits
// made while the agent is still waiting for a start time are picked up.
// It prefers fsnotify and falls back to mtime polling when the
// filesystem does not support change events.
type Watcher struct {
	Path     string
	Cooldown time.Duration // 抑制编辑器连续写入触发的重复加载
	Interval time.Duration // polling fallback interval
}

// Start blocks until ctx is done; onUpdate receives each successfully
// reloaded config. Reloads that fail validation are dropped.
func (w Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	if w.Cooldown <= 0 {
		w.Cooldown = 2 * time.Second
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return w.poll(ctx, onUpdate)
	}
	defer fsw.Close()
	if err := fsw.Add(w.Path); err != nil {
		return w.poll(ctx, onUpdate)
	}

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if time.Since(last) < w.Cooldown {
				continue
			}
			last = time.Now()
			if cfg, err := LoadWithEnvOverrides(w.Path); err == nil && onUpdate != nil {
				onUpdate(cfg)
			}
		case _, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
		}
	}
}

// poll is the mtime fallback.
func (w Watcher) poll(ctx context.Context, onUpdate func(AppConfig)) error {
	if w.Interval <= 0 {
		w.Interval = 2 * time.Second
	}
	var lastMod time.Time
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			info, err := readFileInfo(w.Path)
			if err != nil {
				continue
			}
			if info.ModTime().After(lastMod) {
				lastMod = info.ModTime()
				if cfg, err := LoadWithEnvOverrides(w.Path); err == nil && onUpdate != nil {
					onUpdate(cfg)
				}
			}
		}
	}
}

// readFileInfo is extracted for testing/mocking.
var readFileInfo = func(path string) (info interface{ ModTime() time.Time }, err error) {
	return os.Stat(path)
}
