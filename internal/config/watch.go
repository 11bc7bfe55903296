package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"alarmd/pkg/logx"
)

// debounce coalesces the editor write/rename/chmod bursts into one reload.
const debounce = 200 * time.Millisecond

// Watch reloads the config whenever the file changes and calls onChange with
// each successfully parsed version. Invalid intermediate states are logged
// and skipped; the previous config stays in effect. Watch blocks until ctx
// is done.
//
// The parent directory is watched (not the file itself) so atomic
// rename-into-place saves keep working.
func Watch(ctx context.Context, path string, log logx.Logger, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return err
	}
	base := filepath.Base(path)

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watch error", logx.Err(err))
		case <-timerC:
			cfg, err := Load(path)
			if err != nil {
				log.Warn("config reload failed, keeping previous", logx.Err(err))
				continue
			}
			log.Info("config reloaded", logx.String("path", path))
			onChange(cfg)
		}
	}
}
