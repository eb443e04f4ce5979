package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/tidewater-labs/plantpulse/internal/notifier"
	"github.com/tidewater-labs/plantpulse/internal/scorer"
)

// reloadDebounce coalesces the burst of events editors emit on save.
const reloadDebounce = 500 * time.Millisecond

// watchConfig watches the config file and applies runtime-tunable
// sections on change: scoring thresholds, hard limits, and the
// severity-to-channel routing. Listener addresses, storage, and worker
// counts require a restart. A config that fails to parse or validate
// is logged and ignored, keeping the last good settings.
func watchConfig(ctx context.Context, path string, logger *zap.Logger, scr *scorer.Scorer, dispatcher *notifier.Dispatcher) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace the file on
	// save, which drops a direct watch.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	target, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			evPath, err := filepath.Abs(ev.Name)
			if err != nil || evPath != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				timerCh = timer.C
			} else {
				timer.Reset(reloadDebounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", zap.Error(err))

		case <-timerCh:
			timer = nil
			timerCh = nil
			applyReload(path, logger, scr, dispatcher)
		}
	}
}

func applyReload(path string, logger *zap.Logger, scr *scorer.Scorer, dispatcher *notifier.Dispatcher) {
	cfg, err := LoadConfig(path)
	if err != nil {
		logger.Warn("config reload rejected", zap.Error(err))
		return
	}

	sc := cfg.ScorerConfig()
	scr.UpdateThresholds(sc.Thresholds, sc.DefaultThresholds, sc.HardLimits)
	dispatcher.UpdateChannelMap(cfg.ChannelMap())

	logger.Info("config reloaded",
		zap.Int("threshold_overrides", len(sc.Thresholds)),
		zap.Int("hard_limits", len(sc.HardLimits)))
}
