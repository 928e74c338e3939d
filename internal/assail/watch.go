package assail

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperpolymath/panic-attacker/internal/logging"
)

// debounceWindow coalesces bursts of editor write events into one rescan.
const debounceWindow = 500 * time.Millisecond

// Watch rescans the target whenever a source file changes and invokes
// onReport with each fresh analysis. It blocks until the context is
// cancelled or the watcher fails.
func Watch(ctx context.Context, target string, opts Options, logger *zap.Logger, onReport func(*Analysis)) error {
	logger = logging.OrNop(logger).Named("watch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addWatchDirs(watcher, target); err != nil {
		return err
	}

	runScan := func() {
		analyzer, err := NewAnalyzer(target, opts, logger)
		if err != nil {
			logger.Warn("scan setup failed", zap.Error(err))
			return
		}
		analysis, err := analyzer.Analyze(ctx)
		if err != nil {
			logger.Warn("rescan failed", zap.Error(err))
			return
		}
		onReport(analysis)
	}
	runScan()

	var timer *time.Timer
	pending := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addWatchDirs(watcher, event.Name)
				}
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", zap.Error(err))
		case <-pending:
			logger.Debug("change detected, rescanning")
			runScan()
		}
	}
}

func addWatchDirs(watcher *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return watcher.Add(filepath.Dir(root))
	}
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (skipDirs[name] || name[0] == '.') {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
