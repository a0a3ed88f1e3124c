package policy

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/juju/zaputil/zapctx"
	"go.uber.org/zap"
)

// Watch reloads the policy file on every write and hands the parsed result
// to onReload. Documents that fail to parse are logged and skipped, so a
// broken edit never tears down the active policy. Watch blocks until ctx is
// cancelled.
func Watch(ctx context.Context, path string, onReload func(*Policy)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				p, err := Load(path)
				if err != nil {
					zapctx.Warn(ctx, "review policy reload failed",
						zap.String("path", path),
						zap.Error(err))
					continue
				}
				onReload(p)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			zapctx.Warn(ctx, "review policy watcher error", zap.Error(err))
		}
	}
}
