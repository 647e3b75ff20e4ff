package narrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/phuslu/log"
)

// Watch narrates every report for host that appears in dir until ctx is
// done. Reports are written by rename, so a finished file shows up as a
// create event. Narration failures are logged and do not stop the watch.
func Watch(ctx context.Context, dir, host string, n Narrator) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("narrate: watch dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("narrate: new watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("narrate: watch %s: %w", dir, err)
	}
	log.Info().Str("component", "narrate").Str("dir", dir).Str("host", host).Msg("watching for reports")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) || !isReport(event.Name, host) {
				continue
			}
			if err := SpeakFile(ctx, event.Name, n); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Warn().Str("component", "narrate").Str("path", event.Name).Err(err).Msg("narration failed")
				continue
			}
			log.Info().Str("component", "narrate").Str("path", event.Name).Msg("narrated report")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Str("component", "narrate").Err(err).Msg("watcher error")
		}
	}
}

func isReport(path, host string) bool {
	base := filepath.Base(path)
	return !strings.HasPrefix(base, ".") && strings.HasSuffix(base, ".txt") && strings.Contains(base, host)
}
