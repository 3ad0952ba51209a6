package service

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// selfWriteWindow is how close to one of our own saves a filesystem event
// may land and still be attributed to us. Atomic renames fire several events
// per save.
const selfWriteWindow = 2 * time.Second

// WatchStateFile reloads and re-broadcasts the document when another process
// rewrites the state file (the desktop shell shares it). The parent
// directory is watched because atomic writers replace the file by rename.
// Blocks until ctx is cancelled.
func (s *Service) WatchStateFile(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(path)

	var debounce *time.Timer
	reload := func() {
		state, err := s.Snapshot()
		if err != nil {
			if s.log != nil {
				s.log.Warnw("reload after external state change failed", "error", err)
			}
			s.PublishSoftErrors([]string{"state file changed externally but could not be reloaded: " + err.Error()})
			return
		}
		s.events.publish(Event{Type: EventStateUpdated, State: state})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if s.now().UnixNano()-s.lastSaveUnixNano.Load() < int64(selfWriteWindow) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if s.log != nil {
				s.log.Warnw("state file watcher error", "error", err)
			}
		}
	}
}
