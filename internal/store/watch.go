package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the settings whenever another process replaces the file and
// applies the result. Invalid content is logged and ignored, keeping the
// last-known-good settings. It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating settings watcher: %w", err)
	}
	defer watcher.Close()

	// Saves rename over the file, so the directory is watched rather than the inode.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(s.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s.reloadExternal(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("settings watcher error", s.logger.Field().Error("error", err))
		}
	}
}

func (s *Store) reloadExternal(ctx context.Context) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	settings, err := s.read(ctx)
	if err != nil {
		s.logger.Warn("ignoring external settings change",
			s.logger.Field().String("path", s.path),
			s.logger.Field().Error("error", err))
		return
	}
	if settings == s.Current() {
		return
	}
	s.current.Store(&settings)
	s.logger.Info("settings changed on disk", s.logger.Field().String("path", s.path))
	if s.applier != nil {
		s.applier.ApplySettings(ctx, settings)
	}
}
