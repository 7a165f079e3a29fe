package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"roomwatch/internal/utils"

	"github.com/fsnotify/fsnotify"
)

const defaultSettle = 200 * time.Millisecond

// DirectorySource serves snapshot cameras that upload still images into a folder.
// Each new or rewritten image becomes a frame once writes to it have been quiet for Settle.
type DirectorySource struct {
	dir    string
	settle time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	initial string
}

// NewDirectorySource creates a source watching dir
func NewDirectorySource(dir string, opts Options) *DirectorySource {
	settle := opts.Settle
	if settle <= 0 {
		settle = defaultSettle
	}
	return &DirectorySource{dir: dir, settle: settle}
}

func (s *DirectorySource) String() string {
	return DirScheme + s.dir
}

// Open starts watching the directory. The newest image already present is served first.
func (s *DirectorySource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("failed to stat snapshot directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	s.watcher = watcher
	s.initial = newestImage(s.dir)
	log.Printf("📁 [CAPTURE] Watching %s for snapshots", s.dir)
	return nil
}

// Next waits for the next settled image
func (s *DirectorySource) Next(ctx context.Context) (Capture, error) {
	s.mu.Lock()
	watcher := s.watcher
	initial := s.initial
	s.initial = ""
	s.mu.Unlock()

	if watcher == nil {
		return Capture{}, fmt.Errorf("%w: not open", ErrSourceEnded)
	}
	if initial != "" {
		return readSnapshot(initial)
	}

	timer := time.NewTimer(s.settle)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	var pending string
	for {
		select {
		case <-ctx.Done():
			return Capture{}, ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return Capture{}, fmt.Errorf("%w: watcher closed", ErrSourceEnded)
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !utils.IsValidImageExtension(event.Name) {
				continue
			}
			pending = event.Name
			timer.Reset(s.settle)

		case err, ok := <-watcher.Errors:
			if !ok {
				return Capture{}, fmt.Errorf("%w: watcher closed", ErrSourceEnded)
			}
			return Capture{}, fmt.Errorf("%w: %v", ErrSourceEnded, err)

		case <-timer.C:
			if pending != "" {
				return readSnapshot(pending)
			}
		}
	}
}

// Close stops watching
func (s *DirectorySource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	s.watcher = nil
	return err
}

func readSnapshot(path string) (Capture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Capture{}, fmt.Errorf("%w: %s vanished before it could be read", ErrBadFrame, filepath.Base(path))
		}
		return Capture{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return Capture{Data: data, Timestamp: now()}, nil
}

func newestImage(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !utils.IsValidImageExtension(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = filepath.Join(dir, e.Name())
			newestMod = info.ModTime()
		}
	}
	return newest
}
