package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/milkpudding/gateway/internal/logging"
)

// FileSource reads the route blob from a local file and pushes a new
// version whenever the file is rewritten.
type FileSource struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
}

// NewFileSource creates a source for the given file path.
func NewFileSource(path string) (*FileSource, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &FileSource{
		path:     path,
		watcher:  fsWatcher,
		debounce: 500 * time.Millisecond,
	}, nil
}

// SetDebounce overrides the delay between a file event and the re-read.
func (s *FileSource) SetDebounce(d time.Duration) {
	s.debounce = d
}

// Fetch reads the current file contents.
func (s *FileSource) Fetch(ctx context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("read route file: %w", err)
	}
	return string(data), nil
}

// Watch begins watching the file's directory and emits the file contents
// after every write or create event, debounced against editor save storms.
func (s *FileSource) Watch(ctx context.Context) (<-chan string, error) {
	// Watch the directory, not the file: editors replace files by rename
	// and a watch on the old inode would go silent.
	if err := s.watcher.Add(filepath.Dir(s.path)); err != nil {
		return nil, fmt.Errorf("watch route file directory: %w", err)
	}

	out := make(chan string)
	go s.run(ctx, out)
	return out, nil
}

func (s *FileSource) run(ctx context.Context, out chan<- string) {
	defer close(out)

	var debounceTimer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(s.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			blob, err := s.Fetch(ctx)
			if err != nil {
				logging.Error("route file re-read failed", zap.String("path", s.path), zap.Error(err))
				continue
			}
			select {
			case out <- blob:
			case <-ctx.Done():
				return
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("route file watcher error", zap.Error(err))
		}
	}
}

// Close stops the underlying filesystem watcher.
func (s *FileSource) Close() error {
	return s.watcher.Close()
}
