// SPDX-License-Identifier: MIT
package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"yukkuri/internal/bridge"
	"yukkuri/internal/log"
	"yukkuri/internal/media"
	"yukkuri/internal/processor"
)

const watchQueueSize = 64

// Watcher processes clips as they appear in a directory, for a download
// collaborator that drops one file per line.
type Watcher struct {
	dir    string
	fs     *fsnotify.Watcher
	seen   map[string]bool
	queued chan string

	Extensions []string
	// Settle is how long to wait after a clip appears before reading it.
	Settle    time.Duration
	Processor Processor
	Speed     int
	Volume    int
	Pitch     int
	Log       log.LogFunc
	OnResult  func(processor.Result)
}

// NewWatcher starts watching dir. Events are handled once Run is called.
func NewWatcher(dir string, proc Processor) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	return &Watcher{
		dir:        dir,
		fs:         fw,
		seen:       make(map[string]bool),
		queued:     make(chan string, watchQueueSize),
		Extensions: []string{".mp3", ".wav"},
		Processor:  proc,
		Speed:      100,
		Volume:     100,
		Pitch:      100,
	}, nil
}

// Close stops watching without running.
func (w *Watcher) Close() error { return w.fs.Close() }

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// accept reports whether an event names a new clip. Intermediate outputs
// are ignored and so is the rename that puts a processed clip back in place.
func (w *Watcher) accept(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) {
		return false
	}
	name := filepath.Base(ev.Name)
	if media.IsScratch(name) {
		return false
	}
	if strings.HasSuffix(strings.TrimSuffix(name, filepath.Ext(name)), bridge.ProcessedSuffix) {
		return false
	}
	return matches(name, w.Extensions)
}

// Run handles events until ctx is done. Clips are processed one at a time
// in arrival order. It closes the underlying watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()
	w.Log.Printf("Watching %s for %s", w.dir, strings.Join(w.Extensions, ", "))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(w.queued)
		for {
			select {
			case ev, ok := <-w.fs.Events:
				if !ok {
					return nil
				}
				if !w.accept(ev) {
					continue
				}
				select {
				case w.queued <- ev.Name:
				case <-ctx.Done():
					return nil
				}
			case err, ok := <-w.fs.Errors:
				if !ok {
					return nil
				}
				w.Log.Printf("Watcher error: %v", err)
			case <-ctx.Done():
				return nil
			}
		}
	})
	g.Go(func() error {
		for path := range w.queued {
			if ctx.Err() != nil || w.seen[path] {
				continue
			}
			if !sleep(ctx, w.Settle) {
				continue
			}
			w.seen[path] = true
			res := w.Processor.ProcessRequest(ctx, processor.Request{
				Path: path, Speed: w.Speed, Volume: w.Volume, Pitch: w.Pitch,
			}, w.Log)
			if w.OnResult != nil {
				w.OnResult(res)
			}
		}
		return nil
	})
	return g.Wait()
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
