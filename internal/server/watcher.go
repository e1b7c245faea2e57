package server

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"github.com/wierd-stuff-inc/scribes/internal/logging"
	"github.com/wierd-stuff-inc/scribes/util"
)

// Watcher pushes book pages that were written or created into a render queue.
// Only the book directory itself is watched, not its subdirectories.
type Watcher struct {
	watcher *fsnotify.Watcher
	dir     string
	queue   *RenderQueue
	log     logging.Logger
}

func NewWatcher(dir string, queue *RenderQueue, log logging.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Watcher{
		watcher: fsWatcher,
		dir:     dir,
		queue:   queue,
		log:     log,
	}, nil
}

// Run handles events until ctx is done and then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	w.log.Info("watching book", "dir", w.dir)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	// Only handle write and create events
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if !util.IsPageSource(event.Name) {
		return
	}
	if w.queue.Push(event.Name) {
		w.log.Debug("page changed", "file", event.Name)
	}
}
