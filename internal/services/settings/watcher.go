// -----------------------------------------------------------------------
// Config Watcher - fsnotify watch triggering the settings reload path
// -----------------------------------------------------------------------

package settings

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
)

// debounceWindow coalesces the burst of events editors emit per save.
const debounceWindow = 500 * time.Millisecond

// Watcher triggers a reload callback when the config file changes on disk.
// Editors replace files via rename, so the parent directory is watched and
// events are filtered to the target name.
type Watcher struct {
	path     string
	onChange func()
	logger   arbor.ILogger

	fsw  *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher creates a watcher for the given config file. Call Start to
// begin watching and Stop to release the inotify handle.
func NewWatcher(path string, onChange func(), logger arbor.ILogger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		logger:   logger,
		fsw:      fsw,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() error {
	if err := w.fsw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	go w.loop()

	w.logger.Info().
		Str(common.FieldCategory, common.CategorySystem).
		Str(common.FieldAction, common.ActionStart).
		Str("path", w.path).
		Msg("Config file watcher started")
	return nil
}

func (w *Watcher) loop() {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, func() {
				w.logger.Info().
					Str(common.FieldCategory, common.CategorySystem).
					Str(common.FieldAction, common.ActionReload).
					Str("path", w.path).
					Msg("Config file changed, reloading settings")
				w.onChange()
			})

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().
				Str(common.FieldCategory, common.CategorySystem).
				Err(err).
				Msg("Config watcher error")
		}
	}
}

// Stop closes the watcher. Safe to call once.
func (w *Watcher) Stop() {
	close(w.done)
	_ = w.fsw.Close()
}
