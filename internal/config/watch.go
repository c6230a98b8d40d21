package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"shardmem/internal/logging"
)

// Watcher reloads configuration when the config file changes on disk.
// Used by the maintenance daemon so TTL and compression policy edits
// take effect without a restart.
type Watcher struct {
	path    string
	fsw     *fsnotify.Watcher
	onLoad  func(*Config)
	done    chan struct{}
	stopped chan struct{}
}

// NewWatcher starts watching path. onLoad is invoked with the freshly
// parsed config after every successful reload; parse failures keep the
// previous config and are logged.
func NewWatcher(path string, onLoad func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors replace files by
	// rename, which drops a direct file watch.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    path,
		fsw:     fsw,
		onLoad:  onLoad,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.stopped)
	log := logging.Get(logging.CategoryConfig)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}

			cfg, err := Load(w.path)
			if err != nil {
				log.Warn("config reload failed, keeping previous config", zap.Error(err))
				continue
			}
			log.Info("config reloaded")
			w.onLoad(cfg)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn("config watcher error", zap.Error(err))

		case <-w.done:
			return
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.fsw.Close()
	<-w.stopped
	return err
}
