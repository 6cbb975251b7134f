package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ConfigWatcher reloads the configuration when its file changes on disk.
// Watchers registered on the ConfigManager receive each valid reload.
type ConfigWatcher struct {
	configManager *ConfigManager
	watcher       *fsnotify.Watcher
	path          string
	logger        *zap.Logger
	debounceTime  time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	stopChan chan struct{}
	done     chan struct{}
}

// NewConfigWatcher watches the directory of the manager's config file so that
// editors replacing the file atomically are still observed
func NewConfigWatcher(configManager *ConfigManager, logger *zap.Logger) (*ConfigWatcher, error) {
	path := configManager.ConfigPath()
	if path == "" {
		return nil, errors.New("no config path set")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	return &ConfigWatcher{
		configManager: configManager,
		watcher:       watcher,
		path:          filepath.Clean(path),
		logger:        logger,
		debounceTime:  500 * time.Millisecond,
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}, nil
}

// SetDebounceTime sets the quiet period before a reload
func (cw *ConfigWatcher) SetDebounceTime(duration time.Duration) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.debounceTime = duration
}

// Start begins watching in the background
func (cw *ConfigWatcher) Start() {
	cw.logger.Info("watching config file", zap.String("path", cw.path))
	go cw.watchLoop()
}

// Stop stops the watcher and waits for the loop to exit
func (cw *ConfigWatcher) Stop() {
	close(cw.stopChan)
	if err := cw.watcher.Close(); err != nil {
		cw.logger.Warn("error closing file watcher", zap.Error(err))
	}
	<-cw.done

	cw.mu.Lock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.mu.Unlock()
}

func (cw *ConfigWatcher) watchLoop() {
	defer close(cw.done)
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleFileEvent(event)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warn("config watcher error", zap.Error(err))

		case <-cw.stopChan:
			return
		}
	}
}

func (cw *ConfigWatcher) handleFileEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != cw.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	// collapse bursts of writes into one reload
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.timer = time.AfterFunc(cw.debounceTime, cw.reload)
}

func (cw *ConfigWatcher) reload() {
	if err := cw.configManager.Reload(); err != nil {
		cw.logger.Error("config reload rejected, keeping previous configuration", zap.Error(err))
		return
	}
	cw.logger.Info("config reloaded", zap.String("path", cw.path))
}
