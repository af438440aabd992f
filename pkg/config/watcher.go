package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/listen-stream/playlist-screen/pkg/logger"
)

// ChangeHandler is a function called when the configuration file changes.
type ChangeHandler func(cfg *Config) error

// Watcher reloads the configuration file on change and notifies handlers.
// Only settings that can change at runtime, such as log.level, should be
// acted on by handlers.
type Watcher struct {
	loader   *FileLoader
	log      logger.Logger
	mu       sync.RWMutex
	handlers []ChangeHandler
	current  *Config
}

// NewWatcher creates a watcher over a loader that has already loaded successfully.
func NewWatcher(loader *FileLoader, initial *Config, log logger.Logger) (*Watcher, error) {
	if loader.v == nil {
		return nil, fmt.Errorf("loader has not been loaded")
	}
	return &Watcher{
		loader:  loader,
		log:     log,
		current: initial,
	}, nil
}

// OnChange registers a handler to be called when configuration changes.
func (w *Watcher) OnChange(handler ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.handlers = append(w.handlers, handler)
}

// Current returns the last successfully loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins watching the config file. It is a no-op when no file was read.
func (w *Watcher) Start() {
	if w.loader.ConfigFileUsed() == "" {
		w.log.Info("No config file in use, watcher disabled")
		return
	}

	w.loader.v.OnConfigChange(func(e fsnotify.Event) {
		w.reload(e.Name)
	})
	w.loader.v.WatchConfig()
	w.log.Info("Watching config file", logger.String("file", w.loader.ConfigFileUsed()))
}

func (w *Watcher) reload(name string) {
	cfg, err := w.loader.decode(w.loader.v)
	if err != nil {
		// 保留旧配置
		w.log.Warn("Config reload rejected", logger.String("file", name), logger.Error(err))
		return
	}

	w.mu.Lock()
	w.current = cfg
	handlers := append([]ChangeHandler(nil), w.handlers...)
	w.mu.Unlock()

	for _, handler := range handlers {
		if err := handler(cfg); err != nil {
			w.log.Error("Config change handler failed", logger.Error(err))
		}
	}

	w.log.Info("Configuration reloaded", logger.String("file", name))
}
