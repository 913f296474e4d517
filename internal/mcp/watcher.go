// Copyright 2026 The modelgate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors server configuration files and fires a callback when one
// changes, debounced so editor save bursts collapse into a single reload.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	logger    *slog.Logger
	debounce  time.Duration
	onChange  func(path string)

	mu      sync.Mutex
	pending map[string]*time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// OnChange is invoked with the changed path after the debounce window.
	// Required.
	OnChange func(path string)

	// Logger for structured logging (optional).
	Logger *slog.Logger

	// Debounce is the quiet period before OnChange fires (defaults to 200ms).
	Debounce time.Duration
}

// NewWatcher creates a watcher and starts its event loop.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.OnChange == nil {
		return nil, fmt.Errorf("OnChange callback is required")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := cfg.Debounce
	if debounce == 0 {
		debounce = 200 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		fsWatcher: fsWatcher,
		logger:    logger,
		debounce:  debounce,
		onChange:  cfg.OnChange,
		pending:   make(map[string]*time.Timer),
		ctx:       ctx,
		cancel:    cancel,
	}

	w.wg.Add(1)
	go w.processEvents()

	return w, nil
}

// Watch adds a path to the watch set.
func (w *Watcher) Watch(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	if err := w.fsWatcher.Add(absPath); err != nil {
		return fmt.Errorf("failed to watch path %s: %w", absPath, err)
	}
	w.logger.Debug("watching config path", "path", absPath)
	return nil
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.schedule(event.Name)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", "error", err)

		case <-w.ctx.Done():
			return
		}
	}
}

// schedule resets the debounce timer for a changed path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		w.logger.Info("config file changed", "path", path)
		w.onChange(path)
	})
}

// Close stops the watcher and cancels pending callbacks.
func (w *Watcher) Close() error {
	w.cancel()

	w.mu.Lock()
	for _, timer := range w.pending {
		timer.Stop()
	}
	w.mu.Unlock()

	w.wg.Wait()
	return w.fsWatcher.Close()
}
