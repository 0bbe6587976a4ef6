// Copyright 2025 Philipp Hossner
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

// Package certwatcher publishes an event whenever a stored certificate file
// is created or rewritten, so the new PEM reaches every application server
// hosting its provisioning session.
package certwatcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"msaf/pkg/appserver"
	"msaf/pkg/controller/events"
	busevents "msaf/pkg/events"
)

// DefaultDebounce coalesces the events of one file write.
const DefaultDebounce = 250 * time.Millisecond

// KeyResolver maps certificate files to keys.
type KeyResolver interface {
	Dir() string
	KeyForPath(path string) (appserver.CertificateKey, bool)
}

// Watcher watches the certificate directory and its per-session
// subdirectories.
type Watcher struct {
	eventBus *busevents.EventBus
	resolver KeyResolver
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a watcher. debounce of zero means DefaultDebounce.
func New(eventBus *busevents.EventBus, resolver KeyResolver, logger *slog.Logger, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		eventBus: eventBus,
		resolver: resolver,
		logger:   logger.With("component", "certificate-watcher"),
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
	}
}

// Start watches until ctx is cancelled. The root directory is created if
// it does not exist.
func (w *Watcher) Start(ctx context.Context) error {
	root := w.resolver.Dir()
	if err := os.MkdirAll(root, 0o750); err != nil {
		return fmt.Errorf("failed to create certificate directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", root, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			w.watchDir(watcher, filepath.Join(root, entry.Name()))
		}
	}

	w.logger.Info("Certificate watcher starting", "dir", root)
	defer w.stopPending()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handle(watcher, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("certificate watch error", "error", err)

		case <-ctx.Done():
			w.logger.Info("Certificate watcher shutting down", "reason", ctx.Err())
			return nil
		}
	}
}

func (w *Watcher) handle(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.watchDir(watcher, event.Name)
			return
		}
	}

	key, ok := w.resolver.KeyForPath(event.Name)
	if !ok {
		return
	}
	w.schedule(key, event.Name)
}

func (w *Watcher) watchDir(watcher *fsnotify.Watcher, dir string) {
	if err := watcher.Add(dir); err != nil {
		w.logger.Warn("failed to watch session certificate directory", "dir", dir, "error", err)
		return
	}
	w.logger.Debug("watching session certificate directory", "dir", dir)
}

// schedule publishes the change once the file has been quiet for the
// debounce period.
func (w *Watcher) schedule(key appserver.CertificateKey, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		w.logger.Debug("certificate file changed", "certificate", key.String(), "path", path)
		w.eventBus.Publish(events.NewCertificateFileChangedEvent(key, path))
	})
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}
