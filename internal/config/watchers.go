package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/platformbuilds/mirador-remedy/pkg/logger"
)

// RulesWatcher hot-reloads the rules file and fans the parsed result out to
// registered callbacks.
type RulesWatcher struct {
	rulesPath string
	logger    logger.Logger
	mu        sync.RWMutex
	rules     *RulesFile
	watchers  []func(*RulesFile)
	stopCh    chan struct{}
}

func NewRulesWatcher(rulesPath string, logger logger.Logger) *RulesWatcher {
	return &RulesWatcher{
		rulesPath: rulesPath,
		logger:    logger,
		watchers:  make([]func(*RulesFile), 0),
		stopCh:    make(chan struct{}),
	}
}

// Start begins watching for rules file changes
func (w *RulesWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.rulesPath); err != nil {
		return fmt.Errorf("failed to watch rules file: %w", err)
	}

	w.logger.Info("Rules watcher started", "rulesPath", w.rulesPath)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Op&fsnotify.Write == fsnotify.Write {
				w.logger.Info("Rules file changed, reloading...", "file", event.Name)

				if err := w.reload(); err != nil {
					w.logger.Error("Failed to reload rules file", "error", err)
					continue
				}

				w.notifyWatchers()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Rules watcher error", "error", err)

		case <-ctx.Done():
			w.logger.Info("Rules watcher stopping")
			return nil

		case <-w.stopCh:
			w.logger.Info("Rules watcher stopped")
			return nil
		}
	}
}

// RegisterWatcher adds a callback invoked with the freshly parsed rules
func (w *RulesWatcher) RegisterWatcher(callback func(*RulesFile)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watchers = append(w.watchers, callback)
}

// Rules returns the last successfully parsed rules file (thread-safe)
func (w *RulesWatcher) Rules() *RulesFile {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.rules
}

// Stop stops the rules watcher
func (w *RulesWatcher) Stop() {
	close(w.stopCh)
}

func (w *RulesWatcher) reload() error {
	rules, err := LoadRulesFile(w.rulesPath)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.rules = rules
	w.mu.Unlock()

	w.logger.Info("Rules file reloaded successfully",
		"alertRules", len(rules.AlertRules),
		"remediationActions", len(rules.RemediationActions))
	return nil
}

func (w *RulesWatcher) notifyWatchers() {
	w.mu.RLock()
	rules := w.rules
	watchers := make([]func(*RulesFile), len(w.watchers))
	copy(watchers, w.watchers)
	w.mu.RUnlock()

	for _, watcher := range watchers {
		go func(cb func(*RulesFile)) {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("Rules watcher callback panicked", "panic", r)
				}
			}()
			cb(rules)
		}(watcher)
	}
}
