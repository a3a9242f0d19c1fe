// Package configsvc watches YAML configuration files and hands typed, reloaded values to
// their owners.
package configsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ghodss/yaml"
	"go.uber.org/zap"
)

// DefaultDebounce collapses the burst of events editors produce for a single save.
const DefaultDebounce = 100 * time.Millisecond

type subscriber struct {
	path   string
	reload func()
	timer  *time.Timer
}

type Service struct {
	log      *zap.Logger
	debounce time.Duration

	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	dirs        map[string]struct{}
	subscribers []*subscriber
	ready       chan struct{}
}

type Option func(s *Service)

func WithDebounce(d time.Duration) Option {
	return func(s *Service) {
		s.debounce = d
	}
}

func New(log *zap.Logger, opts ...Option) (*Service, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	svc := &Service{
		log:      log,
		debounce: DefaultDebounce,
		watcher:  watcher,
		dirs:     make(map[string]struct{}),
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Start dispatches file events until ctx is done. The watcher is closed on return.
func (s *Service) Start(ctx context.Context) error {
	defer s.stop()
	close(s.ready)
	s.log.Info("Config service started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			s.mu.Lock()
			for _, sub := range s.subscribers {
				if sub.path != event.Name {
					continue
				}
				if sub.timer == nil {
					sub.timer = time.AfterFunc(s.debounce, sub.reload)
				} else {
					sub.timer.Reset(s.debounce)
				}
			}
			s.mu.Unlock()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Error("Watcher error", zap.Error(err))
		}
	}
}

func (s *Service) stop() {
	s.mu.Lock()
	for _, sub := range s.subscribers {
		if sub.timer != nil {
			sub.timer.Stop()
		}
	}
	s.mu.Unlock()
	if err := s.watcher.Close(); err != nil {
		s.log.Warn("Failed to close watcher", zap.Error(err))
	}
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

func (s *Service) watch(absPath string, reload func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := filepath.Dir(absPath)
	if _, ok := s.dirs[dir]; !ok {
		if err := s.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to add path to watcher %s: %w", dir, err)
		}
		s.dirs[dir] = struct{}{}
	}
	s.subscribers = append(s.subscribers, &subscriber{path: absPath, reload: reload})
	return nil
}

// Register registers a configuration file to watch for changes and calls fn with the new configuration.
// It returns the initial configuration and an error if the file cannot be read.
// Service instance is used as a parameter instead of the method receiver to enable generic types.
func Register[T any](s *Service, path string, def T, fn func(config T, err error)) (T, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return def, fmt.Errorf("failed to get absolute path for %s: %w", path, err)
	}
	config, err := readConfig(absPath, def)
	if err != nil {
		return def, fmt.Errorf("failed to read config: %w", err)
	}
	err = s.watch(absPath, func() {
		fn(readConfig(absPath, def))
	})
	if err != nil {
		return def, err
	}
	return config, nil
}

// RegisterWriteable is Register for files the service owns: a missing file is created
// with def. An error returned by fn is logged.
func RegisterWriteable[T any](s *Service, path string, def T, fn func(config T, err error) error) (T, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return def, fmt.Errorf("failed to get absolute path for %s: %w", path, err)
	}
	config, err := readConfig(absPath, def)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return def, fmt.Errorf("failed to create config dir: %w", err)
		}
		if err := Write(absPath, def); err != nil {
			return def, fmt.Errorf("failed to initialize config: %w", err)
		}
		s.log.Info("Created config file with defaults", zap.String("path", absPath))
		config = def
	case err != nil:
		return def, fmt.Errorf("failed to read config: %w", err)
	}
	err = s.watch(absPath, func() {
		if err := fn(readConfig(absPath, def)); err != nil {
			s.log.Error("Config rejected", zap.String("path", absPath), zap.Error(err))
		}
	})
	if err != nil {
		return def, err
	}
	return config, nil
}

// Write stores config as YAML at path.
func Write[T any](path string, config T) error {
	jsonB, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	yamlB, err := yaml.JSONToYAML(jsonB)
	if err != nil {
		return fmt.Errorf("failed to convert json to yaml: %w", err)
	}

	err = os.WriteFile(path, yamlB, 0644)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// readConfig decodes the file over def, so keys missing from the file keep their
// default values.
func readConfig[T any](path string, def T) (T, error) {
	yamlB, err := os.ReadFile(path)
	if err != nil {
		return def, fmt.Errorf("failed to read config file: %w", err)
	}

	jsonB, err := yaml.YAMLToJSON(yamlB)
	if err != nil {
		return def, fmt.Errorf("failed to convert yaml to json: %w", err)
	}
	err = json.Unmarshal(jsonB, &def)
	if err != nil {
		return def, fmt.Errorf("failed to unmarshal json: %w", err)
	}
	return def, nil
}
