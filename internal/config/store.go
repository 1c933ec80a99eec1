package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/huebridged/huebridged/internal/errors"
	"github.com/huebridged/huebridged/internal/light"
)

// Store is the durable lights store: a single YAML document mapping light ids
// to per-light configuration and the last reconciled state, plus an entity-id
// index. Every state write is flushed to disk before returning.
type Store struct {
	logger            *slog.Logger
	path              string
	defaultThrottleMS int

	mu       sync.Mutex
	doc      storeDocument
	lastSave time.Time
}

type storeDocument struct {
	NextID   int                    `yaml:"next_id"`
	Entities map[string]string      `yaml:"entities"`
	Lights   map[string]*LightEntry `yaml:"lights"`
}

// LightEntry is one light's stored configuration.
type LightEntry struct {
	EntityID   string       `yaml:"entity_id"`
	Name       string       `yaml:"name"`
	UniqueID   string       `yaml:"uniqueid"`
	Enabled    bool         `yaml:"enabled"`
	ThrottleMS int          `yaml:"throttle"`
	State      *light.State `yaml:"state,omitempty"`
}

// OpenStore loads the store at path, starting empty when the file does not
// exist yet. defaultThrottleMS seeds the throttle of newly allocated lights.
func OpenStore(logger *slog.Logger, path string, defaultThrottleMS int) (*Store, error) {
	s := &Store{
		logger:            logger,
		path:              path,
		defaultThrottleMS: defaultThrottleMS,
		doc: storeDocument{
			Entities: make(map[string]string),
			Lights:   make(map[string]*LightEntry),
		},
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Info("store: starting with empty lights store", "path", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lights store %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &s.doc); err != nil {
		return nil, fmt.Errorf("parse lights store %s: %w", path, err)
	}
	if s.doc.Entities == nil {
		s.doc.Entities = make(map[string]string)
	}
	if s.doc.Lights == nil {
		s.doc.Lights = make(map[string]*LightEntry)
	}

	logger.Info("store: loaded lights store", "path", path, "lights", len(s.doc.Lights))
	return s, nil
}

// EntityIDToLightID returns the light id for an entity, allocating a new
// numeric id (and a durable entry) on first sight.
func (s *Store) EntityIDToLightID(entityID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.doc.Entities[entityID]; ok {
		return id, nil
	}

	s.doc.NextID++
	id := strconv.Itoa(s.doc.NextID)
	s.doc.Entities[entityID] = id
	s.doc.Lights[id] = &LightEntry{
		EntityID:   entityID,
		UniqueID:   newUniqueID(),
		Enabled:    true,
		ThrottleMS: s.defaultThrottleMS,
	}
	s.logger.Info("store: allocated light id", "entity_id", entityID, "light_id", id)

	if err := s.saveLocked(); err != nil {
		return "", err
	}
	return id, nil
}

// LightConfig returns the stored configuration for a light id.
func (s *Store) LightConfig(lightID string) (light.LightConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.doc.Lights[lightID]
	if !ok {
		return light.LightConfig{}, errors.NotFoundf("light config %s", lightID)
	}
	return light.LightConfig{
		Name:       entry.Name,
		UniqueID:   entry.UniqueID,
		Enabled:    entry.Enabled,
		ThrottleMS: entry.ThrottleMS,
		State:      entry.State.Clone(),
	}, nil
}

// SetLightState persists a reconciled state for a light. The write is durable
// before return; a failed write propagates to the caller.
func (s *Store) SetLightState(lightID string, state *light.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.doc.Lights[lightID]
	if !ok {
		return errors.NotFoundf("light config %s", lightID)
	}
	entry.State = state.Clone()
	return s.saveLocked()
}

// EntityIDs returns all entity ids known to the store.
func (s *Store) EntityIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.doc.Entities))
	for id := range s.doc.Entities {
		ids = append(ids, id)
	}
	return ids
}

// Save flushes the document to disk.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked writes the document atomically via a temp file rename.
func (s *Store) saveLocked() error {
	raw, err := yaml.Marshal(&s.doc)
	if err != nil {
		return fmt.Errorf("marshal lights store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return fmt.Errorf("write lights store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace lights store: %w", err)
	}

	s.lastSave = time.Now()
	return nil
}

// Watch logs a warning when the store file is modified by another process.
// External edits are not reloaded: reconciling concurrent mutation of
// persisted state is explicitly unsupported, so the operator is told to
// restart instead.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create store watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch store directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != s.path || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				s.mu.Lock()
				external := time.Since(s.lastSave) > time.Second
				s.mu.Unlock()
				if external {
					s.logger.Warn("store: lights store modified externally; changes are ignored until restart", "path", s.path)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("store: watcher error", "error", err)
			}
		}
	}()
	return nil
}

// newUniqueID derives a Hue-style unique id from a random UUID.
func newUniqueID() string {
	u := uuid.New()
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x:%02x:%02x-0b",
		u[0], u[1], u[2], u[3], u[4], u[5], u[6], u[7])
}
