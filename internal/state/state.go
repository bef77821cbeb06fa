// Package state persists the viewer's navigation index between runs.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/midgard-viewer/internal/logger"
	"go.uber.org/zap"
)

type document struct {
	Num int `yaml:"num"`
}

// Store reads and writes the current model index.
type Store struct {
	path string
}

// NewStore creates a store backed by a YAML file.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Load returns the saved index, or 0 when the file is absent or unreadable.
// Range checking is left to the caller.
func (s *Store) Load() int {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("reading state", zap.String("path", s.path), zap.Error(err))
		}
		return 0
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		logger.Warn("parsing state", zap.String("path", s.path), zap.Error(err))
		return 0
	}
	return doc.Num
}

// Save writes the index, creating parent directories.
func (s *Store) Save(num int) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	data, err := yaml.Marshal(document{Num: num})
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	return nil
}
