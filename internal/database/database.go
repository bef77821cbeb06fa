// Package database loads the read-only model descriptor list.
package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Database errors.
var (
	ErrEmpty      = errors.New("database has no models")
	ErrUnnamed    = errors.New("model descriptor has no name")
	ErrOutOfRange = errors.New("model index out of range")
)

// Usage records where a model is used. Loaded but not consumed by the viewer.
type Usage struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Lvl  int    `json:"lvl"`
}

// Descriptor describes one viewable model.
type Descriptor struct {
	Name      string  `json:"name"`
	WalkSpeed float64 `json:"walkSpeed"`
	RunSpeed  float64 `json:"runSpeed"`
	ColRadius float64 `json:"colRadius"`
	ColHeight float64 `json:"colHeight"`
	Usages    []Usage `json:"usages"`
}

// Database is the ordered descriptor list. Descriptors are keyed by position.
type Database struct {
	Models []Descriptor `json:"models"`
}

// Load reads and parses a database file.
func Load(path string) (*Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading database: %w", err)
	}
	return Parse(data)
}

// Parse decodes database JSON. An empty model list is an error since the
// viewer cannot index into it.
func Parse(data []byte) (*Database, error) {
	var db Database
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("decoding database: %w", err)
	}
	if len(db.Models) == 0 {
		return nil, ErrEmpty
	}
	for i, m := range db.Models {
		if m.Name == "" {
			return nil, fmt.Errorf("model %d: %w", i, ErrUnnamed)
		}
	}
	return &db, nil
}

// Len returns the number of descriptors.
func (db *Database) Len() int {
	return len(db.Models)
}

// Model returns the descriptor at position i.
func (db *Database) Model(i int) (Descriptor, error) {
	if i < 0 || i >= len(db.Models) {
		return Descriptor{}, fmt.Errorf("%w: %d (have %d)", ErrOutOfRange, i, len(db.Models))
	}
	return db.Models[i], nil
}

// Wrap maps any integer onto a valid position, wrapping in both directions.
func (db *Database) Wrap(i int) int {
	return Wrap(i, len(db.Models))
}

// Wrap returns i modulo n in [0, n). n must be positive.
func Wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}
