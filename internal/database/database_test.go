package database

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleJSON = `{
  "models": [
    {"name": "Poring", "walkSpeed": 400, "runSpeed": 800, "colRadius": 0.5, "colHeight": 1,
     "usages": [{"id": 1002, "name": "Poring", "lvl": 1}]},
    {"name": "Lunatic", "walkSpeed": 200, "runSpeed": 450},
    {"name": "Fabre", "walkSpeed": 400, "runSpeed": 0}
  ]
}`

func TestParse(t *testing.T) {
	db, err := Parse([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if db.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", db.Len())
	}

	m, err := db.Model(0)
	if err != nil {
		t.Fatalf("Model(0): %v", err)
	}
	if m.Name != "Poring" || m.WalkSpeed != 400 || m.RunSpeed != 800 {
		t.Errorf("unexpected descriptor %+v", m)
	}
	if len(m.Usages) != 1 || m.Usages[0].ID != 1002 || m.Usages[0].Lvl != 1 {
		t.Errorf("unexpected usages %+v", m.Usages)
	}

	if _, err := db.Model(3); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Model(3) error = %v, want ErrOutOfRange", err)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"empty list", `{"models": []}`, ErrEmpty},
		{"missing list", `{}`, ErrEmpty},
		{"unnamed model", `{"models": [{"name": "A"}, {"walkSpeed": 1}]}`, ErrUnnamed},
		{"bad json", `{"models": [`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	tests := []struct {
		i, n, want int
	}{
		{0, 5, 0},
		{4, 5, 4},
		{5, 5, 0},
		{-1, 5, 4},
		{-6, 5, 4},
		{12, 5, 2},
		{3, 1, 0},
		{-1, 1, 0},
	}

	for _, tt := range tests {
		if got := Wrap(tt.i, tt.n); got != tt.want {
			t.Errorf("Wrap(%d, %d) = %d, want %d", tt.i, tt.n, got, tt.want)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	if err := os.WriteFile(path, []byte(sampleJSON), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	db, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := db.Wrap(-1); got != 2 {
		t.Errorf("Wrap(-1) = %d, want 2", got)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
