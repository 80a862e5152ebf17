package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Decode reads YAML settings from r on top of Default, so keys missing from
// the file keep their default value. Unknown keys are rejected.
func Decode(r io.Reader) (Settings, error) {
	s := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("%w: decode yaml: %w", ErrConfig, err)
	}
	if err := Validate(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Store persists Settings as a YAML file. Writes are last-writer-wins; the
// mutex only serialises writers inside one process.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a Store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the settings file location.
func (st *Store) Path() string { return st.path }

// Load reads the settings file. A missing file yields Default.
func (st *Store) Load() (Settings, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.load()
}

func (st *Store) load() (Settings, error) {
	data, err := os.ReadFile(st.path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("config: read %q: %w", st.path, err)
	}
	s, err := Decode(bytes.NewReader(data))
	if err != nil {
		return Settings{}, fmt.Errorf("config: parse %q: %w", st.path, err)
	}
	return s, nil
}

// Save validates s and writes it atomically.
func (st *Store) Save(s Settings) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.save(s)
}

func (st *Store) save(s Settings) error {
	if err := Validate(s); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if dir := filepath.Dir(st.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("config: create dir: %w", err)
		}
	}
	tmp := st.path + ".tmp"
	// Credentials live in this file.
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("config: write %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, st.path); err != nil {
		return fmt.Errorf("config: replace %q: %w", st.path, err)
	}
	return nil
}

// SaveFingerprint replaces only the fingerprint, keeping every other value
// currently on disk.
func (st *Store) SaveFingerprint(fp string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, err := st.load()
	if err != nil {
		return err
	}
	s.Fingerprint = fp
	return st.save(s)
}
