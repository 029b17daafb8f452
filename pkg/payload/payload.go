// Package payload manages part payloads stored as external files on
// disk instead of inline in the database, for parts too large to keep
// in a database row economically.
package payload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store is a directory of external payload files, one per external
// Part row, named by an opaque generated id rather than anything
// derived from item or part id so a rename never collides.
type Store struct {
	dir string
}

// NewStore opens (creating if necessary) the external payload
// directory at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("payload: create dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory the store writes into.
func (s *Store) Dir() string { return s.dir }

// Path resolves name to its full path under the store directory.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Write atomically stores data as a new external file and returns its
// name. The write goes to a temp file in the same directory, is
// flushed and fsynced, then renamed into place, so a crash mid-write
// never leaves a partially-written file visible under its final name.
func (s *Store) Write(data []byte) (name string, size int64, err error) {
	name = uuid.NewString()
	tmp := s.Path(name + ".tmp")
	final := s.Path(name)

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("payload: create temp file: %w", err)
	}
	n, err := f.Write(data)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return "", 0, fmt.Errorf("payload: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", 0, fmt.Errorf("payload: fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", 0, fmt.Errorf("payload: close temp file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", 0, fmt.Errorf("payload: rename into place: %w", err)
	}
	return name, int64(n), nil
}

// WriteFrom streams r into a new external file the same way Write does.
// APPEND and X-AKAPPEND pass their already-read literal through here,
// wrapped in a reader.
func (s *Store) WriteFrom(r io.Reader) (name string, size int64, err error) {
	name = uuid.NewString()
	tmp := s.Path(name + ".tmp")
	final := s.Path(name)

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("payload: create temp file: %w", err)
	}
	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return "", 0, fmt.Errorf("payload: stream to temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", 0, fmt.Errorf("payload: fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", 0, fmt.Errorf("payload: close temp file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", 0, fmt.Errorf("payload: rename into place: %w", err)
	}
	return name, n, nil
}

// Read loads an external file's full contents, used to serve a FETCH
// whose requested part is stored externally.
func (s *Store) Read(name string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("payload: read %s: %w", name, err)
	}
	return data, nil
}

// Delete removes an external file. It is not an error for the file to
// already be gone, since deletion only ever runs after the owning
// transaction committed and a concurrent janitor sweep may have beaten
// it to the punch.
func (s *Store) Delete(name string) error {
	if err := os.Remove(s.Path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("payload: delete %s: %w", name, err)
	}
	return nil
}

// Exists reports whether name has a backing file, used by the
// janitor's external-file-verification sweep.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Stat returns the backing file's size, used by the janitor to check a
// Part's recorded datasize against what is actually on disk.
func (s *Store) Stat(name string) (int64, error) {
	info, err := os.Stat(s.Path(name))
	if err != nil {
		return 0, fmt.Errorf("payload: stat %s: %w", name, err)
	}
	return info.Size(), nil
}

// List returns the name of every file currently held by the store,
// in-progress temp writes excluded, used by the janitor to find files
// on disk with no referencing Part row.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("payload: list dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}
