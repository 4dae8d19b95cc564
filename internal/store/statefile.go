// Package store persists monitor state.
//
// Each monitor exclusively owns one JSON state file: read once at startup,
// rewritten wholesale (tmp + rename) after every successful cycle. Durability
// is at-least-once: a crash between publish and flush may repeat one
// notification on restart, which is accepted.
//
// An optional sqlite journal records every surfaced notification for
// after-the-fact inspection.
package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// File is a single-owner JSON state file. Callers serialize access; the
// owning monitor is the only writer by contract.
type File struct {
	path string
}

func NewFile(path string) *File { return &File{path: path} }

func (f *File) Path() string { return f.path }

// Load reads the state into v. Returns found=false (and no error) when the
// file does not exist yet.
func (f *File) Load(v any) (found bool, err error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, err
	}
	return true, nil
}

// Save rewrites the whole file atomically. A reader (or a restart) sees
// either the previous or the new state, never a partial write.
func (f *File) Save(v any) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
