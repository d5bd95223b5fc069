// Package artifact owns the committed test tree. A scenario has at most one
// final artifact, keyed by name and category; replacing it always goes through
// a rename so a half-written file is never observable at the final path.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const (
	// GeneralCategory places an artifact at the root of the tree.
	GeneralCategory = "general"

	finalSuffix = ".spec.ts"
	tempSuffix  = ".temp.spec.ts"
)

// Store manages artifacts under a root directory.
type Store struct {
	root string
	log  *zap.Logger
}

// NewStore creates a Store rooted at root.
func NewStore(root string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{root: root, log: log.Named("artifact")}
}

// Root returns the artifact tree root.
func (s *Store) Root() string {
	return s.root
}

// FinalPath returns where the artifact for name lives. An empty or general
// category maps to the root of the tree.
func (s *Store) FinalPath(name, category string) string {
	dir := s.root
	if category != "" && category != GeneralCategory {
		dir = filepath.Join(s.root, filepath.FromSlash(category))
	}
	return filepath.Join(dir, name+finalSuffix)
}

// TempPath returns the working file used while repairing name.
func (s *Store) TempPath(name string) string {
	return filepath.Join(s.root, name+tempSuffix)
}

// Exists reports whether path is an existing regular file.
func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Locate searches the tree for a final artifact named name, for scenarios
// that are no longer in the catalog.
func (s *Store) Locate(name string) (string, bool) {
	want := name + finalSuffix
	var found string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == want {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("artifact search failed", zap.String("root", s.root), zap.Error(err))
	}
	return found, found != ""
}

// Load reads an artifact.
func (s *Store) Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("load artifact: %w", err)
	}
	return string(data), nil
}

// WriteTemp replaces the working file for name and returns its path.
func (s *Store) WriteTemp(name, code string) (string, error) {
	path := s.TempPath(name)
	if err := writeFileAtomic(path, []byte(code)); err != nil {
		return "", fmt.Errorf("write temp artifact: %w", err)
	}
	return path, nil
}

// Promote renames the working file over the final artifact.
func (s *Store) Promote(tempPath, finalPath string) error {
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("promote artifact: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("promote artifact: %w", err)
	}
	s.log.Info("artifact committed", zap.String("path", finalPath))
	return nil
}

// Commit writes code to finalPath atomically.
func (s *Store) Commit(finalPath, code string) error {
	if err := writeFileAtomic(finalPath, []byte(code)); err != nil {
		return fmt.Errorf("commit artifact: %w", err)
	}
	s.log.Info("artifact committed", zap.String("path", finalPath))
	return nil
}

// Remove deletes path. A missing file is not an error.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.ts")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	tmpPath = ""
	return nil
}
