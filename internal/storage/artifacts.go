package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// File is one artifact held in memory until it is committed.
type File struct {
	Name string
	Data []byte
}

// ArtifactWriter commits a set of artifacts into a single directory.
type ArtifactWriter struct {
	dir   string
	owned func(name string) bool
}

func NewArtifactWriter(dir string) *ArtifactWriter {
	return &ArtifactWriter{dir: dir}
}

// WithOwned marks the file names this writer manages. After a successful
// commit, owned files that are not part of the new set are removed.
func (w *ArtifactWriter) WithOwned(owned func(name string) bool) *ArtifactWriter {
	w.owned = owned
	return w
}

// Dir returns the directory artifacts are committed to.
func (w *ArtifactWriter) Dir() string {
	return w.dir
}

// Commit stages every file as a temp file next to its destination and only then
// renames them into place, so a failure while staging leaves existing artifacts
// untouched. Existing files with the same names are replaced, and owned files
// left over from an earlier commit are removed once every rename succeeded.
func (w *ArtifactWriter) Commit(files []File) ([]string, error) {
	for _, f := range files {
		if err := ValidateArtifactName(f.Name); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact writer: mkdir %s: %w", w.dir, err)
	}

	staged := make([]string, 0, len(files))
	cleanup := func() {
		for _, tmp := range staged {
			if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
				slog.Debug("artifact temp cleanup failed", "path", tmp, "error", err)
			}
		}
	}

	for _, f := range files {
		tmp, err := writeTemp(w.dir, f)
		if err != nil {
			cleanup()
			return nil, err
		}
		staged = append(staged, tmp)
	}

	paths := make([]string, 0, len(files))
	for i, f := range files {
		dest := filepath.Join(w.dir, f.Name)
		if err := os.Rename(staged[i], dest); err != nil {
			cleanup()
			return paths, fmt.Errorf("artifact writer: rename %s: %w", f.Name, err)
		}
		paths = append(paths, dest)
		slog.Debug("artifact written", "path", dest, "size", len(f.Data))
	}
	if err := w.prune(files); err != nil {
		return paths, err
	}
	return paths, nil
}

func (w *ArtifactWriter) prune(files []File) error {
	if w.owned == nil {
		return nil
	}
	keep := make(map[string]bool, len(files))
	for _, f := range files {
		keep[f.Name] = true
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("artifact writer: list %s: %w", w.dir, err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || keep[name] || !w.owned(name) {
			continue
		}
		if err := os.Remove(filepath.Join(w.dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("artifact writer: remove stale %s: %w", name, err)
		}
		slog.Debug("stale artifact removed", "path", filepath.Join(w.dir, name))
	}
	return nil
}

func writeTemp(dir string, f File) (string, error) {
	tmp, err := os.CreateTemp(dir, "."+f.Name+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("artifact writer: create temp for %s: %w", f.Name, err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(f.Data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("artifact writer: write %s: %w", f.Name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("artifact writer: close %s: %w", f.Name, err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("artifact writer: chmod %s: %w", f.Name, err)
	}
	return name, nil
}

// ValidateArtifactName accepts plain, non-hidden file names only.
func ValidateArtifactName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid artifact name: %q", name)
	}
	return nil
}
