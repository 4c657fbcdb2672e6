// Package runstore keeps the artifacts of server-side probe runs on disk, one
// directory per run.
package runstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/dgnsrekt/pageprobe/internal/storage"
)

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// ErrNotFound is returned when a run or artifact does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalid is returned for malformed run ids or artifact names.
var ErrInvalid = errors.New("invalid")

const metaFile = "meta.json"

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ArtifactInfo describes one stored artifact file.
type ArtifactInfo struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
}

// RunMeta describes a stored probe run.
type RunMeta struct {
	ID                string         `json:"id"`
	URL               string         `json:"url"`
	FinalURL          string         `json:"final_url,omitempty"`
	Title             string         `json:"title,omitempty"`
	Status            string         `json:"status"`
	Error             string         `json:"error,omitempty"`
	ConsoleCount      int            `json:"console_count"`
	NetworkIssueCount int            `json:"network_issue_count"`
	ViolationCount    int            `json:"violation_count,omitempty"`
	DurationMS        int64          `json:"duration_ms"`
	CreatedAt         time.Time      `json:"created_at"`
	Artifacts         []ArtifactInfo `json:"artifacts"`
}

// Store manages run directories under a data dir.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a Store and ensures the directory exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("run store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func validateID(id string) error {
	if !uuidRe.MatchString(id) {
		return fmt.Errorf("%w run id: %q", ErrInvalid, id)
	}
	return nil
}

// RunDir is where the artifacts of run id live. Probes write straight into it.
func (s *Store) RunDir(id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, id), nil
}

// Save writes any given files into the run directory, then records the
// artifact listing and metadata sidecar.
func (s *Store) Save(meta RunMeta, files []storage.File) (RunMeta, error) {
	dir, err := s.RunDir(meta.ID)
	if err != nil {
		return RunMeta{}, err
	}
	for _, f := range files {
		if f.Name == metaFile {
			return RunMeta{}, fmt.Errorf("%w artifact name: %q is reserved", ErrInvalid, f.Name)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(files) > 0 {
		if _, err := storage.NewArtifactWriter(dir).Commit(files); err != nil {
			return RunMeta{}, fmt.Errorf("run store: %w", err)
		}
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return RunMeta{}, fmt.Errorf("run store: mkdir %s: %w", dir, err)
	}

	artifacts, err := listArtifacts(dir)
	if err != nil {
		return RunMeta{}, err
	}
	meta.Artifacts = artifacts
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return RunMeta{}, fmt.Errorf("run store: marshal meta: %w", err)
	}
	if _, err := storage.NewArtifactWriter(dir).Commit([]storage.File{{Name: metaFile, Data: data}}); err != nil {
		return RunMeta{}, fmt.Errorf("run store: write meta: %w", err)
	}
	return meta, nil
}

// Get reads run metadata by ID.
func (s *Store) Get(id string) (RunMeta, error) {
	if err := validateID(id); err != nil {
		return RunMeta{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return readMeta(filepath.Join(s.dir, id, metaFile), id)
}

// List returns all runs sorted by creation time (newest first).
func (s *Store) List() ([]RunMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "*", metaFile))
	if err != nil {
		return nil, fmt.Errorf("run store: glob: %w", err)
	}

	metas := make([]RunMeta, 0, len(matches))
	for _, path := range matches {
		id := filepath.Base(filepath.Dir(path))
		if validateID(id) != nil {
			continue
		}
		meta, err := readMeta(path, id)
		if err != nil {
			slog.Debug("skipping unreadable run", "id", id, "error", err)
			continue
		}
		metas = append(metas, meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas, nil
}

// ReadArtifact reads one artifact of a run and returns its content type.
func (s *Store) ReadArtifact(id, name string) ([]byte, string, error) {
	if err := validateID(id); err != nil {
		return nil, "", err
	}
	if err := storage.ValidateArtifactName(name); err != nil {
		return nil, "", fmt.Errorf("%w artifact name: %q", ErrInvalid, name)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.dir, id, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("artifact %s of run %s: %w", name, id, ErrNotFound)
		}
		return nil, "", fmt.Errorf("run store: read artifact: %w", err)
	}
	return data, contentType(name), nil
}

// Delete removes the run directory and everything in it.
func (s *Store) Delete(id string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.dir, id)
	if err := os.RemoveAll(dir); err != nil {
		slog.Debug("run cleanup failed", "id", id, "error", err)
		return fmt.Errorf("run store: delete %s: %w", id, err)
	}
	return nil
}

func readMeta(path, id string) (RunMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunMeta{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		return RunMeta{}, fmt.Errorf("run store: read meta: %w", err)
	}
	var meta RunMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return RunMeta{}, fmt.Errorf("run store: unmarshal meta: %w", err)
	}
	return meta, nil
}

func listArtifacts(dir string) ([]ArtifactInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("run store: list %s: %w", dir, err)
	}
	out := make([]ArtifactInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || e.Name() == metaFile || storage.ValidateArtifactName(e.Name()) != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, ArtifactInfo{Name: e.Name(), SizeBytes: info.Size()})
	}
	return out, nil
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".json":
		return "application/json"
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
