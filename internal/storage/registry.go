package storage

import (
	"log/slog"
	"sync"
)

// WriterRegistry hands out one JSONLWriter per URL path segment, record kind
// and file base, so each probed page gets its own journal directory.
type WriterRegistry struct {
	baseDir    string
	maxSizeMB  int
	bufferSize int

	// writers maps pathSegment -> kind/fileBase -> writer,
	// e.g. "docs_intro" -> "runs/example.com".
	writers map[string]map[string]*JSONLWriter
	mu      sync.RWMutex
}

func NewWriterRegistry(baseDir string, bufferSize int, maxSizeMB int) *WriterRegistry {
	return &WriterRegistry{
		baseDir:    baseDir,
		maxSizeMB:  maxSizeMB,
		bufferSize: bufferSize,
		writers:    make(map[string]map[string]*JSONLWriter),
	}
}

// GetWriter returns (or creates) the journal writing to
// <baseDir>/<date>/<pathSegment>/<kind>/<fileBase>.jsonl.
func (r *WriterRegistry) GetWriter(pathSegment, kind, fileBase string) *JSONLWriter {
	key := kind + "/" + fileBase

	r.mu.RLock()
	if byKey, ok := r.writers[pathSegment]; ok {
		if writer, ok := byKey[key]; ok {
			r.mu.RUnlock()
			return writer
		}
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if byKey, ok := r.writers[pathSegment]; ok {
		if writer, ok := byKey[key]; ok {
			return writer
		}
	}
	if r.writers[pathSegment] == nil {
		r.writers[pathSegment] = make(map[string]*JSONLWriter)
	}

	writer := NewJSONLWriter(r.baseDir, pathSegment+"/"+kind, fileBase, r.bufferSize, r.maxSizeMB)
	r.writers[pathSegment][key] = writer

	slog.Debug("created journal writer", "path_segment", pathSegment, "kind", kind, "file_base", fileBase)
	return writer
}

// Close closes all managed writers.
func (r *WriterRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for pathSeg, byKey := range r.writers {
		for key, writer := range byKey {
			if err := writer.Close(); err != nil {
				slog.Error("failed to close journal writer", "path_segment", pathSeg, "key", key, "error", err)
				lastErr = err
			}
		}
	}
	r.writers = make(map[string]map[string]*JSONLWriter)
	return lastErr
}

// Append writes record to the kind journal of the page at rawURL.
func (r *WriterRegistry) Append(rawURL, kind string, record any) error {
	segment, err := TransformURLToPathSegment(rawURL)
	if err != nil {
		segment = "root"
	}
	return r.GetWriter(segment, kind, HostID(rawURL)).Write(record)
}
