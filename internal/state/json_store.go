package state

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	derrors "git.home.luguber.info/inful/appforge/internal/foundation/errors"
	"git.home.luguber.info/inful/appforge/internal/logfields"
)

var (
	// ErrUnreadable is returned when the state file exists but cannot be read.
	ErrUnreadable = derrors.StateError("failed to read state file").Build()
	// ErrCorrupt marks a state file whose contents are not a valid document.
	ErrCorrupt = derrors.StateError("failed to decode state file").Build()
)

// JSONStore implements Store on a single JSON file.
type JSONStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*JSONStore)(nil)

// NewJSONStore creates a store backed by path, creating the parent directory.
func NewJSONStore(path string) (*JSONStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, derrors.FileSystemError("failed to create state directory").
			WithCause(err).
			WithContext("path", path).
			Build()
	}
	return &JSONStore{path: path}, nil
}

// Path returns the backing file location.
func (js *JSONStore) Path() string { return js.path }

// Get returns the recorded state for taskID.
func (js *JSONStore) Get(taskID string) (TaskState, bool) {
	js.mu.Lock()
	defer js.mu.Unlock()

	doc, err := js.loadUnsafe()
	if err != nil {
		slog.Warn("Task state unreadable, treating as absent",
			logfields.TaskID(taskID), logfields.Path(js.path), logfields.Error(err))
		return TaskState{}, false
	}
	st, ok := doc[taskID]
	return st, ok
}

// Put records st under taskID, replacing any earlier value.
func (js *JSONStore) Put(taskID string, st TaskState) error {
	if taskID == "" {
		return derrors.ValidationError("task identifier is required").Build()
	}

	js.mu.Lock()
	defer js.mu.Unlock()

	doc, err := js.loadUnsafe()
	switch {
	case errors.Is(err, ErrCorrupt):
		// Only an undecodable document is replaced; read failures keep the file.
		slog.Warn("Discarding corrupt task state document",
			logfields.Path(js.path), logfields.Error(err))
		doc = make(map[string]TaskState)
	case err != nil:
		return err
	}
	doc[taskID] = st
	return js.saveUnsafe(doc)
}

// All returns a copy of every recorded task state.
func (js *JSONStore) All() (map[string]TaskState, error) {
	js.mu.Lock()
	defer js.mu.Unlock()
	return js.loadUnsafe()
}

func (js *JSONStore) loadUnsafe() (map[string]TaskState, error) {
	doc := make(map[string]TaskState)
	data, err := os.ReadFile(js.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, ErrUnreadable.WithCause(err).WithContext("path", js.path)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, ErrCorrupt.WithCause(err).WithContext("path", js.path)
	}
	return doc, nil
}

// saveUnsafe writes the document through a synced temp file and rename.
func (js *JSONStore) saveUnsafe(doc map[string]TaskState) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return derrors.StateError("failed to encode state").WithCause(err).Build()
	}

	tmp, err := os.CreateTemp(filepath.Dir(js.path), filepath.Base(js.path)+".*.tmp")
	if err != nil {
		return derrors.FileSystemError("failed to create temporary state file").WithCause(err).Build()
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return derrors.FileSystemError("failed to write temporary state file").WithCause(err).Build()
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return derrors.FileSystemError("failed to sync temporary state file").WithCause(err).Build()
	}
	if err := tmp.Close(); err != nil {
		return derrors.FileSystemError("failed to close temporary state file").WithCause(err).Build()
	}
	if err := os.Rename(tmpPath, js.path); err != nil {
		return derrors.FileSystemError("failed to replace state file").
			WithCause(err).
			WithContext("path", js.path).
			Build()
	}
	return nil
}
