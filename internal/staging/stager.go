package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	derrors "git.home.luguber.info/inful/appforge/internal/foundation/errors"
	"git.home.luguber.info/inful/appforge/internal/logfields"
	"git.home.luguber.info/inful/appforge/internal/task"
)

// Staged is one attachment materialized on local storage.
type Staged struct {
	Name      string
	Path      string
	Size      int64
	MediaType string
}

// Read returns the staged bytes.
func (s Staged) Read() ([]byte, error) {
	return os.ReadFile(s.Path)
}

// Stager writes attachments beneath a shared scratch root.
type Stager struct {
	root  string
	newID func() string
}

// NewStager returns a stager rooted at dir.
func NewStager(dir string) *Stager {
	return &Stager{root: dir, newID: uuid.NewString}
}

// Root returns the scratch root.
func (s *Stager) Root() string { return s.root }

// Stage decodes and writes each attachment into a fresh run directory.
// Attachments that cannot be staged are logged and omitted; Stage never fails.
func (s *Stager) Stage(taskID string, attachments []task.Attachment) []Staged {
	if len(attachments) == 0 {
		return nil
	}

	runDir := filepath.Join(s.root, sanitizeSegment(taskID), s.newID())
	var staged []Staged
	seen := make(map[string]bool, len(attachments))

	for _, att := range attachments {
		if err := validateName(att.Name); err != nil {
			slog.Warn("Skipping attachment", logfields.TaskID(taskID), logfields.Path(att.Name), logfields.Error(err))
			continue
		}
		if seen[att.Name] {
			slog.Warn("Skipping duplicate attachment", logfields.TaskID(taskID), logfields.Path(att.Name))
			continue
		}
		if att.URL == "" {
			slog.Warn("Skipping attachment without payload", logfields.TaskID(taskID), logfields.Path(att.Name))
			continue
		}
		mediaType, data, err := DecodeDataURI(att.URL)
		if err != nil {
			slog.Warn("Skipping undecodable attachment", logfields.TaskID(taskID), logfields.Path(att.Name), logfields.Error(err))
			continue
		}
		if err := os.MkdirAll(runDir, 0o750); err != nil {
			slog.Warn("Failed to create staging directory", logfields.TaskID(taskID), logfields.Path(runDir), logfields.Error(err))
			continue
		}
		path := filepath.Join(runDir, att.Name)
		if err := os.WriteFile(path, data, 0o600); err != nil {
			slog.Warn("Failed to write attachment", logfields.TaskID(taskID), logfields.Path(path), logfields.Error(err))
			continue
		}
		seen[att.Name] = true
		staged = append(staged, Staged{Name: att.Name, Path: path, Size: int64(len(data)), MediaType: mediaType})
	}

	// Every write may have failed after the directory was created.
	if len(staged) == 0 {
		removeRunDir(runDir)
	}
	return staged
}

// Release removes every staged file and the directories Stage created.
// Failures are logged; every item is attempted.
func (s *Stager) Release(staged []Staged) {
	dirs := make(map[string]bool)
	for _, st := range staged {
		if err := os.Remove(st.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Could not remove staged attachment", logfields.Path(st.Path), logfields.Error(err))
		}
		dirs[filepath.Dir(st.Path)] = true
	}
	for dir := range dirs {
		removeRunDir(dir)
	}
}

// removeRunDir removes an empty run directory. The per-task parent is left
// in place: a concurrent Stage for the same task may be creating a sibling.
func removeRunDir(dir string) {
	if err := os.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Debug("Staging directory not removed", logfields.Path(dir), logfields.Error(err))
	}
}

func validateName(name string) error {
	switch {
	case name == "":
		return derrors.ValidationError("attachment name is required").Build()
	case name == "." || name == "..",
		strings.ContainsAny(name, `/\`),
		strings.Contains(name, ".."),
		strings.ContainsRune(name, 0):
		return derrors.ValidationError(fmt.Sprintf("attachment name %q is not a plain file name", name)).Build()
	}
	return nil
}

// sanitizeSegment maps an arbitrary task id onto a single safe path segment.
func sanitizeSegment(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "_"
	}
	return out
}
