package generate

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	derrors "git.home.luguber.info/inful/appforge/internal/foundation/errors"
)

// Required entries of every generated file set.
const (
	EntryPage   = "index.html"
	Description = "README.md"
)

var (
	// ErrInvalidFileSet marks a file set missing a required entry.
	ErrInvalidFileSet = derrors.ValidationError("generated file set is invalid").Build()
	// ErrUnsafePath marks a generated path that is not a clean relative path.
	ErrUnsafePath = derrors.ValidationError("generated file path is not a clean relative path").Build()
	// ErrNoJSONObject marks model output with no decodable JSON object.
	ErrNoJSONObject = derrors.GenerationError("model response did not contain a JSON object").Build()
)

// FileSet maps a relative file path to its content.
type FileSet map[string]string

// Validate requires both the entry page and the project description, and
// that every path is relative and free of dot segments.
func (fs FileSet) Validate() error {
	for _, p := range fs.Paths() {
		if !SafePath(p) {
			return ErrUnsafePath.WithContext("path", p)
		}
	}

	var missing []string
	for _, name := range []string{EntryPage, Description} {
		if _, ok := fs[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return ErrInvalidFileSet.WithContext("missing", strings.Join(missing, ","))
	}
	return nil
}

// SafePath reports whether p is a slash-separated relative path whose
// segments are non-empty, not "." or "..", and free of backslashes, NUL,
// '?' and '#'.
func SafePath(p string) bool {
	if p == "" {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." || strings.ContainsAny(seg, "\\\x00?#") {
			return false
		}
	}
	return true
}

// Paths returns the file paths in sorted order.
func (fs FileSet) Paths() []string {
	paths := make([]string, 0, len(fs))
	for p := range fs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// ParseResponse decodes the first JSON object in text. Any preamble before
// the first '{' and anything after the object are ignored. Non-string values
// are kept as their compact JSON encoding.
func ParseResponse(text string) (FileSet, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, ErrNoJSONObject
	}

	var raw map[string]json.RawMessage
	dec := json.NewDecoder(strings.NewReader(text[start:]))
	if err := dec.Decode(&raw); err != nil {
		return nil, ErrNoJSONObject.WithCause(err)
	}

	files := make(FileSet, len(raw))
	for name, value := range raw {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			files[name] = s
			continue
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, value); err != nil {
			return nil, ErrNoJSONObject.WithContext("file", name).WithCause(err)
		}
		files[name] = compact.String()
	}
	return files, nil
}
