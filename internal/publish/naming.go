package publish

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxRepoName is the hosting service's repository name limit.
const maxRepoName = 100

// RepoName derives the repository name for a task. An explicit request wins;
// otherwise the name is prefix-slug(taskID).
func RepoName(prefix, taskID, requested string) string {
	if r := Slug(requested); r != "" {
		return r
	}
	name := Slug(taskID)
	if name == "" {
		name = "task"
	}
	if prefix != "" {
		name = strings.TrimSuffix(prefix, "-") + "-" + name
	}
	if len(name) > maxRepoName {
		name = strings.TrimRight(name[:maxRepoName], "-.")
	}
	return name
}

// Slug lowercases s, strips diacritics and replaces runs of characters
// outside [a-z0-9._-] with a single '-'.
func Slug(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	dash := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
			dash = r == '-'
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.Trim(b.String(), "-.")
}
