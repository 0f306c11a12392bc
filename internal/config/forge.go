package config

import "strings"

// ForgeType identifies the repository hosting service flavour.
type ForgeType string

const (
	ForgeGitHub ForgeType = "github"
)

// NormalizeForgeType canonicalizes a forge type string; unknown returns empty.
func NormalizeForgeType(raw string) ForgeType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ForgeGitHub):
		return ForgeGitHub
	default:
		return ""
	}
}

// SiteURL renders the published-site URL for a repository from the template.
func (f ForgeConfig) SiteURL(owner, repo string) string {
	r := strings.NewReplacer("{owner}", owner, "{repo}", repo)
	return r.Replace(f.PagesURL)
}
