package forge

// Repository is the subset of hosting metadata the publisher needs.
type Repository struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Owner         string `json:"owner"`
	HTMLURL       string `json:"html_url"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
}

// CreateOptions describes a repository to create.
type CreateOptions struct {
	Name            string
	Description     string
	Private         bool
	AutoInit        bool
	LicenseTemplate string
}

// FileContent is a committed file and its revision marker.
type FileContent struct {
	Path    string
	SHA     string
	Content []byte
}

// PutFileOptions describes a create-or-update of one file.
// SHA must hold the current blob sha when updating and be empty when creating.
type PutFileOptions struct {
	Path    string
	Content []byte
	Message string
	Branch  string
	SHA     string
}

// CommitResult identifies what a file write produced.
type CommitResult struct {
	FileSHA   string
	CommitSHA string
}

// TreeEntry is one object in a recursive tree listing.
type TreeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"` // blob, tree or commit
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
}

// Tree is a recursive listing of a ref.
type Tree struct {
	SHA       string      `json:"sha"`
	Entries   []TreeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

// PagesResult reports the outcome of enabling static site publishing.
type PagesResult struct {
	Created        bool // 201 from the hosting service
	AlreadyEnabled bool // 409 from the hosting service
	HTMLURL        string
}
