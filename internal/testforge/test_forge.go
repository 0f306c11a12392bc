// Package testforge provides an in-memory repository host for tests.
package testforge

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-git/go-git/v5/plumbing"

	"git.home.luguber.info/inful/appforge/internal/forge"
)

// Call records one operation against the forge.
type Call struct {
	Op   string
	Repo string
	Path string
}

type memRepo struct {
	repo        forge.Repository
	files       map[string][]byte
	pages       bool
	description string
}

// TestForge is an in-memory stand-in for the hosting API. Its zero value is
// not usable; create one with NewTestForge.
type TestForge struct {
	mu      sync.Mutex
	owner   string
	repos   map[string]*memRepo
	blobs   map[string][]byte
	commits int
	calls   []Call

	// Failure injection.
	PutErrors     map[string]error // by file path
	GetFileErrors map[string]error // by file path
	PagesError    error
	TreeError     error
	CreateError   error
}

// NewTestForge creates an empty forge owned by owner.
func NewTestForge(owner string) *TestForge {
	return &TestForge{
		owner:         owner,
		repos:         make(map[string]*memRepo),
		blobs:         make(map[string][]byte),
		PutErrors:     make(map[string]error),
		GetFileErrors: make(map[string]error),
	}
}

func blobSHA(data []byte) string {
	return plumbing.ComputeHash(plumbing.BlobObject, data).String()
}

func (f *TestForge) record(op, repo, path string) {
	f.calls = append(f.calls, Call{Op: op, Repo: repo, Path: path})
}

// Calls returns a copy of the recorded operations.
func (f *TestForge) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CountOps returns how many recorded calls had op.
func (f *TestForge) CountOps(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Files returns a copy of a repository's committed files, or nil.
func (f *TestForge) Files(repo string) map[string][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.repos[repo]
	if !ok {
		return nil
	}
	out := make(map[string][]byte, len(r.files))
	for k, v := range r.files {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

// Paths returns a repository's committed paths in sorted order.
func (f *TestForge) Paths(repo string) []string {
	files := f.Files(repo)
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// PagesEnabled reports whether EnablePages succeeded for repo.
func (f *TestForge) PagesEnabled(repo string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.repos[repo]
	return ok && r.pages
}

// Description returns the repository description.
func (f *TestForge) Description(repo string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.repos[repo]; ok {
		return r.description
	}
	return ""
}

// Seed creates repo with files without recording calls.
func (f *TestForge) Seed(repo string, files map[string][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.newRepo(repo)
	for p, data := range files {
		r.files[p] = data
		f.blobs[blobSHA(data)] = data
	}
}

func (f *TestForge) newRepo(name string) *memRepo {
	r := &memRepo{
		repo: forge.Repository{
			Name:          name,
			FullName:      f.owner + "/" + name,
			Owner:         f.owner,
			HTMLURL:       f.RepoURL(f.owner, name),
			DefaultBranch: "main",
		},
		files: make(map[string][]byte),
	}
	f.repos[name] = r
	return r
}

// Owner implements the hosting contract.
func (f *TestForge) Owner(context.Context) (string, error) { return f.owner, nil }

// RepoURL implements the hosting contract.
func (f *TestForge) RepoURL(owner, repo string) string {
	return fmt.Sprintf("https://github.com/%s/%s", owner, repo)
}

// GetRepository implements the hosting contract.
func (f *TestForge) GetRepository(_ context.Context, repo string) (*forge.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get_repo", repo, "")
	r, ok := f.repos[repo]
	if !ok {
		return nil, forge.ErrRepositoryNotFound.WithContext("repository", repo)
	}
	cp := r.repo
	return &cp, nil
}

// CreateRepository implements the hosting contract.
func (f *TestForge) CreateRepository(_ context.Context, opts forge.CreateOptions) (*forge.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create_repo", opts.Name, "")
	if f.CreateError != nil {
		return nil, f.CreateError
	}
	if _, exists := f.repos[opts.Name]; exists {
		return nil, fmt.Errorf("repository %s already exists", opts.Name)
	}
	r := f.newRepo(opts.Name)
	r.repo.Private = opts.Private
	r.description = opts.Description
	if opts.AutoInit && opts.LicenseTemplate != "" {
		data := []byte("MIT License\n")
		r.files["LICENSE"] = data
		f.blobs[blobSHA(data)] = data
		f.commits++
	}
	cp := r.repo
	return &cp, nil
}

// UpdateDescription implements the hosting contract.
func (f *TestForge) UpdateDescription(_ context.Context, repo, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("update_description", repo, "")
	r, ok := f.repos[repo]
	if !ok {
		return forge.ErrRepositoryNotFound
	}
	r.description = description
	return nil
}

// DeleteRepository implements the hosting contract.
func (f *TestForge) DeleteRepository(_ context.Context, repo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete_repo", repo, "")
	if _, ok := f.repos[repo]; !ok {
		return forge.ErrRepositoryNotFound.WithContext("repository", repo)
	}
	delete(f.repos, repo)
	return nil
}

// GetFile implements the hosting contract.
func (f *TestForge) GetFile(_ context.Context, repo, path, _ string) (*forge.FileContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get_file", repo, path)
	if err := f.GetFileErrors[path]; err != nil {
		return nil, err
	}
	r, ok := f.repos[repo]
	if !ok {
		return nil, forge.ErrRepositoryNotFound
	}
	data, ok := r.files[path]
	if !ok {
		return nil, forge.ErrFileNotFound.WithContext("path", path)
	}
	return &forge.FileContent{Path: path, SHA: blobSHA(data), Content: append([]byte(nil), data...)}, nil
}

// PutFile implements the hosting contract, enforcing the revision marker.
func (f *TestForge) PutFile(_ context.Context, repo string, opts forge.PutFileOptions) (*forge.CommitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("put_file", repo, opts.Path)
	if err := f.PutErrors[opts.Path]; err != nil {
		return nil, err
	}
	r, ok := f.repos[repo]
	if !ok {
		return nil, forge.ErrRepositoryNotFound
	}
	current, exists := r.files[opts.Path]
	switch {
	case exists && opts.SHA != blobSHA(current):
		return nil, fmt.Errorf("sha mismatch for %s", opts.Path)
	case !exists && opts.SHA != "":
		return nil, fmt.Errorf("sha given for new file %s", opts.Path)
	}
	data := append([]byte(nil), opts.Content...)
	r.files[opts.Path] = data
	f.blobs[blobSHA(data)] = data
	f.commits++
	return &forge.CommitResult{FileSHA: blobSHA(data), CommitSHA: fmt.Sprintf("commit-%d", f.commits)}, nil
}

// GetTree implements the hosting contract.
func (f *TestForge) GetTree(_ context.Context, repo, _ string) (*forge.Tree, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get_tree", repo, "")
	if f.TreeError != nil {
		return nil, f.TreeError
	}
	r, ok := f.repos[repo]
	if !ok {
		return nil, forge.ErrRepositoryNotFound
	}
	tree := &forge.Tree{SHA: "tree"}
	for p, data := range r.files {
		tree.Entries = append(tree.Entries, forge.TreeEntry{Path: p, Type: "blob", Mode: "100644", SHA: blobSHA(data), Size: int64(len(data))})
	}
	sort.Slice(tree.Entries, func(i, j int) bool { return tree.Entries[i].Path < tree.Entries[j].Path })
	return tree, nil
}

// GetBlob implements the hosting contract.
func (f *TestForge) GetBlob(_ context.Context, repo, sha string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get_blob", repo, sha)
	data, ok := f.blobs[sha]
	if !ok {
		return nil, forge.ErrFileNotFound.WithContext("sha", sha)
	}
	return append([]byte(nil), data...), nil
}

// GetBranchHead implements the hosting contract.
func (f *TestForge) GetBranchHead(_ context.Context, repo, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get_head", repo, "")
	if _, ok := f.repos[repo]; !ok {
		return "", forge.ErrRepositoryNotFound
	}
	return fmt.Sprintf("commit-%d", f.commits), nil
}

// EnablePages implements the hosting contract.
func (f *TestForge) EnablePages(_ context.Context, repo, _ string) (*forge.PagesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("enable_pages", repo, "")
	if f.PagesError != nil {
		return nil, f.PagesError
	}
	r, ok := f.repos[repo]
	if !ok {
		return nil, forge.ErrRepositoryNotFound
	}
	if r.pages {
		return &forge.PagesResult{AlreadyEnabled: true}, nil
	}
	r.pages = true
	return &forge.PagesResult{Created: true}, nil
}
