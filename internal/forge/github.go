package forge

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"git.home.luguber.info/inful/appforge/internal/config"
	"git.home.luguber.info/inful/appforge/internal/foundation/errors"
)

// GitHubClient talks to the GitHub REST API for one account.
type GitHubClient struct {
	*BaseForge
	baseURL string

	mu          sync.Mutex
	owner       string // configured or resolved login
	ownerIsUser bool
	resolved    bool
}

// NewGitHubClient creates a new GitHub client.
func NewGitHubClient(fc config.ForgeConfig) (*GitHubClient, error) {
	if fc.Type != config.ForgeGitHub {
		return nil, ErrForgeUnsupported.WithContext("type", string(fc.Type))
	}
	if fc.Token == "" {
		return nil, ErrAuthRequired
	}

	apiURL := fc.APIURL
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}
	baseURL := fc.BaseURL
	if baseURL == "" {
		baseURL = "https://github.com"
	}

	base := NewBaseForge(&http.Client{Timeout: fc.Timeout}, apiURL, fc.Token)
	base.SetCustomHeader("Accept", "application/vnd.github+json")
	base.SetCustomHeader("X-GitHub-Api-Version", "2022-11-28")

	return &GitHubClient{
		BaseForge: base,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		owner:     fc.Owner,
	}, nil
}

type githubUser struct {
	Login string `json:"login"`
}

type githubRepo struct {
	Name          string     `json:"name"`
	FullName      string     `json:"full_name"`
	HTMLURL       string     `json:"html_url"`
	DefaultBranch string     `json:"default_branch"`
	Private       bool       `json:"private"`
	Owner         githubUser `json:"owner"`
}

func (r githubRepo) toRepository() *Repository {
	return &Repository{
		Name:          r.Name,
		FullName:      r.FullName,
		Owner:         r.Owner.Login,
		HTMLURL:       r.HTMLURL,
		DefaultBranch: r.DefaultBranch,
		Private:       r.Private,
	}
}

// Owner returns the account that owns published repositories. Without a
// configured owner it is the login of the token's user.
func (c *GitHubClient) Owner(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved {
		return c.owner, nil
	}

	req, err := c.NewRequest(ctx, http.MethodGet, "user", nil)
	if err != nil {
		return "", err
	}
	var user githubUser
	if err := c.DoRequest(req, &user); err != nil {
		return "", err
	}
	if c.owner == "" {
		c.owner = user.Login
	}
	c.ownerIsUser = strings.EqualFold(c.owner, user.Login)
	c.resolved = true
	return c.owner, nil
}

// RepoURL returns the browser URL of a repository.
func (c *GitHubClient) RepoURL(owner, repo string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, owner, repo)
}

func (c *GitHubClient) repoEndpoint(ctx context.Context, repo string, rest ...string) (string, error) {
	owner, err := c.Owner(ctx)
	if err != nil {
		return "", err
	}
	parts := append([]string{"repos", owner, repo}, rest...)
	return strings.Join(parts, "/"), nil
}

// GetRepository returns repository metadata, or ErrRepositoryNotFound.
func (c *GitHubClient) GetRepository(ctx context.Context, repo string) (*Repository, error) {
	endpoint, err := c.repoEndpoint(ctx, repo)
	if err != nil {
		return nil, err
	}
	req, err := c.NewRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var gr githubRepo
	if err := c.DoRequest(req, &gr); err != nil {
		if errors.HasCategory(err, errors.CategoryNotFound) {
			return nil, ErrRepositoryNotFound.WithContext("repository", repo).WithCause(err)
		}
		return nil, err
	}
	return gr.toRepository(), nil
}

// CreateRepository creates a repository under the owner account.
func (c *GitHubClient) CreateRepository(ctx context.Context, opts CreateOptions) (*Repository, error) {
	if _, err := c.Owner(ctx); err != nil {
		return nil, err
	}
	endpoint := "user/repos"
	if !c.ownerIsUser {
		endpoint = "orgs/" + c.owner + "/repos"
	}

	payload := map[string]any{
		"name":      opts.Name,
		"private":   opts.Private,
		"auto_init": opts.AutoInit,
	}
	if opts.Description != "" {
		payload["description"] = opts.Description
	}
	if opts.LicenseTemplate != "" {
		payload["license_template"] = opts.LicenseTemplate
	}

	req, err := c.NewRequest(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return nil, err
	}
	var gr githubRepo
	if err := c.DoRequest(req, &gr); err != nil {
		return nil, err
	}
	return gr.toRepository(), nil
}

// UpdateDescription sets the repository description.
func (c *GitHubClient) UpdateDescription(ctx context.Context, repo, description string) error {
	endpoint, err := c.repoEndpoint(ctx, repo)
	if err != nil {
		return err
	}
	req, err := c.NewRequest(ctx, http.MethodPatch, endpoint, map[string]string{"description": description})
	if err != nil {
		return err
	}
	return c.DoRequest(req, nil)
}

// DeleteRepository deletes a repository; a missing one yields ErrRepositoryNotFound.
func (c *GitHubClient) DeleteRepository(ctx context.Context, repo string) error {
	endpoint, err := c.repoEndpoint(ctx, repo)
	if err != nil {
		return err
	}
	req, err := c.NewRequest(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	if err := c.DoRequest(req, nil); err != nil {
		if errors.HasCategory(err, errors.CategoryNotFound) {
			return ErrRepositoryNotFound.WithContext("repository", repo).WithCause(err)
		}
		return err
	}
	return nil
}

type githubContent struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// contentsEndpoint escapes each segment of a relative file path. Empty, dot
// and dot-dot segments are rejected so the request stays inside the repo.
func contentsEndpoint(filePath string) (string, error) {
	segments := strings.Split(filePath, "/")
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, "contents")
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." || strings.ContainsAny(seg, "\\\x00") {
			return "", ErrInvalidPath.WithContext("path", filePath)
		}
		parts = append(parts, url.PathEscape(seg))
	}
	return strings.Join(parts, "/"), nil
}

// GetFile reads a file on ref. A missing file yields ErrFileNotFound.
func (c *GitHubClient) GetFile(ctx context.Context, repo, filePath, ref string) (*FileContent, error) {
	contents, err := contentsEndpoint(filePath)
	if err != nil {
		return nil, err
	}
	endpoint, err := c.repoEndpoint(ctx, repo, contents)
	if err != nil {
		return nil, err
	}
	if ref != "" {
		endpoint += "?ref=" + url.QueryEscape(ref)
	}
	req, err := c.NewRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var gc githubContent
	if err := c.DoRequest(req, &gc); err != nil {
		if errors.HasCategory(err, errors.CategoryNotFound) {
			return nil, ErrFileNotFound.WithContext("path", filePath).WithCause(err)
		}
		return nil, err
	}
	if gc.Type != "" && gc.Type != "file" {
		return nil, ErrFileNotFound.WithContext("path", filePath).WithContext("type", gc.Type)
	}
	data, err := decodeContent(gc.Content, gc.Encoding)
	if err != nil {
		return nil, errors.ForgeError("failed to decode file content").
			WithCause(err).WithContext("path", filePath).Build()
	}
	return &FileContent{Path: filePath, SHA: gc.SHA, Content: data}, nil
}

// PutFile creates or updates one file in its own commit.
func (c *GitHubClient) PutFile(ctx context.Context, repo string, opts PutFileOptions) (*CommitResult, error) {
	contents, err := contentsEndpoint(opts.Path)
	if err != nil {
		return nil, err
	}
	endpoint, err := c.repoEndpoint(ctx, repo, contents)
	if err != nil {
		return nil, err
	}
	payload := map[string]string{
		"message": opts.Message,
		"content": base64.StdEncoding.EncodeToString(opts.Content),
	}
	if opts.Branch != "" {
		payload["branch"] = opts.Branch
	}
	if opts.SHA != "" {
		payload["sha"] = opts.SHA
	}

	req, err := c.NewRequest(ctx, http.MethodPut, endpoint, payload)
	if err != nil {
		return nil, err
	}
	var out struct {
		Content struct {
			SHA string `json:"sha"`
		} `json:"content"`
		Commit struct {
			SHA string `json:"sha"`
		} `json:"commit"`
	}
	if err := c.DoRequest(req, &out); err != nil {
		return nil, err
	}
	return &CommitResult{FileSHA: out.Content.SHA, CommitSHA: out.Commit.SHA}, nil
}

// GetTree lists every object reachable from ref.
func (c *GitHubClient) GetTree(ctx context.Context, repo, ref string) (*Tree, error) {
	endpoint, err := c.repoEndpoint(ctx, repo, "git", "trees", ref)
	if err != nil {
		return nil, err
	}
	req, err := c.NewRequest(ctx, http.MethodGet, endpoint+"?recursive=1", nil)
	if err != nil {
		return nil, err
	}
	var tree Tree
	if err := c.DoRequest(req, &tree); err != nil {
		return nil, err
	}
	return &tree, nil
}

// GetBlob returns the raw bytes of a blob.
func (c *GitHubClient) GetBlob(ctx context.Context, repo, sha string) ([]byte, error) {
	endpoint, err := c.repoEndpoint(ctx, repo, "git", "blobs", sha)
	if err != nil {
		return nil, err
	}
	req, err := c.NewRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var blob struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := c.DoRequest(req, &blob); err != nil {
		return nil, err
	}
	return decodeContent(blob.Content, blob.Encoding)
}

// GetBranchHead returns the commit sha at the tip of branch.
func (c *GitHubClient) GetBranchHead(ctx context.Context, repo, branch string) (string, error) {
	endpoint, err := c.repoEndpoint(ctx, repo, "branches", branch)
	if err != nil {
		return "", err
	}
	req, err := c.NewRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	var out struct {
		Commit struct {
			SHA string `json:"sha"`
		} `json:"commit"`
	}
	if err := c.DoRequest(req, &out); err != nil {
		return "", err
	}
	return out.Commit.SHA, nil
}

// EnablePages turns on static site publishing from the root of branch.
// An already enabled site is reported through PagesResult, not as an error.
func (c *GitHubClient) EnablePages(ctx context.Context, repo, branch string) (*PagesResult, error) {
	endpoint, err := c.repoEndpoint(ctx, repo, "pages")
	if err != nil {
		return nil, err
	}
	payload := map[string]any{"source": map[string]string{"branch": branch, "path": "/"}}
	req, err := c.NewRequest(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return nil, err
	}
	var out struct {
		HTMLURL string `json:"html_url"`
	}
	if err := c.DoRequest(req, &out); err != nil {
		if StatusCode(err) == http.StatusConflict {
			return &PagesResult{AlreadyEnabled: true}, nil
		}
		return nil, err
	}
	return &PagesResult{Created: true, HTMLURL: out.HTMLURL}, nil
}

func decodeContent(content, encoding string) ([]byte, error) {
	switch encoding {
	case "", "base64":
		clean := strings.NewReplacer("\n", "", "\r", "").Replace(content)
		return base64.StdEncoding.DecodeString(clean)
	case "utf-8", "utf8":
		return []byte(content), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}
