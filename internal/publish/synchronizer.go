package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/go-git/go-git/v5/plumbing"

	"git.home.luguber.info/inful/appforge/internal/config"
	"git.home.luguber.info/inful/appforge/internal/forge"
	derrors "git.home.luguber.info/inful/appforge/internal/foundation/errors"
	"git.home.luguber.info/inful/appforge/internal/logfields"
)

// ErrRepositoryUnavailable marks a publish that could not resolve or create
// its target repository.
var ErrRepositoryUnavailable = derrors.ForgeError("target repository unavailable").Build()

// File is one path to commit.
type File struct {
	Path    string
	Content []byte
}

// Request describes one publish.
type Request struct {
	RepoName string
	Round    int
	Files    []File // committed in this order
}

// Result reports what a publish produced.
type Result struct {
	RepoName  string
	RepoURL   string
	SiteURL   string
	CommitID  string
	Committed []string
	Unchanged []string
	Failed    []string
}

// Snapshot is the text content currently committed on the main line.
type Snapshot struct {
	RepoName string
	Files    map[string]string
	Skipped  []string // binary or unreadable blobs
}

// Synchronizer publishes file sets to the hosting service.
type Synchronizer struct {
	host  Hosting
	cfg   config.ForgeConfig
	sleep func(context.Context, time.Duration) error
}

// NewSynchronizer creates a synchronizer over host.
func NewSynchronizer(host Hosting, cfg config.ForgeConfig) *Synchronizer {
	return &Synchronizer{host: host, cfg: cfg, sleep: sleepContext}
}

// SetSleeper replaces the delay function used for settle waits.
func (s *Synchronizer) SetSleeper(fn func(context.Context, time.Duration) error) { s.sleep = fn }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish makes req.RepoName match req.Files. Failing to resolve or create
// the repository fails the publish; a failing file is logged and skipped.
func (s *Synchronizer) Publish(ctx context.Context, req Request) (Result, error) {
	owner, err := s.host.Owner(ctx)
	if err != nil {
		return Result{}, ErrRepositoryUnavailable.WithContext("repository", req.RepoName).WithCause(err)
	}

	var repo *forge.Repository
	if req.Round <= 1 {
		repo, err = s.recreate(ctx, req.RepoName, Describe(req.Files))
	} else {
		repo, err = s.host.GetRepository(ctx, req.RepoName)
	}
	if err != nil {
		return Result{}, ErrRepositoryUnavailable.WithContext("repository", req.RepoName).WithCause(err)
	}

	res := Result{
		RepoName: repo.Name,
		RepoURL:  repo.HTMLURL,
		SiteURL:  s.cfg.SiteURL(owner, repo.Name),
	}
	if res.RepoURL == "" {
		res.RepoURL = s.host.RepoURL(owner, repo.Name)
	}

	for _, f := range req.Files {
		msg := fmt.Sprintf("feat: Add/update %s for round %d", f.Path, req.Round)
		s.commit(ctx, &res, f, msg)
	}

	if req.Round <= 1 {
		s.commit(ctx, &res, File{Path: WorkflowPath, Content: DeployWorkflow()}, workflowMessage)
		s.enablePages(ctx, repo.Name)
	} else if desc := Describe(req.Files); desc != "" {
		if err := s.host.UpdateDescription(ctx, repo.Name, desc); err != nil {
			slog.Warn("Failed to update repository description", logfields.Repository(repo.Name), logfields.Error(err))
		}
	}

	if res.CommitID == "" {
		head, err := s.host.GetBranchHead(ctx, repo.Name, s.cfg.Branch)
		if err != nil {
			slog.Warn("Failed to resolve branch head", logfields.Repository(repo.Name), logfields.Error(err))
		}
		res.CommitID = head
	}

	slog.Info("Repository synchronized",
		logfields.Repository(repo.Name),
		logfields.Round(req.Round),
		logfields.Commit(res.CommitID),
		slog.Int("committed", len(res.Committed)),
		slog.Int("unchanged", len(res.Unchanged)),
		slog.Int("failed", len(res.Failed)))
	return res, nil
}

// recreate deletes any repository with the same name and creates it afresh.
func (s *Synchronizer) recreate(ctx context.Context, name, description string) (*forge.Repository, error) {
	err := s.host.DeleteRepository(ctx, name)
	switch {
	case err == nil:
		slog.Info("Deleted existing repository for a fresh start", logfields.Repository(name))
		if err := s.sleep(ctx, s.cfg.SettleDelay); err != nil {
			return nil, err
		}
	case errors.Is(err, forge.ErrRepositoryNotFound):
	default:
		return nil, err
	}

	repo, err := s.host.CreateRepository(ctx, forge.CreateOptions{
		Name:            name,
		Description:     description,
		Private:         s.cfg.Private,
		AutoInit:        true,
		LicenseTemplate: s.cfg.LicenseTemplate,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("Created repository", logfields.Repository(repo.FullName))
	// The initial commit is not always visible to the contents API right away.
	if err := s.sleep(ctx, s.cfg.SettleDelay); err != nil {
		return nil, err
	}
	return repo, nil
}

// commit creates or updates one file and records the outcome on res.
func (s *Synchronizer) commit(ctx context.Context, res *Result, f File, message string) {
	sha, changed, err := s.putFile(ctx, res.RepoName, f, message)
	switch {
	case err != nil:
		slog.Warn("Failed to commit file", logfields.Repository(res.RepoName), logfields.Path(f.Path), logfields.Error(err))
		res.Failed = append(res.Failed, f.Path)
	case !changed:
		slog.Debug("File unchanged, skipping commit", logfields.Repository(res.RepoName), logfields.Path(f.Path))
		res.Unchanged = append(res.Unchanged, f.Path)
	default:
		res.Committed = append(res.Committed, f.Path)
		res.CommitID = sha
	}
}

func (s *Synchronizer) putFile(ctx context.Context, repo string, f File, message string) (string, bool, error) {
	opts := forge.PutFileOptions{Path: f.Path, Content: f.Content, Message: message, Branch: s.cfg.Branch}

	existing, err := s.host.GetFile(ctx, repo, f.Path, s.cfg.Branch)
	switch {
	case err == nil:
		if existing.SHA == plumbing.ComputeHash(plumbing.BlobObject, f.Content).String() {
			return "", false, nil
		}
		opts.SHA = existing.SHA
	case errors.Is(err, forge.ErrFileNotFound):
	default:
		return "", false, err
	}

	out, err := s.host.PutFile(ctx, repo, opts)
	if err != nil {
		return "", false, err
	}
	return out.CommitSHA, true, nil
}

func (s *Synchronizer) enablePages(ctx context.Context, repo string) {
	if err := s.sleep(ctx, s.cfg.PagesDelay); err != nil {
		slog.Warn("Skipping Pages enable", logfields.Repository(repo), logfields.Error(err))
		return
	}
	out, err := s.host.EnablePages(ctx, repo, s.cfg.Branch)
	switch {
	case err != nil:
		slog.Warn("Could not enable Pages; the deployment workflow remains as fallback",
			logfields.Repository(repo), logfields.Error(err))
	case out.AlreadyEnabled:
		slog.Info("Pages already enabled", logfields.Repository(repo))
	default:
		slog.Info("Pages enabled", logfields.Repository(repo))
	}
}

// ReadBack returns the UTF-8 text files committed on the configured branch.
func (s *Synchronizer) ReadBack(ctx context.Context, repoName string) (Snapshot, error) {
	tree, err := s.host.GetTree(ctx, repoName, s.cfg.Branch)
	if err != nil {
		return Snapshot{}, derrors.ForgeError("failed to list repository content").
			WithCause(err).
			WithContext("repository", repoName).
			Build()
	}
	if tree.Truncated {
		slog.Warn("Repository tree listing truncated", logfields.Repository(repoName))
	}

	snap := Snapshot{RepoName: repoName, Files: make(map[string]string)}
	for _, e := range tree.Entries {
		if e.Type != "blob" {
			continue
		}
		data, err := s.host.GetBlob(ctx, repoName, e.SHA)
		if err != nil {
			slog.Warn("Failed to read blob", logfields.Repository(repoName), logfields.Path(e.Path), logfields.Error(err))
			snap.Skipped = append(snap.Skipped, e.Path)
			continue
		}
		if !utf8.Valid(data) {
			snap.Skipped = append(snap.Skipped, e.Path)
			continue
		}
		snap.Files[e.Path] = string(data)
	}
	return snap, nil
}
