package publish

import (
	"context"

	"git.home.luguber.info/inful/appforge/internal/forge"
)

// Hosting is the repository hosting API the synchronizer drives.
// *forge.GitHubClient satisfies it.
type Hosting interface {
	Owner(ctx context.Context) (string, error)
	RepoURL(owner, repo string) string
	GetRepository(ctx context.Context, repo string) (*forge.Repository, error)
	CreateRepository(ctx context.Context, opts forge.CreateOptions) (*forge.Repository, error)
	DeleteRepository(ctx context.Context, repo string) error
	UpdateDescription(ctx context.Context, repo, description string) error
	GetFile(ctx context.Context, repo, path, ref string) (*forge.FileContent, error)
	PutFile(ctx context.Context, repo string, opts forge.PutFileOptions) (*forge.CommitResult, error)
	GetTree(ctx context.Context, repo, ref string) (*forge.Tree, error)
	GetBlob(ctx context.Context, repo, sha string) ([]byte, error)
	GetBranchHead(ctx context.Context, repo, branch string) (string, error)
	EnablePages(ctx context.Context, repo, branch string) (*forge.PagesResult, error)
}

var _ Hosting = (*forge.GitHubClient)(nil)
