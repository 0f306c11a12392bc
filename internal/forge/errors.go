package forge

import (
	stderrors "errors"

	"git.home.luguber.info/inful/appforge/internal/foundation/errors"
)

var (
	// ErrRepositoryNotFound signals that a repository was not found.
	ErrRepositoryNotFound = errors.NotFoundError("repository not found").Build()

	// ErrFileNotFound signals that a path has no committed content on the ref.
	ErrFileNotFound = errors.NotFoundError("file not found").Build()

	// ErrInvalidPath rejects a file path that would leave the repository's
	// contents namespace.
	ErrInvalidPath = errors.ValidationError("invalid repository file path").Build()

	// ErrAuthRequired signals that no token was configured.
	ErrAuthRequired = errors.AuthError("authentication required for forge client").Build()

	// ErrForgeUnsupported signals that the forge type is not supported.
	ErrForgeUnsupported = errors.ForgeError("unsupported forge type").Fatal().Build()
)

// StatusCode returns the HTTP status recorded on a forge API error anywhere
// in err's chain, or 0.
func StatusCode(err error) int {
	for e := err; e != nil; e = stderrors.Unwrap(e) {
		ce, ok := e.(*errors.ClassifiedError)
		if !ok {
			continue
		}
		if v, ok := ce.Context().Get("code"); ok {
			if code, ok := v.(int); ok {
				return code
			}
		}
	}
	return 0
}
