// Package errors provides the classified error primitives used across appforge.
//
// A ClassifiedError carries a category (validation, forge, generation, ...),
// a severity, a retry strategy, and structured context. Errors are built with
// the fluent builder:
//
//	err := errors.ForgeError("failed to create repository").
//		WithCause(cause).
//		WithContext("repository", name).
//		Build()
//
// Two classified errors with the same category and message compare equal
// under errors.Is, so package-level sentinels built here can be matched even
// after context has been attached to a copy.
package errors
