// Package publish makes a hosted repository match a generated file set.
//
// Round 1 recreates the repository from scratch (delete, create with a
// license, commit files, commit the Pages workflow, enable Pages). Later
// rounds update the existing repository in place. Every file is an
// independent create-or-update commit; a file whose content already matches
// the committed blob is left alone.
package publish
