// Package state persists the per-task facts needed to revise a project in a
// later round.
//
// The backing storage is one JSON document mapping task identifiers to
// TaskState records. Every Put is a serialized read-modify-write of the whole
// document followed by an atomic replace, so concurrent writers for different
// tasks never lose each other's entries.
package state
