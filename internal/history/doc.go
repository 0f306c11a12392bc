// Package history records the phase results of every pipeline run in SQLite.
//
// Events are append-only and keyed by task id and run id, so repeated rounds
// of one task produce separate run timelines that can be listed together.
package history
