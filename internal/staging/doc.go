// Package staging materializes request attachments into a scratch area for
// the lifetime of one task run.
//
// Each run gets its own directory, <root>/<task>/<run-id>/, so concurrent
// runs never see or clobber each other's files. Release removes everything a
// Stage call created; the Sweeper reclaims directories left behind by a
// process that died mid-run.
package staging
