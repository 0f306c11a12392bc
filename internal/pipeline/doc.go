// Package pipeline sequences the phases of one build run.
//
// A run moves through state lookup, snapshot read-back, attachment staging,
// generation, validation, publishing, state persistence and notification.
// Every phase reports an explicit PhaseResult; an abort stops the run and
// staged attachments are released whatever the outcome, including a panic.
package pipeline
