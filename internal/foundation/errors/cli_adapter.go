package errors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Exit codes returned by the command line.
const (
	ExitOK       = 0
	ExitGeneral  = 1
	ExitUsage    = 2
	ExitAuth     = 5
	ExitConfig   = 7
	ExitExternal = 8
	ExitInternal = 10
	ExitLocal    = 11
	ExitRuntime  = 12
)

// CLIErrorAdapter handles error presentation and exit code determination for the CLI.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
	out     io.Writer
	exit    func(int)
}

// NewCLIErrorAdapter creates a new CLI error adapter writing to stderr.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{verbose: verbose, logger: logger, out: os.Stderr, exit: os.Exit}
}

// ExitCodeFor determines the exit code for err.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	c, ok := AsClassified(err)
	if !ok {
		return ExitGeneral
	}
	switch c.Category() {
	case CategoryValidation, CategoryNotFound:
		return ExitUsage
	case CategoryConfig:
		return ExitConfig
	case CategoryAuth:
		return ExitAuth
	case CategoryNetwork, CategoryForge, CategoryGeneration, CategoryNotification:
		return ExitExternal
	case CategoryFileSystem, CategoryState, CategoryHistory:
		return ExitLocal
	case CategoryRuntime:
		return ExitRuntime
	case CategoryInternal:
		return ExitInternal
	default:
		return ExitGeneral
	}
}

// FormatError formats err for display. Verbose mode shows the full chain.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	c, ok := AsClassified(err)
	if !ok || a.verbose {
		return fmt.Sprintf("Error: %v", err)
	}
	switch c.Category() {
	case CategoryConfig, CategoryValidation, CategoryAuth, CategoryNotFound:
		return "Error: " + c.Message()
	default:
		return fmt.Sprintf("Error: %s: %s", c.Category(), c.Message())
	}
}

// HandleError prints err and exits with its exit code. A nil err is a no-op.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}
	if a.shouldLog(err) {
		a.logError(err)
	}
	_, _ = fmt.Fprintln(a.out, a.FormatError(err))
	a.exit(a.ExitCodeFor(err))
}

func (a *CLIErrorAdapter) shouldLog(err error) bool {
	if a.verbose {
		return true
	}
	c, ok := AsClassified(err)
	if !ok {
		return true
	}
	return c.Category() == CategoryInternal || c.Category() == CategoryRuntime || c.IsFatal()
}

func (a *CLIErrorAdapter) logError(err error) {
	c, ok := AsClassified(err)
	if !ok {
		a.logger.Error("Command failed", slog.String("error", err.Error()))
		return
	}
	attrs := []slog.Attr{
		slog.String("category", string(c.Category())),
		slog.String("severity", string(c.Severity())),
		slog.String("error", err.Error()),
	}
	for k, v := range c.Context() {
		attrs = append(attrs, slog.Any(k, v))
	}
	a.logger.LogAttrs(context.Background(), levelFor(c.Severity()), "Command failed", attrs...)
}
