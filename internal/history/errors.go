package history

import (
	derrors "git.home.luguber.info/inful/appforge/internal/foundation/errors"
)

var (
	// ErrOpenFailed indicates the SQLite database could not be opened.
	ErrOpenFailed = derrors.HistoryError("could not open run history database").Build()

	// ErrSchemaFailed indicates the database schema could not be initialized.
	ErrSchemaFailed = derrors.HistoryError("failed to initialize run history schema").Build()

	// ErrAppendFailed indicates appending an event failed.
	ErrAppendFailed = derrors.HistoryError("failed to append run event").Build()

	// ErrQueryFailed indicates querying or scanning events failed.
	ErrQueryFailed = derrors.HistoryError("failed to query run events").Build()
)
