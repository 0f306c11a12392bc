package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyTaskID     = "task_id"
	KeyRound      = "round"
	KeyRunID      = "run_id"
	KeyPhase      = "phase"
	KeyStatus     = "status"
	KeyReason     = "reason"
	KeyRepo       = "repository"
	KeyPath       = "path"
	KeyCommit     = "commit"
	KeyAttempt    = "attempt"
	KeyEndpoint   = "endpoint"
	KeyJobID      = "job_id"
	KeyWorker     = "worker"
	KeyDurationMS = "duration_ms"
	KeyMethod     = "method"
	KeyHTTPStatus = "http_status"
	KeyUserAgent  = "user_agent"
	KeyRemoteAddr = "remote_addr"
	KeyRequestID  = "request_id"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func TaskID(id string) slog.Attr      { return slog.String(KeyTaskID, id) }
func Round(n int) slog.Attr           { return slog.Int(KeyRound, n) }
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Phase(name string) slog.Attr     { return slog.String(KeyPhase, name) }
func Status(s string) slog.Attr       { return slog.String(KeyStatus, s) }
func Reason(r string) slog.Attr       { return slog.String(KeyReason, r) }
func Repository(r string) slog.Attr   { return slog.String(KeyRepo, r) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Commit(sha string) slog.Attr     { return slog.String(KeyCommit, sha) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func Endpoint(u string) slog.Attr     { return slog.String(KeyEndpoint, u) }
func JobID(id string) slog.Attr       { return slog.String(KeyJobID, id) }
func Worker(w string) slog.Attr       { return slog.String(KeyWorker, w) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func HTTPStatus(code int) slog.Attr   { return slog.Int(KeyHTTPStatus, code) }
func UserAgent(ua string) slog.Attr   { return slog.String(KeyUserAgent, ua) }
func RemoteAddr(a string) slog.Attr   { return slog.String(KeyRemoteAddr, a) }
func RequestID(id string) slog.Attr   { return slog.String(KeyRequestID, id) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
