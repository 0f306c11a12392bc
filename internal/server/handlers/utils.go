// Package handlers implements the appforge HTTP endpoints.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/appforge/internal/logfields"
)

// respond encodes v before touching w, so an encode failure leaves the
// response untouched for the caller's error path. ?pretty=1 indents.
func respond(w http.ResponseWriter, r *http.Request, status int, v any) error {
	var (
		body []byte
		err  error
	)
	if wantsPretty(r) {
		body, err = json.MarshalIndent(v, "", "  ")
	} else {
		body, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		slog.Warn("Response write failed", logfields.Error(err))
		return err
	}
	return nil
}

func wantsPretty(r *http.Request) bool {
	if r == nil {
		return false
	}
	switch r.URL.Query().Get("pretty") {
	case "1", "true":
		return true
	}
	return false
}
