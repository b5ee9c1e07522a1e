package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "otakudb/pkg/domain-errors"
)

type errorBody struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError translates a domain error into an HTTP response. Gate failures
// keep their stable reason strings in the body so clients can react to
// has-pending, user-throttled and friends without string matching.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var de *dErrors.Error
	if !errors.As(err, &de) {
		logger.Error("unhandled error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
		return
	}

	status := dErrors.ToHTTPStatus(de.Code)
	if status >= http.StatusInternalServerError {
		logger.Error("internal error", "error", err)
		writeJSON(w, status, errorBody{Error: "internal server error", Code: string(de.Code)})
		return
	}
	writeJSON(w, status, errorBody{
		Error:  de.Message,
		Code:   string(de.Code),
		Reason: de.Reason,
	})
}

func decodeBody(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}
