package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/arkivo/arkivo/internal/errs"
	"github.com/arkivo/arkivo/internal/log"
)

// writeJSON writes a JSON response with the given status code. The
// body is encoded into a buffer first so headers are only sent after
// successful encoding, leaving room for a proper 500 on failure.
func writeJSON(w http.ResponseWriter, status int, data any, logger log.Logger) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		logger.Debug("failed to write response body", "error", err)
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a machine-readable error envelope.
func writeError(w http.ResponseWriter, status int, code, message string, logger log.Logger) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}}, logger)
}

// writeDomainError maps the error taxonomy onto HTTP statuses. Unknown
// errors become opaque 500s; their details stay in the logs.
func writeDomainError(w http.ResponseWriter, err error, logger log.Logger) {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), logger)
	case errs.KindNotFound:
		writeError(w, http.StatusNotFound, "not_found", err.Error(), logger)
	case errs.KindInvalidState:
		writeError(w, http.StatusConflict, "invalid_state", err.Error(), logger)
	case errs.KindConflict:
		writeError(w, http.StatusConflict, "conflict", err.Error(), logger)
	case errs.KindExternal:
		logger.Error("upstream dependency failed", "error", err)
		writeError(w, http.StatusBadGateway, "upstream_failed",
			"an upstream dependency failed", logger)
	default:
		logger.Error("unhandled error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error",
			"internal server error", logger)
	}
}
