package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkivo/arkivo/internal/errs"
	"github.com/arkivo/arkivo/internal/log"
)

func TestWriteJSONSetsHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]string{"key": "value"}, log.NewNop())

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Length"))
	assert.JSONEq(t, `{"key":"value"}`, rec.Body.String())
}

func TestWriteDomainErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", errs.Validation("bad input"), http.StatusBadRequest, "invalid_request"},
		{"not found", errs.NotFound("missing"), http.StatusNotFound, "not_found"},
		{"invalid state", errs.InvalidState("cannot"), http.StatusConflict, "invalid_state"},
		{"conflict", errs.Conflict("stale"), http.StatusConflict, "conflict"},
		{"external", errs.External("provider", errors.New("down")), http.StatusBadGateway, "upstream_failed"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeDomainError(rec, tt.err, log.NewNop())

			assert.Equal(t, tt.wantStatus, rec.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
		})
	}
}

func TestExternalAndInternalErrorsStayOpaque(t *testing.T) {
	for _, err := range []error{
		errs.External("calling provider", errors.New("secret-host refused")),
		errors.New("pq: secret-host connection reset"),
	} {
		rec := httptest.NewRecorder()
		writeDomainError(rec, err, log.NewNop())

		var body errorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.NotContains(t, body.Error.Message, "secret-host")
	}
}
