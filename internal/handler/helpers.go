package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/textgate/textgate/internal/model"
	"github.com/textgate/textgate/internal/service"
	"github.com/textgate/textgate/internal/store"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// writeError writes a structured error response using the standard error
// envelope. The optional ctx map provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]interface{}) {
	var ctxMap map[string]interface{}
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Context: ctxMap,
		},
	})
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// readJSONStrict decodes like readJSON but rejects unknown fields. Update
// payloads use it so typos cannot silently no-op.
func readJSONStrict(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// queryInt extracts an integer query parameter, returning defaultVal if the
// parameter is missing or cannot be parsed.
func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// queryTime extracts an RFC 3339 timestamp query parameter. Returns nil when
// the parameter is missing, and an error when it is present but malformed.
func queryTime(r *http.Request, key string) (*time.Time, error) {
	val := r.URL.Query().Get(key)
	if val == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// pathID parses a numeric {id} URL parameter.
func pathID(idStr string) (int64, error) {
	return strconv.ParseInt(idStr, 10, 64)
}

// writeServiceError maps service and store layer errors onto the HTTP error
// envelope: 401 for credential failures, 429 for exhausted quotas, 400 for
// conflicts, 422 for validation failures, 404 for missing entities, 403 for
// permission denials, 500 otherwise.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		qerr *store.QuotaError
		verr *service.ValidationError
		cerr *service.ConflictError
		perr *service.PermissionError
	)
	switch {
	case errors.As(err, &qerr):
		writeError(w, http.StatusTooManyRequests,
			"Rate limit exceeded for "+qerr.Window+" window",
			map[string]interface{}{"window": qerr.Window, "limit": qerr.Limit})
	case errors.As(err, &verr):
		writeError(w, http.StatusUnprocessableEntity, verr.Error(),
			map[string]interface{}{"field": verr.Field})
	case errors.As(err, &cerr):
		writeError(w, http.StatusBadRequest, cerr.Error(),
			map[string]interface{}{"field": cerr.Field})
	case errors.As(err, &perr):
		writeError(w, http.StatusForbidden, perr.Error())
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrNoCredentials):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, service.ErrAccountDisabled):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "Account is disabled")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	default:
		writeError(w, http.StatusInternalServerError, "Internal error: "+err.Error())
	}
}
