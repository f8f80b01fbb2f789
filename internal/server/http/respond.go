package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/alprslanymeria/oauthserver/internal/common"
)

const (
	msgInternal     = "An unexpected error occurred."
	msgBadBody      = "Request body is not valid JSON."
	msgTooMany      = "Too many requests."
	msgMissingToken = "Missing or invalid access token."
)

// maxBodyBytes caps request bodies; attestation objects are the largest.
const maxBodyBytes = 1 << 20

type errorBody struct {
	Errors []string `json:"errors"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrors(w http.ResponseWriter, code int, messages ...string) {
	writeJSON(w, code, errorBody{Errors: messages})
}

// statusOf maps a taxonomy kind to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrorForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorConflict):
		return http.StatusConflict
	case errors.Is(err, common.ErrorBusiness):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err to the client. Internal errors are logged and replaced by
// a generic message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err.Error())
		writeErrors(w, code, msgInternal)
		return
	}

	msgs := common.Messages(err)
	if len(msgs) == 0 {
		msgs = []string{http.StatusText(code)}
	}
	writeErrors(w, code, msgs...)
}

// decode reads a JSON body into v. An empty body leaves v untouched when
// allowEmpty is set.
func decode(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return common.Business(msgBadBody)
	}
	return nil
}
