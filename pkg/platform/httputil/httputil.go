// Package httputil holds the JSON envelope helpers shared by handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "rmr/pkg/domain-errors"
	"rmr/pkg/requestcontext"
)

const maxBodyBytes = 1 << 20

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into a JSON error envelope. Internal
// errors never leak their description.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		if msg := dErrors.Message(err); msg != "" {
			body["error_description"] = msg
		}
	}
	WriteJSON(w, dErrors.HTTPStatus(code), body)
}

// DecodeJSON reads a bounded JSON body into T. Decoding failures come back as
// CodeBadRequest so handlers can pass them straight to WriteError.
func DecodeJSON[T any](r *http.Request) (*T, error) {
	var v T
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, dErrors.New(dErrors.CodeBadRequest, "request body is required")
		}
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	return &v, nil
}

// LogAndWriteError logs at a level matching the error class and writes it.
func LogAndWriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error, attrs ...any) {
	if logger != nil {
		args := append([]any{"error", err}, attrs...)
		if dErrors.HTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
			logger.ErrorContext(r.Context(), msg, args...)
		} else {
			logger.WarnContext(r.Context(), msg, args...)
		}
	}
	WriteError(w, err)
}

// Validatable request bodies check and normalize themselves after decoding.
type Validatable interface {
	Validate() error
}

// DecodeAndPrepare decodes the body into T and runs Validate when T
// implements Validatable. On failure it writes the error response and
// returns false.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	req, err := DecodeJSON[T](r)
	if err == nil {
		if v, ok := any(req).(Validatable); ok {
			err = v.Validate()
		}
	}
	if err != nil {
		if logger != nil {
			logger.WarnContext(r.Context(), "rejected request body",
				"path", r.URL.Path,
				"request_id", requestcontext.RequestID(r.Context()),
				"error", err,
			)
		}
		WriteError(w, err)
		return nil, false
	}
	return req, true
}
