package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/diewo77/go-procurement/internal/apperr"
	"github.com/rs/zerolog"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	var body []byte
	var err error
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			// best-effort error response; avoid writing partial JSON
			http.Error(w, `{"error":"encode_error"}`, http.StatusInternalServerError)
			return
		}
	} else {
		body = []byte("null")
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func JSONError(w http.ResponseWriter, status int, code string, details any) {
	JSON(w, status, ErrorResponse{Error: code, Details: details})
}

// Error writes err using the apperr taxonomy. Unexpected errors are logged
// through the request logger and answered with an opaque server_error.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.From(err)
	if !ok {
		zerolog.Ctx(r.Context()).Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("unhandled error")
		JSON(w, e.Status, ErrorResponse{Error: e.Code})
		return
	}
	JSON(w, e.Status, ErrorResponse{Error: e.Code, Message: e.Message, Details: e.Details})
}

// MaxBodyBytes caps the request bodies DecodeJSON reads.
const MaxBodyBytes = 1 << 20

// DecodeJSON reads a JSON body into dst. An empty body leaves dst untouched;
// bodies over MaxBodyBytes are rejected.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, MaxBodyBytes)).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.ErrTooLarge
	}
	return apperr.ErrInvalidJSON.WithMessage(err.Error())
}
