package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/target/mmk-jobpipe/internal/errors"
)

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, ErrorParams{
				Code:    http.StatusRequestEntityTooLarge,
				ErrCode: "request_too_large",
				Err:     fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit),
			})
			return false
		}
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Field   string
	Err     error
}

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, ErrorResponse{Error: p.Err.Error(), Code: p.ErrCode, Field: p.Field})
}

// WriteAppError renders err with a status derived from its AppError code.
// Errors without a code are reported as internal and their text is not exposed.
func WriteAppError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	if code == "" {
		code = apperrors.ErrCodeInternal
	}
	status := statusForCode(code)

	msg := err
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		msg = errors.New(http.StatusText(status))
	} else {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			msg = errors.New(appErr.Message)
		}
	}

	WriteError(w, ErrorParams{
		Code:    status,
		ErrCode: string(code),
		Field:   apperrors.GetField(err),
		Err:     msg,
	})
}

func statusForCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeStorage:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeDelivery:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
