// Package response writes JSON bodies for HTTP handlers.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/apierrors"
)

// ErrorBody is the envelope every error response uses.
type ErrorBody struct {
	Error *apierrors.APIError `json:"error"`
}

// JSON writes data as the response body with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":{"code":"internal_error","message":"Failed to encode response"}}`, http.StatusInternalServerError)
	}
}

func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// Error writes err in the error envelope. Errors that are not APIErrors are
// rendered as internal errors so their text never reaches the client.
func Error(w http.ResponseWriter, err error) {
	apiErr := apierrors.AsAPIError(err)
	JSON(w, apiErr.StatusCode, ErrorBody{Error: apiErr})
}

func Unauthorized(w http.ResponseWriter) {
	Error(w, apierrors.ErrUnauthorized)
}

// DecodeJSON reads a JSON request body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apierrors.ErrBadRequest.WithMessage("Invalid request body")
	}
	return nil
}
