// Package httpapi is the net/http.ServeMux REST surface over the
// attribution pipeline, the provenance store, and the footprint engine:
// thin handlers that decode a request DTO, call one core collaborator,
// and encode a response DTO, with cortexerr sentinel errors mapped to
// status codes in one place.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/cortexai/cortex-engine/internal/cortexerr"
)

// ErrorResponse is the body written for every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}

// PaginatedResponse wraps a page of items with the offset/limit/total
// bookkeeping every list endpoint in returns.
type PaginatedResponse[T any] struct {
	Items   []T  `json:"items"`
	Total   int  `json:"total"`
	Offset  int  `json:"offset"`
	Limit   int  `json:"limit"`
	HasMore bool `json:"has_more"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// respondError maps err to a status code via cortexerr.HTTPStatus and
// writes an ErrorResponse body.
func respondError(w http.ResponseWriter, err error) {
	status := cortexerr.HTTPStatus(err)
	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Code:    status,
		Details: err.Error(),
	})
}

func respondNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return cortexerr.Validationf("decode request body: %v", err)
	}
	return nil
}
