package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/oursql/oursql/internal/errs"
)

// errorResponse is the JSON body written for any failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// statusForError maps a structured engine error to an HTTP status code.
// Errors that aren't *errs.Error (shouldn't happen past the engine
// boundary, but kept defensive) map to 500.
func statusForError(err error) int {
	switch {
	case errs.Of(err, errs.KindNoSuchTable), errs.Of(err, errs.KindNotFound):
		return http.StatusNotFound
	case errs.Of(err, errs.KindTableExists), errs.Of(err, errs.KindDuplicateKey):
		return http.StatusConflict
	case errs.Of(err, errs.KindSchemaError),
		errs.Of(err, errs.KindTypeError),
		errs.Of(err, errs.KindPkImmutable),
		errs.Of(err, errs.KindLexError),
		errs.Of(err, errs.KindParseError),
		errs.Of(err, errs.KindExecutionError),
		errs.Of(err, errs.KindOutOfRange),
		errs.Of(err, errs.KindRowTooLarge):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusForError(err), errorResponse{Error: err.Error()})
}
