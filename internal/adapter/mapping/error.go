package mapping

import (
	"errors"
	"net/http"

	"github.com/eslsoft/lingoledger/internal/entity"
)

// ErrorBody is the JSON shape of every failed response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToHTTPError maps a usecase error onto a status code and a stable error code.
func ToHTTPError(err error) (int, ErrorBody) {
	switch {
	case err == nil:
		return http.StatusOK, ErrorBody{}
	case errors.Is(err, entity.ErrInvalidUserID):
		return http.StatusBadRequest, ErrorBody{Code: "invalid_user_id", Message: err.Error()}
	case errors.Is(err, entity.ErrInvalidExercise):
		return http.StatusBadRequest, ErrorBody{Code: "invalid_exercise", Message: err.Error()}
	case errors.Is(err, entity.ErrInvalidQuery):
		return http.StatusBadRequest, ErrorBody{Code: "invalid_query", Message: err.Error()}
	case errors.Is(err, entity.ErrUnknownUser):
		return http.StatusNotFound, ErrorBody{Code: "unknown_user", Message: err.Error()}
	case errors.Is(err, entity.ErrUnknownExercise):
		return http.StatusNotFound, ErrorBody{Code: "unknown_exercise", Message: err.Error()}
	case errors.Is(err, entity.ErrLedgerConflict):
		return http.StatusConflict, ErrorBody{Code: "ledger_conflict", Message: err.Error()}
	case errors.Is(err, entity.ErrStoreUnavailable):
		// Driver details stay in the logs.
		return http.StatusServiceUnavailable, ErrorBody{Code: "store_unavailable", Message: entity.ErrStoreUnavailable.Error()}
	default:
		return http.StatusInternalServerError, ErrorBody{Code: "internal", Message: "internal error"}
	}
}
