package gateway

import (
	"net/http"

	"github.com/mcdev12/courtside/go/internal/errclass"
)

var statusByCode = map[string]int{
	errclass.ErrNotFound.Code:     http.StatusNotFound,
	errclass.ErrConflict.Code:     http.StatusConflict,
	errclass.ErrInvalidState.Code: http.StatusUnprocessableEntity,
	errclass.ErrValidation.Code:   http.StatusBadRequest,
}

// httpStatus maps a reply to the status code the HTTP routes answer with.
func httpStatus(r Reply) int {
	if r.Type != ReplyError {
		return http.StatusOK
	}
	if status, ok := statusByCode[r.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
