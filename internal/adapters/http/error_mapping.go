package httpadapter

import (
	"net/http"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrConflict):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrActivationRejected):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrValidationFailed):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrExtractionFailed):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrTrainingJobFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
