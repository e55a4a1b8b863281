package httpadapter

import (
	"net/http"

	"github.com/mkarlsen/reconcile/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrInboxItemNotFound),
		domain.IsKind(err, domain.ErrTransactionNotFound),
		domain.IsKind(err, domain.ErrSuggestionNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
