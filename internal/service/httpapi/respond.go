package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ErrorResponse - тело ответа с ошибкой.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// respondDomainError переводит доменную ошибку в HTTP-статус.
func (h *Handler) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(log.Fields{
			"user_id": userIDFrom(r.Context()),
			"path":    r.URL.Path,
		}).Warn("request failed")
	}
	respondError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrCustomerRequired):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound, "product_not_found"
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, "order_not_found"
	case errors.Is(err, domain.ErrQuantityInvalid),
		errors.Is(err, domain.ErrProductIDRequired),
		errors.Is(err, domain.ErrPriceNegative):
		return http.StatusBadRequest, "invalid_item"
	case errors.Is(err, domain.ErrShippingAddressIncomplete):
		return http.StatusBadRequest, "invalid_address"
	case errors.Is(err, domain.ErrCartEmpty):
		return http.StatusBadRequest, "cart_empty"
	case errors.Is(err, domain.ErrUnsupportedCurrency), errors.Is(err, domain.ErrCurrencyRequired):
		return http.StatusBadRequest, "invalid_currency"
	case errors.Is(err, domain.ErrStaleIntent):
		return http.StatusConflict, "stale_intent"
	case errors.Is(err, domain.ErrFinalizeInFlight):
		return http.StatusConflict, "finalize_in_flight"
	case errors.Is(err, domain.ErrIllegalTransition):
		return http.StatusConflict, "illegal_transition"
	case errors.Is(err, domain.ErrOrderExists):
		return http.StatusConflict, "order_exists"
	case errors.Is(err, domain.ErrPaymentFailed):
		return http.StatusPaymentRequired, "payment_failed"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable, "payment_unavailable"
	case errors.Is(err, domain.ErrPaymentGateway):
		return http.StatusBadGateway, "payment_gateway_error"
	case errors.Is(err, domain.ErrOrderWriteFailed):
		return http.StatusServiceUnavailable, "order_write_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
