package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// CheckoutStatus - GET /v1/checkout.
func (h *Handler) CheckoutStatus(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, toStatusDTO(session.Checkout.Status()))
}

// Prepare - POST /v1/checkout/prepare: создаёт payment intent для текущей корзины.
func (h *Handler) Prepare(w http.ResponseWriter, r *http.Request) {
	var req PrepareRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	customer, err := h.loadCustomer(r.Context(), session.UserID, req.Email)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	address := domain.ShippingAddress{
		FullName:   req.FullName,
		Address:    req.Address,
		City:       req.City,
		PostalCode: req.PostalCode,
	}
	if _, err := session.Checkout.Prepare(r.Context(), &customer, address); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toStatusDTO(session.Checkout.Status()))
}

// PresentPaymentSheet - POST /v1/checkout/payment-sheet: фиксирует intent за платёжным UI.
func (h *Handler) PresentPaymentSheet(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	payment, err := session.Checkout.PresentPaymentSheet()
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, payment)
}

// PaymentResult - POST /v1/checkout/payment-result: итог платёжного UI.
func (h *Handler) PaymentResult(w http.ResponseWriter, r *http.Request) {
	var req PaymentResultRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if !req.Outcome.Valid() {
		respondError(w, http.StatusBadRequest, "invalid_outcome", "outcome must be completed, failed or canceled")
		return
	}
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	result := domain.PaymentResult{Outcome: req.Outcome, IntentID: req.IntentID}
	if req.Error != "" {
		result.Err = errors.New(req.Error)
	}
	if err := session.Checkout.OnPaymentResult(r.Context(), result); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toStatusDTO(session.Checkout.Status()))
}

// RetryFinalize - POST /v1/checkout/retry-finalize: повторная запись оплаченного заказа.
func (h *Handler) RetryFinalize(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.Checkout.RetryFinalize(r.Context()); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toStatusDTO(session.Checkout.Status()))
}

// loadCustomer возвращает запись покупателя; неизвестный пользователь получает новую запись.
func (h *Handler) loadCustomer(ctx context.Context, userID, email string) (domain.Customer, error) {
	customer, err := h.customers.Get(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrCustomerNotFound):
		customer = domain.Customer{ID: userID}
	case err != nil:
		return domain.Customer{}, err
	}
	if email != "" {
		customer.Email = email
	}
	return customer, nil
}
