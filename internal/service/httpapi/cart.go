package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*checkout.Session, bool) {
	session, err := h.sessions.Get(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		h.respondDomainError(w, r, err)
		return nil, false
	}
	return session, true
}

func (h *Handler) respondCart(w http.ResponseWriter, status int, session *checkout.Session) {
	respondJSON(w, status, toCartDTO(session.Cart.GetAll(), session.Cart.LastPersistError()))
}

// GetCart - GET /v1/cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respondCart(w, http.StatusOK, session)
}

// AddItem - POST /v1/cart/items. Товар разрешается через каталог.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_item", "product_id is required")
		return
	}

	product, err := h.catalog.Get(r.Context(), req.ProductID)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	created, err := session.Cart.Add(r.Context(), product, req.Quantity)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.respondCart(w, status, session)
}

// UpdateQuantity - PATCH /v1/cart/items/{productID}. Количество меньше 1 приводится к 1.
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	session.Cart.UpdateQuantity(r.Context(), chi.URLParam(r, "productID"), req.Quantity)
	h.respondCart(w, http.StatusOK, session)
}

// RemoveItem - DELETE /v1/cart/items/{productID}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	session.Cart.Remove(r.Context(), chi.URLParam(r, "productID"))
	h.respondCart(w, http.StatusOK, session)
}

// ClearCart - DELETE /v1/cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	session.Cart.Clear(r.Context())
	h.respondCart(w, http.StatusOK, session)
}
