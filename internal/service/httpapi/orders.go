package httpapi

import (
	"net/http"
	"slices"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ListOrders - GET /v1/orders, новые заказы первыми.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.ledger.GetOrders(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	slices.SortFunc(orders, func(a, b domain.Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	out := make([]OrderDTO, 0, len(orders))
	for _, order := range orders {
		out = append(out, toOrderDTO(order))
	}
	respondJSON(w, http.StatusOK, out)
}
