package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

// AddItemRequestDTO - тело POST /v1/cart/items.
type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// UpdateQuantityRequestDTO - тело PATCH /v1/cart/items/{productID}.
type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

// PrepareRequestDTO - адрес доставки и контакт покупателя для POST /v1/checkout/prepare.
type PrepareRequestDTO struct {
	Email      string `json:"email,omitempty"`
	FullName   string `json:"full_name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
}

// PaymentResultRequestDTO - итог платёжного UI.
type PaymentResultRequestDTO struct {
	Outcome  domain.PaymentOutcome `json:"outcome"`
	IntentID string                `json:"intent_id,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// CartLineDTO - строка корзины в ответе.
type CartLineDTO struct {
	ID       string          `json:"id"`
	Product  domain.Product  `json:"product"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// CartDTO - корзина с пересчитанным итогом.
type CartDTO struct {
	Lines        []CartLineDTO   `json:"lines"`
	Total        decimal.Decimal `json:"total"`
	PersistError string          `json:"persist_error,omitempty"`
}

// OrderDTO - заказ в ответе.
type OrderDTO struct {
	ID              string                 `json:"id"`
	Lines           []CartLineDTO          `json:"lines"`
	Total           decimal.Decimal        `json:"total"`
	Currency        string                 `json:"currency"`
	AmountMinor     int64                  `json:"amount_minor"`
	Status          domain.OrderStatus     `json:"status"`
	PaymentStatus   domain.PaymentStatus   `json:"payment_status"`
	PaymentIntentID string                 `json:"payment_intent_id"`
	ShippingAddress domain.ShippingAddress `json:"shipping_address"`
	CreatedAt       time.Time              `json:"created_at"`
}

// CheckoutStatusDTO - снимок состояния оформления.
type CheckoutStatusDTO struct {
	State            checkout.State           `json:"state"`
	Version          uint64                   `json:"version"`
	Ready            bool                     `json:"ready"`
	Payment          *checkout.PaymentContext `json:"payment,omitempty"`
	LastPrepareError string                   `json:"last_prepare_error,omitempty"`
	LastPaymentError string                   `json:"last_payment_error,omitempty"`
	LastOrderError   string                   `json:"last_order_error,omitempty"`
	PendingOrder     *OrderDTO                `json:"pending_order,omitempty"`
	LastOrder        *OrderDTO                `json:"last_order,omitempty"`
}

func toLineDTOs(lines []domain.CartLine) []CartLineDTO {
	out := make([]CartLineDTO, 0, len(lines))
	for _, line := range lines {
		out = append(out, CartLineDTO{
			ID:       line.ID,
			Product:  line.Product,
			Quantity: line.Quantity,
			Subtotal: line.Subtotal(),
		})
	}
	return out
}

func toCartDTO(lines []domain.CartLine, persistErr error) CartDTO {
	return CartDTO{
		Lines:        toLineDTOs(lines),
		Total:        domain.CartTotal(lines),
		PersistError: errorString(persistErr),
	}
}

func toOrderDTO(order domain.Order) OrderDTO {
	return OrderDTO{
		ID:              order.ID,
		Lines:           toLineDTOs(order.Lines),
		Total:           order.Total,
		Currency:        order.Currency,
		AmountMinor:     order.AmountMinor,
		Status:          order.Status,
		PaymentStatus:   order.PaymentStatus,
		PaymentIntentID: order.PaymentIntentID,
		ShippingAddress: order.ShippingAddress,
		CreatedAt:       order.CreatedAt,
	}
}

func toOrderDTOPtr(order *domain.Order) *OrderDTO {
	if order == nil {
		return nil
	}
	dto := toOrderDTO(*order)
	return &dto
}

func toStatusDTO(status checkout.Status) CheckoutStatusDTO {
	return CheckoutStatusDTO{
		State:            status.State,
		Version:          status.Version,
		Ready:            status.Ready,
		Payment:          status.Payment,
		LastPrepareError: errorString(status.LastPrepareError),
		LastPaymentError: errorString(status.LastPaymentError),
		LastOrderError:   errorString(status.LastOrderError),
		PendingOrder:     toOrderDTOPtr(status.PendingOrder),
		LastOrder:        toOrderDTOPtr(status.LastOrder),
	}
}
