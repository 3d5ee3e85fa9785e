package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает статус исполнения заказа.
type OrderStatus string

const (
	// OrderStatusPlaced - заказ оплачен и записан, ожидает обработки магазином.
	OrderStatusPlaced OrderStatus = "placed"
)

// PaymentStatus описывает статус оплаты заказа.
type PaymentStatus string

const (
	// PaymentStatusPaid - процессор подтвердил оплату.
	PaymentStatusPaid PaymentStatus = "paid"
)

// ShippingAddress - адрес доставки, встроенный в заказ.
type ShippingAddress struct {
	FullName   string `json:"full_name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
}

// Complete сообщает, заполнены ли все поля адреса.
func (a ShippingAddress) Complete() bool {
	return strings.TrimSpace(a.FullName) != "" &&
		strings.TrimSpace(a.Address) != "" &&
		strings.TrimSpace(a.City) != "" &&
		strings.TrimSpace(a.PostalCode) != ""
}

// Order - оплаченный заказ. После записи в журнал не изменяется.
type Order struct {
	ID              string
	UserID          string
	Lines           []CartLine
	Total           decimal.Decimal
	Currency        string
	AmountMinor     int64
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	PaymentIntentID string
	ShippingAddress ShippingAddress
	CreatedAt       time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrLinesRequired)
	}
	if !o.ShippingAddress.Complete() {
		errs = append(errs, ErrShippingAddressIncomplete)
	}

	for _, line := range o.Lines {
		if line.Quantity <= 0 {
			errs = append(errs, ErrQuantityInvalid)
		}
		if line.Product.Price.IsNegative() {
			errs = append(errs, ErrPriceNegative)
		}
	}
	// Итог обязан совпадать с суммой позиций: price × quantity.
	if !CartTotal(o.Lines).Equal(o.Total) {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}
