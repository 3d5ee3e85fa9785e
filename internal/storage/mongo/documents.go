package mongo

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Денежные значения хранятся десятичными строками.

type productDoc struct {
	ID          string    `bson:"_id"`
	Category    string    `bson:"category"`
	Name        string    `bson:"name"`
	Price       string    `bson:"price"`
	Description string    `bson:"description,omitempty"`
	ImageURL    string    `bson:"imageUrl,omitempty"`
	CreatedAt   time.Time `bson:"createdAt"`
}

type lineDoc struct {
	ID       string     `bson:"id"`
	Product  productDoc `bson:"product"`
	Quantity int        `bson:"quantity"`
}

type addressDoc struct {
	FullName   string `bson:"fullName"`
	Address    string `bson:"address"`
	City       string `bson:"city"`
	PostalCode string `bson:"postalCode"`
}

type orderDoc struct {
	ID              string     `bson:"_id"`
	UserID          string     `bson:"userId"`
	Cart            []lineDoc  `bson:"cart"`
	Total           string     `bson:"total"`
	Currency        string     `bson:"currency"`
	AmountMinor     int64      `bson:"amountMinor"`
	Statut          string     `bson:"statut"`
	StatutPayment   string     `bson:"statutPayment"`
	PaymentIntentID string     `bson:"paymentIntentId"`
	Address         addressDoc `bson:"address"`
	CreatedAt       time.Time  `bson:"createdAt"`
}

func newProductDoc(p domain.Product) productDoc {
	return productDoc{
		ID:          p.ID,
		Category:    p.Category,
		Name:        p.Name,
		Price:       p.Price.String(),
		Description: p.Description,
		ImageURL:    p.ImageURL,
		CreatedAt:   p.CreatedAt.UTC(),
	}
}

func (d productDoc) toDomain() (domain.Product, error) {
	price, err := decimal.NewFromString(d.Price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %s: parse price %q: %w", d.ID, d.Price, err)
	}
	return domain.Product{
		ID:          d.ID,
		Category:    d.Category,
		Name:        d.Name,
		Price:       price,
		Description: d.Description,
		ImageURL:    d.ImageURL,
		CreatedAt:   d.CreatedAt.UTC(),
	}, nil
}

func newOrderDoc(o domain.Order) orderDoc {
	lines := make([]lineDoc, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, lineDoc{ID: l.ID, Product: newProductDoc(l.Product), Quantity: l.Quantity})
	}
	return orderDoc{
		ID:              o.ID,
		UserID:          o.UserID,
		Cart:            lines,
		Total:           o.Total.String(),
		Currency:        o.Currency,
		AmountMinor:     o.AmountMinor,
		Statut:          string(o.Status),
		StatutPayment:   string(o.PaymentStatus),
		PaymentIntentID: o.PaymentIntentID,
		Address: addressDoc{
			FullName:   o.ShippingAddress.FullName,
			Address:    o.ShippingAddress.Address,
			City:       o.ShippingAddress.City,
			PostalCode: o.ShippingAddress.PostalCode,
		},
		CreatedAt: o.CreatedAt.UTC(),
	}
}

func (d orderDoc) toDomain() (domain.Order, error) {
	total, err := decimal.NewFromString(d.Total)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order %s: parse total %q: %w", d.ID, d.Total, err)
	}
	lines := make([]domain.CartLine, 0, len(d.Cart))
	for _, l := range d.Cart {
		product, err := l.Product.toDomain()
		if err != nil {
			return domain.Order{}, fmt.Errorf("order %s: %w", d.ID, err)
		}
		lines = append(lines, domain.CartLine{ID: l.ID, Product: product, Quantity: l.Quantity})
	}
	return domain.Order{
		ID:              d.ID,
		UserID:          d.UserID,
		Lines:           lines,
		Total:           total,
		Currency:        d.Currency,
		AmountMinor:     d.AmountMinor,
		Status:          domain.OrderStatus(d.Statut),
		PaymentStatus:   domain.PaymentStatus(d.StatutPayment),
		PaymentIntentID: d.PaymentIntentID,
		ShippingAddress: domain.ShippingAddress{
			FullName:   d.Address.FullName,
			Address:    d.Address.Address,
			City:       d.Address.City,
			PostalCode: d.Address.PostalCode,
		},
		CreatedAt: d.CreatedAt.UTC(),
	}, nil
}
