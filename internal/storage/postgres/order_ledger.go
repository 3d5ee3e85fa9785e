package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type orderLedger struct {
	db *sql.DB
}

// NewOrderLedger создаёт PostgreSQL-реализацию OrderLedger.
func NewOrderLedger(store *Store) domain.OrderLedger {
	return &orderLedger{db: store.DB()}
}

// WriteOrder вставляет заказ и его строки в одной транзакции.
func (r *orderLedger) WriteOrder(ctx context.Context, order domain.Order) (err error) {
	if order.ID == "" {
		return domain.ErrOrderIDRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	addr := order.ShippingAddress
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, total, currency, amount_minor, status, payment_status, payment_intent_id,
			ship_full_name, ship_address, ship_city, ship_postal_code, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		order.ID, order.UserID, order.Total, order.Currency, order.AmountMinor,
		string(order.Status), string(order.PaymentStatus), order.PaymentIntentID,
		addr.FullName, addr.Address, addr.City, addr.PostalCode, order.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderExists
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i, line := range order.Lines {
		p := line.Product
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (
				order_id, position, line_id, product_id, category, name, description, image_url,
				price, quantity, product_created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`,
			order.ID, i, line.ID, p.ID, p.Category, p.Name, p.Description, p.ImageURL,
			p.Price, line.Quantity, nullTime(p.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert order line %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

// GetOrders возвращает заказы пользователя, новые первыми.
func (r *orderLedger) GetOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, total, currency, amount_minor, status, payment_status, payment_intent_id,
		       ship_full_name, ship_address, ship_city, ship_postal_code, created_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		var (
			order         domain.Order
			status        string
			paymentStatus string
		)
		if err := rows.Scan(
			&order.ID, &order.UserID, &order.Total, &order.Currency, &order.AmountMinor,
			&status, &paymentStatus, &order.PaymentIntentID,
			&order.ShippingAddress.FullName, &order.ShippingAddress.Address,
			&order.ShippingAddress.City, &order.ShippingAddress.PostalCode,
			&order.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		order.Status = domain.OrderStatus(status)
		order.PaymentStatus = domain.PaymentStatus(paymentStatus)
		order.CreatedAt = order.CreatedAt.UTC()
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		lines, err := r.loadLines(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}
	return orders, nil
}

func (r *orderLedger) loadLines(ctx context.Context, orderID string) ([]domain.CartLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT line_id, product_id, category, name, description, image_url, price, quantity, product_created_at
		FROM order_lines
		WHERE order_id = $1
		ORDER BY position
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.CartLine, 0)
	for rows.Next() {
		var (
			line      domain.CartLine
			createdAt sql.NullTime
		)
		p := &line.Product
		if err := rows.Scan(
			&line.ID, &p.ID, &p.Category, &p.Name, &p.Description, &p.ImageURL,
			&p.Price, &line.Quantity, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		if createdAt.Valid {
			p.CreatedAt = createdAt.Time.UTC()
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}
	return lines, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

var _ domain.OrderLedger = (*orderLedger)(nil)
