package domain

import "github.com/shopspring/decimal"

// CartLine - одна пара «товар + количество» в корзине.
// Инвариант: Quantity >= 1, на каждый Product.ID в корзине не более одной строки.
type CartLine struct {
	ID       string  `json:"id"`
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Subtotal возвращает price × quantity для строки.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartTotal пересчитывает итог корзины по строкам. Значение нигде не кэшируется.
func CartTotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// CloneLines возвращает независимую копию строк корзины.
func CloneLines(lines []CartLine) []CartLine {
	if lines == nil {
		return []CartLine{}
	}
	out := make([]CartLine, len(lines))
	copy(out, lines)
	return out
}
