package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimalCurrencies - валюты без дробной части (процессор принимает целые единицы).
var zeroDecimalCurrencies = map[string]struct{}{
	"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {}, "krw": {}, "mga": {},
	"pyg": {}, "rwf": {}, "ugx": {}, "vnd": {}, "vuv": {}, "xaf": {}, "xof": {}, "xpf": {},
}

// NormalizeCurrency приводит код валюты к нижнему регистру ISO 4217.
func NormalizeCurrency(currency string) (string, error) {
	c := strings.ToLower(strings.TrimSpace(currency))
	if c == "" {
		return "", ErrCurrencyRequired
	}
	if len(c) != 3 {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, currency)
	}
	for _, r := range c {
		if r < 'a' || r > 'z' {
			return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, currency)
		}
	}
	return c, nil
}

// MinorUnitExponent возвращает количество знаков после запятой для валюты.
func MinorUnitExponent(currency string) int32 {
	if _, ok := zeroDecimalCurrencies[strings.ToLower(currency)]; ok {
		return 0
	}
	return 2
}

// ToMinorUnits переводит десятичную сумму в минимальные единицы валюты (например, центы).
// Сумма округляется (half away from zero), а не усекается, чтобы не недосписать.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	c, err := NormalizeCurrency(currency)
	if err != nil {
		return 0, err
	}
	if amount.IsNegative() {
		return 0, ErrPriceNegative
	}
	exp := MinorUnitExponent(c)
	return amount.Round(exp).Shift(exp).IntPart(), nil
}

// FromMinorUnits выполняет обратное преобразование (для отображения и сверки).
func FromMinorUnits(amountMinor int64, currency string) decimal.Decimal {
	return decimal.New(amountMinor, -MinorUnitExponent(currency))
}
