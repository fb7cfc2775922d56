package firestore

import (
	"fmt"

	"github.com/shopspring/decimal"

	domain "github.com/campusnest/api/internal/domain"
)

// Stored prices are schema-less: older documents carry numeric strings ("500", "LKR 1,200")
// while newer writes carry numbers. Reads normalise through domain.ParseAmount and writes
// always store a number rounded to cents.

func decodeAmount(field string, raw any) (decimal.Decimal, error) {
	amount, err := domain.ParseAmount(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", field, err)
	}
	return amount, nil
}

func decodeOptionalAmount(field string, raw any) (decimal.Decimal, error) {
	if raw == nil {
		return decimal.Zero, nil
	}
	if s, ok := raw.(string); ok && s == "" {
		return decimal.Zero, nil
	}
	return decodeAmount(field, raw)
}

func encodeAmount(amount decimal.Decimal) float64 {
	return amount.Round(2).InexactFloat64()
}
