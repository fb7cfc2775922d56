package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when a stored or submitted amount cannot be interpreted.
var ErrInvalidAmount = errors.New("domain: invalid amount")

// DefaultDeliveryFee is charged on delivery orders only.
var DefaultDeliveryFee = decimal.NewFromInt(50)

// ParseAmount normalises the price shapes found in stored documents and request payloads
// (numbers, numeric strings, optionally prefixed with a currency label) into a decimal.
func ParseAmount(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case nil:
		return decimal.Zero, fmt.Errorf("%w: missing", ErrInvalidAmount)
	case decimal.Decimal:
		return v, nil
	case *decimal.Decimal:
		if v == nil {
			return decimal.Zero, fmt.Errorf("%w: missing", ErrInvalidAmount)
		}
		return *v, nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int32:
		return decimal.NewFromInt32(v), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case json.Number:
		return parseAmountString(v.String())
	case string:
		return parseAmountString(v)
	default:
		return decimal.Zero, fmt.Errorf("%w: unsupported type %T", ErrInvalidAmount, value)
	}
}

func parseAmountString(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	upper := strings.ToUpper(cleaned)
	for _, prefix := range []string{"LKR", "RS.", "RS"} {
		if strings.HasPrefix(upper, prefix) {
			cleaned = strings.TrimSpace(cleaned[len(prefix):])
			break
		}
	}
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return d, nil
}

// FormatAmount renders the amount with exactly two decimal places.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// LineTotal multiplies a unit price by a quantity.
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// DeliveryFeeFor returns fee for delivery orders and zero otherwise.
func DeliveryFeeFor(orderType OrderType, fee decimal.Decimal) decimal.Decimal {
	if orderType == OrderTypeDelivery {
		return fee
	}
	return decimal.Zero
}
