package rpc

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// AtomicExp is the number of decimal places in one major unit.
const AtomicExp = 12

var (
	// ErrInvalidAmountType means the value is not a number.
	ErrInvalidAmountType = errors.New("amount must be numeric (decimal.Decimal, integer or float)")
	// ErrInvalidAmount means the number is negative, zero where a positive
	// amount is required, or out of range.
	ErrInvalidAmount = errors.New("invalid amount")

	atomicUnit = decimal.New(1, AtomicExp)
	maxAtomic  = decimal.NewFromUint64(math.MaxUint64)
)

// ToAtomic converts a major-unit amount to atomic units, truncating any
// digits beyond the atomic precision. Strings are rejected; parse them with
// decimal.NewFromString first.
func ToAtomic(amount any) (uint64, error) {
	var d decimal.Decimal
	switch v := amount.(type) {
	case decimal.Decimal:
		d = v
	case *decimal.Decimal:
		if v == nil {
			return 0, ErrInvalidAmountType
		}
		d = *v
	case int:
		d = decimal.NewFromInt(int64(v))
	case int8:
		d = decimal.NewFromInt(int64(v))
	case int16:
		d = decimal.NewFromInt(int64(v))
	case int32:
		d = decimal.NewFromInt32(v)
	case int64:
		d = decimal.NewFromInt(v)
	case uint:
		d = decimal.NewFromUint64(uint64(v))
	case uint8:
		d = decimal.NewFromUint64(uint64(v))
	case uint16:
		d = decimal.NewFromUint64(uint64(v))
	case uint32:
		d = decimal.NewFromUint64(uint64(v))
	case uint64:
		d = decimal.NewFromUint64(v)
	case float32:
		d = decimal.NewFromFloat32(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, v)
		}
		d = decimal.NewFromFloat(v)
	default:
		return 0, fmt.Errorf("%w: got %T", ErrInvalidAmountType, amount)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %s is negative", ErrInvalidAmount, d)
	}
	atomic := d.Mul(atomicUnit).Truncate(0)
	if atomic.GreaterThan(maxAtomic) {
		return 0, fmt.Errorf("%w: %s overflows", ErrInvalidAmount, d)
	}
	return atomic.BigInt().Uint64(), nil
}

// FromAtomic converts atomic units to a major-unit decimal with exactly
// AtomicExp places.
func FromAtomic(amount uint64) decimal.Decimal {
	return decimal.NewFromUint64(amount).Shift(-AtomicExp).Truncate(AtomicExp)
}

// FormatAtomic renders amount with all AtomicExp places.
func FormatAtomic(amount uint64) string {
	return FromAtomic(amount).StringFixed(AtomicExp)
}
