package util

import (
	"math/big"
	"regexp"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/pkg/errors"
)

const (
	// ValueScale is used for native value payloads (the deposit msg.value).
	ValueScale int32 = 18
	// StorageScale is used for ledger balances, stakes and withdraw amounts.
	StorageScale int32 = 8
)

// plain non-negative decimals only: no sign, no exponent, no separators
var decimalPattern = regexp.MustCompile(`^([0-9]+(\.[0-9]*)?|\.[0-9]+)$`)

// ToMinorUnits converts a human decimal string to an integer at the given scale.
// Inputs with more significant fractional digits than scale are rejected
// rather than truncated.
func ToMinorUnits(amount string, scale int32) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	if !decimalPattern.MatchString(s) {
		return nil, errors.Wrapf(types.ErrInvalidAmount, "%q is not a non-negative decimal", amount)
	}

	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	s = strings.TrimSuffix(s, ".")

	d, _, err := apd.NewFromString(s)
	if err != nil {
		return nil, errors.Wrapf(types.ErrInvalidAmount, "%q: %v", amount, err)
	}
	if d.IsZero() {
		return new(big.Int), nil
	}

	d.Reduce(d)
	d.Exponent += scale
	if d.Exponent < 0 {
		return nil, errors.Wrapf(types.ErrInvalidAmount, "%q has more than %d fractional digits", amount, scale)
	}

	out := d.Coeff.MathBigInt()
	if d.Exponent > 0 {
		out.Mul(out, pow10(d.Exponent))
	}
	return out, nil
}

// ToDecimalString renders an integer at the given scale as a normalized decimal:
// no leading zeros, no trailing fractional zeros, no trailing dot.
func ToDecimalString(v *big.Int, scale int32) string {
	if v == nil {
		return "0"
	}
	d := apd.NewWithBigInt(new(apd.BigInt).SetMathBigInt(v), -scale)
	d.Reduce(d)
	return d.Text('f')
}

// Normalize returns the canonical form of a decimal amount at scale.
func Normalize(amount string, scale int32) (string, error) {
	v, err := ToMinorUnits(amount, scale)
	if err != nil {
		return "", err
	}
	return ToDecimalString(v, scale), nil
}

// Rescale moves an integer between scales, truncating toward zero when narrowing.
func Rescale(v *big.Int, from, to int32) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	out := new(big.Int).Set(v)
	switch {
	case to > from:
		out.Mul(out, pow10(to-from))
	case to < from:
		out.Quo(out, pow10(from-to))
	}
	return out
}

// PositiveMinorUnits is ToMinorUnits that also rejects zero.
func PositiveMinorUnits(amount string, scale int32) (*big.Int, error) {
	v, err := ToMinorUnits(amount, scale)
	if err != nil {
		return nil, err
	}
	if v.Sign() == 0 {
		return nil, errors.Wrap(types.ErrInvalidAmount, "amount must be greater than zero")
	}
	return v, nil
}

func pow10(n int32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
