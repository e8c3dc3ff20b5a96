package util

import "math/big"

// FormatAmount renders v at scale, or placeholder when the value has not been read yet.
//
// Example:
//
//	fmt.Println(util.FormatAmount(snapshot.Balance, util.StorageScale, "-"))
func FormatAmount(v *big.Int, scale int32, placeholder string) string {
	if v == nil {
		return placeholder
	}
	return ToDecimalString(v, scale)
}

// CloneBig returns an independent copy of v, nil for nil.
func CloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
