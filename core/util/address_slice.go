package util

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// AddressesToStrings converts a slice of addresses to their checksummed hex representation.
func AddressesToStrings(addrs []common.Address) []string {
	strs := make([]string, len(addrs))
	for i, a := range addrs {
		strs[i] = a.Hex()
	}
	return strs
}

// ParseAddress parses a 0x-prefixed hex address, rejecting malformed or zero input.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.Errorf("invalid address %q", s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, errors.New("zero address is not allowed")
	}
	return addr, nil
}

// ShortAddress renders 0x1234…abcd for display.
func ShortAddress(a common.Address) string {
	h := a.Hex()
	return h[:6] + "…" + h[len(h)-4:]
}
