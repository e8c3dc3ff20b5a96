package types

import "github.com/ethereum/go-ethereum/common"

// Session is the connected account as seen by the mirrors.
type Session struct {
	Address   common.Address
	Connected bool
}

// HasAddress reports whether an account is present.
func (s Session) HasAddress() bool {
	return s.Connected && s.Address != (common.Address{})
}

// SessionProvider exposes the current account and notifies on connect/disconnect.
type SessionProvider interface {
	CurrentAddress() (common.Address, bool)
	IsConnected() bool
	// Subscribe registers fn for change notifications. The returned func cancels it.
	Subscribe(fn func(Session)) (cancel func())
}
