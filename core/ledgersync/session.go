package ledgersync

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/onesafebet/sdk-go/core/types"
)

// Session is an in-process SessionProvider driven by Connect and Disconnect.
type Session struct {
	mu        sync.RWMutex
	state     types.Session
	nextID    int
	listeners map[int]func(types.Session)
}

var _ types.SessionProvider = (*Session)(nil)

func NewSession() *Session {
	return &Session{listeners: make(map[int]func(types.Session))}
}

func (s *Session) CurrentAddress() (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Address, s.state.HasAddress()
}

func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Connected
}

func (s *Session) State() types.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Connect switches the session to addr and notifies subscribers if anything changed.
func (s *Session) Connect(addr common.Address) {
	s.set(types.Session{Address: addr, Connected: true})
}

func (s *Session) Disconnect() {
	s.set(types.Session{})
}

func (s *Session) Subscribe(fn func(types.Session)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) set(next types.Session) {
	s.mu.Lock()
	if s.state == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	fns := make([]func(types.Session), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
}
