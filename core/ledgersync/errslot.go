package ledgersync

import "sync"

// ErrorSlot holds the most recent error of a subsystem until dismissed.
type ErrorSlot struct {
	mu  sync.RWMutex
	err error
}

func (s *ErrorSlot) Set(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *ErrorSlot) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *ErrorSlot) Dismiss() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}
