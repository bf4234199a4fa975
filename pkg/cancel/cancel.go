// Package cancel tracks which in-flight request is current. Starting a new
// request or cancelling explicitly invalidates the previous one, and any
// result it later produces is dropped by its owner.
package cancel

import (
	"context"
	"sync"
)

// Token identifies one request. The zero Token is never live.
type Token struct {
	id  uint64
	ctx context.Context
}

// ID returns the token's generation number.
func (t Token) ID() uint64 {
	return t.id
}

// Context returns the context bound to the token. It is done once the token
// has been superseded or cancelled.
func (t Token) Context() context.Context {
	if t.ctx == nil {
		return context.Background()
	}
	return t.ctx
}

// Source hands out tokens. At most one token is live at a time.
type Source struct {
	mu     sync.Mutex
	next   uint64
	live   uint64
	cancel context.CancelFunc
}

// NewToken cancels the current token, if any, and returns a fresh live one
// derived from parent.
func (s *Source) NewToken(parent context.Context) Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.next++
	ctx, cancel := context.WithCancel(parent)
	s.live = s.next
	s.cancel = cancel
	return Token{id: s.next, ctx: ctx}
}

// Cancel invalidates the live token without issuing a new one.
// Cancel with nothing live is a no-op.
func (s *Source) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidate()
}

// Finish releases tok and reports whether it was still live. A caller that
// gets false must discard whatever tok produced.
func (s *Source) Finish(tok Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.id == 0 || tok.id != s.live {
		return false
	}
	s.invalidate()
	return true
}

func (s *Source) invalidate() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.live = 0
}
