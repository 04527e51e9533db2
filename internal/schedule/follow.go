package schedule

import (
	"context"
	"time"

	"chicommute/internal/auth"
)

const signInLoadTimeout = 10 * time.Second

// Follow loads a user's list when they sign in and drops it when they sign
// out. A failed load is kept on the user's entry and reported by the next
// List, Upsert or Delete.
func (b *Book) Follow(s *auth.Sessions) (cancel func()) {
	return s.Subscribe(func(ev auth.Event) {
		switch ev.Kind {
		case auth.SignedIn:
			ctx, cancel := context.WithTimeout(context.Background(), signInLoadTimeout)
			defer cancel()
			_ = b.Load(ctx, ev.User.ID)
		case auth.SignedOut:
			b.Clear(ev.User.ID)
		}
	})
}
