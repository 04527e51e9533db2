// Package auth tracks signed-in users. Identity is verified by the upstream
// provider before SignIn is called; this package only maps opaque bearer
// tokens to users and notifies subscribers of sign-in and sign-out.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chicommute/internal/metrics"
)

var (
	ErrNoSession   = errors.New("no active session")
	ErrInvalidUser = errors.New("invalid user")
)

type User struct {
	ID          string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
}

type EventKind int

const (
	SignedIn EventKind = iota + 1
	SignedOut
)

func (k EventKind) String() string {
	switch k {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	}
	return "unknown"
}

type Event struct {
	Kind EventKind
	User User
}

// TokenStore maps tokens to users. Get and Delete return ErrNoSession for
// unknown or expired tokens.
type TokenStore interface {
	Put(ctx context.Context, token string, u User, ttl time.Duration) error
	Get(ctx context.Context, token string) (User, error)
	Delete(ctx context.Context, token string) (User, error)
}

type Sessions struct {
	store   TokenStore
	ttl     time.Duration
	metrics *metrics.Collector

	mu     sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

func NewSessions(store TokenStore, ttl time.Duration, m *metrics.Collector) *Sessions {
	return &Sessions{store: store, ttl: ttl, metrics: m, subs: map[int]func(Event){}}
}

// SignIn opens a session for u and returns its bearer token.
func (s *Sessions) SignIn(ctx context.Context, u User) (string, error) {
	u.ID = strings.TrimSpace(u.ID)
	u.DisplayName = strings.TrimSpace(u.DisplayName)
	if u.ID == "" {
		return "", fmt.Errorf("%w: missing user id", ErrInvalidUser)
	}
	token := uuid.NewString()
	if err := s.store.Put(ctx, token, u, s.ttl); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
	}
	s.emit(Event{Kind: SignedIn, User: u})
	return token, nil
}

func (s *Sessions) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return ErrNoSession
	}
	u, err := s.store.Delete(ctx, token)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Dec()
	}
	s.emit(Event{Kind: SignedOut, User: u})
	return nil
}

func (s *Sessions) Current(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrNoSession
	}
	return s.store.Get(ctx, token)
}

// Subscribe registers fn for future events. Callbacks run synchronously on
// the signing goroutine. The returned func removes the subscription.
func (s *Sessions) Subscribe(fn func(Event)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Sessions) emit(ev Event) {
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	// subscription order
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
