package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/growsmart/internal/domain"
)

type identityOracle interface {
	Authenticate(ctx context.Context, email, password string) (domain.Identity, error)
	CreateIdentity(ctx context.Context, email, password string) (domain.Identity, error)
	SendEmailVerification(ctx context.Context, identityID string) error
	RequestPhoneChallenge(ctx context.Context, phone string) (domain.ChallengeHandle, error)
	ConfirmPhoneChallenge(ctx context.Context, handle domain.ChallengeHandle, code string) (domain.Identity, error)
	SendPasswordReset(ctx context.Context, email string) error
}

// Listener is called after the current identity changes. ok is false after sign-out.
type Listener func(id domain.Identity, ok bool)

// Store holds the current identity of one app session and forwards
// credential operations to the identity oracle. Successful sign-ins and
// sign-outs update the current identity and notify listeners in
// subscription order.
type Store struct {
	oracle  identityOracle
	timeout time.Duration

	mu        sync.RWMutex
	current   *domain.Identity
	listeners map[int]Listener
	order     []int
	nextID    int
}

func NewStore(oracle identityOracle, timeout time.Duration) *Store {
	return &Store{
		oracle:    oracle,
		timeout:   timeout,
		listeners: make(map[int]Listener),
	}
}

// Current returns the signed-in identity, if any.
func (s *Store) Current() (domain.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return domain.Identity{}, false
	}
	return *s.current, true
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (s *Store) Authenticate(ctx context.Context, email, password string) (domain.Identity, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	id, err := s.oracle.Authenticate(ctx, email, password)
	if err != nil {
		return domain.Identity{}, timedOut(ctx, "authenticate", err)
	}
	s.set(&id)
	return id, nil
}

func (s *Store) CreateIdentity(ctx context.Context, email, password string) (domain.Identity, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	id, err := s.oracle.CreateIdentity(ctx, email, password)
	if err != nil {
		return domain.Identity{}, timedOut(ctx, "create identity", err)
	}
	s.set(&id)
	return id, nil
}

// SendEmailVerification mails a verification message for the current identity.
func (s *Store) SendEmailVerification(ctx context.Context) error {
	id, ok := s.Current()
	if !ok {
		return fmt.Errorf("send email verification: %w", domain.ErrSignedOut)
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.oracle.SendEmailVerification(ctx, id.ID); err != nil {
		return timedOut(ctx, "send email verification", err)
	}
	return nil
}

// RequestPhoneChallenge does not change the current identity.
func (s *Store) RequestPhoneChallenge(ctx context.Context, phone string) (domain.ChallengeHandle, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	h, err := s.oracle.RequestPhoneChallenge(ctx, phone)
	if err != nil {
		return "", timedOut(ctx, "request phone challenge", err)
	}
	return h, nil
}

func (s *Store) ConfirmPhoneChallenge(ctx context.Context, handle domain.ChallengeHandle, code string) (domain.Identity, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	id, err := s.oracle.ConfirmPhoneChallenge(ctx, handle, code)
	if err != nil {
		return domain.Identity{}, timedOut(ctx, "confirm phone challenge", err)
	}
	s.set(&id)
	return id, nil
}

func (s *Store) SendPasswordReset(ctx context.Context, email string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.oracle.SendPasswordReset(ctx, email); err != nil {
		return timedOut(ctx, "send password reset", err)
	}
	return nil
}

// SignOut clears the current identity. It is a no-op when already signed out.
func (s *Store) SignOut() {
	s.set(nil)
}

func (s *Store) set(id *domain.Identity) {
	s.mu.Lock()
	if s.current == nil && id == nil {
		s.mu.Unlock()
		return
	}
	s.current = id
	fns := make([]Listener, 0, len(s.order))
	for _, k := range s.order {
		fns = append(fns, s.listeners[k])
	}
	s.mu.Unlock()

	var snapshot domain.Identity
	if id != nil {
		snapshot = *id
	}
	for _, fn := range fns {
		fn(snapshot, id != nil)
	}
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func timedOut(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrUnavailable) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
	}
	return err
}
