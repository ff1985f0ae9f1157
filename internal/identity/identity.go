// Package identity tracks whether the caller is an anonymous session or an
// authenticated account, and reports the anonymous → authenticated edge once.
package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Kind int

const (
	Anonymous Kind = iota
	Authenticated
)

func (k Kind) String() string {
	if k == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

// Identity is either an anonymous session or an authenticated account. An
// authenticated identity keeps the session token it was upgraded from so the
// backend can locate the anonymous data to merge.
type Identity struct {
	Kind         Kind   `json:"kind"`
	SessionToken string `json:"sessionToken"`
	UserID       string `json:"userId,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
}

func (i Identity) IsAuthenticated() bool {
	return i.Kind == Authenticated
}

// Account is the account data whose appearance marks a login.
type Account struct {
	UserID      string
	AccessToken string
}

// Transition is one anonymous → authenticated edge. ID is unique per edge, so a
// logout followed by a new login yields a different transition.
type Transition struct {
	ID           string
	SessionToken string
	UserID       string
	At           time.Time
}

var (
	ErrEmptyUserID          = errors.New("user id must not be empty")
	ErrAlreadyAuthenticated = errors.New("already authenticated as another user")
)

type subscriber[F any] struct {
	id int
	fn F
}

type Boundary struct {
	mu      sync.Mutex
	current Identity
	nextSub int
	logins  []subscriber[func(context.Context, Transition)]
	logouts []subscriber[func(Identity)]

	newToken func() string
	now      func() time.Time
}

type Option func(*Boundary)

// WithIdentity starts the boundary from a previously persisted identity instead
// of a fresh anonymous session.
func WithIdentity(id Identity) Option {
	return func(b *Boundary) {
		if id.SessionToken != "" {
			b.current = id
		}
	}
}

func WithTokenGenerator(fn func() string) Option {
	return func(b *Boundary) {
		b.newToken = fn
	}
}

func NewBoundary(opts ...Option) *Boundary {
	b := &Boundary{
		newToken: uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.current.SessionToken == "" {
		b.current = b.freshAnonymous()
	}
	return b
}

func (b *Boundary) Current() Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Login upgrades the current anonymous identity. It reports true exactly when
// this call produced the edge; logging in again as the same user only refreshes
// the access token. ctx is handed to the login subscribers.
func (b *Boundary) Login(ctx context.Context, userID, accessToken string) (Transition, bool, error) {
	if userID == "" {
		return Transition{}, false, ErrEmptyUserID
	}

	b.mu.Lock()
	if b.current.IsAuthenticated() {
		defer b.mu.Unlock()
		if b.current.UserID != userID {
			return Transition{}, false, ErrAlreadyAuthenticated
		}
		b.current.AccessToken = accessToken
		return Transition{}, false, nil
	}

	tr := Transition{
		ID:           uuid.NewString(),
		SessionToken: b.current.SessionToken,
		UserID:       userID,
		At:           b.now(),
	}
	b.current = Identity{
		Kind:         Authenticated,
		SessionToken: b.current.SessionToken,
		UserID:       userID,
		AccessToken:  accessToken,
	}
	subs := append([]subscriber[func(context.Context, Transition)](nil), b.logins...)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(ctx, tr)
	}
	return tr, true, nil
}

// Logout installs a fresh anonymous identity, never the one that preceded the
// login, and notifies logout subscribers with it.
func (b *Boundary) Logout() Identity {
	b.mu.Lock()
	b.current = b.freshAnonymous()
	fresh := b.current
	subs := append([]subscriber[func(Identity)](nil), b.logouts...)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(fresh)
	}
	return fresh
}

// ObserveAccount feeds the latest account data (nil when absent) and fires the
// matching edge: absent → present logs in, present → absent logs out. Repeated
// observations of the same state are no-ops.
func (b *Boundary) ObserveAccount(ctx context.Context, acc *Account) (Transition, bool, error) {
	current := b.Current()
	switch {
	case acc != nil && !current.IsAuthenticated():
		return b.Login(ctx, acc.UserID, acc.AccessToken)
	case acc != nil && current.UserID == acc.UserID:
		return b.Login(ctx, acc.UserID, acc.AccessToken)
	case acc != nil:
		return Transition{}, false, ErrAlreadyAuthenticated
	case current.IsAuthenticated():
		b.Logout()
	}
	return Transition{}, false, nil
}

// OnLogin registers fn for every future transition. Handlers run synchronously on
// the goroutine that caused the edge and receive the context passed to Login.
func (b *Boundary) OnLogin(fn func(context.Context, Transition)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSub++
	id := b.nextSub
	b.logins = append(b.logins, subscriber[func(context.Context, Transition)]{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.logins = removeSubscriber(b.logins, id)
	}
}

func (b *Boundary) OnLogout(fn func(Identity)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSub++
	id := b.nextSub
	b.logouts = append(b.logouts, subscriber[func(Identity)]{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.logouts = removeSubscriber(b.logouts, id)
	}
}

func (b *Boundary) freshAnonymous() Identity {
	return Identity{Kind: Anonymous, SessionToken: b.newToken()}
}

func removeSubscriber[F any](subs []subscriber[F], id int) []subscriber[F] {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
