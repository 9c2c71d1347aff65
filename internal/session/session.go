// Package session holds the authenticated caller. A Session is passed
// explicitly to every service operation that needs authorization.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/diagnosis/visitor-management/internal/domain"
)

type Session struct {
	ID        string          `json:"id"`
	User      domain.UserInfo `json:"user"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

func (s *Session) UserID() string    { return s.User.ID }
func (s *Session) Role() domain.Role { return s.User.Role }
func (s *Session) IsAdmin() bool     { return s.User.Role == domain.RoleAdmin }

// CanViewAllVisits is true for admins and security staff.
func (s *Session) CanViewAllVisits() bool {
	return s.User.Role == domain.RoleAdmin || s.User.Role == domain.RoleSecurity
}

// CanViewVisit reports read access to a visit hosted by hostID.
func (s *Session) CanViewVisit(hostID string) bool {
	return s.CanViewAllVisits() || (s.User.Role == domain.RoleHost && s.User.ID == hostID)
}

// CanManageVisit reports whether lifecycle actions on a visit hosted by
// hostID are allowed. Security is read-only.
func (s *Session) CanManageVisit(hostID string) bool {
	switch s.User.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleHost:
		return s.User.ID == hostID
	default:
		return false
	}
}

// CanPreRegisterFor uses the same rule as CanManageVisit: hosts only for themselves.
func (s *Session) CanPreRegisterFor(hostID string) bool {
	return s.CanManageVisit(hostID)
}

func (s *Session) CanManageUsers() bool     { return s.IsAdmin() }
func (s *Session) CanManageLocations() bool { return s.IsAdmin() }

const keyPrefix = "session:"

// Manager persists sessions in a Store under a durable key.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(store Store, ttl time.Duration) *Manager {
	return &Manager{store: store, ttl: ttl, now: time.Now}
}

func (m *Manager) TTL() time.Duration { return m.ttl }

func (m *Manager) Create(ctx context.Context, user *domain.User) (*Session, error) {
	now := m.now().UTC()
	s := &Session{
		ID:        uuid.NewString(),
		User:      *user.ToUserInfo(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Resume loads a session. Unknown, expired or corrupt keys are unauthenticated.
func (m *Manager) Resume(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, domain.ErrUnauthenticated
	}
	raw, err := m.store.Get(ctx, keyPrefix+id)
	if errors.Is(err, ErrMissing) {
		return nil, domain.ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("%w: session store: %v", domain.ErrUnavailable, err)
	}

	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, domain.ErrUnauthenticated
	}
	if !m.now().Before(s.ExpiresAt) {
		_ = m.store.Remove(ctx, keyPrefix+id)
		return nil, domain.ErrUnauthenticated
	}
	return &s, nil
}

// Refresh rewrites the stored user snapshot after a profile change, keeping
// the original expiry.
func (m *Manager) Refresh(ctx context.Context, s *Session, user *domain.User) (*Session, error) {
	updated := *s
	updated.User = *user.ToUserInfo()
	if err := m.save(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (m *Manager) Destroy(ctx context.Context, id string) error {
	if err := m.store.Remove(ctx, keyPrefix+id); err != nil {
		return fmt.Errorf("%w: session store: %v", domain.ErrUnavailable, err)
	}
	return nil
}

func (m *Manager) save(ctx context.Context, s *Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := s.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		return domain.ErrUnauthenticated
	}
	if err := m.store.Set(ctx, keyPrefix+s.ID, string(payload), ttl); err != nil {
		return fmt.Errorf("%w: session store: %v", domain.ErrUnavailable, err)
	}
	return nil
}

type ctxKey struct{}

// NewContext attaches s to ctx for handlers downstream of the auth middleware.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}
