// Package auth holds the single authenticated session of the process and
// gates access by role.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 6

var (
	ErrNoSession        = errors.New("no active session")
	ErrForbidden        = errors.New("role not allowed")
	ErrSessionEnded     = errors.New("session token no longer current")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

// Identity is a known login and the session it opens.
type Identity struct {
	Email   string
	Session models.Session
}

// DefaultIdentities are the demo accounts.
func DefaultIdentities() []Identity {
	return []Identity{
		{Email: "admin@example.com", Session: models.Session{
			UserID: "1", Name: "Admin User", Email: "admin@example.com", Role: models.RoleAdmin,
		}},
		{Email: "john@store1.com", Session: models.Session{
			UserID: "2", Name: "John Smith", Email: "john@store1.com", Role: models.RoleStoreMember,
			StoreID: "1", StoreName: "Downtown Store",
		}},
		{Email: "sarah@store2.com", Session: models.Session{
			UserID: "3", Name: "Sarah Johnson", Email: "sarah@store2.com", Role: models.RoleStoreMember,
			StoreID: "2", StoreName: "Mall Location",
		}},
	}
}

// Manager owns the one active session.
type Manager struct {
	mu         sync.RWMutex
	identities map[string]models.Session
	credential []byte
	current    *models.Session
	currentID  string
	tokens     *TokenIssuer
	logger     *zap.Logger
}

// NewManager accepts credential as the only valid password for every identity.
// Only its bcrypt hash is kept.
func NewManager(identities []Identity, credential string, tokens *TokenIssuer) (*Manager, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash demo credential: %w", err)
	}

	byEmail := make(map[string]models.Session, len(identities))
	for _, id := range identities {
		byEmail[normalizeEmail(id.Email)] = id.Session
	}

	return &Manager{
		identities: byEmail,
		credential: hash,
		tokens:     tokens,
		logger:     util.NamedLogger("auth"),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login opens a session when email is known and credential matches. Any
// previous session ends.
func (m *Manager) Login(email, credential string) bool {
	session, known := m.identities[normalizeEmail(email)]
	if !known || bcrypt.CompareHashAndPassword(m.credential, []byte(credential)) != nil {
		util.LoginsTotal.WithLabelValues("failure").Inc()
		m.logger.Info("Login rejected", zap.String("email", email))
		return false
	}

	m.mu.Lock()
	m.current = &session
	m.currentID = uuid.NewString()
	m.mu.Unlock()

	util.LoginsTotal.WithLabelValues("success").Inc()
	m.logger.Info("Login succeeded",
		zap.String("user_id", session.UserID),
		zap.String("role", string(session.Role)))
	return true
}

func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.logger.Info("Logout", zap.String("user_id", m.current.UserID))
	}
	m.current = nil
	m.currentID = ""
}

// Current returns a copy of the active session.
func (m *Manager) Current() (models.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return models.Session{}, false
	}
	return *m.current, true
}

// Allow reports whether the active session has exactly role.
func (m *Manager) Allow(role models.Role) bool {
	s, ok := m.Current()
	return ok && s.Role == role
}

// IssueToken signs a token bound to the active session.
func (m *Manager) IssueToken() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return "", ErrNoSession
	}
	return m.tokens.Issue(m.currentID, *m.current)
}

// Authorize checks that raw is a valid token for the active session and,
// when role is non-empty, that the session has that role.
func (m *Manager) Authorize(raw string, role models.Role) (models.Session, error) {
	claims, err := m.tokens.Verify(raw)
	if err != nil {
		return models.Session{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return models.Session{}, ErrNoSession
	}
	if claims.ID != m.currentID {
		return models.Session{}, ErrSessionEnded
	}
	if role != "" && m.current.Role != role {
		return models.Session{}, ErrForbidden
	}
	return *m.current, nil
}

// UpdatePassword validates the new password. The backing store has no
// credential write, so a valid request is accepted and logged but the
// password in use does not change. This is a known, accepted gap.
func (m *Manager) UpdatePassword(newPassword, confirm string) error {
	s, ok := m.Current()
	if !ok {
		return ErrNoSession
	}
	if newPassword != confirm {
		return fmt.Errorf("%w: %w", models.ErrValidation, ErrPasswordMismatch)
	}
	if len(newPassword) < MinPasswordLength {
		return fmt.Errorf("%w: %w", models.ErrValidation, ErrPasswordTooShort)
	}
	m.logger.Info("Password update accepted without persistence", zap.String("user_id", s.UserID))
	return nil
}
