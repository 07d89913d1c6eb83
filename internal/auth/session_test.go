package auth

import (
	"testing"
	"time"

	"storefront/internal/clock"
	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Now())
	m, err := NewManager(DefaultIdentities(), "password", NewTokenIssuer("test-secret", time.Hour, clk))
	require.NoError(t, err)
	return m, clk
}

func TestLogin(t *testing.T) {
	m, _ := newTestManager(t)

	assert.False(t, m.Login("admin@example.com", "wrong"))
	assert.False(t, m.Login("nobody@example.com", "password"))
	_, ok := m.Current()
	assert.False(t, ok)

	assert.True(t, m.Login(" John@Store1.com ", "password"))
	s, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, models.RoleStoreMember, s.Role)
	assert.Equal(t, "1", s.StoreID)
	assert.Equal(t, "Downtown Store", s.StoreName)
}

func TestLogoutEndsSession(t *testing.T) {
	m, _ := newTestManager(t)
	require.True(t, m.Login("admin@example.com", "password"))

	m.Logout()

	_, ok := m.Current()
	assert.False(t, ok)
	assert.False(t, m.Allow(models.RoleAdmin))
}

func TestAllowRequiresExactRole(t *testing.T) {
	m, _ := newTestManager(t)
	assert.False(t, m.Allow(models.RoleAdmin))
	assert.False(t, m.Allow(models.RoleStoreMember))

	require.True(t, m.Login("sarah@store2.com", "password"))
	assert.True(t, m.Allow(models.RoleStoreMember))
	assert.False(t, m.Allow(models.RoleAdmin))
}

func TestAuthorize(t *testing.T) {
	m, clk := newTestManager(t)

	_, err := m.IssueToken()
	assert.ErrorIs(t, err, ErrNoSession)

	require.True(t, m.Login("john@store1.com", "password"))
	token, err := m.IssueToken()
	require.NoError(t, err)

	s, err := m.Authorize(token, models.RoleStoreMember)
	require.NoError(t, err)
	assert.Equal(t, "2", s.UserID)

	_, err = m.Authorize(token, models.RoleAdmin)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = m.Authorize("garbage", models.RoleStoreMember)
	assert.Error(t, err)

	// A new login invalidates tokens from the previous session.
	require.True(t, m.Login("john@store1.com", "password"))
	_, err = m.Authorize(token, models.RoleStoreMember)
	assert.ErrorIs(t, err, ErrSessionEnded)

	fresh, err := m.IssueToken()
	require.NoError(t, err)
	clk.Advance(2 * time.Hour)
	_, err = m.Authorize(fresh, models.RoleStoreMember)
	assert.Error(t, err, "expired token")

	m.Logout()
	_, err = m.Authorize(fresh, "")
	assert.Error(t, err)
}

func TestAuthorizeAfterLogout(t *testing.T) {
	m, _ := newTestManager(t)
	require.True(t, m.Login("admin@example.com", "password"))
	token, err := m.IssueToken()
	require.NoError(t, err)

	m.Logout()

	_, err = m.Authorize(token, models.RoleAdmin)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestUpdatePassword(t *testing.T) {
	m, _ := newTestManager(t)
	assert.ErrorIs(t, m.UpdatePassword("secret1", "secret1"), ErrNoSession)

	require.True(t, m.Login("john@store1.com", "password"))

	err := m.UpdatePassword("secret1", "secret2")
	assert.ErrorIs(t, err, ErrPasswordMismatch)
	assert.ErrorIs(t, err, models.ErrValidation)

	assert.ErrorIs(t, m.UpdatePassword("abc", "abc"), ErrPasswordTooShort)
	assert.NoError(t, m.UpdatePassword("secret1", "secret1"))

	// The stub does not change the accepted credential.
	assert.True(t, m.Login("john@store1.com", "password"))
	assert.False(t, m.Login("john@store1.com", "secret1"))
}
