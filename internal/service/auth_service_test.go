package service

import (
	"context"

	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/visitor-management/internal/domain"
	"github.com/diagnosis/visitor-management/internal/session"
	"github.com/diagnosis/visitor-management/pkg/auth"
)

func newAuthFixture(t *testing.T) (*fixture, AuthService, *session.Manager) {
	t.Helper()
	f := newFixture(t)
	cfg := testConfig()
	sessions := session.NewManager(session.NewMemoryStore(), cfg.Auth.SessionTTL)
	return f, NewAuthService(f.users, f.limits, sessions, f.metrics, cfg), sessions
}

func TestLogin_Success(t *testing.T) {
	f, svc, _ := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "  Hank@VMS.local ", Password: testPassword}, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "host-1", resp.User.ID)
	assert.Equal(t, int64(3600), resp.ExpiresIn)

	claims, err := auth.Parse(resp.AccessToken, testConfig().Auth.JWTSecret)
	require.NoError(t, err)
	assert.Equal(t, "host-1", claims.Sub)
	assert.NotEmpty(t, claims.SessionID)

	sess, err := svc.Resume(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleHost, sess.Role())
	assert.Equal(t, 1, f.metrics.logins["success"])
}

func TestLogin_InvalidCredentials(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "hank@vms.local", "not-the-password"},
		{"unknown email", "nobody@vms.local", testPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, svc, _ := newAuthFixture(t)
			_, err := svc.Login(context.Background(), &domain.LoginRequest{Email: tt.email, Password: tt.password}, "10.0.0.1")
			assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
		})
	}
}

func TestLogin_ValidationBeforeLookup(t *testing.T) {
	_, svc, _ := newAuthFixture(t)
	_, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "   ", Password: testPassword}, "10.0.0.1")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestLogin_RateLimited(t *testing.T) {
	f, svc, _ := newAuthFixture(t)
	req := func() error {
		_, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "hank@vms.local", Password: "wrong-one"}, "10.0.0.9")
		return err
	}

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, req(), domain.ErrInvalidCredentials)
	}
	assert.ErrorIs(t, req(), domain.ErrRateLimited)
	assert.Equal(t, 1, f.metrics.logins["rate_limited"])
}

func TestResume_RejectsBadTokens(t *testing.T) {
	_, svc, _ := newAuthFixture(t)
	cfg := testConfig()

	_, err := svc.Resume(context.Background(), "garbage")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	kioskToken, err := auth.NewKioskToken("flow-1", cfg.Auth.JWTSecret, cfg.Kiosk.FlowTTL)
	require.NoError(t, err)
	_, err = svc.Resume(context.Background(), kioskToken)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	// Well-signed but the session was never stored.
	orphan, err := auth.NewSessionToken("host-1", "hank@vms.local", "host", "missing", cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	require.NoError(t, err)
	_, err = svc.Resume(context.Background(), orphan)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestResume_FollowsAdminChanges(t *testing.T) {
	f, svc, _ := newAuthFixture(t)
	users := NewUserService(f.users)
	admin := f.session(t, "admin")

	resp, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "hank@vms.local", Password: testPassword}, "10.0.0.1")
	require.NoError(t, err)

	role := string(domain.RoleSecurity)
	_, err = users.UpdateUser(context.Background(), admin, "host-1", &domain.UpdateUserRequest{Role: &role})
	require.NoError(t, err)

	sess, err := svc.Resume(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSecurity, sess.Role())
	assert.False(t, sess.CanManageVisit("host-1"))

	require.NoError(t, users.DeleteUser(context.Background(), admin, "host-1"))
	_, err = svc.Resume(context.Background(), resp.AccessToken)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestLogout_InvalidatesToken(t *testing.T) {
	_, svc, _ := newAuthFixture(t)
	resp, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "hank@vms.local", Password: testPassword}, "10.0.0.1")
	require.NoError(t, err)

	sess, err := svc.Resume(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	require.NoError(t, svc.Logout(context.Background(), sess))

	_, err = svc.Resume(context.Background(), resp.AccessToken)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestUpdateProfile_RefreshesSession(t *testing.T) {
	_, svc, _ := newAuthFixture(t)
	resp, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "hank@vms.local", Password: testPassword}, "10.0.0.1")
	require.NoError(t, err)
	sess, err := svc.Resume(context.Background(), resp.AccessToken)
	require.NoError(t, err)

	name := "Henry Host"
	info, err := svc.UpdateProfile(context.Background(), sess, &domain.ProfileUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Henry Host", info.Name)

	sess, err = svc.Resume(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "Henry Host", sess.User.Name)
}

func TestChangePassword(t *testing.T) {
	_, svc, _ := newAuthFixture(t)
	resp, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "hank@vms.local", Password: testPassword}, "10.0.0.1")
	require.NoError(t, err)
	sess, err := svc.Resume(context.Background(), resp.AccessToken)
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), sess, &domain.ChangePasswordRequest{CurrentPassword: "wrong-pass", NewPassword: "brand-new", ConfirmPassword: "brand-new"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	require.NoError(t, svc.ChangePassword(context.Background(), sess, &domain.ChangePasswordRequest{CurrentPassword: testPassword, NewPassword: "brand-new", ConfirmPassword: "brand-new"}))

	_, err = svc.Login(context.Background(), &domain.LoginRequest{Email: "hank@vms.local", Password: "brand-new"}, "10.0.0.2")
	assert.NoError(t, err)
}
