package service

import (
	"context"

	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/visitor-management/internal/domain"
	"github.com/diagnosis/visitor-management/internal/session"
)

const testPassword = "hunter22"

type fixture struct {
	users     *mockUserRepo
	locations *mockLocationRepo
	visits    *mockVisitRepo
	limits    *mockRateLimitRepo
	mail      *captureMailer
	bus       *capturePublisher
	metrics   *countingRecorder
	svc       *visitService
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hash, err := argon2id.CreateHash(testPassword, argon2id.DefaultParams)
	require.NoError(t, err)

	f := &fixture{
		users: newMockUserRepo(
			&domain.User{ID: "admin", Name: "Ada Admin", Email: "admin@vms.local", Role: domain.RoleAdmin, PasswordHash: hash},
			&domain.User{ID: "host-1", Name: "Hank Host", Email: "hank@vms.local", Role: domain.RoleHost, PasswordHash: hash, NotificationsEnabled: true},
			&domain.User{ID: "host-2", Name: "Holly Host", Email: "holly@vms.local", Role: domain.RoleHost, PasswordHash: hash},
			&domain.User{ID: "guard", Name: "Sam Security", Email: "sam@vms.local", Role: domain.RoleSecurity, PasswordHash: hash},
		),
		locations: newMockLocationRepo(
			&domain.Location{ID: "loc-hq", Name: "HQ", Capacity: 50, Active: true},
			&domain.Location{ID: "loc-old", Name: "Old Annex", Capacity: 5, Active: false},
		),
		limits:  newMockRateLimitRepo(),
		mail:    &captureMailer{},
		bus:     &capturePublisher{},
		metrics: newCountingRecorder(),
		now:     time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	f.visits = newMockVisitRepo(f.users, f.locations)

	svc := NewVisitService(f.visits, mockVisitorRepo{f.visits}, f.users, f.locations, f.limits, f.mail, f.bus, f.metrics, testConfig())
	f.svc = svc.(*visitService)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) session(t *testing.T, userID string) *session.Session {
	t.Helper()
	u, err := f.users.FindByID(context.Background(), userID)
	require.NoError(t, err)
	return &session.Session{ID: "sess-" + userID, User: *u.ToUserInfo()}
}

func visitorRequest(hostID string) domain.VisitorRequest {
	return domain.VisitorRequest{
		Name:    "Vera Visitor",
		Email:   "Vera@Example.com",
		Phone:   "+1 555 0100",
		Company: "Acme",
		Purpose: "Quarterly review",
		HostID:  hostID,
	}
}

func (f *fixture) preRegister(t *testing.T, hostID string, at time.Time) *domain.PreRegisterResponse {
	t.Helper()
	resp, err := f.svc.PreRegister(context.Background(), f.session(t, hostID), &domain.PreRegisterRequest{
		Visitor:     visitorRequest(hostID),
		LocationID:  "loc-hq",
		ScheduledAt: at,
	})
	require.NoError(t, err)
	return resp
}
