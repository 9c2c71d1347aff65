package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/visitor-management/internal/domain"
	"github.com/diagnosis/visitor-management/internal/kiosk"
	"github.com/diagnosis/visitor-management/internal/query"
	"github.com/diagnosis/visitor-management/internal/service"
	"github.com/diagnosis/visitor-management/internal/session"
	"github.com/diagnosis/visitor-management/pkg/config"
)

// ---------- Mocks ----------
// Each mock embeds its interface; calling a method the test did not
// override panics, which keeps the tests honest about what they exercise.

var sessions = map[string]*session.Session{
	"admin-token": {ID: "s-admin", User: domain.UserInfo{ID: "admin", Name: "Ada", Role: domain.RoleAdmin}},
	"host-token":  {ID: "s-host", User: domain.UserInfo{ID: "host-1", Name: "Hank", Role: domain.RoleHost}},
	"guard-token": {ID: "s-guard", User: domain.UserInfo{ID: "guard", Name: "Sam", Role: domain.RoleSecurity}},
}

type mockAuth struct {
	service.AuthService
	loginIP string
}

func (m *mockAuth) Resume(_ context.Context, token string) (*session.Session, error) {
	if s, ok := sessions[token]; ok {
		return s, nil
	}
	return nil, domain.ErrUnauthenticated
}

func (m *mockAuth) Login(_ context.Context, req *domain.LoginRequest, clientIP string) (*domain.LoginResponse, error) {
	m.loginIP = clientIP
	if req.Email != "hank@vms.local" || req.Password != "hunter22" {
		return nil, domain.ErrInvalidCredentials
	}
	return &domain.LoginResponse{AccessToken: "host-token", ExpiresIn: 3600, User: &sessions["host-token"].User}, nil
}

func (m *mockAuth) Logout(context.Context, *session.Session) error { return nil }

type mockVisits struct {
	service.VisitService
	lastQuery query.Query
	lastEvent domain.VisitEvent
}

func (m *mockVisits) List(_ context.Context, _ *session.Session, q query.Query) (*service.VisitPage, error) {
	m.lastQuery = q
	return &service.VisitPage{Items: []domain.VisitDTO{}, Page: 1, PageSize: 10}, nil
}

func (m *mockVisits) Export(_ context.Context, _ *session.Session, _ query.Query, w io.Writer) error {
	_, err := io.WriteString(w, "id,visitor\nv1,Vera\n")
	return err
}

func (m *mockVisits) Transition(_ context.Context, sess *session.Session, id string, event domain.VisitEvent) (*domain.VisitDTO, error) {
	m.lastEvent = event
	if sess.Role() == domain.RoleSecurity {
		return nil, domain.ErrForbidden
	}
	if id == "done" {
		return nil, &domain.TransitionError{From: "checked_out", Event: string(event)}
	}
	return &domain.VisitDTO{ID: id, Status: domain.VisitCheckedIn}, nil
}

func (m *mockVisits) PreRegister(_ context.Context, _ *session.Session, req *domain.PreRegisterRequest) (*domain.PreRegisterResponse, error) {
	if req.LocationID == "" {
		return nil, domain.NewValidationError("location_id", "is required")
	}
	return &domain.PreRegisterResponse{Visit: domain.VisitDTO{ID: "v-new"}, CheckInToken: "tok", AccessCode: "123456"}, nil
}

type mockUsers struct {
	service.UserService
}

func (mockUsers) ListUsers(context.Context, *session.Session) ([]domain.UserInfo, error) {
	return []domain.UserInfo{{ID: "admin"}}, nil
}

type mockKiosk struct {
	service.KioskService
	fired []kiosk.Event
}

func (m *mockKiosk) Start(context.Context) (*service.KioskStart, error) {
	return &service.KioskStart{Flow: kiosk.NewFlow("f1", time.Now()), Token: "kiosk-f1", ExpiresIn: 900}, nil
}

func (m *mockKiosk) Authorize(token, flowID string) error {
	if token == "kiosk-"+flowID {
		return nil
	}
	return domain.ErrForbidden
}

func (m *mockKiosk) Fire(_ context.Context, flowID string, event kiosk.Event) (*kiosk.Flow, error) {
	m.fired = append(m.fired, event)
	flow, err := kiosk.Fire(kiosk.NewFlow(flowID, time.Now()), event, time.Now())
	if err != nil {
		return nil, err
	}
	return &flow, nil
}

type env struct {
	srv    *httptest.Server
	auth   *mockAuth
	visits *mockVisits
	kiosk  *mockKiosk
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{auth: &mockAuth{}, visits: &mockVisits{}, kiosk: &mockKiosk{}}
	cfg := &config.Config{Server: config.ServerConfig{Timezone: "UTC"}}
	h := New(e.auth, mockUsers{}, nil, e.visits, e.kiosk, nil, cfg)
	e.srv = httptest.NewServer(h.Routes())
	t.Cleanup(e.srv.Close)
	return e
}

func (e *env) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rdr = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			rdr = bytes.NewReader(raw)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// ---------- Tests ----------

func TestLogin(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "hank@vms.local", "password": "hunter22"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out domain.LoginResponse
	decode(t, resp, &out)
	assert.Equal(t, "host-token", out.AccessToken)
	assert.Equal(t, "127.0.0.1", e.auth.loginIP)

	resp = e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "hank@vms.local", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var errBody map[string]string
	decode(t, resp, &errBody)
	assert.Equal(t, "INVALID_CREDENTIALS", errBody["code"])

	resp = e.do(t, http.MethodPost, "/auth/login", "", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/auth/login", "", `{"email":"a@b.co","password":"x","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMeAndLogout(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/auth/me", "host-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me struct {
		User domain.UserInfo `json:"user"`
	}
	decode(t, resp, &me)
	assert.Equal(t, "host-1", me.User.ID)

	resp = e.do(t, http.MethodPost, "/auth/logout", "host-token", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestVisits_RequireSession(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/visits", "/visits/stats", "/hosts", "/admin/users", "/auth/me"} {
		resp := e.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
	resp := e.do(t, http.MethodGet, "/visits", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestListVisits_ParsesQuery(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/visits?q=acme&status=checked_in&page=2&page_size=5&sort=visitor&order=desc&from=2025-03-01&to=2025-03-31", "admin-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	q := e.visits.lastQuery
	assert.Equal(t, "acme", q.Search)
	assert.Equal(t, "checked_in", q.Status)
	assert.Equal(t, 2, q.Page)
	assert.Equal(t, 5, q.PageSize)
	assert.Equal(t, query.SortVisitor, q.SortBy)
	assert.True(t, q.Desc)
	require.NotNil(t, q.From)
	require.NotNil(t, q.To)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), q.From.UTC())
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), q.To.UTC())

	resp = e.do(t, http.MethodGet, "/visits?status=all", "admin-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, e.visits.lastQuery.Status)
}

func TestListVisits_RejectsBadQuery(t *testing.T) {
	e := newEnv(t)
	tests := map[string]string{
		"status":   "/visits?status=arrived",
		"page":     "/visits?page=-1",
		"sort":     "/visits?sort=shoe_size",
		"order":    "/visits?order=sideways",
		"from":     "/visits?from=yesterday",
		"inverted": "/visits?from=2025-03-02&to=2025-03-01",
	}
	for name, path := range tests {
		t.Run(name, func(t *testing.T) {
			resp := e.do(t, http.MethodGet, path, "admin-token", nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestTransitions(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodPost, "/visits/v1/check-out", "host-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.EventCheckOut, e.visits.lastEvent)

	resp = e.do(t, http.MethodPost, "/visits/done/check-in", "host-token", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "INVALID_TRANSITION", body["code"])

	resp = e.do(t, http.MethodPost, "/visits/v1/cancel", "guard-token", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPreRegister(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodPost, "/visits", "host-token", map[string]interface{}{
		"visitor":      map[string]string{"name": "Vera", "email": "vera@example.com", "purpose": "Demo"},
		"location_id":  "loc-hq",
		"scheduled_at": "2025-03-10T10:00:00Z",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out domain.PreRegisterResponse
	decode(t, resp, &out)
	assert.Equal(t, "123456", out.AccessCode)

	resp = e.do(t, http.MethodPost, "/visits", "host-token", map[string]interface{}{"visitor": map[string]string{"name": "Vera"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "location_id", body["field"])
}

func TestExportVisits(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/visits/export?status=expected", "guard-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "visitor-log-")

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "id,visitor\nv1,Vera\n", string(raw))
}

func TestAdminRoutes_AdminOnly(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/admin/users", "host-token", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/admin/users", "admin-token", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/host/visits", "guard-token", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestKioskFlow(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodPost, "/kiosk/flows", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var start service.KioskStart
	decode(t, resp, &start)
	assert.Equal(t, kiosk.StateWelcome, start.Flow.State)

	resp = e.do(t, http.MethodPost, "/kiosk/flows/f1/events", "", map[string]string{"event": "scan_qr"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/kiosk/flows/f2/events", start.Token, map[string]string{"event": "scan_qr"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/kiosk/flows/f1/events", start.Token, map[string]string{"event": "scan_qr"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var flow kiosk.Flow
	decode(t, resp, &flow)
	assert.Equal(t, kiosk.StateQRScan, flow.State)

	resp = e.do(t, http.MethodPost, "/kiosk/flows/f1/events", start.Token, map[string]string{"event": "finish"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/kiosk/flows/f1/events", start.Token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, []kiosk.Event{kiosk.EventScanQR, kiosk.EventFinish}, e.kiosk.fired)
}
