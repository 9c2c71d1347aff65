package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/diagnosis/visitor-management/internal/domain"
	"github.com/diagnosis/visitor-management/internal/mailer"
	"github.com/diagnosis/visitor-management/internal/repository"
	"github.com/diagnosis/visitor-management/pkg/config"
)

// In-memory repositories shared by the service tests.

type mockUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
	seq   int
}

func newMockUserRepo(users ...*domain.User) *mockUserRepo {
	r := &mockUserRepo{users: map[string]*domain.User{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *mockUserRepo) Create(_ context.Context, u *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return nil, domain.ErrConflict
		}
	}
	r.seq++
	c := *u
	c.ID = fmt.Sprintf("user-%d", r.seq)
	r.users[c.ID] = &c
	out := c
	return &out, nil
}

func (r *mockUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *mockUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, domain.ErrNotFound
}

func (r *mockUserRepo) List(_ context.Context) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.User{}
	for _, u := range r.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *mockUserRepo) ListByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	all, _ := r.List(ctx)
	out := []domain.User{}
	for _, u := range all {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *mockUserRepo) Update(_ context.Context, u *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; !ok {
		return nil, domain.ErrNotFound
	}
	c := *u
	r.users[u.ID] = &c
	out := c
	return &out, nil
}

func (r *mockUserRepo) UpdatePassword(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (r *mockUserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

type mockLocationRepo struct {
	mu        sync.Mutex
	locations map[string]*domain.Location
	// referenced simulates the foreign key from visit_logs.
	referenced map[string]bool
}

func newMockLocationRepo(locs ...*domain.Location) *mockLocationRepo {
	r := &mockLocationRepo{locations: map[string]*domain.Location{}, referenced: map[string]bool{}}
	for _, l := range locs {
		r.locations[l.ID] = l
	}
	return r
}

func (r *mockLocationRepo) Create(_ context.Context, l *domain.Location) (*domain.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *l
	c.ID = fmt.Sprintf("loc-%d", len(r.locations)+1)
	r.locations[c.ID] = &c
	out := c
	return &out, nil
}

func (r *mockLocationRepo) FindByID(_ context.Context, id string) (*domain.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.locations[id]; ok {
		c := *l
		return &c, nil
	}
	return nil, domain.ErrNotFound
}

func (r *mockLocationRepo) List(_ context.Context, activeOnly bool) ([]domain.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Location{}
	for _, l := range r.locations {
		if activeOnly && !l.Active {
			continue
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *mockLocationRepo) Update(_ context.Context, l *domain.Location) (*domain.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.locations[l.ID]; !ok {
		return nil, domain.ErrNotFound
	}
	c := *l
	r.locations[l.ID] = &c
	out := c
	return &out, nil
}

func (r *mockLocationRepo) Deactivate(_ context.Context, id string) (*domain.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	l.Active = false
	out := *l
	return &out, nil
}

func (r *mockLocationRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.locations[id]; !ok {
		return domain.ErrNotFound
	}
	if r.referenced[id] {
		return fmt.Errorf("delete location: %w", domain.ErrConflict)
	}
	delete(r.locations, id)
	return nil
}

type mockVisitRepo struct {
	mu        sync.Mutex
	users     *mockUserRepo
	locations *mockLocationRepo
	visitors  map[string]*domain.Visitor
	visits    map[string]*domain.VisitLog
	order     []string
	seq       int
}

func newMockVisitRepo(users *mockUserRepo, locations *mockLocationRepo) *mockVisitRepo {
	return &mockVisitRepo{
		users:     users,
		locations: locations,
		visitors:  map[string]*domain.Visitor{},
		visits:    map[string]*domain.VisitLog{},
	}
}

func (r *mockVisitRepo) CreateWithVisitor(ctx context.Context, visitor *domain.Visitor, visit *domain.VisitLog) (*domain.VisitRecord, error) {
	r.mu.Lock()
	r.seq++
	var visitorID string
	for id, v := range r.visitors {
		if strings.EqualFold(v.Email, visitor.Email) {
			visitorID = id
		}
	}
	if visitorID == "" {
		visitorID = fmt.Sprintf("visitor-%d", r.seq)
	}
	vc := *visitor
	vc.ID = visitorID
	r.visitors[visitorID] = &vc

	lc := *visit
	lc.ID = fmt.Sprintf("visit-%d", r.seq)
	lc.VisitorID = visitorID
	lc.CreatedAt = time.Date(2025, 1, 1, 0, 0, r.seq, 0, time.UTC)
	r.visits[lc.ID] = &lc
	r.order = append(r.order, lc.ID)
	r.mu.Unlock()

	r.locations.mu.Lock()
	r.locations.referenced[lc.LocationID] = true
	r.locations.mu.Unlock()

	return r.GetRecord(ctx, lc.ID)
}

func (r *mockVisitRepo) record(ctx context.Context, v *domain.VisitLog) (*domain.VisitRecord, error) {
	host, err := r.users.FindByID(ctx, v.HostID)
	if err != nil {
		return nil, err
	}
	loc, err := r.locations.FindByID(ctx, v.LocationID)
	if err != nil {
		return nil, err
	}
	return &domain.VisitRecord{
		Visit:    *v,
		Visitor:  *r.visitors[v.VisitorID],
		Host:     *host.ToUserInfo(),
		Location: *loc,
	}, nil
}

func (r *mockVisitRepo) GetRecord(ctx context.Context, id string) (*domain.VisitRecord, error) {
	r.mu.Lock()
	v, ok := r.visits[id]
	var c domain.VisitLog
	if ok {
		c = *v
	}
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("get visit: %w", domain.ErrNotFound)
	}
	return r.record(ctx, &c)
}

func (r *mockVisitRepo) ListRecords(ctx context.Context, f repository.RecordFilter) ([]domain.VisitRecord, error) {
	r.mu.Lock()
	ids := append([]string{}, r.order...)
	r.mu.Unlock()

	out := []domain.VisitRecord{}
	for _, id := range ids {
		rec, err := r.GetRecord(ctx, id)
		if err != nil {
			return nil, err
		}
		at := rec.Visit.EffectiveTime()
		if f.HostID != "" && rec.Visit.HostID != f.HostID {
			continue
		}
		if f.From != nil && at.Before(*f.From) {
			continue
		}
		if f.To != nil && !at.Before(*f.To) {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (r *mockVisitRepo) FindByCheckInToken(_ context.Context, token string) (*domain.VisitLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.visits {
		if token != "" && v.CheckInToken == token {
			c := *v
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *mockVisitRepo) ListExpectedByEmail(_ context.Context, email string) ([]domain.VisitLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.VisitLog
	for _, id := range r.order {
		v := r.visits[id]
		if v.Status == domain.VisitExpected && strings.EqualFold(r.visitors[v.VisitorID].Email, email) {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (r *mockVisitRepo) LatestForVisitor(_ context.Context, visitorID string) (*domain.VisitLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		v := r.visits[r.order[i]]
		if v.VisitorID == visitorID {
			c := *v
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *mockVisitRepo) HasVisitWithHost(_ context.Context, visitorID, hostID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.visits {
		if v.VisitorID == visitorID && v.HostID == hostID {
			return true, nil
		}
	}
	return false, nil
}

func (r *mockVisitRepo) UpdateStatus(_ context.Context, visit *domain.VisitLog, from domain.VisitStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.visits[visit.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status != from {
		return fmt.Errorf("update visit status: %w", domain.ErrConflict)
	}
	c := *visit
	r.visits[visit.ID] = &c
	return nil
}

// setStatus bypasses the guard to simulate a concurrent writer.
func (r *mockVisitRepo) setStatus(id string, status domain.VisitStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visits[id].Status = status
}

type mockVisitorRepo struct{ visits *mockVisitRepo }

func (r mockVisitorRepo) FindByID(_ context.Context, id string) (*domain.Visitor, error) {
	r.visits.mu.Lock()
	defer r.visits.mu.Unlock()
	if v, ok := r.visits.visitors[id]; ok {
		c := *v
		return &c, nil
	}
	return nil, domain.ErrNotFound
}

type mockRateLimitRepo struct {
	mu     sync.Mutex
	counts map[string]int
}

func newMockRateLimitRepo() *mockRateLimitRepo {
	return &mockRateLimitRepo{counts: map[string]int{}}
}

func (r *mockRateLimitRepo) CheckRateLimit(_ context.Context, key string, requests int, _ time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[key]++
	return r.counts[key] <= requests, nil
}

func (r *mockRateLimitRepo) Reset(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.counts, key)
	return nil
}

type captureMailer struct {
	mu          sync.Mutex
	preRegs     []mailer.PreRegistration
	arrivals    []mailer.VisitorArrived
	failPreRegs bool
}

func (m *captureMailer) SendPreRegistration(_ context.Context, msg mailer.PreRegistration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPreRegs {
		return fmt.Errorf("smtp down")
	}
	m.preRegs = append(m.preRegs, msg)
	return nil
}

func (m *captureMailer) SendVisitorArrived(_ context.Context, msg mailer.VisitorArrived) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.arrivals = append(m.arrivals, msg)
	return nil
}

type capturePublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *capturePublisher) Publish(_ context.Context, subject string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

type countingRecorder struct {
	mu          sync.Mutex
	transitions map[string]int
	logins      map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{transitions: map[string]int{}, logins: map[string]int{}}
}

func (c *countingRecorder) RecordVisitTransition(event, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitions[event+"/"+outcome]++
}

func (c *countingRecorder) RecordLogin(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logins[outcome]++
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Timezone: "UTC"},
		Auth: config.AuthConfig{
			JWTSecret:       "test-secret",
			SessionTTL:      time.Hour,
			LoginRateLimit:  3,
			LoginRateWindow: time.Minute,
		},
		Query: config.QueryConfig{DefaultPageSize: 10, MaxPageSize: 50},
		Kiosk: config.KioskConfig{
			FlowTTL:       15 * time.Minute,
			AccessCodeTTL: 72 * time.Hour,
			PublicBaseURL: "https://vms.example.com/kiosk",
		},
	}
}
