package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/diagnosis/visitor-management/internal/domain"
	"github.com/diagnosis/visitor-management/internal/mailer"
	"github.com/diagnosis/visitor-management/internal/query"
	"github.com/diagnosis/visitor-management/internal/repository"
	"github.com/diagnosis/visitor-management/internal/session"
	"github.com/diagnosis/visitor-management/pkg/config"
	"github.com/diagnosis/visitor-management/pkg/events"
	"github.com/diagnosis/visitor-management/pkg/logger"
)

// Event sources carried on visit events.
const (
	SourceStaff = "staff"
	SourceKiosk = "kiosk"
)

type VisitPage struct {
	Items      []domain.VisitDTO `json:"items"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

// KioskVisits are the visit operations reachable from the unauthenticated
// kiosk. The caller proves presence with a pass instead of a session.
type KioskVisits interface {
	CheckInWithPass(ctx context.Context, scan *domain.KioskQRScan) (*domain.VisitRecord, error)
	RegisterWalkIn(ctx context.Context, form *domain.KioskFormRequest, photoURL string) (*domain.VisitRecord, error)
}

type VisitService interface {
	KioskVisits

	List(ctx context.Context, sess *session.Session, q query.Query) (*VisitPage, error)
	Export(ctx context.Context, sess *session.Session, q query.Query, w io.Writer) error
	Stats(ctx context.Context, sess *session.Session) (*query.Stats, error)
	Get(ctx context.Context, sess *session.Session, id string) (*domain.VisitDTO, error)
	GetVisitor(ctx context.Context, sess *session.Session, id string) (*domain.VisitorView, error)
	PreRegister(ctx context.Context, sess *session.Session, req *domain.PreRegisterRequest) (*domain.PreRegisterResponse, error)
	Transition(ctx context.Context, sess *session.Session, id string, event domain.VisitEvent) (*domain.VisitDTO, error)
	HostVisits(ctx context.Context, sess *session.Session) (*domain.HostVisits, error)
}

type visitService struct {
	visitRepo     repository.VisitRepository
	visitorRepo   repository.VisitorRepository
	userRepo      repository.UserRepository
	locationRepo  repository.LocationRepository
	rateLimitRepo repository.RateLimitRepository
	mailer        mailer.Service
	eventBus      events.Publisher
	metrics       MetricsRecorder
	config        *config.Config
	loc           *time.Location
	now           clock
}

func NewVisitService(
	visitRepo repository.VisitRepository,
	visitorRepo repository.VisitorRepository,
	userRepo repository.UserRepository,
	locationRepo repository.LocationRepository,
	rateLimitRepo repository.RateLimitRepository,
	mailer mailer.Service,
	eventBus events.Publisher,
	metrics MetricsRecorder,
	config *config.Config,
) VisitService {
	return &visitService{
		visitRepo:     visitRepo,
		visitorRepo:   visitorRepo,
		userRepo:      userRepo,
		locationRepo:  locationRepo,
		rateLimitRepo: rateLimitRepo,
		mailer:        mailer,
		eventBus:      eventBus,
		metrics:       recorderOrNoop(metrics),
		config:        config,
		loc:           config.Server.Location(),
		now:           systemClock,
	}
}

// scope restricts hosts to their own visits.
func scope(sess *session.Session, q *query.Query) error {
	if sess.CanViewAllVisits() {
		return nil
	}
	if q.HostID != "" && q.HostID != sess.UserID() {
		return domain.ErrForbidden
	}
	q.HostID = sess.UserID()
	return nil
}

func (s *visitService) records(ctx context.Context, q query.Query) ([]domain.VisitRecord, error) {
	records, err := s.visitRepo.ListRecords(ctx, repository.RecordFilter{HostID: q.HostID, From: q.From, To: q.To})
	if err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	return records, nil
}

func (s *visitService) List(ctx context.Context, sess *session.Session, q query.Query) (*VisitPage, error) {
	if err := scope(sess, &q); err != nil {
		return nil, err
	}
	if q.PageSize <= 0 {
		q.PageSize = s.config.Query.DefaultPageSize
	}
	if q.PageSize > s.config.Query.MaxPageSize {
		q.PageSize = s.config.Query.MaxPageSize
	}

	records, err := s.records(ctx, q)
	if err != nil {
		return nil, err
	}

	res := query.Run(records, q)
	page := &VisitPage{
		Items:      make([]domain.VisitDTO, 0, len(res.Items)),
		Total:      res.Total,
		Page:       res.Page,
		PageSize:   res.PageSize,
		TotalPages: res.TotalPages,
	}
	for i := range res.Items {
		page.Items = append(page.Items, res.Items[i].ToDTO())
	}
	return page, nil
}

func (s *visitService) Export(ctx context.Context, sess *session.Session, q query.Query, w io.Writer) error {
	if err := scope(sess, &q); err != nil {
		return err
	}
	records, err := s.records(ctx, q)
	if err != nil {
		return err
	}
	matched := query.Filter(records, q)
	logger.InfoContext(ctx, "Exporting visits", "rows", len(matched), "user_id", sess.UserID())
	return query.WriteCSV(w, matched, s.loc)
}

func (s *visitService) dayBounds(now time.Time) (time.Time, time.Time) {
	local := now.In(s.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	return start, start.AddDate(0, 0, 1)
}

func (s *visitService) Stats(ctx context.Context, sess *session.Session) (*query.Stats, error) {
	now := s.now()
	from, to := s.dayBounds(now)
	q := query.Query{From: &from, To: &to}
	if err := scope(sess, &q); err != nil {
		return nil, err
	}

	records, err := s.records(ctx, q)
	if err != nil {
		return nil, err
	}
	stats := query.Summarize(records, now, s.loc)
	return &stats, nil
}

func (s *visitService) Get(ctx context.Context, sess *session.Session, id string) (*domain.VisitDTO, error) {
	rec, err := s.visitRepo.GetRecord(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	if !sess.CanViewVisit(rec.Visit.HostID) {
		return nil, domain.ErrForbidden
	}
	dto := rec.ToDTO()
	return &dto, nil
}

func (s *visitService) GetVisitor(ctx context.Context, sess *session.Session, id string) (*domain.VisitorView, error) {
	visitor, err := s.visitorRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get visitor: %w", err)
	}
	if !sess.CanViewVisit(visitor.HostID) {
		// A returning visitor's host_id follows their latest visit; earlier
		// hosts keep access through the visits they hosted.
		hosted, err := s.visitRepo.HasVisitWithHost(ctx, id, sess.UserID())
		if err != nil {
			return nil, fmt.Errorf("failed to check visitor host: %w", err)
		}
		if !hosted || sess.Role() != domain.RoleHost {
			return nil, domain.ErrForbidden
		}
	}

	latest, err := s.visitRepo.LatestForVisitor(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to load latest visit: %w", err)
	}
	view := domain.DeriveVisitorStatus(*visitor, latest)
	return &view, nil
}

// resolveRefs loads the host and location a new visit will reference.
// Unknown or unusable references are validation errors.
func (s *visitService) resolveRefs(ctx context.Context, hostID, locationID string) (*domain.User, *domain.Location, error) {
	host, err := s.userRepo.FindByID(ctx, hostID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, domain.NewValidationError("host_id", "unknown host")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load host: %w", err)
	}
	if host.Role == domain.RoleSecurity {
		return nil, nil, domain.NewValidationError("host_id", "security staff cannot host visitors")
	}

	loc, err := s.locationRepo.FindByID(ctx, locationID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, domain.NewValidationError("location_id", "unknown location")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load location: %w", err)
	}
	if !loc.Active {
		return nil, nil, domain.NewValidationError("location_id", "location is inactive")
	}
	return host, loc, nil
}

func (s *visitService) PreRegister(ctx context.Context, sess *session.Session, req *domain.PreRegisterRequest) (*domain.PreRegisterResponse, error) {
	req.Normalize()
	if req.Visitor.HostID == "" {
		req.Visitor.HostID = sess.UserID()
	}
	if !sess.CanPreRegisterFor(req.Visitor.HostID) {
		return nil, domain.ErrForbidden
	}
	if err := req.Validate(s.now()); err != nil {
		return nil, err
	}

	host, loc, err := s.resolveRefs(ctx, req.Visitor.HostID, req.LocationID)
	if err != nil {
		return nil, err
	}

	code, err := generateAccessCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate access code: %w", err)
	}
	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash access code: %w", err)
	}
	token := uuid.NewString()

	visitor := req.Visitor.ToVisitor()
	rec, err := s.visitRepo.CreateWithVisitor(ctx, &visitor, &domain.VisitLog{
		HostID:       host.ID,
		LocationID:   loc.ID,
		Status:       domain.VisitExpected,
		ScheduledAt:  req.ScheduledAt.UTC(),
		CheckInToken: token,
		CodeHash:     string(codeHash),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to pre-register visit: %w", err)
	}

	logger.InfoContext(ctx, "Visit pre-registered", "visit_id", rec.Visit.ID, "host_id", host.ID, "by", sess.UserID())

	checkInURL := s.checkInURL(token)
	if err := s.mailer.SendPreRegistration(ctx, mailer.PreRegistration{
		VisitorEmail: rec.Visitor.Email,
		VisitorName:  rec.Visitor.Name,
		HostName:     host.Name,
		LocationName: loc.Name,
		ScheduledAt:  rec.Visit.ScheduledAt.In(s.loc),
		AccessCode:   code,
		CheckInURL:   checkInURL,
	}); err != nil {
		logger.ErrorContext(ctx, "Failed to send pre-registration email", "error", err, "visit_id", rec.Visit.ID)
	}

	s.publish(ctx, events.VisitPreRegistered, rec, SourceStaff)

	return &domain.PreRegisterResponse{
		Visit:        rec.ToDTO(),
		CheckInToken: token,
		AccessCode:   code,
	}, nil
}

func (s *visitService) checkInURL(token string) string {
	u, err := url.Parse(s.config.Kiosk.PublicBaseURL)
	if err != nil {
		return s.config.Kiosk.PublicBaseURL + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *visitService) Transition(ctx context.Context, sess *session.Session, id string, event domain.VisitEvent) (*domain.VisitDTO, error) {
	rec, err := s.visitRepo.GetRecord(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	if !sess.CanManageVisit(rec.Visit.HostID) {
		return nil, domain.ErrForbidden
	}

	updated, err := s.apply(ctx, rec, event, SourceStaff)
	if err != nil {
		return nil, err
	}
	dto := updated.ToDTO()
	return &dto, nil
}

// apply runs the lifecycle rules and persists the result guarded by the
// status the record was read with.
func (s *visitService) apply(ctx context.Context, rec *domain.VisitRecord, event domain.VisitEvent, source string) (*domain.VisitRecord, error) {
	updated, err := domain.Transition(rec.Visit, event, s.now())
	if err != nil {
		s.metrics.RecordVisitTransition(string(event), outcome(err))
		return nil, err
	}

	if err := s.visitRepo.UpdateStatus(ctx, &updated, rec.Visit.Status); err != nil {
		s.metrics.RecordVisitTransition(string(event), outcome(err))
		return nil, fmt.Errorf("failed to update visit: %w", err)
	}
	s.metrics.RecordVisitTransition(string(event), "applied")

	next := *rec
	next.Visit = updated
	logger.InfoContext(ctx, "Visit transitioned",
		"visit_id", updated.ID, "event", event, "from", rec.Visit.Status, "to", updated.Status, "source", source)

	switch updated.Status {
	case domain.VisitCheckedIn:
		s.publish(ctx, events.VisitCheckedIn, &next, source)
	case domain.VisitCheckedOut:
		s.publish(ctx, events.VisitCheckedOut, &next, source)
	case domain.VisitCanceled:
		s.publish(ctx, events.VisitCanceled, &next, source)
	}
	return &next, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (s *visitService) HostVisits(ctx context.Context, sess *session.Session) (*domain.HostVisits, error) {
	records, err := s.records(ctx, query.Query{HostID: sess.UserID()})
	if err != nil {
		return nil, err
	}

	now := s.now()
	dayStart, dayEnd := s.dayBounds(now)
	out := &domain.HostVisits{Upcoming: []domain.VisitDTO{}, Past: []domain.VisitDTO{}}
	for i := range records {
		rec := &records[i]
		at := rec.Visit.EffectiveTime()
		if at.After(now) {
			out.Upcoming = append(out.Upcoming, rec.ToDTO())
		} else {
			out.Past = append(out.Past, rec.ToDTO())
		}
		if rec.Visit.Status != domain.VisitCanceled && !at.Before(dayStart) && at.Before(dayEnd) {
			out.TodayCount++
		}
	}

	// Soonest first for upcoming, most recent first for past.
	sort.SliceStable(out.Upcoming, func(i, j int) bool {
		return effective(out.Upcoming[i]).Before(effective(out.Upcoming[j]))
	})
	sort.SliceStable(out.Past, func(i, j int) bool {
		return effective(out.Past[i]).After(effective(out.Past[j]))
	})
	return out, nil
}

func effective(v domain.VisitDTO) time.Time {
	if v.CheckInTime != nil {
		return *v.CheckInTime
	}
	return v.ScheduledAt
}

func (s *visitService) CheckInWithPass(ctx context.Context, scan *domain.KioskQRScan) (*domain.VisitRecord, error) {
	scan.Normalize()
	if err := scan.Validate(); err != nil {
		return nil, err
	}

	var (
		visit *domain.VisitLog
		err   error
	)
	if scan.Token != "" {
		visit, err = s.visitRepo.FindByCheckInToken(ctx, scan.Token)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up pass: %w", err)
		}
	} else {
		visit, err = s.matchAccessCode(ctx, scan.Email, scan.Code)
		if err != nil {
			return nil, err
		}
	}

	if s.now().After(visit.ScheduledAt.Add(s.config.Kiosk.AccessCodeTTL)) {
		return nil, domain.NewValidationError("token", "pass has expired")
	}

	rec, err := s.visitRepo.GetRecord(ctx, visit.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	return s.apply(ctx, rec, domain.EventCheckIn, SourceKiosk)
}

func (s *visitService) matchAccessCode(ctx context.Context, email, code string) (*domain.VisitLog, error) {
	if s.rateLimitRepo != nil {
		allowed, err := s.rateLimitRepo.CheckRateLimit(ctx, "kiosk:code:"+email, s.config.Auth.LoginRateLimit, s.config.Auth.LoginRateWindow)
		if err == nil && !allowed {
			return nil, domain.ErrRateLimited
		}
	}

	visits, err := s.visitRepo.ListExpectedByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up expected visits: %w", err)
	}
	for i := range visits {
		if visits[i].CodeHash == "" {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(visits[i].CodeHash), []byte(code)) == nil {
			return &visits[i], nil
		}
	}
	return nil, domain.ErrInvalidCredentials
}

func (s *visitService) RegisterWalkIn(ctx context.Context, form *domain.KioskFormRequest, photoURL string) (*domain.VisitRecord, error) {
	form.Normalize()
	if err := form.Validate(); err != nil {
		return nil, err
	}
	host, loc, err := s.resolveRefs(ctx, form.HostID, form.LocationID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	visitor := form.ToVisitor()
	visitor.PhotoURL = photoURL
	rec, err := s.visitRepo.CreateWithVisitor(ctx, &visitor, &domain.VisitLog{
		HostID:      host.ID,
		LocationID:  loc.ID,
		Status:      domain.VisitCheckedIn,
		ScheduledAt: now,
		CheckInTime: &now,
	})
	if err != nil {
		s.metrics.RecordVisitTransition("walk_in", outcome(err))
		return nil, fmt.Errorf("failed to register walk-in: %w", err)
	}
	s.metrics.RecordVisitTransition("walk_in", "applied")

	logger.InfoContext(ctx, "Walk-in registered", "visit_id", rec.Visit.ID, "host_id", host.ID)
	s.publish(ctx, events.VisitCheckedIn, rec, SourceKiosk)
	return rec, nil
}

func (s *visitService) publish(ctx context.Context, subject string, rec *domain.VisitRecord, source string) {
	event := events.VisitEvent{
		VisitID:      rec.Visit.ID,
		VisitorID:    rec.Visitor.ID,
		VisitorName:  rec.Visitor.Name,
		VisitorEmail: rec.Visitor.Email,
		Company:      rec.Visitor.Company,
		HostID:       rec.Visit.HostID,
		LocationID:   rec.Visit.LocationID,
		Status:       string(rec.Visit.Status),
		Source:       source,
		ScheduledAt:  rec.Visit.ScheduledAt,
		CheckInTime:  rec.Visit.CheckInTime,
		CheckOutTime: rec.Visit.CheckOutTime,
		OccurredAt:   s.now(),
	}
	if err := s.eventBus.Publish(ctx, subject, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish visit event", "error", err, "subject", subject, "visit_id", rec.Visit.ID)
	}
}

func generateAccessCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
