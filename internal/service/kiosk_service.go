package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/diagnosis/visitor-management/internal/domain"
	"github.com/diagnosis/visitor-management/internal/kiosk"
	"github.com/diagnosis/visitor-management/internal/session"
	"github.com/diagnosis/visitor-management/pkg/auth"
	"github.com/diagnosis/visitor-management/pkg/config"
	"github.com/diagnosis/visitor-management/pkg/logger"
)

type KioskStart struct {
	Flow      kiosk.Flow `json:"flow"`
	Token     string     `json:"token"`
	ExpiresIn int64      `json:"expires_in"`
}

type KioskDirectory struct {
	Hosts     []domain.HostInfo `json:"hosts"`
	Locations []domain.Location `json:"locations"`
}

type KioskService interface {
	Start(ctx context.Context) (*KioskStart, error)
	// Authorize checks that token was issued for flowID.
	Authorize(token, flowID string) error
	Get(ctx context.Context, flowID string) (*kiosk.Flow, error)
	// Fire applies a navigation event. Events that carry data have their own
	// operations below.
	Fire(ctx context.Context, flowID string, event kiosk.Event) (*kiosk.Flow, error)
	ScanPass(ctx context.Context, flowID string, scan *domain.KioskQRScan) (*kiosk.Flow, error)
	SubmitForm(ctx context.Context, flowID string, form *domain.KioskFormRequest) (*kiosk.Flow, error)
	CapturePhoto(ctx context.Context, flowID string, req *domain.KioskPhotoRequest) (*kiosk.Flow, error)
	Directory(ctx context.Context) (*KioskDirectory, error)
}

type kioskService struct {
	store     session.Store
	visits    KioskVisits
	users     UserService
	locations LocationService
	config    *config.Config
	now       clock
}

func NewKioskService(
	store session.Store,
	visits KioskVisits,
	users UserService,
	locations LocationService,
	config *config.Config,
) KioskService {
	return &kioskService{
		store:     store,
		visits:    visits,
		users:     users,
		locations: locations,
		config:    config,
		now:       systemClock,
	}
}

const flowKeyPrefix = "kiosk:flow:"

func (s *kioskService) Start(ctx context.Context) (*KioskStart, error) {
	flow := kiosk.NewFlow(uuid.NewString(), s.now())
	if err := s.save(ctx, &flow); err != nil {
		return nil, err
	}

	token, err := auth.NewKioskToken(flow.ID, s.config.Auth.JWTSecret, s.config.Kiosk.FlowTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create kiosk token: %w", err)
	}

	logger.InfoContext(ctx, "Kiosk flow started", "flow_id", flow.ID)
	return &KioskStart{Flow: flow, Token: token, ExpiresIn: int64(s.config.Kiosk.FlowTTL.Seconds())}, nil
}

func (s *kioskService) Authorize(token, flowID string) error {
	claims, err := auth.Parse(token, s.config.Auth.JWTSecret)
	if err != nil {
		return domain.ErrUnauthenticated
	}
	if claims.Role != auth.RoleKiosk || claims.SessionID != flowID {
		return domain.ErrForbidden
	}
	return nil
}

func (s *kioskService) Get(ctx context.Context, flowID string) (*kiosk.Flow, error) {
	return s.load(ctx, flowID)
}

var dataEvents = map[kiosk.Event]string{
	kiosk.EventQRMatched:     "scan a pass to match it",
	kiosk.EventSubmitForm:    "submit the form",
	kiosk.EventPhotoCaptured: "upload the photo",
}

func (s *kioskService) Fire(ctx context.Context, flowID string, event kiosk.Event) (*kiosk.Flow, error) {
	if hint, ok := dataEvents[event]; ok {
		return nil, domain.NewValidationError("event", hint)
	}
	flow, err := s.load(ctx, flowID)
	if err != nil {
		return nil, err
	}
	next, err := kiosk.Fire(*flow, event, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// ScanPass checks in a pre-registered visitor. The flow must be on the scan
// screen before any visit is touched.
func (s *kioskService) ScanPass(ctx context.Context, flowID string, scan *domain.KioskQRScan) (*kiosk.Flow, error) {
	flow, err := s.load(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if _, ok := kiosk.Next(flow.State, kiosk.EventQRMatched); !ok {
		return nil, &domain.TransitionError{From: string(flow.State), Event: string(kiosk.EventQRMatched)}
	}

	rec, err := s.visits.CheckInWithPass(ctx, scan)
	if err != nil {
		return nil, err
	}

	next, err := kiosk.Fire(*flow, kiosk.EventQRMatched, s.now())
	if err != nil {
		return nil, err
	}
	next.Confirmation = confirmation(rec)
	if err := s.save(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

func (s *kioskService) SubmitForm(ctx context.Context, flowID string, form *domain.KioskFormRequest) (*kiosk.Flow, error) {
	flow, err := s.load(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if _, ok := kiosk.Next(flow.State, kiosk.EventSubmitForm); !ok {
		return nil, &domain.TransitionError{From: string(flow.State), Event: string(kiosk.EventSubmitForm)}
	}

	form.Normalize()
	if err := form.Validate(); err != nil {
		return nil, err
	}

	next, err := kiosk.Fire(*flow, kiosk.EventSubmitForm, s.now())
	if err != nil {
		return nil, err
	}
	next.Form = form
	if err := s.save(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// CapturePhoto completes a walk-in: the visitor and a checked-in visit are
// created from the stored form.
func (s *kioskService) CapturePhoto(ctx context.Context, flowID string, req *domain.KioskPhotoRequest) (*kiosk.Flow, error) {
	flow, err := s.load(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if _, ok := kiosk.Next(flow.State, kiosk.EventPhotoCaptured); !ok {
		return nil, &domain.TransitionError{From: string(flow.State), Event: string(kiosk.EventPhotoCaptured)}
	}
	if flow.Form == nil {
		return nil, domain.NewValidationError("form", "form has not been submitted")
	}

	rec, err := s.visits.RegisterWalkIn(ctx, flow.Form, req.PhotoURL)
	if err != nil {
		return nil, err
	}

	next, err := kiosk.Fire(*flow, kiosk.EventPhotoCaptured, s.now())
	if err != nil {
		return nil, err
	}
	next.PhotoURL = req.PhotoURL
	next.Confirmation = confirmation(rec)
	if err := s.save(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

func (s *kioskService) Directory(ctx context.Context) (*KioskDirectory, error) {
	hosts, err := s.users.ListHosts(ctx)
	if err != nil {
		return nil, err
	}
	locations, err := s.locations.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return &KioskDirectory{Hosts: hosts, Locations: locations}, nil
}

func confirmation(rec *domain.VisitRecord) *kiosk.Confirmation {
	return &kiosk.Confirmation{
		VisitID:     rec.Visit.ID,
		VisitorName: rec.Visitor.Name,
		HostName:    rec.Host.Name,
		Location:    rec.Location.Name,
		CheckInTime: rec.Visit.CheckInTime,
	}
}

func (s *kioskService) load(ctx context.Context, flowID string) (*kiosk.Flow, error) {
	raw, err := s.store.Get(ctx, flowKeyPrefix+flowID)
	if errors.Is(err, session.ErrMissing) {
		return nil, fmt.Errorf("kiosk flow %s: %w", flowID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: kiosk store: %v", domain.ErrUnavailable, err)
	}

	var flow kiosk.Flow
	if err := json.Unmarshal([]byte(raw), &flow); err != nil {
		return nil, fmt.Errorf("decode kiosk flow: %w", err)
	}
	return &flow, nil
}

func (s *kioskService) save(ctx context.Context, flow *kiosk.Flow) error {
	payload, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("encode kiosk flow: %w", err)
	}
	if err := s.store.Set(ctx, flowKeyPrefix+flow.ID, string(payload), s.config.Kiosk.FlowTTL); err != nil {
		return fmt.Errorf("%w: kiosk store: %v", domain.ErrUnavailable, err)
	}
	return nil
}
