package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/visitor-management/internal/domain"
	"github.com/diagnosis/visitor-management/internal/http/middleware"
	"github.com/diagnosis/visitor-management/internal/http/response"
	"github.com/diagnosis/visitor-management/internal/query"
	"github.com/diagnosis/visitor-management/internal/service"
	"github.com/diagnosis/visitor-management/pkg/config"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

const (
	kioskStartLimit  = 30
	kioskStartWindow = time.Minute
)

type Handlers struct {
	authService     service.AuthService
	userService     service.UserService
	locationService service.LocationService
	visitService    service.VisitService
	kioskService    service.KioskService
	limiter         middleware.Limiter
	config          *config.Config
	now             func() time.Time
}

func New(
	authService service.AuthService,
	userService service.UserService,
	locationService service.LocationService,
	visitService service.VisitService,
	kioskService service.KioskService,
	limiter middleware.Limiter,
	config *config.Config,
) *Handlers {
	return &Handlers{
		authService:     authService,
		userService:     userService,
		locationService: locationService,
		visitService:    visitService,
		kioskService:    kioskService,
		limiter:         limiter,
		config:          config,
		now:             time.Now,
	}
}

// Routes builds the /v1 API.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()
	requireSession := middleware.RequireSession(h.authService)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Post("/logout", h.Logout)
			r.Get("/me", h.Me)
			r.Patch("/profile", h.UpdateProfile)
			r.Put("/password", h.ChangePassword)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(requireSession)

		r.Get("/locations", h.ListActiveLocations)
		r.Get("/hosts", h.ListHosts)
		r.Get("/visitors/{id}", h.GetVisitor)

		r.Route("/visits", func(r chi.Router) {
			r.Get("/", h.ListVisits)
			r.Post("/", h.PreRegister)
			r.Get("/export", h.ExportVisits)
			r.Get("/stats", h.VisitStats)
			r.Get("/{id}", h.GetVisit)
			r.Post("/{id}/check-in", h.transition(domain.EventCheckIn))
			r.Post("/{id}/check-out", h.transition(domain.EventCheckOut))
			r.Post("/{id}/cancel", h.transition(domain.EventCancel))
		})

		r.With(middleware.RequireRole(domain.RoleHost, domain.RoleAdmin)).Get("/host/visits", h.HostVisits)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAdmin))
			r.Route("/users", func(r chi.Router) {
				r.Get("/", h.ListUsers)
				r.Post("/", h.CreateUser)
				r.Get("/{id}", h.GetUser)
				r.Patch("/{id}", h.UpdateUser)
				r.Delete("/{id}", h.DeleteUser)
			})
			r.Route("/locations", func(r chi.Router) {
				r.Get("/", h.ListAllLocations)
				r.Post("/", h.CreateLocation)
				r.Get("/{id}", h.GetLocation)
				r.Patch("/{id}", h.UpdateLocation)
				r.Delete("/{id}", h.DeleteLocation)
				r.Post("/{id}/deactivate", h.DeactivateLocation)
			})
		})
	})

	r.Route("/kiosk", func(r chi.Router) {
		start := http.HandlerFunc(h.StartKiosk)
		if h.limiter != nil {
			rl := middleware.NewRateLimiter(h.limiter, middleware.RateLimitConfig{
				Requests: kioskStartLimit,
				Window:   kioskStartWindow,
				KeyFunc:  middleware.IPKeyFunc("kiosk:start"),
			})
			r.With(rl.Middleware()).Post("/flows", start)
		} else {
			r.Post("/flows", start)
		}
		r.Get("/directory", h.KioskDirectory)

		r.Route("/flows/{id}", func(r chi.Router) {
			r.Use(middleware.RequireKioskFlow(h.kioskService))
			r.Get("/", h.GetKioskFlow)
			r.Post("/events", h.FireKioskEvent)
			r.Post("/qr", h.ScanPass)
			r.Post("/form", h.SubmitKioskForm)
			r.Post("/photo", h.CaptureKioskPhoto)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	response.WriteJSON(w, statusCode, data)
}

// decodeJSON reads one JSON object into dst. Unknown fields are rejected so
// typos surface as validation errors.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewValidationError("body", "request body is required")
		}
		return domain.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	return nil
}

// parseVisitQuery reads the list/export query string.
func parseVisitQuery(r *http.Request, loc *time.Location) (query.Query, error) {
	v := r.URL.Query()
	q := query.Query{
		Search: strings.TrimSpace(v.Get("q")),
		HostID: strings.TrimSpace(v.Get("host_id")),
	}

	if s := strings.TrimSpace(v.Get("status")); s != "" && s != query.StatusAll {
		st, ok := domain.ParseVisitStatus(s)
		if !ok {
			return q, domain.NewValidationError("status", "must be one of all, expected, checked_in, checked_out, canceled")
		}
		q.Status = string(st)
	}

	var err error
	if q.Page, err = parsePositive(v.Get("page"), "page"); err != nil {
		return q, err
	}
	if q.PageSize, err = parsePositive(v.Get("page_size"), "page_size"); err != nil {
		return q, err
	}

	key, ok := query.ParseSortKey(v.Get("sort"))
	if !ok {
		return q, domain.NewValidationError("sort", "unknown sort key")
	}
	q.SortBy = key
	switch strings.ToLower(v.Get("order")) {
	case "", "asc":
	case "desc":
		q.Desc = true
	default:
		return q, domain.NewValidationError("order", "must be asc or desc")
	}

	if q.From, err = parseBound(v.Get("from"), "from", false, loc); err != nil {
		return q, err
	}
	if q.To, err = parseBound(v.Get("to"), "to", true, loc); err != nil {
		return q, err
	}
	if q.From != nil && q.To != nil && !q.From.Before(*q.To) {
		return q, domain.NewValidationError("to", "must be after from")
	}
	return q, nil
}

func parsePositive(s, field string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, domain.NewValidationError(field, "must be a non-negative integer")
	}
	return n, nil
}

// parseBound accepts RFC 3339 timestamps or plain dates in loc. A plain date
// used as an upper bound includes the whole day.
func parseBound(s, field string, upper bool, loc *time.Location) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return nil, domain.NewValidationError(field, "must be RFC 3339 or YYYY-MM-DD")
	}
	if upper {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}
