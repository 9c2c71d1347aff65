package domain

import (
	"fmt"
	"strings"
	"time"
)

type VisitStatus string

const (
	VisitExpected   VisitStatus = "expected"
	VisitCheckedIn  VisitStatus = "checked_in"
	VisitCheckedOut VisitStatus = "checked_out"
	VisitCanceled   VisitStatus = "canceled"
)

func ParseVisitStatus(s string) (VisitStatus, bool) {
	switch VisitStatus(s) {
	case VisitExpected, VisitCheckedIn, VisitCheckedOut, VisitCanceled:
		return VisitStatus(s), true
	default:
		return "", false
	}
}

// Terminal reports whether no further events apply.
func (s VisitStatus) Terminal() bool {
	return s == VisitCheckedOut || s == VisitCanceled
}

type VisitEvent string

const (
	EventCheckIn  VisitEvent = "check_in"
	EventCheckOut VisitEvent = "check_out"
	EventCancel   VisitEvent = "cancel"
)

type VisitLog struct {
	ID           string      `json:"id"`
	VisitorID    string      `json:"visitor_id"`
	HostID       string      `json:"host_id"`
	LocationID   string      `json:"location_id"`
	Status       VisitStatus `json:"status"`
	ScheduledAt  time.Time   `json:"scheduled_at"`
	CheckInTime  *time.Time  `json:"check_in_time,omitempty"`
	CheckOutTime *time.Time  `json:"check_out_time,omitempty"`
	CheckInToken string      `json:"-"`
	CodeHash     string      `json:"-"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// EffectiveTime is the actual arrival when known, otherwise the scheduled time.
func (v *VisitLog) EffectiveTime() time.Time {
	if v.CheckInTime != nil {
		return *v.CheckInTime
	}
	return v.ScheduledAt
}

// Transition applies event to v at now and returns the updated copy. On error
// the input is returned unchanged.
func Transition(v VisitLog, event VisitEvent, now time.Time) (VisitLog, error) {
	if v.HostID == "" {
		return v, NewValidationError("host_id", "visit has no host")
	}
	if v.LocationID == "" {
		return v, NewValidationError("location_id", "visit has no location")
	}

	next := v
	switch {
	case v.Status == VisitExpected && event == EventCheckIn:
		next.Status = VisitCheckedIn
		if next.CheckInTime == nil {
			t := now
			next.CheckInTime = &t
		}
	case v.Status == VisitExpected && event == EventCancel:
		next.Status = VisitCanceled
	case v.Status == VisitCheckedIn && event == EventCheckOut:
		if v.CheckInTime != nil && now.Before(*v.CheckInTime) {
			return v, NewValidationError("check_out_time", "cannot precede check-in time")
		}
		t := now
		next.CheckOutTime = &t
		next.Status = VisitCheckedOut
	default:
		return v, &TransitionError{From: string(v.Status), Event: string(event)}
	}
	next.UpdatedAt = now
	return next, nil
}

// FormatDuration renders the stay as "Xh Ym".
func FormatDuration(checkIn time.Time, checkOut *time.Time) string {
	if checkOut == nil {
		return "Still checked in"
	}
	d := checkOut.Sub(checkIn)
	if d < 0 {
		d = 0
	}
	minutes := int(d / time.Minute)
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

// VisitRecord is a visit joined with the people and place it references.
type VisitRecord struct {
	Visit    VisitLog `json:"visit"`
	Visitor  Visitor  `json:"visitor"`
	Host     UserInfo `json:"host"`
	Location Location `json:"location"`
}

// Duration is the formatted stay, or empty when the visitor never arrived.
func (r *VisitRecord) Duration() string {
	if r.Visit.CheckInTime == nil {
		return ""
	}
	return FormatDuration(*r.Visit.CheckInTime, r.Visit.CheckOutTime)
}

// VisitDTO flattens a VisitRecord for API responses.
type VisitDTO struct {
	ID           string      `json:"id"`
	Status       VisitStatus `json:"status"`
	ScheduledAt  time.Time   `json:"scheduled_at"`
	CheckInTime  *time.Time  `json:"check_in_time,omitempty"`
	CheckOutTime *time.Time  `json:"check_out_time,omitempty"`
	Duration     string      `json:"duration,omitempty"`
	Visitor      Visitor     `json:"visitor"`
	Host         UserInfo    `json:"host"`
	Location     LocationRef `json:"location"`
	CreatedAt    time.Time   `json:"created_at"`
}

type LocationRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (r *VisitRecord) ToDTO() VisitDTO {
	return VisitDTO{
		ID:           r.Visit.ID,
		Status:       r.Visit.Status,
		ScheduledAt:  r.Visit.ScheduledAt,
		CheckInTime:  r.Visit.CheckInTime,
		CheckOutTime: r.Visit.CheckOutTime,
		Duration:     r.Duration(),
		Visitor:      r.Visitor,
		Host:         r.Host,
		Location:     LocationRef{ID: r.Location.ID, Name: r.Location.Name},
		CreatedAt:    r.Visit.CreatedAt,
	}
}

type PreRegisterRequest struct {
	Visitor     VisitorRequest `json:"visitor"`
	LocationID  string         `json:"location_id"`
	ScheduledAt time.Time      `json:"scheduled_at"`
}

func (r *PreRegisterRequest) Normalize() {
	r.Visitor.Normalize()
	r.LocationID = strings.TrimSpace(r.LocationID)
}

func (r *PreRegisterRequest) Validate(now time.Time) error {
	if err := r.Visitor.Validate(); err != nil {
		return err
	}
	if r.LocationID == "" {
		return NewValidationError("location_id", "is required")
	}
	if r.ScheduledAt.IsZero() {
		return NewValidationError("scheduled_at", "is required")
	}
	// Allow same-day registrations entered a little late.
	if r.ScheduledAt.Before(now.Add(-12 * time.Hour)) {
		return NewValidationError("scheduled_at", "must not be in the past")
	}
	return nil
}

// PreRegisterResponse carries the kiosk credentials exactly once.
type PreRegisterResponse struct {
	Visit        VisitDTO `json:"visit"`
	CheckInToken string   `json:"check_in_token"`
	AccessCode   string   `json:"access_code"`
}

type HostVisits struct {
	Upcoming   []VisitDTO `json:"upcoming"`
	Past       []VisitDTO `json:"past"`
	TodayCount int        `json:"today_count"`
}
