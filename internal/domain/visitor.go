package domain

import (
	"regexp"
	"strings"
	"time"
)

type VisitorStatus string

const (
	VisitorPreRegistered VisitorStatus = "pre_registered"
	VisitorCheckedIn     VisitorStatus = "checked_in"
	VisitorCheckedOut    VisitorStatus = "checked_out"
	VisitorCanceled      VisitorStatus = "canceled"
)

// Visitor is the person record. Status and times are not stored: they come
// from the visitor's latest visit.
type Visitor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Company   string    `json:"company,omitempty"`
	Purpose   string    `json:"purpose"`
	HostID    string    `json:"host_id"`
	PhotoURL  string    `json:"photo_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// VisitorView is a Visitor with its derived lifecycle fields.
type VisitorView struct {
	Visitor
	Status       VisitorStatus `json:"status"`
	CheckInTime  *time.Time    `json:"check_in_time,omitempty"`
	CheckOutTime *time.Time    `json:"check_out_time,omitempty"`
}

// DeriveVisitorStatus maps the latest visit onto the visitor status vocabulary.
// A visitor without visits counts as pre-registered.
func DeriveVisitorStatus(v Visitor, latest *VisitLog) VisitorView {
	view := VisitorView{Visitor: v, Status: VisitorPreRegistered}
	if latest == nil {
		return view
	}
	switch latest.Status {
	case VisitCheckedIn:
		view.Status = VisitorCheckedIn
	case VisitCheckedOut:
		view.Status = VisitorCheckedOut
	case VisitCanceled:
		view.Status = VisitorCanceled
	}
	view.CheckInTime = latest.CheckInTime
	view.CheckOutTime = latest.CheckOutTime
	return view
}

type VisitorRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Company  string `json:"company"`
	Purpose  string `json:"purpose"`
	HostID   string `json:"host_id"`
	PhotoURL string `json:"photo_url"`
}

func (r *VisitorRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = NormalizeEmail(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Company = strings.TrimSpace(r.Company)
	r.Purpose = strings.TrimSpace(r.Purpose)
	r.HostID = strings.TrimSpace(r.HostID)
	r.PhotoURL = strings.TrimSpace(r.PhotoURL)
}

func (r *VisitorRequest) Validate() error {
	switch {
	case r.Name == "":
		return NewValidationError("name", "is required")
	case !IsValidEmail(r.Email):
		return NewValidationError("email", "invalid email format")
	case r.Phone != "" && !isValidPhone(r.Phone):
		return NewValidationError("phone", "invalid phone format")
	case r.Purpose == "":
		return NewValidationError("purpose", "is required")
	case r.HostID == "":
		return NewValidationError("host_id", "is required")
	}
	return nil
}

func (r *VisitorRequest) ToVisitor() Visitor {
	return Visitor{
		Name:     r.Name,
		Email:    r.Email,
		Phone:    r.Phone,
		Company:  r.Company,
		Purpose:  r.Purpose,
		HostID:   r.HostID,
		PhotoURL: r.PhotoURL,
	}
}

var phoneRegex = regexp.MustCompile(`^[\+]?[\d\s\-\(\)]+$`)

func isValidPhone(phone string) bool {
	return phoneRegex.MatchString(phone) && len(phone) >= 7
}
