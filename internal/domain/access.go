package domain

import "strings"

// AccessCodeLength is the number of digits in a pre-registration access code.
const AccessCodeLength = 6

// KioskCodeCheckIn is the manual alternative to scanning the QR token.
type KioskCodeCheckIn struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (r *KioskCodeCheckIn) Normalize() {
	r.Email = NormalizeEmail(r.Email)
	r.Code = strings.TrimSpace(r.Code)
}

func (r *KioskCodeCheckIn) Validate() error {
	if !IsValidEmail(r.Email) {
		return NewValidationError("email", "invalid email format")
	}
	if len(r.Code) != AccessCodeLength {
		return NewValidationError("code", "must be 6 digits")
	}
	for _, c := range r.Code {
		if c < '0' || c > '9' {
			return NewValidationError("code", "must be 6 digits")
		}
	}
	return nil
}

// KioskQRScan carries either the scanned token or the email/code pair.
type KioskQRScan struct {
	Token string `json:"token,omitempty"`
	KioskCodeCheckIn
}

func (r *KioskQRScan) Normalize() {
	r.Token = strings.TrimSpace(r.Token)
	r.KioskCodeCheckIn.Normalize()
}

func (r *KioskQRScan) Validate() error {
	if r.Token != "" {
		return nil
	}
	if r.Email == "" && r.Code == "" {
		return NewValidationError("token", "token or email and code are required")
	}
	return r.KioskCodeCheckIn.Validate()
}

// KioskFormRequest is the walk-in registration form.
type KioskFormRequest struct {
	VisitorRequest
	LocationID string `json:"location_id"`
}

func (r *KioskFormRequest) Normalize() {
	r.VisitorRequest.Normalize()
	r.LocationID = strings.TrimSpace(r.LocationID)
}

func (r *KioskFormRequest) Validate() error {
	if err := r.VisitorRequest.Validate(); err != nil {
		return err
	}
	if r.LocationID == "" {
		return NewValidationError("location_id", "is required")
	}
	return nil
}

type KioskPhotoRequest struct {
	PhotoURL string `json:"photo_url"`
}
