package domain

import (
	"regexp"
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleHost     Role = "host"
	RoleSecurity Role = "security"
)

func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleHost:
		return RoleHost, true
	case RoleSecurity:
		return RoleSecurity, true
	default:
		return "", false
	}
}

const MinPasswordLength = 6

type User struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Email                string    `json:"email"`
	Role                 Role      `json:"role"`
	Department           string    `json:"department,omitempty"`
	Avatar               string    `json:"avatar,omitempty"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	PasswordHash         string    `json:"-"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type CreateUserRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	Department string `json:"department"`
	Avatar     string `json:"avatar"`
}

func (r *CreateUserRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = NormalizeEmail(r.Email)
	r.Department = strings.TrimSpace(r.Department)
	r.Avatar = strings.TrimSpace(r.Avatar)
	if strings.TrimSpace(r.Role) == "" {
		r.Role = string(RoleHost)
	}
}

func (r *CreateUserRequest) Validate() error {
	if r.Name == "" {
		return NewValidationError("name", "is required")
	}
	if !IsValidEmail(r.Email) {
		return NewValidationError("email", "invalid email format")
	}
	if len(r.Password) < MinPasswordLength {
		return NewValidationError("password", "must be at least 6 characters")
	}
	if _, ok := ParseRole(r.Role); !ok {
		return NewValidationError("role", "must be one of admin, host, security")
	}
	return nil
}

// UpdateUserRequest is the admin patch. Nil fields are left untouched.
type UpdateUserRequest struct {
	Name       *string `json:"name,omitempty"`
	Email      *string `json:"email,omitempty"`
	Role       *string `json:"role,omitempty"`
	Department *string `json:"department,omitempty"`
	Avatar     *string `json:"avatar,omitempty"`
}

func (r *UpdateUserRequest) Validate() error {
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return NewValidationError("name", "cannot be empty")
	}
	if r.Email != nil && !IsValidEmail(NormalizeEmail(*r.Email)) {
		return NewValidationError("email", "invalid email format")
	}
	if r.Role != nil {
		if _, ok := ParseRole(*r.Role); !ok {
			return NewValidationError("role", "must be one of admin, host, security")
		}
	}
	return nil
}

// Apply copies the set fields onto u.
func (r *UpdateUserRequest) Apply(u *User) {
	if r.Name != nil {
		u.Name = strings.TrimSpace(*r.Name)
	}
	if r.Email != nil {
		u.Email = NormalizeEmail(*r.Email)
	}
	if r.Role != nil {
		u.Role, _ = ParseRole(*r.Role)
	}
	if r.Department != nil {
		u.Department = strings.TrimSpace(*r.Department)
	}
	if r.Avatar != nil {
		u.Avatar = strings.TrimSpace(*r.Avatar)
	}
}

// ProfileUpdate is what users may change about themselves on the settings page.
type ProfileUpdate struct {
	Name                 *string `json:"name,omitempty"`
	Department           *string `json:"department,omitempty"`
	Avatar               *string `json:"avatar,omitempty"`
	NotificationsEnabled *bool   `json:"notifications_enabled,omitempty"`
}

func (p *ProfileUpdate) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return NewValidationError("name", "cannot be empty")
	}
	return nil
}

func (p *ProfileUpdate) Apply(u *User) {
	if p.Name != nil {
		u.Name = strings.TrimSpace(*p.Name)
	}
	if p.Department != nil {
		u.Department = strings.TrimSpace(*p.Department)
	}
	if p.Avatar != nil {
		u.Avatar = strings.TrimSpace(*p.Avatar)
	}
	if p.NotificationsEnabled != nil {
		u.NotificationsEnabled = *p.NotificationsEnabled
	}
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (r *ChangePasswordRequest) Validate() error {
	if r.CurrentPassword == "" {
		return NewValidationError("current_password", "is required")
	}
	if len(r.NewPassword) < MinPasswordLength {
		return NewValidationError("new_password", "must be at least 6 characters")
	}
	if r.NewPassword != r.ConfirmPassword {
		return NewValidationError("confirm_password", "passwords do not match")
	}
	return nil
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}

func (r *LoginRequest) Validate() error {
	if r.Email == "" {
		return NewValidationError("email", "is required")
	}
	if r.Password == "" {
		return NewValidationError("password", "is required")
	}
	return nil
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        *UserInfo `json:"user"`
}

// UserInfo is the public projection of a User.
type UserInfo struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Role                 Role   `json:"role"`
	Department           string `json:"department,omitempty"`
	Avatar               string `json:"avatar,omitempty"`
	NotificationsEnabled bool   `json:"notifications_enabled"`
}

func (u *User) ToUserInfo() *UserInfo {
	return &UserInfo{
		ID:                   u.ID,
		Name:                 u.Name,
		Email:                u.Email,
		Role:                 u.Role,
		Department:           u.Department,
		Avatar:               u.Avatar,
		NotificationsEnabled: u.NotificationsEnabled,
	}
}

// HostInfo is the kiosk directory entry: no email.
type HostInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
}

func (u *User) ToHostInfo() HostInfo {
	return HostInfo{ID: u.ID, Name: u.Name, Department: u.Department, Avatar: u.Avatar}
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func IsValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
