package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexedwards/argon2id"

	"github.com/diagnosis/visitor-management/internal/domain"
	"github.com/diagnosis/visitor-management/internal/repository"
	"github.com/diagnosis/visitor-management/internal/session"
	"github.com/diagnosis/visitor-management/pkg/auth"
	"github.com/diagnosis/visitor-management/pkg/config"
	"github.com/diagnosis/visitor-management/pkg/logger"
)

type AuthService interface {
	Login(ctx context.Context, req *domain.LoginRequest, clientIP string) (*domain.LoginResponse, error)
	// Resume turns a bearer token back into the session it was issued for.
	Resume(ctx context.Context, token string) (*session.Session, error)
	Logout(ctx context.Context, sess *session.Session) error
	UpdateProfile(ctx context.Context, sess *session.Session, req *domain.ProfileUpdate) (*domain.UserInfo, error)
	ChangePassword(ctx context.Context, sess *session.Session, req *domain.ChangePasswordRequest) error
}

type authService struct {
	userRepo      repository.UserRepository
	rateLimitRepo repository.RateLimitRepository
	sessions      *session.Manager
	metrics       MetricsRecorder
	config        *config.Config
}

func NewAuthService(
	userRepo repository.UserRepository,
	rateLimitRepo repository.RateLimitRepository,
	sessions *session.Manager,
	metrics MetricsRecorder,
	config *config.Config,
) AuthService {
	return &authService{
		userRepo:      userRepo,
		rateLimitRepo: rateLimitRepo,
		sessions:      sessions,
		metrics:       recorderOrNoop(metrics),
		config:        config,
	}
}

// dummyHash is compared against when the email is unknown so both failure
// paths cost one argon2id verification.
var dummyHash, _ = argon2id.CreateHash("not-a-real-password", argon2id.DefaultParams)

func (s *authService) Login(ctx context.Context, req *domain.LoginRequest, clientIP string) (*domain.LoginResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := s.checkRateLimit(ctx, req.Email, clientIP); err != nil {
		s.metrics.RecordLogin("rate_limited")
		return nil, err
	}

	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	hash := dummyHash
	if user != nil {
		hash = user.PasswordHash
	}
	valid, err := argon2id.ComparePasswordAndHash(req.Password, hash)
	if err != nil {
		logger.WarnContext(ctx, "Stored password hash is unreadable", "error", err)
		valid = false
	}
	if user == nil || !valid {
		s.metrics.RecordLogin("invalid_credentials")
		return nil, domain.ErrInvalidCredentials
	}

	sess, err := s.sessions.Create(ctx, user)
	if err != nil {
		return nil, err
	}

	token, err := auth.NewSessionToken(user.ID, user.Email, string(user.Role), sess.ID, s.config.Auth.JWTSecret, s.sessions.TTL())
	if err != nil {
		return nil, fmt.Errorf("failed to create session token: %w", err)
	}

	if s.rateLimitRepo != nil {
		if err := s.rateLimitRepo.Reset(ctx, "login:email:"+req.Email); err != nil {
			logger.WarnContext(ctx, "Failed to reset login rate limit", "error", err)
		}
	}

	s.metrics.RecordLogin("success")
	logger.InfoContext(ctx, "User logged in", "user_id", user.ID, "role", user.Role)

	return &domain.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.sessions.TTL().Seconds()),
		User:        user.ToUserInfo(),
	}, nil
}

func (s *authService) checkRateLimit(ctx context.Context, email, clientIP string) error {
	if s.rateLimitRepo == nil || s.config.Auth.LoginRateLimit <= 0 {
		return nil
	}
	window := s.config.Auth.LoginRateWindow
	limit := s.config.Auth.LoginRateLimit

	for _, key := range []string{"login:ip:" + clientIP, "login:email:" + email} {
		allowed, err := s.rateLimitRepo.CheckRateLimit(ctx, key, limit, window)
		if err != nil {
			logger.WarnContext(ctx, "Rate limit check failed", "error", err)
			continue
		}
		if !allowed {
			return domain.ErrRateLimited
		}
	}
	return nil
}

func (s *authService) Resume(ctx context.Context, token string) (*session.Session, error) {
	claims, err := auth.Parse(token, s.config.Auth.JWTSecret)
	if err != nil || claims.Role == auth.RoleKiosk {
		return nil, domain.ErrUnauthenticated
	}
	sess, err := s.sessions.Resume(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID() != claims.Sub {
		return nil, domain.ErrUnauthenticated
	}

	// Role and profile come from the store on every request so that admin
	// changes and deletions apply to sessions that are already open.
	user, err := s.userRepo.FindByID(ctx, sess.UserID())
	if errors.Is(err, domain.ErrNotFound) {
		if err := s.sessions.Destroy(ctx, sess.ID); err != nil {
			logger.WarnContext(ctx, "Failed to destroy session of deleted user", "error", err)
		}
		return nil, domain.ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session user: %w", err)
	}
	sess.User = *user.ToUserInfo()
	return sess, nil
}

func (s *authService) Logout(ctx context.Context, sess *session.Session) error {
	if err := s.sessions.Destroy(ctx, sess.ID); err != nil {
		return err
	}
	logger.InfoContext(ctx, "User logged out", "user_id", sess.UserID())
	return nil
}

func (s *authService) UpdateProfile(ctx context.Context, sess *session.Session, req *domain.ProfileUpdate) (*domain.UserInfo, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, sess.UserID())
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	req.Apply(user)

	updated, err := s.userRepo.Update(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	if _, err := s.sessions.Refresh(ctx, sess, updated); err != nil {
		logger.WarnContext(ctx, "Failed to refresh session after profile update", "error", err)
	}
	return updated.ToUserInfo(), nil
}

func (s *authService) ChangePassword(ctx context.Context, sess *session.Session, req *domain.ChangePasswordRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	user, err := s.userRepo.FindByID(ctx, sess.UserID())
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	valid, err := argon2id.ComparePasswordAndHash(req.CurrentPassword, user.PasswordHash)
	if err != nil || !valid {
		return domain.NewValidationError("current_password", "is incorrect")
	}

	hash, err := argon2id.CreateHash(req.NewPassword, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.userRepo.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	logger.InfoContext(ctx, "Password changed", "user_id", user.ID)
	return nil
}
