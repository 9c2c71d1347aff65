package service

import (
	"context"
	"fmt"

	"github.com/alexedwards/argon2id"

	"github.com/diagnosis/visitor-management/internal/domain"
	"github.com/diagnosis/visitor-management/internal/repository"
	"github.com/diagnosis/visitor-management/internal/session"
	"github.com/diagnosis/visitor-management/pkg/logger"
)

type UserService interface {
	ListUsers(ctx context.Context, sess *session.Session) ([]domain.UserInfo, error)
	GetUser(ctx context.Context, sess *session.Session, id string) (*domain.UserInfo, error)
	CreateUser(ctx context.Context, sess *session.Session, req *domain.CreateUserRequest) (*domain.UserInfo, error)
	UpdateUser(ctx context.Context, sess *session.Session, id string, req *domain.UpdateUserRequest) (*domain.UserInfo, error)
	DeleteUser(ctx context.Context, sess *session.Session, id string) error
	// ListHosts returns everyone who can receive visitors, for selection lists.
	ListHosts(ctx context.Context) ([]domain.HostInfo, error)
	// EnsureAdmin creates the first administrator when no users exist yet.
	EnsureAdmin(ctx context.Context, name, email, password string) error
}

type userService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

func (s *userService) ListUsers(ctx context.Context, sess *session.Session) ([]domain.UserInfo, error) {
	if !sess.CanManageUsers() {
		return nil, domain.ErrForbidden
	}
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	out := make([]domain.UserInfo, 0, len(users))
	for i := range users {
		out = append(out, *users[i].ToUserInfo())
	}
	return out, nil
}

func (s *userService) GetUser(ctx context.Context, sess *session.Session, id string) (*domain.UserInfo, error) {
	if !sess.CanManageUsers() && sess.UserID() != id {
		return nil, domain.ErrForbidden
	}
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user.ToUserInfo(), nil
}

func (s *userService) CreateUser(ctx context.Context, sess *session.Session, req *domain.CreateUserRequest) (*domain.UserInfo, error) {
	if !sess.CanManageUsers() {
		return nil, domain.ErrForbidden
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.create(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "User created", "user_id", user.ID, "role", user.Role, "by", sess.UserID())
	return user.ToUserInfo(), nil
}

func (s *userService) create(ctx context.Context, req *domain.CreateUserRequest) (*domain.User, error) {
	hash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	role, _ := domain.ParseRole(req.Role)

	user, err := s.userRepo.Create(ctx, &domain.User{
		Name:                 req.Name,
		Email:                req.Email,
		Role:                 role,
		Department:           req.Department,
		Avatar:               req.Avatar,
		NotificationsEnabled: true,
		PasswordHash:         hash,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (s *userService) UpdateUser(ctx context.Context, sess *session.Session, id string, req *domain.UpdateUserRequest) (*domain.UserInfo, error) {
	if !sess.CanManageUsers() {
		return nil, domain.ErrForbidden
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if id == sess.UserID() && req.Role != nil {
		if role, _ := domain.ParseRole(*req.Role); role != domain.RoleAdmin {
			return nil, domain.NewValidationError("role", "administrators cannot demote themselves")
		}
	}

	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	req.Apply(user)

	updated, err := s.userRepo.Update(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return updated.ToUserInfo(), nil
}

func (s *userService) DeleteUser(ctx context.Context, sess *session.Session, id string) error {
	if !sess.CanManageUsers() {
		return domain.ErrForbidden
	}
	if id == sess.UserID() {
		return domain.NewValidationError("id", "administrators cannot delete themselves")
	}
	if err := s.userRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	logger.InfoContext(ctx, "User deleted", "user_id", id, "by", sess.UserID())
	return nil
}

func (s *userService) ListHosts(ctx context.Context) ([]domain.HostInfo, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	hosts := make([]domain.HostInfo, 0, len(users))
	for i := range users {
		if users[i].Role == domain.RoleSecurity {
			continue
		}
		hosts = append(hosts, users[i].ToHostInfo())
	}
	return hosts, nil
}

func (s *userService) EnsureAdmin(ctx context.Context, name, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	if len(users) > 0 {
		return nil
	}

	req := &domain.CreateUserRequest{Name: name, Email: email, Password: password, Role: string(domain.RoleAdmin)}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid bootstrap admin: %w", err)
	}
	user, err := s.create(ctx, req)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "Bootstrap administrator created", "user_id", user.ID)
	return nil
}
