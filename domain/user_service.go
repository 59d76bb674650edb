package domain

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var allowedRoles = map[Role]struct{}{
	RoleAdmin:      {},
	RoleSupervisor: {},
	RoleTechnician: {},
	RoleOperator:   {},
}

// ValidateRoles requires a non-empty set drawn from the allowed roles.
func ValidateRoles(roles []Role) error {
	if len(roles) == 0 {
		return fmt.Errorf("roles must not be empty: %w", ErrValidation)
	}
	for _, r := range roles {
		if _, ok := allowedRoles[r]; !ok {
			return fmt.Errorf("role %q not allowed: %w", r, ErrValidation)
		}
	}
	return nil
}

type UserService struct {
	users UserStore
}

func NewUserService(users UserStore) *UserService { return &UserService{users: users} }

// Save validates and stores the user, assigning an id to new users.
func (s *UserService) Save(ctx context.Context, u User) (User, error) {
	if strings.TrimSpace(u.Username) == "" {
		return User{}, fmt.Errorf("username: %w", ErrValidation)
	}
	if err := ValidateRoles(u.Roles); err != nil {
		return User{}, err
	}
	seen := make(map[Role]struct{}, len(u.Roles))
	roles := u.Roles[:0:0]
	for _, r := range u.Roles {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		roles = append(roles, r)
	}
	u.Roles = roles
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if err := s.users.SaveUser(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *UserService) Get(ctx context.Context, id string) (User, error) {
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if u == nil {
		return User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return *u, nil
}
