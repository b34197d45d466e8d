// Package service provides the directory business logic: group listing,
// credential checks and authentication, delegating lookups to a
// DirectoryRepository.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/atinyakov/gvagate/internal/models"
	"github.com/atinyakov/gvagate/internal/repository"
)

// Authentication failure causes. Callers at the transport boundary are
// expected to collapse all of them into one unauthorized outcome.
var (
	ErrUnknownUser    = errors.New("unknown user")
	ErrWrongPassword  = errors.New("wrong password")
	ErrMissingProfile = errors.New("missing profile")
)

// DirectoryRepository defines the read-only lookups required by the
// directory service. Missing keys are reported as repository.ErrNotFound.
type DirectoryRepository interface {
	// Groups returns every group record in configured order.
	Groups(ctx context.Context) ([]models.GroupRecord, error)
	// Password returns the stored password for login.
	Password(ctx context.Context, login string) (string, error)
	// Profile returns the directory profile for login.
	Profile(ctx context.Context, login string) (*models.UserProfile, error)
}

// DirectoryService implements the mock directory operations.
type DirectoryService struct {
	repo  DirectoryRepository
	token string
}

// NewDirectoryService constructs a DirectoryService. token is returned
// verbatim in every successful authentication.
func NewDirectoryService(repo DirectoryRepository, token string) *DirectoryService {
	return &DirectoryService{repo: repo, token: token}
}

// ListGroups returns the full group list.
func (s *DirectoryService) ListGroups(ctx context.Context) ([]models.GroupRecord, error) {
	return s.repo.Groups(ctx)
}

// CheckCredential reports whether password matches the one stored for
// login. On success the full group list is attached, not the user's own
// groups. An unknown login is a plain failure, not an error.
func (s *DirectoryService) CheckCredential(ctx context.Context, login, password string) (models.CheckResult, error) {
	result := models.CheckResult{User: login}

	if err := s.verify(ctx, login, password); err != nil {
		if errors.Is(err, ErrUnknownUser) || errors.Is(err, ErrWrongPassword) {
			return result, nil
		}
		return result, err
	}

	groups, err := s.repo.Groups(ctx)
	if err != nil {
		return models.CheckResult{User: login}, err
	}
	result.Success = true
	result.Group = groups
	return result, nil
}

// Authenticate verifies the credentials and returns the profile envelope.
// It fails with ErrUnknownUser, ErrWrongPassword or ErrMissingProfile,
// or with a wrapped repository error.
func (s *DirectoryService) Authenticate(ctx context.Context, login, password string) (*models.AuthResponse, error) {
	if err := s.verify(ctx, login, password); err != nil {
		return nil, err
	}

	profile, err := s.repo.Profile(ctx, login)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrMissingProfile
	}
	if err != nil {
		return nil, fmt.Errorf("profile lookup: %w", err)
	}

	return &models.AuthResponse{
		User:         models.NewAuthUser(*profile),
		MachineToken: s.token,
	}, nil
}

func (s *DirectoryService) verify(ctx context.Context, login, password string) error {
	stored, err := s.repo.Password(ctx, login)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUnknownUser
	}
	if err != nil {
		return fmt.Errorf("credential lookup: %w", err)
	}
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(password)) != 1 {
		return ErrWrongPassword
	}
	return nil
}
