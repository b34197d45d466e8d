// Package repository provides the read-only directory data sources:
// an immutable in-memory store built from a YAML seed or a PostgreSQL
// snapshot.
package repository

import (
	"context"
	"errors"

	"github.com/atinyakov/gvagate/internal/models"
)

// ErrNotFound is returned when a login has no credential or profile entry.
var ErrNotFound = errors.New("not found")

// Snapshot is the full directory content loaded at startup.
type Snapshot struct {
	// Groups is the ordered list served by ListGroups.
	Groups []models.GroupRecord
	// Credentials maps login to plaintext password.
	Credentials map[string]string
	// Profiles maps login to its directory profile.
	Profiles map[string]models.UserProfile
	// MachineToken is the constant token returned on authentication.
	MachineToken string
}

// MemoryDirectoryRepository serves a Snapshot from memory. It is never
// mutated after construction, so concurrent readers need no locking.
type MemoryDirectoryRepository struct {
	groups      []models.GroupRecord
	credentials map[string]string
	profiles    map[string]models.UserProfile
	token       string
}

// NewMemoryDirectoryRepository deep-copies snap into a new repository.
func NewMemoryDirectoryRepository(snap *Snapshot) *MemoryDirectoryRepository {
	r := &MemoryDirectoryRepository{
		groups:      models.CloneGroups(snap.Groups),
		credentials: make(map[string]string, len(snap.Credentials)),
		profiles:    make(map[string]models.UserProfile, len(snap.Profiles)),
		token:       snap.MachineToken,
	}
	if r.groups == nil {
		r.groups = []models.GroupRecord{}
	}
	for login, pw := range snap.Credentials {
		r.credentials[login] = pw
	}
	for login, p := range snap.Profiles {
		r.profiles[login] = p.Clone()
	}
	return r
}

// Groups returns a copy of the group list in configured order.
func (r *MemoryDirectoryRepository) Groups(_ context.Context) ([]models.GroupRecord, error) {
	return models.CloneGroups(r.groups), nil
}

// Password returns the stored password for login, or ErrNotFound.
func (r *MemoryDirectoryRepository) Password(_ context.Context, login string) (string, error) {
	pw, ok := r.credentials[login]
	if !ok {
		return "", ErrNotFound
	}
	return pw, nil
}

// Profile returns the profile stored for login, or ErrNotFound.
func (r *MemoryDirectoryRepository) Profile(_ context.Context, login string) (*models.UserProfile, error) {
	p, ok := r.profiles[login]
	if !ok {
		return nil, ErrNotFound
	}
	c := p.Clone()
	return &c, nil
}

// MachineToken returns the configured token.
func (r *MemoryDirectoryRepository) MachineToken() string {
	return r.token
}
