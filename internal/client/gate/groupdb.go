package gate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/atinyakov/gvagate/internal/models"
)

const (
	// Magic marks files written by GroupDB.
	Magic = "GVA-GATE"
	// DefaultDBPath is where the CLI keeps its group database.
	DefaultDBPath = "/tmp/gvagate.db"
)

var (
	// ErrBadMagic is returned when the file was not written by GroupDB.
	ErrBadMagic = errors.New("not a gate database")
	// ErrGroupNotFound is returned by the lookups.
	ErrGroupNotFound = errors.New("group not found")
)

type dbFile struct {
	Magic     string               `json:"magic"`
	UpdatedAt time.Time            `json:"updated_at"`
	Groups    []models.GroupRecord `json:"groups"`
}

// GroupDB is a local copy of the service's group list. The in-process
// state is guarded by a mutex, the file by flock.
type GroupDB struct {
	path string

	mu        sync.RWMutex
	groups    []models.GroupRecord
	updatedAt time.Time
}

// NewGroupDB returns an empty database bound to path.
func NewGroupDB(path string) *GroupDB {
	return &GroupDB{path: path}
}

// Path returns the backing file path.
func (db *GroupDB) Path() string {
	return db.path
}

// Exists reports whether the backing file is present.
func (db *GroupDB) Exists() bool {
	_, err := os.Stat(db.path)
	return err == nil
}

// Load reads the file under a shared lock. A missing or zero-length file
// leaves the database empty and is not an error; Save creates the file
// before it holds the exclusive lock.
func (db *GroupDB) Load() error {
	f, err := os.Open(db.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			db.mu.Lock()
			db.groups, db.updatedAt = nil, time.Time{}
			db.mu.Unlock()
			return nil
		}
		return err
	}
	defer f.Close()

	if err := lockShared(f); err != nil {
		return fmt.Errorf("lock %s: %w", db.path, err)
	}
	defer func() { _ = unlock(f) }()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		db.mu.Lock()
		db.groups, db.updatedAt = nil, time.Time{}
		db.mu.Unlock()
		return nil
	}

	var content dbFile
	if err := json.NewDecoder(f).Decode(&content); err != nil {
		return fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if content.Magic != Magic {
		return ErrBadMagic
	}

	db.mu.Lock()
	db.groups = content.Groups
	db.updatedAt = content.UpdatedAt
	db.mu.Unlock()
	return nil
}

// Save rewrites the file in place under an exclusive lock.
func (db *GroupDB) Save() error {
	db.mu.RLock()
	content := dbFile{Magic: Magic, UpdatedAt: db.updatedAt, Groups: db.groups}
	data, err := json.Marshal(content)
	db.mu.RUnlock()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(db.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := lockExclusive(f); err != nil {
		return fmt.Errorf("lock %s: %w", db.path, err)
	}
	defer func() { _ = unlock(f) }()

	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		return err
	}
	return f.Sync()
}

// Replace swaps the group list and stamps the update time.
func (db *GroupDB) Replace(groups []models.GroupRecord) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.groups = models.CloneGroups(groups)
	db.updatedAt = time.Now().UTC()
}

// UpdatedAt returns when the list was last replaced.
func (db *GroupDB) UpdatedAt() time.Time {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.updatedAt
}

// Enumerate returns a copy of every group, in service order.
func (db *GroupDB) Enumerate() []models.GroupRecord {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return models.CloneGroups(db.groups)
}

// LookupGID returns the first group with the given gid.
func (db *GroupDB) LookupGID(gid int64) (models.GroupRecord, error) {
	return db.find(func(g models.GroupRecord) bool { return g.GID == gid })
}

// LookupName returns the first group with the given name.
func (db *GroupDB) LookupName(name string) (models.GroupRecord, error) {
	return db.find(func(g models.GroupRecord) bool { return g.Name == name })
}

func (db *GroupDB) find(match func(models.GroupRecord) bool) (models.GroupRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, g := range db.groups {
		if match(g) {
			return models.CloneGroups([]models.GroupRecord{g})[0], nil
		}
	}
	return models.GroupRecord{}, ErrGroupNotFound
}
