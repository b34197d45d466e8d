package repository

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/atinyakov/gvagate/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed seed/default.yaml
var defaultSeed []byte

// seedFile mirrors the YAML layout of a seed document.
type seedFile struct {
	MachineToken string               `yaml:"machine_token"`
	Groups       []models.GroupRecord `yaml:"groups"`
	Users        []seedUser           `yaml:"users"`
}

type seedUser struct {
	Login    string       `yaml:"login"`
	Password string       `yaml:"password"`
	Profile  *seedProfile `yaml:"profile"`
}

type seedProfile struct {
	UID            int64             `yaml:"uid"`
	PrimaryGroup   models.GroupRef   `yaml:"primary_group"`
	Groups         []models.GroupRef `yaml:"groups"`
	Name           string            `yaml:"name"`
	Surname        string            `yaml:"surname"`
	Home           string            `yaml:"home"`
	Shell          string            `yaml:"shell"`
	PasswordExpire string            `yaml:"password_expire"`
}

// DefaultSnapshot returns the built-in directory.
func DefaultSnapshot() (*Snapshot, error) {
	return ParseSeed(bytes.NewReader(defaultSeed))
}

// LoadSeed reads a YAML seed document from path.
func LoadSeed(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()

	snap, err := ParseSeed(f)
	if err != nil {
		return nil, fmt.Errorf("seed %s: %w", path, err)
	}
	return snap, nil
}

// ParseSeed decodes and validates a YAML seed document.
// A user without a profile is accepted; authenticating it fails later.
func ParseSeed(r io.Reader) (*Snapshot, error) {
	var sf seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	snap := &Snapshot{
		Groups:       make([]models.GroupRecord, 0, len(sf.Groups)),
		Credentials:  make(map[string]string, len(sf.Users)),
		Profiles:     make(map[string]models.UserProfile, len(sf.Users)),
		MachineToken: sf.MachineToken,
	}

	for _, g := range sf.Groups {
		if g.Name == "" {
			return nil, fmt.Errorf("group %d: empty name", g.GID)
		}
		if g.Members == nil {
			g.Members = []string{}
		}
		snap.Groups = append(snap.Groups, g)
	}

	for i, u := range sf.Users {
		if u.Login == "" {
			return nil, fmt.Errorf("user #%d: empty login", i+1)
		}
		if _, dup := snap.Credentials[u.Login]; dup {
			return nil, fmt.Errorf("user %q: duplicate login", u.Login)
		}
		if u.Password == "" {
			return nil, fmt.Errorf("user %q: empty password", u.Login)
		}
		snap.Credentials[u.Login] = u.Password

		if u.Profile == nil {
			continue
		}
		if u.Profile.Home == "" {
			return nil, fmt.Errorf("user %q: profile without home", u.Login)
		}
		shell := u.Profile.Shell
		if shell == "" {
			shell = models.DefaultShell
		}
		snap.Profiles[u.Login] = models.UserProfile{
			Login:          u.Login,
			UID:            u.Profile.UID,
			PrimaryGroup:   u.Profile.PrimaryGroup,
			Groups:         append(models.GroupRefs{}, u.Profile.Groups...),
			Name:           u.Profile.Name,
			Surname:        u.Profile.Surname,
			Home:           u.Profile.Home,
			Shell:          shell,
			PasswordExpire: u.Profile.PasswordExpire,
		}
	}

	return snap, nil
}
