// Package models defines the core data structures for directory groups,
// credentials and user profiles.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DefaultShell is assigned to profiles that do not name a login shell.
const DefaultShell = "/bin/bash"

// GroupRecord is a named collection of member logins with a numeric gid.
type GroupRecord struct {
	// GID is the numeric group identifier.
	GID int64 `json:"gid" yaml:"gid"`
	// Name is the group name.
	Name string `json:"name" yaml:"name"`
	// Members lists member logins in their configured order.
	Members []string `json:"members" yaml:"members"`
}

// GroupRef names a group a user belongs to.
type GroupRef struct {
	Name string `yaml:"name"`
	GID  int64  `yaml:"gid"`
}

// GroupRefs is an ordered list of group references. On the wire it is a JSON
// object mapping group name to gid, keys kept in list order.
type GroupRefs []GroupRef

// MarshalJSON encodes refs as {"name": gid, ...} preserving order.
func (refs GroupRefs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ref := range refs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(ref.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		fmt.Fprintf(&buf, "%d", ref.GID)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a {"name": gid, ...} object keeping key order.
func (refs *GroupRefs) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*refs = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("group refs: expected object, got %v", tok)
	}

	out := GroupRefs{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("group refs: unexpected key %v", keyTok)
		}
		var gid json.Number
		if err := dec.Decode(&gid); err != nil {
			return fmt.Errorf("group refs: gid of %q: %w", name, err)
		}
		n, err := gid.Int64()
		if err != nil {
			return fmt.Errorf("group refs: gid of %q: %w", name, err)
		}
		out = append(out, GroupRef{Name: name, GID: n})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*refs = out
	return nil
}

// UserCredential pairs a login with its plaintext password.
type UserCredential struct {
	Login    string
	Password string
}

// UserProfile is the directory record returned on successful authentication.
type UserProfile struct {
	Login          string
	UID            int64
	PrimaryGroup   GroupRef
	Groups         GroupRefs
	Name           string
	Surname        string
	Home           string
	Shell          string
	PasswordExpire string
}

// CheckResult is the answer to a credential check. Group is only emitted on
// success, and then always, even when empty.
type CheckResult struct {
	User    string        `json:"user"`
	Success bool          `json:"success"`
	Group   []GroupRecord `json:"-"`
}

// MarshalJSON emits {"user","success"} and adds "group" when Success is set.
func (r CheckResult) MarshalJSON() ([]byte, error) {
	if !r.Success {
		return json.Marshal(struct {
			User    string `json:"user"`
			Success bool   `json:"success"`
		}{r.User, r.Success})
	}
	group := r.Group
	if group == nil {
		group = []GroupRecord{}
	}
	return json.Marshal(struct {
		User    string        `json:"user"`
		Success bool          `json:"success"`
		Group   []GroupRecord `json:"group"`
	}{r.User, r.Success, group})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *CheckResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		User    string        `json:"user"`
		Success bool          `json:"success"`
		Group   []GroupRecord `json:"group"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.User, r.Success, r.Group = raw.User, raw.Success, raw.Group
	return nil
}

// AuthUser is the profile-shaped payload of an authentication response.
type AuthUser struct {
	Login          string    `json:"login"`
	UID            int64     `json:"uid"`
	GID            GroupRefs `json:"gid"`
	Name           string    `json:"name"`
	Surname        string    `json:"surname"`
	Home           string    `json:"home"`
	Shell          string    `json:"shell"`
	PasswordExpire string    `json:"password_expire"`
	Groups         GroupRefs `json:"groups"`
}

// AuthResponse is the envelope returned by a successful authentication.
type AuthResponse struct {
	User         AuthUser `json:"user"`
	MachineToken string   `json:"machine_token"`
}

// NewAuthUser builds the wire payload for p.
func NewAuthUser(p UserProfile) AuthUser {
	groups := p.Groups
	if groups == nil {
		groups = GroupRefs{}
	}
	return AuthUser{
		Login:          p.Login,
		UID:            p.UID,
		GID:            GroupRefs{p.PrimaryGroup},
		Name:           p.Name,
		Surname:        p.Surname,
		Home:           p.Home,
		Shell:          p.Shell,
		PasswordExpire: p.PasswordExpire,
		Groups:         groups,
	}
}

// CloneGroups returns a deep copy of groups.
func CloneGroups(groups []GroupRecord) []GroupRecord {
	if groups == nil {
		return nil
	}
	out := make([]GroupRecord, len(groups))
	for i, g := range groups {
		out[i] = GroupRecord{GID: g.GID, Name: g.Name, Members: append([]string(nil), g.Members...)}
		if g.Members != nil && out[i].Members == nil {
			out[i].Members = []string{}
		}
	}
	return out
}

// Clone returns a deep copy of p.
func (p UserProfile) Clone() UserProfile {
	c := p
	if p.Groups != nil {
		c.Groups = append(GroupRefs{}, p.Groups...)
	}
	return c
}
