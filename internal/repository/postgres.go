package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atinyakov/gvagate/internal/models"
	"github.com/lib/pq"
)

const (
	selectGroups = `
		SELECT gid, name, members FROM directory_groups ORDER BY position`
	selectCredentials = `
		SELECT login, password FROM directory_credentials`
	selectProfiles = `
		SELECT login, uid, primary_group_name, primary_gid, name, surname, home, shell, password_expire
		  FROM directory_profiles`
	selectProfileGroups = `
		SELECT login, name, gid FROM directory_profile_groups ORDER BY login, position`
)

// LoadPostgresSnapshot reads the whole directory from PostgreSQL once.
// The tables are only read; the returned Snapshot has no machine token,
// which comes from the seed or configuration.
//
//	ctx: context for cancellation and deadlines
//	db:  connection created by db.InitPostgres
func LoadPostgresSnapshot(ctx context.Context, db *sql.DB) (*Snapshot, error) {
	snap := &Snapshot{
		Groups:      []models.GroupRecord{},
		Credentials: map[string]string{},
		Profiles:    map[string]models.UserProfile{},
	}

	if err := loadGroups(ctx, db, snap); err != nil {
		return nil, err
	}
	if err := loadCredentials(ctx, db, snap); err != nil {
		return nil, err
	}
	if err := loadProfiles(ctx, db, snap); err != nil {
		return nil, err
	}
	if err := loadProfileGroups(ctx, db, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func loadGroups(ctx context.Context, db *sql.DB, snap *Snapshot) error {
	rows, err := db.QueryContext(ctx, selectGroups)
	if err != nil {
		return fmt.Errorf("load groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var g models.GroupRecord
		var members []string
		if err := rows.Scan(&g.GID, &g.Name, pq.Array(&members)); err != nil {
			return fmt.Errorf("scan group: %w", err)
		}
		if members == nil {
			members = []string{}
		}
		g.Members = members
		snap.Groups = append(snap.Groups, g)
	}
	return rows.Err()
}

func loadCredentials(ctx context.Context, db *sql.DB, snap *Snapshot) error {
	rows, err := db.QueryContext(ctx, selectCredentials)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var login, password string
		if err := rows.Scan(&login, &password); err != nil {
			return fmt.Errorf("scan credential: %w", err)
		}
		// A blank password would match an absent request parameter.
		if password == "" {
			continue
		}
		snap.Credentials[login] = password
	}
	return rows.Err()
}

func loadProfiles(ctx context.Context, db *sql.DB, snap *Snapshot) error {
	rows, err := db.QueryContext(ctx, selectProfiles)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.UserProfile
		if err := rows.Scan(
			&p.Login, &p.UID,
			&p.PrimaryGroup.Name, &p.PrimaryGroup.GID,
			&p.Name, &p.Surname, &p.Home, &p.Shell, &p.PasswordExpire,
		); err != nil {
			return fmt.Errorf("scan profile: %w", err)
		}
		if p.Shell == "" {
			p.Shell = models.DefaultShell
		}
		p.Groups = models.GroupRefs{}
		snap.Profiles[p.Login] = p
	}
	return rows.Err()
}

func loadProfileGroups(ctx context.Context, db *sql.DB, snap *Snapshot) error {
	rows, err := db.QueryContext(ctx, selectProfileGroups)
	if err != nil {
		return fmt.Errorf("load profile groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var login string
		var ref models.GroupRef
		if err := rows.Scan(&login, &ref.Name, &ref.GID); err != nil {
			return fmt.Errorf("scan profile group: %w", err)
		}
		p, ok := snap.Profiles[login]
		if !ok {
			// membership rows for a login without a profile are ignored
			continue
		}
		p.Groups = append(p.Groups, ref)
		snap.Profiles[login] = p
	}
	return rows.Err()
}
