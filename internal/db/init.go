// Package db opens the optional PostgreSQL directory source and makes sure
// its read-only schema exists.
package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS directory_groups (
    position SERIAL PRIMARY KEY,
    gid BIGINT NOT NULL,
    name TEXT NOT NULL,
    members TEXT[] NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS directory_credentials (
    login TEXT PRIMARY KEY,
    password TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS directory_profiles (
    login TEXT PRIMARY KEY,
    uid BIGINT NOT NULL,
    primary_group_name TEXT NOT NULL,
    primary_gid BIGINT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    surname TEXT NOT NULL DEFAULT '',
    home TEXT NOT NULL,
    shell TEXT NOT NULL DEFAULT '/bin/bash',
    password_expire TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS directory_profile_groups (
    login TEXT NOT NULL REFERENCES directory_profiles(login) ON DELETE CASCADE,
    position INT NOT NULL,
    name TEXT NOT NULL,
    gid BIGINT NOT NULL,
    PRIMARY KEY (login, position)
);
`

// InitPostgres opens and pings the database at dsn and ensures the schema.
// The caller owns the returned handle.
func InitPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := EnsureSchema(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// EnsureSchema creates the directory tables when they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
