package db

import (
	"context"
	"database/sql"
	"fmt"
)

// currentSchemaVersion is the version created by initializeSchema
const currentSchemaVersion = 1

// RunMigrations executes all database migrations
func RunMigrations(ctx context.Context, db *DB) error {
	// Check if schema_version table exists
	var tableExists bool
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("failed to check schema_version table: %w", err)
	}

	if !tableExists {
		// First time initialization
		if err := initializeSchema(ctx, db); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		return nil
	}

	// Get current version
	var version int
	err = db.QueryRowContext(ctx, `
		SELECT version FROM schema_version
		ORDER BY version DESC LIMIT 1
	`).Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	if version < 1 || version > currentSchemaVersion {
		return fmt.Errorf("invalid schema version: %d", version)
	}

	return nil
}

// initializeSchema creates all tables for a new database
func initializeSchema(ctx context.Context, db *DB) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		schemaVersionTable,
		certificatesTable,
		certificatesIndexes,
		certificateNamesTable,
		certificateNamesIndexes,
		apiKeysTable,
		apiKeysIndexes,
		auditLogsTable,
		auditLogsIndexes,
	} {
		if err := execSQL(ctx, tx, stmt); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, currentSchemaVersion); err != nil {
		return err
	}

	return tx.Commit()
}

// execSQL executes a SQL statement
func execSQL(ctx context.Context, tx *sql.Tx, query string) error {
	_, err := tx.ExecContext(ctx, query)
	return err
}

// Schema definitions
const (
	schemaVersionTable = `
CREATE TABLE schema_version (
    version INTEGER NOT NULL,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	certificatesTable = `
CREATE TABLE certificates (
    id                  TEXT PRIMARY KEY,
    sha1                TEXT NOT NULL UNIQUE,
    sha256              TEXT NOT NULL UNIQUE,
    raw_base64          TEXT NOT NULL,
    not_before          DATETIME NOT NULL,
    not_after           DATETIME NOT NULL,
    is_expired          INTEGER NOT NULL DEFAULT 0,
    is_self_signed      INTEGER NOT NULL DEFAULT 0,
    basic_constraint_ca INTEGER NOT NULL DEFAULT 0,
    signature_algorithm TEXT NOT NULL DEFAULT '',
    document            TEXT NOT NULL,
    created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	certificatesIndexes = `
CREATE INDEX idx_certs_not_after ON certificates(not_after);
CREATE INDEX idx_certs_expired ON certificates(is_expired);
CREATE INDEX idx_certs_sigalg ON certificates(signature_algorithm, is_expired)`

	certificateNamesTable = `
CREATE TABLE certificate_names (
    cert_id TEXT NOT NULL,
    kind    TEXT NOT NULL,
    value   TEXT NOT NULL,

    PRIMARY KEY (cert_id, kind, value),
    FOREIGN KEY (cert_id) REFERENCES certificates(id) ON DELETE CASCADE
)`

	certificateNamesIndexes = `
CREATE INDEX idx_names_kind_value ON certificate_names(kind, value)`

	apiKeysTable = `
CREATE TABLE api_keys (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    name         TEXT NOT NULL UNIQUE,
    key_hash     TEXT NOT NULL UNIQUE,
    enabled      INTEGER NOT NULL DEFAULT 1,
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_used_at DATETIME
)`

	apiKeysIndexes = `
CREATE INDEX idx_api_keys_hash ON api_keys(key_hash)`

	auditLogsTable = `
CREATE TABLE audit_logs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    action      TEXT NOT NULL,
    key_name    TEXT,
    client_ip   TEXT NOT NULL,
    user_agent  TEXT,
    success     INTEGER NOT NULL,
    error_msg   TEXT,
    details     TEXT
)`

	auditLogsIndexes = `
CREATE INDEX idx_audit_timestamp ON audit_logs(timestamp);
CREATE INDEX idx_audit_action ON audit_logs(action);
CREATE INDEX idx_audit_key_name ON audit_logs(key_name)`
)
