package postgres

import (
	"context"
	"fmt"
)

// schema is applied idempotently at startup. Dates and coordinates are
// stored in their normalized forms so the diff engine compares like with
// like.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS change_sources (
		id           UUID PRIMARY KEY,
		type         TEXT NOT NULL CHECK (type IN ('BULK_UPLOAD', 'COMMUNITY_SUBMISSION', 'ROLLBACK', 'MANUAL')),
		principal_id TEXT NOT NULL,
		description  TEXT NOT NULL DEFAULT '',
		rollback_of  UUID UNIQUE REFERENCES change_sources (id),
		upload       JSONB,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS persons (
		id                    UUID PRIMARY KEY,
		external_id           TEXT NOT NULL UNIQUE,
		name                  TEXT,
		name_english          TEXT,
		gender                TEXT,
		date_of_birth         TEXT,
		date_of_death         TEXT,
		location_of_death     TEXT,
		location_of_death_lat DOUBLE PRECISION,
		location_of_death_lng DOUBLE PRECISION,
		photo_url_thumb       TEXT,
		photo_url_original    TEXT,
		current_version       INTEGER NOT NULL CHECK (current_version >= 1),
		is_deleted            BOOLEAN NOT NULL DEFAULT false,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK ((location_of_death_lat IS NULL) = (location_of_death_lng IS NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS person_versions (
		id               UUID PRIMARY KEY,
		person_id        UUID NOT NULL REFERENCES persons (id),
		version_number   INTEGER NOT NULL CHECK (version_number >= 1),
		change_type      TEXT NOT NULL CHECK (change_type IN ('INSERT', 'UPDATE', 'DELETE')),
		snapshot         JSONB NOT NULL,
		change_source_id UUID NOT NULL REFERENCES change_sources (id),
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (person_id, version_number)
	)`,
	`CREATE INDEX IF NOT EXISTS person_versions_source_idx ON person_versions (change_source_id)`,
	`CREATE TABLE IF NOT EXISTS submissions (
		id                UUID PRIMARY KEY,
		person_id         UUID NOT NULL REFERENCES persons (id),
		base_version_id   UUID NOT NULL REFERENCES person_versions (id),
		proposed          JSONB NOT NULL,
		status            TEXT NOT NULL CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED')),
		submitter_id      TEXT NOT NULL,
		reason            TEXT NOT NULL DEFAULT '',
		decided_by        TEXT NOT NULL DEFAULT '',
		decided_at        TIMESTAMPTZ,
		decision_note     TEXT NOT NULL DEFAULT '',
		applied_source_id UUID REFERENCES change_sources (id),
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS submissions_status_idx ON submissions (status, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id               UUID PRIMARY KEY,
		action           TEXT NOT NULL,
		severity         TEXT NOT NULL,
		principal_id     TEXT NOT NULL,
		role             TEXT NOT NULL,
		resource_type    TEXT NOT NULL,
		resource_id      TEXT NOT NULL,
		change_source_id UUID,
		rows_affected    INTEGER NOT NULL DEFAULT 0,
		ip_address       TEXT NOT NULL DEFAULT '',
		user_agent       TEXT NOT NULL DEFAULT '',
		metadata         JSONB,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS audit_log_created_idx ON audit_log (created_at DESC)`,
}

// EnsureSchema creates the registry tables if they do not exist.
func EnsureSchema(ctx context.Context, db DBTX) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
