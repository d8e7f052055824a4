package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS vaccines (
		name  TEXT PRIMARY KEY,
		doses INTEGER NOT NULL CHECK (doses >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS availabilities (
		caregiver_username TEXT NOT NULL,
		available_on       DATE NOT NULL,
		PRIMARY KEY (caregiver_username, available_on)
	)`,
	`CREATE SEQUENCE IF NOT EXISTS appointment_ids`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id                 BIGINT PRIMARY KEY,
		appointment_date   DATE NOT NULL,
		caregiver_username TEXT NOT NULL,
		patient_username   TEXT NOT NULL,
		vaccine_name       TEXT NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_patient
		ON appointments (patient_username)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_caregiver
		ON appointments (caregiver_username)`,
}

// EnsureSchema applies the schema idempotently so every binary can run
// against a fresh database.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
