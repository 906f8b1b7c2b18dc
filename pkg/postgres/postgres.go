package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/schatha/stamford-parking-system-sub001/config"
	"github.com/sirupsen/logrus"

	_ "github.com/lib/pq"
)

func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Successfully connected to PostgreSQL")
	return db, nil
}

// migrations are applied in order on every start and must stay idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS parking_zones (
		id SERIAL PRIMARY KEY,
		zone_number VARCHAR(32) UNIQUE NOT NULL,
		name VARCHAR(255) NOT NULL,
		location_type VARCHAR(16) NOT NULL DEFAULT 'STREET',
		hourly_rate NUMERIC(10,2) NOT NULL CHECK (hourly_rate > 0),
		max_duration_hours NUMERIC(6,2) NOT NULL CHECK (max_duration_hours > 0),
		address TEXT NOT NULL DEFAULT '',
		restrictions JSONB,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS vehicles (
		id SERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		license_plate VARCHAR(16) NOT NULL,
		nickname VARCHAR(64) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, license_plate)
	)`,

	`CREATE TABLE IF NOT EXISTS parking_sessions (
		id UUID PRIMARY KEY,
		user_id BIGINT NOT NULL,
		vehicle_id INTEGER NOT NULL REFERENCES vehicles(id),
		zone_id INTEGER NOT NULL REFERENCES parking_zones(id),
		start_time TIMESTAMPTZ NOT NULL,
		scheduled_end_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		duration_hours NUMERIC(6,2) NOT NULL CHECK (duration_hours > 0),
		actual_duration_hours NUMERIC(10,4),
		base_cost NUMERIC(10,2) NOT NULL CHECK (base_cost >= 0),
		tax_amount NUMERIC(10,2) NOT NULL CHECK (tax_amount >= 0),
		processing_fee NUMERIC(10,2) NOT NULL CHECK (processing_fee >= 0),
		total_cost NUMERIC(10,2) NOT NULL CHECK (total_cost >= 0),
		status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
		extended_from UUID REFERENCES parking_sessions(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id UUID PRIMARY KEY,
		session_id UUID NOT NULL REFERENCES parking_sessions(id),
		user_id BIGINT NOT NULL,
		kind VARCHAR(16) NOT NULL,
		amount NUMERIC(10,2) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
		external_ref VARCHAR(255),
		failure_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	// One non-terminal session per vehicle
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_parking_sessions_open_vehicle
		ON parking_sessions(vehicle_id) WHERE status IN ('PENDING', 'ACTIVE', 'EXTENDED')`,

	// Indexes
	`CREATE INDEX IF NOT EXISTS idx_parking_sessions_user_id ON parking_sessions(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_parking_sessions_zone_id ON parking_sessions(zone_id)`,
	`CREATE INDEX IF NOT EXISTS idx_parking_sessions_status_end ON parking_sessions(status, scheduled_end_time)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_session_id ON transactions(session_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_transactions_external_ref ON transactions(external_ref) WHERE external_ref IS NOT NULL`,
}

func RunMigrations(db *sql.DB) error {
	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %v", err)
		}
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}
