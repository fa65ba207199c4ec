package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// RunMigrations creates the schema if it does not exist yet
func RunMigrations(ctx context.Context, db *sqlx.DB, logger *logrus.Logger) error {
	logger.Info("Running database migrations...")

	migrations := []string{
		createExtensions,
		createExcursionsTable,
		createRegionsTable,
		createPickupPointsTable,
		createWindowsTable,
		createDayCapacitiesTable,
		createBookingsTable,
		createAgentsTable,
		createReferralCodesTable,
		createDispatchGroupsTable,
		createDispatchGroupBookingsTable,
		createIndexes,
	}

	for i, migration := range migrations {
		logger.WithField("step", i+1).Debug("Running migration")
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	logger.Info("All migrations completed successfully")
	return nil
}

const createExtensions = `CREATE EXTENSION IF NOT EXISTS "pgcrypto";`

const createExcursionsTable = `
CREATE TABLE IF NOT EXISTS excursions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name VARCHAR(255) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'inactive' CHECK (status IN ('active', 'inactive')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createRegionsTable = `
CREATE TABLE IF NOT EXISTS regions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name VARCHAR(255) NOT NULL
);`

const createPickupPointsTable = `
CREATE TABLE IF NOT EXISTS pickup_points (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    region_id UUID NOT NULL REFERENCES regions(id),
    name VARCHAR(255) NOT NULL
);`

const createWindowsTable = `
CREATE TABLE IF NOT EXISTS availability_windows (
    id UUID PRIMARY KEY,
    excursion_id UUID NOT NULL REFERENCES excursions(id),
    start_date DATE NOT NULL,
    end_date DATE NOT NULL,
    weekdays TEXT[] NOT NULL DEFAULT '{}',
    region_ids UUID[] NOT NULL DEFAULT '{}',
    pickup_point_ids UUID[] NOT NULL DEFAULT '{}',
    start_time VARCHAR(8),
    max_guests INTEGER NOT NULL CHECK (max_guests > 0),
    adult_price NUMERIC(12,2) NOT NULL DEFAULT 0,
    child_price NUMERIC(12,2) NOT NULL DEFAULT 0,
    infant_price NUMERIC(12,2) NOT NULL DEFAULT 0,
    discount_percent NUMERIC(5,2) NOT NULL DEFAULT 0,
    status VARCHAR(20) NOT NULL CHECK (status IN ('active', 'inactive')),
    booked_guests INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (end_date >= start_date)
);`

const createDayCapacitiesTable = `
CREATE TABLE IF NOT EXISTS day_capacities (
    id UUID PRIMARY KEY,
    window_id UUID NOT NULL REFERENCES availability_windows(id) ON DELETE CASCADE,
    date DATE NOT NULL,
    capacity INTEGER NOT NULL,
    booked_guests INTEGER NOT NULL DEFAULT 0 CHECK (booked_guests >= 0),
    status VARCHAR(20) NOT NULL CHECK (status IN ('active', 'inactive')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (window_id, date)
);`

const createBookingsTable = `
CREATE TABLE IF NOT EXISTS bookings (
    id UUID PRIMARY KEY,
    window_id UUID NOT NULL REFERENCES availability_windows(id) ON DELETE RESTRICT,
    excursion_id UUID NOT NULL REFERENCES excursions(id),
    tour_date DATE NOT NULL,
    start_time VARCHAR(8),
    pickup_point_id UUID NOT NULL,
    adult_count INTEGER NOT NULL DEFAULT 0 CHECK (adult_count >= 0),
    child_count INTEGER NOT NULL DEFAULT 0 CHECK (child_count >= 0),
    infant_count INTEGER NOT NULL DEFAULT 0 CHECK (infant_count >= 0),
    base_price NUMERIC(12,2) NOT NULL,
    referral_code VARCHAR(64),
    discount_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
    partial_paid NUMERIC(12,2),
    partial_payment_method VARCHAR(50),
    total_price NUMERIC(12,2) NOT NULL,
    payment_status VARCHAR(20) NOT NULL CHECK (payment_status IN ('pending', 'completed', 'cancelled', 'expired')),
    payment_reference VARCHAR(255),
    reservation_id VARCHAR(255),
    user_id UUID,
    guest_name VARCHAR(255),
    guest_email VARCHAR(255),
    channel VARCHAR(20) NOT NULL DEFAULT 'unknown',
    paid_at TIMESTAMPTZ,
    cancelled_at TIMESTAMPTZ,
    expired_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (adult_count + child_count + infant_count > 0)
);`

const createAgentsTable = `
CREATE TABLE IF NOT EXISTS agents (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name VARCHAR(255) NOT NULL,
    email VARCHAR(255),
    status VARCHAR(20) NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'inactive')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createReferralCodesTable = `
CREATE TABLE IF NOT EXISTS referral_codes (
    id UUID PRIMARY KEY,
    code VARCHAR(64) NOT NULL UNIQUE,
    agent_id UUID NOT NULL REFERENCES agents(id),
    discount_percent NUMERIC(5,2) NOT NULL CHECK (discount_percent > 0 AND discount_percent <= 100),
    expires_at TIMESTAMPTZ NOT NULL,
    status VARCHAR(20) NOT NULL CHECK (status IN ('active', 'inactive')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createDispatchGroupsTable = `
CREATE TABLE IF NOT EXISTS transport_dispatch_groups (
    id UUID PRIMARY KEY,
    excursion_id UUID NOT NULL REFERENCES excursions(id),
    tour_date DATE NOT NULL,
    status VARCHAR(20) NOT NULL CHECK (status IN ('draft', 'sent')),
    notes TEXT,
    sent_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createDispatchGroupBookingsTable = `
CREATE TABLE IF NOT EXISTS transport_dispatch_group_bookings (
    group_id UUID NOT NULL REFERENCES transport_dispatch_groups(id) ON DELETE CASCADE,
    booking_id UUID NOT NULL REFERENCES bookings(id),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (group_id, booking_id)
);`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_windows_excursion_status ON availability_windows (excursion_id, status);
CREATE INDEX IF NOT EXISTS idx_windows_end_date ON availability_windows (end_date) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_days_date_status ON day_capacities (date, status);
CREATE INDEX IF NOT EXISTS idx_bookings_window_date ON bookings (window_id, tour_date);
CREATE INDEX IF NOT EXISTS idx_bookings_pending_date ON bookings (tour_date) WHERE payment_status = 'pending';
CREATE INDEX IF NOT EXISTS idx_referral_codes_agent ON referral_codes (agent_id);
CREATE INDEX IF NOT EXISTS idx_dispatch_groups_excursion_date ON transport_dispatch_groups (excursion_id, tour_date, status);`
