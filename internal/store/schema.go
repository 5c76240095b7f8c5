package store

import (
	"context"
	"database/sql"

	"github.com/juju/errors"
)

// schema holds every table, with the uniqueness rules pushed down into
// partial indexes.
const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id            TEXT PRIMARY KEY,
	email         TEXT UNIQUE NOT NULL,
	name          TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'student' CHECK (role IN ('student', 'admin')),
	roll_number   TEXT UNIQUE,
	mobile_number TEXT,
	otp_enabled   BOOLEAN NOT NULL DEFAULT FALSE,
	avatar_url    TEXT,
	password_hash TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	date        DATE NOT NULL,
	time        TEXT NOT NULL DEFAULT '',
	location    TEXT NOT NULL DEFAULT '',
	department  TEXT NOT NULL DEFAULT '',
	max_seats   INTEGER NOT NULL CHECK (max_seats >= 0),
	price       DOUBLE PRECISION NOT NULL DEFAULT 0,
	image_url   TEXT,
	created_by  TEXT REFERENCES profiles(id) ON DELETE SET NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS event_registrations (
	id                TEXT PRIMARY KEY,
	event_id          TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	user_id           TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	registration_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	payment_status    TEXT NOT NULL DEFAULT 'pending'
		CHECK (payment_status IN ('pending', 'completed', 'failed', 'refunded')),
	payment_id        TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_registration_active
	ON event_registrations(event_id, user_id)
	WHERE payment_status IN ('pending', 'completed');
CREATE INDEX IF NOT EXISTS idx_registration_user ON event_registrations(user_id);

CREATE TABLE IF NOT EXISTS attendance (
	id        TEXT PRIMARY KEY,
	event_id  TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	user_id   TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	marked_by TEXT REFERENCES profiles(id) ON DELETE SET NULL,
	qr_data   JSONB,
	marked_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (event_id, user_id)
);

CREATE TABLE IF NOT EXISTS food_stalls (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	image_url    TEXT,
	menu         JSONB NOT NULL DEFAULT '[]',
	location     TEXT,
	contact_info JSONB,
	is_active    BOOLEAN NOT NULL DEFAULT TRUE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS stall_reviews (
	id         TEXT PRIMARY KEY,
	stall_id   TEXT NOT NULL REFERENCES food_stalls(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	rating     INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
	comment    TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (stall_id, user_id)
);

CREATE TABLE IF NOT EXISTS payments (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	event_id       TEXT REFERENCES events(id) ON DELETE SET NULL,
	amount         DOUBLE PRECISION NOT NULL,
	currency       TEXT NOT NULL DEFAULT 'INR',
	payment_method TEXT NOT NULL,
	transaction_id TEXT,
	status         TEXT NOT NULL DEFAULT 'pending',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS feedback (
	id           TEXT PRIMARY KEY,
	user_id      TEXT REFERENCES profiles(id) ON DELETE SET NULL,
	type         TEXT NOT NULL CHECK (type IN ('general', 'event', 'food', 'facilities')),
	subject      TEXT NOT NULL,
	message      TEXT NOT NULL,
	rating       INTEGER,
	is_anonymous BOOLEAN NOT NULL DEFAULT FALSE,
	status       TEXT NOT NULL DEFAULT 'pending',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate creates any missing tables and indexes.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return errors.Annotate(err, "migrate schema")
}
