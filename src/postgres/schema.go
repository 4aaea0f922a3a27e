package postgres

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS workout_credits (
	id           TEXT PRIMARY KEY,
	owner_id     TEXT NOT NULL,
	reward_type  SMALLINT NOT NULL DEFAULT 0,
	amount       NUMERIC(36, 18) NOT NULL DEFAULT 0,
	duration_sec BIGINT NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT 'unsettled',
	payout_id    TEXT DEFAULT NULL,
	operating_at TIMESTAMPTZ DEFAULT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS workout_credits_owner_idx
	ON workout_credits (owner_id, status);

CREATE TABLE IF NOT EXISTS outbound_payouts (
	id            TEXT PRIMARY KEY,
	owner_id      TEXT NOT NULL,
	reward_type   SMALLINT NOT NULL DEFAULT 0,
	wallet        TEXT NOT NULL DEFAULT '',
	amount        NUMERIC(36, 18) NOT NULL DEFAULT 0,
	operating_fee NUMERIC(36, 18) NOT NULL DEFAULT 0,
	tx_hash       CHAR(66) DEFAULT NULL,
	status        TEXT NOT NULL DEFAULT 'requested',
	msg           TEXT DEFAULT NULL,
	requested_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	operating_at  TIMESTAMPTZ DEFAULT NULL,
	result_at     TIMESTAMPTZ DEFAULT NULL
);
CREATE INDEX IF NOT EXISTS outbound_payouts_status_idx
	ON outbound_payouts (status, requested_at);

CREATE TABLE IF NOT EXISTS wallets (
	owner_id   TEXT PRIMARY KEY,
	address    TEXT NOT NULL,
	enabled    BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func EnsureSchema(ctx context.Context) error {
	return DoExec(ctx, schema)
}
