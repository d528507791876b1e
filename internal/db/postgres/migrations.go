package postgres

// SQL-миграции встроены в код для упрощения деплоя.

var migrations = []struct {
	version int
	sql     string
}{
	{1, migration001Balances},
	{2, migration002Transactions},
	{3, migration003Treasury},
	{4, migration004Admin},
}

var migration001Balances = `
CREATE TABLE IF NOT EXISTS balances (
    profile_id UUID PRIMARY KEY,
    points BIGINT NOT NULL DEFAULT 0 CHECK (points >= 0),
    coins BIGINT NOT NULL DEFAULT 0 CHECK (coins >= 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

var migration002Transactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id UUID PRIMARY KEY,
    profile_id UUID NOT NULL,
    order_id VARCHAR(255),
    type VARCHAR(32) NOT NULL,
    status VARCHAR(16) NOT NULL,
    asset VARCHAR(16) NOT NULL DEFAULT 'points',
    points BIGINT NOT NULL CHECK (points >= 0),
    amount NUMERIC(18, 4),
    currency VARCHAR(3),
    balance_before BIGINT NOT NULL DEFAULT 0,
    balance_after BIGINT NOT NULL DEFAULT 0,
    description TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_order_id ON transactions(order_id) WHERE order_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_transactions_profile ON transactions(profile_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_pending ON transactions(created_at) WHERE status = 'PENDING';
`

var migration003Treasury = `
CREATE TABLE IF NOT EXISTS treasury (
    id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

var migration004Admin = `
CREATE TABLE IF NOT EXISTS admin_login_attempts (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    attempt_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    success BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_admin_login_attempts_user ON admin_login_attempts(user_id, attempt_time DESC);

CREATE TABLE IF NOT EXISTS admin_sessions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    session_token VARCHAR(64) NOT NULL,
    authenticated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMPTZ NOT NULL,
    last_activity TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    is_active BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_admin_sessions_user ON admin_sessions(user_id) WHERE is_active;
`
