package graph

// Schema definitions for the Harrier graph store.
// Compatible with both SQLite and PostgreSQL.

const schemaAccounts = `
CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    number TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    balance REAL NOT NULL DEFAULT 0,
    risk_score REAL NOT NULL DEFAULT 0,
    country TEXT NOT NULL DEFAULT '',
    currency TEXT NOT NULL DEFAULT 'USD',
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_accounts_risk ON accounts(risk_score);
`

const schemaCustomers = `
CREATE TABLE IF NOT EXISTS customers (
    id TEXT PRIMARY KEY,
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    country TEXT NOT NULL DEFAULT '',
    kyc_status TEXT NOT NULL DEFAULT 'pending',
    customer_since TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS account_owners (
    customer_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'primary',
    PRIMARY KEY (customer_id, account_id)
);

CREATE INDEX IF NOT EXISTS idx_account_owners_account ON account_owners(account_id);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    amount REAL NOT NULL,
    currency TEXT NOT NULL DEFAULT 'USD',
    timestamp TIMESTAMP NOT NULL,
    type TEXT NOT NULL,
    channel TEXT NOT NULL DEFAULT '',
    is_flagged INTEGER NOT NULL DEFAULT 0,
    fraud_score REAL NOT NULL DEFAULT 0,
    debit_account_id TEXT NOT NULL DEFAULT '',
    credit_account_id TEXT NOT NULL DEFAULT '',
    device_id TEXT NOT NULL DEFAULT '',
    ip_address TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_debit ON transactions(debit_account_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_credit ON transactions(credit_account_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_ip ON transactions(ip_address);
`

const schemaDevices = `
CREATE TABLE IF NOT EXISTS devices (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL DEFAULT '',
    os TEXT NOT NULL DEFAULT '',
    is_trusted INTEGER NOT NULL DEFAULT 0,
    first_seen TIMESTAMP NOT NULL,
    last_seen TIMESTAMP NOT NULL,
    usage_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS device_users (
    device_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    PRIMARY KEY (device_id, customer_id)
);

CREATE INDEX IF NOT EXISTS idx_device_users_customer ON device_users(customer_id);
`

const schemaIPAddresses = `
CREATE TABLE IF NOT EXISTS ip_addresses (
    address TEXT PRIMARY KEY,
    country TEXT NOT NULL DEFAULT '',
    is_proxy INTEGER NOT NULL DEFAULT 0,
    is_vpn INTEGER NOT NULL DEFAULT 0,
    risk_score REAL NOT NULL DEFAULT 0,
    first_seen TIMESTAMP NOT NULL,
    last_seen TIMESTAMP NOT NULL
);
`

const schemaFraudRings = `
CREATE TABLE IF NOT EXISTS fraud_rings (
    id TEXT PRIMARY KEY,
    detected_at TIMESTAMP NOT NULL,
    confidence REAL NOT NULL,
    status TEXT NOT NULL DEFAULT 'investigating',
    total_amount REAL NOT NULL DEFAULT 0,
    pattern_types TEXT NOT NULL DEFAULT '[]',
    member_signature TEXT NOT NULL UNIQUE,
    members TEXT NOT NULL,
    evidence TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_fraud_rings_status ON fraud_rings(status);
`

// AllSchemas returns every schema statement in creation order.
func AllSchemas() []string {
	return []string{
		schemaAccounts,
		schemaCustomers,
		schemaTransactions,
		schemaDevices,
		schemaIPAddresses,
		schemaFraudRings,
	}
}
