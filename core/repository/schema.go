package repository

// schema holds the tables owned by the core plus the catalog tables it
// reads. Catalog tables are normally created by the wider application; the
// IF NOT EXISTS forms only matter for standalone deployments.
const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id                   BIGSERIAL PRIMARY KEY,
	node_id              VARCHAR(64) NOT NULL UNIQUE,
	name                 VARCHAR(255) NOT NULL,
	description          TEXT NOT NULL DEFAULT '',
	is_active            BOOLEAN NOT NULL DEFAULT TRUE,
	last_heartbeat       TIMESTAMPTZ,
	resources            JSONB,
	max_concurrent_jobs  INTEGER NOT NULL DEFAULT 1 CHECK (max_concurrent_jobs > 0),
	gpu_enabled          BOOLEAN NOT NULL DEFAULT FALSE,
	total_jobs_completed INTEGER NOT NULL DEFAULT 0,
	total_jobs_failed    INTEGER NOT NULL DEFAULT 0,
	token_hash           VARCHAR(64) NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_nodes_active ON nodes(is_active, last_heartbeat);

CREATE TABLE IF NOT EXISTS jobs (
	id           BIGSERIAL PRIMARY KEY,
	job_id       VARCHAR(64) NOT NULL UNIQUE,
	job_type     VARCHAR(32) NOT NULL,
	node_id      VARCHAR(64) REFERENCES nodes(node_id),
	status       VARCHAR(32) NOT NULL,
	config       JSONB,
	input_files  JSONB,
	output_files JSONB,
	docker_image TEXT NOT NULL DEFAULT '',
	command      JSONB,
	environment  JSONB,
	progress     DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (progress >= 0 AND progress <= 1),
	result       JSONB,
	error        TEXT NOT NULL DEFAULT '',
	output_cid   TEXT NOT NULL DEFAULT '',
	memory_limit VARCHAR(32) NOT NULL DEFAULT '',
	cpu_limit    DOUBLE PRECISION NOT NULL DEFAULT 0,
	gpus         INTEGER NOT NULL DEFAULT 0,
	spec_yaml    TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	started_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_jobs_pending ON jobs(status, created_at, id);
CREATE INDEX IF NOT EXISTS idx_jobs_node ON jobs(node_id, status);

CREATE TABLE IF NOT EXISTS job_events (
	id          BIGSERIAL PRIMARY KEY,
	job_id      VARCHAR(64) NOT NULL REFERENCES jobs(job_id),
	at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	from_status VARCHAR(32),
	to_status   VARCHAR(32) NOT NULL,
	reason      TEXT NOT NULL,
	meta_json   JSONB
);
CREATE INDEX IF NOT EXISTS idx_job_events_job ON job_events(job_id, id);

CREATE TABLE IF NOT EXISTS job_artifacts (
	id         BIGSERIAL PRIMARY KEY,
	job_id     VARCHAR(64) NOT NULL REFERENCES jobs(job_id),
	type       VARCHAR(32) NOT NULL,
	cid        TEXT NOT NULL,
	size       BIGINT NOT NULL DEFAULT 0,
	meta_json  JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_job_artifacts_job ON job_artifacts(job_id);

CREATE TABLE IF NOT EXISTS payments (
	id                     BIGSERIAL PRIMARY KEY,
	payment_type           VARCHAR(32) NOT NULL,
	status                 VARCHAR(32) NOT NULL,
	amount                 NUMERIC(20, 8) NOT NULL CHECK (amount > 0),
	currency               VARCHAR(16) NOT NULL,
	network                VARCHAR(16) NOT NULL,
	platform_fee_percent   NUMERIC(10, 4) NOT NULL,
	platform_fee_amount    NUMERIC(20, 8) NOT NULL,
	net_amount             NUMERIC(20, 8) NOT NULL,
	from_wallet_id         BIGINT NOT NULL DEFAULT 0,
	from_address           VARCHAR(128) NOT NULL,
	to_address             VARCHAR(128) NOT NULL,
	tx_hash                VARCHAR(128) UNIQUE,
	block_number           BIGINT,
	block_hash             VARCHAR(128) NOT NULL DEFAULT '',
	confirmations          INTEGER NOT NULL DEFAULT 0,
	required_confirmations INTEGER NOT NULL,
	linked_kind            VARCHAR(32) NOT NULL DEFAULT '',
	linked_id              BIGINT NOT NULL DEFAULT 0,
	metadata               JSONB,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	confirmed_at           TIMESTAMPTZ,
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK (platform_fee_amount + net_amount = amount)
);
CREATE INDEX IF NOT EXISTS idx_payments_confirmed ON payments(status, confirmed_at);
CREATE INDEX IF NOT EXISTS idx_payments_from ON payments(from_address);
CREATE INDEX IF NOT EXISTS idx_payments_to ON payments(to_address);

CREATE TABLE IF NOT EXISTS group_revenue_splits (
	id             BIGSERIAL PRIMARY KEY,
	model_id       BIGINT NOT NULL UNIQUE,
	group_id       BIGINT NOT NULL,
	split_config   JSONB NOT NULL,
	min_percentage NUMERIC(5, 2) NOT NULL DEFAULT 0,
	usage_bonus    NUMERIC(5, 2) NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS revenue_distributions (
	id             BIGSERIAL PRIMARY KEY,
	model_id       BIGINT NOT NULL,
	period_year    INTEGER NOT NULL,
	period_month   INTEGER NOT NULL,
	total_revenue  NUMERIC(20, 8) NOT NULL,
	platform_fee   NUMERIC(20, 8) NOT NULL,
	model_pool     NUMERIC(20, 8) NOT NULL,
	distribution   JSONB NOT NULL,
	is_distributed BOOLEAN NOT NULL DEFAULT TRUE,
	distributed_at TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (model_id, period_year, period_month)
);

CREATE TABLE IF NOT EXISTS nft_shares (
	id                   BIGSERIAL PRIMARY KEY,
	token_id             BIGINT NOT NULL UNIQUE,
	owner_wallet_address VARCHAR(128) NOT NULL,
	owner_user_id        BIGINT,
	share_number         BIGINT NOT NULL UNIQUE,
	contract_address     VARCHAR(128) NOT NULL,
	tx_hash              VARCHAR(128) NOT NULL DEFAULT '',
	block_number         BIGINT,
	is_active            BOOLEAN NOT NULL DEFAULT TRUE,
	minted_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_nft_shares_owner ON nft_shares(owner_wallet_address);

CREATE TABLE IF NOT EXISTS nft_reward_pools (
	id                         BIGSERIAL PRIMARY KEY,
	period_year                INTEGER NOT NULL,
	period_month               INTEGER NOT NULL,
	subscription_revenue_share NUMERIC(20, 8) NOT NULL,
	api_revenue_share          NUMERIC(20, 8) NOT NULL,
	total_pool                 NUMERIC(20, 8) NOT NULL,
	total_shares               INTEGER NOT NULL,
	reward_per_share           NUMERIC(20, 8) NOT NULL,
	is_distributed             BOOLEAN NOT NULL DEFAULT FALSE,
	calculated_at              TIMESTAMPTZ NOT NULL,
	distributed_at             TIMESTAMPTZ,
	UNIQUE (period_year, period_month)
);

CREATE TABLE IF NOT EXISTS nft_rewards (
	id                BIGSERIAL PRIMARY KEY,
	nft_share_id      BIGINT NOT NULL REFERENCES nft_shares(id),
	period_year       INTEGER NOT NULL,
	period_month      INTEGER NOT NULL,
	reward_amount     NUMERIC(20, 8) NOT NULL,
	reward_percentage NUMERIC(10, 4) NOT NULL,
	total_pool_amount NUMERIC(20, 8) NOT NULL,
	total_shares      INTEGER NOT NULL,
	payment_tx_hash   VARCHAR(128) NOT NULL DEFAULT '',
	payment_status    VARCHAR(32) NOT NULL DEFAULT 'pending',
	distributed_at    TIMESTAMPTZ,
	UNIQUE (nft_share_id, period_year, period_month)
);

CREATE TABLE IF NOT EXISTS groups (
	id BIGSERIAL PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS models (
	id       BIGSERIAL PRIMARY KEY,
	group_id BIGINT
);

CREATE TABLE IF NOT EXISTS group_memberships (
	id       BIGSERIAL PRIMARY KEY,
	group_id BIGINT NOT NULL,
	user_id  BIGINT NOT NULL,
	role     VARCHAR(16) NOT NULL DEFAULT 'member',
	UNIQUE (group_id, user_id)
);

CREATE TABLE IF NOT EXISTS api_services (
	id       BIGSERIAL PRIMARY KEY,
	model_id BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS api_subscriptions (
	id         BIGSERIAL PRIMARY KEY,
	service_id BIGINT NOT NULL REFERENCES api_services(id)
);

CREATE TABLE IF NOT EXISTS api_requests (
	id         BIGSERIAL PRIMARY KEY,
	service_id BIGINT NOT NULL REFERENCES api_services(id),
	status     VARCHAR(16) NOT NULL DEFAULT 'success',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_api_requests_created ON api_requests(created_at);

CREATE TABLE IF NOT EXISTS admin_wallets (
	id             BIGSERIAL PRIMARY KEY,
	wallet_address VARCHAR(128) NOT NULL UNIQUE,
	is_active      BOOLEAN NOT NULL DEFAULT TRUE
);
`
