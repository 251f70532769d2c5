package database

// coreSchema is the DDL for the core database. Every statement is
// idempotent so the schema can be re-applied on every startup.
const coreSchema = `
CREATE TABLE IF NOT EXISTS users (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    email             TEXT NOT NULL UNIQUE,
    alpaca_api_key    TEXT,
    alpaca_api_secret TEXT,
    total_capital     REAL NOT NULL DEFAULT 0,
    created_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agents (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id           INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    name              TEXT NOT NULL,
    persona           TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL DEFAULT 'active',
    strategy_type     TEXT NOT NULL,
    strategy_params   TEXT NOT NULL DEFAULT '{}',
    risk_params       TEXT NOT NULL DEFAULT '{}',
    allocated_capital REAL NOT NULL DEFAULT 0,
    cash_balance      REAL NOT NULL DEFAULT 0,
    time_horizon_days INTEGER NOT NULL DEFAULT 365,
    created_at        TEXT NOT NULL,
    end_date          TEXT
);
CREATE INDEX IF NOT EXISTS idx_agents_user_status ON agents(user_id, status);

CREATE TABLE IF NOT EXISTS positions (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    agent_id         INTEGER NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
    ticker           TEXT NOT NULL,
    side             TEXT NOT NULL DEFAULT 'long',
    status           TEXT NOT NULL DEFAULT 'open',
    shares           REAL NOT NULL,
    entry_price      REAL NOT NULL,
    entry_date       TEXT NOT NULL,
    entry_rationale  TEXT NOT NULL DEFAULT '',
    current_price    REAL NOT NULL DEFAULT 0,
    unrealized_pl    REAL NOT NULL DEFAULT 0,
    unrealized_pct   REAL NOT NULL DEFAULT 0,
    stop_loss_price  REAL,
    target_price     REAL,
    max_holding_days INTEGER,
    exit_price       REAL,
    exit_date        TEXT,
    exit_rationale   TEXT NOT NULL DEFAULT '',
    realized_pl      REAL,
    realized_pct     REAL,
    entry_order_id   TEXT NOT NULL DEFAULT '',
    exit_order_id    TEXT NOT NULL DEFAULT '',
    stop_order_id    TEXT NOT NULL DEFAULT '',
    target_order_id  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_positions_agent_status ON positions(agent_id, status);
CREATE INDEX IF NOT EXISTS idx_positions_ticker ON positions(ticker);

CREATE TABLE IF NOT EXISTS agent_activity (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    agent_id   INTEGER NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
    type       TEXT NOT NULL,
    summary    TEXT NOT NULL DEFAULT '',
    details    TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activity_agent_type_created
    ON agent_activity(agent_id, type, created_at DESC);

CREATE TABLE IF NOT EXISTS stocks (
    ticker             TEXT PRIMARY KEY,
    sector             TEXT NOT NULL DEFAULT '',
    price              REAL NOT NULL DEFAULT 0,
    pe_ratio           REAL,
    pb_ratio           REAL,
    roe                REAL,
    profit_margin      REAL,
    debt_to_equity     REAL,
    dividend_yield     REAL,
    dividend_growth_5y REAL,
    market_cap         REAL,
    avg_daily_volume   REAL,
    momentum_score     REAL,
    value_score        REAL,
    quality_score      REAL,
    dividend_score     REAL,
    volatility_score   REAL,
    composite_score    REAL,
    news_sentiment     REAL,
    social_sentiment   REAL,
    combined_sentiment REAL,
    sentiment_velocity REAL,
    last_updated       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS price_history (
    ticker TEXT NOT NULL,
    date   TEXT NOT NULL,
    open   REAL,
    high   REAL,
    low    REAL,
    close  REAL NOT NULL,
    volume REAL,
    PRIMARY KEY (ticker, date)
);
CREATE INDEX IF NOT EXISTS idx_price_history_ticker_date
    ON price_history(ticker, date DESC);

CREATE TABLE IF NOT EXISTS sentiment_history (
    ticker         TEXT NOT NULL,
    date           TEXT NOT NULL,
    news_score     REAL,
    social_score   REAL,
    combined_score REAL NOT NULL DEFAULT 0,
    velocity       REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (ticker, date)
);

CREATE TABLE IF NOT EXISTS macro_indicators (
    indicator_name TEXT PRIMARY KEY,
    value          REAL NOT NULL,
    previous_value REAL,
    as_of          TEXT NOT NULL,
    updated_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS insider_signals (
    ticker        TEXT PRIMARY KEY,
    filing_count  INTEGER NOT NULL DEFAULT 0,
    buy_count     INTEGER NOT NULL DEFAULT 0,
    buy_ratio     REAL NOT NULL DEFAULT 0,
    net_sentiment REAL NOT NULL DEFAULT 0,
    updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS short_interest (
    ticker              TEXT PRIMARY KEY,
    short_percent_float REAL,
    days_to_cover       REAL,
    updated_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS macro_risk_overlay_state (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    scale_factor REAL NOT NULL,
    composite    REAL NOT NULL,
    regime       TEXT NOT NULL,
    signals      TEXT NOT NULL DEFAULT '{}',
    warnings     TEXT NOT NULL DEFAULT '[]',
    computed_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_overlay_state_computed
    ON macro_risk_overlay_state(computed_at DESC);
`
