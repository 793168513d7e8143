package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS open_positions (
    id                      TEXT PRIMARY KEY,
    market_id               TEXT    NOT NULL DEFAULT '',
    market                  TEXT    NOT NULL DEFAULT '',
    token_id                TEXT    NOT NULL,
    side                    TEXT    NOT NULL,
    size                    REAL    NOT NULL,
    price                   REAL    NOT NULL,
    risk_amount             REAL    NOT NULL DEFAULT 0,
    stop_loss_price         REAL    NOT NULL,
    take_profit_price       REAL    NOT NULL,
    breakeven_trigger_price REAL    NOT NULL,
    highest_price           REAL    NOT NULL,
    breakeven_triggered     INTEGER NOT NULL DEFAULT 0,
    trailing_stop_active    INTEGER NOT NULL DEFAULT 0,
    entry_time              TEXT    NOT NULL,
    paper                   INTEGER NOT NULL DEFAULT 1
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_open_positions_token ON open_positions(token_id);

CREATE TABLE IF NOT EXISTS closed_trades (
    id                   TEXT PRIMARY KEY,
    market_id            TEXT    NOT NULL DEFAULT '',
    market               TEXT    NOT NULL DEFAULT '',
    token_id             TEXT    NOT NULL,
    side                 TEXT    NOT NULL,
    size                 REAL    NOT NULL,
    entry_price          REAL    NOT NULL,
    exit_price           REAL    NOT NULL,
    risk_amount          REAL    NOT NULL DEFAULT 0,
    pnl                  REAL    NOT NULL,
    pnl_pct              REAL    NOT NULL,
    won                  INTEGER NOT NULL,
    close_reason         TEXT    NOT NULL,
    entry_time           TEXT    NOT NULL,
    exit_time            TEXT    NOT NULL,
    stop_loss_price      REAL    NOT NULL DEFAULT 0,
    take_profit_price    REAL    NOT NULL DEFAULT 0,
    breakeven_triggered  INTEGER NOT NULL DEFAULT 0,
    trailing_stop_active INTEGER NOT NULL DEFAULT 0,
    highest_price        REAL    NOT NULL DEFAULT 0,
    paper                INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_closed_trades_exit  ON closed_trades(exit_time DESC);
CREATE INDEX IF NOT EXISTS idx_closed_trades_token ON closed_trades(token_id, exit_time DESC);

CREATE TABLE IF NOT EXISTS ledger_state (
    id               INTEGER PRIMARY KEY CHECK (id = 1),
    balance          REAL NOT NULL,
    daily_pnl        REAL NOT NULL DEFAULT 0,
    total_pnl        REAL NOT NULL DEFAULT 0,
    last_daily_reset TEXT NOT NULL DEFAULT '',
    updated_at       TEXT NOT NULL
);
`
