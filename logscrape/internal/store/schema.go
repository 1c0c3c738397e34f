package store

// Schema is the DDL applied by Open. Timestamps are Unix nanoseconds, UTC.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    network TEXT NOT NULL,
    channel TEXT NOT NULL,
    window_start INTEGER NOT NULL,
    window_end INTEGER NOT NULL,
    skip_info INTEGER NOT NULL,
    state TEXT NOT NULL,
    current_end INTEGER,
    last_seen INTEGER,
    messages INTEGER NOT NULL DEFAULT 0,
    recoveries INTEGER NOT NULL DEFAULT 0,
    complete INTEGER NOT NULL DEFAULT 0,
    reason TEXT,
    started_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    finished_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_runs_channel
    ON runs(network, channel, updated_at DESC);

CREATE TABLE IF NOT EXISTS run_events (
    event_id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    detail TEXT,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_events_run
    ON run_events(run_id, created_at);

CREATE TABLE IF NOT EXISTS messages (
    network TEXT NOT NULL,
    channel TEXT NOT NULL,
    ts INTEGER NOT NULL,
    nick TEXT NOT NULL,
    kind TEXT NOT NULL,
    body TEXT NOT NULL,
    run_id TEXT,
    UNIQUE (network, channel, ts, nick, kind, body)
);
CREATE INDEX IF NOT EXISTS idx_messages_channel_ts
    ON messages(network, channel, ts);
`
