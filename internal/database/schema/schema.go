package schema

// SchemaSQL contains the full database schema initialization script
const SchemaSQL = `
-- Players

CREATE TABLE IF NOT EXISTS players (
    player_id VARCHAR(100) PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    room_id VARCHAR(100) NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS player_stats (
    player_id VARCHAR(100) PRIMARY KEY REFERENCES players(player_id) ON DELETE CASCADE,
    resonance DOUBLE PRECISION NOT NULL DEFAULT 0,
    fortitude DOUBLE PRECISION NOT NULL DEFAULT 0,
    vitalis INTEGER NOT NULL DEFAULT 100,
    winded BOOLEAN NOT NULL DEFAULT FALSE
);

-- Node templates are authored data; the definition column carries the
-- full template as JSONB so tuning changes never need a migration.
CREATE TABLE IF NOT EXISTS node_templates (
    template_key VARCHAR(100) PRIMARY KEY,
    definition JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Node instances carry all mutable per-node state. session_player_id is
-- the claim column: conditional writes against it are what serialize
-- concurrent harvest attempts.
CREATE TABLE IF NOT EXISTS node_instances (
    node_id VARCHAR(100) PRIMARY KEY,
    template_key VARCHAR(100) NOT NULL REFERENCES node_templates(template_key),
    room_id VARCHAR(100) NOT NULL,
    session_player_id VARCHAR(100),
    session JSONB,
    cooldown_until TIMESTAMPTZ,
    last_cycle_run TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_node_instances_room ON node_instances(room_id);
CREATE INDEX IF NOT EXISTS idx_node_instances_session ON node_instances(session_player_id)
    WHERE session_player_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_node_instances_cooldown ON node_instances(cooldown_until)
    WHERE cooldown_until IS NOT NULL;

-- Holder inventories (player packs and room grounds share the shape,
-- keyed by holder).
CREATE TABLE IF NOT EXISTS inventories (
    holder_key VARCHAR(150) PRIMARY KEY,
    inventory JSONB NOT NULL DEFAULT '{"slots": []}',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
