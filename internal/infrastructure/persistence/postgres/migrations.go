// Package postgres implements the PostgreSQL persistence layer for the
// student evaluation hub.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE EVALUATIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create evaluations table
-- Version: 001

-- One row per student per evaluation cycle. Batch re-runs target the same
-- row, so the composite key carries the idempotence guarantee.
CREATE TABLE IF NOT EXISTS evaluations (
    students_id TEXT NOT NULL,
    period TEXT NOT NULL,
    agent_evaluation TEXT NOT NULL DEFAULT '',
    evaluation_date TEXT NOT NULL DEFAULT '',
    teacher_evaluation TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (students_id, period)
);

-- Period-wide listings for the review surface
CREATE INDEX IF NOT EXISTS idx_evaluations_period ON evaluations(period);

-- Updated_at trigger function for automatic timestamp updates
CREATE OR REPLACE FUNCTION update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
    NEW.updated_at = NOW();
    RETURN NEW;
END;
$$ language 'plpgsql';

DROP TRIGGER IF EXISTS update_evaluations_updated_at ON evaluations;
CREATE TRIGGER update_evaluations_updated_at
    BEFORE UPDATE ON evaluations
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column();
`

const migration001Down = `
DROP TRIGGER IF EXISTS update_evaluations_updated_at ON evaluations;
DROP FUNCTION IF EXISTS update_updated_at_column();
DROP TABLE IF EXISTS evaluations;
`

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_evaluations",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
	}
}
