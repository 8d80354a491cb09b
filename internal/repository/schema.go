package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is the orchestration engine's DDL. Statements are idempotent so the
// migration can run on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS organizations (
	id         UUID PRIMARY KEY,
	name       TEXT NOT NULL,
	domain     TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS workflows (
	id              UUID PRIMARY KEY,
	organization_id UUID NOT NULL REFERENCES organizations(id),
	goal            TEXT NOT NULL,
	created_by      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tasks (
	id                    UUID PRIMARY KEY,
	workflow_id           UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	agent                 TEXT NOT NULL DEFAULT '',
	status                TEXT NOT NULL DEFAULT 'pending',
	input                 JSONB,
	output                JSONB,
	approval_requested_at TIMESTAMPTZ,
	approval_deadline     TIMESTAMPTZ,
	scheduled_date        TIMESTAMPTZ,
	due_date              TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tasks_workflow_status ON tasks (workflow_id, status);

CREATE TABLE IF NOT EXISTS task_dependencies (
	task_id            UUID NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	depends_on_task_id UUID NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	PRIMARY KEY (task_id, depends_on_task_id)
);

CREATE INDEX IF NOT EXISTS idx_task_dependencies_depends_on ON task_dependencies (depends_on_task_id);

CREATE TABLE IF NOT EXISTS approval_decisions (
	task_id    UUID NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	actor_id   TEXT NOT NULL,
	action     TEXT NOT NULL,
	comment    TEXT NOT NULL DEFAULT '',
	decided_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (task_id, actor_id)
);
`

// Migrate applies the schema to the connected database.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, schema)
	return err
}
