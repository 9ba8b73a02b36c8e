package source

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"agentcron/internal/job"
)

// DBReader reads enabled (agent, schedule) pairs from a live SQLite
// database and translates them into job definitions. The database is
// edited out-of-band (CLI, chat commands); the engine only ever reads it.
type DBReader struct {
	db *sql.DB
}

// agent/schedule tables. Created if missing so a fresh deployment works
// before anything has been added dynamically.
const dynamicSchema = `
CREATE TABLE IF NOT EXISTS agents (
    id               TEXT PRIMARY KEY,
    label            TEXT,
    prompt           TEXT,
    prompt_file      TEXT,
    model            TEXT,
    max_turns        INTEGER NOT NULL DEFAULT 0,
    work_dir         TEXT,
    system_prompt    TEXT,
    deliver_target   TEXT,
    announce         INTEGER NOT NULL DEFAULT 1,
    suppress_pattern TEXT,
    enabled          INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS agent_schedules (
    agent_id TEXT NOT NULL REFERENCES agents(id),
    name     TEXT NOT NULL DEFAULT 'default',
    schedule TEXT NOT NULL,
    timezone TEXT,
    enabled  INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (agent_id, name)
);
`

func OpenDB(path string) (*DBReader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("dynamic source path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	_, _ = db.Exec("PRAGMA busy_timeout = 2000")

	if _, err := db.Exec(dynamicSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DBReader{db: db}, nil
}

func (r *DBReader) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// ReadEnabled joins enabled schedules with their enabled agents. The
// definition id is derived as "<agentID>-<scheduleName>", which is also
// the alias the store's prefix fallback resolves.
func (r *DBReader) ReadEnabled(ctx context.Context) ([]job.Definition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.label, a.prompt, a.prompt_file, a.model, a.max_turns,
		       a.work_dir, a.system_prompt, a.deliver_target, a.announce, a.suppress_pattern,
		       s.name, s.schedule, s.timezone
		FROM agent_schedules s
		JOIN agents a ON a.id = s.agent_id
		WHERE s.enabled = 1 AND a.enabled = 1
		ORDER BY a.id, s.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []job.Definition
	for rows.Next() {
		var agentID, schedName, schedExpr string
		var label, prompt, promptFile, model, workDir, sysPrompt, target, suppress, tz sql.NullString
		var announce, maxTurns int
		err := rows.Scan(&agentID, &label, &prompt, &promptFile, &model, &maxTurns,
			&workDir, &sysPrompt, &target, &announce, &suppress,
			&schedName, &schedExpr, &tz)
		if err != nil {
			return nil, err
		}

		d := job.Definition{
			ID:              agentID + "-" + schedName,
			Label:           label.String,
			Schedule:        schedExpr,
			Timezone:        tz.String,
			Prompt:          prompt.String,
			PromptFile:      promptFile.String,
			Model:           model.String,
			MaxTurns:        maxTurns,
			WorkDir:         workDir.String,
			SystemPrompt:    sysPrompt.String,
			DeliverTarget:   target.String,
			Announce:        announce != 0,
			SuppressPattern: suppress.String,
			Enabled:         true,
			Source:          job.SourceDynamic,
		}
		if d.Label == "" {
			d.Label = agentID
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}
