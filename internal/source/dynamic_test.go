package source

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestDBReaderFreshDatabase(t *testing.T) {
	r, err := OpenDB(filepath.Join(t.TempDir(), "agents.db"))
	require.NoError(t, err)
	defer r.Close()

	defs, err := r.ReadEnabled(context.Background())
	require.NoError(t, err)
	require.Empty(t, defs)
}

func TestDBReaderEnabledJoin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.db")
	r, err := OpenDB(path)
	require.NoError(t, err)
	defer r.Close()

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		INSERT INTO agents(id, prompt, model, deliver_target, enabled)
		VALUES ('researcher', 'summarize the news', 'sonnet', '12345', 1),
		       ('paused', 'ignored', '', '', 0);
		INSERT INTO agent_schedules(agent_id, name, schedule, timezone, enabled)
		VALUES ('researcher', 'daily', '0 9 * * *', 'Europe/Berlin', 1),
		       ('researcher', 'off', '0 12 * * *', '', 0),
		       ('paused', 'daily', '0 9 * * *', '', 1);`)
	require.NoError(t, err)

	defs, err := r.ReadEnabled(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 1)

	d := defs[0]
	require.Equal(t, "researcher-daily", d.ID)
	require.Equal(t, "researcher", d.Label) // falls back to the agent id
	require.Equal(t, "0 9 * * *", d.Schedule)
	require.Equal(t, "Europe/Berlin", d.Timezone)
	require.Equal(t, "summarize the news", d.Prompt)
	require.Equal(t, "sonnet", d.Model)
	require.Equal(t, "12345", d.DeliverTarget)
	require.True(t, d.Announce)
	require.True(t, d.Enabled)
}
