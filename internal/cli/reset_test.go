package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jobtrail/internal/model"
	"github.com/roach88/jobtrail/internal/testutil"
)

func TestReset_ErrorRowsByDefault(t *testing.T) {
	rows := mixedRows()
	ws := newWorkspace(t, rows, "")
	ws.writeLocal(t, rows)

	stdout, _, err := execute(NewResetCommand(ws.rootOptions("text")))
	require.NoError(t, err)
	assert.Equal(t, "Reset 1 ERROR row(s) to NEW in "+ws.localPath()+"\n", stdout)

	got := ws.localRows(t)
	require.Len(t, got, 3)
	assert.Equal(t, model.StatusDone, got[0].Status)
	assert.Equal(t, "page-1", got[0].ExternalID)
	assert.Equal(t, model.StatusNew, got[1].Status)
	assert.Empty(t, got[1].ErrorMsg)
}

func TestReset_FromDoneByKeyPrefix(t *testing.T) {
	rows := mixedRows()
	ws := newWorkspace(t, rows, "")
	ws.writeLocal(t, rows)
	prefix := rows[0].Key()[:8]

	_, _, err := execute(NewResetCommand(ws.rootOptions("text")), "--from", "done", prefix)
	require.NoError(t, err)

	got := ws.localRows(t)
	assert.Equal(t, model.StatusNew, got[0].Status)
	assert.Equal(t, "page-1", got[0].ExternalID, "page id is kept so the row updates its page")
	assert.Equal(t, "schedule", got[0].Enrichment["next_action"])
	assert.Equal(t, model.StatusError, got[1].Status)
}

func TestReset_NothingToReset(t *testing.T) {
	rows := []model.Row{testutil.Mail("m1", "Hello")}
	ws := newWorkspace(t, rows, "")
	ws.writeLocal(t, rows)

	stdout, _, err := execute(NewResetCommand(ws.rootOptions("text")))
	require.NoError(t, err)
	assert.Contains(t, stdout, "Reset 0 ERROR row(s)")
}

func TestReset_RejectsNewAsSource(t *testing.T) {
	ws := newWorkspace(t, testutil.Mails(1), "")

	_, _, err := execute(NewResetCommand(ws.rootOptions("text")), "--from", "NEW")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
