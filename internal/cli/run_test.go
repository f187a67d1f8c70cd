package cli

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jobtrail/internal/journal"
	"github.com/roach88/jobtrail/internal/model"
	"github.com/roach88/jobtrail/internal/testutil"
)

func TestRun_FirstRunPublishesAndJournals(t *testing.T) {
	ws := newWorkspace(t, testutil.Mails(3), "")
	store := testutil.NewFakeStore()

	stdout, _, err := execute(newRunCommand(ws.runOptions("text", testutil.NewScriptedEnricher(), store)))
	require.NoError(t, err)

	assert.Contains(t, stdout, "[STEP 1] Read master and merge into local copy")
	assert.Contains(t, stdout, "[AUDIT] added=3, kept=0, pending=3")
	assert.Contains(t, stdout, "[STEP 3] Publication done: done=3, errors=0")
	assert.Contains(t, stdout, "[DONE] Local file: "+ws.localPath())
	assert.Contains(t, stdout, "decision:  proceed")
	assert.Contains(t, stdout, "publish:   done=3 errors=0 created=3 updated=0")

	rows := ws.localRows(t)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Equal(t, model.StatusDone, r.Status)
		assert.NotEmpty(t, r.ExternalID)
		assert.Equal(t, "reply", r.Enrichment["next_action"])
	}
	assert.Len(t, store.Records(), 3)

	j, err := journal.Open(ws.journalPath())
	require.NoError(t, err)
	defer j.Close()
	run, err := j.GetRun(context.Background(), "run-a")
	require.NoError(t, err)
	assert.Equal(t, "proceed", run.Decision)
	assert.Equal(t, 3, run.Published.Done)
}

func TestRun_SecondRunStopsWithNothingPending(t *testing.T) {
	ws := newWorkspace(t, testutil.Mails(2), "")
	enricher := testutil.NewScriptedEnricher()
	store := testutil.NewFakeStore()

	_, _, err := execute(newRunCommand(ws.runOptions("text", enricher, store)))
	require.NoError(t, err)

	stdout, _, err := execute(newRunCommand(ws.runOptions("text", enricher, store)))
	require.NoError(t, err)

	assert.Contains(t, stdout, "[AUDIT] added=0, kept=2, pending=0")
	assert.Contains(t, stdout, "[STOP] Changes detected but no pending rows.")
	assert.NotContains(t, stdout, "[STEP 2]")
	assert.Equal(t, 2, enricher.CallCount())
	assert.Len(t, store.Records(), 2)
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	ws := newWorkspace(t, testutil.Mails(2), "")
	opts := ws.runOptions("text", testutil.NewScriptedEnricher(), testutil.NewFakeStore())
	opts.DryRun = true

	stdout, _, err := execute(newRunCommand(opts))
	require.NoError(t, err)

	assert.Contains(t, stdout, "[DRY RUN] 2 rows would be enriched. Nothing written.")
	_, statErr := os.Stat(ws.localPath())
	assert.True(t, os.IsNotExist(statErr), "local copy must not be written")
	_, statErr = os.Stat(ws.journalPath())
	assert.True(t, os.IsNotExist(statErr), "journal must not be created")
}

func TestRun_JSONKeepsMarkersOffStdout(t *testing.T) {
	ws := newWorkspace(t, testutil.Mails(1), "")

	stdout, stderr, err := execute(newRunCommand(ws.runOptions("json", testutil.NewScriptedEnricher(), testutil.NewFakeStore())))
	require.NoError(t, err)

	assert.Contains(t, stderr, "[STEP 1]")
	var resp struct {
		Status string `json:"status"`
		RunID  string `json:"run_id"`
		Data   struct {
			Decision string `json:"decision"`
			Stats    struct {
				Added int `json:"added"`
			} `json:"stats"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-a", resp.RunID)
	assert.Equal(t, "proceed", resp.Data.Decision)
	assert.Equal(t, 1, resp.Data.Stats.Added)
}

func TestRun_RowFailuresStillSucceed(t *testing.T) {
	ws := newWorkspace(t, testutil.Mails(2), "")
	enricher := testutil.NewScriptedEnricher().
		On("m2", testutil.Response{Err: errors.New("model overloaded")})

	stdout, _, err := execute(newRunCommand(ws.runOptions("text", enricher, testutil.NewFakeStore())))
	require.NoError(t, err)
	assert.Contains(t, stdout, "failures:")

	byID := map[string]model.Row{}
	for _, r := range ws.localRows(t) {
		byID[r.Intrinsic.MessageID] = r
	}
	assert.Equal(t, model.StatusDone, byID["m1"].Status)
	assert.Equal(t, model.StatusError, byID["m2"].Status)
	assert.Contains(t, byID["m2"].ErrorMsg, "model overloaded")
}

func TestRun_PublicationSchemaFailureExitsWithFailure(t *testing.T) {
	ws := newWorkspace(t, testutil.Mails(1), "")
	store := testutil.NewFakeStore()
	store.EnsureErr = errors.New("database is archived")

	_, _, err := execute(newRunCommand(ws.runOptions("text", testutil.NewScriptedEnricher(), store)))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "database is archived")

	rows := ws.localRows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, model.StatusDone, rows[0].Status, "enrichment is kept")
}

func TestRun_MissingMasterIsCommandError(t *testing.T) {
	ws := newWorkspace(t, testutil.Mails(1), "")
	require.NoError(t, os.Remove(ws.master))

	_, _, err := execute(newRunCommand(ws.runOptions("text", testutil.NewScriptedEnricher(), testutil.NewFakeStore())))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "run aborted")
}

func TestRun_MissingAPIKeyIsCommandError(t *testing.T) {
	ws := newWorkspace(t, testutil.Mails(1), "")
	require.NoError(t, os.WriteFile(ws.config, []byte("master: "+ws.master+"\n"), 0o644))

	_, _, err := execute(NewRunCommand(ws.rootOptions("text")))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "llm api key is required")
}

func TestRun_JournalOff(t *testing.T) {
	ws := newWorkspace(t, testutil.Mails(1), "journal: off\n")

	_, _, err := execute(newRunCommand(ws.runOptions("text", testutil.NewScriptedEnricher(), testutil.NewFakeStore())))
	require.NoError(t, err)

	_, statErr := os.Stat(ws.journalPath())
	assert.True(t, os.IsNotExist(statErr))
}
