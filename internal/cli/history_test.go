package cli

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jobtrail/internal/testutil"
)

func TestHistory_ListsRunsNewestFirst(t *testing.T) {
	ws := newWorkspace(t, testutil.Mails(2), "")
	enricher := testutil.NewScriptedEnricher()
	store := testutil.NewFakeStore()

	first := ws.runOptions("text", enricher, store)
	_, _, err := execute(newRunCommand(first))
	require.NoError(t, err)

	second := ws.runOptions("text", enricher, store)
	second.RunIDs = testutil.NewFixedRunID("run-b")
	second.Clock = testutil.NewStepClock(first.Clock.Now().Add(24*time.Hour), time.Second)
	_, _, err = execute(newRunCommand(second))
	require.NoError(t, err)

	stdout, _, err := execute(NewHistoryCommand(ws.rootOptions("text")))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "run-b")
	assert.Contains(t, lines[0], "nothing_pending")
	assert.Contains(t, lines[1], "run-a")
	assert.Contains(t, lines[1], "added=2 kept=0 pending=2  proceed  enrich 2/2  publish 2/2")

	stdout, _, err = execute(NewHistoryCommand(ws.rootOptions("text")), "--limit", "1")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(stdout, "\n"))
}

func TestHistory_RunOutcomes(t *testing.T) {
	ws := newWorkspace(t, testutil.Mails(2), "")
	enricher := testutil.NewScriptedEnricher().
		On("m2", testutil.Response{Err: errors.New("model overloaded")})

	_, _, err := execute(newRunCommand(ws.runOptions("text", enricher, testutil.NewFakeStore())))
	require.NoError(t, err)

	stdout, _, err := execute(NewHistoryCommand(ws.rootOptions("json")), "--run", "run-a")
	require.NoError(t, err)

	var resp struct {
		Data []struct {
			Stage     string `json:"stage"`
			Status    string `json:"status"`
			ErrorKind string `json:"error_kind"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data, 3)

	var enrichErrors, published int
	for _, o := range resp.Data {
		if o.Stage == "enrich" && o.Status == "ERROR" {
			enrichErrors++
			assert.Equal(t, "collaborator", o.ErrorKind)
		}
		if o.Stage == "publish" && o.Status == "DONE" {
			published++
		}
	}
	assert.Equal(t, 1, enrichErrors)
	assert.Equal(t, 1, published)
}

func TestHistory_UnknownRun(t *testing.T) {
	ws := newWorkspace(t, testutil.Mails(1), "")
	_, _, err := execute(newRunCommand(ws.runOptions("text", testutil.NewScriptedEnricher(), testutil.NewFakeStore())))
	require.NoError(t, err)

	_, _, err = execute(NewHistoryCommand(ws.rootOptions("text")), "--run", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestHistory_NoJournal(t *testing.T) {
	ws := newWorkspace(t, testutil.Mails(1), "")

	_, _, err := execute(NewHistoryCommand(ws.rootOptions("text")))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "journal not found")
}

func TestHistory_JournalDisabled(t *testing.T) {
	ws := newWorkspace(t, testutil.Mails(1), "journal: off\n")

	_, _, err := execute(NewHistoryCommand(ws.rootOptions("text")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal is disabled")
}
