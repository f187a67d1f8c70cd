package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jobtrail/internal/document"
	"github.com/roach88/jobtrail/internal/model"
	"github.com/roach88/jobtrail/internal/schema"
	"github.com/roach88/jobtrail/internal/testutil"
)

// workspace is a temporary directory holding a master workbook and a config
// file pointing at it.
type workspace struct {
	dir    string
	master string
	config string
}

// clearEnv keeps the developer's environment out of config loading.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"JOBTRAIL_CONFIG", "JOBTRAIL_MASTER", "JOBTRAIL_LOCAL_DIR", "JOBTRAIL_JOURNAL",
		"JOBTRAIL_LOG_LEVEL", "LLM_API_KEY", "OPENAI_API_KEY", "LLM_MODEL", "LLM_ENDPOINT",
		"NOTION_TOKEN", "NOTION_DATABASE_ID", "GOOGLE_APPLICATION_CREDENTIALS",
	} {
		t.Setenv(k, "")
	}
}

func newWorkspace(t *testing.T, master []model.Row, extraConfig string) *workspace {
	t.Helper()
	clearEnv(t)

	dir := t.TempDir()
	ws := &workspace{
		dir:    dir,
		master: filepath.Join(dir, "master.xlsx"),
		config: filepath.Join(dir, "jobtrail.yaml"),
	}
	ws.writeMaster(t, master)

	cfg := fmt.Sprintf("master: %s\nlocal_dir: %s\nlog_level: error\nllm:\n  api_key: test-key\n%s",
		ws.master, filepath.Join(dir, "data"), extraConfig)
	require.NoError(t, os.WriteFile(ws.config, []byte(cfg), 0o644))
	return ws
}

func (ws *workspace) writeMaster(t *testing.T, rows []model.Row) {
	t.Helper()
	ms := make([]model.Row, len(rows))
	for i, r := range rows {
		ms[i] = testutil.Master(r)
	}
	err := document.NewWorkbook(ws.master, "").Write(context.Background(), model.Encode(ms, nil, nil))
	require.NoError(t, err)
}

func (ws *workspace) localPath() string {
	return filepath.Join(ws.dir, "data", "master.xlsx")
}

func (ws *workspace) journalPath() string {
	return filepath.Join(ws.dir, "data", "jobtrail.db")
}

func (ws *workspace) localRows(t *testing.T) []model.Row {
	t.Helper()
	tbl, err := document.NewWorkbook(ws.localPath(), "").Read(context.Background())
	require.NoError(t, err)
	return model.Decode(tbl, schema.MustLoad().FieldNames())
}

func (ws *workspace) writeLocal(t *testing.T, rows []model.Row) {
	t.Helper()
	fields := schema.MustLoad().FieldNames()
	err := document.NewWorkbook(ws.localPath(), "").Write(context.Background(), model.Encode(rows, nil, fields))
	require.NoError(t, err)
}

func (ws *workspace) rootOptions(format string) *RootOptions {
	return &RootOptions{Format: format, ConfigPath: ws.config}
}

// runOptions overrides every external collaborator of a run.
func (ws *workspace) runOptions(format string, e *testutil.ScriptedEnricher, s *testutil.FakeStore) *RunOptions {
	return &RunOptions{
		RootOptions: ws.rootOptions(format),
		RunIDs:      testutil.NewFixedRunID("run-a"),
		Clock:       testutil.NewStepClock(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), time.Second),
		Enricher:    e,
		Store:       s,
	}
}

// execute runs cmd with args and returns what it wrote to stdout and stderr.
func execute(cmd *cobra.Command, args ...string) (stdout, stderr string, err error) {
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}
