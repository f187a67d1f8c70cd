package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "jobtrail.yaml", `
master: inbox/applications.xlsx
sheet: Mail
local_dir: work
llm:
  model: gpt-4.1-mini
  timeout: 90s
notion:
  database_id: db-1
`)

	cfg, err := load(path, env(nil))
	require.NoError(t, err)

	assert.Equal(t, "inbox/applications.xlsx", cfg.Master)
	assert.Equal(t, "Mail", cfg.Sheet)
	assert.Equal(t, "work", cfg.LocalDir)
	assert.Equal(t, filepath.Join("work", "jobtrail.db"), cfg.Journal)
	assert.Equal(t, "gpt-4.1-mini", cfg.LLM.Model)
	assert.Equal(t, 90*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, Default().LLM.Endpoint, cfg.LLM.Endpoint, "unset keys keep defaults")
	assert.Equal(t, "db-1", cfg.Notion.DatabaseID)
	assert.Equal(t, 30*time.Second, cfg.Notion.Timeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "jobtrail.yaml", "master: a.xlsx\nllm:\n  api_key: from-file\n")

	cfg, err := load(path, env(map[string]string{
		"JOBTRAIL_MASTER":    "gsheet://abc/Inbox",
		"OPENAI_API_KEY":     "openai",
		"NOTION_TOKEN":       "secret",
		"NOTION_DATABASE_ID": "db-2",
		"JOBTRAIL_JOURNAL":   "off",
	}))
	require.NoError(t, err)

	assert.Equal(t, "gsheet://abc/Inbox", cfg.Master)
	assert.Equal(t, "openai", cfg.LLM.APIKey)
	assert.Equal(t, "secret", cfg.Notion.Token)
	assert.Equal(t, "db-2", cfg.Notion.DatabaseID)
	assert.False(t, cfg.JournalEnabled())
}

func TestLoad_LLMKeyPrecedence(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "absent.yaml"), env(nil))
	require.Error(t, err, "explicit path must exist")

	cfg, err := load("", env(map[string]string{
		"JOBTRAIL_CONFIG": "",
		"LLM_API_KEY":     "generic",
		"OPENAI_API_KEY":  "openai",
	}))
	require.NoError(t, err)
	assert.Equal(t, "generic", cfg.LLM.APIKey)
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	path := writeFile(t, "custom.yaml", "master: m.xlsx\n")

	cfg, err := load("", env(map[string]string{"JOBTRAIL_CONFIG": path}))
	require.NoError(t, err)
	assert.Equal(t, "m.xlsx", cfg.Master)

	_, err = load("", env(map[string]string{"JOBTRAIL_CONFIG": path + ".missing"}))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "master: [unterminated\n")

	_, err := load(path, env(nil))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "JOBTRAIL_TEST_DOTENV=from-file\nJOBTRAIL_TEST_KEEP=from-file\n")
	t.Setenv("JOBTRAIL_TEST_KEEP", "from-env")
	t.Setenv("JOBTRAIL_TEST_DOTENV", "")
	os.Unsetenv("JOBTRAIL_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(path))

	assert.Equal(t, "from-file", os.Getenv("JOBTRAIL_TEST_DOTENV"))
	assert.Equal(t, "from-env", os.Getenv("JOBTRAIL_TEST_KEEP"), "existing variables win")
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")), "missing file is fine")
}

func TestLocalPath(t *testing.T) {
	cfg := Default()
	cfg.Master = "/shared/OneDrive/applications.xlsx"

	got, err := cfg.LocalPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("data", "applications.xlsx"), got)

	cfg.Master = "gsheet://sheet-123/Inbox"
	got, err = cfg.LocalPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("data", "sheet-123.xlsx"), got)

	cfg.Master = ""
	_, err = cfg.LocalPath()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Master = "m.xlsx"
		cfg.LLM.APIKey = "key"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid without notion", func(*Config) {}, ""},
		{"valid with notion", func(c *Config) { c.Notion.Token, c.Notion.DatabaseID = "t", "db" }, ""},
		{"missing master", func(c *Config) { c.Master = "" }, "master"},
		{"missing local dir", func(c *Config) { c.LocalDir = " " }, "local_dir is required"},
		{"missing api key", func(c *Config) { c.LLM.APIKey = "" }, "LLM_API_KEY"},
		{"token without database", func(c *Config) { c.Notion.Token = "t" }, "NOTION_DATABASE_ID"},
		{"database without token", func(c *Config) { c.Notion.DatabaseID = "db" }, "NOTION_TOKEN"},
		{"sheet without credentials", func(c *Config) { c.Master = "gsheet://abc" }, "GOOGLE_APPLICATION_CREDENTIALS"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "unknown log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateLocal_IgnoresCollaborators(t *testing.T) {
	cfg := Default()
	cfg.Master = "m.xlsx"

	assert.NoError(t, cfg.ValidateLocal())
	assert.Error(t, cfg.Validate())
}

func TestValidateLocal_RejectsLocalCopyOverMaster(t *testing.T) {
	tests := []struct {
		name     string
		master   string
		localDir string
		wantErr  bool
	}{
		{"same relative dir", filepath.Join("data", "Jobs.xlsx"), "data", true},
		{"same dir spelled differently", filepath.Join("data", "Jobs.xlsx"), filepath.Join(".", "data", "sub", ".."), true},
		{"absolute and relative", filepath.Join("data", "Jobs.xlsx"), mustAbs(t, "data"), true},
		{"different dir", filepath.Join("shared", "Jobs.xlsx"), "data", false},
		{"sheet master", "gsheet://sheet-123/Inbox", "data", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Master = tt.master
			cfg.LocalDir = tt.localDir

			err := cfg.ValidateLocal()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), "would overwrite the master")
		})
	}
}

func mustAbs(t *testing.T, path string) string {
	t.Helper()
	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	return abs
}
