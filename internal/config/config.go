// Package config loads jobtrail settings: defaults, then an optional YAML
// file, then environment variables. A .env file may seed the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/jobtrail/internal/document"
)

const (
	// DefaultFile is read when no config path is given and it exists.
	DefaultFile = "jobtrail.yaml"

	// JournalOff disables the run journal.
	JournalOff = "off"

	configPathEnv  = "JOBTRAIL_CONFIG"
	masterEnv      = "JOBTRAIL_MASTER"
	localDirEnv    = "JOBTRAIL_LOCAL_DIR"
	journalEnv     = "JOBTRAIL_JOURNAL"
	logLevelEnv    = "JOBTRAIL_LOG_LEVEL"
	llmAPIKeyEnv   = "LLM_API_KEY"
	openAIKeyEnv   = "OPENAI_API_KEY"
	llmModelEnv    = "LLM_MODEL"
	llmEndpointEnv = "LLM_ENDPOINT"
	notionTokenEnv = "NOTION_TOKEN"
	notionDBEnv    = "NOTION_DATABASE_ID"
	credentialsEnv = "GOOGLE_APPLICATION_CREDENTIALS"
)

// Config holds every setting a run needs.
type Config struct {
	// Master is the master document: a workbook path or
	// gsheet://<spreadsheet-id>/<sheet>.
	Master string `yaml:"master"`

	// Sheet is the worksheet read from a workbook master. Empty reads the
	// first sheet.
	Sheet string `yaml:"sheet"`

	// LocalDir holds the local working copy.
	LocalDir string `yaml:"local_dir"`

	// Journal is the SQLite journal path, or "off".
	Journal string `yaml:"journal"`

	// Credentials is a Google service account key file for sheet masters.
	Credentials string `yaml:"credentials"`

	LogLevel string `yaml:"log_level"`

	LLM    LLMConfig    `yaml:"llm"`
	Notion NotionConfig `yaml:"notion"`
}

// LLMConfig configures the enrichment model endpoint.
type LLMConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// NotionConfig configures the hosted database. Publication is skipped when
// both the token and the database id are empty.
type NotionConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Token      string        `yaml:"token"`
	DatabaseID string        `yaml:"database_id"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LocalDir: "data",
		LogLevel: "info",
		LLM: LLMConfig{
			Endpoint: "https://api.openai.com/v1/chat/completions",
			Model:    "gpt-4o-mini",
			Timeout:  60 * time.Second,
		},
		Notion: NotionConfig{
			BaseURL: "https://api.notion.com/v1",
			Timeout: 30 * time.Second,
		},
	}
}

// LoadDotEnv loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the config file at path and applies environment overrides.
// With an empty path, JOBTRAIL_CONFIG is used, then DefaultFile if it
// exists; without any file only defaults and environment apply.
func Load(path string) (Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if p := getenv(configPathEnv); p != "" {
			path, explicit = p, true
		} else {
			path = DefaultFile
		}
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv(getenv)
	if cfg.Journal == "" {
		cfg.Journal = filepath.Join(cfg.LocalDir, "jobtrail.db")
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	set(&c.Master, masterEnv)
	set(&c.LocalDir, localDirEnv)
	set(&c.Journal, journalEnv)
	set(&c.LogLevel, logLevelEnv)
	set(&c.Credentials, credentialsEnv)
	set(&c.LLM.APIKey, llmAPIKeyEnv, openAIKeyEnv)
	set(&c.LLM.Model, llmModelEnv)
	set(&c.LLM.Endpoint, llmEndpointEnv)
	set(&c.Notion.Token, notionTokenEnv)
	set(&c.Notion.DatabaseID, notionDBEnv)
}

// JournalEnabled reports whether runs are journaled.
func (c Config) JournalEnabled() bool {
	return c.Journal != "" && c.Journal != JournalOff
}

// PublishEnabled reports whether a hosted database is configured.
func (c Config) PublishEnabled() bool {
	return c.Notion.Token != "" || c.Notion.DatabaseID != ""
}

// MasterLocation parses Master.
func (c Config) MasterLocation() (document.Location, error) {
	return document.ParseLocation(c.Master)
}

// LocalPath is the local working copy path derived from the master.
func (c Config) LocalPath() (string, error) {
	loc, err := c.MasterLocation()
	if err != nil {
		return "", err
	}
	return document.LocalPath(c.LocalDir, loc), nil
}

// ValidateLocal checks the settings needed to read the local working copy.
func (c Config) ValidateLocal() error {
	var errs []error
	loc, err := c.MasterLocation()
	if err != nil {
		errs = append(errs, fmt.Errorf("master: %w", err))
	}
	if strings.TrimSpace(c.LocalDir) == "" {
		errs = append(errs, errors.New("local_dir is required"))
	} else if err == nil && !loc.IsSheet() {
		if err := c.checkDistinctLocal(loc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// checkDistinctLocal rejects a local_dir that places the working copy on top
// of a file master.
func (c Config) checkDistinctLocal(loc document.Location) error {
	local, err := filepath.Abs(document.LocalPath(c.LocalDir, loc))
	if err != nil {
		return fmt.Errorf("local_dir: %w", err)
	}
	master, err := filepath.Abs(loc.Path)
	if err != nil {
		return fmt.Errorf("master: %w", err)
	}
	if local == master {
		return fmt.Errorf("local copy %s would overwrite the master; set local_dir to another directory", local)
	}
	return nil
}

// Validate checks the settings a full run needs.
func (c Config) Validate() error {
	errs := []error{c.ValidateLocal()}

	if loc, err := c.MasterLocation(); err == nil && loc.IsSheet() && c.Credentials == "" {
		errs = append(errs, fmt.Errorf("credentials are required for a Google Sheets master (set %s)", credentialsEnv))
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, fmt.Errorf("llm api key is required (set %s)", llmAPIKeyEnv))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm model is required"))
	}
	if c.PublishEnabled() {
		if c.Notion.Token == "" {
			errs = append(errs, fmt.Errorf("notion token is required with a database id (set %s)", notionTokenEnv))
		}
		if c.Notion.DatabaseID == "" {
			errs = append(errs, fmt.Errorf("notion database id is required with a token (set %s)", notionDBEnv))
		}
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}
