// Package config loads launchbot's configuration once at startup.
// Sources, later overriding earlier:
// 1. Defaults
// 2. .env file (only fills variables not already set)
// 3. Environment variables, with secrets falling back to the system keyring
// 4. Department overrides from LAUNCHBOT_DEPARTMENTS_FILE (YAML)
//
// Every problem found is reported together in one ConfigurationError.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/launchbot/credentials"
	"github.com/otherjamesbrown/launchbot/pkg/db"
	lberrors "github.com/otherjamesbrown/launchbot/pkg/errors"
	"github.com/otherjamesbrown/launchbot/pkg/launch"
	"github.com/otherjamesbrown/launchbot/pkg/logging"
	"github.com/otherjamesbrown/launchbot/pkg/server"
	"github.com/otherjamesbrown/launchbot/pkg/session"
	"github.com/otherjamesbrown/launchbot/pkg/sheets"
	"github.com/otherjamesbrown/launchbot/pkg/summarizer"
	"github.com/otherjamesbrown/launchbot/pkg/warehouse"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON output for machine processing.
	OutputFormatJSON OutputFormat = "json"
)

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	return f == OutputFormatText || f == OutputFormatJSON
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// DefaultEnvFile is read when present.
const DefaultEnvFile = ".env"

// TableEnvVars maps each department to the variable naming its table.
var TableEnvVars = map[launch.DepartmentKey]string{
	launch.DepartmentBOM:   "DATABRICKS_TABLES_BILL_OF_MATERIAL",
	launch.DepartmentMPL:   "DATABRICKS_TABLES_MASTER_PARTS_LIST",
	launch.DepartmentMFE:   "DATABRICKS_TABLES_MATERIAL_FLOW_ENGINEERING",
	launch.DepartmentFourP: "DATABRICKS_TABLES_4P",
	launch.DepartmentPPAP:  "DATABRICKS_TABLES_PPAP",
}

// SecretSource resolves secrets that are not in the environment.
type SecretSource interface {
	Lookup(name string) (string, error)
}

// Options controls Load.
type Options struct {
	// EnvFile is read before the environment. Empty means DefaultEnvFile;
	// a missing file is ignored.
	EnvFile string
	// RequireSlack adds the Slack token and signing secret to the required keys.
	RequireSlack bool
	// Secrets is consulted for secrets missing from the environment.
	// Nil disables the keyring.
	Secrets SecretSource
}

// SlackConfig holds the Slack app credentials.
type SlackConfig struct {
	BotToken      string
	SigningSecret string
}

// Config is launchbot's complete, validated configuration.
type Config struct {
	Environment string
	LogLevel    logging.Level
	LogJSON     bool

	Warehouse   *warehouse.Config
	Catalog     *launch.Catalog
	Departments []launch.DepartmentQuerySpec
	Runner      launch.RunnerConfig
	Executor    launch.ExecutorConfig

	// Database is nil when no command log database is configured.
	Database            *db.Config
	CommandLogRetention time.Duration

	// RedisURL is empty when sessions stay in process.
	RedisURL   string
	SessionTTL time.Duration

	Summarizer summarizer.Config
	Sheets     sheets.Config
	Slack      SlackConfig
	Server     server.Config
}

// DatabaseEnabled reports whether a command log database is configured.
func (c *Config) DatabaseEnabled() bool {
	return c.Database != nil
}

// LoggingConfig builds the logger configuration.
func (c *Config) LoggingConfig() *logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = c.LogLevel
	lc.JSONFormat = c.LogJSON
	lc.Environment = c.Environment
	return lc
}

// loader accumulates problems while reading values.
type loader struct {
	problems *lberrors.ConfigurationError
	secrets  SecretSource
}

func (l *loader) str(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func (l *loader) required(key string) string {
	v := l.str(key)
	if v == "" {
		l.problems.AddMissing(key)
	}
	return v
}

func (l *loader) secret(name string, required bool) string {
	env, _ := credentials.EnvVar(name)
	if v := l.str(env); v != "" {
		return v
	}
	if l.secrets != nil {
		v, err := l.secrets.Lookup(name)
		if err != nil && !errors.Is(err, credentials.ErrKeyringUnavailable) {
			l.problems.AddInvalid(env, err.Error())
		}
		if v != "" {
			return v
		}
	}
	if required {
		l.problems.AddMissing(env)
	}
	return ""
}

func (l *loader) duration(key string, def time.Duration) time.Duration {
	v := l.str(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		l.problems.AddInvalid(key, fmt.Sprintf("%q is not a positive duration", v))
		return def
	}
	return d
}

func (l *loader) integer(key string, def int) int {
	v := l.str(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		l.problems.AddInvalid(key, fmt.Sprintf("%q is not a positive integer", v))
		return def
	}
	return n
}

func (l *loader) float(key string, def float64) float64 {
	v := l.str(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		l.problems.AddInvalid(key, fmt.Sprintf("%q is not a non-negative number", v))
		return def
	}
	return f
}

func (l *loader) boolean(key string) bool {
	v := strings.ToLower(l.str(key))
	return v == "true" || v == "1" || v == "yes"
}

// Load reads the configuration. The returned error, when not nil, is a
// *errors.ConfigurationError listing every problem.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	l := &loader{problems: &lberrors.ConfigurationError{}, secrets: opts.Secrets}

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		l.problems.AddInvalid(envFile, err.Error())
	}

	cfg := &Config{
		Environment:         l.str("LAUNCHBOT_ENV"),
		LogLevel:            logging.ParseLevel(l.str("LAUNCHBOT_LOG_LEVEL")),
		LogJSON:             l.boolean("LAUNCHBOT_LOG_JSON"),
		RedisURL:            l.str("REDIS_URL"),
		SessionTTL:          l.duration("SESSION_TTL", session.DefaultTTL),
		CommandLogRetention: l.duration("LAUNCHBOT_COMMAND_LOG_RETENTION", 90*24*time.Hour),
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	// Warehouse connection.
	cfg.Warehouse = warehouse.ConfigFromEnv(l.problems.AddInvalid)
	l.required("DATABRICKS_HOST")
	l.required("DATABRICKS_HTTP_PATH")
	cfg.Warehouse.Token = l.secret(credentials.DatabricksToken, true)
	catalogName := l.required("DATABRICKS_CATALOG")
	schema := l.required("DATABRICKS_SCHEMA")

	// Batch and query bounds.
	cfg.Runner = launch.DefaultRunnerConfig()
	cfg.Runner.BatchTimeout = l.duration("LAUNCHBOT_BATCH_TIMEOUT", cfg.Runner.BatchTimeout)
	cfg.Runner.MaxParallel = l.integer("LAUNCHBOT_MAX_PARALLEL", cfg.Runner.MaxParallel)
	cfg.Executor = launch.DefaultExecutorConfig()
	cfg.Executor.QueryTimeout = l.duration("LAUNCHBOT_QUERY_TIMEOUT", cfg.Executor.QueryTimeout)
	cfg.Warehouse.QueryTimeout = cfg.Executor.QueryTimeout
	if cfg.Warehouse.MaxOpenConns < cfg.Runner.MaxParallel {
		l.problems.AddInvalid("DATABRICKS_MAX_CONNS",
			fmt.Sprintf("%d is below LAUNCHBOT_MAX_PARALLEL (%d)", cfg.Warehouse.MaxOpenConns, cfg.Runner.MaxParallel))
	}

	// Departments.
	tables := make(map[launch.DepartmentKey]string, len(TableEnvVars))
	for key, env := range TableEnvVars {
		tables[key] = l.str(env)
	}
	specs := launch.DefaultDepartments(tables)
	if path := l.str("LAUNCHBOT_DEPARTMENTS_FILE"); path != "" {
		overrides, err := LoadDepartmentOverrides(path)
		if err != nil {
			l.problems.AddInvalid("LAUNCHBOT_DEPARTMENTS_FILE", err.Error())
		} else {
			specs = ApplyOverrides(specs, overrides)
		}
	}
	for _, s := range specs {
		if s.Table == "" {
			l.problems.AddMissing(TableEnvVars[s.Key])
		}
	}
	cfg.Departments = specs
	if !l.problems.HasProblems() {
		catalog, err := launch.NewCatalog(catalogName, schema, specs)
		if err != nil {
			l.problems.AddInvalid("departments", err.Error())
		}
		cfg.Catalog = catalog
	}

	// Command log database.
	if db.Enabled() {
		cfg.Database = db.ConfigFromEnv(l.problems.AddInvalid)
		if err := cfg.Database.Validate(); err != nil {
			l.problems.AddInvalid("DATABASE_URL", err.Error())
		}
	}

	// Summarizer.
	cfg.Summarizer = summarizer.DefaultConfig()
	if p := strings.ToLower(l.str("AI_PROVIDER")); p != "" {
		cfg.Summarizer.Provider = p
	}
	switch cfg.Summarizer.Provider {
	case summarizer.ProviderOpenAI:
		cfg.Summarizer.APIKey = l.secret(credentials.OpenAIAPIKey, false)
		if v := l.str("OPENAI_BASE_URL"); v != "" {
			cfg.Summarizer.BaseURL = v
		}
		if v := l.str("OPENAI_MODEL"); v != "" {
			cfg.Summarizer.Model = v
		}
	case summarizer.ProviderGemini:
		cfg.Summarizer.APIKey = l.secret(credentials.GeminiAPIKey, false)
		if v := l.str("GEMINI_MODEL"); v != "" {
			cfg.Summarizer.Model = v
		}
	default:
		l.problems.AddInvalid("AI_PROVIDER", fmt.Sprintf("%q is not openai or gemini", cfg.Summarizer.Provider))
	}
	cfg.Summarizer.Timeout = l.duration("AI_TIMEOUT", cfg.Summarizer.Timeout)

	// Dashboards.
	cfg.Sheets = sheets.Config{
		CredentialsFile: l.str("GOOGLE_SHEETS_CREDENTIALS_FILE"),
		TemplateID:      l.str("DASHBOARD_TEMPLATE_ID"),
		ShareDomain:     l.str("DASHBOARD_SHARE_DOMAIN"),
		ShareAnyone:     l.boolean("DASHBOARD_SHARE_ANYONE"),
	}
	if f := cfg.Sheets.CredentialsFile; f != "" {
		if _, err := os.Stat(f); err != nil {
			l.problems.AddInvalid("GOOGLE_SHEETS_CREDENTIALS_FILE", fmt.Sprintf("%s is not readable", f))
		}
	}

	// Slack and HTTP.
	cfg.Slack = SlackConfig{
		BotToken:      l.secret(credentials.SlackBotToken, opts.RequireSlack),
		SigningSecret: l.secret(credentials.SlackSigningSecret, opts.RequireSlack),
	}
	cfg.Server = server.DefaultConfig()
	if v := l.str("LAUNCHBOT_LISTEN_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	cfg.Server.SigningSecret = cfg.Slack.SigningSecret
	cfg.Server.RateLimit.RequestsPerSecond = l.float("LAUNCHBOT_RATE_LIMIT_RPS", cfg.Server.RateLimit.RequestsPerSecond)
	cfg.Server.RateLimit.Burst = l.integer("LAUNCHBOT_RATE_LIMIT_BURST", cfg.Server.RateLimit.Burst)
	cfg.Server.CommandTimeout = cfg.Runner.BatchTimeout + cfg.Summarizer.Timeout + 30*time.Second

	if err := l.problems.OrNil(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DepartmentOverride changes one department's stock query layout. Empty
// fields keep the default.
type DepartmentOverride struct {
	Key             launch.DepartmentKey   `yaml:"key"`
	Table           string                 `yaml:"table"`
	DateColumn      string                 `yaml:"date_column"`
	Columns         []string               `yaml:"columns"`
	Completion      *launch.CompletionRule `yaml:"completion"`
	TimestampColumn string                 `yaml:"timestamp_column"`
}

type departmentsFile struct {
	Departments []DepartmentOverride `yaml:"departments"`
}

// LoadDepartmentOverrides reads a YAML departments file.
func LoadDepartmentOverrides(path string) ([]DepartmentOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading departments file: %w", err)
	}

	var f departmentsFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing departments file: %w", err)
	}

	for i, o := range f.Departments {
		key, err := launch.ParseDepartmentKey(string(o.Key))
		if err != nil {
			return nil, fmt.Errorf("departments[%d]: %w", i, err)
		}
		f.Departments[i].Key = key
	}
	return f.Departments, nil
}

// ApplyOverrides returns specs with overrides merged in. A table set in the
// environment wins over one in the file.
func ApplyOverrides(specs []launch.DepartmentQuerySpec, overrides []DepartmentOverride) []launch.DepartmentQuerySpec {
	out := make([]launch.DepartmentQuerySpec, len(specs))
	copy(out, specs)

	for _, o := range overrides {
		for i := range out {
			s := &out[i]
			if s.Key != o.Key {
				continue
			}
			if s.Table == "" && o.Table != "" {
				s.Table = o.Table
			}
			if o.DateColumn != "" {
				s.DateColumn = o.DateColumn
			}
			if len(o.Columns) > 0 {
				s.Columns = append([]string(nil), o.Columns...)
			}
			if o.Completion != nil {
				rule := launch.CompletionRule{
					Column: s.Completion.Column,
					Values: append([]string(nil), s.Completion.Values...),
				}
				if o.Completion.Column != "" {
					rule.Column = o.Completion.Column
				}
				if len(o.Completion.Values) > 0 {
					rule.Values = append([]string(nil), o.Completion.Values...)
				}
				s.Completion = rule
			}
			if o.TimestampColumn != "" {
				s.TimestampColumn = o.TimestampColumn
			}
		}
	}
	return out
}

// Setting is one line of `launchbot config show`.
type Setting struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Describe lists the effective settings with secrets masked.
func (c *Config) Describe() []Setting {
	enabled := func(b bool) string {
		if b {
			return "enabled"
		}
		return "disabled"
	}

	sessions := "memory"
	if c.RedisURL != "" {
		sessions = "redis"
	}

	out := []Setting{
		{"environment", c.Environment},
		{"log_level", string(c.LogLevel)},
		{"warehouse.host", c.Warehouse.Host},
		{"warehouse.http_path", c.Warehouse.HTTPPath},
		{"warehouse.token", credentials.Mask(c.Warehouse.Token)},
		{"warehouse.max_conns", strconv.Itoa(c.Warehouse.MaxOpenConns)},
		{"batch.max_parallel", strconv.Itoa(c.Runner.MaxParallel)},
		{"batch.timeout", c.Runner.BatchTimeout.String()},
		{"query.timeout", c.Executor.QueryTimeout.String()},
	}
	if c.Catalog != nil {
		for _, d := range c.Catalog.Departments() {
			out = append(out, Setting{"departments." + string(d.Key), c.Catalog.QualifiedTable(d.Table)})
		}
	}
	out = append(out,
		Setting{"command_log", enabled(c.DatabaseEnabled())},
		Setting{"sessions", sessions},
		Setting{"session_ttl", c.SessionTTL.String()},
		Setting{"summarizer.provider", c.Summarizer.Provider},
		Setting{"summarizer.model", c.Summarizer.Model},
		Setting{"summarizer", enabled(c.Summarizer.Enabled())},
		Setting{"dashboards", enabled(c.Sheets.Enabled())},
		Setting{"slack.bot_token", credentials.Mask(c.Slack.BotToken)},
		Setting{"slack.signing_secret", credentials.Mask(c.Slack.SigningSecret)},
		Setting{"server.addr", c.Server.Addr},
		Setting{"server.rate_limit", fmt.Sprintf("%g/s burst %d", c.Server.RateLimit.RequestsPerSecond, c.Server.RateLimit.Burst)},
	)
	return out
}
