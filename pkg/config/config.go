// pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/David-Botos/snowplan/pkg/model"
)

// Defaults applied before any file or environment values.
const (
	DefaultConfigPath  = "config.yml"
	DefaultStatePath   = "data/state.json"
	DefaultPlanPath    = "data/plan.json"
	DefaultSQLPath     = "ddl_management"
	DefaultThreads     = 10
	DefaultEnvironment = "prod"
)

// DefaultObjectTypes are the object types managed when none are configured.
func DefaultObjectTypes() []string {
	return []string{"table", "view"}
}

// Config is the resolved tool configuration for one run. Values are layered:
// built-in defaults, then config.yml, then the active environment's block,
// then environment variables. Credentials only ever come from environment
// variables or the key file, never config.yml.
type Config struct {
	// Environment names the active environments block; DatabasePrefix comes
	// exclusively from that block and stays empty for production.
	Environment    string
	DatabasePrefix string

	SQLPath   string
	StatePath string
	PlanPath  string

	// Databases scopes the snapshot; empty means account-wide listings.
	Databases   []string
	ObjectTypes []string
	Threads     int

	Snowflake *SnowflakeConfig

	LogLevel  string
	LogFormat string
}

// fileConfig is the on-disk config.yml shape. ${VAR} references are expanded
// from the process environment before parsing.
type fileConfig struct {
	SQLPath     string   `yaml:"sql_path"`
	StatePath   string   `yaml:"state_path"`
	PlanPath    string   `yaml:"plan_path"`
	Databases   []string `yaml:"databases"`
	ObjectTypes []string `yaml:"object_types"`
	Threads     int      `yaml:"threads"`

	User           string `yaml:"user"`
	Role           string `yaml:"role"`
	Warehouse      string `yaml:"warehouse"`
	PrivateKeyPath string `yaml:"private_key_path"`

	Environments map[string]envOverride `yaml:"environments"`
}

// envOverride is one environments block entry.
type envOverride struct {
	AccountIdentifier string   `yaml:"account_identifier"`
	DatabasePrefix    string   `yaml:"database_prefix"`
	Databases         []string `yaml:"databases"`
	ObjectTypes       []string `yaml:"object_types"`
	Threads           int      `yaml:"threads"`
	Warehouse         string   `yaml:"warehouse"`
	Role              string   `yaml:"role"`
}

// Load resolves the configuration for the given environment. A missing file
// is not an error (everything can come from environment variables); naming
// an environment the file does not declare is.
func Load(path, environment string) (*Config, error) {
	cfg, fc, env, err := load(path, environment)
	if err != nil {
		return nil, err
	}

	sf, err := loadSnowflake(fc, env)
	if err != nil {
		return nil, err
	}
	cfg.Snowflake = sf

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadLocal resolves only the file-backed settings, for commands that
// never open a connection and must not demand credentials.
func LoadLocal(path, environment string) (*Config, error) {
	cfg, _, _, err := load(path, environment)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(path, environment string) (*Config, fileConfig, envOverride, error) {
	if environment == "" {
		environment = DefaultEnvironment
	}

	cfg := &Config{
		Environment: environment,
		SQLPath:     DefaultSQLPath,
		StatePath:   DefaultStatePath,
		PlanPath:    DefaultPlanPath,
		ObjectTypes: DefaultObjectTypes(),
		Threads:     DefaultThreads,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
	}

	var fc fileConfig
	var env envOverride
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &fc); err != nil {
			return nil, fc, env, model.NewFault(model.KindConfiguration,
				fmt.Errorf("parse %s: %w", path, err))
		}
		if len(fc.Environments) > 0 {
			var ok bool
			env, ok = fc.Environments[environment]
			if !ok {
				return nil, fc, env, model.NewFault(model.KindConfiguration,
					fmt.Errorf("environment %q not found in %s", environment, path))
			}
		}
	case os.IsNotExist(err):
		// Environment-variable-only setup.
	default:
		return nil, fc, env, model.NewFault(model.KindConfiguration,
			fmt.Errorf("read %s: %w", path, err))
	}

	applyString(&cfg.SQLPath, fc.SQLPath)
	applyString(&cfg.StatePath, fc.StatePath)
	applyString(&cfg.PlanPath, fc.PlanPath)
	applySlice(&cfg.Databases, fc.Databases)
	applySlice(&cfg.ObjectTypes, fc.ObjectTypes)
	applyInt(&cfg.Threads, fc.Threads)

	applySlice(&cfg.Databases, env.Databases)
	applySlice(&cfg.ObjectTypes, env.ObjectTypes)
	applyInt(&cfg.Threads, env.Threads)
	cfg.DatabasePrefix = env.DatabasePrefix

	applySlice(&cfg.Databases, getEnvAsStringSlice("SNOWFLAKE_DATABASES", nil))

	for i, t := range cfg.ObjectTypes {
		cfg.ObjectTypes[i] = strings.ToLower(strings.TrimSpace(t))
	}
	for i, d := range cfg.Databases {
		cfg.Databases[i] = strings.TrimSpace(d)
	}

	return cfg, fc, env, nil
}

// Validate ensures the resolved configuration is usable.
func (c *Config) Validate() error {
	if c.Threads <= 0 {
		return model.NewFault(model.KindConfiguration,
			fmt.Errorf("threads must be positive, got %d", c.Threads))
	}
	if len(c.ObjectTypes) == 0 {
		return model.NewFault(model.KindConfiguration,
			fmt.Errorf("at least one object type is required"))
	}
	if c.StatePath == "" || c.PlanPath == "" || c.SQLPath == "" {
		return model.NewFault(model.KindConfiguration,
			fmt.Errorf("state, plan and sql paths must all be set"))
	}
	return nil
}

func applyString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func applyInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func applySlice(dst *[]string, v []string) {
	if len(v) > 0 {
		*dst = v
	}
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
