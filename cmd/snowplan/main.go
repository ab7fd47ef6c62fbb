// cmd/snowplan/main.go

// Command snowplan manages Snowflake schema objects declaratively. It
// snapshots live definitions into versioned SQL files, then plans and
// applies whatever changes bring Snowflake in line with those files.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/David-Botos/snowplan/pkg/apply"
	"github.com/David-Botos/snowplan/pkg/config"
	"github.com/David-Botos/snowplan/pkg/connector"
	"github.com/David-Botos/snowplan/pkg/ddl"
	"github.com/David-Botos/snowplan/pkg/lineage"
	"github.com/David-Botos/snowplan/pkg/model"
	"github.com/David-Botos/snowplan/pkg/plan"
	"github.com/David-Botos/snowplan/pkg/state"
)

const version = "0.1.0"

// CLI defines the command-line interface for snowplan.
var CLI struct {
	// Global flags
	Config      string `short:"c" default:"config.yml" help:"Path to the project configuration file"`
	Environment string `short:"e" default:"prod" help:"Environment block to activate"`
	Verbose     bool   `short:"v" help:"Log at debug level"`
	Quiet       bool   `short:"q" help:"Log warnings and errors only"`

	State   StateGroup `cmd:"" help:"State snapshot operations"`
	Plan    PlanCmd    `cmd:"" help:"Diff definitions against the recorded state and write a plan"`
	Apply   ApplyCmd   `cmd:"" help:"Execute the persisted plan against Snowflake"`
	Trace   TraceCmd   `cmd:"" help:"List objects whose definitions reference a given object"`
	Init    InitCmd    `cmd:"" help:"Scaffold a new snowplan project"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// StateGroup contains state snapshot operations.
type StateGroup struct {
	Refresh StateRefreshCmd `cmd:"" help:"Snapshot live definitions into SQL files and the state file"`
	Verify  StateVerifyCmd  `cmd:"" help:"Cross-check the state file against the definition tree"`
}

// StateRefreshCmd exports every managed object's definition.
type StateRefreshCmd struct {
	Threads int `help:"Override the configured worker count"`
}

func (c *StateRefreshCmd) Run() error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	conn, err := openConnector(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	store := state.NewStore(cfg.StatePath)
	layout := state.Layout{Root: cfg.SQLPath, Account: cfg.Snowflake.Account}
	collector := state.NewCollector(conn, store, layout, cfg)
	if c.Threads > 0 {
		collector = collector.WithWorkerCount(c.Threads)
	}

	summary, err := collector.Refresh(ctx)
	if summary != nil {
		fmt.Print(summary.Render())
	}
	return err
}

// StateVerifyCmd checks snapshot integrity without touching Snowflake.
type StateVerifyCmd struct{}

func (c *StateVerifyCmd) Run() error {
	cfg, err := bootstrapLocal()
	if err != nil {
		return err
	}

	verifier := state.NewVerifier(state.NewStore(cfg.StatePath), cfg.SQLPath)
	report, err := verifier.Verify()
	if err != nil {
		return err
	}
	fmt.Print(report.Render())
	if !report.OK() {
		return fmt.Errorf("verification failed: %d issue(s)", len(report.Discrepancies))
	}
	return nil
}

// PlanCmd generates and validates an execution plan.
type PlanCmd struct {
	Diff bool `help:"Show unified diffs and generated alter statements"`
}

func (c *PlanCmd) Run() error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	conn, err := openConnector(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	store := state.NewStore(cfg.StatePath)
	rewriter := ddl.NewRewriter(cfg.Environment, cfg.DatabasePrefix)
	validator := plan.NewValidator(conn, rewriter)
	engine := plan.NewEngine(store, validator, model.DefaultPolicies(), cfg)

	p, err := engine.Generate(ctx)
	if err != nil {
		return err
	}
	fmt.Print(plan.Render(p, c.Diff))
	return nil
}

// ApplyCmd executes the persisted plan.
type ApplyCmd struct {
	DryRun           bool   `help:"Log the statements without executing anything"`
	ApproveDangerous bool   `help:"Allow replacement and drop of protected object types"`
	Strategy         string `enum:"alter-first,replace" default:"alter-first" help:"How to bring modified objects in line"`
}

func (c *ApplyCmd) Run() error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	conn, err := openConnector(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	rewriter := ddl.NewRewriter(cfg.Environment, cfg.DatabasePrefix)
	runner := apply.NewRunner(conn, rewriter, model.DefaultPolicies(), cfg, apply.Options{
		Strategy:         apply.Strategy(c.Strategy),
		DryRun:           c.DryRun,
		ApproveDangerous: c.ApproveDangerous,
	})

	summary, err := runner.Run(ctx)
	if summary != nil {
		fmt.Print(summary.Render())
	}
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d object(s) failed to apply", summary.Failed)
	}
	return nil
}

// TraceCmd walks the state snapshot for dependents of one object.
type TraceCmd struct {
	Type string `required:"" help:"Object type to trace (e.g. table, view)"`
	FQN  string `required:"" help:"Fully qualified name (e.g. db.schema.orders)"`
}

func (c *TraceCmd) Run() error {
	cfg, err := bootstrapLocal()
	if err != nil {
		return err
	}

	store := state.NewStore(cfg.StatePath)
	if err := store.Load(); err != nil {
		return err
	}

	tracer := lineage.NewTracer(store.Objects())
	nodes, err := tracer.Trace(c.Type, c.FQN)
	if err != nil {
		return err
	}

	if len(nodes) == 0 {
		fmt.Printf("No objects reference %s %s.\n", c.Type, c.FQN)
		return nil
	}

	fmt.Printf("Objects referencing %s %s:\n", c.Type, c.FQN)
	for _, n := range nodes {
		fmt.Printf("%s%s: %s\n", strings.Repeat("  ", n.Depth), n.Type, n.FQN)
	}
	return nil
}

// InitCmd scaffolds a project directory.
type InitCmd struct {
	Dir string `arg:"" default:"." help:"Directory to initialize"`
}

func (c *InitCmd) Run() error {
	configPath := filepath.Join(c.Dir, config.DefaultConfigPath)
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}

	for _, sub := range []string{config.DefaultSQLPath, "data"} {
		if err := os.MkdirAll(filepath.Join(c.Dir, sub), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", sub, err)
		}
	}

	if err := os.WriteFile(configPath, []byte(initConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", configPath, err)
	}

	fmt.Printf("Initialized snowplan project in %s\n", c.Dir)
	fmt.Printf("  %s\n", configPath)
	fmt.Printf("  %s%c\n", filepath.Join(c.Dir, config.DefaultSQLPath), filepath.Separator)
	fmt.Printf("  %s%c\n", filepath.Join(c.Dir, "data"), filepath.Separator)
	fmt.Println()
	fmt.Println("Set SNOWFLAKE_USER plus SNOWFLAKE_PASSWORD or SNOWFLAKE_PRIVATE_KEY_PATH,")
	fmt.Println("edit config.yml, then run: snowplan state refresh")
	return nil
}

const initConfigTemplate = `# snowplan project configuration.
#
# Credentials never live in this file. Set SNOWFLAKE_USER plus either
# SNOWFLAKE_PASSWORD or SNOWFLAKE_PRIVATE_KEY_PATH in the environment or
# a .env file. SNOWFLAKE_ACCOUNT overrides account_identifier below.
# Values may reference environment variables as ${VAR}.

sql_path: ddl_management
state_path: data/state.json
plan_path: data/plan.json
threads: 10

# Databases to snapshot. Remove the list to list objects account-wide.
databases:
  - analytics

object_types:
  - table
  - view
  - materialized view
  - file format
  - stage
  - procedure
  - function

environments:
  prod:
    account_identifier: myorg-prod
  dev:
    account_identifier: myorg-dev
    database_prefix: dev_
`

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("snowplan v%s\n", version)
	return nil
}

// bootstrap resolves configuration including credentials and installs the
// global logger. Connected commands go through here.
func bootstrap() (*config.Config, error) {
	cfg, err := config.Load(CLI.Config, CLI.Environment)
	if err != nil {
		return nil, err
	}
	if err := initLogging(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bootstrapLocal is bootstrap for commands that never open a connection
// and must work without credentials.
func bootstrapLocal() (*config.Config, error) {
	cfg, err := config.LoadLocal(CLI.Config, CLI.Environment)
	if err != nil {
		return nil, err
	}
	if err := initLogging(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initLogging(cfg *config.Config) error {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	if CLI.Verbose {
		level = zapcore.DebugLevel
	}
	if CLI.Quiet {
		level = zapcore.WarnLevel
	}

	var zc zap.Config
	if cfg.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM so a
// running refresh or apply can stop between objects.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openConnector(ctx context.Context, cfg *config.Config) (*connector.SnowflakeConnector, error) {
	factory := connector.NewConnectorFactory(cfg, zap.L())
	conn, err := factory.CreateSnowflakeConnector(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.Validate(); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func main() {
	// A .env file is optional; missing is fine.
	_ = godotenv.Load()

	ctx := kong.Parse(&CLI,
		kong.Name("snowplan"),
		kong.Description("Declarative schema management for Snowflake."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
