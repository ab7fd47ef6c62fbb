// pkg/connector/snowflake.go
package connector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	sf "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/David-Botos/snowplan/pkg/config"
	"github.com/David-Botos/snowplan/pkg/model"
)

// Listing queries pipe SHOW output into a projection so every object type
// yields the same column set. Procedures and functions report their name
// through the arguments column: the text before RETURN is the
// signature-bearing name, the text before the opening paren the clean name.
const (
	showObjectsQuery = `show %ss in %s
->>
select "database_name", "schema_name", "name"
from $1 where "schema_name" <> 'INFORMATION_SCHEMA'`

	showCallablesQuery = `show %ss in %s
->>
select "catalog_name" as "database_name", "schema_name", split_part("arguments", 'RETURN', 1) as "name", split_part("arguments", '(', 1) as "clean_name"
from $1 where "catalog_name" <> '' and "is_builtin" = 'N'`

	showStagesQuery = `show stages in %s
->>
select "database_name", "schema_name", "name", "url", "storage_integration", "comment", "directory_enabled"
from $1`
)

// SnowflakeConnector implements the DatabaseConnector interface for Snowflake
type SnowflakeConnector struct {
	db     *sqlx.DB
	logger *zap.Logger
	cfg    *config.SnowflakeConfig
}

// NewSnowflakeConnector creates a new Snowflake connection
func NewSnowflakeConnector(ctx context.Context, cfg *config.SnowflakeConfig) (*SnowflakeConnector, error) {
	logger := zap.L().Named("snowflake-connector")

	// Create DSN using Snowflake's DSN builder
	sfConfig := &sf.Config{
		Account:       cfg.Account,
		User:          cfg.User,
		Password:      cfg.Password,
		Warehouse:     cfg.Warehouse,
		Role:          cfg.Role,
		Authenticator: cfg.Authenticator,
	}

	if cfg.PrivateKeyPath != "" {
		key, err := cfg.LoadPrivateKey()
		if err != nil {
			return nil, err
		}
		sfConfig.PrivateKey = key
	}

	// Log connection attempt (without credentials)
	logger.Info("Connecting to Snowflake",
		zap.String("account", cfg.Account),
		zap.String("user", cfg.User),
		zap.String("warehouse", cfg.Warehouse),
		zap.String("role", cfg.Role))

	dsn, err := sf.DSN(sfConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build Snowflake DSN: %w", err)
	}

	// Open connection pool
	sqlDB, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Snowflake connection: %w", err)
	}

	// Configure connection pool
	ApplyConnectionSettings(
		sqlDB,
		cfg.MaxOpenConns,
		cfg.MaxIdleConns,
		cfg.ConnMaxLifetime,
		cfg.ConnMaxIdleTime,
	)

	// Set query timeout if configured
	if cfg.QueryTimeout > 0 {
		_, err = sqlDB.ExecContext(
			ctx,
			fmt.Sprintf("ALTER SESSION SET STATEMENT_TIMEOUT_IN_SECONDS = %d",
				int(cfg.QueryTimeout.Seconds())),
		)
		if err != nil {
			logger.Warn("Failed to set statement timeout", zap.Error(err))
		}
	}

	// Verify connection
	if err := PingWithTimeout(ctx, sqlDB, 10*time.Second); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to Snowflake: %w", err)
	}

	connector := &SnowflakeConnector{
		db:     sqlx.NewDb(sqlDB, "snowflake"),
		logger: logger,
		cfg:    cfg,
	}

	LogConnectionStats(logger, cfg.Account, sqlDB)
	return connector, nil
}

// DB returns the underlying database connection
func (c *SnowflakeConnector) DB() *sql.DB {
	return c.db.DB
}

// Validate verifies the Snowflake connection and access rights
func (c *SnowflakeConnector) Validate() error {
	var user, role, warehouse sql.NullString
	err := c.db.QueryRow("SELECT CURRENT_USER(), CURRENT_ROLE(), CURRENT_WAREHOUSE()").Scan(
		&user, &role, &warehouse)
	if err != nil {
		return fmt.Errorf("failed to verify Snowflake access: %w", err)
	}

	c.logger.Info("Connected to Snowflake",
		zap.String("user", user.String),
		zap.String("role", role.String),
		zap.String("warehouse", warehouse.String))

	if !warehouse.Valid || warehouse.String == "" {
		c.logger.Warn("No active warehouse; definition fetches and validation will fail until one is set")
	}

	return nil
}

// Close closes the database connection
func (c *SnowflakeConnector) Close() error {
	c.logger.Info("Closing Snowflake connection")
	LogConnectionStats(c.logger, c.cfg.Account, c.db.DB)
	return c.db.Close()
}

// ListObjects lists all objects of one type in the given scope, either
// "database <name>" or "account".
func (c *SnowflakeConnector) ListObjects(ctx context.Context, objectType, scope string) ([]ObjectListing, error) {
	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	rows, err := c.db.QueryxContext(opCtx, listingQuery(objectType, scope))
	if err != nil {
		return nil, fmt.Errorf("failed to list %ss in %s: %w", objectType, scope, err)
	}
	defer rows.Close()

	var listings []ObjectListing
	for rows.Next() {
		var l ObjectListing
		if err := rows.StructScan(&l); err != nil {
			return nil, fmt.Errorf("failed to scan %s listing: %w", objectType, err)
		}
		listings = append(listings, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s listings: %w", objectType, err)
	}

	c.logger.Debug("Listed objects",
		zap.String("object_type", objectType),
		zap.String("scope", scope),
		zap.Int("count", len(listings)))

	return listings, nil
}

// FetchDDL retrieves the canonical definition of one object.
func (c *SnowflakeConnector) FetchDDL(ctx context.Context, objectType, fqn string) (string, error) {
	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	kind := strings.ReplaceAll(objectType, " ", "_")
	var ddl string
	err := c.db.QueryRowxContext(opCtx,
		fmt.Sprintf("select get_ddl('%s','%s')", kind, fqn)).Scan(&ddl)
	if err != nil {
		return "", fmt.Errorf("failed to fetch DDL for %s %s: %w", objectType, fqn, err)
	}

	return ddl, nil
}

// UseSchema switches the session's active schema
func (c *SnowflakeConnector) UseSchema(ctx context.Context, database, schema string) error {
	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	if _, err := c.db.ExecContext(opCtx, fmt.Sprintf("USE SCHEMA %s.%s", database, schema)); err != nil {
		return fmt.Errorf("failed to use schema %s.%s: %w", database, schema, err)
	}
	return nil
}

// ExplainJSON dry-runs a statement. The driver error is returned unwrapped
// so callers can read its code and message.
func (c *SnowflakeConnector) ExplainJSON(ctx context.Context, statement string) (string, error) {
	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	var plan string
	if err := c.db.QueryRowxContext(opCtx, "EXPLAIN USING JSON "+statement).Scan(&plan); err != nil {
		return "", err
	}
	return plan, nil
}

// ExecTransaction runs the statements inside one explicit transaction and
// rolls back on the first failure.
func (c *SnowflakeConnector) ExecTransaction(ctx context.Context, statements []string) error {
	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	tx, err := c.db.BeginTxx(opCtx, nil)
	if err != nil {
		return model.NewFault(model.KindTransaction, fmt.Errorf("begin transaction: %w", err))
	}

	for _, stmt := range statements {
		c.logger.Debug("Executing statement", zap.String("sql", stmt))
		if _, err := tx.ExecContext(opCtx, stmt); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				c.logger.Warn("Rollback failed", zap.Error(rbErr))
			}
			return model.NewFault(model.KindTransaction, err).WithStatement(stmt)
		}
	}

	if err := tx.Commit(); err != nil {
		return model.NewFault(model.KindTransaction, fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// opCtx bounds an operation with the configured query timeout.
func (c *SnowflakeConnector) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.QueryTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.QueryTimeout)
	}
	return context.WithCancel(ctx)
}

func listingQuery(objectType, scope string) string {
	switch objectType {
	case "procedure", "function":
		return fmt.Sprintf(showCallablesQuery, objectType, scope)
	case "stage":
		return fmt.Sprintf(showStagesQuery, scope)
	default:
		return fmt.Sprintf(showObjectsQuery, objectType, scope)
	}
}

// ErrorCode returns the six digit code carried by a Snowflake driver error,
// falling back to the first token of the message text.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var sfErr *sf.SnowflakeError
	if errors.As(err, &sfErr) {
		return fmt.Sprintf("%06d", sfErr.Number)
	}

	fields := strings.Fields(err.Error())
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimSuffix(fields[0], ":")
}
