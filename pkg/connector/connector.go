// pkg/connector/connector.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DatabaseConnector defines the remote operations the reconciliation
// pipeline needs: listing objects, fetching canonical definitions,
// dry-run validation and transactional execution.
type DatabaseConnector interface {
	// DB returns the underlying database connection
	DB() *sql.DB

	// Validate verifies the connection and permissions
	Validate() error

	// Close closes the connection and releases resources
	Close() error

	// ListObjects lists objects of one type in a database or account scope
	ListObjects(ctx context.Context, objectType, scope string) ([]ObjectListing, error)

	// FetchDDL retrieves an object's canonical definition text
	FetchDDL(ctx context.Context, objectType, fqn string) (string, error)

	// UseSchema switches the session's active schema
	UseSchema(ctx context.Context, database, schema string) error

	// ExplainJSON dry-runs a statement and returns the raw explain output
	ExplainJSON(ctx context.Context, statement string) (string, error)

	// ExecTransaction runs statements inside one BEGIN/COMMIT boundary
	ExecTransaction(ctx context.Context, statements []string) error
}

// ObjectListing is one row of a listing query. CleanName differs from Name
// only for procedures and functions, where Name carries the argument
// signature required by definition lookups.
type ObjectListing struct {
	Database  string `db:"database_name"`
	Schema    string `db:"schema_name"`
	Name      string `db:"name"`
	CleanName string `db:"clean_name"`

	// Stage listings only.
	URL                sql.NullString `db:"url"`
	StorageIntegration sql.NullString `db:"storage_integration"`
	Comment            sql.NullString `db:"comment"`
	DirectoryEnabled   sql.NullString `db:"directory_enabled"`
}

// FQN is the signature-bearing qualified name used for definition lookups.
func (l ObjectListing) FQN() string {
	return fmt.Sprintf("%s.%s.%s", l.Database, l.Schema, strings.TrimSpace(l.Name))
}

// CleanFQN is the qualified name without any argument signature; it feeds
// state keys and file names.
func (l ObjectListing) CleanFQN() string {
	name := strings.TrimSpace(l.CleanName)
	if name == "" {
		name = strings.TrimSpace(l.Name)
	}
	return fmt.Sprintf("%s.%s.%s", l.Database, l.Schema, name)
}

// ConnStats contains standardized connection statistics
type ConnStats struct {
	OpenConnections int
	InUse           int
	Idle            int
	MaxOpenConns    int
}

// GetConnectionStats returns connection pool statistics for logging
func GetConnectionStats(db *sql.DB) ConnStats {
	stats := db.Stats()
	return ConnStats{
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
		MaxOpenConns:    stats.MaxOpenConnections,
	}
}

// LogConnectionStats logs connection pool statistics
func LogConnectionStats(logger *zap.Logger, name string, db *sql.DB) {
	stats := GetConnectionStats(db)
	logger.Debug("Connection pool stats",
		zap.String("account", name),
		zap.Int("open_connections", stats.OpenConnections),
		zap.Int("in_use", stats.InUse),
		zap.Int("idle", stats.Idle),
		zap.Int("max_open", stats.MaxOpenConns),
	)
}

// PingWithTimeout attempts to ping a database with a timeout
func PingWithTimeout(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- db.PingContext(pingCtx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-pingCtx.Done():
		return fmt.Errorf("ping timed out after %v: %w", timeout, pingCtx.Err())
	}
}

// ApplyConnectionSettings configures database connection pool settings
func ApplyConnectionSettings(db *sql.DB, maxOpen, maxIdle int, maxLifetime, maxIdleTime time.Duration) {
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if maxLifetime > 0 {
		db.SetConnMaxLifetime(maxLifetime)
	}
	if maxIdleTime > 0 {
		db.SetConnMaxIdleTime(maxIdleTime)
	}
}
