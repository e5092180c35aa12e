package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	migrate "github.com/rubenv/sql-migrate"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/iamwavecut/shiftbot/internal/db"
	"github.com/iamwavecut/shiftbot/resources"
)

const (
	DriverSQLite   = "sqlite"
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"

	sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
)

var _ db.Client = (*Client)(nil)

type Client struct {
	db     *sqlx.DB
	driver string
	mutex  sync.RWMutex
}

type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

// New opens the database with the given driver and applies the embedded
// migrations of the matching dialect.
func New(ctx context.Context, driver, dsn string) (*Client, error) {
	dialect, root, err := migrationDialect(driver)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	dbx, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	dbx.SetMaxOpenConns(42)

	source := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: resources.FS,
		Root:       root,
	}
	n, err := migrate.Exec(dbx.DB, dialect, source, migrate.Up)
	if err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	if n > 0 {
		log.WithField("context", "sqlstore").Infof("applied %d migrations", n)
	}

	return &Client{db: dbx, driver: driver}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) q(query string) string {
	return c.db.Rebind(query)
}

func (c *Client) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func migrationDialect(driver string) (dialect string, root string, err error) {
	switch driver {
	case DriverSQLite:
		return "sqlite3", "migrations/sqlite", nil
	case DriverPgx, DriverPostgres:
		return "postgres", "migrations/postgres", nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqlitePragmas
	}
	return dsn + "?" + sqlitePragmas
}
