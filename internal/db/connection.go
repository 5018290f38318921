package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/armchr/testgen/internal/config"
	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Dialect names the SQL flavour behind a Connection.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

// Connection wraps a database handle together with its dialect.
type Connection struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// Open connects to the class store backend selected in cfg.
func Open(ctx context.Context, cfg config.ClassStoreConfig, mysqlCfg config.MySQLConfig, logger *zap.Logger) (*Connection, error) {
	cfg = cfg.GetDefaults()

	switch Dialect(cfg.Driver) {
	case DialectMySQL:
		return openMySQL(ctx, mysqlCfg, logger)
	case DialectSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath, logger)
	}
	return nil, fmt.Errorf("unsupported class store driver: %s", cfg.Driver)
}

// OpenSQLite opens an embedded database at path; ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*Connection, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", path)
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and avoids writer lock contention
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	logger.Info("Connected to class store", zap.String("driver", "sqlite"), zap.String("path", path))
	return &Connection{db: sqlDB, dialect: DialectSQLite, logger: logger}, nil
}

func openMySQL(ctx context.Context, cfg config.MySQLConfig, logger *zap.Logger) (*Connection, error) {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	dsnCfg := mysql.NewConfig()
	dsnCfg.User = cfg.Username
	dsnCfg.Passwd = cfg.Password
	dsnCfg.Net = "tcp"
	dsnCfg.Addr = fmt.Sprintf("%s:%d", cfg.Host, port)
	dsnCfg.DBName = cfg.Database
	dsnCfg.ParseTime = true
	dsnCfg.Params = map[string]string{"charset": "utf8mb4"}

	sqlDB, err := sql.Open("mysql", dsnCfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql database: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping mysql database: %w", err)
	}

	logger.Info("Connected to class store", zap.String("driver", "mysql"), zap.String("addr", dsnCfg.Addr))
	return &Connection{db: sqlDB, dialect: DialectMySQL, logger: logger}, nil
}

func (c *Connection) GetDB() *sql.DB {
	return c.db
}

func (c *Connection) Dialect() Dialect {
	return c.dialect
}

func (c *Connection) Close() error {
	return c.db.Close()
}

// autoIncrementPK returns the primary key column definition for the dialect.
func (c *Connection) autoIncrementPK() string {
	if c.dialect == DialectMySQL {
		return "id BIGINT AUTO_INCREMENT PRIMARY KEY"
	}
	return "id INTEGER PRIMARY KEY AUTOINCREMENT"
}

// keyText is the column type for indexed strings; MySQL cannot index unbounded TEXT.
func (c *Connection) keyText(n int) string {
	if c.dialect == DialectMySQL {
		return fmt.Sprintf("VARCHAR(%d)", n)
	}
	return "TEXT"
}

func (c *Connection) longText() string {
	if c.dialect == DialectMySQL {
		return "LONGTEXT"
	}
	return "TEXT"
}

func (c *Connection) tableSuffix() string {
	if c.dialect == DialectMySQL {
		return " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci"
	}
	return ""
}

// createIndex issues CREATE INDEX; MySQL lacks IF NOT EXISTS so duplicates are tolerated there.
func (c *Connection) createIndex(ctx context.Context, name, table, columns string) error {
	if c.dialect == DialectSQLite {
		_, err := c.db.ExecContext(ctx, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", name, table, columns))
		return err
	}
	_, err := c.db.ExecContext(ctx, fmt.Sprintf("CREATE INDEX %s ON %s (%s)", name, table, columns))
	var myErr *mysql.MySQLError
	if err != nil && asMySQLError(err, &myErr) && myErr.Number == 1061 {
		return nil
	}
	return err
}
