// Package audit implements the best-effort, non-authoritative local mirror
// of bus events (spec.md §4.10: "a local audit log... is NEVER the source
// of truth for orchestration decisions — GitHub is"). It subscribes to the
// Event Bus and writes a row per event; a dropped write is logged and
// discarded, never retried against a backlog.
package audit

import (
	"context"
	"fmt"

	"github.com/agent-forge/agent-forge/internal/config"
)

// DB is the generic storage interface backing the audit mirror. Both the
// SQLite (default) and MySQL implementations satisfy it.
type DB interface {
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Exec(ctx context.Context, query string, args ...interface{}) error
	Insert(ctx context.Context, table string, record interface{}) (int64, error)
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
	Driver() string
}

// New returns a DB implementation matching cfg.Driver. SQLite is the
// default when Driver is empty; an unrecognised driver is an error.
func New(cfg config.AuditConfig) (DB, error) {
	switch cfg.Driver {
	case "mysql":
		return NewMySQL(cfg)
	case "sqlite", "sqlite3", "":
		return NewSQLite(cfg)
	default:
		return nil, fmt.Errorf("unsupported audit database driver %q (supported: sqlite, mysql)", cfg.Driver)
	}
}
