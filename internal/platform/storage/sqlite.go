package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// sqliteTimeLayout is fixed width so text comparisons order like instants.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteConfig contains configuration for the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file path. ":memory:" keeps a private in-memory database.
	Path string

	// BusyTimeout is how long a writer waits on a locked database.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// SQLiteGateway runs the gateway contract on a single SQLite file.
type SQLiteGateway struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteGateway(ctx context.Context, cfg SQLiteConfig) (*SQLiteGateway, error) {
	if cfg.Path == "" {
		cfg.Path = "data/privacy.db"
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	logger := slog.Default().With("component", "privacy.storage.sqlite")

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, wrapErr("sqlite", "open", "", err)
	}
	// one writer keeps SQLITE_BUSY out of batch loops
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		fmt.Sprintf("PRAGMA busy_timeout=%d;", cfg.BusyTimeout.Milliseconds()),
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, wrapErr("sqlite", "pragma", "", err)
		}
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, wrapErr("sqlite", "create_schema", "", err)
	}
	logger.Info("SQLite storage initialized", "path", cfg.Path)
	return &SQLiteGateway{db: db, logger: logger}, nil
}

func (g *SQLiteGateway) Close() error {
	return g.db.Close()
}

func (g *SQLiteGateway) Ping(ctx context.Context) error {
	return g.db.PingContext(ctx)
}

func (g *SQLiteGateway) Select(ctx context.Context, table string, preds ...Predicate) ([]Row, error) {
	if err := checkTable("sqlite", "select", table); err != nil {
		return nil, err
	}
	query, args, err := buildSelect(table, preds, questionPlaceholder, sqliteArg)
	if err != nil {
		return nil, wrapErr("sqlite", "select", table, err)
	}
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("sqlite", "select", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, wrapErr("sqlite", "select", table, err)
	}
	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, wrapErr("sqlite", "select", table, err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("sqlite", "select", table, err)
	}
	return out, nil
}

func (g *SQLiteGateway) Insert(ctx context.Context, table string, row Row) (string, error) {
	if err := checkTable("sqlite", "insert", table); err != nil {
		return "", err
	}
	stored := row.Clone()
	if stored == nil {
		stored = Row{}
	}
	id := stored.Str("id")
	if id == "" {
		id = uuid.NewString()
	}
	stored["id"] = id
	query, args, err := buildInsert(table, stored, questionPlaceholder, sqliteArg)
	if err != nil {
		return "", wrapErr("sqlite", "insert", table, err)
	}
	if _, err := g.db.ExecContext(ctx, query, args...); err != nil {
		return "", wrapErr("sqlite", "insert", table, err)
	}
	return id, nil
}

func (g *SQLiteGateway) Update(ctx context.Context, table, id string, fields Row) error {
	if err := checkTable("sqlite", "update", table); err != nil {
		return err
	}
	query, args, err := buildUpdate(table, []string{id}, fields, questionPlaceholder, sqliteArg)
	if err != nil {
		return wrapErr("sqlite", "update", table, err)
	}
	res, err := g.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapErr("sqlite", "update", table, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrapErr("sqlite", "update", table, err)
	}
	if affected == 0 {
		return &Error{Backend: "sqlite", Operation: "update", Table: table, Cause: fmt.Errorf("%w: %s", ErrNotFound, id)}
	}
	return nil
}

func (g *SQLiteGateway) UpdateBatch(ctx context.Context, table string, ids []string, fields Row) (int64, error) {
	if err := checkTable("sqlite", "update_batch", table); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := buildUpdate(table, ids, fields, questionPlaceholder, sqliteArg)
	if err != nil {
		return 0, wrapErr("sqlite", "update_batch", table, err)
	}
	res, err := g.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrapErr("sqlite", "update_batch", table, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("sqlite", "update_batch", table, err)
	}
	return affected, nil
}

func (g *SQLiteGateway) Delete(ctx context.Context, table string, ids ...string) (int64, error) {
	if err := checkTable("sqlite", "delete", table); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := g.db.ExecContext(ctx, buildDelete(table, ids, questionPlaceholder), deleteArgs(ids)...)
	if err != nil {
		return 0, wrapErr("sqlite", "delete", table, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("sqlite", "delete", table, err)
	}
	return affected, nil
}

// sqliteArg maps Go values onto SQLite storage classes.
func sqliteArg(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(sqliteTimeLayout)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(sqliteTimeLayout)
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	case []string, []any, map[string]any:
		encoded, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		return string(encoded)
	}
	return v
}
