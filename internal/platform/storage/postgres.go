package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresGateway runs the gateway contract against the tables created by
// migrations/0001_privacy_engine.sql.
type PostgresGateway struct {
	DB *pgxpool.Pool
}

func NewPostgresGateway(db *pgxpool.Pool) *PostgresGateway {
	return &PostgresGateway{DB: db}
}

func (g *PostgresGateway) Select(ctx context.Context, table string, preds ...Predicate) ([]Row, error) {
	if err := checkTable("postgres", "select", table); err != nil {
		return nil, err
	}
	query, args, err := buildSelect(table, preds, dollarPlaceholder, nil)
	if err != nil {
		return nil, wrapErr("postgres", "select", table, err)
	}
	rows, err := g.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("postgres", "select", table, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, wrapErr("postgres", "select", table, err)
		}
		row := make(Row, len(fields))
		for i, fd := range fields {
			row[fd.Name] = normalizePG(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("postgres", "select", table, err)
	}
	return out, nil
}

func (g *PostgresGateway) Insert(ctx context.Context, table string, row Row) (string, error) {
	if err := checkTable("postgres", "insert", table); err != nil {
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
	query, args, err := buildInsert(table, stored, dollarPlaceholder, nil)
	if err != nil {
		return "", wrapErr("postgres", "insert", table, err)
	}
	if _, err := g.DB.Exec(ctx, query, args...); err != nil {
		return "", wrapErr("postgres", "insert", table, err)
	}
	return id, nil
}

func (g *PostgresGateway) Update(ctx context.Context, table, id string, fields Row) error {
	if err := checkTable("postgres", "update", table); err != nil {
		return err
	}
	query, args, err := buildUpdate(table, []string{id}, fields, dollarPlaceholder, nil)
	if err != nil {
		return wrapErr("postgres", "update", table, err)
	}
	tag, err := g.DB.Exec(ctx, query, args...)
	if err != nil {
		return wrapErr("postgres", "update", table, err)
	}
	if tag.RowsAffected() == 0 {
		return &Error{Backend: "postgres", Operation: "update", Table: table, Cause: fmt.Errorf("%w: %s", ErrNotFound, id)}
	}
	return nil
}

func (g *PostgresGateway) UpdateBatch(ctx context.Context, table string, ids []string, fields Row) (int64, error) {
	if err := checkTable("postgres", "update_batch", table); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := buildUpdate(table, ids, fields, dollarPlaceholder, nil)
	if err != nil {
		return 0, wrapErr("postgres", "update_batch", table, err)
	}
	tag, err := g.DB.Exec(ctx, query, args...)
	if err != nil {
		return 0, wrapErr("postgres", "update_batch", table, err)
	}
	return tag.RowsAffected(), nil
}

func (g *PostgresGateway) Delete(ctx context.Context, table string, ids ...string) (int64, error) {
	if err := checkTable("postgres", "delete", table); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := g.DB.Exec(ctx, buildDelete(table, ids, dollarPlaceholder), deleteArgs(ids)...)
	if err != nil {
		return 0, wrapErr("postgres", "delete", table, err)
	}
	return tag.RowsAffected(), nil
}

func normalizePG(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return uuid.UUID(t).String()
	case int32:
		return int64(t)
	case int16:
		return int64(t)
	}
	return v
}

// AdvisoryLocker serialises work per key across processes sharing one
// database. Each held lock pins a pooled connection until released.
type AdvisoryLocker struct {
	DB *pgxpool.Pool
}

func NewAdvisoryLocker(db *pgxpool.Pool) *AdvisoryLocker {
	return &AdvisoryLocker{DB: db}
}

func (l *AdvisoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	conn, err := l.DB.Acquire(ctx)
	if err != nil {
		return nil, wrapErr("postgres", "lock", "", err)
	}
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock(hashtext($1))", key); err != nil {
		conn.Release()
		return nil, wrapErr("postgres", "lock", "", err)
	}
	return func() {
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock(hashtext($1))", key); err != nil {
			slog.Warn("advisory unlock failed", "key", key, "err", err)
			// a session lock survives Release, so drop the connection instead
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
	}, nil
}
