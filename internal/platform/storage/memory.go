package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryGateway keeps every table in process memory. Rows are copied on the
// way in and out so callers never alias stored state.
type MemoryGateway struct {
	mu     sync.RWMutex
	tables map[string]map[string]Row
	order  map[string][]string
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		tables: make(map[string]map[string]Row),
		order:  make(map[string][]string),
	}
}

func (g *MemoryGateway) Select(ctx context.Context, table string, preds ...Predicate) ([]Row, error) {
	if err := checkTable("memory", "select", table); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, wrapErr("memory", "select", table, err)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	rows := g.tables[table]
	var out []Row
	for _, id := range g.order[table] {
		row, ok := rows[id]
		if !ok {
			continue
		}
		if matchAll(row, preds) {
			out = append(out, row.Clone())
		}
	}
	return out, nil
}

func (g *MemoryGateway) Insert(ctx context.Context, table string, row Row) (string, error) {
	if err := checkTable("memory", "insert", table); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", wrapErr("memory", "insert", table, err)
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

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.tables[table] == nil {
		g.tables[table] = make(map[string]Row)
	}
	if _, exists := g.tables[table][id]; exists {
		return "", &Error{Backend: "memory", Operation: "insert", Table: table, Cause: fmt.Errorf("duplicate id %q", id)}
	}
	g.tables[table][id] = stored
	g.order[table] = append(g.order[table], id)
	return id, nil
}

func (g *MemoryGateway) Update(ctx context.Context, table, id string, fields Row) error {
	if err := checkTable("memory", "update", table); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return wrapErr("memory", "update", table, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	row, ok := g.tables[table][id]
	if !ok {
		return &Error{Backend: "memory", Operation: "update", Table: table, Cause: fmt.Errorf("%w: %s", ErrNotFound, id)}
	}
	mergeFields(row, fields)
	return nil
}

func (g *MemoryGateway) UpdateBatch(ctx context.Context, table string, ids []string, fields Row) (int64, error) {
	if err := checkTable("memory", "update_batch", table); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, wrapErr("memory", "update_batch", table, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var updated int64
	for _, id := range ids {
		row, ok := g.tables[table][id]
		if !ok {
			continue
		}
		mergeFields(row, fields)
		updated++
	}
	return updated, nil
}

func (g *MemoryGateway) Delete(ctx context.Context, table string, ids ...string) (int64, error) {
	if err := checkTable("memory", "delete", table); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, wrapErr("memory", "delete", table, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var deleted int64
	for _, id := range ids {
		if _, ok := g.tables[table][id]; !ok {
			continue
		}
		delete(g.tables[table], id)
		deleted++
	}
	if deleted > 0 {
		kept := g.order[table][:0]
		for _, id := range g.order[table] {
			if _, ok := g.tables[table][id]; ok {
				kept = append(kept, id)
			}
		}
		g.order[table] = kept
	}
	return deleted, nil
}

// Count returns the number of rows currently stored in table.
func (g *MemoryGateway) Count(table string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tables[table])
}

func mergeFields(row, fields Row) {
	for k, v := range fields {
		if k == "id" {
			continue
		}
		row[k] = cloneValue(v)
	}
}

func matchAll(row Row, preds []Predicate) bool {
	for _, p := range preds {
		if !p.Match(row) {
			return false
		}
	}
	return true
}
