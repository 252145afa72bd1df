package duckdb

import (
	"context"
	"fmt"

	"github.com/polo52/polochat/internal/schema"
)

// Catalog exposes the loaded snapshot to schema introspection. Column types come from
// DuckDB so the planner sees the dialect it will run against; keys and nullability come
// from the manifest because CREATE TABLE AS drops constraints.
type Catalog struct {
	engine *Engine
}

func (e *Engine) Catalog() *Catalog {
	return &Catalog{engine: e}
}

func (c *Catalog) ListTables(ctx context.Context) ([]string, error) {
	ws, release, err := c.engine.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := ws.db.QueryContext(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = 'main' AND table_type = 'BASE TABLE'
ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

func (c *Catalog) ListColumns(ctx context.Context, table string) ([]schema.Column, error) {
	ws, release, err := c.engine.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := ws.db.QueryContext(ctx, `
SELECT column_name, data_type
FROM information_schema.columns
WHERE table_schema = 'main' AND table_name = ?
ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("list columns for %s: %w", table, err)
	}
	defer rows.Close()

	manifestTable, _ := ws.manifest.Table(table)
	nullability := make(map[string]bool, len(manifestTable.Columns))
	primary := make(map[string]bool, len(manifestTable.Columns))
	for _, column := range manifestTable.Columns {
		nullability[column.Name] = column.Nullable
		primary[column.Name] = column.PrimaryKey
	}

	columns := make([]schema.Column, 0)
	for rows.Next() {
		var column schema.Column
		if err := rows.Scan(&column.Name, &column.Type); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		nullable, known := nullability[column.Name]
		column.Nullable = nullable || !known
		column.PrimaryKey = primary[column.Name]
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return columns, nil
}

func (c *Catalog) ListForeignKeys(ctx context.Context, table string) ([]schema.ForeignKey, error) {
	ws, release, err := c.engine.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	manifestTable, ok := ws.manifest.Table(table)
	if !ok {
		return nil, nil
	}
	return append([]schema.ForeignKey(nil), manifestTable.ForeignKeys...), nil
}
