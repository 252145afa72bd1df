package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/polo52/polochat/internal/schema"
)

const defaultSchema = "public"

// Catalog reads tables and columns from information_schema and keys from pg_catalog.
// information_schema hides constraints from roles holding only SELECT, which is exactly
// the reader role the API connects with. Only base tables of one schema are listed; views
// are left out so the model never plans against them.
type Catalog struct {
	db     *sql.DB
	schema string
}

func NewCatalog(db *sql.DB, schemaName string) *Catalog {
	if schemaName == "" {
		schemaName = defaultSchema
	}
	return &Catalog{db: db, schema: schemaName}
}

func (c *Catalog) HealthCheck(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping warehouse db: %w", err)
	}
	return nil
}

func (c *Catalog) ListTables(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = $1 AND table_type = 'BASE TABLE'
ORDER BY table_name`, c.schema)
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
	rows, err := c.db.QueryContext(ctx, `
SELECT c.column_name,
       c.data_type,
       c.is_nullable = 'YES' AS nullable,
       EXISTS (
         SELECT 1
         FROM pg_catalog.pg_constraint con
         JOIN pg_catalog.pg_class rel ON rel.oid = con.conrelid
         JOIN pg_catalog.pg_namespace ns ON ns.oid = rel.relnamespace
         JOIN pg_catalog.pg_attribute att
           ON att.attrelid = con.conrelid
          AND att.attnum = ANY (con.conkey)
         WHERE con.contype = 'p'
           AND ns.nspname = c.table_schema::name
           AND rel.relname = c.table_name::name
           AND att.attname = c.column_name::name
       ) AS primary_key
FROM information_schema.columns c
WHERE c.table_schema = $1 AND c.table_name = $2
ORDER BY c.ordinal_position`, c.schema, table)
	if err != nil {
		return nil, fmt.Errorf("list columns for %s: %w", table, err)
	}
	defer rows.Close()

	columns := make([]schema.Column, 0)
	for rows.Next() {
		var column schema.Column
		if err := rows.Scan(&column.Name, &column.Type, &column.Nullable, &column.PrimaryKey); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return columns, nil
}

func (c *Catalog) ListForeignKeys(ctx context.Context, table string) ([]schema.ForeignKey, error) {
	rows, err := c.db.QueryContext(ctx, `
SELECT att.attname AS column_name,
       ref_rel.relname AS referenced_table,
       ref_att.attname AS referenced_column
FROM pg_catalog.pg_constraint con
JOIN pg_catalog.pg_class rel ON rel.oid = con.conrelid
JOIN pg_catalog.pg_namespace ns ON ns.oid = rel.relnamespace
JOIN pg_catalog.pg_class ref_rel ON ref_rel.oid = con.confrelid
CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(attnum, ref_attnum, position)
JOIN pg_catalog.pg_attribute att
  ON att.attrelid = con.conrelid
 AND att.attnum = k.attnum
JOIN pg_catalog.pg_attribute ref_att
  ON ref_att.attrelid = con.confrelid
 AND ref_att.attnum = k.ref_attnum
WHERE con.contype = 'f'
  AND ns.nspname = $1
  AND rel.relname = $2
  AND has_column_privilege(rel.oid, att.attnum, 'SELECT')
ORDER BY att.attname, k.position`, c.schema, table)
	if err != nil {
		return nil, fmt.Errorf("list foreign keys for %s: %w", table, err)
	}
	defer rows.Close()

	keys := make([]schema.ForeignKey, 0)
	for rows.Next() {
		var key schema.ForeignKey
		if err := rows.Scan(&key.Column, &key.ReferencedTable, &key.ReferencedColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}
	return keys, nil
}
