package schema

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrSchemaUnavailable reports that the relational catalog could not be read, or that it
// exposes no table the assistant may ground against.
var ErrSchemaUnavailable = errors.New("schema unavailable")

// DefaultExcludedPrefixes hide engine and bookkeeping tables from the assistant.
var DefaultExcludedPrefixes = []string{"pg_", "sql_", "information_schema", "duckdb_", "polochat_"}

type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

type ForeignKey struct {
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

type Table struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
}

// Description is a point-in-time view of the visible tables, sorted by name.
type Description struct {
	Tables []Table `json:"tables"`
}

// Catalog is the read side of a relational engine's metadata.
type Catalog interface {
	ListTables(ctx context.Context) ([]string, error)
	ListColumns(ctx context.Context, table string) ([]Column, error)
	ListForeignKeys(ctx context.Context, table string) ([]ForeignKey, error)
}

type Introspector struct {
	catalog          Catalog
	excludedPrefixes []string
}

func NewIntrospector(catalog Catalog, extraExcludedPrefixes ...string) *Introspector {
	prefixes := make([]string, 0, len(DefaultExcludedPrefixes)+len(extraExcludedPrefixes))
	for _, prefix := range append(append([]string{}, DefaultExcludedPrefixes...), extraExcludedPrefixes...) {
		prefix = strings.ToLower(strings.TrimSpace(prefix))
		if prefix != "" {
			prefixes = append(prefixes, prefix)
		}
	}
	return &Introspector{catalog: catalog, excludedPrefixes: prefixes}
}

// Describe reads the catalog from scratch. Results are never cached between calls.
func (i *Introspector) Describe(ctx context.Context) (Description, error) {
	if i == nil || i.catalog == nil {
		return Description{}, fmt.Errorf("%w: catalog is not configured", ErrSchemaUnavailable)
	}

	names, err := i.catalog.ListTables(ctx)
	if err != nil {
		return Description{}, fmt.Errorf("%w: list tables: %v", ErrSchemaUnavailable, err)
	}

	visible := make([]string, 0, len(names))
	for _, name := range names {
		if i.excluded(name) {
			continue
		}
		visible = append(visible, name)
	}
	sort.Strings(visible)
	if len(visible) == 0 {
		return Description{}, fmt.Errorf("%w: no visible tables", ErrSchemaUnavailable)
	}

	description := Description{Tables: make([]Table, 0, len(visible))}
	for _, name := range visible {
		columns, err := i.catalog.ListColumns(ctx, name)
		if err != nil {
			return Description{}, fmt.Errorf("%w: list columns of %q: %v", ErrSchemaUnavailable, name, err)
		}
		foreignKeys, err := i.catalog.ListForeignKeys(ctx, name)
		if err != nil {
			return Description{}, fmt.Errorf("%w: list foreign keys of %q: %v", ErrSchemaUnavailable, name, err)
		}
		sort.SliceStable(foreignKeys, func(a, b int) bool {
			if foreignKeys[a].Column != foreignKeys[b].Column {
				return foreignKeys[a].Column < foreignKeys[b].Column
			}
			return foreignKeys[a].ReferencedTable < foreignKeys[b].ReferencedTable
		})
		description.Tables = append(description.Tables, Table{
			Name:        name,
			Columns:     columns,
			ForeignKeys: foreignKeys,
		})
	}
	return description, nil
}

func (i *Introspector) excluded(table string) bool {
	lower := strings.ToLower(table)
	for _, prefix := range i.excludedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func (d Description) Table(name string) (Table, bool) {
	for _, table := range d.Tables {
		if strings.EqualFold(table.Name, name) {
			return table, true
		}
	}
	return Table{}, false
}

// Render produces the textual schema handed to the planner. Output depends only on the
// description, so equal descriptions render identically.
func (d Description) Render() string {
	var b strings.Builder
	for index, table := range d.Tables {
		if index > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("TABLE ")
		b.WriteString(table.Name)
		b.WriteByte('\n')
		for _, column := range table.Columns {
			b.WriteString("  ")
			b.WriteString(column.Name)
			if column.Type != "" {
				b.WriteByte(' ')
				b.WriteString(column.Type)
			}
			if !column.Nullable {
				b.WriteString(" NOT NULL")
			}
			if column.PrimaryKey {
				b.WriteString(" PK")
			}
			b.WriteByte('\n')
		}
		for _, foreignKey := range table.ForeignKeys {
			fmt.Fprintf(&b, "FK %s.%s -> %s.%s\n", table.Name, foreignKey.Column, foreignKey.ReferencedTable, foreignKey.ReferencedColumn)
		}
	}
	return b.String()
}
