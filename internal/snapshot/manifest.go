package snapshot

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/polo52/polochat/internal/schema"
	"github.com/polo52/polochat/internal/storage"
)

type ColumnKind string

const (
	KindInt64     ColumnKind = "int64"
	KindDouble    ColumnKind = "double"
	KindBoolean   ColumnKind = "boolean"
	KindString    ColumnKind = "string"
	KindDate      ColumnKind = "date"
	KindTimestamp ColumnKind = "timestamp"
)

// KindForType maps an information_schema data_type onto the Parquet column kind used in
// snapshots. Unknown types are exported as strings.
func KindForType(dataType string) ColumnKind {
	dataType = strings.ToLower(strings.TrimSpace(dataType))
	switch {
	case dataType == "smallint", dataType == "integer", dataType == "bigint", dataType == "int", dataType == "int2", dataType == "int4", dataType == "int8":
		return KindInt64
	case dataType == "real", dataType == "double precision", dataType == "double", dataType == "float",
		strings.HasPrefix(dataType, "numeric"), strings.HasPrefix(dataType, "decimal"):
		return KindDouble
	case dataType == "boolean", dataType == "bool":
		return KindBoolean
	case dataType == "date":
		return KindDate
	case strings.HasPrefix(dataType, "timestamp"):
		return KindTimestamp
	default:
		return KindString
	}
}

type Column struct {
	Name       string     `json:"name"`
	Kind       ColumnKind `json:"kind"`
	SourceType string     `json:"source_type"`
	Nullable   bool       `json:"nullable"`
	PrimaryKey bool       `json:"primary_key"`
}

type Table struct {
	Name        string              `json:"name"`
	ObjectKey   string              `json:"object_key"`
	RowCount    int64               `json:"row_count"`
	SizeBytes   int64               `json:"size_bytes"`
	Columns     []Column            `json:"columns"`
	ForeignKeys []schema.ForeignKey `json:"foreign_keys,omitempty"`
}

// Manifest describes one complete snapshot. It is written after every table file so a
// reader that finds it can rely on all listed objects being present.
type Manifest struct {
	SnapshotID string    `json:"snapshot_id"`
	CreatedAt  time.Time `json:"created_at"`
	Tables     []Table   `json:"tables"`
}

func (m Manifest) Table(name string) (Table, bool) {
	for _, table := range m.Tables {
		if table.Name == name {
			return table, true
		}
	}
	return Table{}, false
}

func (m Manifest) RowCount() int64 {
	var total int64
	for _, table := range m.Tables {
		total += table.RowCount
	}
	return total
}

func (m Manifest) Validate() error {
	if err := storage.ValidateSnapshotID(m.SnapshotID); err != nil {
		return err
	}
	if len(m.Tables) == 0 {
		return fmt.Errorf("snapshot %s has no tables", m.SnapshotID)
	}
	seen := make(map[string]struct{}, len(m.Tables))
	for _, table := range m.Tables {
		if strings.TrimSpace(table.ObjectKey) == "" {
			return fmt.Errorf("table %q has no object key", table.Name)
		}
		if len(table.Columns) == 0 {
			return fmt.Errorf("table %q has no columns", table.Name)
		}
		if _, ok := seen[table.Name]; ok {
			return fmt.Errorf("table %q listed twice", table.Name)
		}
		seen[table.Name] = struct{}{}
	}
	return nil
}

func MarshalManifest(manifest Manifest) ([]byte, error) {
	payload, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return payload, nil
}

func UnmarshalManifest(payload []byte) (Manifest, error) {
	var manifest Manifest
	if err := json.Unmarshal(payload, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if err := manifest.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("invalid manifest: %w", err)
	}
	return manifest, nil
}

func columnsFromSchema(table schema.Table) []Column {
	columns := make([]Column, 0, len(table.Columns))
	for _, column := range table.Columns {
		columns = append(columns, Column{
			Name:       column.Name,
			Kind:       KindForType(column.Type),
			SourceType: column.Type,
			Nullable:   column.Nullable,
			PrimaryKey: column.PrimaryKey,
		})
	}
	return columns
}
