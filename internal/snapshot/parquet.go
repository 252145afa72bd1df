package snapshot

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/polo52/polochat/internal/rowset"
)

type ParquetEncodeResult struct {
	Data        []byte
	RecordCount int64
}

const secondsPerDay = 24 * 60 * 60

// TableSchema builds a Parquet schema with one optional leaf per column.
func TableSchema(table string, columns []Column) (*parquet.Schema, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %q has no columns", table)
	}
	group := parquet.Group{}
	for _, column := range columns {
		if _, ok := group[column.Name]; ok {
			return nil, fmt.Errorf("table %q: duplicate column %q", table, column.Name)
		}
		group[column.Name] = parquet.Optional(leafFor(column.Kind))
	}
	return parquet.NewSchema(table, group), nil
}

func leafFor(kind ColumnKind) parquet.Node {
	switch kind {
	case KindInt64:
		return parquet.Int(64)
	case KindDouble:
		return parquet.Leaf(parquet.DoubleType)
	case KindBoolean:
		return parquet.Leaf(parquet.BooleanType)
	case KindDate:
		return parquet.Date()
	case KindTimestamp:
		return parquet.Timestamp(parquet.Millisecond)
	default:
		return parquet.String()
	}
}

// EncodeTable writes rows as a single Parquet file. Row values must be the canonical
// scalars produced by rowset.Scan.
func EncodeTable(table string, columns []Column, rows []rowset.Row) (ParquetEncodeResult, error) {
	tableSchema, err := TableSchema(table, columns)
	if err != nil {
		return ParquetEncodeResult{}, err
	}

	kinds := make(map[string]ColumnKind, len(columns))
	for _, column := range columns {
		kinds[column.Name] = column.Kind
	}
	// Group leaves are ordered by name, not by declaration.
	leaves := tableSchema.Columns()

	parquetRows := make([]parquet.Row, 0, len(rows))
	for rowIndex, row := range rows {
		parquetRow := make(parquet.Row, 0, len(leaves))
		for columnIndex, path := range leaves {
			name := path[0]
			value, err := parquetValue(kinds[name], row[name])
			if err != nil {
				return ParquetEncodeResult{}, fmt.Errorf("table %q row %d column %q: %w", table, rowIndex, name, err)
			}
			if value.IsNull() {
				parquetRow = append(parquetRow, value.Level(0, 0, columnIndex))
			} else {
				parquetRow = append(parquetRow, value.Level(0, 1, columnIndex))
			}
		}
		parquetRows = append(parquetRows, parquetRow)
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewWriter(buf, tableSchema)
	if _, err := writer.WriteRows(parquetRows); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return ParquetEncodeResult{
		Data:        buf.Bytes(),
		RecordCount: int64(len(parquetRows)),
	}, nil
}

func parquetValue(kind ColumnKind, value any) (parquet.Value, error) {
	if value == nil {
		return parquet.NullValue(), nil
	}

	switch kind {
	case KindInt64:
		switch typed := value.(type) {
		case int64:
			return parquet.Int64Value(typed), nil
		case float64:
			if typed != math.Trunc(typed) {
				return parquet.Value{}, fmt.Errorf("non-integral value %v", typed)
			}
			return parquet.Int64Value(int64(typed)), nil
		case string:
			parsed, err := strconv.ParseInt(typed, 10, 64)
			if err != nil {
				return parquet.Value{}, fmt.Errorf("parse int64: %w", err)
			}
			return parquet.Int64Value(parsed), nil
		}
	case KindDouble:
		switch typed := value.(type) {
		case float64:
			return parquet.DoubleValue(typed), nil
		case int64:
			return parquet.DoubleValue(float64(typed)), nil
		case string:
			parsed, err := strconv.ParseFloat(typed, 64)
			if err != nil {
				return parquet.Value{}, fmt.Errorf("parse double: %w", err)
			}
			return parquet.DoubleValue(parsed), nil
		}
	case KindBoolean:
		if typed, ok := value.(bool); ok {
			return parquet.BooleanValue(typed), nil
		}
	case KindDate:
		switch typed := value.(type) {
		case rowset.Date:
			return parquet.Int32Value(daysSinceEpoch(typed)), nil
		case string:
			parsed, err := rowset.ParseDate(typed)
			if err != nil {
				return parquet.Value{}, err
			}
			return parquet.Int32Value(daysSinceEpoch(parsed)), nil
		}
	case KindTimestamp:
		switch typed := value.(type) {
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, typed)
			if err != nil {
				return parquet.Value{}, fmt.Errorf("parse timestamp: %w", err)
			}
			return parquet.Int64Value(parsed.UTC().UnixMilli()), nil
		case rowset.Date:
			return parquet.Int64Value(typed.Time().UnixMilli()), nil
		}
	default:
		switch typed := value.(type) {
		case string:
			return parquet.ByteArrayValue([]byte(typed)), nil
		case rowset.Date:
			return parquet.ByteArrayValue([]byte(typed.String())), nil
		default:
			return parquet.ByteArrayValue([]byte(fmt.Sprint(typed))), nil
		}
	}
	return parquet.Value{}, fmt.Errorf("cannot store %T as %s", value, kind)
}

func daysSinceEpoch(date rowset.Date) int32 {
	return int32(date.Time().Unix() / secondsPerDay)
}
