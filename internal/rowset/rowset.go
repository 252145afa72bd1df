package rowset

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// Row maps a column name to one of the canonical scalars: string, int64, float64, bool,
// Date or nil.
type Row map[string]any

// ResultSet is a fully materialized query result. Columns keep the order the database
// reported them in, with repeated names suffixed (nombre, nombre_2) so every column has
// its own key in Row. Truncated is set when the query produced more rows than the cap.
type ResultSet struct {
	Columns   []string `json:"columns"`
	Rows      []Row    `json:"rows"`
	Truncated bool     `json:"truncated,omitempty"`
}

func (r ResultSet) Len() int {
	return len(r.Rows)
}

func (r ResultSet) Empty() bool {
	return len(r.Rows) == 0
}

// Without returns a copy that omits every column for which drop reports true. The receiver
// is left untouched.
func (r ResultSet) Without(drop func(column string) bool) ResultSet {
	columns := make([]string, 0, len(r.Columns))
	for _, column := range r.Columns {
		if !drop(column) {
			columns = append(columns, column)
		}
	}
	rows := make([]Row, 0, len(r.Rows))
	for _, row := range r.Rows {
		kept := make(Row, len(columns))
		for key, value := range row {
			if !drop(key) {
				kept[key] = value
			}
		}
		rows = append(rows, kept)
	}
	return ResultSet{Columns: columns, Rows: rows, Truncated: r.Truncated}
}

// MarshalRows renders the rows as compact JSON with dates in ISO 8601 form.
func (r ResultSet) MarshalRows() (string, error) {
	rows := r.Rows
	if rows == nil {
		rows = []Row{}
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("marshal rows: %w", err)
	}
	return string(payload), nil
}

// FetchLimit is the LIMIT to apply when scanning with maxRows: one extra row lets Scan tell
// a result that exactly fills the cap from one that overflows it.
func FetchLimit(maxRows int) int {
	if maxRows <= 0 {
		return maxRows
	}
	return maxRows + 1
}

// Scan materializes every row of rows into a ResultSet, converting driver values to
// canonical scalars. maxRows <= 0 means no cap. Rows past the cap are not read; their
// presence only marks the result as truncated.
func Scan(rows *sql.Rows, maxRows int) (ResultSet, error) {
	reported, err := rows.Columns()
	if err != nil {
		return ResultSet{}, fmt.Errorf("query columns: %w", err)
	}
	columns := uniqueColumnNames(reported)
	databaseTypes := make([]string, len(columns))
	if columnTypes, err := rows.ColumnTypes(); err == nil {
		for i, columnType := range columnTypes {
			if i < len(databaseTypes) {
				databaseTypes[i] = columnType.DatabaseTypeName()
			}
		}
	}

	result := ResultSet{Columns: columns, Rows: make([]Row, 0)}
	for rows.Next() {
		if maxRows > 0 && len(result.Rows) >= maxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return ResultSet{}, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(columns))
		for i, column := range columns {
			row[column] = Normalize(values[i], databaseTypes[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return ResultSet{}, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

// uniqueColumnNames keeps the first occurrence of a name and suffixes later ones with _2,
// _3 and so on, skipping suffixes the query already uses.
func uniqueColumnNames(columns []string) []string {
	taken := make(map[string]struct{}, len(columns))
	for _, column := range columns {
		taken[column] = struct{}{}
	}
	out := make([]string, len(columns))
	seen := make(map[string]struct{}, len(columns))
	for i, column := range columns {
		if _, dup := seen[column]; !dup {
			seen[column] = struct{}{}
			out[i] = column
			continue
		}
		for n := 2; ; n++ {
			candidate := column + "_" + strconv.Itoa(n)
			if _, used := taken[candidate]; used {
				continue
			}
			taken[candidate] = struct{}{}
			seen[candidate] = struct{}{}
			out[i] = candidate
			break
		}
	}
	return out
}

// Normalize converts a driver value to a canonical scalar. databaseType is the column's
// DatabaseTypeName and may be empty.
func Normalize(value any, databaseType string) any {
	databaseType = strings.ToUpper(strings.TrimSpace(databaseType))

	switch typed := value.(type) {
	case nil:
		return nil
	case string:
		if isNumericType(databaseType) {
			if parsed, err := strconv.ParseFloat(typed, 64); err == nil {
				return parsed
			}
		}
		if databaseType == "DATE" {
			if parsed, err := ParseDate(typed); err == nil {
				return parsed
			}
		}
		return typed
	case []byte:
		return Normalize(string(typed), databaseType)
	case bool:
		return typed
	case int:
		return int64(typed)
	case int8:
		return int64(typed)
	case int16:
		return int64(typed)
	case int32:
		return int64(typed)
	case int64:
		return typed
	case uint8:
		return int64(typed)
	case uint16:
		return int64(typed)
	case uint32:
		return int64(typed)
	case uint:
		return Normalize(uint64(typed), databaseType)
	case uint64:
		if typed > math.MaxInt64 {
			return strconv.FormatUint(typed, 10)
		}
		return int64(typed)
	case float32:
		return float64(typed)
	case float64:
		return typed
	case *big.Int:
		if typed.IsInt64() {
			return typed.Int64()
		}
		return typed.String()
	case Date:
		return typed
	case time.Time:
		if databaseType == "DATE" {
			return DateOf(typed)
		}
		return typed.UTC().Format(time.RFC3339Nano)
	case interface{ Float64() float64 }:
		return typed.Float64()
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}

func isNumericType(databaseType string) bool {
	switch {
	case databaseType == "NUMERIC", databaseType == "DECIMAL":
		return true
	case strings.HasPrefix(databaseType, "NUMERIC("), strings.HasPrefix(databaseType, "DECIMAL("):
		return true
	default:
		return false
	}
}
