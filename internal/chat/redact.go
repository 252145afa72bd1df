package chat

import (
	"strings"

	"github.com/polo52/polochat/internal/rowset"
)

var (
	redactedNames    = []string{"cuil", "cuit", "dni", "contrasena", "password", "hashed_password", "token", "id"}
	redactedPrefixes = []string{"id_"}
	redactedSuffixes = []string{"_id", "_token", "_password"}
)

// Redactor decides which result columns may be shown to the language model or returned
// to API callers. Matching is case-insensitive.
type Redactor struct {
	names map[string]struct{}
}

func NewRedactor(extraNames ...string) *Redactor {
	names := make(map[string]struct{}, len(redactedNames)+len(extraNames))
	for _, name := range append(append([]string{}, redactedNames...), extraNames...) {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			names[name] = struct{}{}
		}
	}
	return &Redactor{names: names}
}

// Sensitive also checks the name without a numeric suffix, since rowset renames repeated
// join columns to cuil_2 and so on.
func (r *Redactor) Sensitive(column string) bool {
	lower := strings.ToLower(strings.TrimSpace(column))
	if base := trimOrdinalSuffix(lower); base != lower && r.Sensitive(base) {
		return true
	}
	if _, ok := r.names[lower]; ok {
		return true
	}
	for _, prefix := range redactedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	for _, suffix := range redactedSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

func trimOrdinalSuffix(column string) string {
	underscore := strings.LastIndexByte(column, '_')
	if underscore <= 0 || underscore == len(column)-1 {
		return column
	}
	for _, ch := range column[underscore+1:] {
		if ch < '0' || ch > '9' {
			return column
		}
	}
	return column[:underscore]
}

// Apply returns a copy of results without sensitive columns.
func (r *Redactor) Apply(results rowset.ResultSet) rowset.ResultSet {
	return results.Without(r.Sensitive)
}
