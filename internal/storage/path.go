package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

const (
	manifestFileName = "manifest.json"
	latestFileName   = "LATEST"
	indexFileName    = "INDEX.json"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildSnapshotTablePath returns <prefix>/<snapshot>/<table>.parquet.
func BuildSnapshotTablePath(prefix, snapshotID, tableName string) (string, error) {
	if err := validatePathComponent(snapshotID, "snapshot id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(tableName, "table name"); err != nil {
		return "", err
	}
	return joinPrefix(prefix, snapshotID, tableName+".parquet"), nil
}

func BuildManifestPath(prefix, snapshotID string) (string, error) {
	if err := validatePathComponent(snapshotID, "snapshot id"); err != nil {
		return "", err
	}
	return joinPrefix(prefix, snapshotID, manifestFileName), nil
}

// BuildLatestPath is the pointer object holding the id of the newest complete snapshot.
func BuildLatestPath(prefix string) string {
	return joinPrefix(prefix, latestFileName)
}

// BuildIndexPath is the list of published snapshots that retention walks.
func BuildIndexPath(prefix string) string {
	return joinPrefix(prefix, indexFileName)
}

func ValidateSnapshotID(snapshotID string) error {
	return validatePathComponent(snapshotID, "snapshot id")
}

func joinPrefix(prefix string, elems ...string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return path.Join(elems...)
	}
	return path.Join(append([]string{prefix}, elems...)...)
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
