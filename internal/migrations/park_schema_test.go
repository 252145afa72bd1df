package migrations

import (
	"strings"
	"testing"
)

func TestParkMigrationContainsRequiredTables(t *testing.T) {
	body, err := embeddedFS.ReadFile("sql/000001_park_schema.up.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	sql := string(body)
	requiredSnippets := []string{
		"CREATE TABLE empresa",
		"CREATE TABLE usuario",
		"CREATE TABLE rol",
		"CREATE TABLE rol_usuario",
		"CREATE TABLE vehiculo",
		"CREATE TABLE contacto",
		"CREATE TABLE servicio",
		"CREATE TABLE empresa_servicio",
		"CREATE TABLE lote",
		"cuil BIGINT REFERENCES empresa (cuil)",
		"CREATE INDEX idx_empresa_nombre",
	}
	for _, snippet := range requiredSnippets {
		if !strings.Contains(sql, snippet) {
			t.Fatalf("migration missing required snippet: %s", snippet)
		}
	}
}

func TestReaderRoleCannotSeePasswords(t *testing.T) {
	body, err := embeddedFS.ReadFile("sql/000002_reader_role.up.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	sql := string(body)
	for _, snippet := range []string{
		"default_transaction_read_only = on",
		"REVOKE SELECT ON usuario FROM polochat_reader",
		"GRANT SELECT (id_usuario, nombre, estado, fecha_registro, cuil) ON usuario",
	} {
		if !strings.Contains(sql, snippet) {
			t.Fatalf("reader role migration missing: %s", snippet)
		}
	}
	if strings.Contains(strings.ToUpper(sql), "GRANT INSERT") || strings.Contains(strings.ToUpper(sql), "GRANT UPDATE") {
		t.Fatal("reader role must not receive write grants")
	}
}

func TestEmbeddedMigrationsLoad(t *testing.T) {
	items, err := loadMigrations(embeddedFS)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) != 2 || items[0].Version != 1 || items[1].Version != 2 {
		t.Fatalf("unexpected embedded migrations: %+v", items)
	}
}
