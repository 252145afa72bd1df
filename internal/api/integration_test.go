//go:build integration

package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/polo52/polochat/internal/chat"
	"github.com/polo52/polochat/internal/migrations"
	"github.com/polo52/polochat/internal/nl2sql"
	"github.com/polo52/polochat/internal/schema"
	"github.com/polo52/polochat/internal/sqlguard"
	warehousepg "github.com/polo52/polochat/internal/warehouse/postgres"
)

// scriptedGenerator plans a fixed statement and echoes a canned answer.
type scriptedGenerator struct {
	plan   string
	answer string
}

func (g scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "sql_query") {
		return g.plan, nil
	}
	return g.answer, nil
}

func TestChatEndpointAgainstPostgresWarehouse(t *testing.T) {
	adminDSN := strings.TrimSpace(os.Getenv("POLOCHAT_TEST_DB_DSN"))
	if adminDSN == "" {
		t.Skip("POLOCHAT_TEST_DB_DSN is not set")
	}

	testDSN, cleanup := createTemporaryDatabase(t, adminDSN)
	defer cleanup()

	db, err := sql.Open("pgx", testDSN)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := migrations.NewRunner().Up(ctx, db, 1); err != nil {
		t.Fatalf("runner.Up() error = %v", err)
	}
	seedCompanies(t, db)

	catalog := warehousepg.NewCatalog(db, "public")
	introspector := schema.NewIntrospector(catalog)
	generator := scriptedGenerator{
		plan:   `{"needs_more_info": false, "sql_query": "SELECT nombre, rubro FROM empresa WHERE nombre ILIKE '%polo%' ORDER BY nombre", "corrected_entity": "", "question": ""}`,
		answer: "Hay 2 empresas con Polo en el nombre.",
	}
	orchestrator := chat.NewOrchestrator(
		introspector,
		nl2sql.NewPlanner(generator),
		sqlguard.New(warehousepg.NewExecutor(db, 5*time.Second), 50),
		nl2sql.NewComposer(generator, 6),
		chat.Options{Logger: discardLogger()},
	)

	h := NewHandler(testConfig(t), Dependencies{
		Logger:    discardLogger(),
		Readiness: CheckWarehouse(catalog.HealthCheck),
		Chat:      orchestrator,
		Schema:    introspector,
	})

	rr := postChat(t, h, `{"message": "¿Qué empresas tienen polo en el nombre?"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response error = %v", err)
	}
	if body["reply"] != generator.answer {
		t.Fatalf("reply = %v", body["reply"])
	}
	rows, ok := body["db_results"].([]any)
	if !ok || len(rows) != 2 {
		t.Fatalf("db_results = %#v", body["db_results"])
	}
	if got := rows[0].(map[string]any)["nombre"]; got != "Agro Polo" {
		t.Fatalf("first nombre = %v", got)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM empresa`).Scan(&count); err != nil {
		t.Fatalf("count empresa: %v", err)
	}
	if count != 3 {
		t.Fatalf("empresa rows = %d after chat turn", count)
	}
}

func seedCompanies(t *testing.T, db *sql.DB) {
	t.Helper()
	companies := []struct {
		cuil   int64
		nombre string
		rubro  string
	}{
		{30712345678, "Agro Polo", "agroindustria"},
		{30798765432, "Polo Logística", "logística"},
		{30711122233, "Metalúrgica Núñez", "metalurgia"},
	}
	for _, company := range companies {
		if _, err := db.Exec(`
INSERT INTO empresa (cuil, nombre, rubro, cant_empleados, fecha_ingreso, horario_trabajo)
VALUES ($1, $2, $3, 10, DATE '2021-03-01', 'L a V 8 a 17')`, company.cuil, company.nombre, company.rubro); err != nil {
			t.Fatalf("insert empresa error = %v", err)
		}
	}
}

func createTemporaryDatabase(t *testing.T, adminDSN string) (string, func()) {
	t.Helper()

	parsed, err := url.Parse(adminDSN)
	if err != nil {
		t.Fatalf("url.Parse(adminDSN) error = %v", err)
	}
	if strings.TrimPrefix(parsed.Path, "/") == "" {
		t.Fatal("admin DSN must include a database name")
	}

	adminDB, err := sql.Open("pgx", adminDSN)
	if err != nil {
		t.Fatalf("sql.Open(adminDSN) error = %v", err)
	}

	name := fmt.Sprintf("polochat_it_api_%d", time.Now().UnixNano())
	if _, err := adminDB.Exec(`CREATE DATABASE ` + name); err != nil {
		t.Fatalf("CREATE DATABASE failed: %v", err)
	}

	testURL := *parsed
	testURL.Path = "/" + name

	cleanup := func() {
		defer func() { _ = adminDB.Close() }()
		if _, err := adminDB.Exec(`SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1`, name); err != nil {
			t.Fatalf("terminate test db sessions: %v", err)
		}
		if _, err := adminDB.Exec(`DROP DATABASE ` + name); err != nil {
			t.Fatalf("DROP DATABASE failed: %v", err)
		}
	}
	return testURL.String(), cleanup
}

func TestSchemaDescriptionKeepsKeysForReaderRole(t *testing.T) {
	adminDSN := strings.TrimSpace(os.Getenv("POLOCHAT_TEST_DB_DSN"))
	if adminDSN == "" {
		t.Skip("POLOCHAT_TEST_DB_DSN is not set")
	}

	testDSN, cleanup := createTemporaryDatabase(t, adminDSN)
	defer cleanup()

	ownerDB, err := sql.Open("pgx", testDSN)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer func() { _ = ownerDB.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := migrations.NewRunner().Up(ctx, ownerDB, 2); err != nil {
		t.Fatalf("runner.Up() error = %v", err)
	}

	readerURL, err := url.Parse(testDSN)
	if err != nil {
		t.Fatalf("url.Parse(testDSN) error = %v", err)
	}
	readerURL.User = url.UserPassword("polochat_reader", "polochat_reader")
	readerDB, err := sql.Open("pgx", readerURL.String())
	if err != nil {
		t.Fatalf("sql.Open(reader) error = %v", err)
	}
	defer func() { _ = readerDB.Close() }()

	description, err := schema.NewIntrospector(warehousepg.NewCatalog(readerDB, "public")).Describe(ctx)
	if err != nil {
		t.Fatalf("Describe() as reader error = %v", err)
	}
	rendered := description.Render()
	for _, want := range []string{
		"FK usuario.cuil -> empresa.cuil",
		"FK vehiculo.cuil -> empresa.cuil",
		"  cuil bigint NOT NULL PK",
	} {
		if !strings.Contains(rendered, want) {
			t.Fatalf("rendered schema missing %q:\n%s", want, rendered)
		}
	}
	if strings.Contains(rendered, "contrasena") {
		t.Fatalf("reader schema exposes contrasena:\n%s", rendered)
	}
}
