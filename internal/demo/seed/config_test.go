package seed

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapLookup(map[string]string{
		"POLOCHAT_DB_DSN": "postgres://polochat@localhost/polo52",
	}))
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error = %v", err)
	}
	if cfg.DSN != "postgres://polochat@localhost/polo52" {
		t.Fatalf("DSN = %q", cfg.DSN)
	}
	if cfg.Companies != 40 || cfg.Lots != 60 {
		t.Fatalf("Companies = %d, Lots = %d", cfg.Companies, cfg.Lots)
	}
	if cfg.Truncate {
		t.Fatal("Truncate = true, want false")
	}
}

func TestLoadConfigFromEnvOverrides(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapLookup(map[string]string{
		"POLOCHAT_DB_DSN":                    "postgres://ignored",
		"POLOCHAT_DEMO_DSN":                  "postgres://demo@localhost/polo52_demo",
		"POLOCHAT_DEMO_COMPANIES":            "12",
		"POLOCHAT_DEMO_VEHICLES_PER_COMPANY": "0",
		"POLOCHAT_DEMO_CONTACTS_PER_COMPANY": "4",
		"POLOCHAT_DEMO_USERS_PER_COMPANY":    "2",
		"POLOCHAT_DEMO_SERVICES_PER_COMPANY": "3",
		"POLOCHAT_DEMO_LOTS":                 "9",
		"POLOCHAT_DEMO_SEED":                 "12345",
		"POLOCHAT_DEMO_TRUNCATE":             "true",
		"POLOCHAT_DEMO_STATEMENT_TIMEOUT":    "2m",
	}))
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error = %v", err)
	}
	if cfg.DSN != "postgres://demo@localhost/polo52_demo" {
		t.Fatalf("DSN = %q", cfg.DSN)
	}
	if cfg.Companies != 12 || cfg.VehiclesPerCompany != 0 || cfg.ContactsPerCompany != 4 {
		t.Fatalf("counts = %d/%d/%d", cfg.Companies, cfg.VehiclesPerCompany, cfg.ContactsPerCompany)
	}
	if cfg.UsersPerCompany != 2 || cfg.ServicesPerCompany != 3 || cfg.Lots != 9 {
		t.Fatalf("counts = %d/%d/%d", cfg.UsersPerCompany, cfg.ServicesPerCompany, cfg.Lots)
	}
	if cfg.Seed != 12345 {
		t.Fatalf("Seed = %d", cfg.Seed)
	}
	if !cfg.Truncate {
		t.Fatal("Truncate = false, want true")
	}
	if cfg.StatementTimeout != 2*time.Minute {
		t.Fatalf("StatementTimeout = %s", cfg.StatementTimeout)
	}
}

func TestLoadConfigFromEnvRequiresDSN(t *testing.T) {
	_, err := LoadConfigFromEnv(mapLookup(map[string]string{}))
	if err == nil || !strings.Contains(err.Error(), "POLOCHAT_DEMO_DSN") {
		t.Fatalf("error = %v, want dsn validation error", err)
	}
}

func TestLoadConfigFromEnvRejectsInvalidCompanies(t *testing.T) {
	_, err := LoadConfigFromEnv(mapLookup(map[string]string{
		"POLOCHAT_DB_DSN":         "postgres://localhost/polo52",
		"POLOCHAT_DEMO_COMPANIES": "0",
	}))
	if err == nil || !strings.Contains(err.Error(), "POLOCHAT_DEMO_COMPANIES") {
		t.Fatalf("error = %v, want companies validation error", err)
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}
