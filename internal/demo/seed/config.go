package seed

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	DSN                 string
	Companies           int
	VehiclesPerCompany  int
	ContactsPerCompany  int
	UsersPerCompany     int
	ServicesPerCompany  int
	Lots                int
	Seed                int64
	Truncate            bool
	StatementTimeout    time.Duration
	EarliestIngressYear int
}

func DefaultConfig() Config {
	return Config{
		Companies:           40,
		VehiclesPerCompany:  3,
		ContactsPerCompany:  2,
		UsersPerCompany:     1,
		ServicesPerCompany:  2,
		Lots:                60,
		Seed:                time.Now().UTC().UnixNano(),
		StatementTimeout:    30 * time.Second,
		EarliestIngressYear: 2008,
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyString(lookup, "POLOCHAT_DB_DSN", &cfg.DSN); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "POLOCHAT_DEMO_DSN", &cfg.DSN); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "POLOCHAT_DEMO_COMPANIES", &cfg.Companies); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "POLOCHAT_DEMO_VEHICLES_PER_COMPANY", &cfg.VehiclesPerCompany); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "POLOCHAT_DEMO_CONTACTS_PER_COMPANY", &cfg.ContactsPerCompany); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "POLOCHAT_DEMO_USERS_PER_COMPANY", &cfg.UsersPerCompany); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "POLOCHAT_DEMO_SERVICES_PER_COMPANY", &cfg.ServicesPerCompany); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "POLOCHAT_DEMO_LOTS", &cfg.Lots); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "POLOCHAT_DEMO_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "POLOCHAT_DEMO_TRUNCATE", &cfg.Truncate); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "POLOCHAT_DEMO_STATEMENT_TIMEOUT", &cfg.StatementTimeout); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.DSN) == "" {
		return Config{}, fmt.Errorf("POLOCHAT_DEMO_DSN or POLOCHAT_DB_DSN is required")
	}
	if cfg.Companies <= 0 {
		return Config{}, fmt.Errorf("POLOCHAT_DEMO_COMPANIES must be > 0")
	}
	if cfg.VehiclesPerCompany < 0 {
		return Config{}, fmt.Errorf("POLOCHAT_DEMO_VEHICLES_PER_COMPANY must be >= 0")
	}
	if cfg.ContactsPerCompany < 0 {
		return Config{}, fmt.Errorf("POLOCHAT_DEMO_CONTACTS_PER_COMPANY must be >= 0")
	}
	if cfg.UsersPerCompany < 0 {
		return Config{}, fmt.Errorf("POLOCHAT_DEMO_USERS_PER_COMPANY must be >= 0")
	}
	if cfg.ServicesPerCompany < 0 {
		return Config{}, fmt.Errorf("POLOCHAT_DEMO_SERVICES_PER_COMPANY must be >= 0")
	}
	if cfg.Lots < 0 {
		return Config{}, fmt.Errorf("POLOCHAT_DEMO_LOTS must be >= 0")
	}
	if cfg.StatementTimeout <= 0 {
		return Config{}, fmt.Errorf("POLOCHAT_DEMO_STATEMENT_TIMEOUT must be > 0")
	}
	return cfg, nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
