package main

import (
	"testing"
	"time"
)

func TestModeValueDefaultsToDevelopment(t *testing.T) {
	if mode := modeValue("", ""); mode != "development" {
		t.Fatalf("modeValue empty = %q, want development", mode)
	}
	if mode := modeValue(" Production ", ""); mode != "production" {
		t.Fatalf("modeValue flag = %q, want production", mode)
	}
	if mode := modeValue("", "PRODUCTION"); mode != "production" {
		t.Fatalf("modeValue env = %q, want production", mode)
	}
}

func TestResolveListenAddrByMode(t *testing.T) {
	if addr := resolveListenAddr("", "development", ""); addr != ":3000" {
		t.Fatalf("development default = %q, want :3000", addr)
	}
	if addr := resolveListenAddr("", "production", ""); addr != ":80" {
		t.Fatalf("production default = %q, want :80", addr)
	}
	if addr := resolveListenAddr(":8080", "production", ":9090"); addr != ":8080" {
		t.Fatalf("flag addr = %q, want :8080", addr)
	}
	if addr := resolveListenAddr("", "development", ":9090"); addr != ":9090" {
		t.Fatalf("env addr = %q, want :9090", addr)
	}
}

func TestResolveStorageDriverDefaultsToPostgresWithDSN(t *testing.T) {
	driver, err := resolveStorageDriver("", "", "postgres://example")
	if err != nil {
		t.Fatalf("resolveStorageDriver: %v", err)
	}
	if driver != "postgres" {
		t.Fatalf("driver = %q, want postgres", driver)
	}
}

func TestResolveStorageDriverDefaultsToJSON(t *testing.T) {
	driver, err := resolveStorageDriver("", "", "")
	if err != nil {
		t.Fatalf("resolveStorageDriver: %v", err)
	}
	if driver != "json" {
		t.Fatalf("driver = %q, want json", driver)
	}
}

func TestResolveStorageDriverExplicitWins(t *testing.T) {
	driver, err := resolveStorageDriver("JSON", "postgres", "postgres://example")
	if err != nil {
		t.Fatalf("resolveStorageDriver: %v", err)
	}
	if driver != "json" {
		t.Fatalf("driver = %q, want json", driver)
	}
}

func TestValidateProductionDatastore(t *testing.T) {
	if err := validateProductionDatastore("json", "postgres://example"); err == nil {
		t.Fatal("expected error when production mode uses the json driver")
	}
	if err := validateProductionDatastore("postgres", ""); err == nil {
		t.Fatal("expected error when production mode has no DSN")
	}
	if err := validateProductionDatastore("postgres", "postgres://example"); err != nil {
		t.Fatalf("validateProductionDatastore: %v", err)
	}
}

func TestResolvePostgresDSNPriority(t *testing.T) {
	t.Setenv("CARDEX_POSTGRES_DSN", "postgres://env")
	t.Setenv("DATABASE_URL", "postgres://database")

	if got := resolvePostgresDSN("postgres://flag"); got != "postgres://flag" {
		t.Fatalf("dsn = %q, want flag value to win", got)
	}
	if got := resolvePostgresDSN(""); got != "postgres://env" {
		t.Fatalf("dsn = %q, want CARDEX_POSTGRES_DSN to win", got)
	}
	t.Setenv("CARDEX_POSTGRES_DSN", "")
	if got := resolvePostgresDSN(""); got != "postgres://database" {
		t.Fatalf("dsn = %q, want DATABASE_URL fallback", got)
	}
}

func TestFirstNonEmptyTrimsValues(t *testing.T) {
	if got := firstNonEmpty("  ", "", " value "); got != "value" {
		t.Fatalf("firstNonEmpty = %q, want value", got)
	}
	if got := firstNonEmpty("  ", ""); got != "" {
		t.Fatalf("firstNonEmpty = %q, want empty", got)
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" https://a.example.com , ,https://b.example.com ")
	if len(got) != 2 || got[0] != "https://a.example.com" || got[1] != "https://b.example.com" {
		t.Fatalf("splitAndTrim = %v, want two trimmed origins", got)
	}
	if got := splitAndTrim("  "); got != nil {
		t.Fatalf("splitAndTrim blank = %v, want nil", got)
	}
}

func TestResolveDurationFallsBackToEnv(t *testing.T) {
	t.Setenv("CARDEX_TEST_DURATION", "15s")
	if got := resolveDuration(0, "CARDEX_TEST_DURATION"); got != 15*time.Second {
		t.Fatalf("resolveDuration = %v, want 15s", got)
	}
	if got := resolveDuration(time.Minute, "CARDEX_TEST_DURATION"); got != time.Minute {
		t.Fatalf("resolveDuration = %v, want flag value to win", got)
	}
	t.Setenv("CARDEX_TEST_DURATION", "nonsense")
	if got := resolveDuration(0, "CARDEX_TEST_DURATION"); got != 0 {
		t.Fatalf("resolveDuration = %v, want 0 for unparseable env", got)
	}
}

func TestResolveBoolFallsBackToEnv(t *testing.T) {
	t.Setenv("CARDEX_TEST_BOOL", "true")
	if !resolveBool(false, "CARDEX_TEST_BOOL") {
		t.Fatal("resolveBool env true not honored")
	}
	t.Setenv("CARDEX_TEST_BOOL", "nope")
	if resolveBool(false, "CARDEX_TEST_BOOL") {
		t.Fatal("resolveBool unparseable env treated as true")
	}
	if !resolveBool(true, "CARDEX_TEST_BOOL") {
		t.Fatal("resolveBool flag true not honored")
	}
}
