package config

import (
	"testing"

	"github.com/quietridge/merklesentry/internal/apperr"
	"github.com/quietridge/merklesentry/internal/storage"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.BackendVariant != storage.VariantRelational {
		t.Fatalf("BackendVariant = %s, want relational", cfg.BackendVariant)
	}
	if cfg.ScanIntervalMinutes != 15 {
		t.Fatalf("ScanIntervalMinutes = %d, want 15", cfg.ScanIntervalMinutes)
	}
}

func TestLoad_FlagsOverrideDefaults(t *testing.T) {
	cfg, err := Load([]string{"-port=9090", "-scan-interval-minutes=5", "-backend-variant=object_store"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.ScanIntervalMinutes != 5 {
		t.Fatalf("ScanIntervalMinutes = %d, want 5", cfg.ScanIntervalMinutes)
	}
	if cfg.BackendVariant != storage.VariantObjectStore {
		t.Fatalf("BackendVariant = %s, want object_store", cfg.BackendVariant)
	}
}

func TestLoad_RejectsScanIntervalBelowOne(t *testing.T) {
	_, err := Load([]string{"-scan-interval-minutes=0"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !apperr.Is(err, apperr.KindInvalid) {
		t.Fatalf("expected KindInvalid, got %v", err)
	}
}

func TestLoad_RejectsUnknownBackendVariant(t *testing.T) {
	_, err := Load([]string{"-backend-variant=carrier-pigeon"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !apperr.Is(err, apperr.KindInvalid) {
		t.Fatalf("expected KindInvalid, got %v", err)
	}
}
