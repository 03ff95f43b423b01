package hipaa

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestNewEncryptionService_Disabled(t *testing.T) {
	svc, err := NewEncryptionService(nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.IsEnabled() {
		t.Error("expected encryption to be disabled without a key")
	}
	if svc.Encryptor() != nil {
		t.Error("expected nil encryptor when disabled")
	}
}

func TestNewEncryptionService_Enabled(t *testing.T) {
	svc, err := NewEncryptionService(generateTestKey(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !svc.IsEnabled() {
		t.Fatal("expected encryption to be enabled")
	}

	sealed, err := svc.Encryptor().Encrypt("AMH 0.8 ng/mL, two failed transfers")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	opened, err := svc.Encryptor().Decrypt(sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if opened != "AMH 0.8 ng/mL, two failed transfers" {
		t.Errorf("round trip mismatch: %q", opened)
	}
}

func TestNewEncryptionService_BadKey(t *testing.T) {
	if _, err := NewEncryptionService([]byte("short"), zerolog.Nop()); err == nil {
		t.Fatal("expected error for a short key")
	}
}
