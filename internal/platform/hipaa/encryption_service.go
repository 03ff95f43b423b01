package hipaa

import (
	"github.com/rs/zerolog"
)

// EncryptionService holds the PHI encryptor for the process. With no key it
// is disabled and Encryptor returns nil, leaving columns in plaintext.
type EncryptionService struct {
	encryptor FieldEncryptor
}

// NewEncryptionService builds the service from a decoded 32-byte key. A nil
// or empty key disables encryption with a warning.
func NewEncryptionService(key []byte, logger zerolog.Logger) (*EncryptionService, error) {
	if len(key) == 0 {
		logger.Warn().Msg("PHI encryption disabled: HIPAA_ENCRYPTION_KEY is not set")
		return &EncryptionService{}, nil
	}

	enc, err := NewPHIEncryptor(key)
	if err != nil {
		return nil, err
	}

	logger.Info().Msg("PHI field-level encryption enabled")
	return &EncryptionService{encryptor: enc}, nil
}

// Encryptor returns the configured encryptor, or nil when disabled.
func (s *EncryptionService) Encryptor() FieldEncryptor {
	return s.encryptor
}

func (s *EncryptionService) IsEnabled() bool {
	return s.encryptor != nil
}
