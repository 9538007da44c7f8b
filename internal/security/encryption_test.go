package security

import (
	"strings"
	"testing"

	"github.com/flexprice/ebilling/internal/config"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEncryptionService(t *testing.T, key string) EncryptionService {
	t.Helper()
	cfg := &config.Configuration{
		Secrets: config.SecretsConfig{EncryptionKey: key},
	}
	svc, err := NewEncryptionService(cfg, logger.NewNoopLogger())
	require.NoError(t, err)
	return svc
}

func TestNewEncryptionService_MissingKey(t *testing.T) {
	svc, err := NewEncryptionService(&config.Configuration{}, logger.NewNoopLogger())
	require.Error(t, err)
	assert.Nil(t, svc)
	assert.True(t, ierr.Is(err, ierr.ErrSystem))
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	svc := newTestEncryptionService(t, "test-encryption-key-for-unit-tests-only")

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "password", plaintext: "s3cr3t-P@ssw0rd"},
		{name: "bearer token", plaintext: "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.sig"},
		{name: "unicode", plaintext: "contraseña ñandú 日本"},
		{name: "long value", plaintext: strings.Repeat("x", 4096)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := svc.Encrypt(tt.plaintext)
			require.NoError(t, err)
			assert.NotEqual(t, tt.plaintext, ciphertext)

			decrypted, err := svc.Decrypt(ciphertext)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, decrypted)
		})
	}
}

func TestEncrypt_RandomNonce(t *testing.T) {
	svc := newTestEncryptionService(t, "test-encryption-key-for-unit-tests-only")

	first, err := svc.Encrypt("same-plaintext")
	require.NoError(t, err)
	second, err := svc.Encrypt("same-plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestEncrypt_EmptyString(t *testing.T) {
	svc := newTestEncryptionService(t, "test-encryption-key-for-unit-tests-only")

	ciphertext, err := svc.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, ciphertext)

	plaintext, err := svc.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, plaintext)
}

func TestDecrypt_KeyIsDeterministicAcrossInstances(t *testing.T) {
	writer := newTestEncryptionService(t, "shared-master-secret")
	reader := newTestEncryptionService(t, "shared-master-secret")

	ciphertext, err := writer.Encrypt("persisted-token")
	require.NoError(t, err)

	plaintext, err := reader.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "persisted-token", plaintext)
}

func TestDecrypt_Failures(t *testing.T) {
	svc := newTestEncryptionService(t, "test-encryption-key-for-unit-tests-only")
	other := newTestEncryptionService(t, "a-different-master-secret")

	foreign, err := other.Encrypt("value")
	require.NoError(t, err)

	tests := []struct {
		name       string
		ciphertext string
	}{
		{name: "not base64", ciphertext: "%%%not-base64%%%"},
		{name: "too short", ciphertext: "YWJj"},
		{name: "wrong key", ciphertext: foreign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Decrypt(tt.ciphertext)
			require.Error(t, err)
			assert.True(t, ierr.Is(err, ierr.ErrSystem))
		})
	}
}

func TestHash(t *testing.T) {
	svc := newTestEncryptionService(t, "test-encryption-key-for-unit-tests-only")

	assert.Empty(t, svc.Hash(""))
	assert.Equal(t, svc.Hash("value"), svc.Hash("value"))
	assert.NotEqual(t, svc.Hash("value"), svc.Hash("other"))
	assert.Len(t, svc.Hash("value"), 64)
}

func TestDeriveKey(t *testing.T) {
	assert.Equal(t, DeriveKey("secret"), DeriveKey("secret"))
	assert.NotEqual(t, DeriveKey("secret"), DeriveKey("secret2"))
	assert.Len(t, DeriveKey("secret"), keyLength)
}
