package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	m, err := NewManager(Config{SecretKey: "test-secret", TokenExpiration: time.Hour})
	require.NoError(t, err)

	signed, err := m.GenerateToken("operator")
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	subject, err := m.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "operator", subject)
}

func TestValidateRejectsWrongKey(t *testing.T) {
	m1, err := NewManager(Config{SecretKey: "secret-one"})
	require.NoError(t, err)
	m2, err := NewManager(Config{SecretKey: "secret-two"})
	require.NoError(t, err)

	signed, err := m1.GenerateToken("operator")
	require.NoError(t, err)

	_, err = m2.ValidateToken(signed)
	assert.Error(t, err)
}

func TestValidateRejectsExpired(t *testing.T) {
	m, err := NewManager(Config{SecretKey: "test-secret", TokenExpiration: -time.Hour})
	require.NoError(t, err)

	signed, err := m.GenerateToken("operator")
	require.NoError(t, err)

	_, err = m.ValidateToken(signed)
	assert.Error(t, err)
}

func TestValidateRejectsGarbage(t *testing.T) {
	m, err := NewManager(Config{SecretKey: "test-secret"})
	require.NoError(t, err)

	_, err = m.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestNewManagerRequiresSecret(t *testing.T) {
	_, err := NewManager(Config{})
	assert.Error(t, err)
}
