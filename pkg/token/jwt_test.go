package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewJWTManager("s3cret", 1)
	tok, exp, err := m.GenerateToken()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := m.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, Subject, claims.Subject)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	tok, _, err := NewJWTManager("one", 1).GenerateToken()
	require.NoError(t, err)
	_, err = NewJWTManager("two", 1).VerifyToken(tok)
	assert.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := NewJWTManager("s3cret", 0)
	tok, _, err := m.GenerateToken()
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)
	_, err = m.VerifyToken(tok)
	assert.Error(t, err)
}
