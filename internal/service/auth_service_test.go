package service

import (
	"testing"

	"archive-depot-go/pkg/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	jwtManager := token.NewJWTManager("jwt-secret", 1)
	svc := NewAuthService(string(hash), jwtManager)

	tok, exp, err := svc.Login("s3cret")
	require.NoError(t, err)
	assert.False(t, exp.IsZero())
	claims, err := jwtManager.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, token.Subject, claims.Subject)

	_, _, err = svc.Login("wrong")
	assert.ErrorIs(t, err, ErrInvalidSecret)
	_, _, err = svc.Login("")
	assert.ErrorIs(t, err, ErrInvalidSecret)
}

func TestLoginWithoutConfiguredSecret(t *testing.T) {
	svc := NewAuthService("", token.NewJWTManager("jwt-secret", 1))
	_, _, err := svc.Login("anything")
	assert.ErrorIs(t, err, ErrInvalidSecret)
}
