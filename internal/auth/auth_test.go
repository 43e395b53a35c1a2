package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBuildAndValidateJWT(t *testing.T) {
	issuer := NewIssuer("0123456789abcdef", time.Hour)

	token, err := issuer.BuildJWT("admin@example.com")
	require.NoError(t, err)

	subject, err := issuer.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", subject)
}

func TestValidateJWTRejectsOtherSecret(t *testing.T) {
	token, err := NewIssuer("0123456789abcdef", time.Hour).BuildJWT("admin@example.com")
	require.NoError(t, err)

	_, err = NewIssuer("fedcba9876543210", time.Hour).ValidateJWT(token)
	assert.Error(t, err)
}

func TestValidateJWTRejectsExpired(t *testing.T) {
	issuer := NewIssuer("0123456789abcdef", time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := issuer.BuildJWT("admin@example.com")
	require.NoError(t, err)

	_, err = NewIssuer("0123456789abcdef", time.Minute).ValidateJWT(token)
	assert.Error(t, err)
}

func TestValidateJWTRejectsNonAdminRole(t *testing.T) {
	secret := []byte("0123456789abcdef")
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "customer",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "someone", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(secret)
	require.NoError(t, err)

	_, err = NewIssuer(string(secret), time.Hour).ValidateJWT(token)
	assert.Error(t, err)
}

func TestAdminCheckPlain(t *testing.T) {
	admin := Admin{Email: "Admin@Example.com", Password: "s3cret"}

	assert.True(t, admin.Check("admin@example.com", "s3cret"))
	assert.True(t, admin.Check(" ADMIN@example.com ", "s3cret"))
	assert.False(t, admin.Check("admin@example.com", "wrong"))
	assert.False(t, admin.Check("other@example.com", "s3cret"))
}

func TestAdminCheckBcrypt(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	admin := Admin{Email: "admin@example.com", Password: string(hash)}

	assert.True(t, admin.Check("admin@example.com", "s3cret"))
	assert.False(t, admin.Check("admin@example.com", string(hash)))
}
