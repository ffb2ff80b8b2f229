package security

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns a bcrypt hash suitable for the server basic auth configuration
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckBasicAuth compares supplied credentials against the configured user and bcrypt hash
func CheckBasicAuth(wantUser, wantHash, user, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(wantUser), []byte(user)) == 1
	passOK := bcrypt.CompareHashAndPassword([]byte(wantHash), []byte(password)) == nil
	return userOK && passOK
}
