package security

import "golang.org/x/crypto/bcrypt"

// HashSecret returns a salted one-way hash of plaintext. It is used for
// passwords, refresh tokens at rest and product keys alike.
func HashSecret(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifySecret reports whether plaintext matches hash. A malformed hash and
// a wrong plaintext are indistinguishable to the caller.
func VerifySecret(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
