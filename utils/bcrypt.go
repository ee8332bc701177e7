package utils

import "golang.org/x/crypto/bcrypt"

// Operator API keys are stored hashed (OPS_API_KEY_HASH); the plaintext is
// only ever seen on the request.
func HashAPIKey(s string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(s), bcrypt.DefaultCost)
}

func CompareAPIKey(hashed string, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
