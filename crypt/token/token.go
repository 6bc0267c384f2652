package token

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
)

func randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// GenerateSecureBase64Token generates a URL-safe, unpadded base64 token with byteLength bytes of entropy
func GenerateSecureBase64Token(byteLength int) (string, error) {
	buf, err := randomBytes(byteLength)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateHexToken generates a lowercase hex token with byteLength bytes of entropy
func GenerateHexToken(byteLength int) (string, error) {
	buf, err := randomBytes(byteLength)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
