package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/oddbit-project/walletguard/utils"
)

const (
	ErrInvalidTokenFormat = utils.Error("invalid token format")
	ErrInvalidEncoding    = utils.Error("invalid token encoding")

	tokenSeparator = "."
)

// HMACSHA256 computes HMAC-SHA256(key, data)
func HMACSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// HexHMACSHA256 computes HMAC-SHA256(key, data) as lowercase hex
func HexHMACSHA256(key, data []byte) string {
	return hex.EncodeToString(HMACSHA256(key, data))
}

// Equal compares a and b in constant time. Slices of different length are
// rejected before any byte is compared
func Equal(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// EqualString is Equal for strings
func EqualString(a, b string) bool {
	return Equal([]byte(a), []byte(b))
}

// VerifyHex checks a hex-encoded HMAC-SHA256 signature of data
func VerifyHex(key, data []byte, signature string) bool {
	provided, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return false
	}
	return Equal(HMACSHA256(key, data), provided)
}

// Token is a decoded "version.signature.payload" token
type Token struct {
	Version   string
	Signature []byte
	// EncodedPayload is the payload exactly as it appeared in the token
	EncodedPayload string
	Payload        []byte
}

// EncodeSegment encodes data as unpadded base64url
func EncodeSegment(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeSegment decodes an unpadded base64url segment
func DecodeSegment(s string) ([]byte, error) {
	buf, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	return buf, nil
}

// EncodeToken assembles version.base64url(signature).encodedPayload
func EncodeToken(version string, signature []byte, encodedPayload string) string {
	return version + tokenSeparator + EncodeSegment(signature) + tokenSeparator + encodedPayload
}

// DecodeToken splits and decodes a three-part token
func DecodeToken(token string) (*Token, error) {
	parts := strings.Split(token, tokenSeparator)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, ErrInvalidTokenFormat
	}
	sig, err := DecodeSegment(parts[1])
	if err != nil {
		return nil, err
	}
	payload, err := DecodeSegment(parts[2])
	if err != nil {
		return nil, err
	}
	return &Token{
		Version:        parts[0],
		Signature:      sig,
		EncodedPayload: parts[2],
		Payload:        payload,
	}, nil
}
