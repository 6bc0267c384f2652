package pin

import (
	"crypto/rand"
	"crypto/subtle"
	"math/big"
	"strings"

	"github.com/oddbit-project/walletguard/utils"
)

const (
	numericCharset = "0123456789"
	groupSize      = 3

	ErrInvalidLength = utils.Error("pin length must be greater than 0")
)

// GenerateNumeric generates a cryptographically secure numeric PIN of the given length,
// grouped in blocks of 3 digits ("123-456")
func GenerateNumeric(length int) (string, error) {
	if length <= 0 {
		return "", ErrInvalidLength
	}

	result := make([]byte, length)
	max := big.NewInt(int64(len(numericCharset)))
	for i := range result {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		result[i] = numericCharset[idx.Int64()]
	}
	return group(string(result)), nil
}

func group(s string) string {
	if len(s) <= groupSize {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if i > 0 && i%groupSize == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// Normalize removes grouping dashes and whitespace
func Normalize(pin string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, pin)
}

// CompareNumeric compares two PINs in constant time, ignoring grouping
func CompareNumeric(pin1, pin2 string) bool {
	return subtle.ConstantTimeCompare([]byte(Normalize(pin1)), []byte(Normalize(pin2))) == 1
}
