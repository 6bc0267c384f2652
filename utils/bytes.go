package utils

import "crypto/rand"

// GenerateRandomBytes returns n bytes read from crypto/rand
func GenerateRandomBytes(n uint32) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Zero overwrites the contents of buf
func Zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
