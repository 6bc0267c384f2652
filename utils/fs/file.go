package fs

import (
	"os"
	"strings"
)

// FileExists returns true if filename exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// ReadString reads a secret or value file, trimming surrounding whitespace and line breaks
func ReadString(filename string) (string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", err
	}
	return strings.Trim(string(data), " \t\r\n"), nil
}
