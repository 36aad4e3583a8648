package serialization

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ComputeChecksum returns the SHA-256 of data, the digest stored in the
// fixed header of every .born blob.
func ComputeChecksum(data []byte) [ChecksumSize]byte {
	return sha256.Sum256(data)
}

// FileChecksum streams the file at path through SHA-256 and returns the
// hex digest. The model zoo compares it with registry entries.
func FileChecksum(path string) (string, error) {
	//nolint:gosec // G304: path is chosen by the caller
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("checksum %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ValidateChecksum reports ErrChecksumMismatch unless computed equals stored.
func ValidateChecksum(computed, stored [ChecksumSize]byte) error {
	if computed == stored {
		return nil
	}
	return ErrChecksumMismatch
}
