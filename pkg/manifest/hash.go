package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// hashBuffer is the fixed chunk size for streaming fingerprints.
const hashBuffer = 64 * 1024

// DigestBytes computes the SHA-256 of data as lowercase hex.
func DigestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestReader streams r through SHA-256 using a fixed-size buffer.
func DigestReader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, hashBuffer)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	defer f.Close()
	sum, err := DigestReader(f)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return sum, nil
}
