package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ForBytes computes the signature of an in-memory payload.
func ForBytes(content []byte) Digest {
	sum := sha256.Sum256(content)
	return Digest{Algorithm: AlgorithmSHA256, Sum: hex.EncodeToString(sum[:])}
}

// ForFile computes the full-content signature of the file at path.
func ForFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("open file %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Digest{}, fmt.Errorf("hash file %s: %w", path, err)
	}

	return Digest{Algorithm: AlgorithmSHA256, Sum: hex.EncodeToString(h.Sum(nil))}, nil
}

// ForFilePrefix computes the signature of the first byteCount bytes of the
// file at path. A file shorter than byteCount is hashed in full, matching
// what a truncated range response would cover.
func ForFilePrefix(path string, byteCount int) (Digest, error) {
	if byteCount < 0 {
		return Digest{}, fmt.Errorf("invalid prefix length %d", byteCount)
	}

	f, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("open file %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyN(h, f, int64(byteCount)); err != nil && err != io.EOF {
		return Digest{}, fmt.Errorf("hash file prefix %s: %w", path, err)
	}

	return Digest{Algorithm: AlgorithmSHA256, Sum: hex.EncodeToString(h.Sum(nil))}, nil
}
