package utils

import (
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// ContentDigest is a fast non-cryptographic fingerprint used to detect
// whether a regenerated artifact differs from the one on disk.
func ContentDigest(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// FileDigest returns the ContentDigest of the file at path.
func FileDigest(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
