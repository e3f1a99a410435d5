package fileutils

import (
	"errors"
	"io"
	"os"

	"github.com/cespare/xxhash"
)

// ComputeHash returns the xxhash of everything read from r. It does not close r.
func ComputeHash(r io.Reader) (uint64, error) {
	hash := xxhash.New()
	if _, err := io.Copy(hash, r); err != nil {
		return 0, err
	}
	return hash.Sum64(), nil
}

// ComputeFileHash returns the hash of the file content at path.
func ComputeFileHash(path string) (hash uint64, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()

	return ComputeHash(file)
}
