// Package fileutil hashes and copies file content on the run filesystem.
package fileutil

import (
	"crypto/md5"  // #nosec
	"crypto/sha1" // #nosec
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Supported digest names.
const (
	MD5    = "md5"
	SHA1   = "sha1"
	SHA256 = "sha256"
)

// Digests maps algorithm name to a lowercase hex digest.
type Digests map[string]string

// ValidateAlgorithms normalizes names and rejects unknown ones.
func ValidateAlgorithms(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, err := newHash(name); err != nil {
			return nil, err
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}

func newHash(name string) (hash.Hash, error) {
	switch name {
	case MD5:
		return md5.New(), nil // #nosec
	case SHA1:
		return sha1.New(), nil // #nosec
	case SHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", name)
	}
}

// HashReader streams r through every requested algorithm.
func HashReader(r io.Reader, algorithms []string) (Digests, int64, error) {
	hashers := make(map[string]hash.Hash, len(algorithms))
	writers := make([]io.Writer, 0, len(algorithms))
	for _, name := range algorithms {
		h, err := newHash(name)
		if err != nil {
			return nil, 0, err
		}
		hashers[name] = h
		writers = append(writers, h)
	}
	written, err := io.Copy(io.MultiWriter(writers...), r)
	if err != nil {
		return nil, written, err
	}
	digests := make(Digests, len(hashers))
	for name, h := range hashers {
		digests[name] = hex.EncodeToString(h.Sum(nil))
	}
	return digests, written, nil
}

// HashFile hashes the file at path on fsys.
func HashFile(fsys afero.Fs, path string, algorithms []string) (Digests, int64, error) {
	file, err := fsys.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()
	return HashReader(file, algorithms)
}

// WriteFile streams r into path on fsys, creating parent directories, and
// returns the md5 of what was written. A short copy removes the file.
func WriteFile(fsys afero.Fs, path string, r io.Reader, size int64) (string, error) {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	out, err := fsys.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = out.Close()
	}()

	hasher := md5.New() // #nosec
	written, err := io.Copy(io.MultiWriter(out, hasher), io.LimitReader(r, size))
	if err == nil && written != size {
		err = fmt.Errorf("copy size mismatch: expected %d bytes, copied %d bytes", size, written)
	}
	if err != nil {
		_ = out.Close()
		_ = fsys.Remove(path)
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
