// Package checksum maps registry hash names onto concrete digest
// implementations and provides the digest helpers used for verification.
package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"

	md2 "github.com/htruong/go-md2"
	"github.com/tanq16/melo/internal/iana"
)

var ErrUnsupportedAlgorithm = errors.New("unsupported digest algorithm")

// New returns a fresh digest for the named algorithm. The SHAKE entries
// are valid registry names but have no fixed-length digest, so they are
// rejected here.
func New(alg iana.HashName) (hash.Hash, error) {
	switch alg {
	case iana.HashMD2:
		return md2.New(), nil
	case iana.HashMD5:
		return md5.New(), nil
	case iana.HashSHA1:
		return sha1.New(), nil
	case iana.HashSHA224:
		return sha256.New224(), nil
	case iana.HashSHA256:
		return sha256.New(), nil
	case iana.HashSHA384:
		return sha512.New384(), nil
	case iana.HashSHA512:
		return sha512.New(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
}

// Sum returns the lowercase hex digest of data.
func Sum(alg iana.HashName, data []byte) (string, error) {
	h, err := New(alg)
	if err != nil {
		return "", err
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SumReader streams r through the digest until EOF.
func SumReader(alg iana.HashName, r io.Reader) (string, error) {
	h, err := New(alg)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SumFile digests the file at path without reading it into memory.
func SumFile(alg iana.HashName, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return SumReader(alg, f)
}
