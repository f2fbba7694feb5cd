package planner

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tanq16/melo/internal/checksum"
	"github.com/tanq16/melo/internal/iana"
	"github.com/tanq16/melo/internal/metalink"
)

// Digest pairs a registry algorithm with an expected lowercase hex value.
type Digest struct {
	Algorithm iana.HashName `yaml:"algorithm"`
	Value     string        `yaml:"value"`
}

// Matches reports whether data digests to the expected value.
func (d Digest) Matches(data []byte) (bool, error) {
	sum, err := checksum.Sum(d.Algorithm, data)
	if err != nil {
		return false, err
	}
	return sum == d.Value, nil
}

// MatchesFile digests the file at path and compares. Any error, including
// an algorithm without digest support, counts as a failed match.
func (d Digest) MatchesFile(path string) bool {
	sum, err := checksum.SumFile(d.Algorithm, path)
	if err != nil {
		return false
	}
	return sum == d.Value
}

// Chunk is a byte range of its target file, inclusive on both ends.
type Chunk struct {
	Start    int64   `yaml:"start"`
	End      int64   `yaml:"end"`
	Checksum *Digest `yaml:"checksum,omitempty"`
	Path     string  `yaml:"path"`
}

func (c Chunk) Size() int64 {
	return c.End - c.Start + 1
}

// validOnDisk re-digests the chunk's range of f. Chunks without a digest
// can never be proven valid. A range past the end of the file is invalid.
func (c Chunk) validOnDisk(f *os.File) (bool, error) {
	if c.Checksum == nil {
		return false, nil
	}
	buf := make([]byte, c.Size())
	if _, err := f.ReadAt(buf, c.Start); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}
	return c.Checksum.Matches(buf)
}

// CalculateRanges splits totalSize bytes into blockSize sized chunks, the
// last chunk carrying the remainder.
func CalculateRanges(totalSize, blockSize int64) []Chunk {
	if totalSize <= 0 || blockSize <= 0 {
		return nil
	}
	var ranges []Chunk
	remaining := totalSize
	var pos int64
	for remaining > blockSize {
		ranges = append(ranges, Chunk{Start: pos, End: pos + blockSize - 1})
		pos += blockSize
		remaining -= blockSize
	}
	ranges = append(ranges, Chunk{Start: pos, End: pos + remaining - 1})
	return ranges
}

// chunksFromPieces computes the chunk layout for a file and zips the piece
// digests and the target path onto it in order.
func chunksFromPieces(pieces *metalink.Pieces, totalSize int64, target string) ([]Chunk, error) {
	ranges := CalculateRanges(totalSize, pieces.Length)
	if len(ranges) != len(pieces.Hashes) {
		return nil, fmt.Errorf("mismatch between chunk count(%d) and pieces count(%d)", len(ranges), len(pieces.Hashes))
	}
	for i := range ranges {
		ranges[i].Checksum = &Digest{Algorithm: pieces.Type, Value: pieces.Hashes[i]}
		ranges[i].Path = target
	}
	return ranges, nil
}
