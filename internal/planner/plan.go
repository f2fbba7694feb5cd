// Package planner turns a parsed manifest into a download plan and
// shrinks plans down to the work that is still missing on disk.
package planner

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/melo/internal/metalink"
)

var (
	ErrSizeRequiredForPieces = errors.New("file size is required when having pieces")
	ErrNoURLs                = errors.New("file urls should not be empty")
	ErrNotURLBased           = errors.New("non-url based file definitions are not supported")
)

type Plan struct {
	TotalSize int64      `yaml:"totalSize"`
	Files     []FilePlan `yaml:"files,omitempty"`
}

type FilePlan struct {
	Name     string  `yaml:"name"`
	Target   string  `yaml:"target"`
	URL      string  `yaml:"url"`
	Size     *int64  `yaml:"size,omitempty"`
	Checksum *Digest `yaml:"checksum,omitempty"`
	Chunks   []Chunk `yaml:"chunks,omitempty"`
}

// Load reads the manifest at path and builds the full download plan
// rooted at targetDir.
func Load(path, targetDir string) (*Plan, error) {
	m, err := metalink.Load(path)
	if err != nil {
		return nil, err
	}
	return Build(m, targetDir)
}

// Build maps every manifest file onto a FilePlan. TotalSize counts the
// declared sizes; files without one contribute nothing.
func Build(m *metalink.Metalink, targetDir string) (*Plan, error) {
	p := &Plan{}
	for i := range m.Files {
		fp, err := newFilePlan(&m.Files[i], targetDir)
		if err != nil {
			return nil, err
		}
		p.Files = append(p.Files, fp)
		if fp.Size != nil {
			p.TotalSize += *fp.Size
		}
	}
	return p, nil
}

func newFilePlan(f *metalink.File, targetDir string) (FilePlan, error) {
	fp := FilePlan{
		Name:   f.Name,
		Target: filepath.Join(targetDir, filepath.FromSlash(f.Name)),
		Size:   f.Size,
	}
	if f.Pieces != nil {
		if f.Size == nil {
			return FilePlan{}, fmt.Errorf("file %q: %w", f.Name, ErrSizeRequiredForPieces)
		}
		chunks, err := chunksFromPieces(f.Pieces, *f.Size, fp.Target)
		if err != nil {
			return FilePlan{}, fmt.Errorf("file %q: %w", f.Name, err)
		}
		fp.Chunks = chunks
	}
	fp.Checksum = strongestHash(f)
	switch {
	case len(f.URLs) > 0:
		raw := f.URLs[0].URL
		if _, err := url.Parse(raw); err != nil {
			return FilePlan{}, fmt.Errorf("file %q: %w", f.Name, err)
		}
		fp.URL = raw
	case len(f.MetaURLs) > 0:
		return FilePlan{}, fmt.Errorf("file %q: %w", f.Name, ErrNotURLBased)
	default:
		return FilePlan{}, fmt.Errorf("file %q: %w", f.Name, ErrNoURLs)
	}
	return fp, nil
}

// strongestHash picks the whole-file digest with the highest ranked
// algorithm. Hashes without a declared type are ignored.
func strongestHash(f *metalink.File) *Digest {
	var best *Digest
	for _, h := range f.Hashes {
		alg, ok := h.Typed()
		if !ok {
			continue
		}
		if best == nil || !best.Algorithm.StrongerThan(alg) {
			best = &Digest{Algorithm: alg, Value: h.Value}
		}
	}
	return best
}

// DownloadSize reports how many bytes a run will fetch for this file:
// the sum of its chunk sizes, or the declared size when chunkless.
func (f *FilePlan) DownloadSize() int64 {
	if len(f.Chunks) > 0 {
		var total int64
		for _, c := range f.Chunks {
			total += c.Size()
		}
		return total
	}
	if f.Size != nil {
		return *f.Size
	}
	return 0
}

// Minimize drops every file and chunk that already checks out on disk,
// leaving only the work a download run still has to do.
func (p *Plan) Minimize() (*Plan, error) {
	min := &Plan{}
	for _, f := range p.Files {
		kept, err := minimizeFile(f)
		if err != nil {
			return nil, err
		}
		if kept != nil {
			min.Files = append(min.Files, *kept)
		}
	}
	for i := range min.Files {
		min.TotalSize += min.Files[i].DownloadSize()
	}
	return min, nil
}

func minimizeFile(f FilePlan) (*FilePlan, error) {
	if _, err := os.Stat(f.Target); err != nil {
		return &f, nil
	}
	if len(f.Chunks) > 0 {
		disk, err := os.Open(f.Target)
		if err != nil {
			return nil, err
		}
		defer disk.Close()
		var missing []Chunk
		for _, c := range f.Chunks {
			ok, err := c.validOnDisk(disk)
			if err != nil {
				return nil, err
			}
			if !ok {
				missing = append(missing, c)
			}
		}
		if len(missing) == 0 {
			log.Debug().Str("op", "planner/minimize").Msgf("all %d chunks of %s valid on disk, skipping", len(f.Chunks), f.Name)
			return nil, nil
		}
		log.Debug().Str("op", "planner/minimize").Msgf("resuming %s with %d of %d chunks", f.Name, len(missing), len(f.Chunks))
		f.Chunks = missing
		return &f, nil
	}
	if f.Checksum != nil {
		if f.Checksum.MatchesFile(f.Target) {
			log.Debug().Str("op", "planner/minimize").Msgf("checksum of %s valid on disk, skipping", f.Name)
			return nil, nil
		}
		return &f, nil
	}
	// Nothing to validate against, assume the copy on disk is broken
	// and fetch it again.
	return &f, nil
}
