// Package engine executes download plans: a worker pool fetches byte
// ranges, a single writer goroutine owns each target file, and an
// orchestrator runs files in parallel with bounded concurrency.
package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

type writeOp struct {
	offset int64
	data   []byte
}

// FileWriter serializes all writes to one target file. Chunk workers
// enqueue ranges in any order; nothing else touches the file.
type FileWriter struct {
	path     string
	file     *os.File
	ops      chan writeOp
	done     chan error
	progress func(int64)
}

// NewFileWriter opens (or creates) the target file and extends it to
// totalSize so ranges can land at their final offsets. Existing bytes
// inside the file are preserved, which is what resume relies on.
func NewFileWriter(path string, totalSize int64, progress func(int64)) (*FileWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("error creating directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("error opening %s: %w", path, err)
	}
	if totalSize > 0 {
		if err := f.Truncate(totalSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("error sizing %s to %d bytes: %w", path, totalSize, err)
		}
	}
	w := &FileWriter{
		path:     path,
		file:     f,
		ops:      make(chan writeOp, 16),
		done:     make(chan error, 1),
		progress: progress,
	}
	go w.run()
	return w, nil
}

func (w *FileWriter) run() {
	var firstErr error
	for op := range w.ops {
		if firstErr != nil {
			continue // drain so senders never block
		}
		if _, err := w.file.WriteAt(op.data, op.offset); err != nil {
			firstErr = fmt.Errorf("error writing %d bytes at offset %d of %s: %w", len(op.data), op.offset, w.path, err)
			continue
		}
		if w.progress != nil {
			w.progress(int64(len(op.data)))
		}
	}
	if err := w.file.Sync(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("error syncing %s: %w", w.path, err)
	}
	if err := w.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("error closing %s: %w", w.path, err)
	}
	w.done <- firstErr
}

// Write hands a completed range to the writer goroutine.
func (w *FileWriter) Write(offset int64, data []byte) {
	w.ops <- writeOp{offset: offset, data: data}
}

// Close signals that no more ranges are coming, waits for the writer
// goroutine to flush, and returns the first write error if any.
func (w *FileWriter) Close() error {
	close(w.ops)
	err := <-w.done
	if err == nil {
		log.Debug().Str("op", "engine/file-writer").Msgf("finished writing %s", w.path)
	}
	return err
}
