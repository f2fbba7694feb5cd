package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tanq16/melo/internal/planner"
	"github.com/tanq16/melo/internal/utils"
)

const chunkAttempts = 3

// poolSize keeps one thread back for the writer and never runs more
// workers than there are chunks.
func poolSize(maxThreads, chunkCount int) int {
	return max(1, min(maxThreads-1, chunkCount))
}

// downloadChunks fans the file's ranges out over a small worker pool
// and funnels every completed range into the writer. The first chunk
// that fails for good cancels the remaining workers.
func downloadChunks(ctx context.Context, client *utils.MeloHTTPClient, url string, chunks []planner.Chunk, maxThreads int, verify bool, writer *FileWriter) error {
	if len(chunks) == 0 {
		return nil
	}
	workers := poolSize(maxThreads, len(chunks))
	log.Debug().Str("op", "engine/worker-pool").Msgf("downloading %d chunks of %s with %d workers", len(chunks), url, workers)

	jobs := make(chan planner.Chunk, workers)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for _, c := range chunks {
			select {
			case jobs <- c:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for c := range jobs {
				if err := fetchChunk(ctx, client, url, c, verify, writer); err != nil {
					return err
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// fetchChunk pulls one byte range. Ranges carrying a digest get up to
// chunkAttempts fetch+verify rounds when verification is on; everything
// else is written after the first successful fetch.
func fetchChunk(ctx context.Context, client *utils.MeloHTTPClient, url string, chunk planner.Chunk, verify bool, writer *FileWriter) error {
	if verify && chunk.Checksum != nil {
		var lastErr error
		for attempt := 1; attempt <= chunkAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := client.GetRange(ctx, url, chunk.Start, chunk.End)
			if err != nil {
				lastErr = err
				continue
			}
			ok, err := chunk.Checksum.Matches(data)
			if err != nil {
				return fmt.Errorf("bytes %d-%d of %s: %w", chunk.Start, chunk.End, chunk.Path, err)
			}
			if !ok {
				lastErr = fmt.Errorf("%s digest mismatch", chunk.Checksum.Algorithm)
				log.Debug().Str("op", "engine/worker-pool").Msgf("attempt %d/%d for bytes %d-%d of %s failed verification", attempt, chunkAttempts, chunk.Start, chunk.End, chunk.Path)
				continue
			}
			writer.Write(chunk.Start, data)
			return nil
		}
		return fmt.Errorf("unable to download bytes %d-%d of %s from %s after %d attempts: %w", chunk.Start, chunk.End, chunk.Path, url, chunkAttempts, lastErr)
	}
	data, err := client.GetRange(ctx, url, chunk.Start, chunk.End)
	if err != nil {
		return fmt.Errorf("unable to download bytes %d-%d of %s from %s: %w", chunk.Start, chunk.End, chunk.Path, url, err)
	}
	writer.Write(chunk.Start, data)
	return nil
}
