package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/tanq16/melo/internal/utils"
)

// simpleDownload streams the whole response body into the target. Used
// for chunkless files and for anything too small to be worth ranging.
func simpleDownload(ctx context.Context, client *utils.MeloHTTPClient, url, target string, progress func(int64)) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("error creating directory for %s: %w", target, err)
	}
	body, size, err := client.Get(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()
	log.Debug().Str("op", "engine/simple-downloader").Msgf("streaming %s (%d bytes) to %s", url, size, target)

	tempPath := target + ".part"
	out, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("error creating output file: %w", err)
	}

	buffer := make([]byte, utils.DefaultBufferSize)
	var written int64
	for {
		n, readErr := body.Read(buffer)
		if n > 0 {
			if _, writeErr := out.Write(buffer[:n]); writeErr != nil {
				out.Close()
				os.Remove(tempPath)
				return fmt.Errorf("error writing to output file: %w", writeErr)
			}
			written += int64(n)
			if progress != nil {
				progress(int64(n))
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			out.Close()
			os.Remove(tempPath)
			return fmt.Errorf("error reading response body: %w", readErr)
		}
	}
	if size > 0 && written != size {
		out.Close()
		os.Remove(tempPath)
		return fmt.Errorf("size mismatch for %s: expected %d bytes, got %d", url, size, written)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("error syncing output file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("error closing output file: %w", err)
	}
	if err := os.Rename(tempPath, target); err != nil {
		return fmt.Errorf("error finalizing output file: %w", err)
	}
	return nil
}
