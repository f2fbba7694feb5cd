package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tanq16/melo/internal/output"
	"github.com/tanq16/melo/internal/planner"
	"github.com/tanq16/melo/internal/utils"
)

// Options carries the knobs shared by every download operation.
type Options struct {
	Client           *utils.MeloHTTPClient
	MaxThreads       int // chunk workers per file
	MaxParallelFiles int
	VerifyChunks     bool
	Display          *output.Manager
}

func (o *Options) display() *output.Manager {
	if o.Display == nil {
		o.Display = output.NewManager(0)
	}
	return o.Display
}

// Run executes a minimized plan: every file downloads under a bounded
// amount of cross-file parallelism, and the first unrecoverable error
// cancels the rest of the run.
func Run(ctx context.Context, plan *planner.Plan, targetDir string, opts Options) error {
	if len(plan.Files) == 0 {
		log.Debug().Str("op", "engine/orchestrator").Msg("plan is empty, everything already on disk")
		return nil
	}
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return fmt.Errorf("error creating target directory: %w", err)
	}
	if err := utils.CheckDiskSpace(targetDir, plan.TotalSize); err != nil {
		return err
	}
	runID := uuid.NewString()[:8]
	log.Debug().Str("op", "engine/orchestrator").Str("run", runID).Msgf("downloading %d files (%s)", len(plan.Files), utils.FormatBytes(uint64(plan.TotalSize)))

	display := opts.display()
	parallel := max(1, opts.MaxParallelFiles)
	sem := semaphore.NewWeighted(int64(parallel))
	g, ctx := errgroup.WithContext(ctx)
	for i := range plan.Files {
		f := plan.Files[i]
		id := display.Register(f.Name, f.DownloadSize())
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			display.SetStatus(id, "downloading")
			if err := downloadOne(ctx, f, opts, id); err != nil {
				display.ReportError(id, err)
				return fmt.Errorf("%s: %w", f.Name, err)
			}
			display.Complete(id, "downloaded")
			return nil
		})
	}
	return g.Wait()
}

// downloadOne runs a single file of the plan: chunked files go through
// the pool and writer, chunkless files stream in one request.
func downloadOne(ctx context.Context, f planner.FilePlan, opts Options, id int) error {
	progress := func(n int64) { opts.Display.Progress(id, n) }
	if len(f.Chunks) > 0 {
		var total int64
		if f.Size != nil {
			total = *f.Size
		}
		writer, err := NewFileWriter(f.Target, total, progress)
		if err != nil {
			return err
		}
		err = downloadChunks(ctx, opts.Client, f.URL, f.Chunks, opts.MaxThreads, opts.VerifyChunks, writer)
		if cerr := writer.Close(); err == nil {
			err = cerr
		}
		return err
	}
	return simpleDownload(ctx, opts.Client, f.URL, f.Target, progress)
}

// FetchFile downloads a single ad hoc URL without a manifest. HTTPS
// sources get ranged in 1 MiB blocks when big enough; s3:// sources go
// through the transfer manager.
func FetchFile(ctx context.Context, rawURL, targetDir string, opts Options) error {
	display := opts.display()
	if strings.HasPrefix(rawURL, "s3://") {
		return fetchS3File(ctx, rawURL, targetDir, opts, display)
	}

	name, err := utils.FileNameFromURL(rawURL)
	if err != nil {
		return err
	}
	target := filepath.Join(targetDir, name)
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return fmt.Errorf("error creating target directory: %w", err)
	}

	size, ok, err := opts.Client.FileSize(ctx, rawURL)
	if err != nil || !ok || size <= utils.DefaultBlockSize {
		if err != nil {
			log.Debug().Str("op", "engine/orchestrator").Err(err).Msgf("size probe failed for %s, using simple download", rawURL)
		}
		id := display.Register(name, max(size, 0))
		display.SetStatus(id, "downloading")
		if err := simpleDownload(ctx, opts.Client, rawURL, target, func(n int64) { display.Progress(id, n) }); err != nil {
			display.ReportError(id, err)
			return err
		}
		display.Complete(id, "downloaded")
		return nil
	}

	log.Debug().Str("op", "engine/orchestrator").Msgf("downloading %s (%s) in %d byte blocks", rawURL, utils.FormatBytes(uint64(size)), utils.DefaultBlockSize)
	id := display.Register(name, size)
	display.SetStatus(id, "downloading")
	writer, err := NewFileWriter(target, size, func(n int64) { display.Progress(id, n) })
	if err != nil {
		display.ReportError(id, err)
		return err
	}
	chunks := planner.CalculateRanges(size, utils.DefaultBlockSize)
	for i := range chunks {
		chunks[i].Path = target
	}
	err = downloadChunks(ctx, opts.Client, rawURL, chunks, opts.MaxThreads, false, writer)
	if cerr := writer.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		display.ReportError(id, err)
		return err
	}
	display.Complete(id, "downloaded")
	return nil
}

func fetchS3File(ctx context.Context, rawURL, targetDir string, opts Options, display *output.Manager) error {
	name, err := s3FileName(rawURL)
	if err != nil {
		return err
	}
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return err
	}
	client, err := getS3Client(ctx)
	if err != nil {
		return err
	}
	size, err := s3ObjectSize(ctx, client, bucket, key)
	if err != nil {
		return err
	}
	target := filepath.Join(targetDir, name)
	id := display.Register(name, size)
	display.SetStatus(id, "downloading")
	if err := performS3Download(ctx, client, bucket, key, target, func(n int64) { display.Progress(id, n) }); err != nil {
		display.ReportError(id, err)
		return err
	}
	display.Complete(id, "downloaded")
	return nil
}
