package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/tanq16/melo/internal/utils"
)

func parseS3URL(rawURL string) (string, string, error) {
	trimmed := strings.TrimPrefix(rawURL, "s3://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid S3 URL %q: expected s3://bucket/key", rawURL)
	}
	return parts[0], parts[1], nil
}

// s3ProgressWriter forwards byte counts to the progress callback as the
// transfer manager lands parts.
type s3ProgressWriter struct {
	writer   io.WriterAt
	progress func(int64)
}

func (pw *s3ProgressWriter) WriteAt(p []byte, off int64) (int, error) {
	n, err := pw.writer.WriteAt(p, off)
	if n > 0 && pw.progress != nil {
		pw.progress(int64(n))
	}
	return n, err
}

func getS3Client(ctx context.Context) (*s3.Client, error) {
	profile := os.Getenv("AWS_PROFILE")
	if profile == "" {
		profile = "default"
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithSharedConfigProfile(profile), config.WithRetryMode("adaptive"))
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	s3Options := func(o *s3.Options) {
		// Disable checksum validation warning
		o.DisableLogOutputChecksumValidationSkipped = true
	}
	return s3.NewFromConfig(cfg, s3Options), nil
}

// s3ObjectSize probes the object with a HEAD request.
func s3ObjectSize(ctx context.Context, client *s3.Client, bucket, key string) (int64, error) {
	headObj, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("error reading object info for s3://%s/%s: %w", bucket, key, err)
	}
	if headObj.ContentLength == nil {
		return 0, fmt.Errorf("object size is nil for s3://%s/%s", bucket, key)
	}
	return *headObj.ContentLength, nil
}

// performS3Download fetches one object into target using the SDK
// transfer manager for concurrent ranged parts.
func performS3Download(ctx context.Context, client *s3.Client, bucket, key, target string, progress func(int64)) error {
	log.Debug().Str("op", "engine/s3").Msgf("downloading s3://%s/%s to %s", bucket, key, target)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("error creating directory for %s: %w", target, err)
	}
	file, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("error creating output file: %w", err)
	}
	defer file.Close()

	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		d.PartSize = 2 * utils.DefaultBufferSize
		d.Concurrency = 4
		d.BufferProvider = manager.NewPooledBufferedWriterReadFromProvider(int(utils.DefaultBufferSize))
	})
	progressWriter := &s3ProgressWriter{writer: file, progress: progress}
	if _, err := downloader.Download(ctx, progressWriter, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("error downloading s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// s3FileName extracts the object's base name for use as the local file
// name.
func s3FileName(url string) (string, error) {
	_, key, err := parseS3URL(url)
	if err != nil {
		return "", err
	}
	name := path.Base(key)
	if name == "." || name == "/" || name == "" {
		return "", utils.ErrNoFileNameInURL
	}
	return name, nil
}
