package utils

import (
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/disk"
)

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

// FileNameFromURL derives the target file name from the last path
// segment of a download url.
func FileNameFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("%w: %s", ErrNoFileNameInURL, rawURL)
	}
	return name, nil
}

func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func FormatSpeed(bytes int64, elapsed float64) string {
	if elapsed == 0 {
		return "0 B/s"
	}
	bps := float64(bytes) / elapsed
	formatted := FormatBytes(uint64(bps))
	return formatted[:len(formatted)-1] + "B/s" // Slice off "B" and add "B/s"
}

// CheckDiskSpace verifies the filesystem holding dir has room for the
// planned download. A failed probe is logged and ignored.
func CheckDiskSpace(dir string, required int64) error {
	if required <= 0 {
		return nil
	}
	usage, err := disk.Usage(dir)
	if err != nil {
		log.Debug().Str("op", "utils/disk").Msgf("could not probe free space for %s: %v", dir, err)
		return nil
	}
	if usage.Free < uint64(required) {
		return fmt.Errorf("insufficient disk space in %s: need %s, have %s", dir, FormatBytes(uint64(required)), FormatBytes(usage.Free))
	}
	return nil
}
