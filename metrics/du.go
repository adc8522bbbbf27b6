package metrics

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/alpacahq/logappender/utils/log"
)

// Setter is an interface for prometheus metrics to improve unit-testability.
type Setter interface {
	Set(m float64)
}

// StartDiskUsageMonitor retrieves the total size of the files under rootDir at each interval
// and sets it on s, until ctx is done.
func StartDiskUsageMonitor(ctx context.Context, s Setter, rootDir string, interval time.Duration) {
	s.Set(float64(DiskUsage(rootDir)))

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Set(float64(DiskUsage(rootDir)))
		}
	}
}

// DiskUsage is the sum of the sizes of all regular files under path.
func DiskUsage(path string) int64 {
	var totalSize int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		log.Error("get the disk usage of the directory %s for monitoring: %v", path, err)
	}
	return totalSize
}
