package metrics_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/alpacahq/logappender/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockMetricsSetter struct {
	mu    sync.Mutex
	value float64
}

func (m *mockMetricsSetter) Set(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = v
}

func (m *mockMetricsSetter) Get() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}

type testCase struct {
	setFilesFunc func(t *testing.T, rootDir string)
	expMetric    float64
}

func TestStartDiskUsageMonitor(t *testing.T) {
	t.Parallel()
	tests := map[string]testCase{
		"ok/ segment and index files in nested partition directories are summed": {
			setFilesFunc: func(t *testing.T, rootDir string) {
				partDir := filepath.Join(rootDir, "orders", "0")
				require.Nil(t, os.MkdirAll(partDir, 0o755))
				require.Nil(t, os.WriteFile(filepath.Join(partDir, "0.log"), make([]byte, 300), 0o644))
				require.Nil(t, os.WriteFile(filepath.Join(partDir, "0.index"), make([]byte, 64), 0o644))
			},
			expMetric: 364,
		},
		"ok/ empty root directory": {
			setFilesFunc: func(t *testing.T, rootDir string) {},
			expMetric:    0,
		},
	}
	for name := range tests {
		tt := tests[name]
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			// --- given ---
			rootDir := t.TempDir()
			tt.setFilesFunc(t, rootDir)
			m := &mockMetricsSetter{value: -1}
			ctx, cancel := context.WithCancel(context.Background())

			// --- when ---
			done := make(chan struct{})
			go func() {
				defer close(done)
				metrics.StartDiskUsageMonitor(ctx, m, rootDir, 10*time.Millisecond)
			}()

			// --- then ---
			assert.Eventually(t, func() bool { return m.Get() == tt.expMetric },
				time.Second, 10*time.Millisecond)

			// --- tearDown ---
			cancel()
			<-done
		})
	}
}

func TestDiskUsageMissingDirectory(t *testing.T) {
	assert.Equal(t, int64(0), metrics.DiskUsage(filepath.Join(t.TempDir(), "missing")))
}
