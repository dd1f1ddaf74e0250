package async

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/anvil/errors"
)

// bytesPerCacheEntry approximates one memoized translation (key, allele JSON
// and LRU bookkeeping)
const bytesPerCacheEntry = 1024

// SystemMetrics tracks resource usage for worker pool monitoring
type SystemMetrics struct {
	WorkersActive  int     `json:"workers_active" yaml:"workers_active"`
	WorkersTotal   int     `json:"workers_total" yaml:"workers_total"`
	InFlight       int64   `json:"in_flight" yaml:"in_flight"`
	PendingResults int     `json:"pending_results" yaml:"pending_results"`
	MemoryUsedGB   float64 `json:"memory_used_gb" yaml:"memory_used_gb"`
	MemoryTotalGB  float64 `json:"memory_total_gb" yaml:"memory_total_gb"`
	MemoryPercent  float64 `json:"memory_percent" yaml:"memory_percent"`
}

var getMemoryStats = func() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}

// calculateSafeWorkerCount recommends a worker count given available memory
// and the per-worker cache size
func calculateSafeWorkerCount(availableGB float64, entriesPerWorker int) int {
	const memoryBuffer = 1.0 // GB reserved for the process itself and the OS

	perWorkerGB := float64(entriesPerWorker) * bytesPerCacheEntry / 1024 / 1024 / 1024
	if availableGB < memoryBuffer || perWorkerGB <= 0 {
		return 1
	}

	recommended := int((availableGB - memoryBuffer) / perWorkerGB)
	if recommended < 1 {
		return 1
	}
	return recommended
}

// GetSystemMetrics returns current pool and system memory usage
func (wp *WorkerPool) GetSystemMetrics() SystemMetrics {
	total, available, err := getMemoryStats()

	var memUsedGB, memTotalGB, memPercent float64
	if err == nil && total > 0 {
		memTotalGB = float64(total) / 1024 / 1024 / 1024
		memUsedGB = float64(total-available) / 1024 / 1024 / 1024
		memPercent = (memUsedGB / memTotalGB) * 100
	}

	return SystemMetrics{
		WorkersActive:  wp.ActiveWorkers(),
		WorkersTotal:   wp.Size(),
		InFlight:       wp.InFlight(),
		PendingResults: wp.PendingResults(),
		MemoryUsedGB:   memUsedGB,
		MemoryTotalGB:  memTotalGB,
		MemoryPercent:  memPercent,
	}
}

// checkMemoryPressure validates the worker count against available memory.
// Returns a warning message if the per-worker caches may not fit, empty
// string if OK or unknown.
func (wp *WorkerPool) checkMemoryPressure(entriesPerWorker int) string {
	total, available, err := getMemoryStats()
	if err != nil {
		return ""
	}

	availableGB := float64(available) / 1024 / 1024 / 1024
	totalGB := float64(total) / 1024 / 1024 / 1024
	recommended := calculateSafeWorkerCount(availableGB, entriesPerWorker)

	if wp.Size() > recommended {
		return fmt.Sprintf(
			"Worker count (%d) exceeds recommended (%d) for available memory (%.1f/%.1fGB) "+
				"with %d cached translations per worker. Consider lowering num_threads or memory_cache_entries.",
			wp.Size(), recommended, totalGB-availableGB, totalGB, entriesPerWorker)
	}
	return ""
}
