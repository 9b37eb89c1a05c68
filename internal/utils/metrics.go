package utils

import (
	"sync"
	"time"
)

// Tracks performance metrics across the system
type MetricsCollector struct {
	mu           sync.RWMutex
	requestCount uint64
	errorCount   uint64

	// Maps operation name to list of latencies in nanoseconds
	operationTimes map[string][]int64

	systemStartTime time.Time
}

// OperationStats summarises the recorded latencies of one operation.
type OperationStats struct {
	Count int           `json:"count"`
	Avg   time.Duration `json:"avgNs"`
	Max   time.Duration `json:"maxNs"`
}

// Snapshot is a point-in-time copy of the collected metrics.
type Snapshot struct {
	Uptime     time.Duration             `json:"uptimeNs"`
	Requests   uint64                    `json:"requests"`
	Errors     uint64                    `json:"errors"`
	Operations map[string]OperationStats `json:"operations"`
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		operationTimes:  make(map[string][]int64),
		systemStartTime: time.Now(),
	}
}

func (mc *MetricsCollector) IncrementRequests() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.requestCount++
}

func (mc *MetricsCollector) IncrementErrors() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.errorCount++
}

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.operationTimes[operationName] = append(
		mc.operationTimes[operationName],
		duration.Nanoseconds(),
	)
}

// Track records the latency of an operation started at start, and counts it
// as an error when err is set. Meant to be deferred.
func (mc *MetricsCollector) Track(operationName string, start time.Time, err *error) {
	mc.AddOperationLatency(operationName, time.Since(start))
	if err != nil && *err != nil {
		mc.IncrementErrors()
	}
}

// Snapshot copies the current counters and per-operation statistics.
func (mc *MetricsCollector) Snapshot() Snapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	ops := make(map[string]OperationStats, len(mc.operationTimes))
	for name, times := range mc.operationTimes {
		if len(times) == 0 {
			continue
		}
		var total, slowest int64
		for _, t := range times {
			total += t
			if t > slowest {
				slowest = t
			}
		}
		ops[name] = OperationStats{
			Count: len(times),
			Avg:   time.Duration(total / int64(len(times))),
			Max:   time.Duration(slowest),
		}
	}

	return Snapshot{
		Uptime:     time.Since(mc.systemStartTime),
		Requests:   mc.requestCount,
		Errors:     mc.errorCount,
		Operations: ops,
	}
}
