//go:build !tinygo

package telemetry

import (
	"sync"
	"time"
)

// Re-export constants for tests (these are defined in telemetry.go for tinygo)
const (
	FlushInterval = 30 * time.Second
	HTTPTimeout   = 10 * time.Second
	MaxRetries    = 2
)

// Log severity levels (OTLP standard)
const (
	SeverityDebug = 5
	SeverityInfo  = 9
	SeverityWarn  = 13
	SeverityError = 17
)

// Pre-allocated body buffer for JSON building (test version)
var BodyBuf [2048]byte

// LogEntry represents a single log record
type LogEntry struct {
	Timestamp int64
	Severity  uint8
	BodyLen   uint8
	Body      [64]byte
}

// MetricPoint represents a single metric data point
type MetricPoint struct {
	Timestamp int64
	Value     int64
	NameLen   uint8
	Name      [32]byte
	IsGauge   bool
}

// Circular queues for telemetry data
var (
	LogQueue    [8]LogEntry
	LogHead     int
	LogCount    int
	MetricQueue [8]MetricPoint
	MetricHead  int
	MetricCount int
)

// Telemetry state
var (
	mu      sync.Mutex
	enabled bool

	// Stats
	SentLogs    int
	SentMetrics int
	SendErrors  int
)

// ResetState resets all telemetry state for testing
func ResetState() {
	mu.Lock()
	defer mu.Unlock()

	LogHead = 0
	LogCount = 0
	MetricHead = 0
	MetricCount = 0

	enabled = true

	SentLogs = 0
	SentMetrics = 0
	SendErrors = 0

	// Clear queues
	for i := range LogQueue {
		LogQueue[i] = LogEntry{}
	}
	for i := range MetricQueue {
		MetricQueue[i] = MetricPoint{}
	}
}

// Log queues a log entry with the given severity and message
func Log(severity uint8, msg string) {
	mu.Lock()
	defer mu.Unlock()

	if !enabled {
		return
	}

	idx := (LogHead + LogCount) % len(LogQueue)
	if LogCount >= len(LogQueue) {
		LogHead = (LogHead + 1) % len(LogQueue)
	} else {
		LogCount++
	}

	entry := &LogQueue[idx]
	entry.Timestamp = time.Now().UnixNano()
	entry.Severity = severity

	msgLen := len(msg)
	if msgLen > len(entry.Body) {
		msgLen = len(entry.Body)
	}
	entry.BodyLen = uint8(msgLen)
	copy(entry.Body[:], msg[:msgLen])
}

// LogDebug logs a debug message
func LogDebug(msg string) {
	Log(SeverityDebug, msg)
}

// LogInfo logs an info message
func LogInfo(msg string) {
	Log(SeverityInfo, msg)
}

// LogWarn logs a warning message
func LogWarn(msg string) {
	Log(SeverityWarn, msg)
}

// LogError logs an error message
func LogError(msg string) {
	Log(SeverityError, msg)
}

// RecordGauge records a point-in-time gauge metric
func RecordGauge(name string, value int64) {
	recordMetric(name, value, true)
}

// RecordCounter records a monotonic counter metric
func RecordCounter(name string, value int64) {
	recordMetric(name, value, false)
}

func recordMetric(name string, value int64, isGauge bool) {
	mu.Lock()
	defer mu.Unlock()

	if !enabled {
		return
	}

	idx := (MetricHead + MetricCount) % len(MetricQueue)
	if MetricCount >= len(MetricQueue) {
		MetricHead = (MetricHead + 1) % len(MetricQueue)
	} else {
		MetricCount++
	}

	point := &MetricQueue[idx]
	point.Timestamp = time.Now().UnixNano()
	point.Value = value
	point.IsGauge = isGauge

	nameLen := len(name)
	if nameLen > len(point.Name) {
		nameLen = len(point.Name)
	}
	point.NameLen = uint8(nameLen)
	copy(point.Name[:], name[:nameLen])
}

// GetLogQueue returns the current log queue for testing
func GetLogQueue() []LogEntry {
	mu.Lock()
	defer mu.Unlock()

	result := make([]LogEntry, LogCount)
	for i := 0; i < LogCount; i++ {
		idx := (LogHead + i) % len(LogQueue)
		result[i] = LogQueue[idx]
	}
	return result
}

// GetMetricQueue returns the current metric queue for testing
func GetMetricQueue() []MetricPoint {
	mu.Lock()
	defer mu.Unlock()

	result := make([]MetricPoint, MetricCount)
	for i := 0; i < MetricCount; i++ {
		idx := (MetricHead + i) % len(MetricQueue)
		result[i] = MetricQueue[idx]
	}
	return result
}

// Enable enables telemetry
func Enable() {
	mu.Lock()
	enabled = true
	mu.Unlock()
}

// Disable disables telemetry
func Disable() {
	mu.Lock()
	enabled = false
	mu.Unlock()
}
