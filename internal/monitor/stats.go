// Package monitor samples process and system memory, classifies pressure,
// triggers cleanup when thresholds are crossed, and tracks long-lived
// allocations for leak detection.
package monitor

import "time"

// Level is the discretized severity of memory usage.
type Level int

// Pressure levels, ascending.
const (
	LevelNormal Level = iota
	LevelWarning
	LevelCritical
	LevelEmergency
)

// String returns the lowercase level name.
func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	default:
		return "normal"
	}
}

// Thresholds are the used/total ratios at which each non-normal level
// begins. They must ascend: Warning < Critical < Emergency.
type Thresholds struct {
	Warning   float64
	Critical  float64
	Emergency float64
}

// Classify returns the pressure level for the given usage. The result is
// monotonic in used/total: a higher ratio never yields a lower level.
func Classify(used, total uint64, t Thresholds) Level {
	if total == 0 {
		return LevelNormal
	}
	ratio := float64(used) / float64(total)
	switch {
	case ratio >= t.Emergency:
		return LevelEmergency
	case ratio >= t.Critical:
		return LevelCritical
	case ratio >= t.Warning:
		return LevelWarning
	default:
		return LevelNormal
	}
}

// Statistics is an immutable snapshot of memory use at one sample point.
type Statistics struct {
	TotalBytes uint64    `json:"total_bytes"`
	UsedBytes  uint64    `json:"used_bytes"`
	FreeBytes  uint64    `json:"free_bytes"`
	AppBytes   uint64    `json:"app_bytes"`
	Level      Level     `json:"-"`
	Timestamp  time.Time `json:"timestamp"`
}
