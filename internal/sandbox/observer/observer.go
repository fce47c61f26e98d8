// Package observer defines metrics hooks for sandbox execution.
package observer

import (
	"context"

	"execbox/internal/sandbox/result"
)

// MetricsRecorder records compile and run observations.
type MetricsRecorder interface {
	ObserveCompile(ctx context.Context, ok bool, timeMs int64)
	ObserveRun(ctx context.Context, outcome result.OutcomeKind, cpuTimeMs int64, maxRSSKB int64)
}

// NoopMetricsRecorder is a default recorder that does nothing.
type NoopMetricsRecorder struct{}

func (NoopMetricsRecorder) ObserveCompile(ctx context.Context, ok bool, timeMs int64) {}

func (NoopMetricsRecorder) ObserveRun(ctx context.Context, outcome result.OutcomeKind, cpuTimeMs int64, maxRSSKB int64) {
}
