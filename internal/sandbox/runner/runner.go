package runner

import (
	"context"
	"time"

	"execbox/internal/sandbox/result"
	"execbox/internal/sandbox/workspace"
)

// CompileRequest describes one compilation task. There is no field for
// caller-supplied compiler flags: the hardened profile attached to the
// runner is the only flag source.
type CompileRequest struct {
	SubmissionID string
	Layout       workspace.Layout
	SourcePaths  []string
}

// RunRequest describes one execution task.
type RunRequest struct {
	SubmissionID string
	Layout       workspace.Layout
	BinaryPath   string
	Timeout      time.Duration
}

// Runner orchestrates compile and run workflows inside one instance.
type Runner interface {
	Compile(ctx context.Context, req CompileRequest) (result.CompileResult, error)
	Run(ctx context.Context, req RunRequest) (result.RunResult, error)
}
