// Package engine starts sandboxed processes through the init helper
// and reports raw execution data back to the runner.
package engine

import (
	"context"

	"execbox/internal/sandbox/spec"
)

// RawResult is the unclassified record of one sandboxed process.
type RawResult struct {
	ExitCode    int
	Signal      int
	TimedOut    bool
	CPUTimeMs   int64
	WallTimeMs  int64
	MaxRSSKB    int64
	OutputBytes int64
	Stdout      string
	Stderr      string
}

// Engine runs one specification to completion or forced termination.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (RawResult, error)
}

// Config controls engine behavior.
type Config struct {
	// HelperPath locates the init helper binary that applies limits,
	// drops the identity and execs the target.
	HelperPath string `yaml:"helperPath"`
	// StdoutStderrMaxBytes caps how much captured output is read back.
	StdoutStderrMaxBytes int64 `yaml:"stdoutStderrMaxBytes"`
	SeccompDir           string `yaml:"seccompDir"`
	EnableSeccomp        bool   `yaml:"enableSeccomp"`
}
