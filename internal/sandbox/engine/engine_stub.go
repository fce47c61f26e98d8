//go:build !linux

package engine

import (
	"context"
	"fmt"

	"execbox/internal/sandbox/spec"
)

type stubEngine struct{}

// NewEngine returns a stub on platforms without sandbox support.
func NewEngine(cfg Config) (Engine, error) {
	return stubEngine{}, nil
}

func (stubEngine) Run(ctx context.Context, runSpec spec.RunSpec) (RawResult, error) {
	return RawResult{}, fmt.Errorf("sandbox engine is only supported on linux")
}
