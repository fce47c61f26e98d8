package engine

import "execbox/internal/sandbox/spec"

// initRequest is the wire format handed to the init helper on stdin.
type initRequest struct {
	RunSpec       spec.RunSpec `json:"runSpec"`
	EnableSeccomp bool         `json:"enableSeccomp"`
}
