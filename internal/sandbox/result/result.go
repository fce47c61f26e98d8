// Package result defines lifecycle states and execution outcomes.
package result

import appErr "execbox/pkg/errors"

// State is one lifecycle stage of a submission. Transitions are
// one-directional; no state is re-entered for the same submission.
type State string

const (
	StateProvisioned      State = "Provisioned"
	StateCompiling        State = "Compiling"
	StateCompileFailed    State = "CompileFailed"
	StateCompileSucceeded State = "CompileSucceeded"
	StateRunning          State = "Running"
	StateCompleted        State = "Completed"
	StateTimedOut         State = "TimedOut"
	StateLimitExceeded    State = "ResourceLimitExceeded"
	StateCrashed          State = "Crashed"
	StateCollected        State = "Collected"
	StateTornDown         State = "TornDown"
)

// transitions encodes the legal lifecycle graph. Teardown is reachable
// from every outcome state, including CompileFailed.
var transitions = map[State][]State{
	StateProvisioned:      {StateCompiling},
	StateCompiling:        {StateCompileFailed, StateCompileSucceeded},
	StateCompileFailed:    {StateCollected},
	StateCompileSucceeded: {StateRunning},
	StateRunning:          {StateCompleted, StateTimedOut, StateLimitExceeded, StateCrashed},
	StateCompleted:        {StateCollected},
	StateTimedOut:         {StateCollected},
	StateLimitExceeded:    {StateCollected},
	StateCrashed:          {StateCollected},
	StateCollected:        {StateTornDown},
	StateTornDown:         nil,
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates and performs one step.
func Transition(from, to State) (State, error) {
	if !CanTransition(from, to) {
		return from, appErr.Newf(appErr.InternalError, "illegal lifecycle transition %s -> %s", from, to)
	}
	return to, nil
}

// Terminal reports whether no further transition exists.
func Terminal(s State) bool {
	return len(transitions[s]) == 0
}

// OutcomeKind tags how a run ended. Outcomes are values crossing the
// isolation boundary, not signals or exceptions, because the boundary
// may not propagate faults reliably.
type OutcomeKind string

const (
	// OutcomeCompleted means the program ran to completion; the exit
	// code (zero or not) is reported as-is.
	OutcomeCompleted OutcomeKind = "completed"
	// OutcomeTimedOut means the wall-clock budget expired and the
	// process group was forcibly terminated.
	OutcomeTimedOut OutcomeKind = "timed_out"
	// OutcomeLimitExceeded means an OS resource ceiling was hit. It is
	// reported distinctly from a plain non-zero exit so callers can
	// tell a wrong answer from a sandbox violation.
	OutcomeLimitExceeded OutcomeKind = "resource_limit_exceeded"
	// OutcomeCrashed means a fault signal terminated the process
	// without any declared ceiling being exceeded.
	OutcomeCrashed OutcomeKind = "crashed"
)

// ResourceUsage is the per-run accounting collected by the supervisor.
type ResourceUsage struct {
	CPUTimeMs   int64 `json:"cpuTimeMs"`
	WallTimeMs  int64 `json:"wallTimeMs"`
	MaxRSSKB    int64 `json:"maxRssKb"`
	OutputBytes int64 `json:"outputBytes"`
}

// CompileResult is the outcome of one compile invocation. A non-zero
// compiler exit is a submission-level failure, never retried.
type CompileResult struct {
	OK          bool   `json:"ok"`
	ExitCode    int    `json:"exitCode"`
	Diagnostics string `json:"diagnostics,omitempty"`
	BinaryPath  string `json:"binaryPath,omitempty"`
	TimeMs      int64  `json:"timeMs"`
}

// RunResult is the outcome of one execution.
type RunResult struct {
	Outcome  OutcomeKind   `json:"outcome"`
	ExitCode int           `json:"exitCode"`
	Signal   int           `json:"signal,omitempty"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Usage    ResourceUsage `json:"usage"`
}

// SubmissionResult is the collected record for one submission.
type SubmissionResult struct {
	SubmissionID string         `json:"submissionId"`
	State        State          `json:"state"`
	Compile      *CompileResult `json:"compile,omitempty"`
	Run          *RunResult     `json:"run,omitempty"`
	ReceivedAt   int64          `json:"receivedAt"`
	FinishedAt   int64          `json:"finishedAt"`
}
