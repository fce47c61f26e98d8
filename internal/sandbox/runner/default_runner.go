package runner

import (
	"context"
	"strings"
	"syscall"
	"time"

	"execbox/internal/sandbox/engine"
	"execbox/internal/sandbox/observer"
	"execbox/internal/sandbox/policy"
	"execbox/internal/sandbox/result"
	"execbox/internal/sandbox/spec"
	appErr "execbox/pkg/errors"
)

const (
	stageCompile = "compile"
	stageRun     = "run"

	defaultCompileWallTime = 30 * time.Second
)

// faultSignals are signals classified as a crash of the program itself.
var faultSignals = map[int]bool{
	int(syscall.SIGSEGV): true,
	int(syscall.SIGABRT): true,
	int(syscall.SIGBUS):  true,
	int(syscall.SIGFPE):  true,
	int(syscall.SIGILL):  true,
	int(syscall.SIGTRAP): true,
	int(syscall.SIGSYS):  true,
}

// DefaultRunner implements compile/run workflows for one instance. Its
// policy fields are immutable copies fixed at provisioning time; no
// state is shared with other instances.
type DefaultRunner struct {
	eng            engine.Engine
	identity       policy.ExecutionIdentity
	limits         policy.LimitTable
	compileProfile policy.CompileProfile
	allowlist      policy.ExecAllowlist
	env            []string
	compileWall    time.Duration
	metrics        observer.MetricsRecorder
}

// Options configures a DefaultRunner.
type Options struct {
	Engine          engine.Engine
	Identity        policy.ExecutionIdentity
	Limits          policy.LimitTable
	CompileProfile  policy.CompileProfile
	Allowlist       policy.ExecAllowlist
	Env             []string
	CompileWallTime time.Duration
	Metrics         observer.MetricsRecorder
}

// NewRunner creates a runner backed by the sandbox engine.
func NewRunner(opts Options) (*DefaultRunner, error) {
	if opts.Engine == nil {
		return nil, appErr.ValidationError("engine", "required")
	}
	if err := opts.Limits.Validate(); err != nil {
		return nil, err
	}
	if err := opts.CompileProfile.Validate(); err != nil {
		return nil, err
	}
	if opts.CompileWallTime <= 0 {
		opts.CompileWallTime = defaultCompileWallTime
	}
	if opts.Metrics == nil {
		opts.Metrics = observer.NoopMetricsRecorder{}
	}
	return &DefaultRunner{
		eng:            opts.Engine,
		identity:       opts.Identity,
		limits:         opts.Limits,
		compileProfile: opts.CompileProfile,
		allowlist:      opts.Allowlist,
		env:            opts.Env,
		compileWall:    opts.CompileWallTime,
		metrics:        opts.Metrics,
	}, nil
}

// Compile invokes the hardened compiler wrapper on the source files.
// A non-zero compiler exit is reported as a failed CompileResult with
// nil error; errors are reserved for sandbox-level problems.
func (r *DefaultRunner) Compile(ctx context.Context, req CompileRequest) (result.CompileResult, error) {
	if err := validateCompileRequest(req); err != nil {
		return result.CompileResult{}, err
	}
	if err := r.allowlist.Check(r.compileProfile.Compiler); err != nil {
		return result.CompileResult{}, err
	}
	cmd, err := r.compileProfile.Command(req.SourcePaths, req.Layout.BinaryPath)
	if err != nil {
		return result.CompileResult{}, err
	}

	runSpec := spec.RunSpec{
		SubmissionID:       req.SubmissionID,
		Stage:              stageCompile,
		WorkDir:            req.Layout.RootDir,
		Cmd:                cmd,
		Env:                r.env,
		StderrPath:         req.Layout.CompileLogPath,
		Limits:             r.limits.Entries(),
		WallTimeMs:         r.compileWall.Milliseconds(),
		Credential:         r.identity.Credential(),
		AllowedExecutables: r.allowlist.Binaries(),
	}

	raw, runErr := r.eng.Run(ctx, runSpec)
	compileRes := result.CompileResult{
		OK:          runErr == nil && raw.ExitCode == 0 && !raw.TimedOut,
		ExitCode:    raw.ExitCode,
		Diagnostics: raw.Stderr,
		TimeMs:      raw.CPUTimeMs,
	}
	r.metrics.ObserveCompile(ctx, compileRes.OK, compileRes.TimeMs)
	if runErr != nil {
		return compileRes, appErr.Wrapf(runErr, appErr.SandboxSystemError, "compile run failed")
	}
	if compileRes.OK {
		compileRes.BinaryPath = req.Layout.BinaryPath
	}
	return compileRes, nil
}

// Run executes the compiled binary under the instance limit table and
// classifies the raw outcome.
func (r *DefaultRunner) Run(ctx context.Context, req RunRequest) (result.RunResult, error) {
	if err := validateRunRequest(req); err != nil {
		return result.RunResult{}, err
	}
	if err := r.allowlist.Check(req.BinaryPath); err != nil {
		return result.RunResult{}, err
	}

	runSpec := spec.RunSpec{
		SubmissionID:       req.SubmissionID,
		Stage:              stageRun,
		WorkDir:            req.Layout.RootDir,
		Cmd:                []string{req.BinaryPath},
		Env:                r.env,
		StdinPath:          req.Layout.StdinPath,
		StdoutPath:         req.Layout.StdoutPath,
		StderrPath:         req.Layout.StderrPath,
		Limits:             r.limits.Entries(),
		WallTimeMs:         req.Timeout.Milliseconds(),
		Credential:         r.identity.Credential(),
		AllowedExecutables: r.allowlist.Binaries(),
	}

	raw, runErr := r.eng.Run(ctx, runSpec)
	if runErr != nil {
		return result.RunResult{}, appErr.Wrapf(runErr, appErr.SandboxSystemError, "sandbox run failed")
	}

	res := result.RunResult{
		Outcome:  classifyOutcome(raw, r.limits),
		ExitCode: raw.ExitCode,
		Signal:   raw.Signal,
		Stdout:   raw.Stdout,
		Stderr:   raw.Stderr,
		Usage: result.ResourceUsage{
			CPUTimeMs:   raw.CPUTimeMs,
			WallTimeMs:  raw.WallTimeMs,
			MaxRSSKB:    raw.MaxRSSKB,
			OutputBytes: raw.OutputBytes,
		},
	}
	r.metrics.ObserveRun(ctx, res.Outcome, res.Usage.CPUTimeMs, res.Usage.MaxRSSKB)
	return res, nil
}

// classifyOutcome maps raw process data onto the outcome taxonomy.
// Ceiling hits must never be reported as crashes.
func classifyOutcome(raw engine.RawResult, limits policy.LimitTable) result.OutcomeKind {
	if raw.TimedOut {
		return result.OutcomeTimedOut
	}
	if raw.Signal == int(syscall.SIGXCPU) || raw.Signal == int(syscall.SIGXFSZ) {
		return result.OutcomeLimitExceeded
	}
	if ceiling := limits.Ceiling(spec.KindFileSize); ceiling > 0 && raw.OutputBytes >= int64(ceiling) {
		return result.OutcomeLimitExceeded
	}
	if raw.ExitCode != 0 && forkExhausted(raw.Stderr) {
		return result.OutcomeLimitExceeded
	}
	if faultSignals[raw.Signal] {
		return result.OutcomeCrashed
	}
	if raw.Signal != 0 {
		return result.OutcomeCrashed
	}
	return result.OutcomeCompleted
}

// forkExhausted detects the libc diagnostics emitted when fork or
// thread creation fails against the process ceiling.
func forkExhausted(stderr string) bool {
	lowered := strings.ToLower(stderr)
	return strings.Contains(lowered, "resource temporarily unavailable") ||
		strings.Contains(lowered, "cannot fork") ||
		strings.Contains(lowered, "cannot allocate memory for thread")
}

func validateCompileRequest(req CompileRequest) error {
	if req.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if req.Layout.RootDir == "" {
		return appErr.ValidationError("work_dir", "required")
	}
	if len(req.SourcePaths) == 0 {
		return appErr.ValidationError("source_paths", "required")
	}
	for _, src := range req.SourcePaths {
		if !strings.HasPrefix(src, req.Layout.RootDir) {
			return appErr.New(appErr.ValidationFailed).WithDetail("source_path", src).WithDetail("reason", "outside working directory")
		}
	}
	return nil
}

func validateRunRequest(req RunRequest) error {
	if req.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if req.Layout.RootDir == "" {
		return appErr.ValidationError("work_dir", "required")
	}
	if req.BinaryPath == "" {
		return appErr.ValidationError("binary_path", "required")
	}
	if req.Timeout <= 0 {
		return appErr.ValidationError("timeout", "required")
	}
	return nil
}
