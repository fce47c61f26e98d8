// Package supervisor drives the compile/run/collect lifecycle of one
// submission inside a provisioned instance.
package supervisor

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"execbox/internal/sandbox/policy"
	"execbox/internal/sandbox/result"
	"execbox/internal/sandbox/runner"
	"execbox/internal/sandbox/workspace"
	appErr "execbox/pkg/errors"
	"execbox/pkg/utils/logger"
)

const defaultMaxSourceBytes = 256 * 1024

// Submission is one unit of untrusted work.
type Submission struct {
	SubmissionID string
	Source       []byte
	Stdin        []byte
	Timeout      time.Duration
}

// StatusReporter receives lifecycle transitions as they happen.
type StatusReporter interface {
	ReportState(ctx context.Context, submissionID string, state result.State)
}

// ArtifactCollector snapshots submission artifacts while they still
// exist. It runs during the collected phase, before teardown empties
// the working directory.
type ArtifactCollector interface {
	CollectArtifacts(ctx context.Context, submissionID string, layout workspace.Layout) error
}

// Supervisor executes submissions sequentially within one instance.
// Compilation and execution never overlap; the working directory is
// emptied before any submission artifact is written and again at
// teardown, so no artifact survives into the next submission.
type Supervisor struct {
	runner         runner.Runner
	workDir        policy.WorkingDirectory
	maxSourceBytes int64
	reporter       StatusReporter
	collector      ArtifactCollector
	denylist       *policy.Denylist
}

// New creates a supervisor bound to one instance working directory.
func New(r runner.Runner, workDir policy.WorkingDirectory) (*Supervisor, error) {
	if r == nil {
		return nil, appErr.ValidationError("runner", "required")
	}
	if workDir.Path == "" {
		return nil, appErr.ValidationError("work_dir", "required")
	}
	return &Supervisor{
		runner:         r,
		workDir:        workDir,
		maxSourceBytes: defaultMaxSourceBytes,
	}, nil
}

// SetStatusReporter injects a reporter for intermediate updates.
func (s *Supervisor) SetStatusReporter(reporter StatusReporter) {
	s.reporter = reporter
}

// SetArtifactCollector injects an artifact snapshot hook.
func (s *Supervisor) SetArtifactCollector(collector ArtifactCollector) {
	s.collector = collector
}

// SetDenylist enables the post-submission denylist audit: a submission
// must not be able to reintroduce a removed tool.
func (s *Supervisor) SetDenylist(d policy.Denylist) {
	s.denylist = &d
}

// SetMaxSourceBytes overrides the source size cap.
func (s *Supervisor) SetMaxSourceBytes(n int64) {
	if n > 0 {
		s.maxSourceBytes = n
	}
}

// Execute runs the full lifecycle for one submission. Teardown runs
// regardless of which outcome state was reached, including a failed
// compile. A non-nil error means a sandbox-level fault that must not
// be surfaced to the submitter.
func (s *Supervisor) Execute(ctx context.Context, sub Submission) (res result.SubmissionResult, err error) {
	res = result.SubmissionResult{
		SubmissionID: sub.SubmissionID,
		State:        result.StateProvisioned,
		ReceivedAt:   time.Now().Unix(),
	}
	if err := validateSubmission(sub, s.maxSourceBytes); err != nil {
		return res, err
	}

	// Stale artifacts from a prior run must never be visible.
	if err := s.workDir.Reset(); err != nil {
		return res, err
	}
	defer func() {
		if resetErr := s.workDir.Reset(); resetErr != nil {
			logger.Error(ctx, "working directory teardown failed",
				zap.String("submission_id", sub.SubmissionID),
				zap.Error(resetErr),
			)
			if err == nil {
				err = resetErr
			}
		} else if result.CanTransition(res.State, result.StateTornDown) {
			// A sandbox fault may leave the lifecycle mid-state; the
			// result then records the last state reached even though
			// the directory itself was torn down.
			_ = s.advance(ctx, &res, result.StateTornDown)
		}
		if s.denylist != nil {
			if auditErr := s.denylist.Audit(); auditErr != nil {
				logger.Error(ctx, "denylist audit failed after submission",
					zap.String("submission_id", sub.SubmissionID),
					zap.Error(auditErr),
				)
				if err == nil {
					err = auditErr
				}
			}
		}
		res.FinishedAt = time.Now().Unix()
	}()

	layout := workspace.NewLayout(s.workDir.Path)
	if err := os.WriteFile(layout.SourcePath, sub.Source, 0644); err != nil {
		return res, appErr.Wrapf(err, appErr.CompileSetupFailed, "write source failed")
	}

	if err := s.advance(ctx, &res, result.StateCompiling); err != nil {
		return res, err
	}
	compileRes, err := s.runner.Compile(ctx, runner.CompileRequest{
		SubmissionID: sub.SubmissionID,
		Layout:       layout,
		SourcePaths:  []string{layout.SourcePath},
	})
	res.Compile = &compileRes
	if err != nil {
		return res, err
	}
	if !compileRes.OK {
		if err := s.advance(ctx, &res, result.StateCompileFailed); err != nil {
			return res, err
		}
		return s.collect(ctx, res, layout)
	}
	if err := s.advance(ctx, &res, result.StateCompileSucceeded); err != nil {
		return res, err
	}

	if err := os.WriteFile(layout.StdinPath, sub.Stdin, 0644); err != nil {
		return res, appErr.Wrapf(err, appErr.SandboxSystemError, "write stdin failed")
	}
	if err := s.advance(ctx, &res, result.StateRunning); err != nil {
		return res, err
	}
	runRes, err := s.runner.Run(ctx, runner.RunRequest{
		SubmissionID: sub.SubmissionID,
		Layout:       layout,
		BinaryPath:   compileRes.BinaryPath,
		Timeout:      sub.Timeout,
	})
	if err != nil {
		return res, err
	}
	res.Run = &runRes

	if err := s.advance(ctx, &res, outcomeState(runRes.Outcome)); err != nil {
		return res, err
	}
	return s.collect(ctx, res, layout)
}

// collect advances to the collected state and snapshots artifacts. A
// failed snapshot does not fail the submission; its result is already
// complete at this point.
func (s *Supervisor) collect(ctx context.Context, res result.SubmissionResult, layout workspace.Layout) (result.SubmissionResult, error) {
	if err := s.advance(ctx, &res, result.StateCollected); err != nil {
		return res, err
	}
	if s.collector != nil {
		if err := s.collector.CollectArtifacts(ctx, res.SubmissionID, layout); err != nil {
			logger.Warn(ctx, "artifact collection failed",
				zap.String("submission_id", res.SubmissionID),
				zap.Error(err),
			)
		}
	}
	return res, nil
}

func (s *Supervisor) advance(ctx context.Context, res *result.SubmissionResult, to result.State) error {
	next, err := result.Transition(res.State, to)
	if err != nil {
		return err
	}
	res.State = next
	if s.reporter != nil {
		s.reporter.ReportState(ctx, res.SubmissionID, next)
	}
	return nil
}

func outcomeState(kind result.OutcomeKind) result.State {
	switch kind {
	case result.OutcomeTimedOut:
		return result.StateTimedOut
	case result.OutcomeLimitExceeded:
		return result.StateLimitExceeded
	case result.OutcomeCrashed:
		return result.StateCrashed
	default:
		return result.StateCompleted
	}
}

func validateSubmission(sub Submission, maxSourceBytes int64) error {
	if sub.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if len(sub.Source) == 0 {
		return appErr.New(appErr.SourceMissing)
	}
	if int64(len(sub.Source)) > maxSourceBytes {
		return appErr.New(appErr.SourceTooLarge).WithDetail("bytes", len(sub.Source))
	}
	if sub.Timeout <= 0 {
		return appErr.ValidationError("timeout", "required")
	}
	return nil
}
