//go:build linux

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"execbox/internal/sandbox/spec"
	"execbox/pkg/utils/logger"
)

const defaultStdoutStderrMaxBytes int64 = 64 * 1024

type linuxEngine struct {
	cfg Config
}

// NewEngine creates a Linux sandbox engine.
func NewEngine(cfg Config) (Engine, error) {
	if cfg.HelperPath == "" {
		cfg.HelperPath = "sandbox-init"
	}
	if cfg.StdoutStderrMaxBytes <= 0 {
		cfg.StdoutStderrMaxBytes = defaultStdoutStderrMaxBytes
	}
	return &linuxEngine{cfg: cfg}, nil
}

func (e *linuxEngine) Run(ctx context.Context, runSpec spec.RunSpec) (RawResult, error) {
	if err := validateRunSpec(runSpec); err != nil {
		return RawResult{}, err
	}
	if e.cfg.SeccompDir != "" && runSpec.SeccompProfile != "" && !filepath.IsAbs(runSpec.SeccompProfile) {
		runSpec.SeccompProfile = filepath.Join(e.cfg.SeccompDir, runSpec.SeccompProfile)
	}

	stdinPipe, err := jsonToPipe(initRequest{
		RunSpec:       runSpec,
		EnableSeccomp: e.cfg.EnableSeccomp,
	})
	if err != nil {
		return RawResult{}, fmt.Errorf("encode init request: %w", err)
	}
	defer stdinPipe.Close()

	cmd := exec.CommandContext(ctx, e.cfg.HelperPath)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	cmd.Stdin = stdinPipe

	var helperStderr bytes.Buffer
	cmd.Stderr = &helperStderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return RawResult{}, fmt.Errorf("start helper: %w", err)
	}

	var timedOut atomic.Bool
	killCtx, cancelKill := context.WithCancel(ctx)
	defer cancelKill()

	done := make(chan struct{})
	go func() {
		wallLimit := durationFromMs(runSpec.WallTimeMs)
		var wallTimer <-chan time.Time
		if wallLimit > 0 {
			wallTimer = time.After(wallLimit)
		}
		select {
		case <-killCtx.Done():
			killProcessGroup(cmd.Process.Pid)
		case <-wallTimer:
			timedOut.Store(true)
			killProcessGroup(cmd.Process.Pid)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	if waitErr != nil && helperStderr.Len() > 0 {
		logger.Warn(ctx, "sandbox helper stderr", zap.String("stderr", helperStderr.String()))
	}

	res := RawResult{
		ExitCode:    exitCodeFromErr(waitErr, cmd.ProcessState),
		Signal:      termSignal(cmd.ProcessState),
		TimedOut:    timedOut.Load(),
		CPUTimeMs:   cpuTimeMs(cmd.ProcessState),
		WallTimeMs:  time.Since(start).Milliseconds(),
		MaxRSSKB:    maxRSSKB(cmd.ProcessState),
		OutputBytes: fileSize(runSpec.StdoutPath),
		Stdout:      readLimitedFile(runSpec.StdoutPath, e.cfg.StdoutStderrMaxBytes),
		Stderr:      readLimitedFile(runSpec.StderrPath, e.cfg.StdoutStderrMaxBytes),
	}
	if waitErr != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
	}
	return res, nil
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// killProcessGroup terminates the helper and every descendant. The
// process ceiling bounds how many descendants can exist, so cleanup
// cost is bounded too.
func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func validateRunSpec(runSpec spec.RunSpec) error {
	if runSpec.SubmissionID == "" {
		return fmt.Errorf("submission id is required")
	}
	if runSpec.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	if len(runSpec.Cmd) == 0 {
		return fmt.Errorf("command is required")
	}
	return nil
}

func jsonToPipe(req initRequest) (io.ReadCloser, error) {
	reader, writer := io.Pipe()
	go func() {
		enc := json.NewEncoder(writer)
		err := enc.Encode(req)
		_ = writer.CloseWithError(err)
	}()
	return reader, nil
}
