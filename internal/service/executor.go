// Package service exposes sandboxed execution as an application
// service: a pool of provisioned instances, a bounded submission
// queue, and a retained result store.
package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"execbox/internal/sandbox/result"
	"execbox/internal/sandbox/supervisor"
	appErr "execbox/pkg/errors"
	"execbox/pkg/utils/logger"
)

const (
	defaultQueueDepth     = 64
	defaultRunTimeout     = 5 * time.Second
	maxRunTimeout         = 30 * time.Second
	defaultMaxSourceBytes = 256 * 1024
)

// ExecuteRequest is one submission as received from the API.
type ExecuteRequest struct {
	Source    string `json:"source" binding:"required"`
	Stdin     string `json:"stdin"`
	TimeoutMs int64  `json:"timeout_ms"`
}

// Accepted describes an enqueued submission.
type Accepted struct {
	SubmissionID string `json:"submission_id"`
	Deduplicated bool   `json:"deduplicated"`
}

// Instance is one provisioned execution slot. Submissions assigned to
// the same instance run strictly one at a time.
type Instance struct {
	ID         string
	Supervisor *supervisor.Supervisor
}

type job struct {
	submissionID string
	sub          supervisor.Submission
	sourceDigest string
}

// ExecutorService accepts submissions, dispatches them across the
// instance pool and retains results.
type ExecutorService struct {
	jobs  chan job
	store *ResultStore
	ready atomic.Bool

	maxSourceBytes int64
	dedupe         bool

	statusMu sync.RWMutex
	statuses map[string]result.State
	watchers map[string][]chan result.State

	wg sync.WaitGroup
}

// Options tunes the executor service.
type Options struct {
	QueueDepth        int
	MaxSourceBytes    int64
	DeduplicateSource bool
}

// NewExecutorService starts one worker goroutine per instance. The
// service reports ready once all workers are consuming.
func NewExecutorService(ctx context.Context, instances []*Instance, store *ResultStore, opts Options) (*ExecutorService, error) {
	if len(instances) == 0 {
		return nil, appErr.ValidationError("instances", "at least one required")
	}
	if store == nil {
		return nil, appErr.ValidationError("store", "required")
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = defaultQueueDepth
	}
	if opts.MaxSourceBytes <= 0 {
		opts.MaxSourceBytes = defaultMaxSourceBytes
	}

	svc := &ExecutorService{
		jobs:           make(chan job, opts.QueueDepth),
		store:          store,
		maxSourceBytes: opts.MaxSourceBytes,
		dedupe:         opts.DeduplicateSource,
		statuses:       make(map[string]result.State),
		watchers:       make(map[string][]chan result.State),
	}
	for _, inst := range instances {
		inst.Supervisor.SetStatusReporter(svc)
		svc.wg.Add(1)
		go svc.worker(ctx, inst)
	}
	svc.ready.Store(true)
	return svc, nil
}

// Ready reports whether the instance pool is accepting work.
func (svc *ExecutorService) Ready() bool {
	return svc.ready.Load()
}

// Submit validates and enqueues a submission. When deduplication is on
// and an identical source was executed recently, the retained result is
// reused without running anything.
func (svc *ExecutorService) Submit(ctx context.Context, req ExecuteRequest) (Accepted, error) {
	if !svc.ready.Load() {
		return Accepted{}, appErr.New(appErr.InstanceNotReady)
	}
	if req.Source == "" {
		return Accepted{}, appErr.New(appErr.SourceMissing)
	}
	if int64(len(req.Source)) > svc.maxSourceBytes {
		return Accepted{}, appErr.New(appErr.SourceTooLarge).WithDetail("bytes", len(req.Source))
	}
	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	if timeout > maxRunTimeout {
		timeout = maxRunTimeout
	}

	digest := Fingerprint([]byte(req.Source), []byte(req.Stdin))
	if svc.dedupe {
		if prev, ok := svc.store.LookupByFingerprint(digest); ok {
			return Accepted{SubmissionID: prev.SubmissionID, Deduplicated: true}, nil
		}
	}

	submissionID := uuid.NewString()
	j := job{
		submissionID: submissionID,
		sourceDigest: digest,
		sub: supervisor.Submission{
			SubmissionID: submissionID,
			Source:       []byte(req.Source),
			Stdin:        []byte(req.Stdin),
			Timeout:      timeout,
		},
	}

	svc.setStatus(ctx, submissionID, result.StateProvisioned)
	select {
	case svc.jobs <- j:
		return Accepted{SubmissionID: submissionID}, nil
	default:
		svc.clearStatus(submissionID)
		return Accepted{}, appErr.New(appErr.QueueFull)
	}
}

// Result returns the finished result, or the current lifecycle state
// for a submission still in flight.
func (svc *ExecutorService) Result(id string) (result.SubmissionResult, error) {
	if res, err := svc.store.Get(id); err == nil {
		return res, nil
	}
	svc.statusMu.RLock()
	state, ok := svc.statuses[id]
	svc.statusMu.RUnlock()
	if !ok {
		return result.SubmissionResult{}, appErr.New(appErr.SubmissionNotFound).WithDetail("submission_id", id)
	}
	return result.SubmissionResult{SubmissionID: id, State: state}, nil
}

// Watch subscribes to lifecycle transitions for one submission. The
// returned cancel func must be called to release the subscription.
// An id in neither the store nor the in-flight set is an error; no
// subscription is registered for it.
func (svc *ExecutorService) Watch(id string) (<-chan result.State, func(), error) {
	ch := make(chan result.State, 16)
	// Already finished: replay the final state and close immediately.
	if res, err := svc.store.Get(id); err == nil {
		ch <- res.State
		close(ch)
		return ch, func() {}, nil
	}
	svc.statusMu.Lock()
	state, known := svc.statuses[id]
	if !known {
		svc.statusMu.Unlock()
		// The submission may have finished between the two lookups.
		if res, err := svc.store.Get(id); err == nil {
			ch <- res.State
			close(ch)
			return ch, func() {}, nil
		}
		return nil, nil, appErr.New(appErr.SubmissionNotFound).WithDetail("submission_id", id)
	}
	svc.watchers[id] = append(svc.watchers[id], ch)
	ch <- state
	svc.statusMu.Unlock()

	cancel := func() {
		svc.statusMu.Lock()
		defer svc.statusMu.Unlock()
		subs := svc.watchers[id]
		for i, sub := range subs {
			if sub == ch {
				svc.watchers[id] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(svc.watchers[id]) == 0 {
			delete(svc.watchers, id)
		}
	}
	return ch, cancel, nil
}

// ReportState implements supervisor.StatusReporter.
func (svc *ExecutorService) ReportState(ctx context.Context, submissionID string, state result.State) {
	svc.setStatus(ctx, submissionID, state)
}

// Shutdown stops accepting submissions and waits for in-flight work.
func (svc *ExecutorService) Shutdown() {
	svc.ready.Store(false)
	close(svc.jobs)
	svc.wg.Wait()
}

func (svc *ExecutorService) worker(ctx context.Context, inst *Instance) {
	defer svc.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-svc.jobs:
			if !ok {
				return
			}
			svc.execute(ctx, inst, j)
		}
	}
}

func (svc *ExecutorService) execute(ctx context.Context, inst *Instance, j job) {
	logger.Info(ctx, "executing submission",
		zap.String("submission_id", j.submissionID),
		zap.String("instance_id", inst.ID),
	)

	res, err := inst.Supervisor.Execute(ctx, j.sub)
	if err != nil {
		// Sandbox-level faults are logged in full but never shown to
		// the submitter.
		logger.Error(ctx, "sandbox fault",
			zap.String("submission_id", j.submissionID),
			zap.String("instance_id", inst.ID),
			zap.Int("code", int(appErr.GetCode(err))),
			zap.Error(err),
		)
	}
	sanitizeResult(&res)
	if putErr := svc.store.Put(res, j.sourceDigest); putErr != nil {
		logger.Error(ctx, "store result failed",
			zap.String("submission_id", j.submissionID),
			zap.Error(putErr),
		)
	}
	svc.setStatus(ctx, j.submissionID, res.State)
	svc.closeWatchers(j.submissionID)
}

// sanitizeResult cleans every output stream destined for clients.
func sanitizeResult(res *result.SubmissionResult) {
	if res.Compile != nil {
		res.Compile.Diagnostics = SanitizeOutput(res.Compile.Diagnostics, 0)
	}
	if res.Run != nil {
		res.Run.Stdout = SanitizeOutput(res.Run.Stdout, 0)
		res.Run.Stderr = SanitizeOutput(res.Run.Stderr, 0)
	}
}

func (svc *ExecutorService) setStatus(ctx context.Context, id string, state result.State) {
	svc.statusMu.Lock()
	svc.statuses[id] = state
	for _, ch := range svc.watchers[id] {
		select {
		case ch <- state:
		default:
		}
	}
	svc.statusMu.Unlock()
}

func (svc *ExecutorService) clearStatus(id string) {
	svc.statusMu.Lock()
	delete(svc.statuses, id)
	svc.statusMu.Unlock()
}

func (svc *ExecutorService) closeWatchers(id string) {
	svc.statusMu.Lock()
	for _, ch := range svc.watchers[id] {
		close(ch)
	}
	delete(svc.watchers, id)
	delete(svc.statuses, id)
	svc.statusMu.Unlock()
}
