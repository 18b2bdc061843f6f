package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/phasegate/internal/assess"
	"github.com/Iron-Ham/phasegate/internal/conflict"
	"github.com/Iron-Ham/phasegate/internal/downgrade"
	errs "github.com/Iron-Ham/phasegate/internal/errors"
	"github.com/Iron-Ham/phasegate/internal/event"
	"github.com/Iron-Ham/phasegate/internal/logging"
	"github.com/Iron-Ham/phasegate/internal/reslock"
)

// Default scheduler values.
const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 500 * time.Millisecond
	abortFailureCount   = 2
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLockManager sets the resource lock manager used for conflict-scoped
// serialization.
func WithLockManager(locks *reslock.Manager) Option {
	return func(s *Scheduler) { s.locks = locks }
}

// WithDetector sets the conflict detector that screens each wave.
func WithDetector(d *conflict.Detector) Option {
	return func(s *Scheduler) { s.detector = d }
}

// WithDowngradeEngine sets the downgrade engine fed by run signals.
func WithDowngradeEngine(e *downgrade.Engine) Option {
	return func(s *Scheduler) { s.downgrades = e }
}

// WithBus publishes wave and group lifecycle events.
func WithBus(bus *event.Bus) Option {
	return func(s *Scheduler) { s.bus = bus }
}

// WithLogger sets the structured logger.
func WithLogger(log *logging.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithRetry sets the bounded retry policy for transient worker failures.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(s *Scheduler) {
		s.maxAttempts = maxAttempts
		s.retryBackoff = backoff
	}
}

// WithWatcher observes the workspace root while waves run and demotes
// groups that wrote outside their declared patterns.
func WithWatcher(w *conflict.Watcher, root string) Option {
	return func(s *Scheduler) {
		s.watcher = w
		s.watchRoot = root
	}
}

// Scheduler runs the groups of one phase in dependency-ordered waves.
type Scheduler struct {
	worker       Worker
	locks        *reslock.Manager
	detector     *conflict.Detector
	downgrades   *downgrade.Engine
	watcher      *conflict.Watcher
	watchRoot    string
	bus          *event.Bus
	log          *logging.Logger
	maxAttempts  int
	retryBackoff time.Duration
}

// NewScheduler creates a Scheduler driving the given worker.
// Unset options use defaults; a nil detector or downgrade engine disables
// that concern.
func NewScheduler(worker Worker, opts ...Option) *Scheduler {
	s := &Scheduler{
		worker:       worker,
		maxAttempts:  defaultMaxAttempts,
		retryBackoff: defaultRetryBackoff,
		log:          logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.downgrades == nil {
		s.downgrades = downgrade.NewEngine()
	}
	return s
}

// run carries the mutable state of one phase run.
type run struct {
	phase    string
	holder   string
	sem      *semaphore
	deps     map[string][]string
	mu       sync.Mutex
	results  []Result
	failures int
	abortMsg string
	cancel   context.CancelFunc
}

func (r *run) record(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	if res.Status == StatusFailure || res.Status == StatusConflict {
		r.failures++
	}
}

// touchedSoFar returns every path reported touched by a completed group.
func (r *run) touchedSoFar() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var paths []string
	for _, res := range r.results {
		paths = append(paths, res.Touched...)
	}
	return paths
}

// reclassify demotes a group's recorded success to a conflict after the
// fact, when the watcher reports it wrote outside its declared scope.
func (r *run) reclassify(groupID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.results {
		if r.results[i].Group != groupID {
			continue
		}
		if r.results[i].Status == StatusSuccess {
			r.results[i].Status = StatusConflict
			r.results[i].Err = err
			r.failures++
		}
		return
	}
}

func (r *run) failureCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures
}

func (r *run) abort(reason string) {
	r.mu.Lock()
	if r.abortMsg == "" {
		r.abortMsg = reason
	}
	r.mu.Unlock()
	r.cancel()
}

func (r *run) aborted() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.abortMsg, r.abortMsg != ""
}

// Run executes the groups of one phase. The effective worker ceiling is
// the minimum of the assessed recommendation, the phase ceiling and each
// group's own cap, lowered further by downgrade decisions mid-run.
//
// The returned error is non-nil only when the run aborted or could not
// start; individual group failures that did not abort the run are
// reported through the Outcome.
func (s *Scheduler) Run(ctx context.Context, phase string, groups []Group, assessment assess.Assessment, phaseCeiling int) (*Outcome, error) {
	waves, err := layerWaves(groups)
	if err != nil {
		return nil, err
	}

	ceiling := effectiveCeiling(assessment.Workers, phaseCeiling)
	s.downgrades.BeginPhase(ceiling)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &run{
		phase:  phase,
		holder: "phase:" + phase,
		sem:    newSemaphore(ceiling),
		deps:   dependents(groups),
		cancel: cancel,
	}

	log := s.log.WithPhase(phase)
	log.Info("phase run starting", "groups", len(groups), "waves", len(waves), "ceiling", ceiling)

	for i, wave := range waves {
		if reason, ok := r.aborted(); ok {
			s.skipRemaining(r, waves[i:], i)
			return s.finish(r, len(waves), reason)
		}
		if err := ctx.Err(); err != nil {
			s.skipRemaining(r, waves[i:], i)
			return s.finish(r, len(waves), fmt.Sprintf("context cancelled: %v", err))
		}

		if err := s.runWave(runCtx, r, i, wave); err != nil {
			r.abort(err.Error())
			s.skipRemaining(r, waves[i:], i)
			reason, _ := r.aborted()
			return s.finish(r, len(waves), reason)
		}
	}

	if reason, ok := r.aborted(); ok {
		return s.finish(r, len(waves), reason)
	}
	return s.finish(r, len(waves), "")
}

// runWave screens one wave for conflicts and launches it. A returned
// error aborts the whole run.
func (s *Scheduler) runWave(ctx context.Context, r *run, waveIdx int, wave []Group) error {
	plan := s.screen(r, wave)

	if plan.Abort {
		return fmt.Errorf("conflict rule demanded abort in wave %d: %w", waveIdx, errs.ErrFatalConflict)
	}

	s.registerWatch(wave)
	defer s.collectMidRunWrites(r, wave)

	serialWave := plan.WaveSerial || s.downgrades.Serial()
	if plan.WaveSerial {
		s.log.WithPhase(r.phase).Warn("fatal conflict, abandoning parallel launch for wave", "wave", waveIdx)
	}

	// Adjust the semaphore to the current downgraded ceiling.
	r.sem.SetLimit(s.downgrades.Ceiling())

	ids := make([]string, len(wave))
	for i, g := range wave {
		ids[i] = g.ID
	}
	s.publish(event.NewWaveLaunchedEvent(r.phase, waveIdx, ids, serialWave, r.sem.Limit()))

	if serialWave {
		for _, g := range wave {
			if s.downgrades.Aborted() {
				return fmt.Errorf("downgrade engine aborted the run: %w", errs.ErrRunAborted)
			}
			s.runGroup(ctx, r, waveIdx, g, plan)
			if reason, ok := r.aborted(); ok {
				return fmt.Errorf("%s: %w", reason, errs.ErrRunAborted)
			}
		}
		return nil
	}

	// Serialized groups run after the parallel ones so their scoped locks
	// do not stall the independent part of the wave.
	var parallel, serialized []Group
	for _, g := range wave {
		if plan.Serial(g.ID) {
			serialized = append(serialized, g)
		} else {
			parallel = append(parallel, g)
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, g := range parallel {
		eg.Go(func() error {
			if err := r.sem.Acquire(egCtx); err != nil {
				r.record(Result{Group: g.ID, Status: StatusSkipped, Err: err, Wave: waveIdx})
				return nil
			}
			defer r.sem.Release()
			s.runGroup(egCtx, r, waveIdx, g, plan)
			return nil
		})
	}
	_ = eg.Wait()

	for _, g := range serialized {
		if reason, ok := r.aborted(); ok {
			return fmt.Errorf("%s: %w", reason, errs.ErrRunAborted)
		}
		s.runGroup(ctx, r, waveIdx, g, plan)
	}

	if reason, ok := r.aborted(); ok {
		return fmt.Errorf("%s: %w", reason, errs.ErrRunAborted)
	}
	return nil
}

// runGroup executes one group end to end: scoped locks, bounded retries,
// failure classification, downgrade signals.
func (s *Scheduler) runGroup(ctx context.Context, r *run, waveIdx int, g Group, plan conflict.Plan) {
	log := s.log.WithPhase(r.phase).WithGroup(g.ID)

	if err := ctx.Err(); err != nil {
		r.record(Result{Group: g.ID, Status: StatusSkipped, Err: err, Wave: waveIdx})
		return
	}

	holder := "group:" + g.ID
	released, err := s.acquireScopes(ctx, g.ID, holder, plan)
	if err != nil {
		// Lock denial is a downgrade signal, not a group failure. The
		// group is retried serially by recording a conflict outcome.
		var lockErr *errs.LockError
		resource := ""
		if errs.As(err, &lockErr) {
			resource = lockErr.Resource
		}
		d := s.downgrades.Evaluate(downgrade.Signal{Kind: downgrade.SignalLockTimeout, Resource: resource})
		s.applyDecision(r, d)
		log.Warn("lock acquisition denied", "resource", resource, "decision", d.Action.String())

		start := time.Now()
		report, werr := s.executeSerial(ctx, r, g)
		s.conclude(r, waveIdx, g, report, werr, 1, time.Since(start), log)
		return
	}
	defer released()

	start := time.Now()
	report, attempts, werr := s.executeWithRetry(ctx, r, g)
	s.conclude(r, waveIdx, g, report, werr, attempts, time.Since(start), log)
}

// acquireScopes takes every lock the conflict plan scoped to this group.
// Locks are released together when the group concludes.
func (s *Scheduler) acquireScopes(ctx context.Context, groupID, holder string, plan conflict.Plan) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}

	var held []string
	release := func() {
		for _, res := range held {
			s.locks.Release(res, holder)
		}
	}

	for _, req := range plan.Locks {
		if !containsString(req.Groups, groupID) {
			continue
		}
		for _, scope := range req.Scope {
			if err := s.locks.Acquire(ctx, scope, holder); err != nil {
				release()
				return nil, err
			}
			held = append(held, scope)
		}
	}
	return release, nil
}

// executeWithRetry runs a group's task, retrying transient failures with
// linear backoff up to the bounded attempt count.
func (s *Scheduler) executeWithRetry(ctx context.Context, r *run, g Group) (Report, int, error) {
	task := s.taskFor(r, g)

	var report Report
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		report, err = s.worker.Execute(ctx, task)
		if err == nil {
			return report, attempt, nil
		}
		if !errs.IsRetryable(err) || ctx.Err() != nil {
			return report, attempt, err
		}
		if attempt < s.maxAttempts {
			d := s.downgrades.Evaluate(downgrade.Signal{Kind: downgrade.SignalTransientTimeout, Count: attempt})
			s.applyDecision(r, d)
			select {
			case <-time.After(s.retryBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				return report, attempt, ctx.Err()
			}
		}
	}
	return report, s.maxAttempts, err
}

// executeSerial runs a group once with a single worker, used after a
// lock denial demoted it.
func (s *Scheduler) executeSerial(ctx context.Context, r *run, g Group) (Report, error) {
	task := s.taskFor(r, g)
	task.Workers = 1
	return s.worker.Execute(ctx, task)
}

func (s *Scheduler) taskFor(r *run, g Group) Task {
	workers := s.downgrades.Ceiling()
	if g.MaxWorkers > 0 && g.MaxWorkers < workers {
		workers = g.MaxWorkers
	}
	if workers < 1 {
		workers = 1
	}
	return Task{
		Phase:       r.phase,
		Group:       g.ID,
		Description: g.Description,
		Workers:     workers,
	}
}

// conclude classifies a finished group and applies the failure policy.
func (s *Scheduler) conclude(r *run, waveIdx int, g Group, report Report, err error, attempts int, elapsed time.Duration, log *logging.Logger) Result {
	res := Result{
		Group:    g.ID,
		Status:   StatusSuccess,
		Touched:  report.Touched,
		Attempts: attempts,
		Wave:     waveIdx,
		Duration: elapsed,
	}

	if err != nil {
		res.Err = err
		switch {
		case errs.Is(err, context.Canceled) || errs.Is(err, context.DeadlineExceeded):
			// Cancellation is not a group failure.
			res.Status = StatusSkipped
			r.record(res)
			return res
		case errs.Is(err, errs.ErrFatalConflict):
			res.Status = StatusConflict
		default:
			res.Status = StatusFailure
		}
	}

	r.record(res)
	s.publish(event.NewGroupCompletedEvent(r.phase, g.ID, string(res.Status), res.Touched))

	if err == nil {
		log.Info("group completed", "attempts", attempts)
		return res
	}

	log.Error("group failed", "error", err.Error(), "status", string(res.Status), "severity", errs.SeverityOf(err).String())

	// Abort-class errors stop the run regardless of how many groups failed.
	if errs.IsAbortClass(err) {
		r.abort(fmt.Sprintf("group %s failed with an abort-class error: %v", g.ID, err))
		return res
	}

	// Critical path: a failed group that later groups must-complete on.
	if len(r.deps[g.ID]) > 0 {
		d := s.downgrades.Evaluate(downgrade.Signal{Kind: downgrade.SignalCriticalPathFailure})
		s.applyDecision(r, d)
		r.abort(fmt.Sprintf("critical path failure: group %s failed and %v depend on it", g.ID, r.deps[g.ID]))
		return res
	}

	d := s.downgrades.Evaluate(downgrade.Signal{Kind: downgrade.SignalTaskFailure, Count: r.failureCount()})
	s.applyDecision(r, d)

	if r.failureCount() >= abortFailureCount {
		r.abort(fmt.Sprintf("%d independent group failures in one phase run", r.failureCount()))
	}
	return res
}

// screen runs the conflict detector over a wave, scopes locks over paths
// touched by earlier waves, and feeds repeated conflict signals into the
// downgrade engine.
func (s *Scheduler) screen(r *run, wave []Group) conflict.Plan {
	plan := conflict.Plan{Serialized: map[string]bool{}}
	if s.detector != nil {
		specs := make([]conflict.GroupSpec, len(wave))
		for i, g := range wave {
			specs[i] = conflict.GroupSpec{ID: g.ID, Patterns: g.Patterns}
		}
		plan = s.detector.Screen(specs)
	}

	plan.Locks = append(plan.Locks, s.priorTouchLocks(r, wave)...)

	for _, m := range plan.Matches {
		resource := m.Rule
		if len(m.Scope) > 0 {
			resource = m.Scope[0]
		}
		d := s.downgrades.Evaluate(downgrade.Signal{Kind: downgrade.SignalRepeatedConflict, Resource: resource})
		if d.Action == downgrade.ActionSerialize {
			plan.WaveSerial = true
			if d.Delay > 0 {
				time.Sleep(d.Delay)
			}
		}
		if d.Action == downgrade.ActionAbort {
			plan.Abort = true
		}
	}
	return plan
}

// priorTouchLocks scopes a lock over every path a completed group touched
// that a group in the next wave declares interest in, so later waves
// serialize on the resources earlier waves actually changed.
func (s *Scheduler) priorTouchLocks(r *run, wave []Group) []conflict.LockRequest {
	touched := r.touchedSoFar()
	if len(touched) == 0 {
		return nil
	}

	var reqs []conflict.LockRequest
	for _, g := range wave {
		seen := make(map[string]bool)
		for _, p := range g.Patterns {
			for _, t := range touched {
				if seen[t] || !conflict.PatternsOverlap(p, t) {
					continue
				}
				seen[t] = true
				reqs = append(reqs, conflict.LockRequest{
					RuleID: "prior-wave-touch",
					Scope:  []string{t},
					Groups: []string{g.ID},
				})
			}
		}
	}
	return reqs
}

// registerWatch puts every group of the wave under the workspace watcher.
func (s *Scheduler) registerWatch(wave []Group) {
	if s.watcher == nil {
		return
	}
	for _, g := range wave {
		if err := s.watcher.AddGroup(g.ID, s.watchRoot, g.Patterns); err != nil {
			s.log.Warn("watch registration failed", "group", g.ID, "error", err.Error())
		}
	}
}

// collectMidRunWrites drains the watcher after a wave. A group that wrote
// outside its declared patterns has its success demoted to a conflict and
// each stray path becomes a repeated-conflict signal.
func (s *Scheduler) collectMidRunWrites(r *run, wave []Group) {
	if s.watcher == nil {
		return
	}
	defer func() {
		for _, g := range wave {
			s.watcher.RemoveGroup(g.ID)
		}
	}()

	inWave := make(map[string]bool, len(wave))
	for _, g := range wave {
		inWave[g.ID] = true
	}

	byGroup := make(map[string][]string)
	for _, rep := range s.watcher.Reports() {
		if inWave[rep.GroupID] {
			byGroup[rep.GroupID] = append(byGroup[rep.GroupID], rep.Path)
		}
	}
	if len(byGroup) == 0 {
		return
	}

	for id, paths := range byGroup {
		s.log.WithPhase(r.phase).WithGroup(id).Warn("undeclared writes during run", "paths", paths)
		s.publish(event.NewConflictDetectedEvent("midrun-watch", "major", []string{id}, paths))
		r.reclassify(id, errs.NewScheduleError(
			fmt.Sprintf("wrote outside declared patterns: %v", paths),
			errs.ErrMidRunConflict,
		).WithPhase(r.phase).WithGroup(id))

		for _, p := range paths {
			d := s.downgrades.Evaluate(downgrade.Signal{Kind: downgrade.SignalRepeatedConflict, Resource: p})
			s.applyDecision(r, d)
		}
	}

	if r.failureCount() >= abortFailureCount {
		r.abort(fmt.Sprintf("%d independent group failures in one phase run", r.failureCount()))
	}
}

// applyDecision folds a downgrade decision into the running state.
func (s *Scheduler) applyDecision(r *run, d downgrade.Decision) {
	switch d.Action {
	case downgrade.ActionAbort:
		r.abort(d.Reason)
	case downgrade.ActionReduce, downgrade.ActionSerialize:
		r.sem.SetLimit(s.downgrades.Ceiling())
	}
}

func (s *Scheduler) skipRemaining(r *run, waves [][]Group, offset int) {
	seen := make(map[string]bool)
	for _, res := range r.results {
		seen[res.Group] = true
	}
	for i, wave := range waves {
		for _, g := range wave {
			if !seen[g.ID] {
				r.record(Result{Group: g.ID, Status: StatusSkipped, Wave: offset + i})
			}
		}
	}
}

func (s *Scheduler) finish(r *run, waves int, abortReason string) (*Outcome, error) {
	out := &Outcome{
		Phase:       r.phase,
		Waves:       waves,
		Results:     r.results,
		Aborted:     abortReason != "",
		AbortReason: abortReason,
	}

	if out.Aborted {
		if s.locks != nil {
			s.locks.ReleaseAll(r.holder)
		}
		s.publish(event.NewRunAbortedEvent(r.phase, abortReason))
		s.log.WithPhase(r.phase).Error("phase run aborted", "reason", abortReason)
		return out, errs.NewScheduleError(abortReason, errs.ErrRunAborted).WithPhase(r.phase)
	}

	s.log.WithPhase(r.phase).Info("phase run finished", "success", out.Success())
	return out, nil
}

func (s *Scheduler) publish(e event.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

func effectiveCeiling(assessed, phaseCeiling int) int {
	ceiling := assessed
	if ceiling < 1 {
		ceiling = 1
	}
	if phaseCeiling > 0 && phaseCeiling < ceiling {
		ceiling = phaseCeiling
	}
	return ceiling
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
