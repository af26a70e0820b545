package observe

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/mend/pkg/contracts"
)

// Strategy names the execution tier an Observe invocation runs under.
// It is chosen once per invocation; every tier yields the same result
// shape so nothing downstream branches on which one ran.
type Strategy string

const (
	StrategyWorkerPool Strategy = "worker-pool"
	StrategyParallel   Strategy = "parallel"
	StrategySequential Strategy = "sequential"
)

const (
	defaultWorkerCap   = 8
	defaultTaskTimeout = 60 * time.Second
)

// Options tunes the dispatcher.
type Options struct {
	// Workers caps the pool size; the effective size is
	// min(Workers, NumCPU). Zero means the default cap of 8. A
	// negative value disables the pool tier.
	Workers int
	// TaskTimeout bounds each (file, detector) invocation. A timeout
	// fails that pair only, never the batch. Zero means 60s.
	TaskTimeout time.Duration
	// RatePerSecond throttles detector dispatch when positive.
	RatePerSecond float64
}

// Runner dispatches a fixed set of detectors over a tree.
type Runner struct {
	detectors []Detector
	opts      Options
	limiter   *rate.Limiter
	logger    *slog.Logger
	clock     func() time.Time
}

// NewRunner builds a Runner. The detector set is fixed for the
// Runner's lifetime.
func NewRunner(detectors []Detector, opts Options) *Runner {
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = defaultTaskTimeout
	}
	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	return &Runner{
		detectors: detectors,
		opts:      opts,
		limiter:   limiter,
		logger:    slog.Default().With("component", "observe"),
		clock:     time.Now,
	}
}

// WithClock overrides the clock for testing.
func (r *Runner) WithClock(clock func() time.Time) *Runner {
	r.clock = clock
	return r
}

type task struct {
	detector Detector
	file     string // empty for workspace scans
}

type taskResult struct {
	category string
	detector string
	file     string
	issues   []contracts.IssueDetail
	err      error
}

// Observe runs every detector against the tree and aggregates the
// findings. Failed (file, detector) pairs are logged and omitted from
// the counts; they never abort the batch.
func (r *Runner) Observe(ctx context.Context, root string, files []string) (*contracts.Metrics, error) {
	tasks, err := r.buildTasks(files)
	if err != nil {
		return nil, err
	}

	strategy := r.chooseStrategy(len(files))
	r.logger.Info("dispatching detectors",
		"strategy", string(strategy),
		"detectors", len(r.detectors),
		"files", len(files),
		"tasks", len(tasks))

	var results []taskResult
	switch strategy {
	case StrategyWorkerPool:
		results = r.runPool(ctx, root, tasks)
	case StrategyParallel:
		results = r.runParallel(ctx, root, tasks)
	default:
		results = r.runSequential(ctx, root, tasks)
	}

	m := r.aggregate(results)
	if err := ValidateMetrics(m); err != nil {
		return nil, err
	}
	return m, nil
}

// buildTasks expands the detector set into (file, detector) work
// items. A detector whose declared capability does not match its
// implemented interface is a configuration error.
func (r *Runner) buildTasks(files []string) ([]task, error) {
	var tasks []task
	for _, d := range r.detectors {
		switch d.Capability() {
		case CapabilityWorkspace:
			if _, ok := d.(WorkspaceScanner); !ok {
				return nil, fmt.Errorf("observe: detector %s declares %s but does not implement WorkspaceScanner", d.Name(), d.Capability())
			}
			tasks = append(tasks, task{detector: d})
		case CapabilityPerFile:
			if _, ok := d.(FileScanner); !ok {
				return nil, fmt.Errorf("observe: detector %s declares %s but does not implement FileScanner", d.Name(), d.Capability())
			}
			for _, f := range files {
				tasks = append(tasks, task{detector: d, file: f})
			}
		default:
			return nil, fmt.Errorf("observe: detector %s declares unknown capability %q", d.Name(), d.Capability())
		}
	}
	return tasks, nil
}

// chooseStrategy picks the execution tier exactly once per
// invocation: worker pool when one can be sized, in-process parallel
// when the pool tier is disabled, trivial sequential when the target
// has no files.
func (r *Runner) chooseStrategy(fileCount int) Strategy {
	if fileCount == 0 {
		return StrategySequential
	}
	if r.opts.Workers < 0 {
		return StrategyParallel
	}
	return StrategyWorkerPool
}

func (r *Runner) poolSize() int {
	limit := r.opts.Workers
	if limit <= 0 {
		limit = defaultWorkerCap
	}
	if n := runtime.NumCPU(); n < limit {
		return n
	}
	return limit
}

func (r *Runner) runSequential(ctx context.Context, root string, tasks []task) []taskResult {
	results := make([]taskResult, 0, len(tasks))
	for _, tk := range tasks {
		results = append(results, r.runTask(ctx, root, tk))
	}
	return results
}

func (r *Runner) runParallel(ctx context.Context, root string, tasks []task) []taskResult {
	results := make([]taskResult, len(tasks))
	var wg sync.WaitGroup
	for i, tk := range tasks {
		wg.Add(1)
		go func(i int, tk task) {
			defer wg.Done()
			results[i] = r.runTask(ctx, root, tk)
		}(i, tk)
	}
	wg.Wait()
	return results
}

func (r *Runner) runPool(ctx context.Context, root string, tasks []task) []taskResult {
	workers := r.poolSize()
	jobs := make(chan int)
	results := make([]taskResult, len(tasks))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = r.runTask(ctx, root, tasks[i])
			}
		}()
	}
	for i := range tasks {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

// runTask invokes one detector under the per-task timeout. The scan
// runs in its own goroutine so a detector that ignores its context
// still cannot hold the batch past the deadline.
func (r *Runner) runTask(ctx context.Context, root string, tk task) taskResult {
	res := taskResult{
		category: tk.detector.Category(),
		detector: tk.detector.Name(),
		file:     tk.file,
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			res.err = err
			return res
		}
	}

	tctx, cancel := context.WithTimeout(ctx, r.opts.TaskTimeout)
	defer cancel()

	type outcome struct {
		issues []contracts.IssueDetail
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		if tk.file == "" {
			issues, err := tk.detector.(WorkspaceScanner).ScanWorkspace(tctx, root)
			done <- outcome{issues, err}
			return
		}
		issues, err := tk.detector.(FileScanner).ScanFile(tctx, tk.file)
		done <- outcome{issues, err}
	}()

	select {
	case o := <-done:
		res.issues, res.err = o.issues, o.err
	case <-tctx.Done():
		res.err = fmt.Errorf("detector %s timed out on %s: %w", res.detector, displayTarget(tk), tctx.Err())
	}
	return res
}

func displayTarget(tk task) string {
	if tk.file == "" {
		return "workspace"
	}
	return tk.file
}

// aggregate folds task results into one Metrics document. The shape
// is identical regardless of which tier produced the results.
func (r *Runner) aggregate(results []taskResult) *contracts.Metrics {
	m := &contracts.Metrics{
		RunID:     uuid.NewString(),
		Timestamp: r.clock().UTC().Format(time.RFC3339),
		Counts:    make(map[string]int),
	}
	for _, res := range results {
		if res.err != nil {
			r.logger.Warn("detector invocation failed",
				"detector", res.detector,
				"file", res.file,
				"error", res.err)
			continue
		}
		m.Counts[res.category] += len(res.issues)
		if len(res.issues) > 0 {
			if m.Details == nil {
				m.Details = make(map[string][]contracts.IssueDetail)
			}
			m.Details[res.category] = append(m.Details[res.category], res.issues...)
		}
		m.TotalIssues += len(res.issues)
	}
	return m
}
