// Package build runs the build commands of changed modules, cancels builds
// that newer changes superseded and swaps successful builds into place.
package build

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/listenupapp/watchmodule/internal/artifact"
	domainerrors "github.com/listenupapp/watchmodule/internal/errors"
	"github.com/listenupapp/watchmodule/internal/feed"
	"github.com/listenupapp/watchmodule/internal/id"
	"github.com/listenupapp/watchmodule/internal/module"
)

// DefaultWaitDelay bounds how long a cancelled command may keep its
// output pipes open before it is killed.
const DefaultWaitDelay = 5 * time.Second

// Swapper places a built module into the consumer.
type Swapper interface {
	Swap(ctx context.Context, name, source string) (*artifact.SwapResult, error)
}

// Job is one module and the paths that changed in it.
type Job struct {
	Module string
	Dir    string
	Config module.Config
	Paths  []string
}

// Status is the outcome of a scheduling pass.
type Status int

const (
	// StatusPending means the pass has not finished.
	StatusPending Status = iota
	// StatusSwapped means every command succeeded and the module was swapped.
	StatusSwapped
	// StatusSwapFailed means the commands succeeded but the swap did not.
	StatusSwapFailed
	// StatusFailed means a command failed; nothing was swapped.
	StatusFailed
	// StatusSuperseded means a command was cancelled by a newer pass or by
	// shutdown; nothing was swapped.
	StatusSuperseded
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSwapped:
		return "swapped"
	case StatusSwapFailed:
		return "swap failed"
	case StatusFailed:
		return "failed"
	case StatusSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Outcome describes a finished pass.
type Outcome struct {
	Err     error
	Swap    *artifact.SwapResult
	Results []*Result
	Status  Status
}

// Pass is one scheduling of a module.
type Pass struct {
	done     chan struct{}
	ID       string
	Module   string
	Commands []string
	outcome  Outcome
}

// Done is closed when the pass has finished.
func (p *Pass) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the pass has finished or ctx is done.
func (p *Pass) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-p.done:
		return p.outcome, nil
	case <-ctx.Done():
		return Outcome{Status: StatusPending}, ctx.Err()
	}
}

func (p *Pass) finish(outcome Outcome) {
	p.outcome = outcome
	close(p.done)
}

// Options configures a Scheduler.
type Options struct {
	Logger  *slog.Logger
	Emitter feed.Emitter
	Swapper Swapper
	// OutputLimit caps captured stdout and stderr per command
	// (default: DefaultOutputLimit).
	OutputLimit int
	// WaitDelay bounds the wait for a cancelled command's output
	// (default: DefaultWaitDelay).
	WaitDelay time.Duration
}

// Scheduler runs build passes. Commands of different modules run
// concurrently; a new pass cancels the running command of the same module
// and command before starting its own.
type Scheduler struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger
	emitter feed.Emitter
	swapper Swapper
	running *registry
	opts    Options
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
}

// NewScheduler creates a Scheduler. Commands run until Close is called or
// a newer pass supersedes them.
func NewScheduler(opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Emitter == nil {
		opts.Emitter = feed.Discard
	}
	if opts.OutputLimit <= 0 {
		opts.OutputLimit = DefaultOutputLimit
	}
	if opts.WaitDelay <= 0 {
		opts.WaitDelay = DefaultWaitDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		ctx:     ctx,
		cancel:  cancel,
		logger:  opts.Logger,
		emitter: opts.Emitter,
		swapper: opts.Swapper,
		running: newRegistry(),
		opts:    opts,
	}
}

// Schedule starts a pass for job and returns without waiting for it.
func (s *Scheduler) Schedule(job Job) *Pass {
	pass := &Pass{
		ID:     id.Pass(),
		Module: job.Module,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		pass.finish(Outcome{Status: StatusSuperseded})
		return pass
	}
	s.wg.Add(1)
	s.mu.Unlock()

	pass.Commands = job.Config.CommandsFor(job.Dir, job.Paths)

	line := s.emitter.Emit(feed.LevelInfo, job.Module, "change detected")
	s.emitter.Emit(feed.LevelDebug, job.Module, fmt.Sprintf("changed: %s", strings.Join(job.Paths, ", ")))
	s.logger.Debug("scheduling build",
		slog.String("pass", pass.ID),
		slog.String("module", job.Module),
		slog.Int("paths", len(job.Paths)),
		slog.Int("commands", len(pass.Commands)))

	if len(pass.Commands) == 0 {
		s.emitter.Emit(feed.LevelDebug, job.Module, "no command, copy files")
		go func() {
			defer s.wg.Done()
			pass.finish(s.swap(job, line, nil))
		}()
		return pass
	}

	s.emitter.Emit(feed.LevelDebug, job.Module,
		fmt.Sprintf("running %s, then copy files", strings.Join(pass.Commands, ", ")))

	var g errgroup.Group
	commands := make([]*RunningCommand, 0, len(pass.Commands))
	for _, command := range pass.Commands {
		rc := s.start(job, command)
		commands = append(commands, rc)
		g.Go(func() error {
			_, err := rc.Result()
			return err
		})
	}

	go func() {
		defer s.wg.Done()
		// Every command is awaited; a failure does not cancel its siblings.
		_ = g.Wait()
		pass.finish(s.settle(job, line, commands))
	}()

	return pass
}

// start cancels the command registered for the same key and launches a
// new one in its place.
func (s *Scheduler) start(job Job, command string) *RunningCommand {
	ctx, cancel := context.WithCancel(s.ctx)
	rc := &RunningCommand{
		Key:    Key{Module: job.Module, Command: command},
		RunID:  id.Run(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if previous, ok := s.running.replace(rc); ok {
		s.emitter.Emit(feed.LevelDebug, job.Module, fmt.Sprintf("kill old process for %q", command))
		previous.cancel()
	}

	go func() {
		defer close(rc.done)
		defer cancel()
		rc.result, rc.err = runCommand(ctx, command, runOptions{
			dir:         job.Dir,
			outputLimit: s.opts.OutputLimit,
			waitDelay:   s.opts.WaitDelay,
		})
		s.running.release(rc)
	}()

	return rc
}

// settle classifies the finished commands of a pass and swaps on success.
func (s *Scheduler) settle(job Job, line int, commands []*RunningCommand) Outcome {
	results := make([]*Result, 0, len(commands))
	var failed []*RunningCommand
	superseded := false

	for _, rc := range commands {
		results = append(results, rc.result)
		switch {
		case rc.err == nil:
		case silent(rc.err):
			superseded = true
		default:
			failed = append(failed, rc)
		}
	}

	if superseded {
		s.emitter.Emit(feed.LevelDebug, job.Module, "old process killed, build superseded")
		return Outcome{Status: StatusSuperseded, Results: results}
	}

	if len(failed) > 0 {
		for _, rc := range failed {
			s.reportFailure(job.Module, rc)
		}
		if len(commands) > 1 {
			s.emitter.Emit(feed.LevelWarn, job.Module,
				fmt.Sprintf("%d of %d commands failed, results of the other commands are discarded",
					len(failed), len(commands)))
		}
		return Outcome{Status: StatusFailed, Results: results, Err: failed[0].err}
	}

	return s.swap(job, line, results)
}

// silent reports whether err is an expected outcome rather than a failure.
func silent(err error) bool {
	var domainErr *domainerrors.Error
	return domainerrors.As(err, &domainErr) && domainErr.Code.Silent()
}

// reportFailure surfaces a failed command and its captured output.
func (s *Scheduler) reportFailure(moduleName string, rc *RunningCommand) {
	s.emitter.Emit(feed.LevelError, moduleName, rc.err.Error())

	if rc.result == nil {
		return
	}
	if out := strings.TrimRight(string(rc.result.Stdout), "\n"); out != "" {
		s.emitter.Emit(feed.LevelWarn, moduleName, out)
	}
	if out := strings.TrimRight(string(rc.result.Stderr), "\n"); out != "" {
		s.emitter.Emit(feed.LevelError, moduleName, out)
	}
	if rc.result.Truncated {
		s.emitter.Emit(feed.LevelWarn, moduleName,
			fmt.Sprintf("output truncated to %d bytes per stream", s.opts.OutputLimit))
	}
}

// swap copies the module into the consumer and turns the pass's
// "change detected" line into the result.
func (s *Scheduler) swap(job Job, line int, results []*Result) Outcome {
	if s.swapper == nil {
		return Outcome{Status: StatusSwapped, Results: results}
	}

	// A swap that started is allowed to finish so Close leaves a
	// consistent target behind for the restore.
	swapped, err := s.swapper.Swap(context.WithoutCancel(s.ctx), job.Module, job.Dir)
	if err != nil {
		s.emitter.Emit(feed.LevelError, job.Module, fmt.Sprintf("swap failed: %v", err))
		return Outcome{Status: StatusSwapFailed, Results: results, Err: err}
	}

	s.emitter.Replace(line, feed.LevelInfo, job.Module, fmt.Sprintf("module swapped (%s)", swapped))
	return Outcome{Status: StatusSwapped, Results: results, Swap: swapped}
}

// Running returns the keys of the commands currently running.
func (s *Scheduler) Running() []Key {
	return s.running.keys()
}

// Close cancels every running command and waits for all passes, swaps
// included, to finish. Later passes finish immediately as superseded.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
