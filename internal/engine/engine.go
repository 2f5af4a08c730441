// Package engine is the control loop that keeps the job registry in
// sync with the container fleet and fires jobs on schedule.
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/labelsched/labelsched/internal/executor"
	"github.com/labelsched/labelsched/internal/job"
	"github.com/labelsched/labelsched/internal/label"
	"github.com/labelsched/labelsched/internal/schedule"
	"github.com/labelsched/labelsched/pkg/docker"
)

// Dispatcher runs one job execution. Implementations must be safe for
// concurrent use; each fire runs on its own goroutine.
type Dispatcher interface {
	Execute(ctx context.Context, def job.Definition) executor.Record
}

// Engine owns the job registry. Run is its only writer: watcher
// events and schedule ticks are both handled on that single
// goroutine, so a reconciliation and a tick can never race on the
// registry. The one piece of state shared with exec workers is each
// entry's atomic Running flag.
type Engine struct {
	parser   *label.Parser
	eval     *schedule.Evaluator
	registry *job.Registry
	dispatch Dispatcher
	events   <-chan docker.Event
	tick     time.Duration
	logger   *zap.Logger

	// now is swapped out in tests.
	now func() time.Time

	workers sync.WaitGroup
}

func New(
	parser *label.Parser,
	eval *schedule.Evaluator,
	dispatch Dispatcher,
	events <-chan docker.Event,
	tick time.Duration,
	logger *zap.Logger,
) *Engine {
	if tick <= 0 {
		tick = time.Second
	}
	return &Engine{
		parser:   parser,
		eval:     eval,
		registry: job.NewRegistry(),
		dispatch: dispatch,
		events:   events,
		tick:     tick,
		logger:   logger,
		now:      time.Now,
	}
}

// Run processes watcher events and schedule ticks until ctx is
// cancelled or the event channel closes. It waits for in-flight
// executions before returning.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	defer e.workers.Wait()

	e.logger.Info("engine started", zap.Duration("tick_interval", e.tick))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine received context cancellation")
			return
		case ev, ok := <-e.events:
			if !ok {
				e.logger.Info("engine event channel closed")
				return
			}
			e.handleEvent(ctx, ev)
		case <-ticker.C:
			// Fire on wall-clock time, not on the tick that delivered
			// it: a late tick still evaluates against current time.
			e.tickOnce(ctx, e.now())
		}
	}
}

func (e *Engine) handleEvent(ctx context.Context, ev docker.Event) {
	switch ev.Action {
	case docker.ActionResync:
		e.resync(ev.Fleet)
	case docker.ActionStart, docker.ActionUpdate, docker.ActionUnpause:
		if ev.Container != nil {
			e.reconcile(*ev.Container)
		}
	case docker.ActionStop, docker.ActionDie, docker.ActionDestroy, docker.ActionPause:
		e.removeContainer(ev.ContainerID, string(ev.Action))
	}
}

// resync reconciles the whole fleet: every live container is diffed,
// and entries owned by containers that are no longer running are
// dropped. Used at startup and after every event stream reconnect.
func (e *Engine) resync(fleet []docker.Container) {
	live := make(map[string]struct{}, len(fleet))
	for _, c := range fleet {
		live[c.ID] = struct{}{}
	}

	for _, containerID := range e.registry.ContainerIDs() {
		if _, ok := live[containerID]; !ok {
			e.removeContainer(containerID, "resync")
		}
	}

	for _, c := range fleet {
		e.reconcile(c)
	}

	e.logger.Info("registry synced",
		zap.Int("containers", len(fleet)),
		zap.Int("jobs", e.registry.Len()),
	)
}

// reconcile diffs the desired job set for one container against the
// registry. Unchanged definitions are left alone, so an armed timer
// is never reset and a running execution is never disturbed by
// re-processing the same snapshot.
func (e *Engine) reconcile(c docker.Container) {
	defs, errs := e.parser.Parse(c.ID, c.Labels)
	for _, err := range errs {
		e.logger.Warn("invalid job definition",
			zap.String("container_id", job.ShortID(c.ID)),
			zap.String("container_name", c.Name),
			zap.Error(err),
		)
	}

	desired := make(map[job.Key]job.Definition, len(defs))
	for _, d := range defs {
		desired[d.Key()] = d
	}

	// Drop entries whose job disappeared or whose definition changed.
	// A changed definition starts over as a new entry: schedule state
	// does not carry across.
	for _, entry := range e.registry.ForContainer(c.ID) {
		d, ok := desired[entry.Def.Key()]
		if ok && d == entry.Def {
			continue
		}
		reason := "job removed"
		if ok {
			reason = "definition changed"
		}
		e.removeEntry(entry, reason)
	}

	for _, d := range defs {
		if _, exists := e.registry.Get(d.Key()); exists {
			continue
		}
		e.addEntry(d)
	}
}

func (e *Engine) addEntry(d job.Definition) {
	sched, err := schedule.Parse(d.Schedule)
	if err != nil {
		// The parser validated the expression already; reaching this
		// means label validation and scheduling disagree.
		e.logger.Error("rejected schedule after validation",
			zap.String("container_id", job.ShortID(d.ContainerID)),
			zap.String("job_name", d.Name),
			zap.Error(err),
		)
		return
	}

	entry := &job.Entry{Def: d, Sched: sched}
	entry.NextFire = e.eval.Next(sched, e.now())
	e.registry.Put(entry)

	e.logger.Info("job scheduled",
		zap.String("container_id", job.ShortID(d.ContainerID)),
		zap.String("job_name", d.Name),
		zap.String("schedule", d.Schedule),
		zap.String("command", d.Command),
		zap.Time("next_fire", entry.NextFire),
	)
}

// removeContainer drops every entry owned by a container, without
// reading its labels; they may be gone already.
func (e *Engine) removeContainer(containerID string, reason string) {
	for _, entry := range e.registry.ForContainer(containerID) {
		e.removeEntry(entry, reason)
	}
}

// removeEntry cancels the entry's armed timer. An in-flight execution
// is left to finish; it just will not be rescheduled.
func (e *Engine) removeEntry(entry *job.Entry, reason string) {
	e.registry.Remove(entry.Def.Key())
	e.logger.Info("job removed",
		zap.String("container_id", job.ShortID(entry.Def.ContainerID)),
		zap.String("job_name", entry.Def.Name),
		zap.String("reason", reason),
	)
}

// tickOnce fires every entry whose time has passed. Entries re-arm
// from current time, never from the missed boundary, so a descheduled
// process catches no backlog burst.
func (e *Engine) tickOnce(ctx context.Context, now time.Time) {
	for _, entry := range e.registry.Entries() {
		if entry.NextFire.After(now) {
			continue
		}
		due := entry.NextFire
		// Re-arm before dispatch; a single-flight rejection must not
		// cause schedule drift.
		entry.NextFire = e.eval.Next(entry.Sched, now)
		e.fire(ctx, entry, due)
	}
}

// fire hands an entry to the execution engine unless its previous run
// is still in flight. The CompareAndSwap is what makes two ticks
// unable to both dispatch the same entry.
func (e *Engine) fire(ctx context.Context, entry *job.Entry, due time.Time) {
	if !entry.Running.CompareAndSwap(false, true) {
		e.logger.Warn("skipping fire, previous execution still running",
			zap.String("container_id", job.ShortID(entry.Def.ContainerID)),
			zap.String("job_name", entry.Def.Name),
			zap.Time("due", due),
		)
		return
	}

	def := entry.Def
	e.workers.Add(1)
	go func() {
		defer e.workers.Done()
		defer entry.Running.Store(false)
		e.dispatch.Execute(ctx, def)
	}()
}

// JobCount reports the number of registered jobs. Not safe to call
// concurrently with Run; intended for startup logging and tests.
func (e *Engine) JobCount() int {
	return e.registry.Len()
}
