// pkg/docker/watcher.go
package docker

import (
	"context"
	"errors"
	"fmt"
	"time"

	dockerEvents "github.com/docker/docker/api/types/events"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/labelsched/labelsched/internal/types"
)

// Action is a container lifecycle notification kind.
type Action string

const (
	// ActionResync carries a full fleet listing: at startup and after
	// every reconnect, so state missed during a disconnect cannot
	// silently desync the registry.
	ActionResync Action = "resync"

	ActionStart   Action = "start"
	ActionUpdate  Action = "update"
	ActionUnpause Action = "unpause"
	ActionStop    Action = "stop"
	ActionDie     Action = "die"
	ActionDestroy Action = "destroy"
	ActionPause   Action = "pause"
)

// Event is one watcher notification to the reconciler. Container is
// set for actions that carry a fresh snapshot; Fleet only for resync.
type Event struct {
	Action      Action
	ContainerID string
	Container   *Container
	Fleet       []Container
}

// Runtime is the container runtime surface the watcher needs.
// *Client implements it.
type Runtime interface {
	ListRunning(ctx context.Context) ([]Container, error)
	Inspect(ctx context.Context, containerID string) (*Container, error)
	Subscribe(ctx context.Context) (<-chan dockerEvents.Message, <-chan error)
}

// Watcher consumes the Docker event stream and converts it into
// reconciler notifications. On stream failure it reconnects with
// exponential backoff and re-lists the fleet.
type Watcher struct {
	runtime Runtime
	config  *types.DockerConfig
	logger  *zap.Logger
	events  chan Event
	limiter *rate.Limiter
}

func NewWatcher(runtime Runtime, config *types.DockerConfig, logger *zap.Logger) *Watcher {
	inspectRate := config.InspectRate
	if inspectRate <= 0 {
		inspectRate = 20
	}
	burst := config.InspectBurst
	if burst <= 0 {
		burst = 10
	}
	return &Watcher{
		runtime: runtime,
		config:  config,
		logger:  logger,
		events:  make(chan Event, 100),
		limiter: rate.NewLimiter(rate.Limit(inspectRate), burst),
	}
}

// Events returns the notification channel. It is closed when Run
// returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run watches the runtime until ctx is cancelled. It returns a
// non-nil error only when the connection could not be re-established
// within the configured number of attempts; the caller should treat
// that as fatal rather than keep scheduling against stale state.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)

	backoff := w.initialBackoff()
	maxBackoff := w.config.ReconnectBackoffMax
	if maxBackoff < backoff {
		maxBackoff = 30 * time.Second
	}

	failures := 0
	for {
		synced, err := w.watch(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if synced {
			// The stream was established; start the retry budget over.
			failures = 0
			backoff = w.initialBackoff()
		}

		failures++
		if w.config.MaxReconnects > 0 && failures > w.config.MaxReconnects {
			return fmt.Errorf("docker event stream: giving up after %d attempts: %w", failures-1, err)
		}

		w.logger.Warn("docker event stream lost, reconnecting",
			zap.Error(err),
			zap.Int("attempt", failures),
			zap.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (w *Watcher) initialBackoff() time.Duration {
	if w.config.ReconnectBackoff > 0 {
		return w.config.ReconnectBackoff
	}
	return time.Second
}

// watch lists the fleet, emits a resync, then streams events until
// the stream breaks. synced reports whether the listing succeeded.
func (w *Watcher) watch(ctx context.Context) (synced bool, err error) {
	fleet, err := w.runtime.ListRunning(ctx)
	if err != nil {
		return false, err
	}

	w.logger.Debug("container fleet listed", zap.Int("containers", len(fleet)))
	if !w.send(ctx, Event{Action: ActionResync, Fleet: fleet}) {
		return true, ctx.Err()
	}

	msgs, errs := w.runtime.Subscribe(ctx)

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case err := <-errs:
			return true, err
		case msg := <-msgs:
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Watcher) handleMessage(ctx context.Context, msg dockerEvents.Message) {
	action := Action(msg.Action)
	containerID := msg.Actor.ID

	switch action {
	case ActionStart, ActionUpdate, ActionUnpause:
		// An event burst must not storm the inspect API.
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
		snapshot, err := w.runtime.Inspect(ctx, containerID)
		if errors.Is(err, ErrContainerGone) {
			// Raced with removal; report it as gone instead.
			w.send(ctx, Event{Action: ActionDestroy, ContainerID: containerID})
			return
		}
		if err != nil {
			w.logger.Warn("failed to inspect container after event",
				zap.String("action", string(action)),
				zap.String("container_id", shortID(containerID)),
				zap.Error(err),
			)
			return
		}
		w.send(ctx, Event{Action: action, ContainerID: containerID, Container: snapshot})

	case ActionStop, ActionDie, ActionDestroy, ActionPause:
		// Labels may already be unreadable; the reconciler removes all
		// jobs for the container without inspecting it.
		w.send(ctx, Event{Action: action, ContainerID: containerID})
	}
}

func (w *Watcher) send(ctx context.Context, ev Event) bool {
	select {
	case <-ctx.Done():
		return false
	case w.events <- ev:
		return true
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
