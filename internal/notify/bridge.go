package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/phrazzld/lumiere-api/internal/events"
	"github.com/phrazzld/lumiere-api/internal/redact"
	"github.com/phrazzld/lumiere-api/internal/task"
)

// Source answers status queries for the bridge.
type Source interface {
	Status(ctx context.Context, id string) (task.StatusView, error)
}

// ChangeFeed wakes the bridge as soon as a task record changes.
type ChangeFeed interface {
	Subscribe(taskID string, bufSize int) (<-chan events.TaskUpdated, func())
}

// BridgeConfig controls the push loop.
type BridgeConfig struct {
	// PollInterval is the time between status checks when nothing changes,
	// and the grace period before closing after a terminal snapshot.
	PollInterval time.Duration

	// MaxMissedPolls is how many consecutive "not found" results are
	// tolerated before the subscriber is told the task does not exist.
	MaxMissedPolls int

	// MaxPollErrors is how many consecutive source errors are tolerated
	// before the loop gives up.
	MaxPollErrors int
}

// DefaultBridgeConfig returns the standard push loop settings.
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		PollInterval:   500 * time.Millisecond,
		MaxMissedPolls: 5,
		MaxPollErrors:  10,
	}
}

// Bridge streams the status of one task to one subscriber.
type Bridge struct {
	source   Source
	notifier *Notifier
	feed     ChangeFeed
	config   BridgeConfig
	logger   *slog.Logger
}

// NewBridge creates a Bridge. feed may be nil, in which case only the poll
// interval drives the loop.
func NewBridge(source Source, notifier *Notifier, feed ChangeFeed, config BridgeConfig, logger *slog.Logger) *Bridge {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultBridgeConfig().PollInterval
	}
	return &Bridge{
		source:   source,
		notifier: notifier,
		feed:     feed,
		config:   config,
		logger:   logger.With("component", "status_bridge"),
	}
}

// Run pushes snapshots of task id to sub until the task reaches a terminal
// state, the task turns out not to exist, the subscriber goes away, or ctx is
// done. sub must already be attached to the notifier; it is always detached
// when Run returns.
func (b *Bridge) Run(ctx context.Context, id string, sub Subscriber) error {
	defer b.notifier.Detach(id, sub)

	logger := b.logger.With("task_id", id)

	var changes <-chan events.TaskUpdated
	if b.feed != nil {
		ch, cancel := b.feed.Subscribe(id, 0)
		defer cancel()
		changes = ch
	}

	ticker := time.NewTicker(b.config.PollInterval)
	defer ticker.Stop()

	var (
		last     task.StatusView
		pushed   bool
		lastPush time.Time
		pending  <-chan time.Time
		misses   int
		errs     int
	)

	for {
		select {
		case <-ctx.Done():
			logger.Debug("stream ended by caller")
			return nil
		case <-ticker.C:
		case <-pending:
			pending = nil
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
		}

		view, err := b.source.Status(ctx, id)
		if errors.Is(err, task.ErrTaskNotFound) {
			misses++
			if misses > b.config.MaxMissedPolls {
				logger.Info("task not found, ending stream", "polls", misses)
				if err := b.notifier.Send(ctx, id, sub, task.NotFoundView()); err == nil {
					_ = sub.Close(CloseNormal, "Task not found")
				}
				return nil
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			errs++
			logger.Warn("status lookup failed", "error", redact.Error(err), "consecutive_errors", errs)
			if errs > b.config.MaxPollErrors {
				return nil
			}
			continue
		}
		misses, errs = 0, 0

		if !pushed || !view.Equal(last) {
			// Progress within one task is pushed at most once per interval;
			// status transitions go out immediately.
			if pushed && isProgressUpdate(last, view) {
				if wait := b.config.PollInterval - time.Since(lastPush); wait > 0 {
					if pending == nil {
						pending = time.After(wait)
					}
					continue
				}
			}
			if err := b.notifier.Send(ctx, id, sub, view); err != nil {
				logger.Debug("subscriber gone", "error", err)
				return nil
			}
			last, pushed, lastPush = view, true, time.Now()
		}

		if view.Status.IsTerminal() {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(b.config.PollInterval):
			}
			if err := sub.Close(CloseNormal, "Task completed"); err != nil {
				logger.Debug("failed to close subscriber", "error", err)
			}
			logger.Info("stream finished", "status", view.Status)
			return nil
		}
	}
}

func isProgressUpdate(prev, next task.StatusView) bool {
	return prev.Status == task.StatusProcessing && next.Status == task.StatusProcessing
}
