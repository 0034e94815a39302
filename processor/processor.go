// Package processor drains the sync queue against the remote backend:
// batching, conflict resolution, retry bookkeeping and progress events.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medistock/syncengine/entity"
	syncErrors "github.com/medistock/syncengine/errors"
	"github.com/medistock/syncengine/local"
	"github.com/medistock/syncengine/logging"
	"github.com/medistock/syncengine/queue"
	"github.com/medistock/syncengine/remote"
	"github.com/medistock/syncengine/resolve"
	"github.com/medistock/syncengine/retry"
)

// Processor drains the queue. Only one run can be active at a time;
// concurrent Process calls return immediately.
type Processor struct {
	queue    *queue.Store
	remotes  *remote.Registry
	locals   *local.Registry
	resolver *resolve.Resolver
	retry    retry.Config
	logger   *logging.Logger

	online     func() bool
	configured func() bool
	now        func() int64
	newID      func() string

	events chan Event

	mu      sync.Mutex
	running bool
}

// Option configures a Processor.
type Option func(*Processor)

// WithOnlineCheck sets the connectivity gate consulted before each run.
func WithOnlineCheck(fn func() bool) Option {
	return func(p *Processor) {
		p.online = fn
	}
}

// WithConfiguredCheck sets the remote-credentials gate consulted before
// each run.
func WithConfiguredCheck(fn func() bool) Option {
	return func(p *Processor) {
		p.configured = fn
	}
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(p *Processor) {
		p.retry = cfg
	}
}

// WithLogger sets the processor's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// New creates a Processor over the given queue and boundaries.
func New(q *queue.Store, remotes *remote.Registry, locals *local.Registry, resolver *resolve.Resolver, opts ...Option) *Processor {
	p := &Processor{
		queue:      q,
		remotes:    remotes,
		locals:     locals,
		resolver:   resolver,
		retry:      retry.DefaultConfig,
		logger:     logging.Default(),
		online:     func() bool { return true },
		configured: func() bool { return true },
		now:        func() int64 { return time.Now().UnixMilli() },
		newID:      uuid.NewString,
		events:     make(chan Event, 64),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Events returns the processor's event stream. Events are dropped rather
// than blocking a run when no one is listening.
func (p *Processor) Events() <-chan Event {
	return p.events
}

func (p *Processor) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		p.logger.Debug("event dropped, channel full", slog.String("event", fmt.Sprintf("%T", ev)))
	}
}

// runCounters tracks what one run did.
type runCounters struct {
	processed int
	success   int
	failed    int
	conflicts int
}

// Process drains the queue once. It returns nil without doing anything
// when another run is active, when the device is offline, or when the
// remote backend is not configured.
func (p *Processor) Process(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		p.logger.Debug("sync run already active, skipping")
		return nil
	}
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	if !p.online() {
		p.emit(CannotProcess{Reason: "device is offline"})
		return nil
	}
	if !p.configured() {
		p.emit(CannotProcess{Reason: "remote backend is not configured"})
		return nil
	}

	p.emit(ProcessingStarted{})
	counters, err := p.drain(ctx)
	if err != nil {
		if ctx.Err() != nil {
			p.emit(ProcessingCancelled{Processed: counters.processed})
		} else {
			p.emit(ProcessingError{Err: err})
		}
		return err
	}

	if err := p.queue.DeleteSynced(ctx); err != nil {
		p.logger.LogError(ctx, err, "synced sweep failed")
	}

	p.emit(ProcessingCompleted{
		Processed: counters.processed,
		Success:   counters.success,
		Failed:    counters.failed,
		Conflicts: counters.conflicts,
	})
	return nil
}

// drain walks through pending batches, visiting every PENDING item once.
// The cursor pages past already-visited items so an item that falls back to
// PENDING after a failed attempt is neither retried in this run nor allowed
// to starve the items queued behind it.
func (p *Processor) drain(ctx context.Context) (runCounters, error) {
	var counters runCounters

	var (
		cursorAt int64
		cursorID string
		visited  bool
	)

	for {
		var (
			batch []queue.Item
			err   error
		)
		if visited {
			batch, err = p.queue.PendingBatchAfter(ctx, p.retry.BatchSize, cursorAt, cursorID)
		} else {
			batch, err = p.queue.PendingBatch(ctx, p.retry.BatchSize)
		}
		if err != nil {
			return counters, err
		}
		if len(batch) == 0 {
			return counters, nil
		}

		for i := range batch {
			item := &batch[i]
			cursorAt, cursorID = item.CreatedAt, item.ID
			visited = true

			if err := ctx.Err(); err != nil {
				return counters, err
			}

			throttle := p.processItem(ctx, item, &counters)
			if throttle > 0 {
				if err := p.sleep(ctx, throttle); err != nil {
					return counters, err
				}
			}
		}
	}
}

// processItem handles one queue item and returns a throttle delay to apply
// before the next item after a retryable failure.
func (p *Processor) processItem(ctx context.Context, item *queue.Item, counters *runCounters) time.Duration {
	counters.processed++
	logger := p.logger.WithComponent("processor")

	obsolete, err := p.isObsolete(ctx, item)
	if err != nil {
		return p.fail(ctx, item, counters, err)
	}
	if obsolete {
		// A later DELETE supersedes this mutation; drop it unsent. Skips
		// count as processed but neither succeed nor fail.
		if err := p.queue.DeleteByID(ctx, item.ID); err != nil {
			logger.LogError(ctx, err, "drop obsolete item failed", slog.String("item_id", item.ID))
		}
		return 0
	}

	if err := p.queue.UpdateStatus(ctx, item.ID, queue.StatusInProgress); err != nil {
		return p.fail(ctx, item, counters, err)
	}

	repo := p.remotes.For(item.Kind)
	if repo == nil {
		return p.fail(ctx, item, counters, syncErrors.NewUnsupportedEntityError(syncErrors.OpProcess, item.Kind.String()))
	}

	remotePayload, err := repo.GetByID(ctx, item.EntityID)
	if err != nil {
		return p.fail(ctx, item, counters, err)
	}

	remoteUpdatedAt := extractUpdatedAt(remotePayload)

	if resolve.DetectConflict(item.LastKnownRemoteUpdatedAt, remoteUpdatedAt) {
		return p.handleConflict(ctx, item, remotePayload, counters)
	}

	if err := p.dispatch(ctx, repo, item, item.Payload); err != nil {
		return p.fail(ctx, item, counters, err)
	}
	p.succeed(ctx, item, counters)
	return 0
}

// isObsolete reports whether a later pending DELETE makes this item moot.
func (p *Processor) isObsolete(ctx context.Context, item *queue.Item) (bool, error) {
	if item.Op == queue.OpDelete {
		return false, nil
	}
	siblings, err := p.queue.ByEntity(ctx, item.Kind, item.EntityID)
	if err != nil {
		return false, err
	}
	for i := range siblings {
		if supersedes(&siblings[i], item) {
			return true, nil
		}
	}
	return false, nil
}

// supersedes reports whether sib is a pending DELETE enqueued strictly
// after item. Equal timestamps never obsolete each other.
func supersedes(sib, item *queue.Item) bool {
	return sib.ID != item.ID &&
		sib.Op == queue.OpDelete &&
		sib.Status == queue.StatusPending &&
		sib.CreatedAt > item.CreatedAt
}

func (p *Processor) handleConflict(ctx context.Context, item *queue.Item, remotePayload json.RawMessage, counters *runCounters) time.Duration {
	result := p.resolver.Resolve(item.Kind, item.Payload, remotePayload)
	repo := p.remotes.For(item.Kind)
	logger := p.logger.WithComponent("processor")

	logger.Info("conflict detected",
		"entity", item.Kind.String(),
		"entity_id", item.EntityID,
		"strategy", result.Strategy.String())

	switch result.Strategy {
	case resolve.StrategyLocalWins:
		if err := p.dispatch(ctx, repo, item, item.Payload); err != nil {
			return p.fail(ctx, item, counters, err)
		}

	case resolve.StrategyRemoteWins:
		if err := p.applyLocally(ctx, item.Kind, item.EntityID, remotePayload); err != nil {
			return p.fail(ctx, item, counters, err)
		}

	case resolve.StrategyMerge:
		if err := repo.Upsert(ctx, item.EntityID, result.MergedPayload); err != nil {
			return p.fail(ctx, item, counters, err)
		}
		if err := p.applyLocally(ctx, item.Kind, item.EntityID, result.MergedPayload); err != nil {
			return p.fail(ctx, item, counters, err)
		}

	case resolve.StrategyAskUser:
		if err := p.queue.UpdateStatus(ctx, item.ID, queue.StatusConflict); err != nil {
			return p.fail(ctx, item, counters, err)
		}
		counters.conflicts++
		p.emit(ConflictDetected{Conflict: resolve.NewUserConflict(item, remotePayload)})
		return 0

	case resolve.StrategyKeepBoth:
		if err := p.keepBoth(ctx, repo, item, remotePayload); err != nil {
			return p.fail(ctx, item, counters, err)
		}
	}

	p.succeed(ctx, item, counters)
	return 0
}

// keepBoth gives the local version a fresh identity, pushes it as a new
// record and restores the remote version under the original id.
func (p *Processor) keepBoth(ctx context.Context, repo remote.Repository, item *queue.Item, remotePayload json.RawMessage) error {
	newID := p.newID()
	renamed, err := rewriteID(item.Payload, newID)
	if err != nil {
		return syncErrors.NewValidationError(syncErrors.OpResolve, fmt.Errorf("rewrite id: %w", err))
	}
	if err := repo.Upsert(ctx, newID, renamed); err != nil {
		return err
	}
	if err := p.applyLocally(ctx, item.Kind, newID, renamed); err != nil {
		return err
	}
	return p.applyLocally(ctx, item.Kind, item.EntityID, remotePayload)
}

// dispatch sends the item's own operation to the server. INSERT and UPDATE
// share the idempotent upsert.
func (p *Processor) dispatch(ctx context.Context, repo remote.Repository, item *queue.Item, payload json.RawMessage) error {
	switch item.Op {
	case queue.OpInsert, queue.OpUpdate:
		return repo.Upsert(ctx, item.EntityID, payload)
	case queue.OpDelete:
		return repo.Delete(ctx, item.EntityID)
	}
	return syncErrors.NewValidationError(syncErrors.OpProcess, fmt.Errorf("unknown operation %q", item.Op))
}

// applyLocally mirrors a server-side outcome into the local store. A kind
// without a local store is fine; the caller only mirrors opportunistically.
func (p *Processor) applyLocally(ctx context.Context, kind entity.Kind, id string, payload json.RawMessage) error {
	store := p.locals.For(kind)
	if store == nil {
		return nil
	}
	if payload == nil {
		err := store.Delete(ctx, id)
		if err == local.ErrNotFound {
			return nil
		}
		return err
	}
	return store.Upsert(ctx, id, payload)
}

func (p *Processor) succeed(ctx context.Context, item *queue.Item, counters *runCounters) {
	if err := p.queue.DeleteByID(ctx, item.ID); err != nil {
		p.logger.LogError(ctx, err, "remove synced item failed", slog.String("item_id", item.ID))
	}
	counters.success++
	p.emit(ItemSynced{ItemID: item.ID, Kind: item.Kind, EntityID: item.EntityID})
}

// fail records a failed attempt. Every failure travels the retry path;
// once the budget is spent the item parks as FAILED for manual retry. The
// returned delay throttles the rest of the run after each failure that
// stays in the retry budget, so a struggling backend is not hammered.
func (p *Processor) fail(ctx context.Context, item *queue.Item, counters *runCounters, cause error) time.Duration {
	newCount := item.RetryCount + 1
	willRetry := p.retry.ShouldRetry(newCount)

	status := queue.StatusPending
	if !willRetry {
		status = queue.StatusFailed
		counters.failed++
	}
	if err := p.queue.UpdateStatusWithRetry(ctx, item.ID, status, p.now(), cause.Error()); err != nil {
		p.logger.LogError(ctx, err, "record attempt failed", slog.String("item_id", item.ID))
	}

	p.logger.LogError(ctx, cause, "sync item failed",
		slog.String("item_id", item.ID),
		slog.String("entity", item.Kind.String()),
		slog.Int("retry_count", newCount),
		slog.Bool("will_retry", willRetry))

	p.emit(ItemFailed{
		ItemID:    item.ID,
		Kind:      item.Kind,
		EntityID:  item.EntityID,
		Err:       cause,
		WillRetry: willRetry,
	})

	// Every failure heading back to PENDING throttles the rest of the run,
	// not just the retryable ones.
	if willRetry {
		return p.retry.Delay(newCount)
	}
	return 0
}

func (p *Processor) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ResolveConflict applies a user's decision to a CONFLICT item. The item
// is removed from the queue regardless of the chosen strategy.
func (p *Processor) ResolveConflict(ctx context.Context, itemID string, strategy resolve.Strategy, mergedPayload json.RawMessage) error {
	item, err := p.queue.ByID(ctx, itemID)
	if err != nil {
		return err
	}

	repo := p.remotes.For(item.Kind)
	if repo == nil {
		return syncErrors.NewUnsupportedEntityError(syncErrors.OpResolve, item.Kind.String())
	}

	switch strategy {
	case resolve.StrategyLocalWins:
		err = p.dispatch(ctx, repo, item, item.Payload)

	case resolve.StrategyRemoteWins:
		var remotePayload json.RawMessage
		remotePayload, err = repo.GetByID(ctx, item.EntityID)
		if err == nil {
			err = p.applyLocally(ctx, item.Kind, item.EntityID, remotePayload)
		}

	case resolve.StrategyMerge:
		if mergedPayload == nil {
			return syncErrors.NewValidationError(syncErrors.OpResolve, fmt.Errorf("merge resolution requires a payload"))
		}
		err = repo.Upsert(ctx, item.EntityID, mergedPayload)
		if err == nil {
			err = p.applyLocally(ctx, item.Kind, item.EntityID, mergedPayload)
		}

	case resolve.StrategyKeepBoth:
		var remotePayload json.RawMessage
		remotePayload, err = repo.GetByID(ctx, item.EntityID)
		if err == nil {
			err = p.keepBoth(ctx, repo, item, remotePayload)
		}

	default:
		err = syncErrors.NewValidationError(syncErrors.OpResolve, fmt.Errorf("unknown strategy %v", strategy))
	}

	// The user has decided; the queue item is spent either way.
	if delErr := p.queue.DeleteByID(ctx, itemID); delErr != nil {
		p.logger.LogError(ctx, delErr, "remove resolved item failed", slog.String("item_id", itemID))
	}
	return err
}

// RetryFailed resets every FAILED item to PENDING and returns how many
// were reset. The caller triggers a new run afterwards.
func (p *Processor) RetryFailed(ctx context.Context) (int64, error) {
	return p.queue.UpdateAllStatus(ctx, queue.StatusFailed, queue.StatusPending)
}

func extractUpdatedAt(payload json.RawMessage) *int64 {
	if len(payload) == 0 {
		return nil
	}
	var holder struct {
		UpdatedAt *int64 `json:"updated_at"`
	}
	if err := json.Unmarshal(payload, &holder); err != nil {
		return nil
	}
	return holder.UpdatedAt
}

func rewriteID(payload json.RawMessage, id string) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	idJSON, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	fields["id"] = idJSON
	return json.Marshal(fields)
}
