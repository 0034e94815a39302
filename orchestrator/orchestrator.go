// Package orchestrator performs full bidirectional reconciliation: pulling
// the server's state into the local mirror and pushing local records up,
// entity by entity in referential dependency order.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/medistock/syncengine/entity"
	syncErrors "github.com/medistock/syncengine/errors"
	"github.com/medistock/syncengine/local"
	"github.com/medistock/syncengine/logging"
	"github.com/medistock/syncengine/remote"
)

// insertOnly marks kinds whose records never change after creation. Pulls
// and pushes for them only ever add; an existing copy on the other side is
// left alone.
var insertOnly = map[entity.Kind]bool{
	entity.KindSale:          true,
	entity.KindSaleItem:      true,
	entity.KindStockMovement: true,
}

// EntityResult reports the outcome for one entity kind. Err is set when the
// kind failed as a whole (the collection could not be fetched); failures on
// individual records are counted in Failed with their errors collected in
// Errs, and the remaining records are still processed.
type EntityResult struct {
	Kind    entity.Kind
	Applied int
	Skipped int
	Failed  int
	Errs    []error
	Err     error
}

// Report collects per-entity results for one direction of a full sync.
type Report struct {
	Results []EntityResult
}

// Failed returns the results that carry a kind-level or record-level error.
func (r Report) Failed() []EntityResult {
	var failed []EntityResult
	for _, res := range r.Results {
		if res.Err != nil || res.Failed > 0 {
			failed = append(failed, res)
		}
	}
	return failed
}

// Ok reports whether every entity kind completed.
func (r Report) Ok() bool {
	return len(r.Failed()) == 0
}

// Orchestrator wires the remote and local boundaries for full syncs.
type Orchestrator struct {
	remotes *remote.Registry
	locals  *local.Registry
	logger  *logging.Logger
}

// New creates an Orchestrator. Kinds missing a repository or a local store
// are skipped silently; the engine only reconciles what both sides expose.
func New(remotes *remote.Registry, locals *local.Registry, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{remotes: remotes, locals: locals, logger: logger}
}

// PullAll downloads every entity collection into the local mirror, in
// dependency order. A failing kind does not stop the ones after it.
func (o *Orchestrator) PullAll(ctx context.Context) Report {
	var report Report
	for _, kind := range entity.SyncOrder() {
		repo := o.remotes.For(kind)
		store := o.locals.For(kind)
		if repo == nil || store == nil {
			continue
		}

		res := o.pullKind(ctx, kind, repo, store)
		report.Results = append(report.Results, res)
		if res.Err != nil {
			o.logger.LogError(ctx, res.Err, "pull failed", slog.String("entity", kind.String()))
		}
	}
	return report
}

func (o *Orchestrator) pullKind(ctx context.Context, kind entity.Kind, repo remote.Repository, store local.Store) EntityResult {
	res := EntityResult{Kind: kind}

	records, err := repo.GetAll(ctx)
	if err != nil {
		res.Err = err
		return res
	}

	for id, payload := range records {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}

		if insertOnly[kind] {
			err = store.Insert(ctx, id, payload)
			if errors.Is(err, local.ErrExists) {
				res.Skipped++
				continue
			}
		} else {
			err = store.Upsert(ctx, id, payload)
		}
		if err != nil {
			// One bad record must not block the rest of the collection.
			err = syncErrors.NewStorageError(syncErrors.OpPull, err)
			o.logger.LogError(ctx, err, "pull record failed",
				slog.String("entity", kind.String()),
				slog.String("record_id", id))
			res.Failed++
			res.Errs = append(res.Errs, err)
			continue
		}
		res.Applied++
	}
	return res
}

// PushAll uploads every local collection to the server, in dependency
// order, continuing past failing kinds.
func (o *Orchestrator) PushAll(ctx context.Context) Report {
	var report Report
	for _, kind := range entity.SyncOrder() {
		repo := o.remotes.For(kind)
		store := o.locals.For(kind)
		if repo == nil || store == nil {
			continue
		}

		res := o.pushKind(ctx, kind, repo, store)
		report.Results = append(report.Results, res)
		if res.Err != nil {
			o.logger.LogError(ctx, res.Err, "push failed", slog.String("entity", kind.String()))
		}
	}
	return report
}

func (o *Orchestrator) pushKind(ctx context.Context, kind entity.Kind, repo remote.Repository, store local.Store) EntityResult {
	res := EntityResult{Kind: kind}

	records, err := store.GetAll(ctx)
	if err != nil {
		res.Err = syncErrors.NewStorageError(syncErrors.OpPush, err)
		return res
	}
	if len(records) == 0 {
		return res
	}

	// Insert-only kinds never overwrite what the server already holds.
	var existing map[string]struct{}
	if insertOnly[kind] {
		remoteRecords, err := repo.GetAll(ctx)
		if err != nil {
			res.Err = err
			return res
		}
		existing = make(map[string]struct{}, len(remoteRecords))
		for id := range remoteRecords {
			existing[id] = struct{}{}
		}
	}

	for id, payload := range records {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}

		if existing != nil {
			if _, ok := existing[id]; ok {
				res.Skipped++
				continue
			}
		}
		if err := repo.Upsert(ctx, id, payload); err != nil {
			o.logger.LogError(ctx, err, "push record failed",
				slog.String("entity", kind.String()),
				slog.String("record_id", id))
			res.Failed++
			res.Errs = append(res.Errs, err)
			continue
		}
		res.Applied++
	}
	return res
}

// SyncAll pulls then pushes, returning both reports.
func (o *Orchestrator) SyncAll(ctx context.Context) (pull, push Report) {
	pull = o.PullAll(ctx)
	push = o.PushAll(ctx)
	return pull, push
}
