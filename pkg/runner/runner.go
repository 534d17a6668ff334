package runner

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/olimci/kanna/pkg/catalog"
	"github.com/olimci/kanna/pkg/ledger"
	"github.com/olimci/kanna/pkg/mirror"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// FullVerificationInterval is how stale the last complete full-verification
// run may be before the next run re-verifies the whole catalog.
const FullVerificationInterval = 28 * 24 * time.Hour

const minSampleSize = 10

// Mode names the path a run took.
type Mode string

const (
	ModeSampleVerify Mode = "sample-verify"
	ModeFullSync     Mode = "full-sync"
)

// Source provides the catalog listing.
type Source interface {
	FetchListing(ctx context.Context) (catalog.Listing, error)
}

// EntitySyncer reconciles one entity against the local mirror.
type EntitySyncer interface {
	SyncEntity(ctx context.Context, ent *catalog.Entity, forceFull bool) (mirror.Result, error)
}

// Options are the run parameters.
type Options struct {
	BatchSize   int // entities per batch (default 10)
	Concurrency int // max in-flight entity syncs (default 10)
	Target      int // stop after this many updates (0 = run to completion)
	ForceFull   bool
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 10
	}
	return o
}

// Summary is the operator-visible result of one run.
type Summary struct {
	Mode         Mode
	Started      time.Time
	Finished     time.Time
	Processed    int
	Found        int
	UpdatedCards []string
	FullChecks   int
	APIUnchanged bool
	Resumed      bool
	Failures     int
}

// Runner drives one sync run: listing fetch, mode decision, entity
// processing, and the audit record.
type Runner struct {
	Source Source
	Syncer EntitySyncer
	Ledger ledger.Ledger
	Opts   Options

	// Logf receives per-batch progress and per-entity failure lines.
	// May be nil.
	Logf func(format string, args ...any)
}

func New(source Source, syncer EntitySyncer, l ledger.Ledger, opts Options) *Runner {
	return &Runner{
		Source: source,
		Syncer: syncer,
		Ledger: l,
		Opts:   opts.withDefaults(),
	}
}

func (r *Runner) logf(format string, args ...any) {
	if r.Logf != nil {
		r.Logf(format, args...)
	}
}

// Run executes the state machine: FETCH_LISTING, DECIDE_MODE, then either
// SAMPLE_VERIFY or FULL_SYNC, then RECORD. Only the listing fetch and the
// final ledger append are run-level failures; everything per-entity is
// contained and reported in the summary.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	start := time.Now()

	listing, err := r.Source.FetchListing(ctx)
	if err != nil {
		return Summary{}, err
	}

	apiHash := listing.Signature.String()
	lastHash := r.Ledger.LastAPIHash()
	unchanged := lastHash != "" && apiHash == lastHash

	forceFull := r.Opts.ForceFull || r.fullVerificationDue(start)

	// A forced verification starts from scratch; fullSync itself discards
	// checkpoints taken against a different listing.
	if forceFull {
		if err := r.Ledger.ClearCheckpoint(); err != nil {
			r.logf("warning: clear stale checkpoint: %v", err)
		}
	}

	var summary Summary
	if unchanged && !forceFull {
		summary = r.sampleVerify(ctx, listing, start)
	} else {
		summary = r.fullSync(ctx, listing, start, forceFull)
		summary.APIUnchanged = unchanged
	}
	summary.Finished = time.Now()

	rec := ledger.NewRunRecord(
		start, summary.Finished,
		summary.Processed, summary.Found,
		summary.UpdatedCards,
		apiHash, summary.APIUnchanged,
		summary.FullChecks,
	)
	if err := r.Ledger.Append(rec); err != nil {
		return summary, fmt.Errorf("persist run record: %w", err)
	}

	if err := r.Ledger.ClearCheckpoint(); err != nil {
		r.logf("warning: clear checkpoint: %v", err)
	}

	return summary, nil
}

// fullVerificationDue reports whether the whole catalog must be re-verified
// with full signatures: no complete verified run on record, an unparsable
// record, or one that is FullVerificationInterval or more in the past.
func (r *Runner) fullVerificationDue(now time.Time) bool {
	last, ok := r.Ledger.LastFullVerification()
	if !ok {
		return true
	}
	return now.Sub(last) >= FullVerificationInterval
}

// sampleVerify integrity-checks a random subset when nothing upstream is
// believed to have changed: max(5% of total, 10) entities, sequentially,
// every check forced to full signatures.
func (r *Runner) sampleVerify(ctx context.Context, listing catalog.Listing, start time.Time) Summary {
	entities := listing.Entities
	total := len(entities)

	size := total * 5 / 100
	if size < minSampleSize {
		size = minSampleSize
	}
	if size > total {
		size = total
	}

	summary := Summary{
		Mode:         ModeSampleVerify,
		Started:      start,
		Found:        total,
		APIUnchanged: true,
		UpdatedCards: []string{},
	}

	r.logf("Catalog unchanged; verifying a sample of %d/%d cards...", size, total)

	for _, idx := range rand.Perm(total)[:size] {
		ent := &entities[idx]
		res, err := r.Syncer.SyncEntity(ctx, ent, true)
		summary.FullChecks += res.FullChecks
		summary.Processed++
		if err != nil {
			summary.Failures++
			r.logf("Error processing card %s: %v", ent.Name, err)
			continue
		}
		if res.Updated {
			summary.UpdatedCards = append(summary.UpdatedCards, res.Name)
		}
	}

	return summary
}

// fullSync processes the whole listing in batches: batches strictly in
// listing order, entities within a batch concurrent behind the admission
// gate. A checkpoint is saved after every batch so an interrupted run can
// resume on the same listing.
func (r *Runner) fullSync(ctx context.Context, listing catalog.Listing, start time.Time, forceFull bool) Summary {
	entities := listing.Entities
	total := len(entities)
	apiHash := listing.Signature.String()

	summary := Summary{
		Mode:         ModeFullSync,
		Started:      start,
		Found:        total,
		UpdatedCards: []string{},
	}

	startIndex := 0
	carriedUpdates := 0
	sessionID := uuid.NewString()

	if cp := r.Ledger.ResumeState(); cp != nil {
		if cp.APIHash == apiHash && cp.LastIndex > 0 && cp.LastIndex < total {
			startIndex = cp.LastIndex
			carriedUpdates = cp.FoundCount
			summary.Resumed = true
			if cp.SessionID != "" {
				sessionID = cp.SessionID
			}
			r.logf("Resuming at card %d/%d", startIndex, total)
		} else if err := r.Ledger.ClearCheckpoint(); err != nil {
			r.logf("warning: clear stale checkpoint: %v", err)
		}
	}

	r.logf("Processing %d cards in batches of %d...", total-startIndex, r.Opts.BatchSize)

	gate := semaphore.NewWeighted(int64(r.Opts.Concurrency))

	for i := startIndex; i < total; i += r.Opts.BatchSize {
		end := i + r.Opts.BatchSize
		if end > total {
			end = total
		}

		updated, checks, failures := r.processBatch(ctx, entities[i:end], forceFull, gate)
		summary.UpdatedCards = append(summary.UpdatedCards, updated...)
		summary.FullChecks += checks
		summary.Failures += failures
		summary.Processed = end

		r.logf("Processed %d/%d cards. Added or updated %d cards.", end, total, len(updated))

		cp := ledger.Checkpoint{
			LastIndex:   end,
			APIHash:     apiHash,
			TargetCount: r.Opts.Target,
			FoundCount:  carriedUpdates + len(summary.UpdatedCards),
			SessionID:   sessionID,
		}
		if err := r.Ledger.SaveCheckpoint(cp); err != nil {
			r.logf("warning: save checkpoint: %v", err)
		}

		if r.Opts.Target > 0 && carriedUpdates+len(summary.UpdatedCards) >= r.Opts.Target {
			break
		}
	}

	return summary
}

// processBatch runs one batch's entities concurrently behind the admission
// gate. Per-entity failures are contained: logged, counted, treated as no
// update.
func (r *Runner) processBatch(ctx context.Context, batch []catalog.Entity, forceFull bool, gate *semaphore.Weighted) ([]string, int, int) {
	var (
		mu       sync.Mutex
		updated  []string
		checks   int
		failures int
	)

	var g errgroup.Group
	for i := range batch {
		ent := &batch[i]
		g.Go(func() error {
			if err := gate.Acquire(ctx, 1); err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
				r.logf("Error processing card %s: %v", ent.Name, err)
				return nil
			}
			defer gate.Release(1)

			res, err := r.Syncer.SyncEntity(ctx, ent, forceFull)

			mu.Lock()
			defer mu.Unlock()
			checks += res.FullChecks
			if err != nil {
				failures++
				r.logf("Error processing card %s: %v", ent.Name, err)
				return nil
			}
			if res.Updated {
				updated = append(updated, res.Name)
			}
			return nil
		})
	}
	_ = g.Wait()

	return updated, checks, failures
}
