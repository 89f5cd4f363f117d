// Package pipeline implements the Creative Retrieval Pipeline (spec §2
// item 5, §4.4): a long-running worker that leases batches of archive
// IDs, drives a browser session to fetch each one's rendered snapshot and
// creative content, normalizes and hashes the results, uploads media to
// the object store, and durably records everything, chunk by chunk.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/adarchive/crcore/internal/browser"
	"github.com/adarchive/crcore/internal/config"
	"github.com/adarchive/crcore/internal/creative"
	"github.com/adarchive/crcore/internal/dbstore"
	"github.com/adarchive/crcore/internal/langdetect"
	"github.com/adarchive/crcore/internal/notify"
	"github.com/adarchive/crcore/internal/objstore"
)

// VideoFetcher downloads a video and reports its byte content, abstracting
// over net/http so tests do not need a live server (spec §4.4's video
// download step; no video-download library appears anywhere in the
// dependency pack, so this wraps net/http directly).
type VideoFetcher interface {
	FetchVideo(ctx context.Context, url string, maxBytes int64, timeout time.Duration) ([]byte, error)
}

// Pipeline is the CRP orchestrator. It owns the browser session, the batch
// and creative store clients, the object-store uploader, the notifier, and
// the language detector (spec §9: "Model as an orchestrator struct that
// composes owned children").
type Pipeline struct {
	batches      dbstore.BatchStore
	creatives    dbstore.CreativeStore
	uploader     *objstore.Uploader
	browser      *browser.Manager
	notifier     notify.Notifier
	langDetector langdetect.Detector
	videos       VideoFetcher
	limits       config.LimitsConfig

	stats stats
}

// New builds a Pipeline from its collaborators.
func New(
	batches dbstore.BatchStore,
	creatives dbstore.CreativeStore,
	uploader *objstore.Uploader,
	browserMgr *browser.Manager,
	notifier notify.Notifier,
	langDetector langdetect.Detector,
	videos VideoFetcher,
	limits config.LimitsConfig,
) *Pipeline {
	return &Pipeline{
		batches:      batches,
		creatives:    creatives,
		uploader:     uploader,
		browser:      browserMgr,
		notifier:     notifier,
		langDetector: langDetector,
		videos:       videos,
		limits:       limits,
	}
}

// Run is retreive_and_store_ad_creatives (spec §4.4): it leases batches
// and processes them in chunks until ctx is cancelled (operator interrupt,
// spec §5: "the current chunk in flight is abandoned, its batch is
// released, and the process exits cleanly") or an unhandled error occurs.
func (p *Pipeline) Run(ctx context.Context) error {
	p.stats.resetClock()
	numProcessedSinceBrowserReset := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		batch, ok, err := p.leaseOrWait(ctx)
		if err != nil {
			return fmt.Errorf("lease batch: %w", err)
		}
		if !ok {
			// Context was cancelled while waiting for work.
			return nil
		}

		done, err := p.runBatch(ctx, batch, &numProcessedSinceBrowserReset)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// runBatch processes one leased batch to completion, release, or a
// rate-limit pause. It logs stats once per committed chunk and once more
// on the way out, mirroring the original's "finally: self.log_stats()"
// around its batch-processing body (spec expansion, §4.4).
func (p *Pipeline) runBatch(ctx context.Context, batch creative.Batch, numProcessedSinceBrowserReset *int) (done bool, err error) {
	p.stats.currentBatchID = batch.BatchID
	log.Printf("pipeline: processing batch %d of %d archive snapshots in chunks of %d",
		batch.BatchID, len(batch.ArchiveIDs), p.limits.BatchSize)
	defer p.stats.log()

	chunks := creative.Chunks(batch.ArchiveIDs, p.limits.BatchSize)
	processed := 0
	var rateLimitErr *browser.RateLimitError
	var chunkErr error
	for _, chunk := range chunks {
		if ctx.Err() != nil {
			chunkErr = ctx.Err()
			break
		}
		if err := p.processChunk(ctx, chunk); err != nil {
			chunkErr = err
			break
		}
		processed += len(chunk)
		log.Printf("pipeline: processed %d of %d archive snapshots", processed, len(batch.ArchiveIDs))
		p.stats.log()
	}

	if chunkErr != nil {
		log.Printf("pipeline: releasing batch %d due to unhandled error: %v", batch.BatchID, chunkErr)
		// ctx may already be cancelled by an operator interrupt; the release
		// must still reach the store.
		if releaseErr := p.batches.ReleaseBatch(context.WithoutCancel(ctx), batch.BatchID); releaseErr != nil {
			return false, fmt.Errorf("release batch %d after error %v: %w", batch.BatchID, chunkErr, releaseErr)
		}

		if errors.As(chunkErr, &rateLimitErr) {
			p.handleRateLimit(ctx, rateLimitErr)
			return false, nil
		}
		if errors.Is(chunkErr, context.Canceled) || errors.Is(chunkErr, context.DeadlineExceeded) {
			return true, nil
		}
		return false, fmt.Errorf("process batch %d: %w", batch.BatchID, chunkErr)
	}

	if err := p.batches.CompleteBatch(ctx, batch.BatchID); err != nil {
		return false, fmt.Errorf("complete batch %d: %w", batch.BatchID, err)
	}

	*numProcessedSinceBrowserReset += len(batch.ArchiveIDs)
	if *numProcessedSinceBrowserReset >= p.limits.ResetBrowserAfterN {
		log.Printf("pipeline: processed %d snapshots since last browser reset (limit %d)",
			*numProcessedSinceBrowserReset, p.limits.ResetBrowserAfterN)
		if _, err := p.browser.Recycle(ctx); err != nil {
			return false, fmt.Errorf("recycle browser after %d snapshots: %w", *numProcessedSinceBrowserReset, err)
		}
		*numProcessedSinceBrowserReset = 0
	}
	return false, nil
}

// leaseOrWait blocks until a batch is available, sleeping
// limits.NoWorkSleep between polls (spec §4.4 step 1), or returns ok=false
// if ctx is cancelled first.
func (p *Pipeline) leaseOrWait(ctx context.Context) (creative.Batch, bool, error) {
	for {
		batch, ok, err := p.batches.LeaseBatch(ctx)
		if err != nil {
			return creative.Batch{}, false, err
		}
		if ok {
			return batch, true, nil
		}

		log.Printf("pipeline: no work available right now, sleeping %s", p.limits.NoWorkSleep)
		select {
		case <-ctx.Done():
			return creative.Batch{}, false, nil
		case <-time.After(p.limits.NoWorkSleep):
		}
		p.stats.resetClock()
	}
}

// handleRateLimit publishes an operator alert and sleeps the extractor's
// suggested cooldown, or the configured default if it suggested none
// (spec §4.4 step 5, §7).
func (p *Pipeline) handleRateLimit(ctx context.Context, rateLimitErr *browser.RateLimitError) {
	wait := p.limits.TooManyRequestsSleep
	if rateLimitErr.WaitBeforeNextBatch > 0 {
		wait = time.Duration(rateLimitErr.WaitBeforeNextBatch) * time.Second
	}

	msg := fmt.Sprintf(":rotating_light: pipeline rate limited (%s). sleeping %s.", rateLimitErr.Reason, wait)
	if err := p.notifier.Notify(ctx, msg); err != nil {
		log.Printf("pipeline: failed to publish rate-limit alert: %v", err)
	}
	log.Printf("pipeline: %s, sleeping %s", rateLimitErr.Error(), wait)

	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}
