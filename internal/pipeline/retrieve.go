package pipeline

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/adarchive/crcore/internal/browser"
	"github.com/adarchive/crcore/internal/creative"
)

// retrieveAd is retrieve_ad (spec §4.4, §4.5): fetch one archive id's
// snapshot, retrying once through a freshly recycled browser session on a
// recoverable browser error, and mapping the outcome to a
// SnapshotFetchStatus (UNKNOWN for a generic fetch failure).
func (p *Pipeline) retrieveAd(ctx context.Context, archiveID creative.ArchiveID) (*browser.SnapshotResult, creative.FetchStatus, error) {
	handle, err := p.browser.Current(ctx)
	if err != nil {
		return nil, creative.FetchStatusUnknown, err
	}

	log.Printf("pipeline: retrieving creatives for archive id %d", archiveID)
	result, err := handle.Extractor.RetrieveAd(ctx, int64(archiveID))
	if err != nil && browser.IsRecoverable(err) {
		log.Printf("pipeline: browser error (%v) for archive id %d, resetting session", err, archiveID)
		handle, err = p.browser.Recycle(ctx)
		if err != nil {
			return nil, creative.FetchStatusUnknown, err
		}
		result, err = handle.Extractor.RetrieveAd(ctx, int64(archiveID))
	}

	if err != nil {
		return p.classifyFetchError(archiveID, err)
	}

	if len(result.Creatives) > 0 {
		return result, creative.FetchStatusSuccess, nil
	}
	log.Printf("pipeline: unable to find ad creative(s) for archive id %d", archiveID)
	return result, creative.FetchStatusNoCreatives, nil
}

// classifyFetchError maps an Extractor error to a terminal status (spec
// §4.5). A *browser.RateLimitError is propagated unmapped; any other
// unrecognized error is logged, counted as a fetch failure, and recorded
// as UNKNOWN with a nil error so the chunk carries on.
func (p *Pipeline) classifyFetchError(archiveID creative.ArchiveID, err error) (*browser.SnapshotResult, creative.FetchStatus, error) {
	var rateLimitErr *browser.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return nil, creative.FetchStatusUnknown, err
	}

	switch {
	case errors.Is(err, browser.ErrNoContentFound):
		log.Printf("pipeline: no content found for archive id %d", archiveID)
		return nil, creative.FetchStatusNoContentFound, nil
	case errors.Is(err, browser.ErrInvalidArchiveID):
		return nil, creative.FetchStatusInvalidID, nil
	case errors.Is(err, browser.ErrAgeRestricted):
		return nil, creative.FetchStatusAgeRestricted, nil
	case errors.Is(err, browser.ErrIPViolation):
		return nil, creative.FetchStatusIPViolation, nil
	case errors.Is(err, browser.ErrPermanentlyUnavailable):
		return nil, creative.FetchStatusPermanentlyUnavailable, nil
	default:
		log.Printf("pipeline: fetch failed for archive id %d: %v", archiveID, err)
		p.stats.snapshotsFetchFailed++
		return nil, creative.FetchStatusUnknown, nil
	}
}

// processChunk is process_archive_ids (spec §4.4 step 2): retrieve every
// archive id in the chunk, normalize and persist the results atomically.
func (p *Pipeline) processChunk(ctx context.Context, archiveIDs []creative.ArchiveID) error {
	metadata := make([]creative.SnapshotMetadata, 0, len(archiveIDs))
	var records []creative.Record

	for _, archiveID := range archiveIDs {
		result, status, err := p.retrieveAd(ctx, archiveID)
		if err != nil {
			return err
		}

		metadata = append(metadata, creative.SnapshotMetadata{
			ArchiveID:   archiveID,
			FetchTime:   time.Now(),
			FetchStatus: status,
		})
		p.stats.snapshotsProcessed++

		if result == nil {
			p.stats.snapshotsWithoutCreatives++
			continue
		}

		if len(result.ScreenshotPNG) > 0 {
			if err := p.storeScreenshot(ctx, archiveID, result.ScreenshotPNG); err != nil {
				log.Printf("pipeline: failed to store screenshot for archive id %d: %v", archiveID, err)
			}
		}

		if len(result.Creatives) == 0 {
			p.stats.snapshotsWithoutCreatives++
			continue
		}

		newRecords := p.processCreatives(ctx, archiveID, result.Creatives)
		p.stats.creativesFound += len(newRecords)
		records = append(records, newRecords...)
	}

	return p.creatives.PersistChunk(ctx, records, metadata)
}
