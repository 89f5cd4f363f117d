package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adarchive/crcore/internal/browser"
	"github.com/adarchive/crcore/internal/creative"
	"github.com/adarchive/crcore/internal/objstore"
)

func newTestProcessPipeline() *Pipeline {
	uploader := objstore.NewUploader(newFakeObjStore())
	return New(nil, nil, uploader, nil, nil, nil, &fakeVideoFetcher{}, testLimits())
}

// TestProcessCreativesDropsWholeCreativeOnImageDecodeFailure mirrors the
// original's "except OSError: ... continue" (spec §8): a creative whose
// image cannot be hashed is dropped entirely, not just missing its image
// fields, while other creatives in the same snapshot are unaffected.
func TestProcessCreativesDropsWholeCreativeOnImageDecodeFailure(t *testing.T) {
	p := newTestProcessPipeline()

	creatives := []browser.Creative{
		{
			Body:    "first creative, bad image",
			HasBody: true,
			Image:   &browser.Image{URL: "http://example.com/bad.png", Data: []byte("not a real image")},
		},
		{
			Body:    "second creative, no image",
			HasBody: true,
		},
	}

	records := p.processCreatives(context.Background(), creative.ArchiveID(42), creatives)

	require.Len(t, records, 1)
	assert.Equal(t, "second creative, no image", records[0].BodyText)
	assert.Equal(t, 1, p.stats.imageDownloadFailure)
	assert.Equal(t, 0, p.stats.imageDownloadSuccess)
}

// TestProcessCreativesDedupesWithinChunk mirrors spec §8's duplicate
// unique-constraint scenario: two creatives for the same archive ID that
// resolve to the same four-tuple key must not both be emitted.
func TestProcessCreativesDedupesWithinChunk(t *testing.T) {
	p := newTestProcessPipeline()

	creatives := []browser.Creative{
		{Body: "same body text", HasBody: true},
		{Body: "same body text", HasBody: true},
	}

	records := p.processCreatives(context.Background(), creative.ArchiveID(7), creatives)

	require.Len(t, records, 1)
	assert.Equal(t, "same body text", records[0].BodyText)
}

// TestProcessCreativesKeepsDistinctRecords sanity-checks that records
// differing in their unique-constraint tuple both survive.
func TestProcessCreativesKeepsDistinctRecords(t *testing.T) {
	p := newTestProcessPipeline()

	creatives := []browser.Creative{
		{Body: "body one", HasBody: true},
		{Body: "body two", HasBody: true},
	}

	records := p.processCreatives(context.Background(), creative.ArchiveID(7), creatives)

	require.Len(t, records, 2)
}
