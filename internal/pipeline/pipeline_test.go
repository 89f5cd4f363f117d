package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adarchive/crcore/internal/browser"
	"github.com/adarchive/crcore/internal/config"
	"github.com/adarchive/crcore/internal/creative"
	"github.com/adarchive/crcore/internal/objstore"
)

// --- fakes -----------------------------------------------------------------

type fakeBatchStore struct {
	mu        sync.Mutex
	pending   []creative.Batch
	released  []int64
	completed []int64
}

func (f *fakeBatchStore) LeaseBatch(ctx context.Context) (creative.Batch, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return creative.Batch{}, false, nil
	}
	b := f.pending[0]
	f.pending = f.pending[1:]
	return b, true, nil
}

func (f *fakeBatchStore) ReleaseBatch(ctx context.Context, batchID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, batchID)
	return nil
}

func (f *fakeBatchStore) CompleteBatch(ctx context.Context, batchID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, batchID)
	return nil
}

type fakeCreativeStore struct {
	mu       sync.Mutex
	records  []creative.Record
	metadata []creative.SnapshotMetadata
}

func (f *fakeCreativeStore) UpsertCreativeRecords(ctx context.Context, records []creative.Record) error {
	return nil
}
func (f *fakeCreativeStore) UpsertSnapshotMetadata(ctx context.Context, rows []creative.SnapshotMetadata) error {
	return nil
}
func (f *fakeCreativeStore) PersistChunk(ctx context.Context, records []creative.Record, metadata []creative.SnapshotMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, records...)
	f.metadata = append(f.metadata, metadata...)
	return nil
}
func (f *fakeCreativeStore) ReadAllTextFingerprints(ctx context.Context) (map[uint64][]creative.ArchiveID, error) {
	return nil, nil
}
func (f *fakeCreativeStore) ReadAllImageFingerprints(ctx context.Context) (map[uint64][]creative.ArchiveID, error) {
	return nil, nil
}
func (f *fakeCreativeStore) UpsertTextClusterAssignments(ctx context.Context, assignments []creative.ClusterAssignment) error {
	return nil
}
func (f *fakeCreativeStore) UpsertImageClusterAssignments(ctx context.Context, assignments []creative.ClusterAssignment) error {
	return nil
}
func (f *fakeCreativeStore) ExistingTextClusterOf(ctx context.Context, archiveID creative.ArchiveID) (int, bool, error) {
	return 0, false, nil
}
func (f *fakeCreativeStore) ExistingImageClusterOf(ctx context.Context, archiveID creative.ArchiveID) (int, bool, error) {
	return 0, false, nil
}

type fakeObjStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjStore() *fakeObjStore { return &fakeObjStore{objects: make(map[string][]byte)} }

func (f *fakeObjStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[bucket+"/"+key]
	return ok, nil
}

func (f *fakeObjStore) Put(ctx context.Context, bucket, key string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = data
	return bucket + "/" + key, nil
}

type fakeExtractor struct {
	mu      sync.Mutex
	results map[int64]*browser.SnapshotResult
	errs    map[int64]error
	callLog []int64
}

func (e *fakeExtractor) RetrieveAd(ctx context.Context, archiveID int64) (*browser.SnapshotResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callLog = append(e.callLog, archiveID)
	if err, ok := e.errs[archiveID]; ok {
		return nil, err
	}
	if r, ok := e.results[archiveID]; ok {
		return r, nil
	}
	return &browser.SnapshotResult{}, nil
}

type fakeSession struct{}

func (fakeSession) Close(ctx context.Context) error { return nil }

func newFakeBrowserManager(extractor *fakeExtractor) *browser.Manager {
	return browser.NewManager(func(ctx context.Context) (*browser.Handle, error) {
		return &browser.Handle{Session: fakeSession{}, Extractor: extractor}, nil
	})
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(ctx context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

type fakeVideoFetcher struct {
	data []byte
	err  error
}

func (f *fakeVideoFetcher) FetchVideo(ctx context.Context, url string, maxBytes int64, timeout time.Duration) ([]byte, error) {
	return f.data, f.err
}

func testPNG(t *testing.T) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 9, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 9; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 20), uint8(y * 20), 0, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testLimits() config.LimitsConfig {
	return config.LimitsConfig{
		BatchSize:            20,
		MaxVideoDownloadSize: 512_000_000,
		ResetBrowserAfterN:   2000,
		TooManyRequestsSleep: time.Millisecond,
		NoWorkSleep:          time.Millisecond,
		VideoDownloadTimeout: time.Second,
	}
}

func newTestPipeline(t *testing.T, extractor *fakeExtractor, batches *fakeBatchStore, creatives *fakeCreativeStore, notifier *fakeNotifier) *Pipeline {
	uploader := objstore.NewUploader(newFakeObjStore())
	return New(batches, creatives, uploader, newFakeBrowserManager(extractor), notifier, nil, &fakeVideoFetcher{}, testLimits())
}

// --- tests -------------------------------------------------------------

func TestRunSingleArchiveHappyPath(t *testing.T) {
	imgBytes := testPNG(t)
	extractor := &fakeExtractor{
		results: map[int64]*browser.SnapshotResult{
			100: {
				Creatives: []browser.Creative{
					{Body: "hello world", HasBody: true, Image: &browser.Image{URL: "http://example.com/i.png", Data: imgBytes}},
				},
			},
		},
	}
	batches := &fakeBatchStore{pending: []creative.Batch{{BatchID: 1, ArchiveIDs: []creative.ArchiveID{100}}}}
	creatives := &fakeCreativeStore{}
	notifier := &fakeNotifier{}
	p := newTestPipeline(t, extractor, batches, creatives, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := p.Run(ctx)
	require.NoError(t, err)

	require.Len(t, creatives.metadata, 1)
	assert.Equal(t, creative.FetchStatusSuccess, creatives.metadata[0].FetchStatus)
	require.Len(t, creatives.records, 1)
	assert.NotEmpty(t, creatives.records[0].ImageSHA256)
	assert.NotEmpty(t, creatives.records[0].TextSimHash)
	assert.Contains(t, batches.completed, int64(1))
}

func TestRunRateLimitReleasesBatchAndNotifies(t *testing.T) {
	extractor := &fakeExtractor{
		errs: map[int64]error{
			1: &browser.RateLimitError{Reason: "too many requests", WaitBeforeNextBatch: 0},
		},
	}
	batches := &fakeBatchStore{pending: []creative.Batch{{BatchID: 2, ArchiveIDs: []creative.ArchiveID{1}}}}
	creatives := &fakeCreativeStore{}
	notifier := &fakeNotifier{}
	p := newTestPipeline(t, extractor, batches, creatives, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := p.Run(ctx)
	require.NoError(t, err)

	assert.Contains(t, batches.released, int64(2))
	assert.NotContains(t, batches.completed, int64(2))
	assert.NotEmpty(t, notifier.messages)
}

func TestRunNoContentFoundRecordsTerminalStatus(t *testing.T) {
	extractor := &fakeExtractor{
		errs: map[int64]error{5: browser.ErrNoContentFound},
	}
	batches := &fakeBatchStore{pending: []creative.Batch{{BatchID: 3, ArchiveIDs: []creative.ArchiveID{5}}}}
	creatives := &fakeCreativeStore{}
	notifier := &fakeNotifier{}
	p := newTestPipeline(t, extractor, batches, creatives, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := p.Run(ctx)
	require.NoError(t, err)

	require.Len(t, creatives.metadata, 1)
	assert.Equal(t, creative.FetchStatusNoContentFound, creatives.metadata[0].FetchStatus)
	assert.Contains(t, batches.completed, int64(3))
}

func TestRunCancellationReleasesNothingAfterCompletion(t *testing.T) {
	batches := &fakeBatchStore{}
	creatives := &fakeCreativeStore{}
	notifier := &fakeNotifier{}
	extractor := &fakeExtractor{}
	p := newTestPipeline(t, extractor, batches, creatives, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, batches.released)
	assert.Empty(t, batches.completed)
}
