package pipeline

import (
	"log"
	"time"
)

// stats holds the observability counters the Creative Retrieval Pipeline
// logs periodically (spec §4.4: "Observability counters (incremented,
// logged periodically): snapshots processed, fetch failures, creatives
// found, snapshots without creatives, image/video download successes and
// failures, image/video uploads, average seconds per creative, current
// batch id.").
type stats struct {
	snapshotsProcessed        int
	snapshotsFetchFailed      int
	creativesFound            int
	snapshotsWithoutCreatives int
	imageDownloadSuccess      int
	imageDownloadFailure      int
	imageUploaded             int
	videoDownloadSuccess      int
	videoDownloadFailure      int
	videoUploaded             int
	currentBatchID            int64
	startTime                 time.Time
}

func (s *stats) resetClock() {
	s.startTime = time.Now()
}

func (s *stats) secondsElapsed() float64 {
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime).Seconds()
}

func (s *stats) log() {
	elapsed := s.secondsElapsed()
	avgPerCreative := elapsed / float64(max1(s.creativesFound))
	log.Printf(
		"pipeline: processed %d archive snapshots in %.0f seconds.\n"+
			"failed to fetch %d archive snapshots.\n"+
			"ad creatives found: %d\n"+
			"archive snapshots without ad creative found: %d\n"+
			"image downloads successful: %d\n"+
			"image downloads failed: %d\n"+
			"images uploaded: %d\n"+
			"video downloads successful: %d\n"+
			"video downloads failed: %d\n"+
			"videos uploaded: %d\n"+
			"average time spent per ad creative: %f seconds\n"+
			"current batch id: %d",
		s.snapshotsProcessed, elapsed,
		s.snapshotsFetchFailed, s.creativesFound,
		s.snapshotsWithoutCreatives,
		s.imageDownloadSuccess, s.imageDownloadFailure, s.imageUploaded,
		s.videoDownloadSuccess, s.videoDownloadFailure, s.videoUploaded,
		avgPerCreative, s.currentBatchID,
	)
}

func max1(n int) int {
	if n == 0 {
		return 1
	}
	return n
}
