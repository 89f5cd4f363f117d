package dbstore

import (
	"context"
	"fmt"

	"github.com/apache/cassandra-gocql-driver/v2"

	"github.com/adarchive/crcore/internal/creative"
)

const insertCreativeCQL = `
INSERT INTO ad_creatives (
	archive_id, text_sha256, image_sha256, video_sha256,
	body_text, body_language,
	link_url, link_caption, link_title, link_description, link_button_text,
	text_sim_hash,
	image_downloaded_url, image_sim_hash, image_bucket_path,
	video_downloaded_url, video_bucket_path
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertSnapshotMetadataCQL = `
INSERT INTO ad_snapshot_metadata (archive_id, fetch_time, fetch_status) VALUES (?, ?, ?)`

// UpsertCreativeRecords implements CreativeStore. Each record's four-tuple
// key is the clustering key of ad_creatives, so re-inserting the same key
// overwrites in place (idempotent re-processing, spec §7).
func (s *Store) UpsertCreativeRecords(ctx context.Context, records []creative.Record) error {
	if len(records) == 0 {
		return nil
	}
	b := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for _, r := range records {
		b.Query(insertCreativeCQL,
			int64(r.ArchiveID), r.TextSHA256, r.ImageSHA256, r.VideoSHA256,
			r.BodyText, r.BodyLanguage,
			r.LinkURL, r.LinkCaption, r.LinkTitle, r.LinkDescription, r.LinkButtonText,
			r.TextSimHash,
			r.ImageDownloadedURL, r.ImageSimHash, r.ImageBucketPath,
			r.VideoDownloadedURL, r.VideoBucketPath,
		)
	}
	if err := s.session.ExecuteBatch(b); err != nil {
		return fmt.Errorf("upsert creative records: %w", err)
	}
	return nil
}

// UpsertSnapshotMetadata implements CreativeStore.
func (s *Store) UpsertSnapshotMetadata(ctx context.Context, rows []creative.SnapshotMetadata) error {
	if len(rows) == 0 {
		return nil
	}
	b := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for _, row := range rows {
		b.Query(insertSnapshotMetadataCQL, int64(row.ArchiveID), row.FetchTime, int(row.FetchStatus))
	}
	if err := s.session.ExecuteBatch(b); err != nil {
		return fmt.Errorf("upsert snapshot metadata: %w", err)
	}
	return nil
}

// PersistChunk implements CreativeStore: both tables are written in one
// Cassandra logged batch so a chunk's creative rows and metadata rows for
// the same archive id commit together or not at all.
func (s *Store) PersistChunk(ctx context.Context, records []creative.Record, metadata []creative.SnapshotMetadata) error {
	if len(records) == 0 && len(metadata) == 0 {
		return nil
	}
	b := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for _, r := range records {
		b.Query(insertCreativeCQL,
			int64(r.ArchiveID), r.TextSHA256, r.ImageSHA256, r.VideoSHA256,
			r.BodyText, r.BodyLanguage,
			r.LinkURL, r.LinkCaption, r.LinkTitle, r.LinkDescription, r.LinkButtonText,
			r.TextSimHash,
			r.ImageDownloadedURL, r.ImageSimHash, r.ImageBucketPath,
			r.VideoDownloadedURL, r.VideoBucketPath,
		)
	}
	for _, row := range metadata {
		b.Query(insertSnapshotMetadataCQL, int64(row.ArchiveID), row.FetchTime, int(row.FetchStatus))
	}
	if err := s.session.ExecuteBatch(b); err != nil {
		return fmt.Errorf("persist chunk: %w", err)
	}
	return nil
}

// ReadAllTextFingerprints implements CreativeStore.
func (s *Store) ReadAllTextFingerprints(ctx context.Context) (map[uint64][]creative.ArchiveID, error) {
	return s.readFingerprints(ctx, "text_sim_hash")
}

// ReadAllImageFingerprints implements CreativeStore.
func (s *Store) ReadAllImageFingerprints(ctx context.Context) (map[uint64][]creative.ArchiveID, error) {
	return s.readFingerprints(ctx, "image_sim_hash")
}

func (s *Store) readFingerprints(ctx context.Context, column string) (map[uint64][]creative.ArchiveID, error) {
	query := fmt.Sprintf(`SELECT archive_id, %s FROM ad_creatives`, column)
	iter := s.session.Query(query).WithContext(ctx).Iter()

	out := make(map[uint64][]creative.ArchiveID)
	var archiveID int64
	var hashHex string
	for iter.Scan(&archiveID, &hashHex) {
		if hashHex == "" {
			continue
		}
		var hash uint64
		if _, err := fmt.Sscanf(hashHex, "%x", &hash); err != nil {
			continue
		}
		out[hash] = append(out[hash], creative.ArchiveID(archiveID))
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("read %s fingerprints: %w", column, err)
	}
	return out, nil
}

// UpsertTextClusterAssignments implements CreativeStore.
func (s *Store) UpsertTextClusterAssignments(ctx context.Context, assignments []creative.ClusterAssignment) error {
	return s.upsertClusterAssignments(ctx, "ad_text_clusters", assignments)
}

// UpsertImageClusterAssignments implements CreativeStore.
func (s *Store) UpsertImageClusterAssignments(ctx context.Context, assignments []creative.ClusterAssignment) error {
	return s.upsertClusterAssignments(ctx, "ad_image_clusters", assignments)
}

func (s *Store) upsertClusterAssignments(ctx context.Context, table string, assignments []creative.ClusterAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	query := fmt.Sprintf(`INSERT INTO %s (archive_id, cluster_id) VALUES (?, ?)`, table)
	b := s.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	for _, a := range assignments {
		b.Query(query, int64(a.ArchiveID), a.ClusterID)
	}
	if err := s.session.ExecuteBatch(b); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

// ExistingTextClusterOf implements CreativeStore.
func (s *Store) ExistingTextClusterOf(ctx context.Context, archiveID creative.ArchiveID) (int, bool, error) {
	return s.existingClusterOf(ctx, "ad_text_clusters", archiveID)
}

// ExistingImageClusterOf implements CreativeStore.
func (s *Store) ExistingImageClusterOf(ctx context.Context, archiveID creative.ArchiveID) (int, bool, error) {
	return s.existingClusterOf(ctx, "ad_image_clusters", archiveID)
}

func (s *Store) existingClusterOf(ctx context.Context, table string, archiveID creative.ArchiveID) (int, bool, error) {
	query := fmt.Sprintf(`SELECT cluster_id FROM %s WHERE archive_id = ?`, table)
	var clusterID int
	err := s.session.Query(query, int64(archiveID)).WithContext(ctx).Scan(&clusterID)
	if err == gocql.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read existing cluster from %s: %w", table, err)
	}
	return clusterID, true, nil
}
