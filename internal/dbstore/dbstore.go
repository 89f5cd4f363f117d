// Package dbstore is the relational-store client (spec §2's "Batch leasing
// client" and §4.3's fingerprint/cluster-assignment access), backed by
// Cassandra via gocql, grounded on the teacher's internal/db package.
package dbstore

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/cassandra-gocql-driver/v2"

	"github.com/adarchive/crcore/internal/creative"
)

// Config carries the Cassandra connection parameters (spec §6).
type Config struct {
	Hosts       []string
	Keyspace    string
	Consistency string
	LocalDC     string
	Username    string
	Password    string
}

// Store wraps the Cassandra session used by both the CRP and the SC.
type Store struct {
	session *gocql.Session
}

// New opens a Cassandra session using cfg. Mirrors the teacher's db.New.
func New(cfg Config) (*Store, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = parseConsistency(cfg.Consistency)
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second

	if cfg.LocalDC != "" {
		cluster.PoolConfig.HostSelectionPolicy = gocql.DCAwareRoundRobinPolicy(cfg.LocalDC)
	}

	if cfg.Username != "" && cfg.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to cassandra: %w", err)
	}

	return &Store{session: session}, nil
}

// Close closes the underlying session.
func (s *Store) Close() {
	if s.session != nil {
		s.session.Close()
	}
}

// Session returns the underlying gocql session, for callers (e.g. cmd/
// migrate subcommands) that need lower-level access.
func (s *Store) Session() *gocql.Session {
	return s.session
}

// Migrate creates the keyspace and tables this core depends on, if absent.
func (s *Store) Migrate() error {
	migrations := []string{
		migrationCreateKeyspace,
		migrationCreateFetchBatches,
		migrationCreateFetchBatchesStatusIndex,
		migrationCreateAdCreatives,
		migrationCreateAdSnapshotMetadata,
		migrationCreateAdTextClusters,
		migrationCreateAdImageClusters,
	}

	for _, migration := range migrations {
		if err := s.session.Query(migration).Exec(); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func parseConsistency(c string) gocql.Consistency {
	switch c {
	case "ONE":
		return gocql.One
	case "QUORUM":
		return gocql.Quorum
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum
	case "EACH_QUORUM":
		return gocql.EachQuorum
	case "ALL":
		return gocql.All
	default:
		return gocql.LocalQuorum
	}
}

const migrationCreateKeyspace = `
CREATE KEYSPACE IF NOT EXISTS ad_archive WITH replication = {
	'class': 'SimpleStrategy',
	'replication_factor': 1
}`

// fetch_batches is the source of lease_batch and the target of
// release_batch / complete_batch. status is one of "pending", "leased",
// "completed"; a released batch goes back to "pending" (spec §3 Batch
// lifecycle).
const migrationCreateFetchBatches = `
CREATE TABLE IF NOT EXISTS fetch_batches (
	batch_id BIGINT PRIMARY KEY,
	archive_ids LIST<BIGINT>,
	status TEXT,
	leased_at TIMESTAMP,
	completed_at TIMESTAMP
)`

// Secondary index so lease_batch can find a pending batch without a table
// scan. Cassandra secondary indexes are fine at the batch table's scale
// (thousands, not millions, of rows in flight).
const migrationCreateFetchBatchesStatusIndex = `
CREATE INDEX IF NOT EXISTS fetch_batches_status_idx ON fetch_batches (status)`

// ad_creatives is keyed so the four-tuple uniqueness constraint of spec §3
// (archive_id, text_sha256, image_sha256, video_sha256) is the clustering
// key. CQL clustering columns cannot be null, so an absent hash is written
// as the empty string, which stays distinct from every real hash value.
const migrationCreateAdCreatives = `
CREATE TABLE IF NOT EXISTS ad_creatives (
	archive_id BIGINT,
	text_sha256 TEXT,
	image_sha256 TEXT,
	video_sha256 TEXT,
	body_text TEXT,
	body_language TEXT,
	link_url TEXT,
	link_caption TEXT,
	link_title TEXT,
	link_description TEXT,
	link_button_text TEXT,
	text_sim_hash TEXT,
	image_downloaded_url TEXT,
	image_sim_hash TEXT,
	image_bucket_path TEXT,
	video_downloaded_url TEXT,
	video_bucket_path TEXT,
	PRIMARY KEY ((archive_id), text_sha256, image_sha256, video_sha256)
)`

const migrationCreateAdSnapshotMetadata = `
CREATE TABLE IF NOT EXISTS ad_snapshot_metadata (
	archive_id BIGINT,
	fetch_time TIMESTAMP,
	fetch_status INT,
	PRIMARY KEY ((archive_id), fetch_time)
)`

const migrationCreateAdTextClusters = `
CREATE TABLE IF NOT EXISTS ad_text_clusters (
	archive_id BIGINT PRIMARY KEY,
	cluster_id INT
)`

const migrationCreateAdImageClusters = `
CREATE TABLE IF NOT EXISTS ad_image_clusters (
	archive_id BIGINT PRIMARY KEY,
	cluster_id INT
)`

// BatchStore is the batch-leasing half of the store interface (spec §4.3).
type BatchStore interface {
	// LeaseBatch atomically claims one unleased batch, or returns ok=false
	// if none is available.
	LeaseBatch(ctx context.Context) (batch creative.Batch, ok bool, err error)
	// ReleaseBatch returns a leased batch to the pool, used when a worker
	// aborts (rate limit, DB failure, operator interrupt).
	ReleaseBatch(ctx context.Context, batchID int64) error
	// CompleteBatch marks a batch's terminal success. Called exactly once,
	// after its last chunk has committed.
	CompleteBatch(ctx context.Context, batchID int64) error
}

// CreativeStore is the creative/metadata/fingerprint/cluster half of the
// store interface (spec §4.3).
type CreativeStore interface {
	// UpsertCreativeRecords persists records, conflict-resolved on the
	// four-tuple unique constraint of spec §3.
	UpsertCreativeRecords(ctx context.Context, records []creative.Record) error
	// UpsertSnapshotMetadata persists one row per archive ID.
	UpsertSnapshotMetadata(ctx context.Context, rows []creative.SnapshotMetadata) error
	// PersistChunk commits records and metadata for one chunk in a single
	// transaction (spec §5: "creative-record upsert and snapshot-metadata
	// upsert for the same archive id must commit atomically").
	PersistChunk(ctx context.Context, records []creative.Record, metadata []creative.SnapshotMetadata) error
	// ReadAllTextFingerprints returns every non-empty text_sim_hash grouped
	// by its 64-bit value.
	ReadAllTextFingerprints(ctx context.Context) (map[uint64][]creative.ArchiveID, error)
	// ReadAllImageFingerprints returns every non-empty image_sim_hash
	// grouped by its 64-bit value.
	ReadAllImageFingerprints(ctx context.Context) (map[uint64][]creative.ArchiveID, error)
	// UpsertTextClusterAssignments writes the text-modality cluster
	// assignments wholesale.
	UpsertTextClusterAssignments(ctx context.Context, assignments []creative.ClusterAssignment) error
	// UpsertImageClusterAssignments writes the image-modality cluster
	// assignments wholesale.
	UpsertImageClusterAssignments(ctx context.Context, assignments []creative.ClusterAssignment) error
	// ExistingTextClusterOf and ExistingImageClusterOf back the optional
	// stable cluster-renumbering hook (spec §9); ok is false if archiveID
	// has no prior assignment for that modality.
	ExistingTextClusterOf(ctx context.Context, archiveID creative.ArchiveID) (clusterID int, ok bool, err error)
	ExistingImageClusterOf(ctx context.Context, archiveID creative.ArchiveID) (clusterID int, ok bool, err error)
}
