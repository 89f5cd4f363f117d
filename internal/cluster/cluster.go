// Package cluster implements the Similarity Clusterer (spec §2 item 6,
// §4.6): two independent near-duplicate passes — ad body text via a banded
// SimHash index, ad imagery via a BK-tree — each consolidated with its own
// union-find, numbered, and upserted back to the store.
package cluster

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/adarchive/crcore/internal/creative"
)

// Store is the subset of dbstore.CreativeStore the clusterer needs.
// Defined locally so this package does not import dbstore, matching the
// teacher's narrow per-package interface convention.
type Store interface {
	ReadAllTextFingerprints(ctx context.Context) (map[uint64][]creative.ArchiveID, error)
	ReadAllImageFingerprints(ctx context.Context) (map[uint64][]creative.ArchiveID, error)
	UpsertTextClusterAssignments(ctx context.Context, assignments []creative.ClusterAssignment) error
	UpsertImageClusterAssignments(ctx context.Context, assignments []creative.ClusterAssignment) error
	ExistingTextClusterOf(ctx context.Context, archiveID creative.ArchiveID) (clusterID int, ok bool, err error)
	ExistingImageClusterOf(ctx context.Context, archiveID creative.ArchiveID) (clusterID int, ok bool, err error)
}

// Config tunes the near-duplicate thresholds (spec §4.6: "Both text and
// image passes use K=3").
type Config struct {
	BitDifferenceThreshold int
	// StableClusterIDs enables the optional renumbering hook of spec §9:
	// each component's id resolves to the cluster id already stored for
	// its lowest archive id, when one exists, instead of always allocating
	// a fresh sequential id.
	StableClusterIDs bool
}

const numSimHashBands = 4 // K+1 bands for K=3 (spec §9)

// Result is what one clustering run produced, returned for observability
// and tests; the store has already been written by the time Run returns.
type Result struct {
	TextClusters  int
	ImageClusters int
}

// Run executes run_clustering (spec §4.6): a text pass and an image pass,
// each read-mostly until its union-find has fully consolidated, then
// written. If either pass fails before writing, Run returns an error and
// writes nothing for that pass (spec: "on any error during read or union,
// abort without writing").
func Run(ctx context.Context, store Store, cfg Config) (Result, error) {
	textAssignments, textCount, err := clusterModality(ctx, cfg, store.ReadAllTextFingerprints, newSimHashMatcher(numSimHashBands))
	if err != nil {
		return Result{}, fmt.Errorf("text clustering: %w", err)
	}
	if cfg.StableClusterIDs {
		resolveStableIDs(ctx, textAssignments, store.ExistingTextClusterOf)
	}
	if err := store.UpsertTextClusterAssignments(ctx, textAssignments); err != nil {
		return Result{}, fmt.Errorf("write text clusters: %w", err)
	}
	log.Printf("cluster: wrote %d text cluster assignments across %d clusters", len(textAssignments), textCount)

	imageAssignments, imageCount, err := clusterModality(ctx, cfg, store.ReadAllImageFingerprints, newBKTreeMatcher())
	if err != nil {
		return Result{}, fmt.Errorf("image clustering: %w", err)
	}
	if cfg.StableClusterIDs {
		resolveStableIDs(ctx, imageAssignments, store.ExistingImageClusterOf)
	}
	if err := store.UpsertImageClusterAssignments(ctx, imageAssignments); err != nil {
		return Result{}, fmt.Errorf("write image clusters: %w", err)
	}
	log.Printf("cluster: wrote %d image cluster assignments across %d clusters", len(imageAssignments), imageCount)

	return Result{TextClusters: textCount, ImageClusters: imageCount}, nil
}

// nearDuplicateMatcher abstracts over the two approximate indexes (spec
// §4.6 step 4): insert representative fingerprints, then query for matches
// within the configured bit-difference threshold.
type nearDuplicateMatcher interface {
	insert(fingerprint uint64)
	query(fingerprint uint64, maxDistance int) []uint64
}

type simHashMatcher struct{ idx *SimHashIndex }

func newSimHashMatcher(bands int) *simHashMatcher { return &simHashMatcher{idx: NewSimHashIndex(bands)} }
func (m *simHashMatcher) insert(fp uint64)         { m.idx.Insert(fp) }
func (m *simHashMatcher) query(fp uint64, k int) []uint64 { return m.idx.Query(fp, k) }

type bkTreeMatcher struct{ tree *BKTree }

func newBKTreeMatcher() *bkTreeMatcher                    { return &bkTreeMatcher{tree: NewBKTree()} }
func (m *bkTreeMatcher) insert(fp uint64)                 { m.tree.Insert(fp) }
func (m *bkTreeMatcher) query(fp uint64, k int) []uint64  { return m.tree.Query(fp, k) }

// clusterModality runs one pass (text or image) of spec §4.6 steps 2-6:
// union all archive ids sharing an identical fingerprint, build the
// representative index, union near-duplicate fingerprint matches, then
// enumerate and number components.
func clusterModality(
	ctx context.Context,
	cfg Config,
	read func(ctx context.Context) (map[uint64][]creative.ArchiveID, error),
	matcher nearDuplicateMatcher,
) ([]creative.ClusterAssignment, int, error) {
	fingerprints, err := read(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("read fingerprints: %w", err)
	}

	uf := NewUnionFind()
	representative := make(map[uint64]creative.ArchiveID, len(fingerprints))

	for fp, archiveIDs := range fingerprints {
		for _, id := range archiveIDs {
			uf.Add(int64(id))
		}
		// Every archive id sharing an identical fingerprint is the same ad
		// (spec §4.6 step 3).
		for i := 1; i < len(archiveIDs); i++ {
			uf.Union(int64(archiveIDs[0]), int64(archiveIDs[i]))
		}
		representative[fp] = minArchiveID(archiveIDs)
		matcher.insert(fp)
	}

	// Query every distinct fingerprint for near-duplicates and union their
	// representative archive ids (spec §4.6 steps 4-5).
	for fp := range fingerprints {
		for _, match := range matcher.query(fp, cfg.BitDifferenceThreshold) {
			other, ok := representative[match]
			if !ok {
				continue
			}
			uf.Union(int64(representative[fp]), int64(other))
		}
	}

	components := uf.Components()
	assignments := make([]creative.ClusterAssignment, 0, len(fingerprints))
	for clusterID, component := range components {
		for _, id := range component {
			assignments = append(assignments, creative.ClusterAssignment{
				ArchiveID: creative.ArchiveID(id),
				ClusterID: clusterID,
			})
		}
	}
	return assignments, len(components), nil
}

func minArchiveID(ids []creative.ArchiveID) creative.ArchiveID {
	min := ids[0]
	for _, id := range ids[1:] {
		if id < min {
			min = id
		}
	}
	return min
}

// resolveStableIDs implements the optional renumbering hook of spec §9:
// "extend SC to resolve each component's id to the cluster id currently
// stored for the lowest archive id present, else allocate a new id". It
// mutates assignments' ClusterID fields in place, grouped by component.
func resolveStableIDs(
	ctx context.Context,
	assignments []creative.ClusterAssignment,
	existingClusterOf func(ctx context.Context, archiveID creative.ArchiveID) (int, bool, error),
) {
	byComponent := make(map[int][]int)
	for i, a := range assignments {
		byComponent[a.ClusterID] = append(byComponent[a.ClusterID], i)
	}

	resolved := make(map[int]int, len(byComponent))
	for freshID, indices := range byComponent {
		ids := make([]creative.ArchiveID, len(indices))
		for j, idx := range indices {
			ids[j] = assignments[idx].ArchiveID
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		stableID := freshID
		for _, candidate := range ids {
			clusterID, ok, err := existingClusterOf(ctx, candidate)
			if err != nil {
				log.Printf("cluster: lookup existing cluster for archive id %d: %v", candidate, err)
				continue
			}
			if ok {
				stableID = clusterID
				break
			}
		}
		resolved[freshID] = stableID
	}

	for i := range assignments {
		assignments[i].ClusterID = resolved[assignments[i].ClusterID]
	}
}
