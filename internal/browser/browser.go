// Package browser defines the seam between the Creative Retrieval Pipeline
// and the headless-browser driver plus the third-party creative-extraction
// library it drives. Both are external collaborators per spec §1 ("the
// browser-automation driver" and "the third-party creative-extraction
// library" are referenced only by the interfaces they expose); this
// package is that interface, plus the scoped-acquisition lifecycle the
// pipeline uses to own it (spec §4.4, §9).
package browser

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors an Extractor may return. The pipeline distinguishes
// these from one another to decide whether to recycle the session, sleep
// and retry, or record a terminal snapshot status (spec §4.5, §7).
var (
	// ErrBrowserTimeout indicates the browser (or its driver) failed to
	// respond in time. The pipeline recycles the session and retries the
	// current archive ID exactly once.
	ErrBrowserTimeout = errors.New("browser: timeout")

	// ErrDriverFailure indicates the underlying browser-automation driver
	// raised an exception unrelated to rate limiting. Handled the same way
	// as ErrBrowserTimeout.
	ErrDriverFailure = errors.New("browser: driver error")

	// ErrNoContentFound maps to SnapshotFetchStatus NO_CONTENT_FOUND.
	ErrNoContentFound = errors.New("extractor: no content found")

	// ErrInvalidArchiveID maps to SnapshotFetchStatus INVALID_ID.
	ErrInvalidArchiveID = errors.New("extractor: invalid archive id")

	// ErrAgeRestricted maps to SnapshotFetchStatus AGE_RESTRICTED.
	ErrAgeRestricted = errors.New("extractor: age restricted")

	// ErrIPViolation maps to SnapshotFetchStatus IP_VIOLATION.
	ErrIPViolation = errors.New("extractor: intellectual property violation")

	// ErrPermanentlyUnavailable maps to SnapshotFetchStatus
	// PERMANENTLY_UNAVAILABLE.
	ErrPermanentlyUnavailable = errors.New("extractor: snapshot permanently unavailable")
)

// RateLimitError is returned by an Extractor when the archive source has
// throttled or ended the crawl (spec §4.5: "TooManyRequests or
// EndBatchCrawler"). WaitBeforeNextBatch carries the source's suggested
// cooldown; zero means the caller should fall back to its own default.
type RateLimitError struct {
	Reason              string
	WaitBeforeNextBatch int // seconds; 0 means "use caller default"
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("extractor: rate limited (%s)", e.Reason)
}

// LinkAttributes is the structured link metadata attached to a creative,
// when present.
type LinkAttributes struct {
	URL         string
	Caption     string
	Title       string
	Description string
	ButtonText  string
}

// Image is a decoded-on-demand image attachment: the raw bytes as fetched,
// plus the URL they came from.
type Image struct {
	URL  string
	Data []byte
}

// Creative is one rendered ad variant extracted from a snapshot (spec
// GLOSSARY).
type Creative struct {
	Body           string
	HasBody        bool
	Image          *Image // nil if the creative carries no image
	VideoURL       string // empty if the creative carries no video
	LinkAttributes *LinkAttributes
}

// SnapshotResult is everything the extractor produced for one archive ID:
// an optional screenshot plus zero or more creatives.
type SnapshotResult struct {
	ScreenshotPNG []byte // nil if no screenshot was captured
	Creatives     []Creative
}

// Extractor drives the browser session to retrieve one archive ID's
// rendered snapshot and structured creative content (spec §4.4, §4.5). Its
// concrete implementation wraps the third-party creative-extraction
// library; this core only depends on this interface.
type Extractor interface {
	// RetrieveAd fetches and parses the snapshot for archiveID. Errors are
	// one of the sentinel values above, a *RateLimitError, or a plain
	// wrapped error for anything the pipeline should count as a generic
	// fetch failure.
	RetrieveAd(ctx context.Context, archiveID int64) (*SnapshotResult, error)
}

// Session is a live, leased browser context. Close releases whatever
// process or connection backs it; it must be safe to call exactly once on
// every exit path (including after a panic recovers further up the stack).
type Session interface {
	Close(ctx context.Context) error
}

// Handle bundles a Session with the Extractor built on top of it — the
// pair the pipeline recycles together (spec §4.4, §9: "The factory pattern
// for the browser+extractor pair is best expressed as a function-typed
// field returning a scoped handle").
type Handle struct {
	Session   Session
	Extractor Extractor
}

// Close tears down the underlying session.
func (h *Handle) Close(ctx context.Context) error {
	if h == nil || h.Session == nil {
		return nil
	}
	return h.Session.Close(ctx)
}

// Factory builds a fresh Handle. It is a function-typed field rather than
// an interface because the only operation needed is "make me a new one"
// (spec §9's "generator emulation" note: recycling is just tearing down
// the old handle and creating a new one).
type Factory func(ctx context.Context) (*Handle, error)
