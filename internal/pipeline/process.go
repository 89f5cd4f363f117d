package pipeline

import (
	"context"
	"log"

	"github.com/adarchive/crcore/internal/browser"
	"github.com/adarchive/crcore/internal/creative"
	"github.com/adarchive/crcore/internal/hashkit"
	"github.com/adarchive/crcore/internal/objstore"
)

// processCreatives is process_fetched_ad_creative_data (spec §4.4): turns
// the raw creatives an Extractor returned for one archive id into
// deduplicated CreativeRecord rows, uploading media as it goes.
func (p *Pipeline) processCreatives(ctx context.Context, archiveID creative.ArchiveID, creatives []browser.Creative) []creative.Record {
	seen := make(map[creative.UniqueKey]bool, len(creatives))
	var records []creative.Record

	for _, c := range creatives {
		rec := creative.Record{ArchiveID: archiveID}

		if c.Image != nil {
			if err := p.attachImage(ctx, archiveID, &rec, c.Image); err != nil {
				// A creative whose image cannot even be hashed is dropped
				// entirely, matching the original retriever's behavior of
				// skipping the whole creative rather than recording it
				// without image fields.
				log.Printf("pipeline: error hashing image for archive id %d, url %s: %v", archiveID, c.Image.URL, err)
				p.stats.imageDownloadFailure++
				continue
			}
		}

		if c.VideoURL != "" {
			p.attachVideo(ctx, archiveID, &rec, c.VideoURL)
		}

		if c.HasBody && c.Body != "" {
			p.attachText(&rec, c.Body)
		}

		key := rec.Key()
		if seen[key] {
			log.Printf("pipeline: dropping record with duplicate unique-constraint attributes for archive id %d: %+v", archiveID, key)
			continue
		}
		seen[key] = true

		if c.LinkAttributes != nil {
			rec.LinkURL = c.LinkAttributes.URL
			rec.LinkCaption = c.LinkAttributes.Caption
			rec.LinkTitle = c.LinkAttributes.Title
			rec.LinkDescription = c.LinkAttributes.Description
			rec.LinkButtonText = c.LinkAttributes.ButtonText
		}

		records = append(records, rec)
	}

	return records
}

// attachImage computes the image's dHash and SHA-256, uploads it to the
// object store, and populates rec's image fields (spec §4.1, §4.2).
func (p *Pipeline) attachImage(ctx context.Context, archiveID creative.ArchiveID, rec *creative.Record, img *browser.Image) error {
	dhash, err := hashkit.DHashHex(img.Data)
	if err != nil {
		return err
	}

	p.stats.imageDownloadSuccess++
	sha256 := hashkit.SHA256Hex(img.Data)
	path := objstore.ImagePath(dhash)
	if _, err := p.uploader.Upload(ctx, objstore.BucketImages, path, img.Data); err != nil {
		return err
	}
	p.stats.imageUploaded++

	rec.ImageDownloadedURL = img.URL
	rec.ImageSHA256 = sha256
	rec.ImageSimHash = dhash
	rec.ImageBucketPath = path
	return nil
}

// attachVideo downloads the video (subject to the configured size/timeout
// limits), uploads it, and populates rec's video fields (spec §4.2, §4.4).
// Only an oversize download or a network/status error is counted as a
// failure; a missing or unparseable Content-Length header is a silent
// refusal, matching the original downloader
// (_examples/original_source/fb_ad_creative_retriever.py:444-465). Either
// way the creative record still carries its text and image fields.
func (p *Pipeline) attachVideo(ctx context.Context, archiveID creative.ArchiveID, rec *creative.Record, videoURL string) {
	data, err := p.videos.FetchVideo(ctx, videoURL, p.limits.MaxVideoDownloadSize, p.limits.VideoDownloadTimeout)
	if err != nil {
		log.Printf("pipeline: video download failed for archive id %d, url %s: %v", archiveID, videoURL, err)
		p.stats.videoDownloadFailure++
		return
	}
	if data == nil {
		// Silently refused: no or unparseable content-length (spec §4.4, §8).
		return
	}

	p.stats.videoDownloadSuccess++
	sha256 := hashkit.SHA256Hex(data)
	path := objstore.VideoPath(sha256)
	if _, err := p.uploader.Upload(ctx, objstore.BucketVideos, path, data); err != nil {
		log.Printf("pipeline: video upload failed for archive id %d: %v", archiveID, err)
		return
	}
	p.stats.videoUploaded++

	rec.VideoDownloadedURL = videoURL
	rec.VideoSHA256 = sha256
	rec.VideoBucketPath = path
}

// attachText computes the body text's SimHash and historic-compatible
// UTF-32 SHA-256, and best-effort language tags it (spec §4.1, §4.5).
func (p *Pipeline) attachText(rec *creative.Record, body string) {
	rec.BodyText = body
	rec.HasBodyText = true
	rec.TextSimHash = hashkit.TextSimHashHex(body)
	rec.TextSHA256 = hashkit.SHA256HexUTF32(body)

	if p.langDetector == nil {
		return
	}
	if tag, ok := p.langDetector.Detect(body); ok {
		rec.BodyLanguage = tag
		rec.HasLanguage = true
	}
}

// storeScreenshot uploads an archive id's rendered screenshot (spec §4.2).
func (p *Pipeline) storeScreenshot(ctx context.Context, archiveID creative.ArchiveID, data []byte) error {
	path := objstore.ScreenshotPath(int64(archiveID))
	_, err := p.uploader.Upload(ctx, objstore.BucketScreenshots, path, data)
	return err
}
