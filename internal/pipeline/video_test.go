package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adarchive/crcore/internal/creative"
	"github.com/adarchive/crcore/internal/objstore"
)

// --- HTTPVideoFetcher content-length boundary cases (spec §8) -------------

func TestFetchVideoMissingContentLengthRefusesSilently(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Del("Content-Length")
		w.Write([]byte("some bytes"))
		// Flushing sends the response chunked; otherwise the server fills in
		// Content-Length itself when the handler returns.
		w.(http.Flusher).Flush()
	}))
	defer server.Close()

	f := NewHTTPVideoFetcher()
	data, err := f.FetchVideo(context.Background(), server.URL, 1024, time.Second)

	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestFetchVideoUnparseableContentLengthRefusesSilently(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// net/http's server drops an invalid Content-Length header, so the
		// raw response is written over the hijacked connection.
		conn, buf, _ := w.(http.Hijacker).Hijack()
		defer conn.Close()
		buf.WriteString("HTTP/1.1 200 OK\r\nContent-Length: not-a-number\r\n\r\nsome bytes")
		buf.Flush()
	}))
	defer server.Close()

	f := NewHTTPVideoFetcher()
	data, err := f.FetchVideo(context.Background(), server.URL, 1024, time.Second)

	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestFetchVideoOversizeReturnsCountedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "2048")
		w.Write(make([]byte, 2048))
	}))
	defer server.Close()

	f := NewHTTPVideoFetcher()
	data, err := f.FetchVideo(context.Background(), server.URL, 1024, time.Second)

	assert.Nil(t, data)
	assert.True(t, errors.Is(err, ErrVideoTooLarge))
}

func TestFetchVideoSuccessReturnsBody(t *testing.T) {
	body := []byte("video bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "11")
		w.Write(body)
	}))
	defer server.Close()

	f := NewHTTPVideoFetcher()
	data, err := f.FetchVideo(context.Background(), server.URL, 1024, time.Second)

	require.NoError(t, err)
	assert.Equal(t, body, data)
}

// --- attachVideo counter behavior (spec §8) --------------------------------

func TestAttachVideoMissingHeaderDoesNotCountAsFailure(t *testing.T) {
	uploader := objstore.NewUploader(newFakeObjStore())
	p := New(nil, nil, uploader, nil, nil, nil, &fakeVideoFetcher{data: nil, err: nil}, testLimits())

	rec := &creative.Record{}
	p.attachVideo(context.Background(), creative.ArchiveID(1), rec, "http://example.com/v.mp4")

	assert.Equal(t, 0, p.stats.videoDownloadFailure)
	assert.Equal(t, 0, p.stats.videoDownloadSuccess)
	assert.Empty(t, rec.VideoSHA256)
}

func TestAttachVideoOversizeCountsAsFailure(t *testing.T) {
	uploader := objstore.NewUploader(newFakeObjStore())
	p := New(nil, nil, uploader, nil, nil, nil, &fakeVideoFetcher{data: nil, err: ErrVideoTooLarge}, testLimits())

	rec := &creative.Record{}
	p.attachVideo(context.Background(), creative.ArchiveID(1), rec, "http://example.com/v.mp4")

	assert.Equal(t, 1, p.stats.videoDownloadFailure)
}

func TestAttachVideoNetworkErrorCountsAsFailure(t *testing.T) {
	uploader := objstore.NewUploader(newFakeObjStore())
	p := New(nil, nil, uploader, nil, nil, nil, &fakeVideoFetcher{data: nil, err: errors.New("connection reset")}, testLimits())

	rec := &creative.Record{}
	p.attachVideo(context.Background(), creative.ArchiveID(1), rec, "http://example.com/v.mp4")

	assert.Equal(t, 1, p.stats.videoDownloadFailure)
}

func TestAttachVideoSuccessUploadsAndPopulatesRecord(t *testing.T) {
	uploader := objstore.NewUploader(newFakeObjStore())
	p := New(nil, nil, uploader, nil, nil, nil, &fakeVideoFetcher{data: []byte("video content"), err: nil}, testLimits())

	rec := &creative.Record{}
	p.attachVideo(context.Background(), creative.ArchiveID(1), rec, "http://example.com/v.mp4")

	assert.Equal(t, 0, p.stats.videoDownloadFailure)
	assert.Equal(t, 1, p.stats.videoDownloadSuccess)
	assert.NotEmpty(t, rec.VideoSHA256)
}
