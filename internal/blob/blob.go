// Package blob stores generated media and rendered videos by key. Keys are
// scoped by job: "{jobID}/scene_{n}.{ext}" and "{jobID}/final_video.mp4".
package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"
)

// Store is durable write-by-key and read-by-key storage
type Store interface {
	// Upload writes r under key and returns the object's URL
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	// Download copies the object stored under key into w
	Download(ctx context.Context, key string, w io.Writer) error
	// SignedURL returns a read URL for key that expires after ttl
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// SceneKey returns the storage key of a scene asset. n is 1-based.
func SceneKey(jobID string, n int, ext string) string {
	return fmt.Sprintf("%s/scene_%d.%s", jobID, n, ext)
}

// FinalVideoKey returns the storage key of a job's rendered video
func FinalVideoKey(jobID string) string {
	return jobID + "/final_video.mp4"
}

// CleanKey normalizes key and rejects keys that escape the store root
func CleanKey(key string) (string, error) {
	cleaned := path.Clean(strings.TrimPrefix(key, "/"))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return cleaned, nil
}

// KeyFromURL recovers the key of a job-scoped object from its URL by
// locating the "{jobID}/" path segment
func KeyFromURL(rawURL, jobID string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid blob url: %w", err)
	}
	idx := strings.Index(u.Path, "/"+jobID+"/")
	if idx < 0 {
		return "", fmt.Errorf("blob url %q is not scoped to job %s", rawURL, jobID)
	}
	return CleanKey(u.Path[idx+1:])
}
