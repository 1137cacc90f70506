// Package media fetches slot media bytes from http(s) URLs or local
// paths. Fetching happens once per slot assignment, off the pipeline
// goroutine; decode and playback are the scheduler's job.
package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/patchmix/patchmix/internal/metrics"
)

// maxBytes caps a single media payload. Animated GIFs beyond this are
// rejected rather than decoded into memory.
const maxBytes = 64 << 20

var client = &http.Client{Timeout: 15 * time.Second}

// Fetch retrieves the raw bytes behind a media URL. Supported forms:
// http://, https://, file:// and bare filesystem paths.
func Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	start := time.Now()
	data, err := fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	metrics.ObserveMediaFetch(time.Since(start))
	return data, nil
}

func fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse media url: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		return fetchHTTP(ctx, rawURL)
	case "file":
		return readFile(u.Path)
	case "":
		return readFile(rawURL)
	default:
		return nil, fmt.Errorf("unsupported media url scheme %q", u.Scheme)
	}
}

func fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build media request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch media: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read media body: %w", err)
	}
	if len(data) > maxBytes {
		return nil, fmt.Errorf("media payload exceeds %d bytes", maxBytes)
	}
	return data, nil
}

func readFile(path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("empty media path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat media file: %w", err)
	}
	if info.Size() > maxBytes {
		return nil, fmt.Errorf("media payload exceeds %d bytes", maxBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read media file: %w", err)
	}
	return data, nil
}
