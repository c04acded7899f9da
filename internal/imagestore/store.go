package imagestore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultExtension is used when the source URL's extension is not in the
// allow-list.
const DefaultExtension = "png"

// allowedExtensions are the image types accepted from attachment URLs.
var allowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
	"webp": true,
}

// Store downloads attachment images to a local directory and hands out
// permanent public URLs for them. Files are never deleted or deduplicated.
type Store struct {
	dir        string
	httpClient *http.Client

	mu      sync.RWMutex
	baseURL string
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create images directory: %w", err)
	}
	return &Store{
		dir: dir,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// SetBaseURL sets the public base URL (from the tunnel) used to build
// permanent image URLs.
func (s *Store) SetBaseURL(base string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseURL = strings.TrimSuffix(base, "/")
}

// PublicURL returns the permanent URL for a stored filename.
func (s *Store) PublicURL(filename string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseURL + "/image/" + filename
}

// Save downloads the image at sourceURL into the store and returns the
// generated filename. Nothing is written on failure.
func (s *Store) Save(ctx context.Context, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image download failed: status %d", resp.StatusCode)
	}

	filename := uuid.New().String() + "." + extensionFor(sourceURL)
	dest := filepath.Join(s.dir, filename)

	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %w", err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return "", fmt.Errorf("failed to write image file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("failed to close image file: %w", err)
	}

	return filename, nil
}

// extensionFor derives the file extension from the URL's trailing path
// segment, ignoring any query string. Unrecognized extensions fall back to
// DefaultExtension.
func extensionFor(sourceURL string) string {
	trimmed := sourceURL
	if u, err := url.Parse(sourceURL); err == nil {
		trimmed = u.Path
	} else if i := strings.IndexByte(trimmed, '?'); i >= 0 {
		trimmed = trimmed[:i]
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(trimmed), "."))
	if !allowedExtensions[ext] {
		return DefaultExtension
	}
	return ext
}
