// Package blob fetches raw document bytes from a storage location. It is the
// seam between ingestion and wherever documents actually live: a local
// directory for development, an HTTP endpoint for remote corpora.
package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/raggy/raggy-go/internal/rag"
)

// Fetcher retrieves the raw bytes of a document by reference.
// Implementations must be safe for concurrent use.
type Fetcher interface {
	// Fetch returns the document bytes for ref. A reference that resolves to
	// nothing returns rag.ErrDocumentNotFound.
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// DirFetcher serves documents from a local directory. References are resolved
// relative to the root; escaping the root is rejected.
type DirFetcher struct {
	root string
}

// NewDirFetcher creates a DirFetcher rooted at dir.
func NewDirFetcher(dir string) *DirFetcher {
	return &DirFetcher{root: dir}
}

// Fetch reads the file named by ref under the root directory.
func (f *DirFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	clean := filepath.Clean(ref)
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return nil, fmt.Errorf("blob: reference %q escapes the document root", ref)
	}

	data, err := os.ReadFile(filepath.Join(f.root, clean))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("blob: %s: %w", ref, rag.ErrDocumentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("blob: read %s: %w", ref, err)
	}
	return data, nil
}

// HTTPFetcher retrieves documents over HTTP(S). References must be absolute
// URLs.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates an HTTPFetcher with a bounded request timeout.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: 60 * time.Second}}
}

// Fetch downloads the document at the given URL.
func (f *HTTPFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("blob: create request for %s: %w", ref, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blob: fetch %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("blob: %s: %w", ref, rag.ErrDocumentNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("blob: fetch %s: HTTP %d", ref, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("blob: read %s: %w", ref, err)
	}
	return data, nil
}
