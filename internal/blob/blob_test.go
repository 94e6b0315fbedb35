package blob

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/raggy/raggy-go/internal/rag"
)

func Test_DirFetcher_ReadsFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "doc.pdf"), []byte("pdf bytes"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := NewDirFetcher(dir).Fetch(context.Background(), "doc.pdf")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(got) != "pdf bytes" {
		t.Errorf("unexpected content: %q", got)
	}
}

func Test_DirFetcher_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := NewDirFetcher(t.TempDir()).Fetch(context.Background(), "absent.pdf")
	if !errors.Is(err, rag.ErrDocumentNotFound) {
		t.Errorf("got %v, want ErrDocumentNotFound", err)
	}
}

func Test_DirFetcher_RejectsEscape(t *testing.T) {
	t.Parallel()
	f := NewDirFetcher(t.TempDir())
	for _, ref := range []string{"../secret", "/etc/passwd", "a/../../b"} {
		if _, err := f.Fetch(context.Background(), ref); err == nil {
			t.Errorf("reference %q should be rejected", ref)
		}
	}
}

func Test_HTTPFetcher_Fetch(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/doc.pdf" {
			_, _ = w.Write([]byte("remote bytes"))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	f := NewHTTPFetcher()
	got, err := f.Fetch(context.Background(), srv.URL+"/doc.pdf")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(got) != "remote bytes" {
		t.Errorf("unexpected content: %q", got)
	}

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.pdf")
	if !errors.Is(err, rag.ErrDocumentNotFound) {
		t.Errorf("got %v, want ErrDocumentNotFound", err)
	}
}
