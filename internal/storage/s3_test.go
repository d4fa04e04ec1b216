package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// fakeS3 serves path-style PUT, GET and HEAD object requests from memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method == http.MethodGet {
				io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			}
			return
		}
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			w.Write(body)
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeS3Storage(t *testing.T) (*S3Storage, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string][]byte)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:                     "us-east-1",
		BaseEndpoint:               aws.String(srv.URL),
		UsePathStyle:               true,
		Credentials:                aws.AnonymousCredentials{},
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})
	return NewS3StorageWithClient(client, "hotspots", S3Config{MaxRetries: 1}), fake
}

func TestS3Storage_RoundTrip(t *testing.T) {
	store, fake := newFakeS3Storage(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "out.jsonl")
	if err := os.WriteFile(src, []byte(`{"n_rows":3}`+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := store.Upload(ctx, src, "runs/out.jsonl"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if _, ok := fake.objects["hotspots/runs/out.jsonl"]; !ok {
		t.Fatalf("expected object in bucket, have %v", fake.objects)
	}

	exists, err := store.Exists(ctx, "runs/out.jsonl")
	if err != nil || !exists {
		t.Fatalf("expected object to exist, got %v %v", exists, err)
	}

	dst := filepath.Join(t.TempDir(), "copy.jsonl")
	if err := store.Download(ctx, "runs/out.jsonl", dst); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"n_rows":3}`+"\n" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestS3Storage_Missing(t *testing.T) {
	store, _ := newFakeS3Storage(t)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "nope.csv")
	if err != nil || exists {
		t.Errorf("expected missing object, got exists=%v err=%v", exists, err)
	}

	err = store.Download(ctx, "nope.csv", filepath.Join(t.TempDir(), "x"))
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}
