package testsupport

import (
	"context"
	"testing"

	"clipforge/internal/config"
	"clipforge/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewUploadJob creates a pending upload job for tests using the provided store.
func NewUploadJob(t testing.TB, store *queue.Store, sourcePath string) *queue.Job {
	t.Helper()

	job, err := store.NewJob(context.Background(), queue.SourceUpload, sourcePath)
	if err != nil {
		t.Fatalf("store.NewJob: %v", err)
	}
	return job
}
