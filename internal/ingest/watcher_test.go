package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"clipforge/internal/ingest"
	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/testsupport"
)

func waitForJobs(t *testing.T, store *queue.Store, want int) []*queue.Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		jobs, err := store.ListJobs(context.Background())
		if err != nil {
			t.Fatalf("ListJobs returned error: %v", err)
		}
		if len(jobs) >= want {
			return jobs
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d queued jobs", want)
	return nil
}

func TestWatcherEnqueuesDroppedVideo(t *testing.T) {
	ingest.SetSettleDelayForTest(t, 50*time.Millisecond)

	cfg := testsupport.NewConfig(t, testsupport.WithWatchDir())
	store := testsupport.MustOpenStore(t, cfg)

	watcher := ingest.NewWatcher(cfg, store, logging.NewNop())
	if err := watcher.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	t.Cleanup(watcher.Stop)

	dropped := filepath.Join(cfg.Paths.WatchDir, "sermon.mp4")
	testsupport.WriteFile(t, dropped, 2048)

	jobs := waitForJobs(t, store, 1)
	job := jobs[0]
	if job.SourceType != queue.SourceUpload {
		t.Fatalf("expected upload source type, got %q", job.SourceType)
	}
	if job.SourcePath != dropped {
		t.Fatalf("expected source path %q, got %q", dropped, job.SourcePath)
	}
	if job.Status != queue.StatusPending {
		t.Fatalf("expected pending status, got %q", job.Status)
	}
}

func TestWatcherIgnoresNonVideoFiles(t *testing.T) {
	ingest.SetSettleDelayForTest(t, 50*time.Millisecond)

	cfg := testsupport.NewConfig(t, testsupport.WithWatchDir())
	store := testsupport.MustOpenStore(t, cfg)

	watcher := ingest.NewWatcher(cfg, store, logging.NewNop())
	if err := watcher.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	t.Cleanup(watcher.Stop)

	if err := os.WriteFile(filepath.Join(cfg.Paths.WatchDir, "notes.txt"), []byte("notes"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.Paths.WatchDir, ".partial.mp4"), []byte("hidden"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	dropped := filepath.Join(cfg.Paths.WatchDir, "keep.mp4")
	testsupport.WriteFile(t, dropped, 2048)

	jobs := waitForJobs(t, store, 1)
	if len(jobs) != 1 {
		t.Fatalf("expected only the video to be queued, got %d jobs", len(jobs))
	}
	if jobs[0].SourcePath != dropped {
		t.Fatalf("expected %q to be queued, got %q", dropped, jobs[0].SourcePath)
	}
}

func TestWatcherSweepsExistingFilesOnStart(t *testing.T) {
	ingest.SetSettleDelayForTest(t, 50*time.Millisecond)

	cfg := testsupport.NewConfig(t, testsupport.WithWatchDir())
	store := testsupport.MustOpenStore(t, cfg)

	existing := filepath.Join(cfg.Paths.WatchDir, "backlog.mp4")
	testsupport.WriteFile(t, existing, 2048)

	watcher := ingest.NewWatcher(cfg, store, logging.NewNop())
	if err := watcher.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	t.Cleanup(watcher.Stop)

	jobs := waitForJobs(t, store, 1)
	if jobs[0].SourcePath != existing {
		t.Fatalf("expected pre-existing file to be queued, got %q", jobs[0].SourcePath)
	}
}

func TestWatcherDisabledWithoutWatchDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	watcher := ingest.NewWatcher(cfg, store, logging.NewNop())
	if err := watcher.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	watcher.Stop()
}
