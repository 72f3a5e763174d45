package normalize_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"clipforge/internal/logging"
	"clipforge/internal/normalize"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/services/ffmpeg"
	"clipforge/internal/testsupport"
)

type fakeMedia struct {
	ffmpeg.Service
	calls int
	fail  bool
}

func (f *fakeMedia) Normalize(ctx context.Context, inputPath, outputPath string, progress func(ffmpeg.ProgressUpdate)) error {
	f.calls++
	if f.fail {
		return errors.New("encoder crashed")
	}
	if progress != nil {
		progress(ffmpeg.ProgressUpdate{Percent: 50})
		progress(ffmpeg.ProgressUpdate{Percent: 100})
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outputPath, []byte("normalized-bytes"), 0o644)
}

func (f *fakeMedia) Available(context.Context) error { return nil }

func TestExecuteNormalizesRawMedia(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	source := filepath.Join(t.TempDir(), "talk.mp4")
	testsupport.WriteFile(t, source, 2048)
	job := testsupport.NewUploadJob(t, store, source)
	raw := filepath.Join(cfg.RawDir(), "job-raw.mp4")
	testsupport.WriteFile(t, raw, 4096)
	job.RawFile = raw

	media := &fakeMedia{}
	handler := normalize.NewNormalizerWithDependencies(cfg, store, logging.NewNop(), media)

	if err := handler.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if err := handler.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if job.NormalizedFile == "" {
		t.Fatal("expected normalized artifact path to be recorded")
	}
	if _, err := os.Stat(job.NormalizedFile); err != nil {
		t.Fatalf("expected normalized artifact on disk: %v", err)
	}
	if media.calls != 1 {
		t.Fatalf("expected one transcode, got %d", media.calls)
	}
}

func TestExecuteSkipsWhenNormalizedArtifactPresent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	source := filepath.Join(t.TempDir(), "talk.mp4")
	testsupport.WriteFile(t, source, 2048)
	job := testsupport.NewUploadJob(t, store, source)
	raw := filepath.Join(cfg.RawDir(), "job-raw.mp4")
	testsupport.WriteFile(t, raw, 4096)
	job.RawFile = raw
	normalized := filepath.Join(cfg.NormalizedDir(), "job-1.mp4")
	testsupport.WriteFile(t, normalized, 4096)
	job.NormalizedFile = normalized

	media := &fakeMedia{}
	handler := normalize.NewNormalizerWithDependencies(cfg, store, logging.NewNop(), media)

	if err := handler.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if media.calls != 0 {
		t.Fatalf("expected resume to skip transcoding, got %d calls", media.calls)
	}
}

func TestPrepareRejectsMissingRawArtifact(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	handler := normalize.NewNormalizerWithDependencies(cfg, store, logging.NewNop(), &fakeMedia{})
	job := &queue.Job{Status: queue.StatusNormalizing}
	if err := handler.Prepare(context.Background(), job); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing raw artifact, got %v", err)
	}
}

func TestExecuteClassifiesEncoderFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	source := filepath.Join(t.TempDir(), "talk.mp4")
	testsupport.WriteFile(t, source, 2048)
	job := testsupport.NewUploadJob(t, store, source)
	raw := filepath.Join(cfg.RawDir(), "job-raw.mp4")
	testsupport.WriteFile(t, raw, 4096)
	job.RawFile = raw

	handler := normalize.NewNormalizerWithDependencies(cfg, store, logging.NewNop(), &fakeMedia{fail: true})
	err := handler.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool classification, got %v", err)
	}
}
