package highlighting_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"clipforge/internal/highlighting"
	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/testsupport"
	"clipforge/internal/transcript"
)

func transcribedJob(t *testing.T, store *queue.Store, document *transcript.Transcript, path string) *queue.Job {
	t.Helper()
	source := filepath.Join(t.TempDir(), "talk.mp4")
	testsupport.WriteFile(t, source, 2048)
	job := testsupport.NewUploadJob(t, store, source)

	if err := transcript.Save(path, document); err != nil {
		t.Fatalf("save transcript: %v", err)
	}
	job.TranscriptFile = path
	job.MediaDuration = document.Duration
	return job
}

func richTranscript() *transcript.Transcript {
	doc := &transcript.Transcript{Language: "id", Duration: 600}
	for i := 0; i < 60; i++ {
		start := float64(i * 10)
		text := fmt.Sprintf("Pada bagian ini kita membahas topik nomor %d dengan detail tambahan", i)
		if i%7 == 0 {
			text = "Ini penting sekali, rahasianya adalah konsistensi setiap hari"
		}
		doc.Segments = append(doc.Segments, transcript.Segment{
			Start: start,
			End:   start + 10,
			Text:  text,
		})
	}
	return doc
}

func TestExecutePersistsRankedClips(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := transcribedJob(t, store, richTranscript(), filepath.Join(cfg.TranscriptDir(), "job.json"))

	handler := highlighting.NewSelector(cfg, store, logging.NewNop())
	if err := handler.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if err := handler.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	clips, err := store.ClipsByJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("ClipsByJob returned error: %v", err)
	}
	if len(clips) == 0 {
		t.Fatal("expected clips to be persisted")
	}
	for i := 1; i < len(clips); i++ {
		if clips[i].Score > clips[i-1].Score {
			t.Fatalf("expected clips ranked by score, got %f before %f", clips[i-1].Score, clips[i].Score)
		}
	}
	for _, clip := range clips {
		duration := clip.EndSec - clip.StartSec
		if duration < cfg.Clips.MinDuration || duration > cfg.Clips.MaxDuration {
			t.Fatalf("clip duration %f outside bounds", duration)
		}
		var meta map[string]any
		if err := json.Unmarshal([]byte(clip.MetadataJSON), &meta); err != nil {
			t.Fatalf("expected decodable metadata: %v", err)
		}
		if clip.Title == "" || clip.Snippet == "" {
			t.Fatalf("expected title and snippet, got %+v", clip)
		}
	}
}

func TestExecuteReplacesPreviousSelection(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := transcribedJob(t, store, richTranscript(), filepath.Join(cfg.TranscriptDir(), "job.json"))

	stale := &queue.Clip{JobID: job.ID, StartSec: 1, EndSec: 31, Score: 99, Title: "stale"}
	if err := store.CreateClip(context.Background(), stale); err != nil {
		t.Fatalf("CreateClip returned error: %v", err)
	}

	handler := highlighting.NewSelector(cfg, store, logging.NewNop())
	if err := handler.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	clips, err := store.ClipsByJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("ClipsByJob returned error: %v", err)
	}
	for _, clip := range clips {
		if clip.Title == "stale" {
			t.Fatal("expected previous selection to be replaced")
		}
	}
}

func TestExecuteFailsOnInsufficientContent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	// Two short segments cannot form a clip-length window.
	thin := &transcript.Transcript{
		Language: "id",
		Duration: 8,
		Segments: []transcript.Segment{
			{Start: 0, End: 4, Text: "Halo semua"},
			{Start: 4, End: 8, Text: "Sampai jumpa"},
		},
	}
	job := transcribedJob(t, store, thin, filepath.Join(cfg.TranscriptDir(), "thin.json"))

	handler := highlighting.NewSelector(cfg, store, logging.NewNop())
	err := handler.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation failure for thin transcript, got %v", err)
	}
}

func TestPrepareRejectsMissingTranscript(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	handler := highlighting.NewSelector(cfg, store, logging.NewNop())
	job := &queue.Job{Status: queue.StatusHighlighting, TranscriptFile: filepath.Join(os.TempDir(), "missing.json")}
	if err := handler.Prepare(context.Background(), job); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
