package main

import (
	"context"
	"path/filepath"
	"testing"

	"clipforge/internal/queue"
	"clipforge/internal/testsupport"
)

func seedClip(t *testing.T, env *cliTestEnv) *queue.Clip {
	t.Helper()
	source := filepath.Join(t.TempDir(), "talk.mp4")
	testsupport.WriteFile(t, source, 1024)
	job := testsupport.NewUploadJob(t, env.store, source)

	clip := &queue.Clip{JobID: job.ID, StartSec: 30, EndSec: 60, Score: 10, Title: "Opening"}
	if err := env.store.CreateClip(context.Background(), clip); err != nil {
		t.Fatalf("CreateClip: %v", err)
	}
	return clip
}

func TestRenderStartAndList(t *testing.T) {
	env := setupCLITestEnv(t)
	clip := seedClip(t, env)

	out, _, err := runCLI(t, env, "render", "start", clip.ID, "--crop", "duo_split", "--captions")
	if err != nil {
		t.Fatalf("render start: %v", err)
	}
	requireContains(t, out, "Queued render")
	requireContains(t, out, "duo_split")

	renders, err := env.store.ListRenders(context.Background())
	if err != nil {
		t.Fatalf("ListRenders: %v", err)
	}
	if len(renders) != 1 {
		t.Fatalf("expected 1 render, got %d", len(renders))
	}
	opts, err := renders[0].Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if opts.SmartCrop != queue.CropModeDuoSplit || !opts.Captions || !opts.FaceTracking {
		t.Fatalf("unexpected options %+v", opts)
	}

	out, _, err = runCLI(t, env, "render", "list")
	if err != nil {
		t.Fatalf("render list: %v", err)
	}
	requireContains(t, out, renders[0].ID)
	requireContains(t, out, "duo_split")
}

func TestRenderStartRejectsUnknownCrop(t *testing.T) {
	env := setupCLITestEnv(t)
	clip := seedClip(t, env)

	if _, _, err := runCLI(t, env, "render", "start", clip.ID, "--crop", "sideways"); err == nil {
		t.Fatal("expected error for unknown crop mode")
	}
}

func TestRenderStartRejectsUnknownClip(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, env, "render", "start", "no-such-clip"); err == nil {
		t.Fatal("expected error for unknown clip")
	}
}

func TestRenderListEmpty(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "render", "list")
	if err != nil {
		t.Fatalf("render list: %v", err)
	}
	requireContains(t, out, "No renders queued.")
}

func TestRenderCancel(t *testing.T) {
	env := setupCLITestEnv(t)
	clip := seedClip(t, env)
	ctx := context.Background()

	item, err := env.store.NewRender(ctx, clip.ID, queue.RenderOptions{FaceTracking: true, SmartCrop: queue.CropModeAuto})
	if err != nil {
		t.Fatalf("NewRender: %v", err)
	}

	out, _, err := runCLI(t, env, "render", "cancel", item.ID)
	if err != nil {
		t.Fatalf("render cancel: %v", err)
	}
	requireContains(t, out, "Cancellation requested")

	updated, err := env.store.GetRender(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetRender: %v", err)
	}
	if updated.Status != queue.StatusCancelled && !updated.CancelRequested {
		t.Fatalf("expected cancellation recorded, got %+v", updated)
	}
}
