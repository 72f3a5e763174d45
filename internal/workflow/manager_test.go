package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/stage"
	"clipforge/internal/testsupport"
	"clipforge/internal/workflow"
)

type stubStage struct {
	name        string
	prepareHook func(*queue.Job)
	executeHook func(*queue.Job) error
	prepareErr  error
	health      stage.Health

	mu    sync.Mutex
	execs int
}

func newStubStage(name string) *stubStage {
	return &stubStage{name: name, health: stage.Healthy(name)}
}

func (s *stubStage) Prepare(_ context.Context, job *queue.Job) error {
	if s.prepareHook != nil {
		s.prepareHook(job)
	}
	return s.prepareErr
}

func (s *stubStage) Execute(_ context.Context, job *queue.Job) error {
	s.mu.Lock()
	s.execs++
	s.mu.Unlock()
	if s.executeHook != nil {
		return s.executeHook(job)
	}
	return nil
}

func (s *stubStage) HealthCheck(context.Context) stage.Health {
	return s.health
}

func (s *stubStage) executions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execs
}

func stubStageSet() (workflow.StageSet, map[string]*stubStage) {
	stages := map[string]*stubStage{
		"acquire":    newStubStage("acquire"),
		"normalize":  newStubStage("normalize"),
		"transcribe": newStubStage("transcribe"),
		"highlight":  newStubStage("highlight"),
		"clip":       newStubStage("clip"),
	}
	return workflow.StageSet{
		Acquirer:    stages["acquire"],
		Normalizer:  stages["normalize"],
		Transcriber: stages["transcribe"],
		Highlighter: stages["highlight"],
		Clipper:     stages["clip"],
	}, stages
}

func waitForStatus(t *testing.T, store *queue.Store, jobID int64, want queue.Status) *queue.Job {
	t.Helper()
	ctx := context.Background()
	deadline := time.After(30 * time.Second)
	for {
		select {
		case <-deadline:
			job, _ := store.GetJob(ctx, jobID)
			t.Fatalf("timed out waiting for %s, job is %#v", want, job)
		default:
		}
		job, err := store.GetJob(ctx, jobID)
		if err != nil {
			t.Fatalf("GetJob failed: %v", err)
		}
		if job != nil && job.Status == want {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestManagerRunsJobThroughPipeline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 0
	cfg.Workflow.Workers = 2
	store := testsupport.MustOpenStore(t, cfg)

	set, stages := stubStageSet()
	var mu sync.Mutex
	var seen []queue.Status
	stages["acquire"].prepareHook = func(job *queue.Job) { recordStatus(&mu, &seen, job.Status) }
	stages["normalize"].prepareHook = func(job *queue.Job) { recordStatus(&mu, &seen, job.Status) }
	stages["transcribe"].prepareHook = func(job *queue.Job) { recordStatus(&mu, &seen, job.Status) }
	stages["highlight"].prepareHook = func(job *queue.Job) { recordStatus(&mu, &seen, job.Status) }
	stages["clip"].prepareHook = func(job *queue.Job) { recordStatus(&mu, &seen, job.Status) }

	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	mgr.ConfigureStages(set)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(mgr.Stop)

	job := testsupport.NewUploadJob(t, store, "/videos/show.mp4")
	final := waitForStatus(t, store, job.ID, queue.StatusCompleted)

	if final.ProgressPercent != 100 {
		t.Fatalf("expected 100%% progress, got %v", final.ProgressPercent)
	}

	mu.Lock()
	defer mu.Unlock()
	wantOrder := []queue.Status{
		queue.StatusAcquiring,
		queue.StatusNormalizing,
		queue.StatusTranscribing,
		queue.StatusHighlighting,
		queue.StatusClipping,
	}
	if len(seen) != len(wantOrder) {
		t.Fatalf("expected %d stage entries, got %v", len(wantOrder), seen)
	}
	for i, status := range wantOrder {
		if seen[i] != status {
			t.Fatalf("stage order diverged at %d: got %v", i, seen)
		}
	}
}

func recordStatus(mu *sync.Mutex, seen *[]queue.Status, status queue.Status) {
	mu.Lock()
	*seen = append(*seen, status)
	mu.Unlock()
}

func TestManagerFailsJobAndRetryResumes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 0
	store := testsupport.MustOpenStore(t, cfg)

	set, stages := stubStageSet()
	var fail sync.Mutex
	failing := true
	stages["transcribe"].executeHook = func(*queue.Job) error {
		fail.Lock()
		defer fail.Unlock()
		if failing {
			return services.Wrap(services.ErrExternalTool, "transcribe", "run model", "speech model crashed", errors.New("exit 1"))
		}
		return nil
	}

	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	mgr.ConfigureStages(set)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(mgr.Stop)

	job := testsupport.NewUploadJob(t, store, "/videos/show.mp4")
	failed := waitForStatus(t, store, job.ID, queue.StatusFailed)
	if failed.ErrorMessage == "" {
		t.Fatal("expected persisted error message")
	}

	// Earlier stages completed once; the job must not re-run them while failed.
	acquiresBefore := stages["acquire"].executions()
	if acquiresBefore != 1 {
		t.Fatalf("expected exactly one acquire execution, got %d", acquiresBefore)
	}

	fail.Lock()
	failing = false
	fail.Unlock()

	if _, err := store.RetryFailedJobs(context.Background(), job.ID); err != nil {
		t.Fatalf("RetryFailedJobs failed: %v", err)
	}
	waitForStatus(t, store, job.ID, queue.StatusCompleted)
}

func TestManagerCancelsPendingJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 0
	cfg.Workflow.Workers = 1
	store := testsupport.MustOpenStore(t, cfg)

	// Stall the lone worker on another job so the cancel lands while pending.
	set, stages := stubStageSet()
	release := make(chan struct{})
	stages["acquire"].executeHook = func(*queue.Job) error {
		<-release
		return nil
	}

	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	mgr.ConfigureStages(set)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blocker := testsupport.NewUploadJob(t, store, "/videos/blocker.mp4")
	victim := testsupport.NewUploadJob(t, store, "/videos/victim.mp4")

	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		close(release)
		mgr.Stop()
	})

	waitForStatus(t, store, blocker.ID, queue.StatusAcquiring)
	if ok, err := store.RequestJobCancel(context.Background(), victim.ID); err != nil || !ok {
		t.Fatalf("RequestJobCancel failed: ok=%v err=%v", ok, err)
	}

	cancelled := waitForStatus(t, store, victim.ID, queue.StatusCancelled)
	if !cancelled.IsTerminal() {
		t.Fatal("cancelled job should be terminal")
	}
}

type stubRenderer struct {
	executeHook func(*queue.Render) error
}

func (s *stubRenderer) Prepare(context.Context, *queue.Render) error { return nil }

func (s *stubRenderer) Execute(_ context.Context, render *queue.Render) error {
	if s.executeHook != nil {
		return s.executeHook(render)
	}
	render.OutputPath = "/renders/out.mp4"
	return nil
}

func (s *stubRenderer) HealthCheck(context.Context) stage.Health { return stage.Healthy("render") }

func TestManagerProcessesRenderQueue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 0
	store := testsupport.MustOpenStore(t, cfg)

	set, _ := stubStageSet()
	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	mgr.ConfigureStages(set)
	mgr.ConfigureRenderer(&stubRenderer{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(mgr.Stop)

	job := testsupport.NewUploadJob(t, store, "/videos/show.mp4")
	clip := &queue.Clip{JobID: job.ID, StartSec: 5, EndSec: 40, Score: 80}
	if err := store.CreateClip(ctx, clip); err != nil {
		t.Fatalf("CreateClip failed: %v", err)
	}
	render, err := store.NewRender(ctx, clip.ID, queue.RenderOptions{FaceTracking: true})
	if err != nil {
		t.Fatalf("NewRender failed: %v", err)
	}

	deadline := time.After(30 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for render completion")
		default:
		}
		current, err := store.GetRender(ctx, render.ID)
		if err != nil {
			t.Fatalf("GetRender failed: %v", err)
		}
		if current.Status == queue.StatusCompleted {
			if current.OutputPath != "/renders/out.mp4" {
				t.Fatalf("expected output path persisted, got %q", current.OutputPath)
			}
			return
		}
		if current.Status == queue.StatusFailed {
			t.Fatalf("render failed: %s", current.ErrorMessage)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestManagerHealthAggregatesStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	set, stages := stubStageSet()
	stages["transcribe"].health = stage.Unhealthy("transcribe", "speech model missing")

	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	mgr.ConfigureStages(set)

	health, err := mgr.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if len(health.Stages) != 5 {
		t.Fatalf("expected 5 stage reports, got %d", len(health.Stages))
	}
	ready := 0
	for _, report := range health.Stages {
		if report.Ready {
			ready++
		}
	}
	if ready != 4 {
		t.Fatalf("expected 4 ready stages, got %d", ready)
	}
}
