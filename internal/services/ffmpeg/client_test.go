package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"clipforge/internal/reframe"
	"clipforge/internal/vision"
)

func TestNewCLIWithBinaries(t *testing.T) {
	cli := NewCLI(WithBinaries("/opt/ffmpeg", "/opt/ffprobe"))
	if cli.ffmpeg != "/opt/ffmpeg" {
		t.Fatalf("expected ffmpeg override to be applied, got %q", cli.ffmpeg)
	}
	if cli.ffprobe != "/opt/ffprobe" {
		t.Fatalf("expected ffprobe override to be applied, got %q", cli.ffprobe)
	}
}

func TestProbeParsesStreams(t *testing.T) {
	setHelperCommand(t, "probe-h264")

	cli := NewCLI()
	info, err := cli.Probe(context.Background(), "/media/talk.mp4")
	if err != nil {
		t.Fatalf("Probe returned error: %v", err)
	}
	if info.DurationSec != 1834.5 {
		t.Fatalf("expected duration 1834.5, got %f", info.DurationSec)
	}
	if info.Width != 1920 || info.Height != 1080 {
		t.Fatalf("expected 1920x1080, got %dx%d", info.Width, info.Height)
	}
	if info.VideoCodec != "h264" || info.AudioCodec != "aac" {
		t.Fatalf("unexpected codecs %q/%q", info.VideoCodec, info.AudioCodec)
	}
	if !info.HasAudio {
		t.Fatal("expected audio stream to be detected")
	}
	if diff := info.FrameRate - 29.97; diff < -0.01 || diff > 0.01 {
		t.Fatalf("expected ~29.97 fps from 30000/1001, got %f", info.FrameRate)
	}
}

func TestProbeRejectsAudioOnlyFile(t *testing.T) {
	setHelperCommand(t, "probe-audio-only")

	cli := NewCLI()
	if _, err := cli.Probe(context.Background(), "/media/podcast.m4a"); err == nil {
		t.Fatal("expected error for file without a video stream")
	}
}

func TestNormalizeStreamCopiesCompatibleSource(t *testing.T) {
	args := captureFFmpegArgs(t, "probe-h264")

	cli := NewCLI()
	if err := cli.Normalize(context.Background(), "/media/talk.mp4", "/work/talk.norm.mp4", nil); err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	captured := *args
	if idx := findArg(captured, "-c"); idx == -1 || captured[idx+1] != "copy" {
		t.Fatalf("expected stream copy for h264/aac source, got %v", captured)
	}
	if findArg(captured, "libx264") != -1 {
		t.Fatalf("did not expect a re-encode for compatible source, got %v", captured)
	}
}

func TestNormalizeReencodesForeignCodec(t *testing.T) {
	args := captureFFmpegArgs(t, "probe-vp9")

	cli := NewCLI()
	if err := cli.Normalize(context.Background(), "/media/talk.webm", "/work/talk.norm.mp4", nil); err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	captured := *args
	idx := findArg(captured, "-c:v")
	if idx == -1 || captured[idx+1] != "libx264" {
		t.Fatalf("expected libx264 re-encode for vp9 source, got %v", captured)
	}
	if findArg(captured, "+faststart") == -1 {
		t.Fatalf("expected faststart flag, got %v", captured)
	}
}

func TestExtractSegmentStreamCopies(t *testing.T) {
	args := captureFFmpegArgs(t, "probe-h264")

	cli := NewCLI()
	if err := cli.ExtractSegment(context.Background(), "/work/talk.norm.mp4", "/work/clip-1.mp4", 120.5, 32); err != nil {
		t.Fatalf("ExtractSegment returned error: %v", err)
	}

	captured := *args
	ssIdx := findArg(captured, "-ss")
	inIdx := findArg(captured, "-i")
	if ssIdx == -1 || inIdx == -1 || ssIdx > inIdx {
		t.Fatalf("expected input seek before -i, got %v", captured)
	}
	if captured[ssIdx+1] != "120.500" {
		t.Fatalf("expected seek at 120.500, got %q", captured[ssIdx+1])
	}
	if idx := findArg(captured, "-c"); idx == -1 || captured[idx+1] != "copy" {
		t.Fatalf("expected stream copy cut, got %v", captured)
	}
}

func TestRenderTimelineReportsProgress(t *testing.T) {
	args := captureFFmpegArgs(t, "progress")

	cli := NewCLI()
	req := RenderRequest{
		InputPath:    "/work/clip-1.mp4",
		OutputPath:   "/renders/clip-1.vertical.mp4",
		Timeline:     soloTimeline(),
		OutputWidth:  1080,
		OutputHeight: 1920,
		DurationSec:  30,
	}

	var updates []ProgressUpdate
	if err := cli.RenderTimeline(context.Background(), req, func(update ProgressUpdate) {
		updates = append(updates, update)
	}); err != nil {
		t.Fatalf("RenderTimeline returned error: %v", err)
	}

	if len(updates) != 3 {
		t.Fatalf("expected 3 progress updates, got %d", len(updates))
	}
	if updates[0].Percent != 50 {
		t.Fatalf("expected 50 percent at 15s of 30s, got %f", updates[0].Percent)
	}
	if updates[0].Speed != "2.1x" {
		t.Fatalf("expected speed 2.1x, got %q", updates[0].Speed)
	}
	if updates[len(updates)-1].Percent != 100 {
		t.Fatalf("expected final update at 100 percent, got %f", updates[len(updates)-1].Percent)
	}

	graph := filterGraphArg(t, *args)
	if !strings.Contains(graph, "sendcmd=") || !strings.Contains(graph, "crop@pri=") {
		t.Fatalf("expected sendcmd-driven crop in filter graph, got %q", graph)
	}
	if strings.Contains(graph, "vstack") {
		t.Fatalf("did not expect stacking in solo mode, got %q", graph)
	}
}

func TestRenderTimelineDuoSplitStacksHalves(t *testing.T) {
	args := captureFFmpegArgs(t, "progress")

	timeline := soloTimeline()
	timeline.Mode = reframe.ModeDuoSplit
	timeline.Frames[0].Secondary = vision.Rect{X: 900, Y: 0, Width: 607, Height: 1080}

	cli := NewCLI()
	req := RenderRequest{
		InputPath:    "/work/clip-2.mp4",
		OutputPath:   "/renders/clip-2.vertical.mp4",
		Timeline:     timeline,
		OutputWidth:  1080,
		OutputHeight: 1920,
		DurationSec:  30,
	}
	if err := cli.RenderTimeline(context.Background(), req, nil); err != nil {
		t.Fatalf("RenderTimeline returned error: %v", err)
	}

	graph := filterGraphArg(t, *args)
	if !strings.Contains(graph, "vstack=inputs=2") {
		t.Fatalf("expected stacked halves, got %q", graph)
	}
	if !strings.Contains(graph, "crop@sec=") {
		t.Fatalf("expected secondary crop instance, got %q", graph)
	}
}

func TestRenderTimelineAppliesCaptionsAndWatermark(t *testing.T) {
	args := captureFFmpegArgs(t, "progress")

	cli := NewCLI()
	req := RenderRequest{
		InputPath:     "/work/clip-3.mp4",
		OutputPath:    "/renders/clip-3.vertical.mp4",
		Timeline:      soloTimeline(),
		OutputWidth:   1080,
		OutputHeight:  1920,
		DurationSec:   30,
		SubtitlePath:  "/work/clip-3.srt",
		WatermarkText: "@antariks",
	}
	if err := cli.RenderTimeline(context.Background(), req, nil); err != nil {
		t.Fatalf("RenderTimeline returned error: %v", err)
	}

	graph := filterGraphArg(t, *args)
	if !strings.Contains(graph, "subtitles=") {
		t.Fatalf("expected burned captions in graph, got %q", graph)
	}
	if !strings.Contains(graph, "drawtext=text='@antariks'") {
		t.Fatalf("expected watermark drawtext, got %q", graph)
	}
}

func TestRenderTimelineRejectsEmptyTimeline(t *testing.T) {
	cli := NewCLI()
	req := RenderRequest{InputPath: "/work/clip.mp4", OutputPath: "/renders/out.mp4"}
	if err := cli.RenderTimeline(context.Background(), req, nil); err == nil {
		t.Fatal("expected error for empty crop timeline")
	}
}

func TestRunSurfacesStderrOnFailure(t *testing.T) {
	setHelperCommand(t, "failure")

	cli := NewCLI()
	err := cli.Normalize(context.Background(), "/media/talk.mp4", "/work/out.mp4", nil)
	if err == nil {
		t.Fatal("expected failure error")
	}
}

func soloTimeline() reframe.Timeline {
	return reframe.Timeline{
		Mode:       reframe.ModeSolo,
		CropWidth:  607,
		CropHeight: 1080,
		Frames: []reframe.TimelineFrame{
			{FrameIndex: 0, TimeSec: 0, Primary: vision.Rect{X: 320, Y: 0, Width: 607, Height: 1080}},
			{FrameIndex: 15, TimeSec: 0.5, Primary: vision.Rect{X: 340, Y: 0, Width: 607, Height: 1080}},
		},
	}
}

func filterGraphArg(t *testing.T, args []string) string {
	t.Helper()
	idx := findArg(args, "-filter_complex")
	if idx == -1 || idx+1 >= len(args) {
		t.Fatalf("expected -filter_complex in args %v", args)
	}
	return args[idx+1]
}

// captureFFmpegArgs stubs commandContext so ffprobe calls answer with the
// given helper mode while ffmpeg calls succeed and have their args recorded.
func captureFFmpegArgs(t *testing.T, probeMode string) *[]string {
	t.Helper()
	captured := &[]string{}
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		mode := "progress"
		if strings.Contains(filepath.Base(name), "ffprobe") {
			mode = probeMode
		} else {
			*captured = append([]string(nil), args...)
		}
		return helperCommand(ctx, mode)
	}
	t.Cleanup(func() {
		commandContext = original
	})
	return captured
}

func setHelperCommand(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return helperCommand(ctx, mode)
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func helperCommand(ctx context.Context, mode string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("FFMPEG_HELPER_MODE=%s", mode))
	return cmd
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("FFMPEG_HELPER_MODE") {
	case "probe-h264":
		fmt.Println(`{"format":{"duration":"1834.5"},"streams":[` +
			`{"codec_type":"video","codec_name":"h264","width":1920,"height":1080,"avg_frame_rate":"30000/1001"},` +
			`{"codec_type":"audio","codec_name":"aac"}]}`)
		os.Exit(0)
	case "probe-vp9":
		fmt.Println(`{"format":{"duration":"600.0"},"streams":[` +
			`{"codec_type":"video","codec_name":"vp9","width":1920,"height":1080,"avg_frame_rate":"30/1"},` +
			`{"codec_type":"audio","codec_name":"opus"}]}`)
		os.Exit(0)
	case "probe-audio-only":
		fmt.Println(`{"format":{"duration":"300.0"},"streams":[{"codec_type":"audio","codec_name":"aac"}]}`)
		os.Exit(0)
	case "progress":
		fmt.Println("out_time_us=15000000")
		fmt.Println("speed=2.1x")
		fmt.Println("progress=continue")
		fmt.Println("out_time_us=27000000")
		fmt.Println("progress=continue")
		fmt.Println("progress=end")
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "Conversion failed!")
		os.Exit(1)
	default:
		os.Exit(0)
	}
}

func findArg(args []string, target string) int {
	for i, arg := range args {
		if arg == target {
			return i
		}
	}
	return -1
}
