package facescan

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"
)

func TestNewCLIWithBinary(t *testing.T) {
	cli := NewCLI(WithBinary("/opt/facescan"))
	if cli.binary != "/opt/facescan" {
		t.Fatalf("expected binary override to be applied, got %q", cli.binary)
	}
}

func TestScanRequiresInput(t *testing.T) {
	cli := NewCLI()
	if _, err := cli.Scan(context.Background(), "", 15); err == nil {
		t.Fatal("expected error for empty input path")
	}
}

func TestScanParsesSamples(t *testing.T) {
	var captured []string
	setHelperCommand(t, "success", func(args []string) {
		captured = append([]string(nil), args...)
	})

	cli := NewCLI()
	samples, err := cli.Scan(context.Background(), "/work/clip-1.mp4", 15)
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}

	if len(samples) != 2 {
		t.Fatalf("expected 2 parsed samples, got %d", len(samples))
	}
	first := samples[0]
	if first.FrameIndex != 0 || first.TimeSec != 0 {
		t.Fatalf("unexpected first sample header %+v", first)
	}
	if len(first.Detections) != 2 {
		t.Fatalf("expected 2 faces in first sample, got %d", len(first.Detections))
	}
	face := first.Detections[0]
	if face.Rect.X != 220 || face.Rect.Width != 180 {
		t.Fatalf("unexpected face box %+v", face.Rect)
	}
	if face.MouthOpenness == nil || *face.MouthOpenness != 11.5 {
		t.Fatalf("expected mouth openness 11.5, got %v", face.MouthOpenness)
	}
	second := samples[1]
	if second.FrameIndex != 15 {
		t.Fatalf("expected next sampled frame 15, got %d", second.FrameIndex)
	}
	if second.Detections[1].MouthOpenness != nil {
		t.Fatalf("expected missing mouth measurement to stay nil")
	}

	if idx := findArg(captured, "--sample-interval"); idx == -1 || captured[idx+1] != "15" {
		t.Fatalf("expected sample interval flag, got %v", captured)
	}
}

func TestScanSkipsMalformedLines(t *testing.T) {
	setHelperCommand(t, "glitch", nil)

	cli := NewCLI()
	samples, err := cli.Scan(context.Background(), "/work/clip-1.mp4", 15)
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("expected malformed line to be skipped, got %d samples", len(samples))
	}
}

func TestScanFailureSurfacesStderr(t *testing.T) {
	setHelperCommand(t, "failure", nil)

	cli := NewCLI()
	if _, err := cli.Scan(context.Background(), "/work/clip-1.mp4", 15); err == nil {
		t.Fatal("expected scan failure error")
	}
}

func setHelperCommand(t *testing.T, mode string, inspect func(args []string)) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if inspect != nil {
			inspect(append([]string(nil), args...))
		}
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("FACESCAN_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("FACESCAN_HELPER_MODE") {
	case "success":
		fmt.Println(`{"frame":0,"time":0.0,"faces":[` +
			`{"bbox":{"x":220,"y":140,"width":180,"height":220},"confidence":0.97,"mouth_openness":11.5},` +
			`{"bbox":{"x":1100,"y":160,"width":170,"height":210},"confidence":0.94,"mouth_openness":2.1}]}`)
		fmt.Println(`{"frame":15,"time":0.5,"faces":[` +
			`{"bbox":{"x":226,"y":141,"width":180,"height":220},"confidence":0.96,"mouth_openness":14.2},` +
			`{"bbox":{"x":1099,"y":161,"width":171,"height":209},"confidence":0.95}]}`)
		os.Exit(0)
	case "glitch":
		fmt.Println(`{"frame":0,"time":0.0,"faces":[]}`)
		fmt.Println(`{"frame":15,"time":0.5,"faces"`)
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "detector model missing")
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
