package whisper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"testing"

	"clipforge/internal/services"
)

func TestNewCLIApplyOptions(t *testing.T) {
	cli := NewCLI(WithBinary("/opt/whisper-ctl"), WithModel("small"), WithLanguage("id"))
	if cli.binary != "/opt/whisper-ctl" {
		t.Fatalf("expected binary override, got %q", cli.binary)
	}
	if cli.model != "small" {
		t.Fatalf("expected model override, got %q", cli.model)
	}
	if cli.language != "id" {
		t.Fatalf("expected language override, got %q", cli.language)
	}
}

func TestTranscribeRequiresPaths(t *testing.T) {
	cli := NewCLI()
	if err := cli.Transcribe(context.Background(), "", "/out.json", nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty input, got %v", err)
	}
	if err := cli.Transcribe(context.Background(), "/in.mp4", "", nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty output, got %v", err)
	}
}

func TestTranscribePassesModelAndLanguage(t *testing.T) {
	var captured []string
	setHelperCommand(t, "success", func(args []string) {
		captured = append([]string(nil), args...)
	})

	cli := NewCLI(WithModel("medium"), WithLanguage("id"))
	if err := cli.Transcribe(context.Background(), "/work/talk.norm.mp4", "/work/talk.json", nil); err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}

	if idx := findArg(captured, "--model"); idx == -1 || captured[idx+1] != "medium" {
		t.Fatalf("expected --model medium, got %v", captured)
	}
	if idx := findArg(captured, "--language"); idx == -1 || captured[idx+1] != "id" {
		t.Fatalf("expected --language id, got %v", captured)
	}
	if idx := findArg(captured, "--output"); idx == -1 || captured[idx+1] != "/work/talk.json" {
		t.Fatalf("expected output path, got %v", captured)
	}
}

func TestTranscribeOmitsAutoLanguage(t *testing.T) {
	var captured []string
	setHelperCommand(t, "success", func(args []string) {
		captured = append([]string(nil), args...)
	})

	cli := NewCLI(WithLanguage("auto"))
	if err := cli.Transcribe(context.Background(), "/work/talk.norm.mp4", "/work/talk.json", nil); err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if findArg(captured, "--language") != -1 {
		t.Fatalf("expected auto language to be omitted, got %v", captured)
	}
}

func TestTranscribeReportsProgress(t *testing.T) {
	setHelperCommand(t, "success", nil)

	cli := NewCLI()
	var updates []ProgressUpdate
	if err := cli.Transcribe(context.Background(), "/work/talk.norm.mp4", "/work/talk.json", func(update ProgressUpdate) {
		updates = append(updates, update)
	}); err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}

	if len(updates) != 2 {
		t.Fatalf("expected 2 progress updates from valid events, got %d", len(updates))
	}
	if updates[0].Percent != 38.5 || updates[0].Message != "decoding audio" {
		t.Fatalf("unexpected first update %+v", updates[0])
	}
	if updates[1].Percent != 100 {
		t.Fatalf("expected final update at 100 percent, got %f", updates[1].Percent)
	}
}

func TestTranscribeFailureSurfacesStderr(t *testing.T) {
	setHelperCommand(t, "failure", nil)

	cli := NewCLI()
	err := cli.Transcribe(context.Background(), "/work/talk.norm.mp4", "/work/talk.json", nil)
	if err == nil {
		t.Fatal("expected transcription failure error")
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
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("WHISPER_HELPER_MODE=%s", mode))
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

	switch os.Getenv("WHISPER_HELPER_MODE") {
	case "success":
		fmt.Println(`{"type":"model_load","message":"loading base"}`)
		fmt.Println(`{"type":"progress","percent":38.5,"message":"decoding audio"}`)
		fmt.Println("not-json")
		fmt.Println(`{"type":"progress","percent":100,"message":"done"}`)
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "failed to load model weights")
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
