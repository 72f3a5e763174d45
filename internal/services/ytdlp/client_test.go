package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"testing"

	"clipforge/internal/services"
)

func TestNewCLIWithBinary(t *testing.T) {
	cli := NewCLI(WithBinary("/opt/yt-dlp"))
	if cli.binary != "/opt/yt-dlp" {
		t.Fatalf("expected binary override to be applied, got %q", cli.binary)
	}
}

func TestDownloadRequiresSource(t *testing.T) {
	cli := NewCLI()
	err := cli.Download(context.Background(), "", "/work/raw.mp4", nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty source, got %v", err)
	}
}

func TestDownloadReportsProgress(t *testing.T) {
	setHelperCommand(t, func(int) string { return "success" }, nil)

	cli := NewCLI()
	var updates []ProgressUpdate
	err := cli.Download(context.Background(), "https://youtube.com/watch?v=abc123", "/work/raw.mp4", func(update ProgressUpdate) {
		updates = append(updates, update)
	})
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}

	if len(updates) != 3 {
		t.Fatalf("expected 3 progress updates, got %d", len(updates))
	}
	if updates[1].Percent != 45.2 {
		t.Fatalf("expected 45.2 percent, got %f", updates[1].Percent)
	}
	if updates[1].Speed != "8.21MiB/s" {
		t.Fatalf("expected parsed speed, got %q", updates[1].Speed)
	}
	if updates[0].Strategy != defaultFormats[0] {
		t.Fatalf("expected first strategy label, got %q", updates[0].Strategy)
	}
}

func TestDownloadFallsBackThroughFormats(t *testing.T) {
	var formats []string
	setHelperCommand(t, func(call int) string {
		if call < 2 {
			return "neterror"
		}
		return "success"
	}, func(args []string) {
		for i, arg := range args {
			if arg == "-f" && i+1 < len(args) {
				formats = append(formats, args[i+1])
			}
		}
	})

	cli := NewCLI()
	if err := cli.Download(context.Background(), "https://youtube.com/watch?v=abc123", "/work/raw.mp4", nil); err != nil {
		t.Fatalf("Download returned error: %v", err)
	}

	if len(formats) != 3 {
		t.Fatalf("expected 3 attempts before success, got %d (%v)", len(formats), formats)
	}
	for i, format := range formats {
		if format != defaultFormats[i] {
			t.Fatalf("expected ladder order %v, got %v", defaultFormats, formats)
		}
	}
}

func TestDownloadAbortsOnUnavailableSource(t *testing.T) {
	calls := 0
	setHelperCommand(t, func(int) string { return "unavailable" }, func([]string) { calls++ })

	cli := NewCLI()
	err := cli.Download(context.Background(), "https://youtube.com/watch?v=gone", "/work/raw.mp4", nil)
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected unavailable classification, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected dead source to skip remaining strategies, got %d attempts", calls)
	}
}

func TestDownloadExhaustedLadderIsTransient(t *testing.T) {
	setHelperCommand(t, func(int) string { return "neterror" }, nil)

	cli := NewCLI(WithFormats([]string{"best"}))
	err := cli.Download(context.Background(), "https://youtube.com/watch?v=abc123", "/work/raw.mp4", nil)
	if !services.IsRetryable(err) {
		t.Fatalf("expected transient classification for network failure, got %v", err)
	}
}

func setHelperCommand(t *testing.T, modeFor func(call int) string, inspect func(args []string)) {
	t.Helper()
	call := 0
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if inspect != nil {
			inspect(append([]string(nil), args...))
		}
		mode := modeFor(call)
		call++
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("YTDLP_HELPER_MODE=%s", mode))
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

	switch os.Getenv("YTDLP_HELPER_MODE") {
	case "success":
		fmt.Println("[youtube] abc123: Downloading webpage")
		fmt.Println("[download]   0.0% of 812.40MiB at  2.05MiB/s ETA 06:36")
		fmt.Println("[download]  45.2% of 812.40MiB at  8.21MiB/s ETA 00:54")
		fmt.Println("[download] 100.0% of 812.40MiB in 01:39")
		os.Exit(0)
	case "unavailable":
		fmt.Fprintln(os.Stderr, "ERROR: [youtube] gone: Video unavailable")
		os.Exit(1)
	case "neterror":
		fmt.Fprintln(os.Stderr, "ERROR: unable to download video data: Connection timed out")
		os.Exit(1)
	default:
		os.Exit(0)
	}
}
