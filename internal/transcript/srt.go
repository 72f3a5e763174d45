package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WriteSRT renders the transcript segments overlapping [startSec, endSec) as an
// SRT subtitle file with timestamps rebased to the clip start.
func WriteSRT(path string, t *Transcript, startSec, endSec float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create caption dir: %w", err)
	}

	var b strings.Builder
	index := 1
	for _, seg := range t.Segments {
		if seg.End <= startSec || seg.Start >= endSec {
			continue
		}
		begin := seg.Start - startSec
		if begin < 0 {
			begin = 0
		}
		finish := seg.End - startSec
		if limit := endSec - startSec; finish > limit {
			finish = limit
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", index, srtTimestamp(begin), srtTimestamp(finish), seg.Text)
		index++
	}
	if index == 1 {
		return fmt.Errorf("no segments overlap clip window %.2f-%.2f", startSec, endSec)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write captions: %w", err)
	}
	return nil
}

func srtTimestamp(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	millis := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}
