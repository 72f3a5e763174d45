package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"strings"

	"clipforge/internal/reframe"
)

// RenderRequest describes one vertical export: the cut segment to read, the
// crop path to follow, and the presentation extras to burn in.
type RenderRequest struct {
	InputPath     string
	OutputPath    string
	Timeline      reframe.Timeline
	OutputWidth   int
	OutputHeight  int
	DurationSec   float64
	SubtitlePath  string
	WatermarkText string
}

// RenderTimeline re-encodes the segment following the planned crop path. The
// per-frame crop positions are dispatched through a sendcmd script so a
// single ffmpeg pass handles tracking, scaling, captions, and watermark.
func (c *CLI) RenderTimeline(ctx context.Context, req RenderRequest, progress func(ProgressUpdate)) error {
	if len(req.Timeline.Frames) == 0 {
		return fmt.Errorf("render %s: empty crop timeline", req.InputPath)
	}

	script, err := writeCropScript(req.Timeline)
	if err != nil {
		return err
	}
	defer os.Remove(script)

	graph := buildFilterGraph(req, script)
	args := []string{
		"-i", req.InputPath,
		"-filter_complex", graph,
		"-map", "[vout]",
		"-map", "0:a?",
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "21",
		"-c:a", "aac",
		"-b:a", "160k",
		"-movflags", "+faststart",
		req.OutputPath,
	}
	return c.run(ctx, args, req.DurationSec, progress)
}

// writeCropScript emits one sendcmd interval per timeline frame addressing
// the named crop filter instances.
func writeCropScript(timeline reframe.Timeline) (string, error) {
	file, err := os.CreateTemp("", "clipforge-crop-*.cmd")
	if err != nil {
		return "", fmt.Errorf("crop script: %w", err)
	}

	var b strings.Builder
	for _, frame := range timeline.Frames {
		ts := formatSeconds(frame.TimeSec)
		fmt.Fprintf(&b, "%s crop@pri x %d, crop@pri y %d", ts, frame.Primary.X, frame.Primary.Y)
		if timeline.Mode == reframe.ModeDuoSplit {
			fmt.Fprintf(&b, ", crop@sec x %d, crop@sec y %d", frame.Secondary.X, frame.Secondary.Y)
		}
		b.WriteString(";\n")
	}

	if _, err := file.WriteString(b.String()); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", fmt.Errorf("crop script: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("crop script: %w", err)
	}
	return file.Name(), nil
}

func buildFilterGraph(req RenderRequest, script string) string {
	t := req.Timeline
	first := t.Frames[0]
	outW, outH := req.OutputWidth, req.OutputHeight

	var stages []string
	if t.Mode == reframe.ModeDuoSplit {
		// Each speaker fills half the frame; crops are stacked top/bottom.
		half := outH / 2
		stages = append(stages,
			fmt.Sprintf("[0:v]sendcmd=f='%s',split=2[srcA][srcB]", script),
			fmt.Sprintf("[srcA]crop@pri=w=%d:h=%d:x=%d:y=%d,scale=%d:%d,crop=%d:%d:0:%d[half1]",
				t.CropWidth, t.CropHeight, first.Primary.X, first.Primary.Y,
				outW, outH, outW, half, half/2),
			fmt.Sprintf("[srcB]crop@sec=w=%d:h=%d:x=%d:y=%d,scale=%d:%d,crop=%d:%d:0:%d[half2]",
				t.CropWidth, t.CropHeight, first.Secondary.X, first.Secondary.Y,
				outW, outH, outW, half, half/2),
			"[half1][half2]vstack=inputs=2,setsar=1[framed]")
	} else {
		stages = append(stages,
			fmt.Sprintf("[0:v]sendcmd=f='%s',crop@pri=w=%d:h=%d:x=%d:y=%d,scale=%d:%d,setsar=1[framed]",
				script, t.CropWidth, t.CropHeight, first.Primary.X, first.Primary.Y, outW, outH))
	}

	extras := "[framed]"
	var chain []string
	if req.SubtitlePath != "" {
		chain = append(chain, fmt.Sprintf("subtitles='%s'", filterEscape(req.SubtitlePath)))
	}
	if req.WatermarkText != "" {
		chain = append(chain, fmt.Sprintf(
			"drawtext=text='%s':fontcolor=white@0.6:fontsize=h/40:x=(w-text_w)/2:y=h-text_h-h/30",
			filterEscape(req.WatermarkText)))
	}
	if len(chain) > 0 {
		stages = append(stages, extras+strings.Join(chain, ",")+"[vout]")
	} else {
		stages = append(stages, extras+"null[vout]")
	}

	return strings.Join(stages, ";")
}

// filterEscape quotes the characters ffmpeg's filter parser treats specially.
func filterEscape(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`,`, `\,`,
		`[`, `\[`,
		`]`, `\]`,
	)
	return replacer.Replace(s)
}
