package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

// Probe inspects a media file with ffprobe.
func (c *CLI) Probe(ctx context.Context, inputPath string) (MediaInfo, error) {
	cmd := commandContext(ctx, c.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath)
	output, err := cmd.Output()
	if err != nil {
		return MediaInfo{}, fmt.Errorf("ffprobe %s: %w", inputPath, err)
	}

	var parsed probeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return MediaInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := MediaInfo{}
	if parsed.Format.Duration != "" {
		if d, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
			info.DurationSec = d
		}
	}
	for _, stream := range parsed.Streams {
		switch stream.CodecType {
		case "video":
			if info.VideoCodec == "" {
				info.VideoCodec = stream.CodecName
				info.Width = stream.Width
				info.Height = stream.Height
				info.FrameRate = parseFrameRate(stream.AvgFrameRate)
			}
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = stream.CodecName
				info.HasAudio = true
			}
		}
	}
	if info.VideoCodec == "" {
		return MediaInfo{}, fmt.Errorf("no video stream in %s", inputPath)
	}
	return info, nil
}

// parseFrameRate handles ffprobe's rational form, e.g. "30000/1001".
func parseFrameRate(raw string) float64 {
	num, den, found := strings.Cut(raw, "/")
	if !found {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
		return 0
	}
	n, errN := strconv.ParseFloat(num, 64)
	d, errD := strconv.ParseFloat(den, 64)
	if errN != nil || errD != nil || d == 0 {
		return 0
	}
	return n / d
}

// Normalize rewrites the input as H.264/AAC MP4. Sources that already carry
// compatible codecs are stream-copied to avoid a full re-encode.
func (c *CLI) Normalize(ctx context.Context, inputPath, outputPath string, progress func(ProgressUpdate)) error {
	info, err := c.Probe(ctx, inputPath)
	if err != nil {
		return err
	}

	args := []string{"-i", inputPath}
	if info.VideoCodec == "h264" && (info.AudioCodec == "aac" || !info.HasAudio) {
		args = append(args, "-c", "copy", "-movflags", "+faststart")
	} else {
		args = append(args,
			"-c:v", "libx264",
			"-preset", "fast",
			"-crf", "22",
			"-c:a", "aac",
			"-b:a", "160k",
			"-movflags", "+faststart")
	}
	args = append(args, outputPath)
	return c.run(ctx, args, info.DurationSec, progress)
}

// ExtractSegment cuts a window out of the source without re-encoding. The
// input seek keeps cuts fast; keyframe drift is acceptable for clip bounds.
func (c *CLI) ExtractSegment(ctx context.Context, inputPath, outputPath string, startSec, durationSec float64) error {
	args := []string{
		"-ss", formatSeconds(startSec),
		"-i", inputPath,
		"-t", formatSeconds(durationSec),
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		outputPath,
	}
	return c.run(ctx, args, 0, nil)
}

// Thumbnail grabs a single frame at the given offset.
func (c *CLI) Thumbnail(ctx context.Context, inputPath, outputPath string, atSec float64) error {
	args := []string{
		"-ss", formatSeconds(atSec),
		"-i", inputPath,
		"-frames:v", "1",
		"-q:v", "3",
		outputPath,
	}
	return c.run(ctx, args, 0, nil)
}
