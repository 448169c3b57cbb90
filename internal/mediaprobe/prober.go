// Package mediaprobe extracts technical metadata from media files and
// renders thumbnails using the ffprobe and ffmpeg command-line tools.
package mediaprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

var commandContext = exec.CommandContext

// Metadata holds the probe results stored alongside a package.
type Metadata struct {
	Duration   time.Duration `json:"duration"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	VideoCodec string        `json:"videoCodec"`
	AudioCodec string        `json:"audioCodec"`
	Size       int64         `json:"size"`
}

// Prober defines the metadata and thumbnail operations the pipeline needs.
type Prober interface {
	Probe(ctx context.Context, path string) (Metadata, error)
	Thumbnail(ctx context.Context, src, dst string, offset time.Duration) error
}

// Option configures the CLI prober.
type Option func(*CLI)

// WithBinaries overrides the default ffmpeg/ffprobe binary names.
func WithBinaries(ffmpeg, ffprobe string) Option {
	return func(c *CLI) {
		if ffmpeg != "" {
			c.ffmpeg = ffmpeg
		}
		if ffprobe != "" {
			c.ffprobe = ffprobe
		}
	}
}

// WithTimeout bounds each tool invocation.
func WithTimeout(timeout time.Duration) Option {
	return func(c *CLI) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// CLI wraps the ffprobe and ffmpeg command-line tools.
type CLI struct {
	ffmpeg  string
	ffprobe string
	timeout time.Duration
}

// NewCLI constructs a CLI prober using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{ffmpeg: "ffmpeg", ffprobe: "ffprobe", timeout: 2 * time.Minute}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

type probePayload struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

// Probe runs ffprobe and decodes the stream and format sections.
func (c *CLI) Probe(ctx context.Context, path string) (Metadata, error) {
	if path == "" {
		return Metadata{}, errors.New("media path required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
	output, err := commandContext(ctx, c.ffprobe, args...).Output() //nolint:gosec
	if err != nil {
		return Metadata{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var payload probePayload
	if err := json.Unmarshal(output, &payload); err != nil {
		return Metadata{}, fmt.Errorf("decode ffprobe output: %w", err)
	}

	meta := Metadata{}
	for _, stream := range payload.Streams {
		switch stream.CodecType {
		case "video":
			if meta.VideoCodec == "" {
				meta.VideoCodec = stream.CodecName
				meta.Width = stream.Width
				meta.Height = stream.Height
			}
		case "audio":
			if meta.AudioCodec == "" {
				meta.AudioCodec = stream.CodecName
			}
		}
	}
	if seconds, err := strconv.ParseFloat(strings.TrimSpace(payload.Format.Duration), 64); err == nil {
		meta.Duration = time.Duration(seconds * float64(time.Second))
	}
	if size, err := strconv.ParseInt(strings.TrimSpace(payload.Format.Size), 10, 64); err == nil {
		meta.Size = size
	}
	if meta.VideoCodec == "" {
		return Metadata{}, fmt.Errorf("no video stream in %s", path)
	}
	return meta, nil
}

// Thumbnail extracts a single frame at the given offset into dst.
func (c *CLI) Thumbnail(ctx context.Context, src, dst string, offset time.Duration) error {
	if src == "" || dst == "" {
		return errors.New("source and destination paths required")
	}
	if offset < 0 {
		offset = 0
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := []string{
		"-y",
		"-ss", formatOffset(offset),
		"-i", src,
		"-frames:v", "1",
		"-q:v", "2",
		dst,
	}
	if output, err := commandContext(ctx, c.ffmpeg, args...).CombinedOutput(); err != nil { //nolint:gosec
		return fmt.Errorf("ffmpeg thumbnail %s: %w: %s", src, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func formatOffset(offset time.Duration) string {
	return strconv.FormatFloat(offset.Seconds(), 'f', 3, 64)
}

var _ Prober = (*CLI)(nil)
