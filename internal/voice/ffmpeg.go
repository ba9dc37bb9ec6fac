package voice

import (
	"fmt"
	"io"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"soundbort/internal/playback"
)

// FFmpegSource decodes stored sound files to 48kHz stereo s16le PCM with
// an ffmpeg subprocess, applying seek, volume and speed parameters.
type FFmpegSource struct {
	log *zap.SugaredLogger
}

func NewFFmpegSource(log *zap.SugaredLogger) *FFmpegSource {
	return &FFmpegSource{log: log}
}

func (s *FFmpegSource) Open(path string, args playback.Args) (io.ReadCloser, func(), error) {
	cmdArgs := []string{}
	if args.Seek > 0 {
		cmdArgs = append(cmdArgs, "-ss", fmt.Sprintf("%.3f", args.Seek.Seconds()))
	}
	cmdArgs = append(cmdArgs, "-i", path)
	if filter := buildFilter(args); filter != "" {
		cmdArgs = append(cmdArgs, "-filter:a", filter)
	}
	cmdArgs = append(cmdArgs,
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", fmt.Sprintf("%d", channels),
		"-loglevel", "warning",
		"pipe:1",
	)

	cmd := exec.Command("ffmpeg", cmdArgs...)
	reader, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe error: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("command start error: %w", err)
	}

	cleanup := func() {
		cmd.Process.Kill()
		if err := cmd.Wait(); err != nil {
			s.log.Debugw("ffmpeg exited", "path", path, "err", err)
		}
	}

	return reader, cleanup, nil
}

// buildFilter assembles the audio filter chain. A single atempo instance
// only accepts factors in [0.5, 2.0], so larger speed changes are
// decomposed into a chain of in-range factors.
func buildFilter(args playback.Args) string {
	var filters []string

	if args.Speed > 0 && args.Speed != 1.0 {
		speed := args.Speed
		for speed > 2.0 {
			filters = append(filters, "atempo=2.0")
			speed /= 2.0
		}
		for speed < 0.5 {
			filters = append(filters, "atempo=0.5")
			speed /= 0.5
		}
		filters = append(filters, fmt.Sprintf("atempo=%.4f", speed))
	}

	if args.Volume != 1.0 {
		filters = append(filters, fmt.Sprintf("volume=%.2f", args.Volume))
	}

	return strings.Join(filters, ",")
}
