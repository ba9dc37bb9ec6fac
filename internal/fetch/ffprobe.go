package fetch

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// FFProbe measures clip duration with the ffprobe binary.
type FFProbe struct{}

func NewFFProbe() *FFProbe {
	return &FFProbe{}
}

func (FFProbe) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		"-loglevel", "error",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	length, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe output %q: %w", strings.TrimSpace(string(out)), err)
	}
	return length, nil
}
