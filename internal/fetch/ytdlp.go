package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

// YTDLP downloads clips through the yt-dlp binary. yt-dlp negotiates the
// audio format itself and handles both media sites and plain file URLs,
// which covers message attachments too.
type YTDLP struct {
	log *zap.SugaredLogger
}

func NewYTDLP(log *zap.SugaredLogger) *YTDLP {
	return &YTDLP{log: log}
}

func (y *YTDLP) Download(ctx context.Context, source, dest string) (*Info, error) {
	cmd := exec.CommandContext(ctx, "yt-dlp",
		"-f", "webm[abr>0]/bestaudio/best",
		"--no-playlist",
		"--print-json",
		"-o", dest,
		source,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	y.log.Debugw("downloading", "source", source)
	if err := cmd.Run(); err != nil {
		y.log.Warnw("yt-dlp failed", "source", source, "stderr", stderr.String())
		return nil, fmt.Errorf("%w: yt-dlp: %v", ErrDownload, err)
	}

	var info struct {
		Duration float64 `json:"duration"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		// Metadata is optional; the prober can still measure the file.
		y.log.Debugw("yt-dlp metadata unreadable", "source", source, "err", err)
		return &Info{}, nil
	}
	return &Info{Duration: info.Duration}, nil
}
