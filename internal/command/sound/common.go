package sound

import (
	"fmt"

	"soundbort/internal/command"
)

const okReaction = "✅"

func usageError(cmd command.Command) error {
	return fmt.Errorf("usage: `%s`", cmd.Usage())
}

// sourceOrAttachment picks an explicit source URL argument, falling back to
// the invoking message's first attachment.
func sourceOrAttachment(ctx *command.Context, arg string) (string, error) {
	if arg != "" {
		return arg, nil
	}
	if url := ctx.Attachment(); url != "" {
		return url, nil
	}
	return "", fmt.Errorf("download link or file attachment required")
}
