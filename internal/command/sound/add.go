package sound

import (
	"fmt"
	"sort"
	"strings"

	"soundbort/internal/command"
)

type AddCommand struct{}

func (AddCommand) Name() string        { return "add" }
func (AddCommand) Aliases() []string   { return nil }
func (AddCommand) Description() string { return "Add a new sound to the soundboard." }
func (AddCommand) Usage() string       { return "add <name> [url]" }

func (c AddCommand) Run(ctx *command.Context) error {
	if len(ctx.Args) < 1 {
		return usageError(c)
	}

	var arg string
	if len(ctx.Args) > 1 {
		arg = ctx.Args[1]
	}
	source, err := sourceOrAttachment(ctx, arg)
	if err != nil {
		return err
	}

	if _, err := ctx.Deps.Ingestor.Add(ctx.Ctx, ctx.GuildID(), ctx.UserID(), ctx.Args[0], source); err != nil {
		return err
	}
	return ctx.React(okReaction)
}

type ImportCommand struct{}

func (ImportCommand) Name() string      { return "import" }
func (ImportCommand) Aliases() []string { return nil }
func (ImportCommand) Description() string {
	return "Import sounds from an archive (zip, tar, tar.gz, tar.bz2), named after the files inside."
}
func (ImportCommand) Usage() string { return "import [url]" }

func (c ImportCommand) Run(ctx *command.Context) error {
	var arg string
	if len(ctx.Args) > 0 {
		arg = ctx.Args[0]
	}
	source, err := sourceOrAttachment(ctx, arg)
	if err != nil {
		return err
	}

	report, err := ctx.Deps.Ingestor.ImportArchive(ctx.Ctx, ctx.GuildID(), ctx.UserID(), source)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d imported, %d failed.", len(report.Added), len(report.Failed))
	if len(report.Failed) > 0 {
		b.WriteString("\nFailed imports:")
		names := make([]string, 0, len(report.Failed))
		for name := range report.Failed {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "\n`%s`: %v", name, report.Failed[name])
		}
	}
	return ctx.Reply(b.String())
}
