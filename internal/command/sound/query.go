package sound

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"soundbort/internal/command"
	"soundbort/internal/storage"
)

type ListCommand struct{}

func (ListCommand) Name() string        { return "list" }
func (ListCommand) Aliases() []string   { return []string{"ls"} }
func (ListCommand) Description() string { return "List all sounds on the soundboard." }
func (ListCommand) Usage() string       { return "list" }

func (c ListCommand) Run(ctx *command.Context) error {
	names, err := ctx.Deps.Store.ListNames(ctx.Ctx, ctx.GuildID(), storage.ListPrimaryOnly)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return ctx.Reply("No sounds yet. Add one with `add`.")
	}

	// Discord caps messages at 2000 characters; long boards go out in pages.
	var page strings.Builder
	page.WriteString("**Sounds**\n")
	for _, n := range names {
		if page.Len()+len(n.Name)+2 > 1990 {
			if err := ctx.Reply(page.String()); err != nil {
				return err
			}
			page.Reset()
		}
		fmt.Fprintf(&page, "`%s` ", n.Name)
	}
	return ctx.Reply(page.String())
}

type InfoCommand struct{}

func (InfoCommand) Name() string        { return "info" }
func (InfoCommand) Aliases() []string   { return []string{"stat"} }
func (InfoCommand) Description() string { return "Show uploader, counters and length of a sound." }
func (InfoCommand) Usage() string       { return "info <name>" }

func (c InfoCommand) Run(ctx *command.Context) error {
	if len(ctx.Args) < 1 {
		return usageError(c)
	}

	resolved, err := ctx.Deps.Resolver.Resolve(ctx.Ctx, ctx.GuildID(), ctx.Args[0])
	if err != nil {
		return err
	}

	info, err := ctx.Deps.Store.SoundInfo(ctx.Ctx, resolved.SoundID, ctx.GuildID())
	if err != nil {
		return err
	}

	embed := &discordgo.MessageEmbed{
		Title:     info.Name,
		Timestamp: info.Sound.UploadTime.Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: "Uploaded at"},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Uploader", Value: fmt.Sprintf("<@%s>", info.Sound.Uploader), Inline: true},
			{Name: "Source", Value: info.Sound.Source, Inline: true},
			{Name: "Played", Value: fmt.Sprintf("%d", info.Sound.Played), Inline: true},
			{Name: "Stopped", Value: fmt.Sprintf("%d", info.Sound.Stopped), Inline: true},
			{Name: "Length", Value: formatLength(info.Sound.Length), Inline: true},
		},
	}
	if len(info.Aliases) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Aliases",
			Value: strings.Join(info.Aliases, ", "),
		})
	}
	return ctx.ReplyEmbed(embed)
}

func formatLength(seconds float64) string {
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	return d.String()
}

type SearchCommand struct{}

func (SearchCommand) Name() string        { return "search" }
func (SearchCommand) Aliases() []string   { return []string{"find"} }
func (SearchCommand) Description() string { return "Search for a sound by approximate name." }
func (SearchCommand) Usage() string       { return "search <query>" }

func (c SearchCommand) Run(ctx *command.Context) error {
	if len(ctx.Args) < 1 {
		return usageError(c)
	}

	results, err := ctx.Deps.Resolver.Search(ctx.Ctx, ctx.GuildID(), ctx.Args[0])
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return ctx.Reply("No results found.")
	}

	hasAliases := false
	lines := make([]string, 0, len(results)+1)
	for _, r := range results {
		if r.IsAlias {
			hasAliases = true
			lines = append(lines, fmt.Sprintf("*%s*", r.Name))
		} else {
			lines = append(lines, r.Name)
		}
	}

	header := fmt.Sprintf("Found %d %s.", len(results), pluralize(len(results), "result"))
	if hasAliases {
		header += " Aliases are *italicized*."
	}
	return ctx.Reply(header + "\n" + strings.Join(lines, "\n"))
}

func pluralize(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

type StopCommand struct{}

func (StopCommand) Name() string        { return "stop" }
func (StopCommand) Aliases() []string   { return nil }
func (StopCommand) Description() string { return "Stop playback of the current sound." }
func (StopCommand) Usage() string       { return "stop" }

func (c StopCommand) Run(ctx *command.Context) error {
	stopped, err := ctx.Deps.Playback.Stop(ctx.Ctx, ctx.GuildID())
	if err != nil {
		return err
	}
	if stopped {
		return ctx.React("🛑")
	}
	return nil
}
