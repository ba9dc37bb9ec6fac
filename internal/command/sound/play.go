package sound

import (
	"strings"

	"soundbort/internal/command"
	"soundbort/internal/playback"
	"soundbort/internal/storage"
)

type PlayCommand struct{}

func (PlayCommand) Name() string        { return "play" }
func (PlayCommand) Aliases() []string   { return []string{"!"} }
func (PlayCommand) Description() string { return "Play a sound." }
func (PlayCommand) Usage() string       { return "play <name> [v<percent>] [s<percent>] [t<h:mm:ss>]" }

func (c PlayCommand) Run(ctx *command.Context) error {
	if len(ctx.Args) < 1 {
		return usageError(c)
	}

	args, err := playback.ParseArgs(strings.Join(ctx.Args[1:], " "))
	if err != nil {
		return err
	}

	resolved, err := ctx.Deps.Resolver.Resolve(ctx.Ctx, ctx.GuildID(), ctx.Args[0])
	if err != nil {
		return err
	}
	return startPlayback(ctx, resolved, args)
}

type RandCommand struct{}

func (RandCommand) Name() string        { return "rand" }
func (RandCommand) Aliases() []string   { return nil }
func (RandCommand) Description() string { return "Play a random sound." }
func (RandCommand) Usage() string       { return "rand [v<percent>] [s<percent>] [t<h:mm:ss>]" }

func (c RandCommand) Run(ctx *command.Context) error {
	args, err := playback.ParseArgs(strings.Join(ctx.Args, " "))
	if err != nil {
		return err
	}

	resolved, err := ctx.Deps.Resolver.Rand(ctx.Ctx, ctx.GuildID())
	if err != nil {
		return err
	}
	return startPlayback(ctx, resolved, args)
}

func startPlayback(ctx *command.Context, resolved *storage.Name, args playback.Args) error {
	channelID := ctx.Deps.Voice.UserChannel(ctx.GuildID(), ctx.UserID())
	return ctx.Deps.Playback.Play(ctx.Ctx, playback.Request{
		GuildID:   ctx.GuildID(),
		ChannelID: channelID,
		SoundID:   resolved.SoundID,
		Name:      resolved.Name,
		Path:      ctx.Deps.Files.Path(ctx.GuildID(), resolved.Name),
		Args:      args,
	})
}
