package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"soundbort/internal/command"
	"soundbort/internal/config"
	"soundbort/internal/fetch"
	"soundbort/internal/playback"
	"soundbort/internal/soundboard"
	"soundbort/internal/storage"
)

// Bot dispatches prefix commands from guild messages to the command
// registry and exposes voice-state lookups to the commands.
type Bot struct {
	dg   *discordgo.Session
	cfg  *config.Config
	deps *command.Deps
}

func NewBot(dg *discordgo.Session, cfg *config.Config, deps *command.Deps) *Bot {
	b := &Bot{dg: dg, cfg: cfg, deps: deps}
	deps.Voice = b
	return b
}

// Run opens the gateway session and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onMessageCreate)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.dg.Close()

	<-ctx.Done()
	b.deps.Log.Infow("shutdown signal received, closing session")
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.deps.Log.Infow("connected", "user", r.User.Username, "guilds", len(r.Guilds))
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	ctx := context.Background()

	prefix := b.cfg.Prefix
	if settings, err := b.deps.Store.Guild(ctx, m.GuildID); err == nil && settings.Prefix != "" {
		prefix = settings.Prefix
	}
	if !strings.HasPrefix(m.Content, prefix) {
		return
	}

	body := strings.TrimSpace(strings.TrimPrefix(m.Content, prefix))
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return
	}

	cmd, ok := command.Get(fields[0])
	if !ok {
		return
	}

	cmdCtx := &command.Context{
		Ctx:     ctx,
		Session: s,
		Message: m,
		Args:    fields[1:],
		ArgText: strings.TrimSpace(strings.TrimPrefix(body, fields[0])),
		Deps:    b.deps,
	}

	if err := cmd.Run(cmdCtx); err != nil {
		b.reportError(cmdCtx, cmd, err)
	}
}

// reportError replies with the error text for expected failures and keeps
// internal ones vague; either way the full error is logged.
func (b *Bot) reportError(ctx *command.Context, cmd command.Command, err error) {
	b.deps.Log.Warnw("command failed", "name", cmd.Name(), "guild", ctx.GuildID(), "err", err)

	var invalidName *soundboard.InvalidNameError
	var notFound *soundboard.NotFoundError
	var rangeErr *playback.RangeError
	var parseErr *playback.ParseError

	switch {
	case errors.As(err, &invalidName),
		errors.As(err, &notFound),
		errors.As(err, &rangeErr),
		errors.As(err, &parseErr),
		errors.Is(err, storage.ErrNameExists),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrAliasOfAlias),
		errors.Is(err, storage.ErrPartialFailure),
		errors.Is(err, playback.ErrNoChannel),
		errors.Is(err, soundboard.ErrBusy),
		errors.Is(err, fetch.ErrDownload),
		errors.Is(err, command.ErrPermissionDenied),
		strings.HasPrefix(err.Error(), "usage:"),
		strings.HasPrefix(err.Error(), "download link"):
		_ = ctx.Reply(capitalize(err.Error()))
	default:
		_ = ctx.Reply("Something went wrong running that command.")
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// UserChannel returns the voice channel a user is connected to, or "".
func (b *Bot) UserChannel(guildID, userID string) string {
	guild, err := b.dg.State.Guild(guildID)
	if err != nil {
		return ""
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}
