package sound

import (
	"fmt"
	"strings"

	"soundbort/internal/command"
)

type SettingsCommand struct{}

func (SettingsCommand) Name() string      { return "settings" }
func (SettingsCommand) Aliases() []string { return nil }
func (SettingsCommand) Description() string {
	return "Show or change the command prefix and the sound-master/sound-player roles."
}
func (SettingsCommand) Usage() string {
	return "settings [prefix <prefix> | soundmaster <@role|none> | soundplayer <@role|none>]"
}

func (c SettingsCommand) Run(ctx *command.Context) error {
	if len(ctx.Args) == 0 {
		return c.show(ctx)
	}
	if len(ctx.Args) < 2 {
		return usageError(c)
	}

	value := ctx.Args[1]
	switch ctx.Args[0] {
	case "prefix":
		if len(value) > 10 {
			return fmt.Errorf("prefix is too long")
		}
		if err := ctx.Deps.Store.SetPrefix(ctx.Ctx, ctx.GuildID(), value); err != nil {
			return err
		}
	case "soundmaster":
		roleID, err := parseRole(value)
		if err != nil {
			return err
		}
		if err := ctx.Deps.Store.SetSoundmaster(ctx.Ctx, ctx.GuildID(), roleID); err != nil {
			return err
		}
	case "soundplayer":
		roleID, err := parseRole(value)
		if err != nil {
			return err
		}
		if err := ctx.Deps.Store.SetSoundplayer(ctx.Ctx, ctx.GuildID(), roleID); err != nil {
			return err
		}
	default:
		return usageError(c)
	}
	return ctx.React(okReaction)
}

func (c SettingsCommand) show(ctx *command.Context) error {
	settings, err := ctx.Deps.Store.Guild(ctx.Ctx, ctx.GuildID())
	if err != nil {
		return err
	}

	display := func(roleID string) string {
		if roleID == "" {
			return "everyone"
		}
		return fmt.Sprintf("<@&%s>", roleID)
	}
	prefix := settings.Prefix
	if prefix == "" {
		prefix = "(default)"
	}
	return ctx.Reply(fmt.Sprintf(
		"prefix: `%s`\nsoundmaster: %s\nsoundplayer: %s",
		prefix, display(settings.Soundmaster), display(settings.Soundplayer),
	))
}

// parseRole accepts a role mention, a bare role ID, or "none" to clear.
func parseRole(value string) (string, error) {
	if strings.EqualFold(value, "none") {
		return "", nil
	}
	if strings.HasPrefix(value, "<@&") && strings.HasSuffix(value, ">") {
		return value[3 : len(value)-1], nil
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("expected a role mention, role ID, or `none`")
		}
	}
	return value, nil
}
