package command

import (
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// ErrPermissionDenied is surfaced when a role gate rejects the caller.
var ErrPermissionDenied = errors.New("permission denied")

type Middleware func(Command) Command

type wrappedCommand struct {
	Command
	wrap func(ctx *Context) error
}

func (w *wrappedCommand) Run(ctx *Context) error {
	return w.wrap(ctx)
}

func WithGuildOnly() Middleware {
	return func(cmd Command) Command {
		return &wrappedCommand{
			Command: cmd,
			wrap: func(ctx *Context) error {
				if ctx.GuildID() == "" {
					return errors.New("this command only works in a server")
				}
				return cmd.Run(ctx)
			},
		}
	}
}

// WithSoundmaster gates a command on the guild's sound-master role.
// Guild managers always pass; an unset role means the gate is open.
func WithSoundmaster() Middleware {
	return func(cmd Command) Command {
		return &wrappedCommand{
			Command: cmd,
			wrap: func(ctx *Context) error {
				ok, roleID, err := hasRole(ctx, func(g *guildGates) string { return g.soundmaster })
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: you need the <@&%s> role to manage sounds", ErrPermissionDenied, roleID)
				}
				return cmd.Run(ctx)
			},
		}
	}
}

// WithSoundplayer gates a command on the guild's sound-player role.
// Anyone passing the sound-master gate passes this one too.
func WithSoundplayer() Middleware {
	return func(cmd Command) Command {
		return &wrappedCommand{
			Command: cmd,
			wrap: func(ctx *Context) error {
				ok, _, err := hasRole(ctx, func(g *guildGates) string { return g.soundmaster })
				if err != nil {
					return err
				}
				if !ok {
					ok, roleID, err := hasRole(ctx, func(g *guildGates) string { return g.soundplayer })
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("%w: you need the <@&%s> role to play sounds", ErrPermissionDenied, roleID)
					}
				}
				return cmd.Run(ctx)
			},
		}
	}
}

func WithCommandLogger() Middleware {
	return func(cmd Command) Command {
		return &wrappedCommand{
			Command: cmd,
			wrap: func(ctx *Context) error {
				start := time.Now()
				err := cmd.Run(ctx)
				ctx.Deps.Log.Infow("command",
					"name", cmd.Name(),
					"guild", ctx.GuildID(),
					"user", ctx.UserID(),
					"took", time.Since(start),
					"err", err,
				)
				return err
			},
		}
	}
}

type guildGates struct {
	soundmaster string
	soundplayer string
}

// hasRole implements the shared gate logic: bot-side bypass for guild
// managers, open gate when no role is configured, otherwise a role match.
func hasRole(ctx *Context, pick func(*guildGates) string) (bool, string, error) {
	perms, err := ctx.Session.State.MessagePermissions(ctx.Message.Message)
	if err == nil && perms&discordgo.PermissionManageServer != 0 {
		return true, "", nil
	}

	settings, err := ctx.Deps.Store.Guild(ctx.Ctx, ctx.GuildID())
	if err != nil {
		return false, "", err
	}
	roleID := pick(&guildGates{soundmaster: settings.Soundmaster, soundplayer: settings.Soundplayer})
	if roleID == "" {
		return true, "", nil
	}

	if ctx.Message.Member != nil {
		for _, r := range ctx.Message.Member.Roles {
			if r == roleID {
				return true, roleID, nil
			}
		}
	}
	return false, roleID, nil
}
