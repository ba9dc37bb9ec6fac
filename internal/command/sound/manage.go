package sound

import (
	"errors"
	"fmt"

	"soundbort/internal/command"
	"soundbort/internal/files"
	"soundbort/internal/soundboard"
	"soundbort/internal/storage"
)

type AliasCommand struct{}

func (AliasCommand) Name() string        { return "alias" }
func (AliasCommand) Aliases() []string   { return nil }
func (AliasCommand) Description() string { return "Allow a sound to be played by another name." }
func (AliasCommand) Usage() string       { return "alias <name> <alias>" }

func (c AliasCommand) Run(ctx *command.Context) error {
	if len(ctx.Args) < 2 {
		return usageError(c)
	}

	resolved, err := ctx.Deps.Resolver.Resolve(ctx.Ctx, ctx.GuildID(), ctx.Args[0])
	if err != nil {
		return err
	}
	if resolved.IsAlias {
		return storage.ErrAliasOfAlias
	}

	alias, err := soundboard.ValidateName(ctx.Args[1])
	if err != nil {
		return err
	}

	_, err = ctx.Deps.Store.BindAlias(ctx.Ctx, resolved.SoundID, ctx.GuildID(), alias, func() error {
		return ctx.Deps.Files.Alias(ctx.GuildID(), resolved.Name, alias)
	})
	if errors.Is(err, files.ErrFileExists) {
		return fmt.Errorf("%q: %w", alias, storage.ErrNameExists)
	}
	if err != nil {
		return err
	}
	return ctx.React(okReaction)
}

type RenameCommand struct{}

func (RenameCommand) Name() string        { return "rename" }
func (RenameCommand) Aliases() []string   { return []string{"mv"} }
func (RenameCommand) Description() string { return "Rename a sound or alias." }
func (RenameCommand) Usage() string       { return "rename <name> <new-name>" }

func (c RenameCommand) Run(ctx *command.Context) error {
	if len(ctx.Args) < 2 {
		return usageError(c)
	}

	resolved, err := ctx.Deps.Resolver.Resolve(ctx.Ctx, ctx.GuildID(), ctx.Args[0])
	if err != nil {
		return err
	}

	newName, err := soundboard.ValidateName(ctx.Args[1])
	if err != nil {
		return err
	}

	// Renaming a primary drags its alias symlinks along; renaming an
	// alias moves just the link.
	var aliases []string
	if !resolved.IsAlias {
		info, err := ctx.Deps.Store.SoundInfo(ctx.Ctx, resolved.SoundID, ctx.GuildID())
		if err != nil {
			return err
		}
		aliases = info.Aliases
	}

	err = ctx.Deps.Store.Rename(ctx.Ctx, resolved.ID, newName, func() error {
		if resolved.IsAlias {
			return ctx.Deps.Files.Move(ctx.GuildID(), resolved.Name, newName)
		}
		return ctx.Deps.Files.Rename(ctx.GuildID(), resolved.Name, newName, aliases)
	})
	if errors.Is(err, files.ErrFileExists) {
		return fmt.Errorf("%q: %w", newName, storage.ErrNameExists)
	}
	if err != nil {
		return err
	}
	return ctx.React(okReaction)
}

type DeleteCommand struct{}

func (DeleteCommand) Name() string      { return "delete" }
func (DeleteCommand) Aliases() []string { return []string{"del", "rm"} }
func (DeleteCommand) Description() string {
	return "Delete a sound or an alias. Deleting a sound removes all its aliases too."
}
func (DeleteCommand) Usage() string { return "delete <name>" }

func (c DeleteCommand) Run(ctx *command.Context) error {
	if len(ctx.Args) < 1 {
		return usageError(c)
	}

	resolved, err := ctx.Deps.Resolver.Resolve(ctx.Ctx, ctx.GuildID(), ctx.Args[0])
	if err != nil {
		return err
	}

	err = ctx.Deps.Store.DeleteName(ctx.Ctx, resolved.ID, func(removed []storage.Name) error {
		byGuild := map[string][]string{}
		for _, r := range removed {
			byGuild[r.GuildID] = append(byGuild[r.GuildID], r.Name)
		}
		for guildID, names := range byGuild {
			if err := ctx.Deps.Files.RemoveAll(guildID, names); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return ctx.React(okReaction)
}
