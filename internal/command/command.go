package command

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"soundbort/internal/files"
	"soundbort/internal/playback"
	"soundbort/internal/soundboard"
	"soundbort/internal/storage"
)

// Command is one prefix command. Aliases resolve to the same command.
type Command interface {
	Name() string
	Aliases() []string
	Description() string
	Usage() string
	Run(ctx *Context) error
}

// VoiceStateFinder reports which voice channel a user occupies, or ""
// if they are not in voice.
type VoiceStateFinder interface {
	UserChannel(guildID, userID string) string
}

// Deps are the shared collaborators commands run against.
type Deps struct {
	Store    storage.Store
	Files    *files.Repo
	Resolver *soundboard.Resolver
	Ingestor *soundboard.Ingestor
	Playback *playback.Manager
	Voice    VoiceStateFinder
	Log      *zap.SugaredLogger
}

// Context is what the runtime hands a command when executing it.
type Context struct {
	Ctx     context.Context
	Session *discordgo.Session
	Message *discordgo.MessageCreate
	Args    []string // whitespace-split tokens after the command word
	ArgText string   // raw remainder after the command word
	Deps    *Deps
}

// GuildID is the guild the invoking message was sent in.
func (c *Context) GuildID() string {
	return c.Message.GuildID
}

// UserID is the invoking user.
func (c *Context) UserID() string {
	return c.Message.Author.ID
}

// Reply sends a plain message to the invoking channel.
func (c *Context) Reply(text string) error {
	_, err := c.Session.ChannelMessageSend(c.Message.ChannelID, text)
	return err
}

// ReplyEmbed sends an embed to the invoking channel.
func (c *Context) ReplyEmbed(embed *discordgo.MessageEmbed) error {
	_, err := c.Session.ChannelMessageSendEmbed(c.Message.ChannelID, embed)
	return err
}

// React acknowledges the invoking message with an emoji.
func (c *Context) React(emoji string) error {
	return c.Session.MessageReactionAdd(c.Message.ChannelID, c.Message.ID, emoji)
}

// Attachment returns the URL of the first attachment on the invoking
// message, or "".
func (c *Context) Attachment() string {
	if len(c.Message.Attachments) > 0 {
		return c.Message.Attachments[0].URL
	}
	return ""
}
