package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNameExists is returned when a sound or alias name is already taken
	// within a guild. Names are unique per guild, case-insensitively.
	ErrNameExists = errors.New("name already exists")

	// ErrNotFound is returned for lookups of names or sounds that do not exist.
	// ResolveName does not use it: a miss there is (nil, nil).
	ErrNotFound = errors.New("not found")

	// ErrAliasOfAlias is returned when trying to alias a name that is itself
	// an alias. Aliases always point at a primary name, never at each other.
	ErrAliasOfAlias = errors.New("cannot create an alias of an alias")

	// ErrStorage wraps database connectivity failures.
	ErrStorage = errors.New("storage unavailable")

	// ErrPartialFailure marks operations where the rows and the files
	// diverged after a failed compensation. The wrapped message says which
	// side survived.
	ErrPartialFailure = errors.New("operation partially completed")
)

// Sound is a canonical audio asset with its usage counters.
type Sound struct {
	ID         int64
	Uploader   string
	Source     string
	UploadTime time.Time
	Length     float64 // seconds
	Played     int64
	Stopped    int64
}

// Name is a guild-scoped label bound to a sound. A primary name owns the
// file on disk; an alias is a secondary label for the same sound.
type Name struct {
	ID      int64
	SoundID int64
	GuildID string
	Name    string
	IsAlias bool
}

// SoundInfo is a sound with its names in one guild, primary name first.
type SoundInfo struct {
	Sound   Sound
	Name    string
	Aliases []string
}

// SearchResult is one fuzzy-search hit, scored 0..1.
type SearchResult struct {
	Name    string
	IsAlias bool
	Score   float64
}

// GuildSettings holds per-guild overrides. Zero values mean defaults:
// empty prefix falls back to the configured one, empty role IDs mean
// the corresponding permission gate is open.
type GuildSettings struct {
	ID          string
	Prefix      string
	Soundmaster string
	Soundplayer string
}

// ListFilter selects which names ListNames returns.
type ListFilter int

const (
	ListAll ListFilter = iota
	ListPrimaryOnly
	ListAliasesOnly
)

// Store persists sounds, their guild-scoped names and per-guild settings.
//
// Mutations that pair with a file-repository action take a callback and
// coordinate the two stores without a distributed transaction: the rows
// commit first, the callback runs after, and a failed callback undoes the
// rows again. Deletion is the one exception, see DeleteName. A row is
// never left referring to a file operation that did not happen.
type Store interface {
	// InsertSoundWithName creates a sound and its first, primary name in a
	// single transaction and returns the new sound ID.
	InsertSoundWithName(ctx context.Context, guildID, name, uploader, source string, length float64) (int64, error)

	// BindAlias adds an alias name for soundID, then runs link. If link
	// fails the alias row is removed again. Fails with ErrNameExists on a
	// name collision.
	BindAlias(ctx context.Context, soundID int64, guildID, alias string, link func() error) (int64, error)

	// ResolveName looks up a name case-insensitively. A miss returns
	// (nil, nil); absence is not an error.
	ResolveName(ctx context.Context, guildID, name string) (*Name, error)

	// Rename updates a name's text, then runs move. If move fails the old
	// name is restored.
	Rename(ctx context.Context, nameID int64, newName string, move func() error) error

	// DeleteName removes a name. Deleting the last primary name of a sound
	// deletes the sound and all its aliases by cascade. unlink receives
	// every removed name and runs after the rows are gone; an unlink
	// failure surfaces as ErrPartialFailure with the files orphaned on
	// disk, never the other way around.
	DeleteName(ctx context.Context, nameID int64, unlink func(removed []Name) error) error

	// SoundInfo returns a sound with its names in guildID, primary first.
	SoundInfo(ctx context.Context, soundID int64, guildID string) (*SoundInfo, error)

	ListNames(ctx context.Context, guildID string, filter ListFilter) ([]Name, error)

	// Search ranks names in a guild by trigram similarity to query,
	// descending, dropping scores at or below SearchThreshold.
	Search(ctx context.Context, guildID, query string, limit int) ([]SearchResult, error)

	// RandomName returns a uniformly random primary name in the guild,
	// or ErrNotFound if the guild has no sounds.
	RandomName(ctx context.Context, guildID string) (*Name, error)

	// IncrementPlayed and IncrementStopped are best-effort counter bumps;
	// callers log failures instead of aborting playback.
	IncrementPlayed(ctx context.Context, soundID int64) error
	IncrementStopped(ctx context.Context, soundID int64) error

	Guild(ctx context.Context, guildID string) (*GuildSettings, error)
	SetPrefix(ctx context.Context, guildID, prefix string) error
	SetSoundmaster(ctx context.Context, guildID, roleID string) error
	SetSoundplayer(ctx context.Context, guildID, roleID string) error
}

// SearchThreshold is the minimum similarity score for a search hit.
// Anything at or below it is noise, not a suggestion.
const SearchThreshold = 0.1

// DefaultSearchLimit caps suggestion lists.
const DefaultSearchLimit = 10
