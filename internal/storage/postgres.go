package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE EXTENSION IF NOT EXISTS pg_trgm;

CREATE TABLE IF NOT EXISTS guilds (
    id          TEXT PRIMARY KEY,
    prefix      TEXT NOT NULL DEFAULT '',
    soundmaster TEXT NOT NULL DEFAULT '',
    soundplayer TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sounds (
    id          BIGSERIAL PRIMARY KEY,
    uploader    TEXT NOT NULL,
    source      TEXT NOT NULL,
    upload_time TIMESTAMPTZ NOT NULL DEFAULT now(),
    length      DOUBLE PRECISION NOT NULL DEFAULT 0,
    played      BIGINT NOT NULL DEFAULT 0,
    stopped     BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sound_names (
    id       BIGSERIAL PRIMARY KEY,
    sound_id BIGINT NOT NULL REFERENCES sounds(id) ON DELETE CASCADE,
    guild_id TEXT NOT NULL,
    name     TEXT NOT NULL,
    is_alias BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE UNIQUE INDEX IF NOT EXISTS sound_names_guild_lower_name
    ON sound_names (guild_id, lower(name));
CREATE INDEX IF NOT EXISTS sound_names_name_trgm
    ON sound_names USING gin (name gin_trgm_ops);
`

// Postgres implements Store on a pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if pool == nil {
		return nil, errors.New("pool cannot be nil")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: ping: %v", ErrStorage, err)
	}
	return &Postgres{pool: pool}, nil
}

// EnsureSchema creates tables and indexes if they are missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("%w: ensure schema: %v", ErrStorage, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (p *Postgres) InsertSoundWithName(ctx context.Context, guildID, name, uploader, source string, length float64) (int64, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", ErrStorage, err)
	}
	defer tx.Rollback(ctx)

	var soundID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO sounds (uploader, source, length) VALUES ($1, $2, $3) RETURNING id`,
		uploader, source, length,
	).Scan(&soundID)
	if err != nil {
		return 0, fmt.Errorf("%w: insert sound: %v", ErrStorage, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO sound_names (sound_id, guild_id, name) VALUES ($1, $2, $3)`,
		soundID, guildID, name,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%q: %w", name, ErrNameExists)
		}
		return 0, fmt.Errorf("%w: insert name: %v", ErrStorage, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", ErrStorage, err)
	}
	return soundID, nil
}

func (p *Postgres) BindAlias(ctx context.Context, soundID int64, guildID, alias string, link func() error) (int64, error) {
	var nameID int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO sound_names (sound_id, guild_id, name, is_alias) VALUES ($1, $2, $3, TRUE) RETURNING id`,
		soundID, guildID, alias,
	).Scan(&nameID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%q: %w", alias, ErrNameExists)
		}
		return 0, fmt.Errorf("%w: insert alias: %v", ErrStorage, err)
	}

	// The row is committed before the file action; a failed link takes it
	// out again so no alias row survives without its symlink.
	if link != nil {
		if err := link(); err != nil {
			if _, delErr := p.pool.Exec(ctx, `DELETE FROM sound_names WHERE id = $1`, nameID); delErr != nil {
				return 0, fmt.Errorf("%w: alias row %d kept without its file: %v", ErrPartialFailure, nameID, delErr)
			}
			return 0, err
		}
	}
	return nameID, nil
}

func (p *Postgres) ResolveName(ctx context.Context, guildID, name string) (*Name, error) {
	var n Name
	err := p.pool.QueryRow(ctx,
		`SELECT id, sound_id, guild_id, name, is_alias
		   FROM sound_names
		  WHERE guild_id = $1 AND lower(name) = lower($2)`,
		guildID, name,
	).Scan(&n.ID, &n.SoundID, &n.GuildID, &n.Name, &n.IsAlias)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: resolve name: %v", ErrStorage, err)
	}
	return &n, nil
}

func (p *Postgres) Rename(ctx context.Context, nameID int64, newName string, move func() error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStorage, err)
	}
	defer tx.Rollback(ctx)

	var oldName string
	err = tx.QueryRow(ctx, `SELECT name FROM sound_names WHERE id = $1`, nameID).Scan(&oldName)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: select name: %v", ErrStorage, err)
	}

	if _, err := tx.Exec(ctx, `UPDATE sound_names SET name = $1 WHERE id = $2`, newName, nameID); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%q: %w", newName, ErrNameExists)
		}
		return fmt.Errorf("%w: rename: %v", ErrStorage, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStorage, err)
	}

	// File action after the commit; a failed move puts the old name back
	// so the row never points at a file that was not moved.
	if move != nil {
		if err := move(); err != nil {
			if _, uErr := p.pool.Exec(ctx, `UPDATE sound_names SET name = $1 WHERE id = $2`, oldName, nameID); uErr != nil {
				return fmt.Errorf("%w: name %d renamed without its file: %v", ErrPartialFailure, nameID, uErr)
			}
			return err
		}
	}
	return nil
}

func (p *Postgres) DeleteName(ctx context.Context, nameID int64, unlink func(removed []Name) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStorage, err)
	}
	defer tx.Rollback(ctx)

	var n Name
	err = tx.QueryRow(ctx,
		`SELECT id, sound_id, guild_id, name, is_alias FROM sound_names WHERE id = $1`,
		nameID,
	).Scan(&n.ID, &n.SoundID, &n.GuildID, &n.Name, &n.IsAlias)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: select name: %v", ErrStorage, err)
	}

	removed := []Name{n}

	if !n.IsAlias {
		var primaries int64
		err = tx.QueryRow(ctx,
			`SELECT count(*) FROM sound_names WHERE sound_id = $1 AND NOT is_alias`,
			n.SoundID,
		).Scan(&primaries)
		if err != nil {
			return fmt.Errorf("%w: count primaries: %v", ErrStorage, err)
		}

		if primaries == 1 {
			// Last primary name: the sound goes, and CASCADE takes every
			// name with it. Collect them first so files can be unlinked.
			rows, err := tx.Query(ctx,
				`SELECT id, sound_id, guild_id, name, is_alias FROM sound_names WHERE sound_id = $1`,
				n.SoundID,
			)
			if err != nil {
				return fmt.Errorf("%w: list names: %v", ErrStorage, err)
			}
			removed = removed[:0]
			for rows.Next() {
				var r Name
				if err := rows.Scan(&r.ID, &r.SoundID, &r.GuildID, &r.Name, &r.IsAlias); err != nil {
					rows.Close()
					return fmt.Errorf("%w: scan name: %v", ErrStorage, err)
				}
				removed = append(removed, r)
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return fmt.Errorf("%w: list names: %v", ErrStorage, err)
			}

			if _, err := tx.Exec(ctx, `DELETE FROM sounds WHERE id = $1`, n.SoundID); err != nil {
				return fmt.Errorf("%w: delete sound: %v", ErrStorage, err)
			}
		} else {
			if _, err := tx.Exec(ctx, `DELETE FROM sound_names WHERE id = $1`, n.ID); err != nil {
				return fmt.Errorf("%w: delete name: %v", ErrStorage, err)
			}
		}
	} else {
		if _, err := tx.Exec(ctx, `DELETE FROM sound_names WHERE id = $1`, n.ID); err != nil {
			return fmt.Errorf("%w: delete alias: %v", ErrStorage, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStorage, err)
	}

	// Unlink only once the rows are gone. Files orphaned by a failed
	// unlink are reported, but rows referring to unlinked files cannot
	// happen in any failure order.
	if unlink != nil {
		if err := unlink(removed); err != nil {
			return fmt.Errorf("%w: names removed but files remain: %v", ErrPartialFailure, err)
		}
	}
	return nil
}

func (p *Postgres) SoundInfo(ctx context.Context, soundID int64, guildID string) (*SoundInfo, error) {
	var info SoundInfo
	err := p.pool.QueryRow(ctx,
		`SELECT id, uploader, source, upload_time, length, played, stopped FROM sounds WHERE id = $1`,
		soundID,
	).Scan(
		&info.Sound.ID, &info.Sound.Uploader, &info.Sound.Source,
		&info.Sound.UploadTime, &info.Sound.Length, &info.Sound.Played, &info.Sound.Stopped,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: select sound: %v", ErrStorage, err)
	}

	rows, err := p.pool.Query(ctx,
		`SELECT name, is_alias FROM sound_names
		  WHERE sound_id = $1 AND guild_id = $2
		  ORDER BY is_alias, name`,
		soundID, guildID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: select names: %v", ErrStorage, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var isAlias bool
		if err := rows.Scan(&name, &isAlias); err != nil {
			return nil, fmt.Errorf("%w: scan name: %v", ErrStorage, err)
		}
		if isAlias {
			info.Aliases = append(info.Aliases, name)
		} else if info.Name == "" {
			info.Name = name
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: select names: %v", ErrStorage, err)
	}
	return &info, nil
}

func (p *Postgres) ListNames(ctx context.Context, guildID string, filter ListFilter) ([]Name, error) {
	query := `SELECT id, sound_id, guild_id, name, is_alias FROM sound_names WHERE guild_id = $1`
	switch filter {
	case ListPrimaryOnly:
		query += ` AND NOT is_alias`
	case ListAliasesOnly:
		query += ` AND is_alias`
	}
	query += ` ORDER BY name`

	rows, err := p.pool.Query(ctx, query, guildID)
	if err != nil {
		return nil, fmt.Errorf("%w: list names: %v", ErrStorage, err)
	}
	defer rows.Close()

	var names []Name
	for rows.Next() {
		var n Name
		if err := rows.Scan(&n.ID, &n.SoundID, &n.GuildID, &n.Name, &n.IsAlias); err != nil {
			return nil, fmt.Errorf("%w: scan name: %v", ErrStorage, err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list names: %v", ErrStorage, err)
	}
	return names, nil
}

func (p *Postgres) Search(ctx context.Context, guildID, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	rows, err := p.pool.Query(ctx,
		`SELECT name, is_alias, similarity(name, $2) AS score
		   FROM sound_names
		  WHERE guild_id = $1 AND similarity(name, $2) > $3
		  ORDER BY score DESC, name
		  LIMIT $4`,
		guildID, query, SearchThreshold, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrStorage, err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Name, &r.IsAlias, &r.Score); err != nil {
			return nil, fmt.Errorf("%w: scan result: %v", ErrStorage, err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrStorage, err)
	}
	return results, nil
}

func (p *Postgres) RandomName(ctx context.Context, guildID string) (*Name, error) {
	var n Name
	err := p.pool.QueryRow(ctx,
		`SELECT id, sound_id, guild_id, name, is_alias
		   FROM sound_names
		  WHERE guild_id = $1 AND NOT is_alias
		  ORDER BY random()
		  LIMIT 1`,
		guildID,
	).Scan(&n.ID, &n.SoundID, &n.GuildID, &n.Name, &n.IsAlias)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: random name: %v", ErrStorage, err)
	}
	return &n, nil
}

func (p *Postgres) IncrementPlayed(ctx context.Context, soundID int64) error {
	_, err := p.pool.Exec(ctx, `UPDATE sounds SET played = played + 1 WHERE id = $1`, soundID)
	if err != nil {
		return fmt.Errorf("%w: increment played: %v", ErrStorage, err)
	}
	return nil
}

func (p *Postgres) IncrementStopped(ctx context.Context, soundID int64) error {
	_, err := p.pool.Exec(ctx, `UPDATE sounds SET stopped = stopped + 1 WHERE id = $1`, soundID)
	if err != nil {
		return fmt.Errorf("%w: increment stopped: %v", ErrStorage, err)
	}
	return nil
}

func (p *Postgres) Guild(ctx context.Context, guildID string) (*GuildSettings, error) {
	g := GuildSettings{ID: guildID}
	err := p.pool.QueryRow(ctx,
		`SELECT prefix, soundmaster, soundplayer FROM guilds WHERE id = $1`,
		guildID,
	).Scan(&g.Prefix, &g.Soundmaster, &g.Soundplayer)
	if errors.Is(err, pgx.ErrNoRows) {
		return &g, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: select guild: %v", ErrStorage, err)
	}
	return &g, nil
}

func (p *Postgres) SetPrefix(ctx context.Context, guildID, prefix string) error {
	return p.upsertGuild(ctx, guildID, "prefix", prefix)
}

func (p *Postgres) SetSoundmaster(ctx context.Context, guildID, roleID string) error {
	return p.upsertGuild(ctx, guildID, "soundmaster", roleID)
}

func (p *Postgres) SetSoundplayer(ctx context.Context, guildID, roleID string) error {
	return p.upsertGuild(ctx, guildID, "soundplayer", roleID)
}

func (p *Postgres) upsertGuild(ctx context.Context, guildID, column, value string) error {
	query := fmt.Sprintf(
		`INSERT INTO guilds (id, %[1]s) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET %[1]s = EXCLUDED.%[1]s`, column)
	if _, err := p.pool.Exec(ctx, query, guildID, value); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrStorage, column, err)
	}
	return nil
}
