package storage

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory implements Store in process. It mirrors the Postgres semantics,
// including the case-insensitive per-guild uniqueness, the delete cascade
// and the trigram search, so higher layers can be tested without a database.
type Memory struct {
	mu         sync.Mutex
	nextSound  int64
	nextName   int64
	sounds     map[int64]*Sound
	names      map[int64]*Name
	guilds     map[string]*GuildSettings
	now        func() time.Time
	randomIntn func(n int) int
}

func NewMemory() *Memory {
	return &Memory{
		sounds:     make(map[int64]*Sound),
		names:      make(map[int64]*Name),
		guilds:     make(map[string]*GuildSettings),
		now:        time.Now,
		randomIntn: rand.Intn,
	}
}

func (m *Memory) nameTaken(guildID, name string) bool {
	for _, n := range m.names {
		if n.GuildID == guildID && strings.EqualFold(n.Name, name) {
			return true
		}
	}
	return false
}

func (m *Memory) InsertSoundWithName(ctx context.Context, guildID, name, uploader, source string, length float64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nameTaken(guildID, name) {
		return 0, fmt.Errorf("%q: %w", name, ErrNameExists)
	}

	m.nextSound++
	m.nextName++
	soundID := m.nextSound
	m.sounds[soundID] = &Sound{
		ID:         soundID,
		Uploader:   uploader,
		Source:     source,
		UploadTime: m.now(),
		Length:     length,
	}
	m.names[m.nextName] = &Name{
		ID:      m.nextName,
		SoundID: soundID,
		GuildID: guildID,
		Name:    name,
	}
	return soundID, nil
}

func (m *Memory) BindAlias(ctx context.Context, soundID int64, guildID, alias string, link func() error) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sounds[soundID]; !ok {
		return 0, ErrNotFound
	}
	if m.nameTaken(guildID, alias) {
		return 0, fmt.Errorf("%q: %w", alias, ErrNameExists)
	}
	if link != nil {
		if err := link(); err != nil {
			return 0, err
		}
	}

	m.nextName++
	m.names[m.nextName] = &Name{
		ID:      m.nextName,
		SoundID: soundID,
		GuildID: guildID,
		Name:    alias,
		IsAlias: true,
	}
	return m.nextName, nil
}

func (m *Memory) ResolveName(ctx context.Context, guildID, name string) (*Name, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.names {
		if n.GuildID == guildID && strings.EqualFold(n.Name, name) {
			cp := *n
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) Rename(ctx context.Context, nameID int64, newName string, move func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.names[nameID]
	if !ok {
		return ErrNotFound
	}
	if !strings.EqualFold(n.Name, newName) && m.nameTaken(n.GuildID, newName) {
		return fmt.Errorf("%q: %w", newName, ErrNameExists)
	}
	if move != nil {
		if err := move(); err != nil {
			return err
		}
	}
	n.Name = newName
	return nil
}

func (m *Memory) DeleteName(ctx context.Context, nameID int64, unlink func(removed []Name) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.names[nameID]
	if !ok {
		return ErrNotFound
	}

	var removed []Name
	cascade := false
	if !n.IsAlias {
		primaries := 0
		for _, other := range m.names {
			if other.SoundID == n.SoundID && !other.IsAlias {
				primaries++
			}
		}
		cascade = primaries == 1
	}

	if cascade {
		for _, other := range m.names {
			if other.SoundID == n.SoundID {
				removed = append(removed, *other)
			}
		}
	} else {
		removed = append(removed, *n)
	}

	for _, r := range removed {
		delete(m.names, r.ID)
	}
	if cascade {
		delete(m.sounds, n.SoundID)
	}

	// Rows first, files second, as in the Postgres backend.
	if unlink != nil {
		if err := unlink(removed); err != nil {
			return fmt.Errorf("%w: names removed but files remain: %v", ErrPartialFailure, err)
		}
	}
	return nil
}

func (m *Memory) SoundInfo(ctx context.Context, soundID int64, guildID string) (*SoundInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sounds[soundID]
	if !ok {
		return nil, ErrNotFound
	}
	info := &SoundInfo{Sound: *s}
	for _, n := range m.names {
		if n.SoundID != soundID || n.GuildID != guildID {
			continue
		}
		if n.IsAlias {
			info.Aliases = append(info.Aliases, n.Name)
		} else if info.Name == "" {
			info.Name = n.Name
		}
	}
	sort.Strings(info.Aliases)
	return info, nil
}

func (m *Memory) ListNames(ctx context.Context, guildID string, filter ListFilter) ([]Name, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var names []Name
	for _, n := range m.names {
		if n.GuildID != guildID {
			continue
		}
		if filter == ListPrimaryOnly && n.IsAlias {
			continue
		}
		if filter == ListAliasesOnly && !n.IsAlias {
			continue
		}
		names = append(names, *n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i].Name < names[j].Name })
	return names, nil
}

func (m *Memory) Search(ctx context.Context, guildID, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var results []SearchResult
	for _, n := range m.names {
		if n.GuildID != guildID {
			continue
		}
		score := trigramSimilarity(n.Name, query)
		if score > SearchThreshold {
			results = append(results, SearchResult{Name: n.Name, IsAlias: n.IsAlias, Score: score})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Name < results[j].Name
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *Memory) RandomName(ctx context.Context, guildID string) (*Name, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var primaries []*Name
	for _, n := range m.names {
		if n.GuildID == guildID && !n.IsAlias {
			primaries = append(primaries, n)
		}
	}
	if len(primaries) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(primaries, func(i, j int) bool { return primaries[i].ID < primaries[j].ID })
	cp := *primaries[m.randomIntn(len(primaries))]
	return &cp, nil
}

func (m *Memory) IncrementPlayed(ctx context.Context, soundID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sounds[soundID]
	if !ok {
		return ErrNotFound
	}
	s.Played++
	return nil
}

func (m *Memory) IncrementStopped(ctx context.Context, soundID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sounds[soundID]
	if !ok {
		return ErrNotFound
	}
	s.Stopped++
	return nil
}

func (m *Memory) Guild(ctx context.Context, guildID string) (*GuildSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if g, ok := m.guilds[guildID]; ok {
		cp := *g
		return &cp, nil
	}
	return &GuildSettings{ID: guildID}, nil
}

func (m *Memory) SetPrefix(ctx context.Context, guildID, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guild(guildID).Prefix = prefix
	return nil
}

func (m *Memory) SetSoundmaster(ctx context.Context, guildID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guild(guildID).Soundmaster = roleID
	return nil
}

func (m *Memory) SetSoundplayer(ctx context.Context, guildID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guild(guildID).Soundplayer = roleID
	return nil
}

func (m *Memory) guild(guildID string) *GuildSettings {
	g, ok := m.guilds[guildID]
	if !ok {
		g = &GuildSettings{ID: guildID}
		m.guilds[guildID] = g
	}
	return g
}

// trigramSimilarity approximates pg_trgm's similarity(): both strings are
// lowercased, split into alphanumeric words, each word padded and chopped
// into trigrams, and the score is |intersection| / |union|.
func trigramSimilarity(a, b string) float64 {
	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

func trigrams(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range splitAlnum(strings.ToLower(s)) {
		padded := "  " + word + " "
		for i := 0; i+3 <= len(padded); i++ {
			set[padded[i:i+3]] = struct{}{}
		}
	}
	return set
}

func splitAlnum(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r >= 128)
	})
}
