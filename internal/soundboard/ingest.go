package soundboard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"soundbort/internal/fetch"
	"soundbort/internal/files"
	"soundbort/internal/storage"
)

// ErrBusy is returned when a guild exceeds its download budget.
var ErrBusy = errors.New("too many downloads at once, try again shortly")

// Ingestor commits new sounds: name validation, duplicate check, download,
// duration probe, then file plus rows as one unit with compensation on
// partial failure.
type Ingestor struct {
	store  storage.Store
	files  *files.Repo
	dl     fetch.Downloader
	prober fetch.Prober
	log    *zap.SugaredLogger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewIngestor(store storage.Store, repo *files.Repo, dl fetch.Downloader, prober fetch.Prober, log *zap.SugaredLogger) *Ingestor {
	return &Ingestor{
		store:    store,
		files:    repo,
		dl:       dl,
		prober:   prober,
		log:      log,
		limiters: make(map[string]*rate.Limiter),
	}
}

// limiter returns the per-guild download limiter: bursts of three, then one
// download every ten seconds.
func (in *Ingestor) limiter(guildID string) *rate.Limiter {
	in.mu.Lock()
	defer in.mu.Unlock()

	l, ok := in.limiters[guildID]
	if !ok {
		l = rate.NewLimiter(rate.Every(10*time.Second), 3)
		in.limiters[guildID] = l
	}
	return l
}

// Add ingests one sound from a remote source and returns its sound ID.
// The duplicate-name check runs before any network I/O.
func (in *Ingestor) Add(ctx context.Context, guildID, uploader, candidateName, source string) (int64, error) {
	name, err := ValidateName(candidateName)
	if err != nil {
		return 0, err
	}

	existing, err := in.store.ResolveName(ctx, guildID, name)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, fmt.Errorf("%q: %w", name, storage.ErrNameExists)
	}

	if !in.limiter(guildID).Allow() {
		return 0, ErrBusy
	}

	tmp := in.files.TempPath()
	defer os.Remove(tmp)

	info, err := in.dl.Download(ctx, source, tmp)
	if err != nil {
		return 0, err
	}

	length := info.Duration
	if length == 0 {
		length, err = in.prober.Duration(ctx, tmp)
		if err != nil {
			in.log.Warnw("duration probe failed", "name", name, "err", err)
			length = 0
		}
	}

	return in.commit(ctx, guildID, uploader, name, source, tmp, length)
}

// commit moves a staged file into the repository and inserts the sound and
// name rows in one transaction. A failed insert unlinks the file again so
// neither store ends up with an orphan.
func (in *Ingestor) commit(ctx context.Context, guildID, uploader, name, source, staged string, length float64) (int64, error) {
	if err := in.files.Put(guildID, name, staged); err != nil {
		if errors.Is(err, files.ErrFileExists) {
			return 0, fmt.Errorf("%q: %w", name, storage.ErrNameExists)
		}
		return 0, err
	}

	soundID, err := in.store.InsertSoundWithName(ctx, guildID, name, uploader, source, length)
	if err != nil {
		if rmErr := in.files.Remove(guildID, name); rmErr != nil {
			in.log.Errorw("orphaned file after failed insert", "guild", guildID, "name", name, "err", rmErr)
		}
		return 0, err
	}

	in.log.Infow("sound added", "guild", guildID, "name", name, "sound", soundID, "length", length)
	return soundID, nil
}
