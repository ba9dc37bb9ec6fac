package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"soundbort/internal/storage"
)

// ErrNoChannel is returned when the requesting user is not in a voice
// channel, before any session state is touched.
var ErrNoChannel = errors.New("you are not in a voice channel")

// VoiceConn is an active voice-channel connection.
type VoiceConn interface {
	// Stream plays src until it ends or stop is signalled. It blocks.
	Stream(src io.Reader, stop <-chan struct{}) error
	Disconnect() error
}

// Transport acquires the guild's shared voice connection, moving it to
// channelID if one already exists.
type Transport interface {
	Join(guildID, channelID string) (VoiceConn, error)
}

// Source opens a decode pipeline for a stored sound file with the given
// playback parameters applied. cleanup releases the pipeline and must be
// called once streaming is over.
type Source interface {
	Open(path string, args Args) (src io.ReadCloser, cleanup func(), err error)
}

// Request describes one playback invocation.
type Request struct {
	GuildID   string
	ChannelID string // the requesting user's voice channel; empty = not in voice
	SoundID   int64
	Name      string
	Path      string
	Args      Args
}

// session is the ephemeral per-guild playback record. It exists only
// between Play and whichever terminator wins.
type session struct {
	soundID int64
	name    string
	conn    VoiceConn

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func (s *session) signalStop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Manager keeps at most one playback session per guild and arbitrates the
// race between the user's stop command and the stream's natural completion.
// The session table only exposes atomic take/compare-and-remove operations;
// removal compares session identity so a superseded session's stale
// completion can never tear down its successor.
type Manager struct {
	transport Transport
	source    Source
	store     storage.Store
	log       *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[string]*session
}

func NewManager(transport Transport, source Source, store storage.Store, log *zap.SugaredLogger) *Manager {
	return &Manager{
		transport: transport,
		source:    source,
		store:     store,
		log:       log,
		sessions:  make(map[string]*session),
	}
}

// take removes and returns the guild's session, if any.
func (m *Manager) take(guildID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sessions[guildID]
	delete(m.sessions, guildID)
	return s
}

// removeIf removes the guild's entry only if it is still sess. Exactly one
// caller can win this for a given session.
func (m *Manager) removeIf(guildID string, sess *session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessions[guildID] != sess {
		return false
	}
	delete(m.sessions, guildID)
	return true
}

func (m *Manager) isCurrent(guildID string, sess *session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[guildID] == sess
}

// replace installs sess as the guild's session. Any active session is
// stopped synchronously first: starting a new playback supersedes the old
// one, and its teardown happens here, not in its stale completion path.
func (m *Manager) replace(guildID string, sess *session) {
	for {
		m.mu.Lock()
		old := m.sessions[guildID]
		if old == nil {
			m.sessions[guildID] = sess
			m.mu.Unlock()
			return
		}
		delete(m.sessions, guildID)
		m.mu.Unlock()

		old.signalStop()
		<-old.done
		// The old streaming goroutine lost the compare-and-remove, so it
		// did not disconnect; the transport is reused by the next Join.
	}
}

// Play starts playback of a sound in the requesting user's channel.
// An active session for the guild is superseded. The played counter is
// incremented once per started playback; natural completion adds nothing.
func (m *Manager) Play(ctx context.Context, req Request) error {
	if req.ChannelID == "" {
		return ErrNoChannel
	}

	sess := &session{
		soundID: req.SoundID,
		name:    req.Name,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	m.replace(req.GuildID, sess)

	conn, err := m.transport.Join(req.GuildID, req.ChannelID)
	if err != nil {
		m.removeIf(req.GuildID, sess)
		close(sess.done)
		return fmt.Errorf("join voice channel: %w", err)
	}
	sess.conn = conn

	// A stop (or a superseding play) may have taken the session while the
	// connect was in flight; its result is discarded, not streamed.
	if !m.isCurrent(req.GuildID, sess) {
		if err := conn.Disconnect(); err != nil {
			m.log.Warnw("disconnect after cancelled connect", "guild", req.GuildID, "err", err)
		}
		sess.conn = nil
		close(sess.done)
		return nil
	}

	src, cleanup, err := m.source.Open(req.Path, req.Args)
	if err != nil {
		if m.removeIf(req.GuildID, sess) {
			if dErr := conn.Disconnect(); dErr != nil {
				m.log.Warnw("disconnect after failed open", "guild", req.GuildID, "err", dErr)
			}
		}
		close(sess.done)
		return fmt.Errorf("open sound stream: %w", err)
	}

	if err := m.store.IncrementPlayed(ctx, req.SoundID); err != nil {
		m.log.Warnw("played counter not incremented", "sound", req.SoundID, "err", err)
	}

	m.log.Infow("playing", "guild", req.GuildID, "name", req.Name, "sound", req.SoundID)

	go func() {
		streamErr := conn.Stream(src, sess.stop)
		src.Close()
		if cleanup != nil {
			cleanup()
		}
		if streamErr != nil {
			m.log.Warnw("stream ended with error", "guild", req.GuildID, "name", req.Name, "err", streamErr)
		}
		// Natural completion: tear down only if the session is still ours.
		// If stop or a superseding play already removed it, theirs is the
		// teardown and this is a no-op.
		if m.removeIf(req.GuildID, sess) {
			if err := conn.Disconnect(); err != nil {
				m.log.Warnw("disconnect after playback", "guild", req.GuildID, "err", err)
			}
		}
		close(sess.done)
	}()

	return nil
}

// Stop terminates the guild's playback, if any. It is idempotent: when the
// completion path has already removed the session this observes nothing and
// does nothing. Only a user-initiated stop bumps the stopped counter.
func (m *Manager) Stop(ctx context.Context, guildID string) (bool, error) {
	sess := m.take(guildID)
	if sess == nil {
		return false, nil
	}

	sess.signalStop()
	<-sess.done

	if sess.conn != nil {
		if err := sess.conn.Disconnect(); err != nil {
			m.log.Warnw("disconnect on stop", "guild", guildID, "err", err)
		}
	}

	if err := m.store.IncrementStopped(ctx, sess.soundID); err != nil {
		m.log.Warnw("stopped counter not incremented", "sound", sess.soundID, "err", err)
	}

	m.log.Infow("stopped", "guild", guildID, "name", sess.name)
	return true, nil
}

// Playing reports whether the guild currently has a session.
func (m *Manager) Playing(guildID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[guildID] != nil
}
