package playback

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"soundbort/internal/storage"
)

// fakeConn blocks in Stream until stopped or told to finish, standing in for
// a real voice connection.
type fakeConn struct {
	mu          sync.Mutex
	disconnects int

	streaming chan struct{} // closed when Stream is entered
	finish    chan struct{} // close to simulate the sound ending
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		streaming: make(chan struct{}),
		finish:    make(chan struct{}),
	}
}

func (c *fakeConn) Stream(src io.Reader, stop <-chan struct{}) error {
	close(c.streaming)
	select {
	case <-stop:
	case <-c.finish:
	}
	return nil
}

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return nil
}

func (c *fakeConn) disconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

// fakeTransport hands out prepared connections in order. A non-nil joinGate
// makes Join block until the gate is closed.
type fakeTransport struct {
	mu       sync.Mutex
	conns    []*fakeConn
	joins    int
	joinErr  error
	joinGate chan struct{}
}

func (t *fakeTransport) Join(guildID, channelID string) (VoiceConn, error) {
	if t.joinGate != nil {
		<-t.joinGate
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.joinErr != nil {
		return nil, t.joinErr
	}
	c := t.conns[t.joins]
	t.joins++
	return c, nil
}

type fakeSource struct {
	mu       sync.Mutex
	openErr  error
	cleanups int
}

func (s *fakeSource) Open(path string, args Args) (io.ReadCloser, func(), error) {
	if s.openErr != nil {
		return nil, nil, s.openErr
	}
	cleanup := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.cleanups++
	}
	return io.NopCloser(strings.NewReader("")), cleanup, nil
}

func (s *fakeSource) cleanupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanups
}

type managerFixture struct {
	store     *storage.Memory
	transport *fakeTransport
	source    *fakeSource
	manager   *Manager
	soundID   int64
}

func newManagerFixture(t *testing.T, conns ...*fakeConn) *managerFixture {
	t.Helper()
	f := &managerFixture{
		store:     storage.NewMemory(),
		transport: &fakeTransport{conns: conns},
		source:    &fakeSource{},
	}
	id, err := f.store.InsertSoundWithName(context.Background(), "g1", "airhorn", "user-1", "src", 2.0)
	require.NoError(t, err)
	f.soundID = id
	f.manager = NewManager(f.transport, f.source, f.store, zap.NewNop().Sugar())
	return f
}

func (f *managerFixture) request() Request {
	return Request{
		GuildID:   "g1",
		ChannelID: "voice-1",
		SoundID:   f.soundID,
		Name:      "airhorn",
		Path:      "/sounds/g1/airhorn",
		Args:      DefaultArgs,
	}
}

func (f *managerFixture) counters(t *testing.T) (played, stopped int64) {
	t.Helper()
	info, err := f.store.SoundInfo(context.Background(), f.soundID, "g1")
	require.NoError(t, err)
	return info.Sound.Played, info.Sound.Stopped
}

func waitIdle(t *testing.T, m *Manager, guildID string) {
	t.Helper()
	require.Eventually(t, func() bool { return !m.Playing(guildID) },
		2*time.Second, time.Millisecond)
}

func TestPlayRequiresVoiceChannel(t *testing.T) {
	f := newManagerFixture(t)
	req := f.request()
	req.ChannelID = ""

	err := f.manager.Play(context.Background(), req)
	require.ErrorIs(t, err, ErrNoChannel)
	assert.False(t, f.manager.Playing("g1"))
	assert.Equal(t, 0, f.transport.joins)
}

func TestPlayNaturalCompletion(t *testing.T) {
	conn := newFakeConn()
	f := newManagerFixture(t, conn)

	require.NoError(t, f.manager.Play(context.Background(), f.request()))
	<-conn.streaming
	assert.True(t, f.manager.Playing("g1"))

	close(conn.finish)
	waitIdle(t, f.manager, "g1")

	assert.Equal(t, 1, conn.disconnectCount())
	assert.Equal(t, 1, f.source.cleanupCount())
	played, stopped := f.counters(t)
	assert.Equal(t, int64(1), played)
	assert.Equal(t, int64(0), stopped, "natural completion is not a user stop")
}

func TestStop(t *testing.T) {
	conn := newFakeConn()
	f := newManagerFixture(t, conn)

	require.NoError(t, f.manager.Play(context.Background(), f.request()))
	<-conn.streaming

	stopped, err := f.manager.Stop(context.Background(), "g1")
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.False(t, f.manager.Playing("g1"))
	assert.Equal(t, 1, conn.disconnectCount())

	played, stoppedCount := f.counters(t)
	assert.Equal(t, int64(1), played)
	assert.Equal(t, int64(1), stoppedCount)

	// a second stop observes nothing
	stopped, err = f.manager.Stop(context.Background(), "g1")
	require.NoError(t, err)
	assert.False(t, stopped)
	_, stoppedCount = f.counters(t)
	assert.Equal(t, int64(1), stoppedCount)
}

func TestStopWithoutSession(t *testing.T) {
	f := newManagerFixture(t)

	stopped, err := f.manager.Stop(context.Background(), "g1")
	require.NoError(t, err)
	assert.False(t, stopped)
}

// Exactly one of a racing stop command and stream completion performs the
// teardown, no matter which one wins.
func TestStopRacesCompletion(t *testing.T) {
	for i := 0; i < 50; i++ {
		conn := newFakeConn()
		f := newManagerFixture(t, conn)

		require.NoError(t, f.manager.Play(context.Background(), f.request()))
		<-conn.streaming

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			close(conn.finish)
		}()
		go func() {
			defer wg.Done()
			_, err := f.manager.Stop(context.Background(), "g1")
			assert.NoError(t, err)
		}()
		wg.Wait()
		waitIdle(t, f.manager, "g1")

		assert.Equal(t, 1, conn.disconnectCount(), "exactly one teardown, iteration %d", i)
		assert.Equal(t, 1, f.source.cleanupCount())
		_, stopped := f.counters(t)
		assert.LessOrEqual(t, stopped, int64(1))
	}
}

func TestPlaySupersedes(t *testing.T) {
	connA := newFakeConn()
	connB := newFakeConn()
	f := newManagerFixture(t, connA, connB)

	require.NoError(t, f.manager.Play(context.Background(), f.request()))
	<-connA.streaming

	// the second play stops the first synchronously and takes over
	require.NoError(t, f.manager.Play(context.Background(), f.request()))
	<-connB.streaming
	assert.True(t, f.manager.Playing("g1"))

	// the superseded session lost the compare-and-remove, so it never
	// touched the shared transport
	assert.Equal(t, 0, connA.disconnectCount())

	played, stopped := f.counters(t)
	assert.Equal(t, int64(2), played)
	assert.Equal(t, int64(0), stopped)

	// a stale completion signal from the first session changes nothing
	close(connA.finish)
	assert.True(t, f.manager.Playing("g1"))

	wasPlaying, err := f.manager.Stop(context.Background(), "g1")
	require.NoError(t, err)
	assert.True(t, wasPlaying)
	assert.Equal(t, 1, connB.disconnectCount())
}

func TestPlayJoinError(t *testing.T) {
	f := newManagerFixture(t)
	f.transport.joinErr = errors.New("no gateway")

	err := f.manager.Play(context.Background(), f.request())
	require.Error(t, err)
	assert.False(t, f.manager.Playing("g1"))

	played, _ := f.counters(t)
	assert.Equal(t, int64(0), played)
}

func TestPlayOpenError(t *testing.T) {
	conn := newFakeConn()
	f := newManagerFixture(t, conn)
	f.source.openErr = errors.New("ffmpeg not found")

	err := f.manager.Play(context.Background(), f.request())
	require.Error(t, err)
	assert.False(t, f.manager.Playing("g1"))
	assert.Equal(t, 1, conn.disconnectCount(), "failed open releases the connection")

	played, _ := f.counters(t)
	assert.Equal(t, int64(0), played)
}

// A stop that lands while the voice connect is still in flight wins: the
// connect result is discarded and nothing is streamed.
func TestStopDuringConnect(t *testing.T) {
	conn := newFakeConn()
	f := newManagerFixture(t, conn)
	gate := make(chan struct{})
	f.transport.joinGate = gate

	playDone := make(chan error, 1)
	go func() {
		playDone <- f.manager.Play(context.Background(), f.request())
	}()

	// the session is registered before Join is attempted
	require.Eventually(t, func() bool { return f.manager.Playing("g1") },
		2*time.Second, time.Millisecond)

	stopDone := make(chan bool, 1)
	go func() {
		wasPlaying, err := f.manager.Stop(context.Background(), "g1")
		assert.NoError(t, err)
		stopDone <- wasPlaying
	}()

	// the stop has taken the session; let the connect finish now
	require.Eventually(t, func() bool { return !f.manager.Playing("g1") },
		2*time.Second, time.Millisecond)
	close(gate)

	require.NoError(t, <-playDone)
	assert.True(t, <-stopDone)
	assert.Equal(t, 1, conn.disconnectCount())

	played, _ := f.counters(t)
	assert.Equal(t, int64(0), played, "nothing was streamed")
}

func TestGuildsAreIndependent(t *testing.T) {
	connA := newFakeConn()
	connB := newFakeConn()
	f := newManagerFixture(t, connA, connB)

	reqA := f.request()
	reqB := f.request()
	reqB.GuildID = "g2"

	require.NoError(t, f.manager.Play(context.Background(), reqA))
	<-connA.streaming
	require.NoError(t, f.manager.Play(context.Background(), reqB))
	<-connB.streaming

	assert.True(t, f.manager.Playing("g1"))
	assert.True(t, f.manager.Playing("g2"))

	wasPlaying, err := f.manager.Stop(context.Background(), "g1")
	require.NoError(t, err)
	assert.True(t, wasPlaying)
	assert.True(t, f.manager.Playing("g2"), "stopping one guild leaves the other running")

	_, err = f.manager.Stop(context.Background(), "g2")
	require.NoError(t, err)
}

func TestPlayConcurrentSameGuild(t *testing.T) {
	const n = 8
	conns := make([]*fakeConn, n)
	for i := range conns {
		conns[i] = newFakeConn()
	}
	f := newManagerFixture(t, conns...)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.manager.Play(context.Background(), f.request())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// all racing plays settled into at most one live session
	_, err := f.manager.Stop(context.Background(), "g1")
	require.NoError(t, err)
	waitIdle(t, f.manager, "g1")
	assert.False(t, f.manager.Playing("g1"))

	// no connection is ever torn down twice
	for i, c := range conns {
		assert.LessOrEqual(t, c.disconnectCount(), 1, "conn %d", i)
	}
}
