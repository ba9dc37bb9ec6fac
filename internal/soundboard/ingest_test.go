package soundboard

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"soundbort/internal/fetch"
	"soundbort/internal/files"
	"soundbort/internal/storage"
)

// fakeDownloader writes fixed bytes to the destination and counts calls.
type fakeDownloader struct {
	content  string
	duration float64
	err      error
	calls    int
}

func (d *fakeDownloader) Download(ctx context.Context, source, dest string) (*fetch.Info, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	if err := os.WriteFile(dest, []byte(d.content), 0o644); err != nil {
		return nil, err
	}
	return &fetch.Info{Duration: d.duration}, nil
}

// fakeProber reports a fixed duration, or fails for files holding the
// marker bytes "not-audio".
type fakeProber struct {
	duration float64
	calls    int
}

func (p *fakeProber) Duration(ctx context.Context, path string) (float64, error) {
	p.calls++
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if string(data) == "not-audio" {
		return 0, errors.New("no audio stream found")
	}
	return p.duration, nil
}

// failingStore wraps a Store and fails every insert.
type failingStore struct {
	storage.Store
	insertErr error
}

func (f *failingStore) InsertSoundWithName(ctx context.Context, guildID, name, uploader, source string, length float64) (int64, error) {
	return 0, f.insertErr
}

type ingestFixture struct {
	store    *storage.Memory
	repo     *files.Repo
	dl       *fakeDownloader
	prober   *fakeProber
	ingestor *Ingestor
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	repo, err := files.New(filepath.Join(t.TempDir(), "sounds"))
	require.NoError(t, err)

	f := &ingestFixture{
		store:  storage.NewMemory(),
		repo:   repo,
		dl:     &fakeDownloader{content: "pcm data", duration: 4.5},
		prober: &fakeProber{duration: 2.5},
	}
	f.ingestor = NewIngestor(f.store, f.repo, f.dl, f.prober, zap.NewNop().Sugar())
	return f
}

func TestAdd(t *testing.T) {
	f := newIngestFixture(t)

	id, err := f.ingestor.Add(context.Background(), "g1", "user-1", "airhorn", "https://example.com/a")
	require.NoError(t, err)

	info, err := f.store.SoundInfo(context.Background(), id, "g1")
	require.NoError(t, err)
	assert.Equal(t, "airhorn", info.Name)
	assert.Equal(t, 4.5, info.Sound.Length)
	assert.Equal(t, "user-1", info.Sound.Uploader)

	data, err := os.ReadFile(f.repo.Path("g1", "airhorn"))
	require.NoError(t, err)
	assert.Equal(t, "pcm data", string(data))

	// metadata carried the duration, no probe needed
	assert.Equal(t, 0, f.prober.calls)
}

func TestAddProbesWhenMetadataMissing(t *testing.T) {
	f := newIngestFixture(t)
	f.dl.duration = 0

	id, err := f.ingestor.Add(context.Background(), "g1", "user-1", "airhorn", "src")
	require.NoError(t, err)

	info, err := f.store.SoundInfo(context.Background(), id, "g1")
	require.NoError(t, err)
	assert.Equal(t, 2.5, info.Sound.Length)
	assert.Equal(t, 1, f.prober.calls)
}

func TestAddSanitizesName(t *testing.T) {
	f := newIngestFixture(t)

	_, err := f.ingestor.Add(context.Background(), "g1", "user-1", "  air*horn  ", "src")
	require.NoError(t, err)

	n, err := f.store.ResolveName(context.Background(), "g1", "airhorn")
	require.NoError(t, err)
	require.NotNil(t, n)
}

func TestAddInvalidName(t *testing.T) {
	f := newIngestFixture(t)

	_, err := f.ingestor.Add(context.Background(), "g1", "user-1", "...", "src")
	var invalid *InvalidNameError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 0, f.dl.calls)
}

func TestAddDuplicateFailsBeforeDownload(t *testing.T) {
	f := newIngestFixture(t)
	_, err := f.ingestor.Add(context.Background(), "g1", "user-1", "airhorn", "src")
	require.NoError(t, err)
	f.dl.calls = 0

	_, err = f.ingestor.Add(context.Background(), "g1", "user-2", "AirHorn", "src")
	require.ErrorIs(t, err, storage.ErrNameExists)
	assert.Equal(t, 0, f.dl.calls, "duplicate must be rejected without touching the network")
}

func TestAddDownloadFailure(t *testing.T) {
	f := newIngestFixture(t)
	f.dl.err = fmt.Errorf("%w: no video found", fetch.ErrDownload)

	_, err := f.ingestor.Add(context.Background(), "g1", "user-1", "airhorn", "src")
	require.ErrorIs(t, err, fetch.ErrDownload)

	// nothing was recorded
	n, err := f.store.ResolveName(context.Background(), "g1", "airhorn")
	require.NoError(t, err)
	assert.Nil(t, n)
	_, err = os.Lstat(f.repo.Path("g1", "airhorn"))
	assert.True(t, os.IsNotExist(err))
}

func TestAddInsertFailureRemovesFile(t *testing.T) {
	f := newIngestFixture(t)
	insertErr := fmt.Errorf("%w: connection lost", storage.ErrStorage)
	f.ingestor.store = &failingStore{Store: f.store, insertErr: insertErr}

	_, err := f.ingestor.Add(context.Background(), "g1", "user-1", "airhorn", "src")
	require.ErrorIs(t, err, storage.ErrStorage)

	// the compensating unlink removed the committed file
	_, err = os.Lstat(f.repo.Path("g1", "airhorn"))
	assert.True(t, os.IsNotExist(err))
}

func TestAddRateLimited(t *testing.T) {
	f := newIngestFixture(t)

	for i := 0; i < 3; i++ {
		_, err := f.ingestor.Add(context.Background(), "g1", "user-1", fmt.Sprintf("sound%d", i), "src")
		require.NoError(t, err)
	}

	_, err := f.ingestor.Add(context.Background(), "g1", "user-1", "sound3", "src")
	require.ErrorIs(t, err, ErrBusy)

	// other guilds have their own budget
	_, err = f.ingestor.Add(context.Background(), "g2", "user-1", "sound0", "src")
	require.NoError(t, err)
}

// End to end through the guild-facing layers: add, duplicate rejection,
// alias playback identity, cascade delete, post-delete resolution.
func TestSoundLifecycle(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	resolver := NewResolver(f.store)

	id, err := f.ingestor.Add(ctx, "g1", "user-1", "airhorn", "src-a")
	require.NoError(t, err)

	_, err = f.ingestor.Add(ctx, "g1", "user-2", "airhorn", "src-b")
	require.ErrorIs(t, err, storage.ErrNameExists)

	_, err = f.store.BindAlias(ctx, id, "g1", "horn", func() error {
		return f.repo.Alias("g1", "airhorn", "horn")
	})
	require.NoError(t, err)

	// both names resolve to the same sound
	primary, err := resolver.Resolve(ctx, "g1", "airhorn")
	require.NoError(t, err)
	alias, err := resolver.Resolve(ctx, "g1", "horn")
	require.NoError(t, err)
	assert.Equal(t, primary.SoundID, alias.SoundID)

	// deleting the only primary name takes the sound, the alias and both files
	err = f.store.DeleteName(ctx, primary.ID, func(removed []storage.Name) error {
		names := make([]string, len(removed))
		for i, r := range removed {
			names[i] = r.Name
		}
		return f.repo.RemoveAll("g1", names)
	})
	require.NoError(t, err)

	_, err = resolver.Resolve(ctx, "g1", "horn")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Empty(t, notFound.Suggestions, "nothing left to suggest")

	for _, name := range []string{"airhorn", "horn"} {
		_, statErr := os.Lstat(f.repo.Path("g1", name))
		assert.True(t, os.IsNotExist(statErr), name)
	}
}

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pack.zip")
	out, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())
	return path
}

func TestImportZip(t *testing.T) {
	f := newIngestFixture(t)
	path := writeZip(t, map[string]string{
		"clips/horn.ogg":  "audio one",
		"clips/siren.ogg": "audio two",
		"readme.txt":      "not-audio",
		"con":             "audio three",
	})

	report, err := f.ingestor.importFile(context.Background(), "g1", "user-1", "https://example.com/pack.zip", path, "pack.zip")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"horn.ogg", "siren.ogg"}, report.Added)
	require.Len(t, report.Failed, 2)
	assert.Contains(t, report.Failed["readme.txt"].Error(), "not an audio file")
	var invalid *InvalidNameError
	assert.ErrorAs(t, report.Failed["con"], &invalid)

	data, err := os.ReadFile(f.repo.Path("g1", "horn.ogg"))
	require.NoError(t, err)
	assert.Equal(t, "audio one", string(data))
}

func TestImportZipDuplicateEntry(t *testing.T) {
	f := newIngestFixture(t)
	_, err := f.ingestor.Add(context.Background(), "g1", "user-1", "horn.ogg", "src")
	require.NoError(t, err)

	path := writeZip(t, map[string]string{"horn.ogg": "audio"})
	report, err := f.ingestor.importFile(context.Background(), "g1", "user-1", "src", path, "pack.zip")
	require.NoError(t, err)

	assert.Empty(t, report.Added)
	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed["horn.ogg"], storage.ErrNameExists)
}

func TestImportTarGz(t *testing.T) {
	f := newIngestFixture(t)

	path := filepath.Join(t.TempDir(), "pack.tar.gz")
	out, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)
	for _, e := range []struct{ name, content string }{
		{"sounds/horn.ogg", "audio one"},
		{"sounds/siren.ogg", "audio two"},
	} {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: e.name,
			Mode: 0o644,
			Size: int64(len(e.content)),
		}))
		_, err = tw.Write([]byte(e.content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, out.Close())

	report, err := f.ingestor.importFile(context.Background(), "g1", "user-1", "src", path, "pack.tar.gz")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"horn.ogg", "siren.ogg"}, report.Added)
	assert.Empty(t, report.Failed)
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestAddEntryClosesReader(t *testing.T) {
	f := newIngestFixture(t)
	rec := &closeRecorder{Reader: strings.NewReader("audio")}

	err := f.ingestor.addEntry(context.Background(), "g1", "user-1", "horn.ogg", "src",
		func() (io.ReadCloser, error) { return rec, nil })
	require.NoError(t, err)
	assert.True(t, rec.closed)

	// failed entries release their reader too
	rec = &closeRecorder{Reader: strings.NewReader("not-audio")}
	err = f.ingestor.addEntry(context.Background(), "g1", "user-1", "noise.ogg", "src",
		func() (io.ReadCloser, error) { return rec, nil })
	require.Error(t, err)
	assert.True(t, rec.closed)
}

func TestImportUnsupportedType(t *testing.T) {
	f := newIngestFixture(t)

	_, err := f.ingestor.importFile(context.Background(), "g1", "user-1", "src", "whatever", "pack.rar")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported archive type")
}
