package soundboard

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"soundbort/internal/fetch"
)

// ImportReport aggregates per-entry results of a bulk import. One bad entry
// never aborts the rest of the archive.
type ImportReport struct {
	Added  []string
	Failed map[string]error
}

func (r *ImportReport) fail(name string, err error) {
	if r.Failed == nil {
		r.Failed = make(map[string]error)
	}
	r.Failed[name] = err
}

// ImportArchive downloads an archive (zip, tar, tar.gz/tgz, tar.bz2/tbz2)
// and ingests every regular file in it, named after its basename.
func (in *Ingestor) ImportArchive(ctx context.Context, guildID, uploader, source string) (*ImportReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fetch.ErrDownload, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fetch.ErrDownload, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %s", fetch.ErrDownload, resp.Status)
	}

	archive, err := os.CreateTemp("", "soundbort-import-*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(archive.Name())
	defer archive.Close()

	if _, err := io.Copy(archive, resp.Body); err != nil {
		return nil, fmt.Errorf("%w: %v", fetch.ErrDownload, err)
	}

	// The final URL path names the archive; redirects may have changed it.
	filename := filepath.Base(resp.Request.URL.Path)
	return in.importFile(ctx, guildID, uploader, source, archive.Name(), filename)
}

func (in *Ingestor) importFile(ctx context.Context, guildID, uploader, source, path, filename string) (*ImportReport, error) {
	report := &ImportReport{}
	entry := func(name string, open func() (io.ReadCloser, error)) {
		if err := in.addEntry(ctx, guildID, uploader, name, source, open); err != nil {
			report.fail(name, err)
		} else {
			report.Added = append(report.Added, name)
		}
	}

	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		if err := walkZip(path, entry); err != nil {
			return nil, err
		}
	case strings.HasSuffix(lower, ".tar"),
		strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"),
		strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz2"):
		if err := walkTar(path, lower, entry); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported archive type %q", filename)
	}
	return report, nil
}

func (in *Ingestor) addEntry(ctx context.Context, guildID, uploader, candidateName, source string, open func() (io.ReadCloser, error)) error {
	name, err := ValidateName(candidateName)
	if err != nil {
		return err
	}

	src, err := open()
	if err != nil {
		return err
	}
	defer src.Close()

	staged := in.files.TempPath()
	defer os.Remove(staged)

	f, err := os.OpenFile(staged, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	length, err := in.prober.Duration(ctx, staged)
	if err != nil {
		return fmt.Errorf("not an audio file: %w", err)
	}

	_, err = in.commit(ctx, guildID, uploader, name, source, staged, length)
	return err
}

func walkZip(path string, entry func(name string, open func() (io.ReadCloser, error))) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		f := f
		entry(filepath.Base(f.Name), func() (io.ReadCloser, error) {
			return f.Open()
		})
	}
	return nil
}

func walkTar(path, lower string, entry func(name string, open func() (io.ReadCloser, error))) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	switch {
	case strings.HasSuffix(lower, ".gz"), strings.HasSuffix(lower, ".tgz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(lower, ".bz2"), strings.HasSuffix(lower, ".tbz2"):
		r = bzip2.NewReader(f)
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		// Entries are consumed in order; open just hands back the reader
		// positioned at the current entry. Closing the wrapper must not
		// close the archive stream.
		entry(filepath.Base(hdr.Name), func() (io.ReadCloser, error) {
			return io.NopCloser(tr), nil
		})
	}
}
