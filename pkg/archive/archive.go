// Package archive reads and writes the tar.gz dataset archives exchanged
// with the ML backend.
//
// A training dataset is laid out as one directory per label, holding the
// items annotated with that label:
//
//	cat/item1.png
//	cat/item2.png
//	dog/item3.png
package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Entry struct {
	// slash-separated path of the entry in the archive.
	Name string

	// content of the entry. Read fully when the entry is written.
	Body io.Reader
}

// WriteTarGz writes entries into dest as a gzipped tarball.
//
// Entry bodies are buffered one at a time to learn their size; the archive
// never holds more than one entry in memory.
func WriteTarGz(ctx context.Context, dest io.Writer, entries []Entry) error {
	gzw := gzip.NewWriter(dest)
	defer gzw.Close()
	tw := tar.NewWriter(gzw)
	defer tw.Close()

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		body := new(bytes.Buffer)
		if _, err := io.Copy(body, entry.Body); err != nil {
			return fmt.Errorf("cannot read entry %s: %w", entry.Name, err)
		}

		if err := tw.WriteHeader(&tar.Header{
			Name:    entry.Name,
			Mode:    0644,
			Size:    int64(body.Len()),
			ModTime: time.Now(),
		}); err != nil {
			return err
		}
		if _, err := io.Copy(tw, body); err != nil {
			return err
		}
	}

	return nil
}

// ExtractTarGz unpacks a gzipped tarball into destDir.
//
// Entries escaping destDir (absolute paths, "..") are rejected.
// Only regular files and directories are extracted; links are skipped.
func ExtractTarGz(ctx context.Context, src io.Reader, destDir string) error {
	gzr, err := gzip.NewReader(src)
	if err != nil {
		return err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		name := filepath.FromSlash(hdr.Name)
		if filepath.IsAbs(name) || strings.Contains(name, "..") {
			return fmt.Errorf("archive entry escapes destination: %s", hdr.Name)
		}
		path := filepath.Join(destDir, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return err
			}
			f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		default:
			// links and specials are not part of the dataset contract.
		}
	}
}
