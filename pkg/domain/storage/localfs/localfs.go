// Package localfs serves items from a directory tree on the local filesystem.
//
// Item ids are slash-separated paths relative to the root directory.
package localfs

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/opst/pickfab/pkg/domain/storage"
)

type localStorage struct {
	root string
}

func New(root string) storage.Interface {
	return &localStorage{root: root}
}

func (s *localStorage) ListItems(ctx context.Context) ([]string, error) {
	items := []string{}
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil // do not follow symlinks
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		items = append(items, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(items)
	return items, nil
}

func (s *localStorage) Read(ctx context.Context, itemId string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	// item ids come from external systems too (the annotation tool's export,
	// for one); never let them name anything outside the root.
	path := filepath.FromSlash(itemId)
	if !filepath.IsLocal(path) {
		return nil, fmt.Errorf("item id escapes the storage root: %s", itemId)
	}
	return os.Open(filepath.Join(s.root, path))
}
