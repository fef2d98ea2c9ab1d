package storage

import (
	"context"
	"io"
)

// Interface enumerates and reads the items of an active-learning run.
type Interface interface {
	// ListItems returns every item id known to the storage, sorted
	// lexicographically.
	//
	// The ordering is part of the contract: batch selection relies on it
	// as the deterministic tie-break order.
	ListItems(ctx context.Context) ([]string, error)

	// Read opens the raw bytes of an item.
	//
	// The caller owns the returned ReadCloser.
	Read(ctx context.Context, itemId string) (io.ReadCloser, error)
}
