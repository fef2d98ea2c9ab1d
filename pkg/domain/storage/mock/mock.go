package mock

import (
	"context"
	"errors"
	"io"

	"github.com/opst/pickfab/pkg/domain/storage"
	dbmock "github.com/opst/pickfab/pkg/domain/internal/db/mock"
)

type Storage struct {
	Impl struct {
		ListItems func(ctx context.Context) ([]string, error)
		Read      func(ctx context.Context, itemId string) (io.ReadCloser, error)
	}

	Calls struct {
		ListItems dbmock.CallLog[struct{}]
		Read      dbmock.CallLog[string]
	}
}

var _ storage.Interface = &Storage{}

func New() *Storage {
	return &Storage{}
}

func (m *Storage) ListItems(ctx context.Context) ([]string, error) {
	m.Calls.ListItems = append(m.Calls.ListItems, struct{}{})
	if m.Impl.ListItems != nil {
		return m.Impl.ListItems(ctx)
	}
	panic(errors.New("it should not be called"))
}

func (m *Storage) Read(ctx context.Context, itemId string) (io.ReadCloser, error) {
	m.Calls.Read = append(m.Calls.Read, itemId)
	if m.Impl.Read != nil {
		return m.Impl.Read(ctx, itemId)
	}
	panic(errors.New("it should not be called"))
}
