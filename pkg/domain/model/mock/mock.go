package mock

import (
	"context"
	"errors"

	dbmock "github.com/opst/pickfab/pkg/domain/internal/db/mock"
	"github.com/opst/pickfab/pkg/domain/model"
)

type Trainer struct {
	Impl struct {
		Setup   func(ctx context.Context, classes []string) error
		Predict func(ctx context.Context, itemId string) (map[string]float64, error)
		Train   func(ctx context.Context, dataset model.Dataset) error
		Status  func(ctx context.Context) (model.Status, error)
	}

	Calls struct {
		Setup   dbmock.CallLog[[]string]
		Predict dbmock.CallLog[string]
		Train   dbmock.CallLog[model.Dataset]
		Status  dbmock.CallLog[struct{}]
	}
}

var _ model.Trainer = &Trainer{}

func New() *Trainer {
	return &Trainer{}
}

func (m *Trainer) Setup(ctx context.Context, classes []string) error {
	m.Calls.Setup = append(m.Calls.Setup, classes)
	if m.Impl.Setup != nil {
		return m.Impl.Setup(ctx, classes)
	}
	panic(errors.New("it should not be called"))
}

func (m *Trainer) Predict(ctx context.Context, itemId string) (map[string]float64, error) {
	m.Calls.Predict = append(m.Calls.Predict, itemId)
	if m.Impl.Predict != nil {
		return m.Impl.Predict(ctx, itemId)
	}
	panic(errors.New("it should not be called"))
}

func (m *Trainer) Train(ctx context.Context, dataset model.Dataset) error {
	m.Calls.Train = append(m.Calls.Train, dataset)
	if m.Impl.Train != nil {
		return m.Impl.Train(ctx, dataset)
	}
	panic(errors.New("it should not be called"))
}

func (m *Trainer) Status(ctx context.Context) (model.Status, error) {
	m.Calls.Status = append(m.Calls.Status, struct{}{})
	if m.Impl.Status != nil {
		return m.Impl.Status(ctx)
	}
	panic(errors.New("it should not be called"))
}
