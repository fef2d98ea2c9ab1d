package mock

import (
	"context"
	"errors"

	"github.com/opst/pickfab/pkg/domain"
	"github.com/opst/pickfab/pkg/domain/annotation"
	dbmock "github.com/opst/pickfab/pkg/domain/internal/db/mock"
)

type Tool struct {
	Impl struct {
		CreateProject func(ctx context.Context, spec annotation.ProjectSpec) (domain.AnnotationProject, error)
		Progress      func(ctx context.Context, ref string) (int, error)
		Completed     func(ctx context.Context, ref string) ([]domain.AnnotatedItem, error)
		Delete        func(ctx context.Context, ref string) error
	}

	Calls struct {
		CreateProject dbmock.CallLog[annotation.ProjectSpec]
		Progress      dbmock.CallLog[string]
		Completed     dbmock.CallLog[string]
		Delete        dbmock.CallLog[string]
	}
}

var _ annotation.Tool = &Tool{}

func New() *Tool {
	return &Tool{}
}

func (m *Tool) CreateProject(ctx context.Context, spec annotation.ProjectSpec) (domain.AnnotationProject, error) {
	m.Calls.CreateProject = append(m.Calls.CreateProject, spec)
	if m.Impl.CreateProject != nil {
		return m.Impl.CreateProject(ctx, spec)
	}
	panic(errors.New("it should not be called"))
}

func (m *Tool) Progress(ctx context.Context, ref string) (int, error) {
	m.Calls.Progress = append(m.Calls.Progress, ref)
	if m.Impl.Progress != nil {
		return m.Impl.Progress(ctx, ref)
	}
	panic(errors.New("it should not be called"))
}

func (m *Tool) Completed(ctx context.Context, ref string) ([]domain.AnnotatedItem, error) {
	m.Calls.Completed = append(m.Calls.Completed, ref)
	if m.Impl.Completed != nil {
		return m.Impl.Completed(ctx, ref)
	}
	panic(errors.New("it should not be called"))
}

func (m *Tool) Delete(ctx context.Context, ref string) error {
	m.Calls.Delete = append(m.Calls.Delete, ref)
	if m.Impl.Delete != nil {
		return m.Impl.Delete(ctx, ref)
	}
	panic(errors.New("it should not be called"))
}
