package mock

import (
	"context"
	"errors"
	"time"

	"github.com/opst/pickfab/pkg/domain"
	dbmock "github.com/opst/pickfab/pkg/domain/internal/db/mock"
	pdb "github.com/opst/pickfab/pkg/domain/project/db"
)

type ProjectInterface struct {
	Impl struct {
		Register            func(ctx context.Context, project domain.Project) error
		Find                func(ctx context.Context, query domain.ProjectFindQuery) ([]string, error)
		Get                 func(ctx context.Context, names []string) (map[string]domain.Project, error)
		Delete              func(ctx context.Context, name string) error
		SetStatus           func(ctx context.Context, name string, newStatus domain.ProjectStatus) error
		SetTrainingDeadline func(ctx context.Context, name string, deadline time.Time) error
		PickAndSetStatus    func(ctx context.Context, cursorFrom domain.ProjectCursor, task func(domain.Project) (domain.ProjectChange, error)) (domain.ProjectCursor, bool, error)
		PickBySignal        func(ctx context.Context, remoteRef string, task func(domain.Project) (domain.ProjectChange, error)) (bool, error)
	}

	Calls struct {
		Register  dbmock.CallLog[domain.Project]
		Find      dbmock.CallLog[domain.ProjectFindQuery]
		Get       dbmock.CallLog[[]string]
		Delete    dbmock.CallLog[string]
		SetStatus dbmock.CallLog[struct {
			Name      string
			NewStatus domain.ProjectStatus
		}]
		SetTrainingDeadline dbmock.CallLog[struct {
			Name     string
			Deadline time.Time
		}]
		PickAndSetStatus dbmock.CallLog[domain.ProjectCursor]
		PickBySignal     dbmock.CallLog[string]
	}
}

func NewProjectInterface() *ProjectInterface {
	return &ProjectInterface{}
}

var _ pdb.Interface = &ProjectInterface{}

func (m *ProjectInterface) Register(ctx context.Context, project domain.Project) error {
	m.Calls.Register = append(m.Calls.Register, project)
	if m.Impl.Register != nil {
		return m.Impl.Register(ctx, project)
	}
	panic(errors.New("it should not be called"))
}

func (m *ProjectInterface) Find(ctx context.Context, query domain.ProjectFindQuery) ([]string, error) {
	m.Calls.Find = append(m.Calls.Find, query)
	if m.Impl.Find != nil {
		return m.Impl.Find(ctx, query)
	}
	panic(errors.New("it should not be called"))
}

func (m *ProjectInterface) Get(ctx context.Context, names []string) (map[string]domain.Project, error) {
	m.Calls.Get = append(m.Calls.Get, names)
	if m.Impl.Get != nil {
		return m.Impl.Get(ctx, names)
	}
	panic(errors.New("it should not be called"))
}

func (m *ProjectInterface) Delete(ctx context.Context, name string) error {
	m.Calls.Delete = append(m.Calls.Delete, name)
	if m.Impl.Delete != nil {
		return m.Impl.Delete(ctx, name)
	}
	panic(errors.New("it should not be called"))
}

func (m *ProjectInterface) SetStatus(ctx context.Context, name string, newStatus domain.ProjectStatus) error {
	m.Calls.SetStatus = append(m.Calls.SetStatus, struct {
		Name      string
		NewStatus domain.ProjectStatus
	}{Name: name, NewStatus: newStatus})
	if m.Impl.SetStatus != nil {
		return m.Impl.SetStatus(ctx, name, newStatus)
	}
	panic(errors.New("it should not be called"))
}

func (m *ProjectInterface) SetTrainingDeadline(ctx context.Context, name string, deadline time.Time) error {
	m.Calls.SetTrainingDeadline = append(m.Calls.SetTrainingDeadline, struct {
		Name     string
		Deadline time.Time
	}{Name: name, Deadline: deadline})
	if m.Impl.SetTrainingDeadline != nil {
		return m.Impl.SetTrainingDeadline(ctx, name, deadline)
	}
	panic(errors.New("it should not be called"))
}

func (m *ProjectInterface) PickAndSetStatus(
	ctx context.Context,
	cursorFrom domain.ProjectCursor,
	task func(domain.Project) (domain.ProjectChange, error),
) (domain.ProjectCursor, bool, error) {
	m.Calls.PickAndSetStatus = append(m.Calls.PickAndSetStatus, cursorFrom)
	if m.Impl.PickAndSetStatus != nil {
		return m.Impl.PickAndSetStatus(ctx, cursorFrom, task)
	}
	panic(errors.New("it should not be called"))
}

func (m *ProjectInterface) PickBySignal(
	ctx context.Context,
	remoteRef string,
	task func(domain.Project) (domain.ProjectChange, error),
) (bool, error) {
	m.Calls.PickBySignal = append(m.Calls.PickBySignal, remoteRef)
	if m.Impl.PickBySignal != nil {
		return m.Impl.PickBySignal(ctx, remoteRef, task)
	}
	panic(errors.New("it should not be called"))
}
