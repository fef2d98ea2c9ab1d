package annotation

import (
	"context"

	"github.com/opst/pickfab/pkg/domain"
)

// ProjectSpec is what one epoch's batch asks of the annotation tool.
type ProjectSpec struct {
	// title of the remote project. See domain.AnnotationTitle.
	Title string

	// ordered class names annotators choose from.
	LabelSchema []string

	// item ids to be uploaded for annotation.
	Items []string
}

// Tool is the contract with the remote annotation tool.
//
// There is exactly one interface, whatever the backing tool is; each tool
// gets its own concrete adapter returning the uniform domain records.
type Tool interface {
	// CreateProject creates a remote labeling project, uploads the items,
	// and registers the webhook reporting annotation progress.
	CreateProject(ctx context.Context, spec ProjectSpec) (domain.AnnotationProject, error)

	// Progress reports how many annotations have been completed so far.
	//
	// This is the polling fallback of the webhook signal.
	Progress(ctx context.Context, ref string) (int, error)

	// Completed returns the completed annotations of the project.
	//
	// Re-annotated items appear once, with their latest label.
	Completed(ctx context.Context, ref string) ([]domain.AnnotatedItem, error)

	// Delete removes the remote project.
	Delete(ctx context.Context, ref string) error
}
