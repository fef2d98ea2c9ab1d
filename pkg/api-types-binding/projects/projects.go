package projects

import (
	"github.com/opst/pickfab-api-types/misc/rfctime"
	"github.com/opst/pickfab-api-types/projects"
	"github.com/opst/pickfab/pkg/domain"
	"github.com/opst/pickfab/pkg/utils/slices"
)

func ComposeSummary(p domain.ProjectBody) projects.Summary {
	return projects.Summary{
		Name:        p.Name,
		Status:      string(p.Status),
		BatchSize:   p.BatchSize,
		Epoch:       p.Epoch,
		MaxEpochs:   p.MaxEpochs,
		Strategy:    string(p.Strategy),
		TrainingSet: string(p.TrainingSet),
		UpdatedAt:   rfctime.RFC3339(p.UpdatedAt),
	}
}

func ComposeDetail(p domain.Project) projects.Detail {
	var live *projects.AnnotationProject
	if p.Live != nil {
		live = &projects.AnnotationProject{
			Ref:   p.Live.Ref,
			Title: p.Live.Title,
			Items: p.Live.Items,
			Since: rfctime.RFC3339(p.Live.Since),
		}
	}

	var deadline *rfctime.RFC3339
	if p.TrainingDeadline != nil {
		d := rfctime.RFC3339(*p.TrainingDeadline)
		deadline = &d
	}

	return projects.Detail{
		Summary:     ComposeSummary(p.ProjectBody),
		LabelSchema: p.LabelSchema,
		Annotated: slices.Map(
			p.Annotated, func(a domain.AnnotatedItem) projects.AnnotatedItem {
				return projects.AnnotatedItem{
					ItemId: a.ItemId,
					Label:  a.Label,
					Epoch:  a.Epoch,
					Since:  rfctime.RFC3339(a.Since),
				}
			},
		),
		Live:             live,
		TrainingDeadline: deadline,
	}
}
