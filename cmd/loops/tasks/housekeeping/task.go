package housekeeping

import (
	"context"

	"github.com/opst/pickfab/cmd/loops/recurring"
	"github.com/opst/pickfab/pkg/domain"
	"github.com/opst/pickfab/pkg/domain/annotation"
	gbdb "github.com/opst/pickfab/pkg/domain/garbage/db"
)

// initial value for task
func Seed() any {
	return nil
}

// return:
//
// - task: delete retired remote annotation projects on the annotation tool.
//
// A failed deletion rolls the garbage item back, so it is retried on a later
// cycle.
func Task(garbage gbdb.Interface, tool annotation.Tool) recurring.Task[any] {
	return func(ctx context.Context, value any) (any, bool, error) {
		pop, err := garbage.Pop(ctx, func(g domain.Garbage) error {
			return tool.Delete(ctx, g.Ref)
		})
		return value, pop, err
	}
}
