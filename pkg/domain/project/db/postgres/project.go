package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	kpool "github.com/opst/pickfab/pkg/conn/db/postgres/pool"
	"github.com/opst/pickfab/pkg/conn/db/postgres/scanner"
	"github.com/opst/pickfab/pkg/domain"
	kpgerr "github.com/opst/pickfab/pkg/domain/errors/dberrors/postgres"
	pdb "github.com/opst/pickfab/pkg/domain/project/db"
	"github.com/opst/pickfab/pkg/domain/scoring"
	"github.com/opst/pickfab/pkg/utils/slices"
)

type pgProject struct {
	pool kpool.Pool
}

func New(pool kpool.Pool) pdb.Interface {
	return &pgProject{pool: pool}
}

var _ pdb.Interface = &pgProject{}

func (m *pgProject) Register(ctx context.Context, project domain.Project) error {
	if project.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", domain.ErrInvalidProject)
	}
	if project.MaxEpochs <= 0 {
		return fmt.Errorf("%w: max epochs must be positive", domain.ErrInvalidProject)
	}
	if len(project.LabelSchema) == 0 {
		return fmt.Errorf("%w: label schema is required", domain.ErrInvalidProject)
	}
	if _, err := scoring.AsStrategy(project.Strategy.String()); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidProject, err)
	}
	if _, err := domain.AsTrainingSetPolicy(project.TrainingSet.String()); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidProject, err)
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(
		ctx,
		`
		insert into "project" (
			"name", "batch_size", "epoch", "max_epochs",
			"strategy", "training_set", "status", "updated_at"
		)
		values ($1, $2, 0, $3, $4, $5, 'deactivated', now())
		`,
		project.Name, project.BatchSize, project.MaxEpochs,
		project.Strategy.String(), project.TrainingSet.String(),
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf(
				"%w: %s", domain.ErrProjectAlreadyExists, project.Name,
			)
		}
		return err
	}

	for position, label := range project.LabelSchema {
		if _, err := tx.Exec(
			ctx,
			`
			insert into "label_class" ("project_name", "position", "label")
			values ($1, $2, $3)
			`,
			project.Name, position, label,
		); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return fmt.Errorf(
					"%w: label %s is duplicated", domain.ErrInvalidProject, label,
				)
			}
			return err
		}
	}

	return tx.Commit(ctx)
}

func (m *pgProject) Find(ctx context.Context, query domain.ProjectFindQuery) ([]string, error) {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	return scanner.New[string]().QueryAll(
		ctx, conn,
		`
		select "name" from "project"
		where
			(cardinality($1::varchar[]) = 0 or "name" = any($1::varchar[]))
			and (cardinality($2::projectStatus[]) = 0 or "status" = any($2::projectStatus[]))
		order by "name"
		`,
		query.Name,
		slices.Map(query.Status, domain.ProjectStatus.String),
	)
}

func (m *pgProject) Get(ctx context.Context, names []string) (map[string]domain.Project, error) {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	return getProjects(ctx, conn, names)
}

// load full Projects: body + label schema + annotations + live handle.
func getProjects(ctx context.Context, conn kpool.Queryer, names []string) (map[string]domain.Project, error) {
	projects := map[string]domain.Project{}
	{
		rows, err := conn.Query(
			ctx,
			`
			select
				"name", "batch_size", "epoch", "max_epochs",
				"strategy", "training_set", "status",
				"updated_at", "training_deadline"
			from "project"
			where "name" = any($1::varchar[])
			`,
			names,
		)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				body                  domain.ProjectBody
				strategy, trainingSet string
				status                string
				deadline              *time.Time
			)
			if err := rows.Scan(
				&body.Name, &body.BatchSize, &body.Epoch, &body.MaxEpochs,
				&strategy, &trainingSet, &status,
				&body.UpdatedAt, &deadline,
			); err != nil {
				return nil, err
			}
			if body.Strategy, err = scoring.AsStrategy(strategy); err != nil {
				return nil, err
			}
			if body.TrainingSet, err = domain.AsTrainingSetPolicy(trainingSet); err != nil {
				return nil, err
			}
			if body.Status, err = domain.AsProjectStatus(status); err != nil {
				return nil, err
			}
			projects[body.Name] = domain.Project{
				ProjectBody:      body,
				Annotated:        []domain.AnnotatedItem{},
				TrainingDeadline: deadline,
			}
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		rows.Close()
	}

	{
		type labelClass struct {
			ProjectName string
			Label       string
		}
		labels, err := scanner.New[labelClass]().QueryAll(
			ctx, conn,
			`
			select "project_name", "label" from "label_class"
			where "project_name" = any($1::varchar[])
			order by "project_name", "position"
			`,
			names,
		)
		if err != nil {
			return nil, err
		}

		for _, l := range labels {
			p := projects[l.ProjectName]
			p.LabelSchema = append(p.LabelSchema, l.Label)
			projects[l.ProjectName] = p
		}
	}

	{
		rows, err := conn.Query(
			ctx,
			`
			select "project_name", "item_id", "label", "epoch", "since"
			from "annotated_item"
			where "project_name" = any($1::varchar[])
			order by "project_name", "item_id"
			`,
			names,
		)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				name string
				item domain.AnnotatedItem
			)
			if err := rows.Scan(
				&name, &item.ItemId, &item.Label, &item.Epoch, &item.Since,
			); err != nil {
				return nil, err
			}
			p := projects[name]
			p.Annotated = append(p.Annotated, item)
			projects[name] = p
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		rows.Close()
	}

	{
		rows, err := conn.Query(
			ctx,
			`
			select
				"ap"."project_name", "ap"."ref", "ap"."title", "ap"."since",
				"bi"."item_id"
			from "annotation_project" as "ap"
			left outer join "batch_item" as "bi"
				on "bi"."project_name" = "ap"."project_name"
			where "ap"."project_name" = any($1::varchar[])
			order by "ap"."project_name", "bi"."item_id"
			`,
			names,
		)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				name   string
				live   domain.AnnotationProject
				itemId *string
			)
			if err := rows.Scan(
				&name, &live.Ref, &live.Title, &live.Since, &itemId,
			); err != nil {
				return nil, err
			}
			p := projects[name]
			if p.Live == nil {
				live.Items = []string{}
				p.Live = &live
			}
			if itemId != nil {
				p.Live.Items = append(p.Live.Items, *itemId)
			}
			projects[name] = p
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		rows.Close()
	}

	return projects, nil
}

func (m *pgProject) Delete(ctx context.Context, name string) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var status string
	if err := tx.QueryRow(
		ctx,
		`select "status" from "project" where "name" = $1 for update`,
		name,
	).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return kpgerr.Missing{
				Table:    "project",
				Identity: fmt.Sprintf("name = %s", name),
			}
		}
		return err
	}

	current, err := domain.AsProjectStatus(status)
	if err != nil {
		return err
	}
	if current.Active() {
		return fmt.Errorf("%w: %s", domain.ErrProjectIsActive, name)
	}

	if err := retireLive(ctx, tx, name); err != nil {
		return err
	}

	// children (label_class, annotated_item, batch_item) go via cascade.
	if _, err := tx.Exec(
		ctx, `delete from "project" where "name" = $1`, name,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// move the live remote annotation project, if any, into garbage.
func retireLive(ctx context.Context, tx kpool.Tx, name string) error {
	if _, err := tx.Exec(
		ctx,
		`
		insert into "garbage" ("ref", "title")
		select "ref", "title" from "annotation_project"
		where "project_name" = $1
		on conflict do nothing
		`,
		name,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		ctx,
		`delete from "annotation_project" where "project_name" = $1`,
		name,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		ctx,
		`delete from "batch_item" where "project_name" = $1`,
		name,
	); err != nil {
		return err
	}
	return nil
}

func (m *pgProject) SetStatus(ctx context.Context, name string, newStatus domain.ProjectStatus) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := setStatus(ctx, tx, name, newStatus, 0); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// update status of the project named name, locking its row.
//
// Only legal transitions pass. Transiting to the same status is a no-op
// which just debounces the project against immediate re-picking.
// Finished -> Idle also resets epoch and forgets annotations, so the
// project restarts from scratch.
func setStatus(
	ctx context.Context, tx kpool.Tx, name string,
	newStatus domain.ProjectStatus, debounceIfNotChanged time.Duration,
) error {
	var current domain.ProjectStatus
	{
		var status string
		if err := tx.QueryRow(
			ctx,
			`select "status" from "project" where "name" = $1 for update`,
			name,
		).Scan(&status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return kpgerr.Missing{
					Table:    "project",
					Identity: fmt.Sprintf("name = %s", name),
				}
			}
			return err
		}
		var err error
		if current, err = domain.AsProjectStatus(status); err != nil {
			return err
		}
	}

	if current == newStatus {
		if _, err := tx.Exec(
			ctx,
			`
			update "project" set "suspend_until" = now() + $1
			where "name" = $2
			`,
			debounceIfNotChanged, name,
		); err != nil {
			return err
		}
		return nil
	}

	if !current.Transitable(newStatus) {
		return domain.NewErrInvalidProjectStateChanging(current, newStatus)
	}

	if _, err := tx.Exec(
		ctx,
		`
		update "project" set
			"status" = $1,
			"updated_at" = now(),
			"suspend_until" = now()
		where "name" = $2
		`,
		newStatus.String(), name,
	); err != nil {
		return err
	}

	if current == domain.Finished && newStatus == domain.Idle {
		// restart from scratch.
		if _, err := tx.Exec(
			ctx,
			`
			update "project" set "epoch" = 0, "training_deadline" = null
			where "name" = $1
			`,
			name,
		); err != nil {
			return err
		}
		if _, err := tx.Exec(
			ctx,
			`delete from "annotated_item" where "project_name" = $1`,
			name,
		); err != nil {
			return err
		}
	}

	return nil
}

func (m *pgProject) SetTrainingDeadline(ctx context.Context, name string, deadline time.Time) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(
		ctx,
		`
		update "project" set "training_deadline" = $1, "updated_at" = now()
		where "name" = $2
		`,
		deadline, name,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return kpgerr.Missing{
			Table:    "project",
			Identity: fmt.Sprintf("name = %s", name),
		}
	}

	return tx.Commit(ctx)
}

func (m *pgProject) PickAndSetStatus(
	ctx context.Context,
	cursorFrom domain.ProjectCursor,
	task func(domain.Project) (domain.ProjectChange, error),
) (domain.ProjectCursor, bool, error) {
	cursor := cursorFrom

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return cursor, false, err
	}
	defer tx.Rollback(ctx)

	var project domain.Project
	{
		var name string
		if err := tx.QueryRow(
			ctx,
			`
			with "target" as (
				select "name" from "project"
				where
					"status" = any($1::projectStatus[])
					and "suspend_until" < now()
				order by "name" <= $2, "name"
				limit 1
				for no key update skip locked
			)
			select "name" from "target"
			`,
			slices.Map(cursor.Status, domain.ProjectStatus.String),
			cursor.Head,
		).Scan(&name); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return cursor, false, nil
			}
			return cursor, false, err
		}

		ps, err := getProjects(ctx, tx, []string{name})
		if err != nil {
			return cursor, false, err
		}
		project = ps[name]

		// cursor is moved!
		cursor = domain.ProjectCursor{
			Head:     name,
			Status:   cursor.Status,
			Debounce: cursor.Debounce,
		}
	}

	change, err := task(project)
	if err != nil {
		return cursor, false, err
	}

	if err := applyChange(ctx, tx, project, change, cursor.Debounce); err != nil {
		return cursor, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return cursor, false, err
	}
	return cursor, true, nil
}

func (m *pgProject) PickBySignal(
	ctx context.Context,
	remoteRef string,
	task func(domain.Project) (domain.ProjectChange, error),
) (bool, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var project domain.Project
	{
		var name string
		if err := tx.QueryRow(
			ctx,
			`
			select "project"."name" from "project"
			inner join "annotation_project"
				on "annotation_project"."project_name" = "project"."name"
			where
				"annotation_project"."ref" = $1
				and "project"."status" = 'dispatched'
			limit 1
			for no key update of "project" skip locked
			`,
			remoteRef,
		).Scan(&name); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// unknown ref, or the batch is handled already. not an error.
				return false, nil
			}
			return false, err
		}

		ps, err := getProjects(ctx, tx, []string{name})
		if err != nil {
			return false, err
		}
		project = ps[name]
	}

	change, err := task(project)
	if err != nil {
		return false, err
	}

	if err := applyChange(ctx, tx, project, change, 0); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// apply the whole ProjectChange in the surrounding transaction.
func applyChange(
	ctx context.Context, tx kpool.Tx,
	project domain.Project, change domain.ProjectChange,
	debounce time.Duration,
) error {
	if err := setStatus(ctx, tx, project.Name, change.NextStatus, debounce); err != nil {
		return err
	}

	if _, err := tx.Exec(
		ctx,
		`
		update "project" set "epoch" = $1, "training_deadline" = $2
		where "name" = $3
		`,
		change.Epoch, change.TrainingDeadline, project.Name,
	); err != nil {
		return err
	}

	if change.ResetProgress {
		if _, err := tx.Exec(
			ctx,
			`delete from "annotated_item" where "project_name" = $1`,
			project.Name,
		); err != nil {
			return err
		}
	}

	for _, a := range change.NewAnnotations {
		if _, err := tx.Exec(
			ctx,
			`
			insert into "annotated_item" (
				"project_name", "item_id", "label", "epoch", "since"
			)
			values ($1, $2, $3, $4, now())
			on conflict ("project_name", "item_id") do update
			set "label" = $3, "epoch" = $4
			`,
			project.Name, a.ItemId, a.Label, a.Epoch,
		); err != nil {
			return err
		}
	}

	if change.RetireLive {
		if err := retireLive(ctx, tx, project.Name); err != nil {
			return err
		}
	}

	if live := change.NewLive; live != nil {
		if _, err := tx.Exec(
			ctx,
			`
			insert into "annotation_project" (
				"project_name", "ref", "title", "since"
			)
			values ($1, $2, $3, $4)
			`,
			project.Name, live.Ref, live.Title, live.Since,
		); err != nil {
			return err
		}
		for _, itemId := range live.Items {
			if _, err := tx.Exec(
				ctx,
				`
				insert into "batch_item" ("project_name", "item_id")
				values ($1, $2)
				`,
				project.Name, itemId,
			); err != nil {
				return err
			}
		}
	}

	return nil
}
