package postgres

import (
	"context"

	kpool "github.com/opst/pickfab/pkg/conn/db/postgres/pool"
	types "github.com/opst/pickfab/pkg/domain"
	kgarbage "github.com/opst/pickfab/pkg/domain/garbage/db"
)

type pgGarbage struct {
	pool kpool.Pool
}

func New(pool kpool.Pool) kgarbage.Interface {
	return &pgGarbage{pool: pool}
}

func (g *pgGarbage) Pop(ctx context.Context, callback func(types.Garbage) error) (bool, error) {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	// pop a record from garbage table
	rows, err := tx.Query(
		ctx,
		`
		with "del_id" as (
			select "ref", "title" from "garbage" limit 1 for update skip locked
		),
		"del_garbage" as (
			delete from "garbage"
			where "ref" in (select "ref" from "del_id")
		)
		select * from "del_id";
		`,
	)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	var Ref string
	var Title string
	pop := false
	for rows.Next() {
		err = rows.Scan(&Ref, &Title)
		if err != nil {
			return false, err
		}
		pop = true
	}
	if err := rows.Err(); err != nil {
		return false, err
	}

	if pop && callback != nil {
		if err := callback(types.Garbage{Ref: Ref, Title: Title}); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}

	return pop, err
}
