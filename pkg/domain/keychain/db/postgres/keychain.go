package keychain

import (
	"context"
	"encoding/json"

	kpool "github.com/opst/pickfab/pkg/conn/db/postgres/pool"
	kdbkeychain "github.com/opst/pickfab/pkg/domain/keychain/db"
	"github.com/opst/pickfab/pkg/domain/keychain/internal"
	"github.com/opst/pickfab/pkg/domain/keychain/key"
)

type pgKeychain struct {
	pool kpool.Pool
}

func New(pool kpool.Pool) kdbkeychain.KeychainInterface {
	return &pgKeychain{pool: pool}
}

func (kc *pgKeychain) Lock(ctx context.Context, name string, criticalSection func(context.Context) error) error {
	tx, err := kc.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(
		ctx,
		`
		with
		"old" as (
			select "name" from "keychain"
			where "name" = $1 for update
		),
		"new" as (
			insert into "keychain" ("name") values ($1)
			on conflict ("name") do nothing
			returning "name"
		)
		select * from "old"
		union all
		select * from "new"
		`,
		name,
	).Scan(nil); err != nil {
		return err
	}

	if err := criticalSection(ctx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	return nil
}

func (kc *pgKeychain) GetKeys(ctx context.Context, name string) (map[string]key.Key, error) {
	conn, err := kc.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(
		ctx,
		`
		select "kid", "key" from "keychain_key"
		where "keychain_name" = $1
		`,
		name,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := map[string]key.Key{}
	for rows.Next() {
		var (
			kid string
			raw []byte
		)
		if err := rows.Scan(&kid, &raw); err != nil {
			return nil, err
		}

		mk := internal.MarshalKey{}
		if err := json.Unmarshal(raw, &mk); err != nil {
			return nil, err
		}
		k, err := key.Unmarshal(mk)
		if err != nil {
			return nil, err
		}
		keys[kid] = k
	}
	return keys, rows.Err()
}

func (kc *pgKeychain) UpdateKeys(ctx context.Context, name string, keys map[string]key.Key) error {
	tx, err := kc.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(
		ctx,
		`
		insert into "keychain" ("name") values ($1)
		on conflict ("name") do nothing
		`,
		name,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(
		ctx,
		`delete from "keychain_key" where "keychain_name" = $1`,
		name,
	); err != nil {
		return err
	}

	for kid, k := range keys {
		raw, err := json.Marshal(k.Marshal())
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			ctx,
			`
			insert into "keychain_key" ("keychain_name", "kid", "key", "exp")
			values ($1, $2, $3, $4)
			`,
			name, kid, raw, k.Exp(),
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
